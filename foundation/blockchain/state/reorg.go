package state

// Reorganize corrects an identified fork (§4.6's chain-split handling,
// surfaced by database.ErrChainForked). No mining is allowed to take place
// while this process is running. New transactions can still be placed into
// the mempool.
func (s *State) Reorganize() error {
	s.mu.Lock()
	s.allowMining = false
	s.mu.Unlock()

	s.resyncWG.Add(1)
	go func() {
		s.evHandler("state: Reorganize: resync: started: *****************************")
		defer func() {
			s.turnMiningOn()
			s.evHandler("state: Reorganize: resync: completed: *****************************")
			s.resyncWG.Done()
		}()

		s.Worker.Sync()
	}()

	return nil
}

// turnMiningOn sets the allowMining flag back to true.
func (s *State) turnMiningOn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allowMining = true
}
