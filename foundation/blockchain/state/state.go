// Package state ties the database, mempool, and peer set together into
// the single node the worker mines against and the wire protocol serves
// (§4.6, §4.7, §5).
package state

import (
	"sync"

	"github.com/xorcoin/node/foundation/blockchain/database"
	"github.com/xorcoin/node/foundation/blockchain/database/storage"
	"github.com/xorcoin/node/foundation/blockchain/genesis"
	"github.com/xorcoin/node/foundation/blockchain/mempool"
	"github.com/xorcoin/node/foundation/blockchain/p2p"
	"github.com/xorcoin/node/foundation/blockchain/peer"
)

// EventHandler is a function that is called to provide business updates.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by
// any package that provides mining and p2p support (§4.7, §4.8).
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
	SignalShareTx(tx database.Transaction)
	Sync()
}

// Config represents the configuration requried to construct a State value.
type Config struct {
	BeneficiaryAddress string // where this node's mined coinbase rewards pay out
	Host                string
	DBPath              string
	KnownPeers          *peer.PeerSet
	EvHandler           EventHandler
}

// State manages the blockchain database and mempool for one node: the
// blockchain-state lock guards db/mempool tip bookkeeping shared between
// the mining, sync, and RPC-serving code paths, and may be held while
// calling into the mempool's own lock (§5's nesting discipline — the
// mempool never takes the state lock while holding its own).
type State struct {
	mu sync.RWMutex

	beneficiaryAddress string
	host                string
	dbPath              string
	evHandler           EventHandler

	allowMining bool
	resyncWG    sync.WaitGroup

	genesis    genesis.Genesis
	db         *database.Database
	mempool    *mempool.Mempool
	knownPeers *peer.PeerSet
	connSet    *p2p.ConnSet

	Worker Worker
}

// New constructs a new blockchain state, opening (or creating) the on-disk
// block store at cfg.DBPath and replaying it into a fresh UTXO set.
func New(cfg Config) (*State, error) {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	g, err := genesis.Load()
	if err != nil {
		return nil, err
	}

	disk, err := storage.NewDisk(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	db, err := database.New(g, disk, ev)
	if err != nil {
		return nil, err
	}

	mp := mempool.New(db.UTXOSet(), g.ChainID)
	mp.UpdateTipHeight(db.LatestBlock().Height)

	s := State{
		beneficiaryAddress: cfg.BeneficiaryAddress,
		host:                cfg.Host,
		dbPath:              cfg.DBPath,
		evHandler:           ev,
		allowMining:         true,
		genesis:             g,
		db:                  db,
		mempool:             mp,
		knownPeers:          cfg.KnownPeers,
		connSet:             p2p.NewConnSet(),
	}

	return &s, nil
}

// Shutdown cleanly releases all resources used by the blockchain state.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	s.Worker.Shutdown()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.db.Close()

	return nil
}

// Truncate resets the chain and mempool back to the genesis state,
// discarding every block and pooled transaction (used by tests; Reorganize
// resyncs on top of the current chain and does not call it).
func (s *State) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Reset(); err != nil {
		return err
	}
	s.mempool.Truncate()
	s.mempool.UpdateTipHeight(0)

	return nil
}

// IsMiningAllowed reports whether the worker may currently start a mining
// attempt (false while a reorg resync is in progress).
func (s *State) IsMiningAllowed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.allowMining
}
