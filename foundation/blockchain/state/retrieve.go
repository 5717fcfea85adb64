package state

import (
	"github.com/xorcoin/node/foundation/blockchain/database"
	"github.com/xorcoin/node/foundation/blockchain/genesis"
	"github.com/xorcoin/node/foundation/blockchain/p2p"
	"github.com/xorcoin/node/foundation/blockchain/peer"
)

// RetrieveHost returns a copy of host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveLatestBlock returns a copy the current latest block.
func (s *State) RetrieveLatestBlock() database.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db.LatestBlock()
}

// RetrieveMempoolLength returns the number of transactions currently
// pooled, used by the worker to decide whether mining is worth attempting.
func (s *State) RetrieveMempoolLength() int {
	return s.mempool.Count()
}

// RetrieveMempool returns the set of transactions the mempool would select
// for the next block, given the current tip's byte budget.
func (s *State) RetrieveMempool() []database.Transaction {
	return s.mempool.SelectForBlock(genesis.MaxBlockSize)
}

// RetrieveKnownPeers retrieves a copy of the known peer list.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// RetrieveConnSet returns the live connection registry, so the worker can
// enforce §4.8's peer caps and ban list without state and worker each
// keeping their own copy.
func (s *State) RetrieveConnSet() *p2p.ConnSet {
	return s.connSet
}

// RetrieveMempoolHas reports whether txid is already pooled, used to
// decide whether an INV-advertised transaction is worth requesting.
func (s *State) RetrieveMempoolHas(txid [32]byte) bool {
	return s.mempool.Has(txid)
}

// RetrieveBlockByHeight returns the block at height, from disk (or the
// genesis block for height 0).
func (s *State) RetrieveBlockByHeight(height uint64) (database.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db.GetBlock(height)
}

// RetrieveUTXOSet returns the database's backing UTXO set, for callers
// that need a live view.
func (s *State) RetrieveUTXOSet() *database.UTXOSet {
	return s.db.UTXOSet()
}

// RetrieveBalance sums every unspent output paying address, the wallet
// balance query's notion of "balance" in a UTXO chain (§3).
func (s *State) RetrieveBalance(address string) uint64 {
	var total uint64
	for _, entry := range s.db.UTXOSet().Copy() {
		if entry.Output.ScriptPubKey == address {
			total += entry.Output.Amount
		}
	}
	return total
}

// UTXO pairs an OutPoint with the entry it identifies, the shape a wallet
// needs to pick inputs for a new transaction.
type UTXO struct {
	OutPoint database.OutPoint
	Entry    database.UTXOEntry
}

// RetrieveUTXOs returns every unspent output paying address, so a wallet
// can select inputs for a transaction without its own copy of the chain
// (§3).
func (s *State) RetrieveUTXOs(address string) []UTXO {
	var utxos []UTXO
	for op, entry := range s.db.UTXOSet().Copy() {
		if entry.Output.ScriptPubKey == address {
			utxos = append(utxos, UTXO{OutPoint: op, Entry: entry})
		}
	}
	return utxos
}

// UpsertMempool admits tx into the mempool, returning the new pool count.
func (s *State) UpsertMempool(tx database.Transaction) (int, error) {
	return s.mempool.AddTransaction(tx)
}

// AddKnownPeer registers p as a known peer, reporting whether it was new.
func (s *State) AddKnownPeer(p peer.Peer) bool {
	return s.knownPeers.Add(p)
}

// RemoveKnownPeer drops p from the known peer set.
func (s *State) RemoveKnownPeer(p peer.Peer) {
	s.knownPeers.Remove(p)
}
