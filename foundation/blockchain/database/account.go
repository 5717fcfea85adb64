package database

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOutPointMissing is returned when an input spends an OutPoint that does
// not exist in the UTXO set (or, for a View, in its overlay either).
var ErrOutPointMissing = errors.New("utxo: outpoint does not exist")

// UTXOEntry is the UTXO set's value type: the output itself plus the
// provenance needed to enforce coinbase maturity (§3, §4.3).
type UTXOEntry struct {
	Output     TxOutput
	Height     uint64 // height of the block that created this output
	IsCoinbase bool
}

// =============================================================================

// UndoEntry records one output removed by ApplyBlock, enough to restore it
// on Rollback.
type UndoEntry struct {
	OutPoint OutPoint
	Entry    UTXOEntry
}

// Undo is the record produced by UTXOSet.ApplyBlock needed to exactly
// reverse it (§4.4): the outputs it spent (to be restored) and the
// OutPoints it created (to be removed).
type Undo struct {
	Height  uint64
	Removed []UndoEntry
	Added   []OutPoint
}

// =============================================================================

// UTXOSet is the authoritative mapping from OutPoint to TxOutput (§3): the
// ledger state every transaction is validated against and every accepted
// block mutates.
type UTXOSet struct {
	mu   sync.RWMutex
	utxo map[OutPoint]UTXOEntry
}

// NewUTXOSet constructs an empty UTXO set.
func NewUTXOSet() *UTXOSet {
	return &UTXOSet{
		utxo: make(map[OutPoint]UTXOEntry),
	}
}

// Get returns the entry for an OutPoint and whether it exists.
func (u *UTXOSet) Get(op OutPoint) (UTXOEntry, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	entry, ok := u.utxo[op]
	return entry, ok
}

// Len reports how many unspent outputs the set currently holds.
func (u *UTXOSet) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return len(u.utxo)
}

// Copy returns a snapshot map of the current set, for tests that need to
// assert ApplyBlock+Rollback restores state byte-for-byte (§8).
func (u *UTXOSet) Copy() map[OutPoint]UTXOEntry {
	u.mu.RLock()
	defer u.mu.RUnlock()

	out := make(map[OutPoint]UTXOEntry, len(u.utxo))
	for k, v := range u.utxo {
		out[k] = v
	}
	return out
}

// ApplyBlock applies every transaction in block in order: non-coinbase
// inputs remove their referenced OutPoints, every output is added keyed by
// (txid, vout). The whole call is atomic — if any input fails to resolve,
// every mutation already made within this call is reverted before returning
// the error (§4.4).
func (u *UTXOSet) ApplyBlock(block Block) (Undo, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	undo := Undo{Height: block.Height}

	txs := block.Transactions.Values()
	for i, tx := range txs {
		isCoinbase := i == 0

		if !isCoinbase {
			for _, in := range tx.Inputs {
				entry, ok := u.utxo[in.Prev]
				if !ok {
					u.rollbackLocked(undo)
					return Undo{}, fmt.Errorf("apply block: %w: %s", ErrOutPointMissing, in.Prev)
				}
				delete(u.utxo, in.Prev)
				undo.Removed = append(undo.Removed, UndoEntry{OutPoint: in.Prev, Entry: entry})
			}
		}

		txid, err := tx.TxIDBytes()
		if err != nil {
			u.rollbackLocked(undo)
			return Undo{}, fmt.Errorf("apply block: %w", err)
		}

		for vout, out := range tx.Outputs {
			op := OutPoint{TxID: txid, Vout: uint32(vout)}
			u.utxo[op] = UTXOEntry{Output: out, Height: block.Height, IsCoinbase: isCoinbase}
			undo.Added = append(undo.Added, op)
		}
	}

	return undo, nil
}

// Rollback reverses a prior ApplyBlock: removes the outputs it added and
// restores the outputs it spent.
func (u *UTXOSet) Rollback(undo Undo) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.rollbackLocked(undo)
}

// rollbackLocked is Rollback's body, callable while u.mu is already held
// (ApplyBlock's own failure path uses it to revert partial mutations).
func (u *UTXOSet) rollbackLocked(undo Undo) {
	for _, e := range undo.Removed {
		u.utxo[e.OutPoint] = e.Entry
	}
	for _, op := range undo.Added {
		delete(u.utxo, op)
	}
}

// =============================================================================

// View is a cheap, immutable overlay over a UTXOSet used to validate
// transactions without mutating the set (§4.4's snapshot_view): spends
// already committed by other candidates (mempool siblings, or earlier
// transactions in the same block) hide their OutPoints, and outputs those
// same candidates create become visible even though they aren't in the
// underlying set yet.
type View struct {
	base  *UTXOSet
	spent map[OutPoint]bool
	extra map[OutPoint]UTXOEntry
}

// SnapshotView constructs a View layered on top of u.
func (u *UTXOSet) SnapshotView(spent map[OutPoint]bool, extra map[OutPoint]UTXOEntry) *View {
	return &View{base: u, spent: spent, extra: extra}
}

// Get resolves an OutPoint through the overlay: hidden by an extra spend,
// then the extra outputs, then the underlying set.
func (v *View) Get(op OutPoint) (UTXOEntry, bool) {
	if v.spent != nil && v.spent[op] {
		return UTXOEntry{}, false
	}
	if v.extra != nil {
		if entry, ok := v.extra[op]; ok {
			return entry, true
		}
	}
	return v.base.Get(op)
}
