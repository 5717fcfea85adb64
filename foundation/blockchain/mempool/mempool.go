// Package mempool maintains the set of not-yet-confirmed transactions a
// node is willing to relay and mine (§4.5).
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xorcoin/node/foundation/blockchain/database"
	"github.com/xorcoin/node/foundation/blockchain/validate"
)

// MinRelayFeePerKB is the minimum fee rate, in satoshis per 1000 bytes, a
// transaction must pay to be relayed and pooled (§6).
const MinRelayFeePerKB = 1000

// MaxMempoolBytes caps the total encoded size of pooled transactions; once
// exceeded, admission evicts the lowest fee-rate entries to make room (§4.5,
// §6).
const MaxMempoolBytes = 300_000_000

// Expiry is how long an entry may sit in the pool unconfirmed before it is
// dropped (§4.5, §6).
const Expiry = 14 * 24 * time.Hour

var (
	// ErrAlreadyKnown is returned when a transaction with this txid is
	// already pooled.
	ErrAlreadyKnown = errors.New("mempool: transaction already known")

	// ErrFeeTooLow is returned when a transaction's fee rate falls below
	// MinRelayFeePerKB.
	ErrFeeTooLow = errors.New("mempool: fee rate below minimum relay fee")

	// ErrConflict is returned when a transaction spends an OutPoint already
	// spent by a different pooled transaction.
	ErrConflict = errors.New("mempool: conflicts with an in-mempool transaction")

	// ErrMempoolFull is returned when there isn't enough room for a new
	// transaction even after evicting every lower fee-rate entry, or the new
	// transaction is itself the lowest fee-rate candidate.
	ErrMempoolFull = errors.New("mempool: full")
)

// Entry is one pooled transaction plus the bookkeeping needed to evict,
// select, and expire it.
type Entry struct {
	Tx      database.Transaction
	TxID    [32]byte
	Size    int
	Fee     uint64
	FeeRate float64 // satoshis per byte
	Added   time.Time
}

// Mempool indexes pooled transactions by txid, and their spent inputs by
// OutPoint so conflicting spends are caught in constant time.
type Mempool struct {
	mu        sync.RWMutex
	utxo      *database.UTXOSet
	chainID   uint32
	tipHeight uint64
	pool      map[[32]byte]Entry
	spent     map[database.OutPoint][32]byte
	bytes     int
}

// New constructs a Mempool backed by utxo for resolving input amounts,
// validating against chainID for replay protection (§4.3 step 1).
func New(utxo *database.UTXOSet, chainID uint32) *Mempool {
	return &Mempool{
		utxo:    utxo,
		chainID: chainID,
		pool:    make(map[[32]byte]Entry),
		spent:   make(map[database.OutPoint][32]byte),
	}
}

// UpdateTipHeight records the chain's current tip height, so admission can
// evaluate coinbase maturity (§4.3 step 4) against the height a pooled
// transaction would confirm at (tip + 1).
func (mp *Mempool) UpdateTipHeight(height uint64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.tipHeight = height
}

// Count returns the number of pooled transactions.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Bytes returns the total encoded size of every pooled transaction.
func (mp *Mempool) Bytes() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.bytes
}

// Has reports whether txid is already pooled.
func (mp *Mempool) Has(txid [32]byte) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, ok := mp.pool[txid]
	return ok
}

// view builds a snapshot_view (§4.4) reflecting the pool's own spends and
// outputs layered over the live UTXO set, so a new candidate is checked
// against "the set as it would be" if every currently pooled transaction
// confirmed (§4.5 step 2).
func (mp *Mempool) view() *database.View {
	spentSet := make(map[database.OutPoint]bool, len(mp.spent))
	for op := range mp.spent {
		spentSet[op] = true
	}

	extra := make(map[database.OutPoint]database.UTXOEntry)
	for txid, entry := range mp.pool {
		for vout, out := range entry.Tx.Outputs {
			extra[database.OutPoint{TxID: txid, Vout: uint32(vout)}] = database.UTXOEntry{Output: out}
		}
	}

	return mp.utxo.SnapshotView(spentSet, extra)
}

// AddTransaction admits tx into the pool per §4.5's admission steps 1-5: no
// duplicates, no double spends against other pooled transactions, full
// validation (signature, maturity, conservation) through
// foundation/blockchain/validate against a pool-aware view, and a fee rate
// at or above MinRelayFeePerKB.
func (mp *Mempool) AddTransaction(tx database.Transaction) (int, error) {
	if tx.IsCoinbase() {
		return 0, database.ErrCoinbaseOutsideBlock
	}

	txid, err := tx.TxIDBytes()
	if err != nil {
		return 0, fmt.Errorf("mempool: %w", err)
	}

	full, err := tx.EncodeFull()
	if err != nil {
		return 0, fmt.Errorf("mempool: %w", err)
	}
	size := len(full)

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[txid]; exists {
		return 0, ErrAlreadyKnown
	}

	for _, in := range tx.Inputs {
		if owner, ok := mp.spent[in.Prev]; ok && owner != txid {
			return 0, fmt.Errorf("%w: input %s already spent by %x", ErrConflict, in.Prev, owner)
		}
	}

	view := mp.view()

	fee, err := validate.Transaction(tx, view, mp.tipHeight+1, mp.chainID)
	if err != nil {
		return 0, fmt.Errorf("mempool: %w", err)
	}

	feeRate := float64(fee) / float64(size)
	minFeeRate := float64(MinRelayFeePerKB) / 1000
	if feeRate < minFeeRate {
		return 0, fmt.Errorf("%w: %.4f sat/byte, need %.4f", ErrFeeTooLow, feeRate, minFeeRate)
	}

	entry := Entry{
		Tx:      tx,
		TxID:    txid,
		Size:    size,
		Fee:     fee,
		FeeRate: feeRate,
		Added:   time.Now(),
	}

	if mp.bytes+size > MaxMempoolBytes {
		if err := mp.evictForSpaceLocked(size, feeRate); err != nil {
			return 0, err
		}
	}

	mp.insertLocked(entry)

	return len(mp.pool), nil
}

// evictForSpaceLocked removes the lowest fee-rate entries until room exists
// for size more bytes, refusing if feeRate is itself the pool's lowest
// (§4.5 step 4: "reject the new tx if it is itself the lowest").
func (mp *Mempool) evictForSpaceLocked(size int, feeRate float64) error {
	if len(mp.pool) == 0 {
		return fmt.Errorf("%w: transaction larger than mempool capacity", ErrMempoolFull)
	}

	entries := make([]Entry, 0, len(mp.pool))
	for _, e := range mp.pool {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].FeeRate < entries[j].FeeRate })

	if feeRate <= entries[0].FeeRate {
		return fmt.Errorf("%w: new transaction's fee rate is the lowest", ErrMempoolFull)
	}

	freed := 0
	for _, e := range entries {
		if mp.bytes-freed+size <= MaxMempoolBytes {
			break
		}
		mp.removeLocked(e.TxID)
		freed += e.Size
	}

	if mp.bytes+size > MaxMempoolBytes {
		return fmt.Errorf("%w: could not free enough space", ErrMempoolFull)
	}

	return nil
}

func (mp *Mempool) insertLocked(entry Entry) {
	mp.pool[entry.TxID] = entry
	mp.bytes += entry.Size
	for _, in := range entry.Tx.Inputs {
		mp.spent[in.Prev] = entry.TxID
	}
}

func (mp *Mempool) removeLocked(txid [32]byte) {
	entry, ok := mp.pool[txid]
	if !ok {
		return
	}

	for _, in := range entry.Tx.Inputs {
		if mp.spent[in.Prev] == txid {
			delete(mp.spent, in.Prev)
		}
	}
	delete(mp.pool, txid)
	mp.bytes -= entry.Size
}

// Remove drops txid from the pool, if present.
func (mp *Mempool) Remove(txid [32]byte) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.removeLocked(txid)
}

// Truncate clears every pooled transaction.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[[32]byte]Entry)
	mp.spent = make(map[database.OutPoint][32]byte)
	mp.bytes = 0
}

// PurgeConfirmed removes every pooled transaction block just confirmed, plus
// any pooled transaction whose input block double-spent (§4.5 Eviction).
func (mp *Mempool) PurgeConfirmed(block database.Block) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	txs := block.Transactions.Values()

	consumed := make(map[database.OutPoint]bool)
	confirmed := make([][32]byte, 0, len(txs))

	for i, tx := range txs {
		if i == 0 {
			continue // coinbase, never pooled
		}

		txid, err := tx.TxIDBytes()
		if err != nil {
			continue
		}
		confirmed = append(confirmed, txid)

		for _, in := range tx.Inputs {
			consumed[in.Prev] = true
		}
	}

	for _, txid := range confirmed {
		mp.removeLocked(txid)
	}

	for op := range consumed {
		if owner, ok := mp.spent[op]; ok {
			mp.removeLocked(owner)
		}
	}
}

// ExpireOld removes every entry older than Expiry as of now.
func (mp *Mempool) ExpireOld(now time.Time) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var stale [][32]byte
	for txid, entry := range mp.pool {
		if now.Sub(entry.Added) > Expiry {
			stale = append(stale, txid)
		}
	}
	for _, txid := range stale {
		mp.removeLocked(txid)
	}
}

// SelectForBlock greedily picks pooled transactions by descending fee rate,
// respecting in-mempool parent-before-child ordering, until maxBytes would
// be exceeded (§4.5 Selection, §4.7 step 2). It makes repeated passes over
// whatever remains unselected, same as one round of selection can unblock a
// child whose parent was just chosen in the previous round.
func (mp *Mempool) SelectForBlock(maxBytes int) []database.Transaction {
	mp.mu.RLock()
	entries := make([]Entry, 0, len(mp.pool))
	for _, e := range mp.pool {
		entries = append(entries, e)
	}
	mp.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].FeeRate > entries[j].FeeRate })

	pooledTxIDs := make(map[[32]byte]bool, len(entries))
	for _, e := range entries {
		pooledTxIDs[e.TxID] = true
	}
	pooledParent := func(op database.OutPoint) ([32]byte, bool) {
		if pooledTxIDs[op.TxID] {
			return op.TxID, true
		}
		return [32]byte{}, false
	}

	selected := make(map[[32]byte]bool)
	var result []database.Transaction
	usedBytes := 0

	remaining := entries
	for len(remaining) > 0 {
		var next []Entry
		progressed := false

		for _, e := range remaining {
			if usedBytes+e.Size > maxBytes {
				next = append(next, e)
				continue
			}

			ready := true
			for _, in := range e.Tx.Inputs {
				if parentTxID, ok := pooledParent(in.Prev); ok && !selected[parentTxID] {
					ready = false
					break
				}
			}

			if !ready {
				next = append(next, e)
				continue
			}

			result = append(result, e.Tx)
			selected[e.TxID] = true
			usedBytes += e.Size
			progressed = true
		}

		if !progressed {
			break
		}
		remaining = next
	}

	return result
}
