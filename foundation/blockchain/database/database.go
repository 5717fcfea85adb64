// Package database handles all the lower level support for maintaining the
// blockchain on disk and the in-memory UTXO set derived from it.
package database

import (
	"fmt"
	"sync"

	"github.com/xorcoin/node/foundation/blockchain/genesis"
	"github.com/xorcoin/node/foundation/blockchain/merkle"
)

// Serializer interface represents the behavior required to be implemented by any
// package providing support for storing and reading the blockchain.
type Serializer interface {
	Write(blockData BlockData) error
	GetBlock(num uint64) (BlockData, error)
	ForEach() Iterator
	Close() error
	Reset() error
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the blocks.
type Iterator interface {
	Next() (BlockData, error)
	Done() bool
}

// =============================================================================

// DatabaseIterator wraps a Serializer's raw Iterator, reconstituting each
// BlockData into a Block (rebuilding its merkle tree) as it walks.
type DatabaseIterator struct {
	iterator Iterator
}

// Next retrieves the next block from disk.
func (di *DatabaseIterator) Next() (Block, error) {
	blockData, err := di.iterator.Next()
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData)
}

// Done returns the end of chain value.
func (di *DatabaseIterator) Done() bool {
	return di.iterator.Done()
}

// =============================================================================

// genesisBlock constructs the fixed, hardcoded first block of the chain: a
// single coinbase transaction paying genesis.CoinbaseAmount to
// genesis.CoinbaseAddress (§6). It carries no parent and is never
// proof-of-work mined; its bits/nonce are whatever the genesis file records.
func genesisBlock(g genesis.Genesis) (Block, error) {
	coinbase := Transaction{
		Version: 1,
		ChainID: g.ChainID,
		Outputs: []TxOutput{
			{Amount: g.CoinbaseAmount, ScriptPubKey: g.CoinbaseAddress},
		},
	}

	tree, err := merkle.NewTree([]Transaction{coinbase})
	if err != nil {
		return Block{}, fmt.Errorf("genesis block: %w", err)
	}

	var merkleRoot [32]byte
	copy(merkleRoot[:], tree.MerkleRoot)

	return Block{
		Header: BlockHeader{
			Version:    1,
			PrevHash:   [32]byte{},
			MerkleRoot: merkleRoot,
			Timestamp:  uint64(g.Date.Unix()),
			Bits:       g.Bits,
			Nonce:      g.Nonce,
		},
		Height:       0,
		Transactions: tree,
	}, nil
}

// Database manages the UTXO set and the on-disk record of the blockchain
// that produced it.
type Database struct {
	mu sync.RWMutex

	genesis     genesis.Genesis
	latestBlock Block
	utxoSet     *UTXOSet

	serializer Serializer
}

// New constructs a new database, applies the genesis coinbase output, and
// replays every block already persisted on disk through the UTXO set.
func New(g genesis.Genesis, serializer Serializer, evHandler func(v string, args ...any)) (*Database, error) {
	gBlock, err := genesisBlock(g)
	if err != nil {
		return nil, err
	}

	db := Database{
		genesis:     g,
		latestBlock: gBlock,
		utxoSet:     NewUTXOSet(),
		serializer:  serializer,
	}

	if _, err := db.utxoSet.ApplyBlock(gBlock); err != nil {
		return nil, fmt.Errorf("apply genesis block: %w", err)
	}

	// Read all the blocks already persisted on disk and replay them.
	latestBlock := gBlock

	iter := db.serializer.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		block, err := ToBlock(blockData)
		if err != nil {
			return nil, err
		}

		if err := block.ValidateBlock(latestBlock, db.priorTimestamps(block.Height), evHandler); err != nil {
			return nil, err
		}

		if _, err := db.utxoSet.ApplyBlock(block); err != nil {
			return nil, fmt.Errorf("apply block %d: %w", block.Height, err)
		}

		latestBlock = block
	}

	db.latestBlock = latestBlock

	return &db, nil
}

// Close closes the open blocks database.
func (db *Database) Close() {
	db.serializer.Close()
}

// Reset re-initializes the database back to the genesis state.
func (db *Database) Reset() error {
	if err := db.serializer.Reset(); err != nil {
		return err
	}

	gBlock, err := genesisBlock(db.genesis)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.utxoSet = NewUTXOSet()
	if _, err := db.utxoSet.ApplyBlock(gBlock); err != nil {
		return fmt.Errorf("apply genesis block: %w", err)
	}
	db.latestBlock = gBlock

	return nil
}

// UTXOSet returns the database's backing UTXO set, consulted (read-only, in
// practice via Get/SnapshotView) by validate and mempool.
func (db *Database) UTXOSet() *UTXOSet {
	return db.utxoSet
}

// ApplyBlock validates block against the current tip, applies it to the
// UTXO set, persists it through the serializer, and only then advances the
// tip. On any failure the UTXO set is left exactly as it was before the call.
func (db *Database) ApplyBlock(block Block, evHandler func(v string, args ...any)) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := block.ValidateBlock(db.latestBlock, db.priorTimestamps(block.Height), evHandler); err != nil {
		return fmt.Errorf("validate block: %w", err)
	}

	undo, err := db.utxoSet.ApplyBlock(block)
	if err != nil {
		return fmt.Errorf("apply block: %w", err)
	}

	if err := db.serializer.Write(NewBlockData(block)); err != nil {
		db.utxoSet.Rollback(undo)
		return fmt.Errorf("write block: %w", err)
	}

	db.latestBlock = block

	return nil
}

// RollbackBlock reverses undo against the UTXO set and, if block is
// currently the tip, restores the tip to its parent. No code path in the
// node calls it: fork handling (§4.6 Reorganization) resyncs through
// state.Reorganize instead of disconnecting blocks.
func (db *Database) RollbackBlock(block Block, undo Undo, previousBlock Block) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.utxoSet.Rollback(undo)

	if db.latestBlock.Header.Hash() == block.Header.Hash() {
		db.latestBlock = previousBlock
	}
}

// UpdateLatestBlock provides safe access to update the latest block. It only
// moves the tip: block is not validated, applied to the UTXO set, or
// persisted.
func (db *Database) UpdateLatestBlock(block Block) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.latestBlock = block
}

// LatestBlock returns the latest block.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock
}

// ForEach returns an iterator to walk through all the blocks starting with
// block number 1 (block 0, genesis, is never persisted through the
// serializer).
func (db *Database) ForEach() DatabaseIterator {
	return DatabaseIterator{iterator: db.serializer.ForEach()}
}

// GetBlock searches the blockchain on disk to locate and return the
// contents of the specified block by number.
func (db *Database) GetBlock(num uint64) (Block, error) {
	if num == 0 {
		return genesisBlock(db.genesis)
	}

	blockData, err := db.serializer.GetBlock(num)
	if err != nil {
		return Block{}, err
	}
	return ToBlock(blockData)
}

// priorTimestamps returns up to MedianTimePastWindow timestamps of the
// blocks immediately preceding height, most-recent first, so ValidateBlock
// can check a candidate block's timestamp against median-time-past (§4.6
// step 1) regardless of whether height is being validated during initial
// replay, live extension, or after a rollback — all three only ever need
// whatever's already durable on disk plus the synthesized genesis block.
func (db *Database) priorTimestamps(height uint64) []uint64 {
	var timestamps []uint64
	for h := height; h > 0 && len(timestamps) < MedianTimePastWindow; h-- {
		block, err := db.GetBlock(h - 1)
		if err != nil {
			break
		}
		timestamps = append(timestamps, block.Header.Timestamp)
	}
	return timestamps
}

// GenesisAddress returns the address signature.AddressFromPubKeyHash would
// need to spend the genesis coinbase output, surfaced for wallets bringing
// up a fresh node.
func (db *Database) GenesisAddress() string {
	return db.genesis.CoinbaseAddress
}
