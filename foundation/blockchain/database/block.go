package database

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/xorcoin/node/foundation/blockchain/codec"
	"github.com/xorcoin/node/foundation/blockchain/merkle"
	"github.com/xorcoin/node/foundation/blockchain/signature"
)

// MedianTimePastWindow is how many of the most recent blocks' timestamps
// are considered when computing the median a new block's timestamp must
// exceed (§4.6 step 1).
const MedianTimePastWindow = 11

// MedianTimestamp returns the median of timestamps, sorted ascending by
// the caller's choice of order (the function sorts its own copy). An empty
// slice yields 0, letting callers treat a chain with no history yet (just
// genesis) as having no median-time-past constraint.
func MedianTimestamp(timestamps []uint64) uint64 {
	if len(timestamps) == 0 {
		return 0
	}

	sorted := make([]uint64, len(timestamps))
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return sorted[len(sorted)/2]
}

// ErrChainForked is returned from ValidateBlock if a proposed block's height
// is three or more past our tip (two or more past the next expected height)
// — a signal to resync rather than to keep validating block by block.
var ErrChainForked = errors.New("blockchain forked, start resync")

// HeaderSize is the fixed encoded size of a BlockHeader: version(4) +
// prev_hash(32) + merkle_root(32) + timestamp(8) + bits(4) + nonce(8).
const HeaderSize = 4 + 32 + 32 + 8 + 4 + 8

// =============================================================================

// BlockHeader carries everything needed to verify proof-of-work and chain
// linkage without the transaction bodies (§3).
type BlockHeader struct {
	Version    uint32
	PrevHash   [32]byte
	MerkleRoot [32]byte
	Timestamp  uint64
	Bits       uint32
	Nonce      uint64
}

// Encode renders the header's canonical fixed-width form. This is what gets
// double-hashed for the block hash and what the wire protocol ships.
func (h BlockHeader) Encode() []byte {
	w := codec.NewWriter(HeaderSize)
	w.PutUint32(h.Version)
	w.PutBytes(h.PrevHash[:])
	w.PutBytes(h.MerkleRoot[:])
	w.PutUint64(h.Timestamp)
	w.PutUint32(h.Bits)
	w.PutUint64(h.Nonce)
	return w.Bytes()
}

// DecodeBlockHeader parses a header from its canonical fixed-width form.
func DecodeBlockHeader(b []byte) (BlockHeader, error) {
	r := codec.NewReader(b)

	version, err := r.GetUint32()
	if err != nil {
		return BlockHeader{}, err
	}
	prevHash, err := r.GetBytes(32)
	if err != nil {
		return BlockHeader{}, err
	}
	merkleRoot, err := r.GetBytes(32)
	if err != nil {
		return BlockHeader{}, err
	}
	timestamp, err := r.GetUint64()
	if err != nil {
		return BlockHeader{}, err
	}
	bits, err := r.GetUint32()
	if err != nil {
		return BlockHeader{}, err
	}
	nonce, err := r.GetUint64()
	if err != nil {
		return BlockHeader{}, err
	}
	if !r.Exhausted() {
		return BlockHeader{}, fmt.Errorf("%w: trailing bytes after header", errCodecTrailingBytes)
	}

	var h BlockHeader
	h.Version = version
	copy(h.PrevHash[:], prevHash)
	copy(h.MerkleRoot[:], merkleRoot)
	h.Timestamp = timestamp
	h.Bits = bits
	h.Nonce = nonce
	return h, nil
}

// Hash returns the double-SHA-256 of the header's canonical encoding (§3).
func (h BlockHeader) Hash() [32]byte {
	var out [32]byte
	copy(out[:], signature.Hash256(h.Encode()))
	return out
}

// =============================================================================

// Block is a group of transactions batched together, the first of which
// must be coinbase (§3).
type Block struct {
	Header       BlockHeader
	Height       uint64
	Transactions *merkle.Tree[Transaction]
}

// POWArgs bundles what POW needs to assemble and mine a candidate
// block, since the UTXO block header carries more fields (bits, merkle
// root) than a flat parameter list can stay readable with.
type POWArgs struct {
	Version    uint32
	Height     uint64
	PrevHash   [32]byte
	Bits       uint32
	Trans      []Transaction
	EvHandler  func(v string, args ...any)
}

// POW constructs a candidate block from trans and searches for a nonce that
// satisfies the difficulty target in args.Bits (§4.7).
func POW(ctx context.Context, args POWArgs) (Block, error) {
	tree, err := merkle.NewTree(args.Trans)
	if err != nil {
		return Block{}, err
	}

	var merkleRoot [32]byte
	copy(merkleRoot[:], tree.MerkleRoot)

	nb := Block{
		Header: BlockHeader{
			Version:    args.Version,
			PrevHash:   args.PrevHash,
			MerkleRoot: merkleRoot,
			Timestamp:  uint64(time.Now().UTC().Unix()),
			Bits:       args.Bits,
			Nonce:      0,
		},
		Height:       args.Height,
		Transactions: tree,
	}

	if err := nb.performPOW(ctx, args.EvHandler); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// cancelCheckInterval is how often the nonce search checks ctx for
// cancellation, per §4.7's "at least once per 2^16 nonces".
const cancelCheckInterval = 1 << 16

// performPOW searches the nonce space until the header hash satisfies the
// target, or ctx is cancelled because the chain tip advanced underneath it.
func (b *Block) performPOW(ctx context.Context, ev func(v string, args ...any)) error {
	ev("worker: performPOW: MINING: started: height[%d] bits[%08x]", b.Height, b.Header.Bits)
	defer ev("worker: performPOW: MINING: completed: height[%d]", b.Height)

	target := CompactToTarget(b.Header.Bits)

	var attempts uint64
	for {
		attempts++
		if attempts%cancelCheckInterval == 0 {
			if ctx.Err() != nil {
				ev("worker: performPOW: MINING: cancelled: height[%d] attempts[%d]", b.Height, attempts)
				return ctx.Err()
			}
			// Nonce space exhausted in this batch without a solution; bump
			// the timestamp so the header changes and the search can
			// continue (§4.7 step 5).
			b.Header.Timestamp = uint64(time.Now().UTC().Unix())
		}

		hash := b.Header.Hash()
		if HashMeetsTarget(hash, target) {
			ev("worker: performPOW: MINING: solved: height[%d] attempts[%d] hash[%x]", b.Height, attempts, hash)
			return nil
		}

		b.Header.Nonce++
	}
}

// ValidateBlock performs the header/structure checks that depend only on
// this block, its immediate parent, and the timestamps of up to the last
// MedianTimePastWindow blocks (§4.6 steps 1-2). Chain-level checks that need
// the rest of the chain history — the difficulty schedule, coinbase value
// against subsidy+fees — are layered on top by foundation/blockchain/state,
// which runs them before handing the block to Database.ApplyBlock, which calls
// this. recentTimestamps holds the previous blocks'
// timestamps, most-recent first, capped at MedianTimePastWindow entries; an
// empty slice skips the median check rather than treating it as a
// guaranteed failure.
func (b Block) ValidateBlock(previousBlock Block, recentTimestamps []uint64, ev func(v string, args ...any)) error {
	ev("state: ValidateBlock: blk[%d]: check: chain is not forked", b.Height)

	nextHeight := previousBlock.Height + 1
	if b.Height >= nextHeight+2 {
		return ErrChainForked
	}

	ev("state: ValidateBlock: blk[%d]: check: block number is the next number", b.Height)

	if b.Height != nextHeight {
		return fmt.Errorf("this block is not the next height, got %d, exp %d", b.Height, nextHeight)
	}

	ev("state: ValidateBlock: blk[%d]: check: parent hash matches parent block", b.Height)

	if b.Header.PrevHash != previousBlock.Header.Hash() {
		return fmt.Errorf("parent hash doesn't match our known parent, got %x, exp %x", b.Header.PrevHash, previousBlock.Header.Hash())
	}

	ev("state: ValidateBlock: blk[%d]: check: proof of work is solved", b.Height)

	target := CompactToTarget(b.Header.Bits)
	if !HashMeetsTarget(b.Header.Hash(), target) {
		return fmt.Errorf("%x invalid proof of work for bits %08x", b.Header.Hash(), b.Header.Bits)
	}

	if previousBlock.Header.Timestamp > 0 {
		ev("state: ValidateBlock: blk[%d]: check: timestamp is after parent block", b.Height)

		if b.Header.Timestamp <= previousBlock.Header.Timestamp {
			return fmt.Errorf("block timestamp is not after parent block, parent %d, block %d", previousBlock.Header.Timestamp, b.Header.Timestamp)
		}
	}

	if median := MedianTimestamp(recentTimestamps); median > 0 {
		ev("state: ValidateBlock: blk[%d]: check: timestamp is after median-time-past", b.Height)

		if b.Header.Timestamp <= median {
			return fmt.Errorf("block timestamp is not after median-time-past, median %d, block %d", median, b.Header.Timestamp)
		}
	}

	maxFuture := uint64(time.Now().UTC().Add(2 * time.Hour).Unix())
	if b.Header.Timestamp > maxFuture {
		return fmt.Errorf("block timestamp too far in the future, got %d, max %d", b.Header.Timestamp, maxFuture)
	}

	ev("state: ValidateBlock: blk[%d]: check: merkle root matches transactions", b.Height)

	var gotRoot [32]byte
	copy(gotRoot[:], b.Transactions.MerkleRoot)
	if gotRoot != b.Header.MerkleRoot {
		return fmt.Errorf("merkle root does not match transactions, got %x, exp %x", gotRoot, b.Header.MerkleRoot)
	}

	txs := b.Transactions.Values()
	if len(txs) == 0 || !txs[0].IsCoinbase() {
		return errors.New("first transaction in block must be coinbase")
	}
	for i, tx := range txs[1:] {
		if tx.IsCoinbase() {
			return fmt.Errorf("transaction %d is coinbase-shaped but is not the first transaction", i+1)
		}
	}

	return nil
}

// =============================================================================

// CompactToTarget expands a compact ("bits") difficulty representation into
// the numeric target a header hash must not exceed, using the same
// exponent/mantissa scheme as Bitcoin's nBits (§3, §6).
func CompactToTarget(bits uint32) *big.Int {
	exponent := bits >> 24
	mantissa := bits & 0x007fffff

	target := new(big.Int).SetUint64(uint64(mantissa))
	if exponent <= 3 {
		shift := uint((3 - exponent) * 8)
		return target.Rsh(target, shift)
	}

	shift := uint((exponent - 3) * 8)
	return target.Lsh(target, shift)
}

// TargetToCompact collapses a numeric target back into its compact
// representation, the inverse of CompactToTarget, used by the difficulty
// retarget in foundation/blockchain/state.
func TargetToCompact(target *big.Int) uint32 {
	b := target.Bytes()
	if len(b) == 0 {
		return 0
	}

	exponent := uint32(len(b))
	var mantissa uint32

	switch {
	case len(b) >= 3:
		mantissa = uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	case len(b) == 2:
		mantissa = uint32(b[0])<<16 | uint32(b[1])<<8
	default:
		mantissa = uint32(b[0]) << 16
	}

	// If the mantissa's high bit would be read as a sign bit, shift right a
	// byte and bump the exponent so the compact form round-trips unsigned.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	return exponent<<24 | mantissa
}

// HashMeetsTarget reports whether hash, read as a big-endian integer,
// satisfies hash <= target.
func HashMeetsTarget(hash [32]byte, target *big.Int) bool {
	h := new(big.Int).SetBytes(hash[:])
	return h.Cmp(target) <= 0
}

// =============================================================================

// BlockData is the flat, serializer-facing envelope persisted to disk by a
// Serializer implementation — the boundary between the merkle-tree-backed
// in-memory Block and whatever storage format a Serializer chooses.
type BlockData struct {
	Hash   [32]byte
	Header BlockHeader
	Height uint64
	Trans  []Transaction
}

// NewBlockData flattens a Block for persistence.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:   block.Header.Hash(),
		Header: block.Header,
		Height: block.Height,
		Trans:  block.Transactions.Values(),
	}
}

// ToBlock reconstructs a Block (rebuilding its merkle tree) from a
// persisted BlockData.
func ToBlock(bd BlockData) (Block, error) {
	tree, err := merkle.NewTree(bd.Trans)
	if err != nil {
		return Block{}, err
	}

	return Block{
		Header:       bd.Header,
		Height:       bd.Height,
		Transactions: tree,
	}, nil
}
