package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/xorcoin/node/foundation/blockchain/database"
	"github.com/xorcoin/node/foundation/blockchain/genesis"
	"github.com/xorcoin/node/foundation/blockchain/validate"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are not enough transactions.
var ErrNoTransactions = errors.New("state: no transactions in mempool")

// ErrBadCoinbase is returned when a proposed block's coinbase output pays
// out more than the subsidy plus the fees its own transactions collect.
var ErrBadCoinbase = errors.New("state: coinbase pays out more than subsidy plus fees")

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can
// become the next block in the chain (§4.7).
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	if s.mempool.Count() == 0 {
		return database.Block{}, ErrNoTransactions
	}

	s.mu.RLock()
	tip := s.db.LatestBlock()
	s.mu.RUnlock()

	trans := s.mempool.SelectForBlock(genesis.MaxBlockSize)

	fees, err := s.feesCollected(trans, tip.Height+1)
	if err != nil {
		return database.Block{}, fmt.Errorf("mine: %w", err)
	}

	coinbase := database.Transaction{
		Version: 1,
		ChainID: s.genesis.ChainID,
		Outputs: []database.TxOutput{
			{Amount: genesis.Subsidy(tip.Height+1) + fees, ScriptPubKey: s.beneficiaryAddress},
		},
	}

	bits, err := s.nextBlockBits(tip)
	if err != nil {
		return database.Block{}, fmt.Errorf("mine: %w", err)
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW")

	block, err := database.POW(ctx, database.POWArgs{
		Version:   tip.Header.Version,
		Height:    tip.Height + 1,
		PrevHash:  tip.Header.Hash(),
		Bits:      bits,
		Trans:     append([]database.Transaction{coinbase}, trans...),
		EvHandler: s.evHandler,
	})
	if err != nil {
		return database.Block{}, err
	}

	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: validate and update database")

	if err := s.validateUpdateDatabase(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// ProcessProposedBlock takes a block received from a peer, validates it,
// and if that passes, adds the block to the local blockchain (§4.6).
func (s *State) ProcessProposedBlock(block database.Block) error {
	s.evHandler("state: ProcessProposedBlock: started: newBlk[%d]", block.Height)
	defer s.evHandler("state: ProcessProposedBlock: completed: newBlk[%d]", block.Height)

	if err := s.validateUpdateDatabase(block); err != nil {
		return err
	}

	// A mining attempt in progress is racing against a chain tip this block
	// just moved out from under it. Cancel it and wait for it to actually
	// stop before returning, so the caller never observes the old tip and
	// the in-flight mining attempt overlapping (§5).
	done := s.Worker.SignalCancelMining()
	defer func() {
		s.evHandler("state: ProcessProposedBlock: signal runMiningOperation to terminate")
		done()
	}()

	return nil
}

// =============================================================================

// feesCollected validates every non-coinbase transaction in trans against a
// view that accounts for spends and outputs created earlier in the same
// candidate set, and returns the sum of their fees. It is the same
// validation every pooled transaction already passed on admission
// (§4.3, §4.5), run again here because a block built from a stale mempool
// snapshot must never be trusted blindly.
func (s *State) feesCollected(trans []database.Transaction, height uint64) (uint64, error) {
	spent := make(map[database.OutPoint]bool)
	extra := make(map[database.OutPoint]database.UTXOEntry)

	var total uint64
	for _, tx := range trans {
		view := s.db.UTXOSet().SnapshotView(spent, extra)

		fee, err := validate.Transaction(tx, view, height, s.genesis.ChainID)
		if err != nil {
			return 0, err
		}
		total += fee

		for _, in := range tx.Inputs {
			spent[in.Prev] = true
		}
		txid, err := tx.TxIDBytes()
		if err != nil {
			return 0, err
		}
		for vout, out := range tx.Outputs {
			extra[database.OutPoint{TxID: txid, Vout: uint32(vout)}] = database.UTXOEntry{Output: out}
		}
	}

	return total, nil
}

// validateUpdateDatabase takes the block and validates it against the
// consensus rules (including the coinbase-value check layered on top of
// Block.ValidateBlock's intra-block checks). If the block passes, the
// node's state is updated: the block is written to disk, the UTXO set
// advances, and its transactions are purged from the mempool.
func (s *State) validateUpdateDatabase(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: validateUpdateDatabase: validate block")

	txs := block.Transactions.Values()
	if len(txs) == 0 {
		return errors.New("state: block has no transactions")
	}

	if tip := s.db.LatestBlock(); block.Height == tip.Height+1 {
		bits, err := s.nextBlockBits(tip)
		if err != nil {
			return fmt.Errorf("validate block bits: %w", err)
		}
		if block.Header.Bits != bits {
			return fmt.Errorf("block bits %08x do not match the difficulty schedule, exp %08x", block.Header.Bits, bits)
		}
	}

	fees, err := s.feesCollected(txs[1:], block.Height)
	if err != nil {
		return fmt.Errorf("validate block transactions: %w", err)
	}

	var coinbaseOut uint64
	for _, out := range txs[0].Outputs {
		coinbaseOut += out.Amount
	}
	if coinbaseOut > genesis.Subsidy(block.Height)+fees {
		return fmt.Errorf("%w: got %d, max %d", ErrBadCoinbase, coinbaseOut, genesis.Subsidy(block.Height)+fees)
	}

	s.evHandler("state: validateUpdateDatabase: write to disk")

	if err := s.db.ApplyBlock(block, s.evHandler); err != nil {
		return err
	}

	s.evHandler("state: validateUpdateDatabase: purge mined transactions from mempool")

	s.mempool.PurgeConfirmed(block)
	s.mempool.UpdateTipHeight(block.Height)

	s.blockEvent(block)

	return nil
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(block database.Block) {
	hash := block.Header.Hash()
	s.evHandler("viewer: block: height[%d] hash[%x] numTrans[%d]", block.Height, hash, len(block.Transactions.Values()))
}
