// Package validate implements transaction validation against a UTXO view
// (§4.3): the one place both Mempool admission and block acceptance route
// through so the two never drift on what counts as a spendable, correctly
// signed, value-conserving transaction.
package validate

import (
	"errors"
	"fmt"

	"github.com/xorcoin/node/foundation/blockchain/database"
	"github.com/xorcoin/node/foundation/blockchain/genesis"
	"github.com/xorcoin/node/foundation/blockchain/signature"
)

// Sentinel errors, one per §4.3 rejection reason. Callers that need to
// distinguish them use errors.Is; the wrapped message carries the detail.
var (
	ErrStructure           = errors.New("validate: structurally invalid transaction")
	ErrCoinbaseOutsideBlock = database.ErrCoinbaseOutsideBlock
	ErrInputMissing        = database.ErrOutPointMissing
	ErrDoubleSpend         = errors.New("validate: input already spent")
	ErrImmatureCoinbase    = errors.New("validate: spends a coinbase output before maturity")
	ErrBadSignature        = errors.New("validate: signature does not verify")
	ErrNegativeFee         = errors.New("validate: outputs exceed inputs")
	ErrWrongChain          = errors.New("validate: chain_id mismatch")
)

// View is the minimal read surface Transaction needs from a UTXO view —
// satisfied by both *database.UTXOSet and *database.View, so the same
// validation logic runs against the live set or any layered overlay
// (mempool, in-block) without caring which.
type View interface {
	Get(op database.OutPoint) (database.UTXOEntry, bool)
}

// Transaction runs every §4.3 check against tx, given the view it should
// resolve inputs through, the height the transaction would be confirmed at,
// and the node's chain_id (replay protection). On success it returns the
// fee the transaction pays.
func Transaction(tx database.Transaction, view View, height uint64, chainID uint32) (uint64, error) {
	if err := structural(tx, chainID); err != nil {
		return 0, err
	}

	if tx.IsCoinbase() {
		return 0, ErrCoinbaseOutsideBlock
	}

	sighash, err := tx.SighashBytes()
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrStructure, err)
	}

	var inputTotal uint64
	seen := make(map[database.OutPoint]bool, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if seen[in.Prev] {
			return 0, fmt.Errorf("%w: %s spent twice in the same transaction", ErrDoubleSpend, in.Prev)
		}
		seen[in.Prev] = true

		entry, ok := view.Get(in.Prev)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrInputMissing, in.Prev)
		}

		if entry.IsCoinbase && height-entry.Height < genesis.CoinbaseMaturity {
			return 0, fmt.Errorf("%w: output matures at height %d, spent at %d", ErrImmatureCoinbase, entry.Height+genesis.CoinbaseMaturity, height)
		}

		if err := verifyInput(in, entry.Output, sighash); err != nil {
			return 0, err
		}

		inputTotal += entry.Output.Amount
	}

	var outputTotal uint64
	for _, out := range tx.Outputs {
		outputTotal += out.Amount
	}

	if outputTotal > inputTotal {
		return 0, fmt.Errorf("%w: inputs %d outputs %d", ErrNegativeFee, inputTotal, outputTotal)
	}

	return inputTotal - outputTotal, nil
}

// structural enforces §4.3 step 1, independent of any UTXO lookup.
func structural(tx database.Transaction, chainID uint32) error {
	if tx.ChainID != chainID {
		return fmt.Errorf("%w: tx chain_id %d, node chain_id %d", ErrWrongChain, tx.ChainID, chainID)
	}

	if len(tx.Outputs) == 0 {
		return fmt.Errorf("%w: no outputs", ErrStructure)
	}

	var total uint64
	for _, out := range tx.Outputs {
		if out.Amount > genesis.MaxMoney {
			return fmt.Errorf("%w: output amount %d exceeds MaxMoney", ErrStructure, out.Amount)
		}
		total += out.Amount
		if total > genesis.MaxMoney {
			return fmt.Errorf("%w: total output exceeds MaxMoney", ErrStructure)
		}
	}

	full, err := tx.EncodeFull()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrStructure, err)
	}
	if len(full) > genesis.MaxTxSize {
		return fmt.Errorf("%w: serialized size %d exceeds MaxTxSize", ErrStructure, len(full))
	}

	return nil
}

// verifyInput checks that in's pubkey hashes to out's script_pubkey address
// and that its signature verifies against sighash (§4.3 step 5).
func verifyInput(in database.TxInput, out database.TxOutput, sighash [32]byte) error {
	pub, err := signature.PublicKeyFromBytes(in.Pubkey)
	if err != nil {
		return fmt.Errorf("%w: bad pubkey: %s", ErrBadSignature, err)
	}

	if pub.Address() != out.ScriptPubKey {
		return fmt.Errorf("%w: pubkey does not match script_pubkey", ErrBadSignature)
	}

	ok, err := signature.Verify(pub, sighash[:], in.Signature)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBadSignature, err)
	}
	if !ok {
		return ErrBadSignature
	}

	return nil
}
