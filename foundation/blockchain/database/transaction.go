package database

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/xorcoin/node/foundation/blockchain/codec"
	"github.com/xorcoin/node/foundation/blockchain/signature"
)

// ErrCoinbaseOutsideBlock is returned when a coinbase-shaped transaction
// (zero inputs) is validated as a standalone mempool candidate.
var ErrCoinbaseOutsideBlock = errors.New("transaction: coinbase transaction outside of a block")

// errCodecTrailingBytes flags a decode that left unconsumed bytes behind —
// always a bug upstream (a length field lying about the encoding), never a
// legitimate multi-record buffer at this layer.
var errCodecTrailingBytes = errors.New("transaction: trailing bytes")

// OutPointSize is the fixed encoded size of an OutPoint: a 32-byte txid
// followed by a 4-byte little-endian output index.
const OutPointSize = 32 + 4

// OutPoint identifies a specific output of a specific transaction.
type OutPoint struct {
	TxID [32]byte
	Vout uint32
}

// String renders an OutPoint the way log lines and error messages want it:
// hex txid, colon, index.
func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", hex.EncodeToString(o.TxID[:]), o.Vout)
}

func (o OutPoint) encode(w *codec.Writer) {
	w.PutBytes(o.TxID[:])
	w.PutUint32(o.Vout)
}

func decodeOutPoint(r *codec.Reader) (OutPoint, error) {
	txid, err := r.GetBytes(32)
	if err != nil {
		return OutPoint{}, err
	}

	vout, err := r.GetUint32()
	if err != nil {
		return OutPoint{}, err
	}

	var op OutPoint
	copy(op.TxID[:], txid)
	op.Vout = vout
	return op, nil
}

// =============================================================================

// TxOutput is a spendable amount locked to a single address. Immutable once
// created.
type TxOutput struct {
	Amount       uint64
	ScriptPubKey string // base58check address (spec §3, §4.1)
}

func (o TxOutput) encode(w *codec.Writer) error {
	pkHash, err := signature.PubKeyHashFromAddress(o.ScriptPubKey)
	if err != nil {
		return fmt.Errorf("transaction: encode output: %w", err)
	}

	w.PutUint64(o.Amount)
	w.PutBytes(pkHash)
	return nil
}

func decodeTxOutput(r *codec.Reader) (TxOutput, error) {
	amount, err := r.GetUint64()
	if err != nil {
		return TxOutput{}, err
	}

	pkHash, err := r.GetBytes(20)
	if err != nil {
		return TxOutput{}, err
	}

	return TxOutput{
		Amount:       amount,
		ScriptPubKey: signature.AddressFromPubKeyHash(pkHash),
	}, nil
}

// =============================================================================

// TxInput spends a previous output. Its Signature covers the sighash of the
// enclosing transaction (§4.3); Sequence carries no consensus meaning beyond
// canonical encoding in this implementation (relative-locktime is a
// Non-goal).
type TxInput struct {
	Prev      OutPoint
	Signature []byte
	Pubkey    []byte
	Sequence  uint32
}

func (in TxInput) encodeFull(w *codec.Writer) {
	in.Prev.encode(w)
	w.PutVarBytes(in.Signature)
	w.PutVarBytes(in.Pubkey)
	w.PutUint32(in.Sequence)
}

// encodeSighash writes only the prev OutPoint and sequence, per spec §4.2's
// sighash form: signature and pubkey never enter the digest that is signed,
// which is also the transaction's txid (§3).
func (in TxInput) encodeSighash(w *codec.Writer) {
	in.Prev.encode(w)
	w.PutUint32(in.Sequence)
}

func decodeTxInputFull(r *codec.Reader) (TxInput, error) {
	prev, err := decodeOutPoint(r)
	if err != nil {
		return TxInput{}, err
	}

	sig, err := r.GetVarBytes()
	if err != nil {
		return TxInput{}, err
	}

	pubkey, err := r.GetVarBytes()
	if err != nil {
		return TxInput{}, err
	}

	sequence, err := r.GetUint32()
	if err != nil {
		return TxInput{}, err
	}

	return TxInput{Prev: prev, Signature: sig, Pubkey: pubkey, Sequence: sequence}, nil
}

// =============================================================================

// Transaction moves value between UTXOs. A transaction with zero inputs is a
// coinbase (§3); coinbase-specific rules are enforced by block validation,
// never by standalone transaction validation.
type Transaction struct {
	Version  uint32
	ChainID  uint32
	Inputs   []TxInput
	Outputs  []TxOutput
	Locktime uint32
}

// IsCoinbase reports whether tx has no inputs, the defining shape of a
// coinbase transaction (§3).
func (tx Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 0
}

// EncodeFull renders the wire/storage form: every input's signature and
// pubkey included (§4.2).
func (tx Transaction) EncodeFull() ([]byte, error) {
	w := codec.NewWriter(128)

	w.PutUint32(tx.Version)
	w.PutUint32(tx.ChainID)

	w.PutVarInt(uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		in.encodeFull(w)
	}

	w.PutVarInt(uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		if err := out.encode(w); err != nil {
			return nil, err
		}
	}

	w.PutUint32(tx.Locktime)

	return w.Bytes(), nil
}

// EncodeSighash renders the sighash form: every input reduced to its prev
// OutPoint and sequence, signature and pubkey excluded (§4.2, §4.3). This is
// both the digest every input signs and, hashed once more, the transaction's
// txid (§3) — a transaction has exactly one sighash regardless of which
// input is under signature.
func (tx Transaction) EncodeSighash() ([]byte, error) {
	w := codec.NewWriter(128)

	w.PutUint32(tx.Version)
	w.PutUint32(tx.ChainID)

	w.PutVarInt(uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		in.encodeSighash(w)
	}

	w.PutVarInt(uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		if err := out.encode(w); err != nil {
			return nil, err
		}
	}

	w.PutUint32(tx.Locktime)

	return w.Bytes(), nil
}

// DecodeTransaction parses the full wire/storage form produced by EncodeFull.
func DecodeTransaction(b []byte) (Transaction, error) {
	r := codec.NewReader(b)

	version, err := r.GetUint32()
	if err != nil {
		return Transaction{}, err
	}

	chainID, err := r.GetUint32()
	if err != nil {
		return Transaction{}, err
	}

	inCount, err := r.GetVarInt()
	if err != nil {
		return Transaction{}, err
	}
	inputs := make([]TxInput, 0, inCount)
	for i := uint64(0); i < inCount; i++ {
		in, err := decodeTxInputFull(r)
		if err != nil {
			return Transaction{}, err
		}
		inputs = append(inputs, in)
	}

	outCount, err := r.GetVarInt()
	if err != nil {
		return Transaction{}, err
	}
	outputs := make([]TxOutput, 0, outCount)
	for i := uint64(0); i < outCount; i++ {
		out, err := decodeTxOutput(r)
		if err != nil {
			return Transaction{}, err
		}
		outputs = append(outputs, out)
	}

	locktime, err := r.GetUint32()
	if err != nil {
		return Transaction{}, err
	}

	if !r.Exhausted() {
		return Transaction{}, fmt.Errorf("%w: trailing bytes after transaction", errCodecTrailingBytes)
	}

	return Transaction{
		Version:  version,
		ChainID:  chainID,
		Inputs:   inputs,
		Outputs:  outputs,
		Locktime: locktime,
	}, nil
}

// TxIDBytes returns the raw 32-byte txid: hash256 of the sighash-form
// encoding (§3).
func (tx Transaction) TxIDBytes() ([32]byte, error) {
	sighash, err := tx.EncodeSighash()
	if err != nil {
		return [32]byte{}, err
	}

	var id [32]byte
	copy(id[:], signature.Hash256(sighash))
	return id, nil
}

// TxID returns the hex-encoded txid.
func (tx Transaction) TxID() (string, error) {
	id, err := tx.TxIDBytes()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(id[:]), nil
}

// Hash implements merkle.Hashable[Transaction] for the block's transaction
// tree: the leaf hash is the txid.
func (tx Transaction) Hash() ([]byte, error) {
	id, err := tx.TxIDBytes()
	if err != nil {
		return nil, err
	}
	return id[:], nil
}

// Equals implements merkle.Hashable[Transaction]. Two transactions with the
// same txid are the same transaction; the txid deliberately excludes
// signatures so this is also malleability-resistant.
func (tx Transaction) Equals(other Transaction) bool {
	id, err := tx.TxIDBytes()
	if err != nil {
		return false
	}
	otherID, err := other.TxIDBytes()
	if err != nil {
		return false
	}
	return id == otherID
}

// SighashBytes returns hash256(sighash form), the digest every input signs
// (§4.1, §4.3). It is identical to TxIDBytes; the separate name documents
// the two call sites' distinct intent (signing vs identity).
func (tx Transaction) SighashBytes() ([32]byte, error) {
	return tx.TxIDBytes()
}
