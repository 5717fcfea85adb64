package p2p

import (
	"fmt"

	"github.com/xorcoin/node/foundation/blockchain/codec"
	"github.com/xorcoin/node/foundation/blockchain/database"
)

// encodeBlock renders block as header || height || varint(tx count) ||
// each transaction's full-form encoding, the payload shape CmdBlock carries
// over the wire.
func encodeBlock(block database.Block) ([]byte, error) {
	txs := block.Transactions.Values()

	w := codec.NewWriter(database.HeaderSize + 8 + 4)
	w.PutBytes(block.Header.Encode())
	w.PutUint64(block.Height)
	w.PutVarInt(uint64(len(txs)))

	for _, tx := range txs {
		full, err := tx.EncodeFull()
		if err != nil {
			return nil, fmt.Errorf("%w: encode transaction: %s", ErrProtocol, err)
		}
		w.PutVarBytes(full)
	}

	return w.Bytes(), nil
}

// decodeBlock parses a block payload produced by encodeBlock.
func decodeBlock(b []byte) (database.Block, error) {
	r := codec.NewReader(b)

	headerBytes, err := r.GetBytes(database.HeaderSize)
	if err != nil {
		return database.Block{}, err
	}
	header, err := database.DecodeBlockHeader(headerBytes)
	if err != nil {
		return database.Block{}, err
	}

	height, err := r.GetUint64()
	if err != nil {
		return database.Block{}, err
	}

	n, err := r.GetVarInt()
	if err != nil {
		return database.Block{}, err
	}

	trans := make([]database.Transaction, 0, n)
	for i := uint64(0); i < n; i++ {
		full, err := r.GetVarBytes()
		if err != nil {
			return database.Block{}, err
		}
		tx, err := database.DecodeTransaction(full)
		if err != nil {
			return database.Block{}, err
		}
		trans = append(trans, tx)
	}

	if !r.Exhausted() {
		return database.Block{}, fmt.Errorf("%w: trailing bytes in block payload", ErrProtocol)
	}

	return database.ToBlock(database.BlockData{
		Header: header,
		Height: height,
		Trans:  trans,
	})
}
