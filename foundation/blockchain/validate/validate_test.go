package validate_test

import (
	"errors"
	"testing"

	"github.com/xorcoin/node/foundation/blockchain/database"
	"github.com/xorcoin/node/foundation/blockchain/genesis"
	"github.com/xorcoin/node/foundation/blockchain/merkle"
	"github.com/xorcoin/node/foundation/blockchain/signature"
	"github.com/xorcoin/node/foundation/blockchain/validate"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// seedEntry drops a single spendable coinbase-style entry straight into a
// fresh UTXOSet at height, without needing to mine or apply a real block.
func seedEntry(t *testing.T, amount uint64, addr string, height uint64) (*database.UTXOSet, database.OutPoint) {
	t.Helper()

	coinbase := database.Transaction{
		Version: 1,
		ChainID: 1,
		Outputs: []database.TxOutput{{Amount: amount, ScriptPubKey: addr}},
	}

	tree, err := merkle.NewTree([]database.Transaction{coinbase})
	if err != nil {
		t.Fatalf("%s\tShould be able to build a merkle tree: %v", failed, err)
	}

	txid, err := coinbase.TxIDBytes()
	if err != nil {
		t.Fatalf("%s\tShould be able to compute a txid: %v", failed, err)
	}

	utxo := database.NewUTXOSet()
	block := database.Block{
		Header:       database.BlockHeader{},
		Height:       height,
		Transactions: tree,
	}
	if _, err := utxo.ApplyBlock(block); err != nil {
		t.Fatalf("%s\tShould be able to seed the UTXO set: %v", failed, err)
	}

	return utxo, database.OutPoint{TxID: txid, Vout: 0}
}

func signSpend(t *testing.T, priv signature.PrivateKey, pub signature.PublicKey, prev database.OutPoint, amount uint64, toAddr string) database.Transaction {
	t.Helper()

	tx := database.Transaction{
		Version: 1,
		ChainID: 1,
		Inputs:  []database.TxInput{{Prev: prev, Sequence: 0xffffffff}},
		Outputs: []database.TxOutput{{Amount: amount, ScriptPubKey: toAddr}},
	}

	digest, err := tx.SighashBytes()
	if err != nil {
		t.Fatalf("%s\tShould be able to compute sighash: %v", failed, err)
	}

	sig, err := signature.Sign(priv, digest[:])
	if err != nil {
		t.Fatalf("%s\tShould be able to sign: %v", failed, err)
	}

	tx.Inputs[0].Signature = sig
	tx.Inputs[0].Pubkey = pub.Bytes()

	return tx
}

func Test_TransactionAcceptsValidSpend(t *testing.T) {
	t.Log("Given the need to validate a correctly signed, value-conserving spend.")
	{
		priv, pub, addr, err := signature.GenerateKeyPair()
		if err != nil {
			t.Fatalf("%s\tShould be able to generate a keypair: %v", failed, err)
		}

		utxo, prev := seedEntry(t, 100_000, addr, 1000)
		tx := signSpend(t, priv, pub, prev, 60_000, addr)

		fee, err := validate.Transaction(tx, utxo, 1101, 1)
		if err != nil {
			t.Fatalf("%s\tShould accept a valid spend: %v", failed, err)
		}
		t.Logf("%s\tShould accept a valid spend.", success)

		if fee != 40_000 {
			t.Fatalf("%s\tShould report the fee as inputs minus outputs, got %d", failed, fee)
		}
		t.Logf("%s\tShould report the fee as inputs minus outputs.", success)
	}
}

func Test_TransactionRejectsCoinbase(t *testing.T) {
	t.Log("Given the need to reject a coinbase transaction submitted outside a block.")
	{
		tx := database.Transaction{
			Version: 1,
			ChainID: 1,
			Outputs: []database.TxOutput{{Amount: 1, ScriptPubKey: "someone"}},
		}

		utxo := database.NewUTXOSet()
		if _, err := validate.Transaction(tx, utxo, 1, 1); !errors.Is(err, validate.ErrCoinbaseOutsideBlock) {
			t.Fatalf("%s\tShould reject a coinbase-shaped transaction, got %v", failed, err)
		}
		t.Logf("%s\tShould reject a coinbase-shaped transaction.", success)
	}
}

func Test_TransactionRejectsWrongChainID(t *testing.T) {
	t.Log("Given the need to reject a transaction built for a different chain.")
	{
		priv, pub, addr, err := signature.GenerateKeyPair()
		if err != nil {
			t.Fatalf("%s\tShould be able to generate a keypair: %v", failed, err)
		}

		utxo, prev := seedEntry(t, 100_000, addr, 1000)
		tx := signSpend(t, priv, pub, prev, 50_000, addr)
		tx.ChainID = 2

		if _, err := validate.Transaction(tx, utxo, 1101, 1); !errors.Is(err, validate.ErrWrongChain) {
			t.Fatalf("%s\tShould reject a transaction carrying the wrong chain_id, got %v", failed, err)
		}
		t.Logf("%s\tShould reject a transaction carrying the wrong chain_id.", success)
	}
}

func Test_TransactionRejectsMissingInput(t *testing.T) {
	t.Log("Given the need to reject a transaction spending a nonexistent output.")
	{
		priv, pub, addr, err := signature.GenerateKeyPair()
		if err != nil {
			t.Fatalf("%s\tShould be able to generate a keypair: %v", failed, err)
		}

		utxo := database.NewUTXOSet()
		bogus := database.OutPoint{TxID: [32]byte{0xaa}, Vout: 0}
		tx := signSpend(t, priv, pub, bogus, 1, addr)

		if _, err := validate.Transaction(tx, utxo, 1, 1); !errors.Is(err, validate.ErrInputMissing) {
			t.Fatalf("%s\tShould reject a transaction spending a nonexistent output, got %v", failed, err)
		}
		t.Logf("%s\tShould reject a transaction spending a nonexistent output.", success)
	}
}

func Test_TransactionRejectsDoubleSpendWithinSameTransaction(t *testing.T) {
	t.Log("Given the need to reject a transaction that spends the same output twice.")
	{
		priv, pub, addr, err := signature.GenerateKeyPair()
		if err != nil {
			t.Fatalf("%s\tShould be able to generate a keypair: %v", failed, err)
		}

		utxo, prev := seedEntry(t, 100_000, addr, 1000)

		tx := database.Transaction{
			Version: 1,
			ChainID: 1,
			Inputs: []database.TxInput{
				{Prev: prev, Sequence: 0xffffffff},
				{Prev: prev, Sequence: 0xffffffff},
			},
			Outputs: []database.TxOutput{{Amount: 50_000, ScriptPubKey: addr}},
		}

		digest, err := tx.SighashBytes()
		if err != nil {
			t.Fatalf("%s\tShould be able to compute sighash: %v", failed, err)
		}
		sig, err := signature.Sign(priv, digest[:])
		if err != nil {
			t.Fatalf("%s\tShould be able to sign: %v", failed, err)
		}
		for i := range tx.Inputs {
			tx.Inputs[i].Signature = sig
			tx.Inputs[i].Pubkey = pub.Bytes()
		}

		if _, err := validate.Transaction(tx, utxo, 1101, 1); !errors.Is(err, validate.ErrDoubleSpend) {
			t.Fatalf("%s\tShould reject a transaction spending the same outpoint twice, got %v", failed, err)
		}
		t.Logf("%s\tShould reject a transaction spending the same outpoint twice.", success)
	}
}

func Test_TransactionRejectsImmatureCoinbaseSpend(t *testing.T) {
	t.Log("Given the need to reject a spend of a coinbase output before it matures.")
	{
		priv, pub, addr, err := signature.GenerateKeyPair()
		if err != nil {
			t.Fatalf("%s\tShould be able to generate a keypair: %v", failed, err)
		}

		utxo, prev := seedEntry(t, 100_000, addr, 1000)
		tx := signSpend(t, priv, pub, prev, 50_000, addr)

		// Confirming height 1000 + genesis.CoinbaseMaturity - 1 is still one
		// confirmation short of maturity.
		confirmHeight := uint64(1000 + genesis.CoinbaseMaturity - 1)
		if _, err := validate.Transaction(tx, utxo, confirmHeight, 1); !errors.Is(err, validate.ErrImmatureCoinbase) {
			t.Fatalf("%s\tShould reject a spend of an immature coinbase output, got %v", failed, err)
		}
		t.Logf("%s\tShould reject a spend of an immature coinbase output.", success)
	}
}

func Test_TransactionRejectsBadSignature(t *testing.T) {
	t.Log("Given the need to reject a transaction signed with the wrong key.")
	{
		_, _, addr, err := signature.GenerateKeyPair()
		if err != nil {
			t.Fatalf("%s\tShould be able to generate a keypair: %v", failed, err)
		}
		wrongPriv, wrongPub, _, err := signature.GenerateKeyPair()
		if err != nil {
			t.Fatalf("%s\tShould be able to generate a second keypair: %v", failed, err)
		}

		utxo, prev := seedEntry(t, 100_000, addr, 1000)
		tx := signSpend(t, wrongPriv, wrongPub, prev, 50_000, addr)

		if _, err := validate.Transaction(tx, utxo, 1101, 1); !errors.Is(err, validate.ErrBadSignature) {
			t.Fatalf("%s\tShould reject a transaction signed with a key that doesn't own the output, got %v", failed, err)
		}
		t.Logf("%s\tShould reject a transaction signed with a key that doesn't own the output.", success)
	}
}

func Test_TransactionRejectsNegativeFee(t *testing.T) {
	t.Log("Given the need to reject a transaction whose outputs exceed its inputs.")
	{
		priv, pub, addr, err := signature.GenerateKeyPair()
		if err != nil {
			t.Fatalf("%s\tShould be able to generate a keypair: %v", failed, err)
		}

		utxo, prev := seedEntry(t, 100_000, addr, 1000)
		tx := signSpend(t, priv, pub, prev, 200_000, addr)

		if _, err := validate.Transaction(tx, utxo, 1101, 1); !errors.Is(err, validate.ErrNegativeFee) {
			t.Fatalf("%s\tShould reject a transaction that pays out more than it spends, got %v", failed, err)
		}
		t.Logf("%s\tShould reject a transaction that pays out more than it spends.", success)
	}
}
