package mempool_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xorcoin/node/foundation/blockchain/database"
	"github.com/xorcoin/node/foundation/blockchain/mempool"
	"github.com/xorcoin/node/foundation/blockchain/merkle"
	"github.com/xorcoin/node/foundation/blockchain/signature"
	"github.com/xorcoin/node/foundation/blockchain/validate"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// seedUTXO builds a UTXOSet with a single spendable coinbase-style output
// paying amount to addr, and returns the OutPoint that spends it.
func seedUTXO(t *testing.T, amount uint64, addr string) (*database.UTXOSet, database.OutPoint) {
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
		Height:       0,
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

func Test_AddTransactionAcceptsSpendableInput(t *testing.T) {
	t.Log("Given the need to pool a valid transaction.")
	{
		priv, pub, addr, err := signature.GenerateKeyPair()
		if err != nil {
			t.Fatalf("%s\tShould be able to generate a keypair: %v", failed, err)
		}

		utxo, prev := seedUTXO(t, 100_000, addr)
		mp := mempool.New(utxo, 1)
		mp.UpdateTipHeight(1000)

		tx := signSpend(t, priv, pub, prev, 50_000, addr)

		count, err := mp.AddTransaction(tx)
		if err != nil {
			t.Fatalf("%s\tShould be able to pool the transaction: %v", failed, err)
		}
		t.Logf("%s\tShould be able to pool the transaction.", success)

		if count != 1 {
			t.Fatalf("%s\tShould have exactly one pooled transaction, got %d", failed, count)
		}
		t.Logf("%s\tShould have exactly one pooled transaction.", success)

		txid, err := tx.TxIDBytes()
		if err != nil {
			t.Fatalf("%s\tShould be able to compute the pooled txid: %v", failed, err)
		}
		if !mp.Has(txid) {
			t.Fatalf("%s\tShould report the pooled transaction as known.", failed)
		}
		t.Logf("%s\tShould report the pooled transaction as known.", success)
	}
}

func Test_AddTransactionRejectsDuplicate(t *testing.T) {
	t.Log("Given the need to reject a transaction already pooled.")
	{
		priv, pub, addr, err := signature.GenerateKeyPair()
		if err != nil {
			t.Fatalf("%s\tShould be able to generate a keypair: %v", failed, err)
		}

		utxo, prev := seedUTXO(t, 100_000, addr)
		mp := mempool.New(utxo, 1)
		mp.UpdateTipHeight(1000)

		tx := signSpend(t, priv, pub, prev, 50_000, addr)

		if _, err := mp.AddTransaction(tx); err != nil {
			t.Fatalf("%s\tShould be able to pool the transaction: %v", failed, err)
		}

		if _, err := mp.AddTransaction(tx); err == nil {
			t.Fatalf("%s\tShould reject an already-pooled transaction.", failed)
		}
		t.Logf("%s\tShould reject an already-pooled transaction.", success)
	}
}

func Test_AddTransactionRejectsConflictingSpend(t *testing.T) {
	t.Log("Given the need to reject a transaction double-spending a pooled input.")
	{
		priv, pub, addr, err := signature.GenerateKeyPair()
		if err != nil {
			t.Fatalf("%s\tShould be able to generate a keypair: %v", failed, err)
		}

		utxo, prev := seedUTXO(t, 100_000, addr)
		mp := mempool.New(utxo, 1)
		mp.UpdateTipHeight(1000)

		first := signSpend(t, priv, pub, prev, 40_000, addr)
		if _, err := mp.AddTransaction(first); err != nil {
			t.Fatalf("%s\tShould be able to pool the first transaction: %v", failed, err)
		}

		second := signSpend(t, priv, pub, prev, 30_000, addr)
		if _, err := mp.AddTransaction(second); err == nil {
			t.Fatalf("%s\tShould reject a transaction spending an already-pooled input.", failed)
		}
		t.Logf("%s\tShould reject a transaction spending an already-pooled input.", success)
	}
}

func Test_AddTransactionRejectsWrongChainID(t *testing.T) {
	t.Log("Given the need to reject a transaction built for a different chain.")
	{
		priv, pub, addr, err := signature.GenerateKeyPair()
		if err != nil {
			t.Fatalf("%s\tShould be able to generate a keypair: %v", failed, err)
		}

		utxo, prev := seedUTXO(t, 100_000, addr)
		mp := mempool.New(utxo, 1)
		mp.UpdateTipHeight(1000)

		tx := signSpend(t, priv, pub, prev, 50_000, addr)
		tx.ChainID = 2

		if _, err := mp.AddTransaction(tx); !errors.Is(err, validate.ErrWrongChain) {
			t.Fatalf("%s\tShould reject a transaction carrying the wrong chain_id, got %v", failed, err)
		}
		t.Logf("%s\tShould reject a transaction carrying the wrong chain_id.", success)
	}
}

func Test_AddTransactionRejectsUnresolvableInput(t *testing.T) {
	t.Log("Given the need to reject a transaction spending an unknown output.")
	{
		priv, pub, addr, err := signature.GenerateKeyPair()
		if err != nil {
			t.Fatalf("%s\tShould be able to generate a keypair: %v", failed, err)
		}

		utxo := database.NewUTXOSet()
		mp := mempool.New(utxo, 1)
		mp.UpdateTipHeight(1000)

		bogus := database.OutPoint{TxID: [32]byte{0xaa}, Vout: 0}
		tx := signSpend(t, priv, pub, bogus, 1, addr)

		if _, err := mp.AddTransaction(tx); err == nil {
			t.Fatalf("%s\tShould reject a transaction spending a nonexistent output.", failed)
		}
		t.Logf("%s\tShould reject a transaction spending a nonexistent output.", success)
	}
}

func Test_AddTransactionRejectsBelowMinRelayFee(t *testing.T) {
	t.Log("Given the need to reject a transaction paying too small a fee.")
	{
		priv, pub, addr, err := signature.GenerateKeyPair()
		if err != nil {
			t.Fatalf("%s\tShould be able to generate a keypair: %v", failed, err)
		}

		utxo, prev := seedUTXO(t, 100_000, addr)
		mp := mempool.New(utxo, 1)
		mp.UpdateTipHeight(1000)

		// Spend the entire input with no fee left over.
		tx := signSpend(t, priv, pub, prev, 100_000, addr)

		if _, err := mp.AddTransaction(tx); err == nil {
			t.Fatalf("%s\tShould reject a zero-fee transaction.", failed)
		}
		t.Logf("%s\tShould reject a zero-fee transaction.", success)
	}
}

func Test_PurgeConfirmedRemovesMinedTransaction(t *testing.T) {
	t.Log("Given the need to drop a pooled transaction once it is confirmed.")
	{
		priv, pub, addr, err := signature.GenerateKeyPair()
		if err != nil {
			t.Fatalf("%s\tShould be able to generate a keypair: %v", failed, err)
		}

		utxo, prev := seedUTXO(t, 100_000, addr)
		mp := mempool.New(utxo, 1)
		mp.UpdateTipHeight(1000)

		tx := signSpend(t, priv, pub, prev, 50_000, addr)
		if _, err := mp.AddTransaction(tx); err != nil {
			t.Fatalf("%s\tShould be able to pool the transaction: %v", failed, err)
		}

		coinbase := database.Transaction{
			Version: 1,
			ChainID: 1,
			Outputs: []database.TxOutput{{Amount: 50_00000000, ScriptPubKey: addr}},
		}

		tree, err := merkle.NewTree([]database.Transaction{coinbase, tx})
		if err != nil {
			t.Fatalf("%s\tShould be able to build a merkle tree: %v", failed, err)
		}

		block := database.Block{
			Header:       database.BlockHeader{},
			Height:       1,
			Transactions: tree,
		}

		mp.PurgeConfirmed(block)

		if mp.Count() != 0 {
			t.Fatalf("%s\tShould have purged the confirmed transaction, count %d", failed, mp.Count())
		}
		t.Logf("%s\tShould have purged the confirmed transaction.", success)
	}
}

func Test_ExpireOldRemovesStaleEntries(t *testing.T) {
	t.Log("Given the need to expire a transaction that has aged out.")
	{
		priv, pub, addr, err := signature.GenerateKeyPair()
		if err != nil {
			t.Fatalf("%s\tShould be able to generate a keypair: %v", failed, err)
		}

		utxo, prev := seedUTXO(t, 100_000, addr)
		mp := mempool.New(utxo, 1)
		mp.UpdateTipHeight(1000)

		tx := signSpend(t, priv, pub, prev, 50_000, addr)
		if _, err := mp.AddTransaction(tx); err != nil {
			t.Fatalf("%s\tShould be able to pool the transaction: %v", failed, err)
		}

		future := time.Now().Add(mempool.Expiry + time.Hour)
		mp.ExpireOld(future)

		if mp.Count() != 0 {
			t.Fatalf("%s\tShould have expired the stale transaction, count %d", failed, mp.Count())
		}
		t.Logf("%s\tShould have expired the stale transaction.", success)
	}
}

func Test_SelectForBlockRespectsByteLimit(t *testing.T) {
	t.Log("Given the need to select pooled transactions for mining within a byte budget.")
	{
		priv, pub, addr, err := signature.GenerateKeyPair()
		if err != nil {
			t.Fatalf("%s\tShould be able to generate a keypair: %v", failed, err)
		}

		utxo, prev := seedUTXO(t, 1_000_000, addr)
		mp := mempool.New(utxo, 1)
		mp.UpdateTipHeight(1000)

		tx := signSpend(t, priv, pub, prev, 500_000, addr)
		if _, err := mp.AddTransaction(tx); err != nil {
			t.Fatalf("%s\tShould be able to pool the transaction: %v", failed, err)
		}

		selected := mp.SelectForBlock(1_000_000)
		if len(selected) != 1 {
			t.Fatalf("%s\tShould select exactly one transaction, got %d", failed, len(selected))
		}
		t.Logf("%s\tShould select exactly one transaction.", success)

		if empty := mp.SelectForBlock(0); len(empty) != 0 {
			t.Fatalf("%s\tShould select nothing when the byte budget is zero, got %d", failed, len(empty))
		}
		t.Logf("%s\tShould select nothing when the byte budget is zero.", success)
	}
}
