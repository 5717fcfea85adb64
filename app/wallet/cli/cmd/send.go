package cmd

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/xorcoin/node/foundation/blockchain/database"
	"github.com/xorcoin/node/foundation/blockchain/signature"
	"github.com/xorcoin/node/foundation/walletkey"
	"github.com/spf13/cobra"
)

var (
	url   string
	to    string
	value uint64
	fee   uint64
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a transaction",
	Run:   sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Address to send to.")
	sendCmd.Flags().Uint64VarP(&value, "value", "v", 0, "Amount to send.")
	sendCmd.Flags().Uint64VarP(&fee, "fee", "f", 0, "Fee to leave unspent for the miner.")
}

// utxo is the wire shape returned by the node's utxo listing endpoint.
type utxo struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Amount uint64 `json:"amount"`
	Height uint64 `json:"height"`
}

func sendRun(cmd *cobra.Command, args []string) {
	priv, err := walletkey.Load(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}
	from := priv.Public().Address()

	chainID, err := fetchChainID()
	if err != nil {
		log.Fatal(err)
	}

	utxos, err := fetchUTXOs(from)
	if err != nil {
		log.Fatal(err)
	}

	tx, err := buildTransaction(chainID, utxos, from, to, value, fee)
	if err != nil {
		log.Fatal(err)
	}

	if err := signTransaction(&tx, priv); err != nil {
		log.Fatal(err)
	}

	if err := submitTransaction(tx); err != nil {
		log.Fatal(err)
	}

	txid, err := tx.TxID()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("submitted:", txid)
}

func fetchChainID() (uint32, error) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/genesis/list", url))
	if err != nil {
		return 0, fmt.Errorf("requesting genesis: %w", err)
	}
	defer resp.Body.Close()

	var g struct {
		ChainID uint32 `json:"chain_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		return 0, fmt.Errorf("decoding genesis: %w", err)
	}
	return g.ChainID, nil
}

func fetchUTXOs(address string) ([]utxo, error) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/utxos/list/%s", url, address))
	if err != nil {
		return nil, fmt.Errorf("requesting utxos: %w", err)
	}
	defer resp.Body.Close()

	var set []utxo
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("decoding utxos: %w", err)
	}
	return set, nil
}

// buildTransaction greedily selects spendable outputs until they cover
// value+fee, and adds a change output back to from for any remainder.
func buildTransaction(chainID uint32, utxos []utxo, from, to string, value, fee uint64) (database.Transaction, error) {
	need := value + fee

	var selected []utxo
	var total uint64
	for _, u := range utxos {
		selected = append(selected, u)
		total += u.Amount
		if total >= need {
			break
		}
	}
	if total < need {
		return database.Transaction{}, errors.New("insufficient spendable balance")
	}

	inputs := make([]database.TxInput, len(selected))
	for i, u := range selected {
		raw, err := hex.DecodeString(u.TxID)
		if err != nil {
			return database.Transaction{}, fmt.Errorf("decoding utxo txid: %w", err)
		}

		var op database.OutPoint
		copy(op.TxID[:], raw)
		op.Vout = u.Vout

		inputs[i] = database.TxInput{
			Prev:     op,
			Sequence: 0xffffffff,
		}
	}

	outputs := []database.TxOutput{
		{Amount: value, ScriptPubKey: to},
	}
	if change := total - need; change > 0 {
		outputs = append(outputs, database.TxOutput{Amount: change, ScriptPubKey: from})
	}

	return database.Transaction{
		Version: 1,
		ChainID: chainID,
		Inputs:  inputs,
		Outputs: outputs,
	}, nil
}

// signTransaction signs every input's sighash with priv. A single-key
// wallet spends only its own outputs, so one key signs every input.
func signTransaction(tx *database.Transaction, priv signature.PrivateKey) error {
	sighash, err := tx.SighashBytes()
	if err != nil {
		return fmt.Errorf("computing sighash: %w", err)
	}

	sig, err := signature.Sign(priv, sighash[:])
	if err != nil {
		return fmt.Errorf("signing transaction: %w", err)
	}

	pubkey := priv.Public().Bytes()
	for i := range tx.Inputs {
		tx.Inputs[i].Signature = sig
		tx.Inputs[i].Pubkey = pubkey
	}

	return nil
}

func submitTransaction(tx database.Transaction) error {
	raw, err := tx.EncodeFull()
	if err != nil {
		return fmt.Errorf("encoding transaction: %w", err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/octet-stream", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("submitting transaction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node rejected transaction: %s", resp.Status)
	}
	return nil
}
