package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/xorcoin/node/foundation/walletkey"
	"github.com/spf13/cobra"
)

type balanceResp struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
}

func balanceRun(cmd *cobra.Command, args []string) {
	priv, err := walletkey.Load(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	address := priv.Public().Address()
	fmt.Println("For address:", address)

	resp, err := http.Get(fmt.Sprintf("%s/v1/balances/list/%s", url, address))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var balance balanceResp
	if err := json.NewDecoder(resp.Body).Decode(&balance); err != nil {
		log.Fatal(err)
	}

	fmt.Println(balance.Balance)
}
