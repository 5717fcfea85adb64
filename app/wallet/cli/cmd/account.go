package cmd

import (
	"fmt"
	"log"

	"github.com/xorcoin/node/foundation/walletkey"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Print the wallet address for the specified key file",
	Run:   accountRun,
}

func init() {
	rootCmd.AddCommand(accountCmd)
}

func accountRun(cmd *cobra.Command, args []string) {
	priv, err := walletkey.Load(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(priv.Public().Address())
}
