package cmd

import (
	"fmt"
	"log"

	"github.com/xorcoin/node/foundation/blockchain/signature"
	"github.com/xorcoin/node/foundation/walletkey"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate new key pair",
	Run:   generateRun,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func generateRun(cmd *cobra.Command, args []string) {
	priv, _, address, err := signature.GenerateKeyPair()
	if err != nil {
		log.Fatal(err)
	}

	if err := walletkey.Save(getPrivateKeyPath(), priv); err != nil {
		log.Fatal(err)
	}

	fmt.Println("address:", address)
}
