// Package genesis maintains access to the genesis file and the chain-wide
// consensus constants every node must agree on (§6).
package genesis

import (
	"encoding/json"
	"os"
	"time"
)

// Consensus constants fixed for the lifetime of the chain (§6). These are
// not genesis-file configurable: changing any of them changes the chain.
const (
	// HalvingInterval is the number of blocks between each subsidy halving.
	HalvingInterval = 210_000

	// RetargetInterval is the number of blocks between difficulty
	// adjustments.
	RetargetInterval = 2_016

	// TargetBlockTime is the desired average seconds between blocks, used
	// by the retarget calculation.
	TargetBlockTime = 600

	// CoinbaseMaturity is the number of confirmations a coinbase output
	// must have before it may be spent.
	CoinbaseMaturity = 100

	// InitialSubsidy is the block reward at height 0, in the smallest unit.
	InitialSubsidy = 50_00000000

	// MaxMoney is an upper bound on the number of units that can ever exist;
	// every halved subsidy out to the point subsidies reach zero sums to
	// slightly less than this.
	MaxMoney = 21_000_000_00000000

	// MaxBlockSize caps the encoded size of a block's transactions, in bytes.
	MaxBlockSize = 1_000_000

	// MaxTxSize caps the encoded size of a single transaction, in bytes.
	MaxTxSize = 100_000
)

// Subsidy returns the coinbase reward owed at height, halving every
// HalvingInterval blocks until it reaches zero (§4.6): subsidy(h) = 50 >>
// (h / HalvingInterval).
func Subsidy(height uint64) uint64 {
	halvings := height / HalvingInterval
	if halvings >= 64 {
		return 0
	}
	return InitialSubsidy >> halvings
}

// =============================================================================

// Genesis represents the deployment-specific parameters every node reads
// from disk at startup: the chain identifier, the genesis block's own
// difficulty and timestamp, and the single coinbase output the genesis
// block pays out (§6).
type Genesis struct {
	Date    time.Time `json:"date"`
	ChainID uint32    `json:"chain_id"` // unique id for this running network
	Bits    uint32    `json:"bits"`     // genesis block's compact difficulty target
	Nonce   uint64    `json:"nonce"`    // the nonce that solves the genesis block

	// CoinbaseAddress and CoinbaseAmount describe the genesis block's one
	// transaction output, hardcoded per network rather than mined like
	// every subsequent block's reward.
	CoinbaseAddress string `json:"coinbase_address"`
	CoinbaseAmount  uint64 `json:"coinbase_amount"`
}

// Load opens and consumes the genesis file.
func Load() (Genesis, error) {
	path := "zblock/genesis.json"
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}
