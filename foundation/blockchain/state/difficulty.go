package state

import (
	"math/big"

	"github.com/xorcoin/node/foundation/blockchain/database"
	"github.com/xorcoin/node/foundation/blockchain/genesis"
)

// retargetClampMin and retargetClampMax bound how far a single retarget may
// move the difficulty target in one adjustment (§4.6): no more than 4x
// easier, no more than 4x harder.
const (
	retargetClampMin = 0.25
	retargetClampMax = 4.0
)

// nextBlockBits computes the proof-of-work target the block following tip
// must satisfy. Every RetargetInterval blocks the target is recalculated
// from how long the previous interval actually took versus how long it
// should have taken at genesis.TargetBlockTime per block; every other
// block keeps tip's own bits unchanged (§4.6).
func (s *State) nextBlockBits(tip database.Block) (uint32, error) {
	nextHeight := tip.Height + 1
	if nextHeight%genesis.RetargetInterval != 0 {
		return tip.Header.Bits, nil
	}

	firstHeight := nextHeight - genesis.RetargetInterval
	first, err := s.db.GetBlock(firstHeight)
	if err != nil {
		return 0, err
	}

	actualTimespan := int64(tip.Header.Timestamp) - int64(first.Header.Timestamp)
	expectedTimespan := int64(genesis.RetargetInterval * genesis.TargetBlockTime)

	minSpan := int64(float64(expectedTimespan) * retargetClampMin)
	maxSpan := int64(float64(expectedTimespan) * retargetClampMax)
	switch {
	case actualTimespan < minSpan:
		actualTimespan = minSpan
	case actualTimespan > maxSpan:
		actualTimespan = maxSpan
	}

	oldTarget := database.CompactToTarget(tip.Header.Bits)
	newTarget := new(big.Int).Mul(oldTarget, big.NewInt(actualTimespan))
	newTarget.Div(newTarget, big.NewInt(expectedTimespan))

	floorTarget := database.CompactToTarget(s.genesis.Bits)
	if newTarget.Cmp(floorTarget) > 0 {
		newTarget = floorTarget
	}

	return database.TargetToCompact(newTarget), nil
}
