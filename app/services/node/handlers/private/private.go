// Package private maintains the group of handlers used for operator/admin
// access to a node: status, block range queries, and the mempool listing
// (§4.8's status surface, minus node-to-node relay — that now runs over
// the binary wire protocol in foundation/blockchain/p2p, not HTTP).
package private

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/xorcoin/node/business/web/errs"
	"github.com/xorcoin/node/foundation/blockchain/database"
	"github.com/xorcoin/node/foundation/blockchain/peer"
	"github.com/xorcoin/node/foundation/blockchain/state"
	"github.com/xorcoin/node/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of admin endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

type status struct {
	LatestBlockHash   string      `json:"latest_block_hash"`
	LatestBlockHeight uint64      `json:"latest_block_height"`
	MempoolLength     int         `json:"mempool_length"`
	KnownPeers        []peer.Peer `json:"known_peers"`
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latestBlock := h.State.RetrieveLatestBlock()

	resp := status{
		LatestBlockHash:   fmt.Sprintf("%x", latestBlock.Header.Hash()),
		LatestBlockHeight: latestBlock.Height,
		MempoolLength:     h.State.RetrieveMempoolLength(),
		KnownPeers:        h.State.RetrieveKnownPeers(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// BlocksByNumber returns all the blocks in the [from, to] height range.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := strconv.ParseUint(web.Param(r, "from"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("parsing from: %w", err), http.StatusBadRequest)
	}

	to, err := strconv.ParseUint(web.Param(r, "to"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("parsing to: %w", err), http.StatusBadRequest)
	}

	if from > to {
		return errs.NewTrusted(errors.New("from greater than to"), http.StatusBadRequest)
	}

	blockData := make([]database.BlockData, 0, to-from+1)
	for height := from; height <= to; height++ {
		block, err := h.State.RetrieveBlockByHeight(height)
		if err != nil {
			break
		}
		blockData = append(blockData, database.NewBlockData(block))
	}

	if len(blockData) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, blockData, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs := h.State.RetrieveMempool()
	return web.Respond(ctx, w, txs, http.StatusOK)
}
