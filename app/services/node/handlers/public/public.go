// Package public maintains the group of handlers for wallet-facing access:
// genesis info, balance queries, mempool listing, transaction submission,
// and a websocket feed of the node's event log.
package public

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xorcoin/node/business/web/errs"
	"github.com/xorcoin/node/foundation/blockchain/database"
	"github.com/xorcoin/node/foundation/blockchain/state"
	"github.com/xorcoin/node/foundation/events"
	"github.com/xorcoin/node/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of wallet-facing endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events upgrades the connection to a websocket and streams the node's
// event log (the same messages handed to EventHandler) to the client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, open := <-ch:
			if !open {
				return nil
			}
			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveGenesis(), http.StatusOK)
}

// Balance returns the spendable balance for a single base58check address.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	resp := struct {
		Address string `json:"address"`
		Balance uint64 `json:"balance"`
	}{
		Address: address,
		Balance: h.State.RetrieveBalance(address),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// utxo is the wire shape of a single spendable output, enough for a wallet
// to build a TxInput against it.
type utxo struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Amount uint64 `json:"amount"`
	Height uint64 `json:"height"`
}

// UTXOs returns every unspent output paying a single base58check address,
// the set a wallet selects inputs from when building a transaction.
func (h Handlers) UTXOs(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	set := h.State.RetrieveUTXOs(address)
	resp := make([]utxo, len(set))
	for i, u := range set {
		resp[i] = utxo{
			TxID:   hex.EncodeToString(u.OutPoint.TxID[:]),
			Vout:   u.OutPoint.Vout,
			Amount: u.Entry.Output.Amount,
			Height: u.Entry.Height,
		}
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs := h.State.RetrieveMempool()
	return web.Respond(ctx, w, txs, http.StatusOK)
}

// SubmitTransaction admits a wallet-signed transaction (full wire form,
// the same bytes database.Transaction.EncodeFull produces) into the
// mempool and relays it to peers.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("unable to read payload: %w", err)
	}

	tx, err := database.DecodeTransaction(raw)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode transaction: %w", err), http.StatusBadRequest)
	}

	h.Log.Infow("submit tx", "traceid", v.TraceID, "numInputs", len(tx.Inputs), "numOutputs", len(tx.Outputs))

	if _, err := h.State.UpsertMempool(tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.State.Worker.SignalShareTx(tx)

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
