// Package worker implements mining, peer discovery, block/transaction
// relay, and initial block download for the blockchain (§4.7, §4.8, §5).
package worker

import (
	"net"
	"sync"
	"time"

	"github.com/xorcoin/node/foundation/blockchain/database"
	"github.com/xorcoin/node/foundation/blockchain/p2p"
	"github.com/xorcoin/node/foundation/blockchain/state"
)

// maxTxShareRequests bounds how many transactions may be queued for relay
// to peers before SignalShareTx starts dropping them (§5: never drop
// BLOCK/TX from the outbound queue once accepted, but the queue itself
// must stay bounded so a runaway producer can't exhaust memory).
const maxTxShareRequests = 100

// peerUpdateInterval represents the interval of finding new peer nodes
// and updating the blockchain on disk with missing blocks (§4.8's
// maintenance task, run every 30s per §5).
const peerUpdateInterval = 30 * time.Second

// =============================================================================

// peerConn bundles a live socket with its protocol-level connection state.
type peerConn struct {
	conn  net.Conn
	pconn *p2p.Conn
}

// Worker manages the mining, peer discovery, and relay workflows for the
// blockchain.
type Worker struct {
	state        *state.State
	wg           sync.WaitGroup
	ticker       *time.Ticker
	shut         chan struct{}
	startMining  chan bool
	cancelMining chan chan struct{}
	txSharing    chan database.Transaction
	evHandler    state.EventHandler

	connMu sync.RWMutex
	conns  map[string]*peerConn
}

// Run creates a worker, registers it with the state package, and starts up
// all the background processes.
func Run(s *state.State, evHandler state.EventHandler) {
	w := Worker{
		state:        s,
		ticker:       time.NewTicker(peerUpdateInterval),
		shut:         make(chan struct{}),
		startMining:  make(chan bool, 1),
		cancelMining: make(chan chan struct{}, 1),
		txSharing:    make(chan database.Transaction, maxTxShareRequests),
		evHandler:    evHandler,
		conns:        make(map[string]*peerConn),
	}

	s.Worker = &w

	w.Sync()

	operations := []func(){
		w.peerOperations,
		w.miningOperations,
		w.shareTxOperations,
		w.listenOperations,
	}

	g := len(operations)
	w.wg.Add(g)

	hasStarted := make(chan bool)

	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	for i := 0; i < g; i++ {
		<-hasStarted
	}
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop ticker")
	w.ticker.Stop()

	w.evHandler("worker: shutdown: signal cancel mining")
	w.SignalCancelMining()()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()

	w.connMu.Lock()
	for _, pc := range w.conns {
		pc.conn.Close()
	}
	w.connMu.Unlock()
}

// SignalStartMining starts a mining operation. If there is already a
// signal pending in the channel, just return since a mining operation
// will start.
func (w *Worker) SignalStartMining() {
	if !w.state.IsMiningAllowed() {
		w.evHandler("worker: SignalStartMining: accepting blocks turned off")
		return
	}

	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the goroutine executing runMiningOperation to
// stop immediately, if one is running, and returns a function the caller
// must call once its own state mutation is complete — releasing the
// mining goroutine to either terminate or restart against the new tip
// (§4.7's cooperative-cancellation handshake).
func (w *Worker) SignalCancelMining() (done func()) {
	wait := make(chan struct{})

	select {
	case w.cancelMining <- wait:
		w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")
	default:
		close(wait)
		return func() {}
	}

	return func() { close(wait) }
}

// SignalShareTx signals a share transaction operation. If
// maxTxShareRequests signals exist in the channel, we won't send these.
func (w *Worker) SignalShareTx(tx database.Transaction) {
	select {
	case w.txSharing <- tx:
		w.evHandler("worker: SignalShareTx: share Tx signaled")
	default:
		w.evHandler("worker: SignalShareTx: queue full, transactions won't be shared.")
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}

// broadcast sends f to every peer currently in the READY state, logging
// but not failing on any one peer's write error (§4.8's outbound queue is
// per-peer; a slow or dead peer never blocks relay to the others).
func (w *Worker) broadcast(f p2p.Frame) {
	w.connMu.RLock()
	defer w.connMu.RUnlock()

	for host, pc := range w.conns {
		if pc.pconn.State() != p2p.Ready {
			continue
		}
		if err := sendFrame(pc.conn, f); err != nil {
			w.evHandler("worker: broadcast: %s: ERROR: %s", host, err)
		}
	}
}
