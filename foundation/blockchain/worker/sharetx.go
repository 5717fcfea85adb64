package worker

import (
	"github.com/xorcoin/node/foundation/blockchain/database"
	"github.com/xorcoin/node/foundation/blockchain/p2p"
)

// shareTxOperations handles sharing new transactions with the network
// (§4.8's TX relay).
func (w *Worker) shareTxOperations() {
	w.evHandler("worker: shareTxOperations: G started")
	defer w.evHandler("worker: shareTxOperations: G completed")

	for {
		select {
		case tx := <-w.txSharing:
			if !w.isShutdown() {
				w.runShareTxOperation(tx)
			}
		case <-w.shut:
			w.evHandler("worker: shareTxOperations: received shut signal")
			return
		}
	}
}

// runShareTxOperation broadcasts tx to every ready peer.
func (w *Worker) runShareTxOperation(tx database.Transaction) {
	w.evHandler("worker: runShareTxOperation: started")
	defer w.evHandler("worker: runShareTxOperation: completed")

	frame, err := p2p.EncodeTx(tx)
	if err != nil {
		w.evHandler("worker: runShareTxOperation: encodeTx: ERROR: %s", err)
		return
	}

	w.broadcast(frame)
}
