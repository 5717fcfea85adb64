package worker

import (
	"fmt"

	"github.com/xorcoin/node/foundation/blockchain/p2p"
	"github.com/xorcoin/node/foundation/blockchain/peer"
)

// peerOperations handles finding new peers and maintaining existing
// connections (§4.8's 30s maintenance task). Each tick dials known peers
// and sends GETADDR to ready ones; it sends no PING and keeps no
// per-request timers. A peer that goes quiet is dropped by its readLoop
// once a frame read passes ioTimeout.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runPeersOperation()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// runPeersOperation dials any known peer this node isn't currently
// connected to, completes the handshake, and asks it for its own known
// peers so the network stays connected as nodes come and go.
func (w *Worker) runPeersOperation() {
	w.evHandler("worker: runPeersOperation: started")
	defer w.evHandler("worker: runPeersOperation: completed")

	for _, p := range w.state.RetrieveKnownPeers() {
		if p.Match(w.state.RetrieveHost()) {
			continue
		}

		w.connMu.RLock()
		_, connected := w.conns[p.Host]
		w.connMu.RUnlock()
		if connected {
			continue
		}

		if err := w.connectPeer(p); err != nil {
			w.evHandler("worker: runPeersOperation: connectPeer: %s: ERROR: %s", p.Host, err)
			w.state.RemoveKnownPeer(p)
			continue
		}
	}

	for host, pc := range w.snapshotReady() {
		if err := sendFrame(pc.conn, p2p.EncodeGetAddr()); err != nil {
			w.evHandler("worker: runPeersOperation: getaddr: %s: ERROR: %s", host, err)
		}
	}
}

// connectPeer dials p, completes the VERSION/VERACK handshake, and starts
// the connection's reader loop (§4.8's CONNECTING -> HANDSHAKING -> READY
// transition).
func (w *Worker) connectPeer(p peer.Peer) error {
	pconn, err := w.state.RetrieveConnSet().AddOutbound(p.Host)
	if err != nil {
		return err
	}

	conn, err := dial(p.Host)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	pconn.SetState(p2p.Handshaking)

	self := p2p.Version{
		Protocol:    1,
		ChainID:     w.state.RetrieveGenesis().ChainID,
		StartHeight: w.state.RetrieveLatestBlock().Height,
		Nonce:       randomNonce(),
		UserAgent:   "xorcoin-node",
	}

	peerVersion, err := handshake(conn, self)
	if err != nil {
		conn.Close()
		return fmt.Errorf("handshake: %w", err)
	}
	pconn.RecordVersion(peerVersion)
	pconn.SetState(p2p.Ready)

	w.connMu.Lock()
	w.conns[p.Host] = &peerConn{conn: conn, pconn: pconn}
	w.connMu.Unlock()

	w.wg.Add(1)
	go w.readLoop(p.Host, conn, pconn)

	return nil
}

// snapshotReady returns a copy of the currently ready connections, safe to
// range over without holding connMu for the duration of any I/O.
func (w *Worker) snapshotReady() map[string]*peerConn {
	w.connMu.RLock()
	defer w.connMu.RUnlock()

	out := make(map[string]*peerConn, len(w.conns))
	for host, pc := range w.conns {
		if pc.pconn.State() == p2p.Ready {
			out[host] = pc
		}
	}
	return out
}

// disconnect drops host's live connection and connection-state record.
func (w *Worker) disconnect(host string) {
	w.connMu.Lock()
	pc, ok := w.conns[host]
	delete(w.conns, host)
	w.connMu.Unlock()

	if ok {
		pc.conn.Close()
	}
	w.state.RetrieveConnSet().Remove(host)
}

// ban drops host's connection and blacklists it for p2p.BanDuration
// (§4.8's ban-score threshold response).
func (w *Worker) ban(host string) {
	w.connMu.Lock()
	pc, ok := w.conns[host]
	delete(w.conns, host)
	w.connMu.Unlock()

	if ok {
		pc.conn.Close()
	}
	w.state.RetrieveConnSet().Ban(host)
}
