package worker

import (
	"net"

	"github.com/xorcoin/node/foundation/blockchain/p2p"
)

// listenOperations accepts inbound connections on this node's advertised
// host, running for the worker's lifetime (§4.8's inbound side of the
// CONNECTING -> HANDSHAKING -> READY transition).
func (w *Worker) listenOperations() {
	w.evHandler("worker: listenOperations: G started")
	defer w.evHandler("worker: listenOperations: G completed")

	host := w.state.RetrieveHost()
	if host == "" {
		w.evHandler("worker: listenOperations: no host configured, inbound connections disabled")
		return
	}

	ln, err := net.Listen("tcp", host)
	if err != nil {
		w.evHandler("worker: listenOperations: listen: ERROR: %s", err)
		return
	}
	defer ln.Close()

	go func() {
		<-w.shut
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if w.isShutdown() {
				return
			}
			w.evHandler("worker: listenOperations: accept: ERROR: %s", err)
			continue
		}

		w.wg.Add(1)
		go w.acceptConn(conn)
	}
}

// acceptConn completes the inbound handshake for a freshly accepted
// connection and, on success, starts its reader loop.
func (w *Worker) acceptConn(conn net.Conn) {
	defer w.wg.Done()

	host := conn.RemoteAddr().String()

	pconn, err := w.state.RetrieveConnSet().AddInbound(host)
	if err != nil {
		w.evHandler("worker: acceptConn: %s: ERROR: %s", host, err)
		conn.Close()
		return
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
		w.evHandler("worker: acceptConn: %s: handshake: ERROR: %s", host, err)
		conn.Close()
		w.state.RetrieveConnSet().Remove(host)
		return
	}
	pconn.RecordVersion(peerVersion)
	pconn.SetState(p2p.Ready)

	w.connMu.Lock()
	w.conns[host] = &peerConn{conn: conn, pconn: pconn}
	w.connMu.Unlock()

	w.wg.Add(1)
	w.readLoop(host, conn, pconn)
}
