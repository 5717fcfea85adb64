package worker

import (
	"errors"
	"net"

	"github.com/xorcoin/node/foundation/blockchain/p2p"
	"github.com/xorcoin/node/foundation/blockchain/peer"
)

// readLoop is the per-connection reader task (§5): it owns conn's inbound
// side for its lifetime, dispatching each decoded frame and bumping ban
// score or disconnecting on misbehavior (§4.8).
func (w *Worker) readLoop(host string, conn net.Conn, pconn *p2p.Conn) {
	defer w.wg.Done()
	defer w.disconnect(host)

	w.evHandler("worker: readLoop: %s: started", host)
	defer w.evHandler("worker: readLoop: %s: completed", host)

	for {
		if w.isShutdown() {
			return
		}

		if !pconn.Allow() {
			if pconn.AddBanScore(p2p.ScoreTooManyMessages) {
				w.ban(host)
				return
			}
			continue
		}

		frame, err := readFrame(conn)
		if err != nil {
			w.evHandler("worker: readLoop: %s: ERROR: %s", host, err)
			return
		}

		if err := w.handleFrame(host, conn, pconn, frame); err != nil {
			w.evHandler("worker: readLoop: %s: handleFrame: ERROR: %s", host, err)
			if errors.Is(err, errBanWorthy) {
				w.ban(host)
				return
			}
		}
	}
}

// errBanWorthy marks a handleFrame error as bad enough to ban the peer
// outright rather than merely log it.
var errBanWorthy = errors.New("worker: ban-worthy protocol violation")

// handleFrame dispatches one decoded frame to the behavior appropriate for
// its command (§4.8).
func (w *Worker) handleFrame(host string, conn net.Conn, pconn *p2p.Conn, frame p2p.Frame) error {
	payload, err := p2p.DecodePayload(frame)
	if err != nil {
		if pconn.AddBanScore(p2p.ScoreOversizedMsg) {
			return errBanWorthy
		}
		return err
	}

	switch frame.Command {
	case p2p.CmdPing:
		nonce := payload.(uint64)
		return sendFrame(conn, p2p.EncodePong(nonce))

	case p2p.CmdPong:
		return nil

	case p2p.CmdGetAddr:
		var addrs []p2p.Addr
		for _, p := range w.state.RetrieveKnownPeers() {
			addrs = append(addrs, p2p.Addr{Host: p.Host})
		}
		return sendFrame(conn, p2p.EncodeAddr(addrs))

	case p2p.CmdAddr:
		addrs := payload.([]p2p.Addr)
		for _, a := range addrs {
			if a.Host == w.state.RetrieveHost() {
				continue
			}
			w.state.AddKnownPeer(peer.New(a.Host))
		}
		return nil

	case p2p.CmdInv:
		return w.handleInv(host, conn, payload.([]p2p.Inventory))

	case p2p.CmdGetData:
		return w.handleGetData(conn, payload.([]p2p.Inventory))

	case p2p.CmdTx:
		return w.handleTx(pconn, payload)

	case p2p.CmdBlock:
		return w.handleBlock(pconn, payload)

	case p2p.CmdGetBlocks:
		return w.handleGetBlocks(conn, payload.(p2p.GetBlocks))

	case p2p.CmdVersion, p2p.CmdVerAck:
		// Already consumed during the handshake; receiving one again mid
		// session is harmless to ignore.
		return nil

	default:
		return nil
	}
}
