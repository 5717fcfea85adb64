package worker

import (
	"github.com/xorcoin/node/foundation/blockchain/database"
	"github.com/xorcoin/node/foundation/blockchain/p2p"
)

// Sync connects to every known peer this node isn't already talking to
// and runs initial block download against each (§4.8's IBD).
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, p := range w.state.RetrieveKnownPeers() {
		if p.Match(w.state.RetrieveHost()) {
			continue
		}

		w.connMu.RLock()
		pc, connected := w.conns[p.Host]
		w.connMu.RUnlock()

		if !connected {
			if err := w.connectPeer(p); err != nil {
				w.evHandler("worker: sync: connectPeer: %s: ERROR: %s", p.Host, err)
				continue
			}
			w.connMu.RLock()
			pc = w.conns[p.Host]
			w.connMu.RUnlock()
		}

		w.syncWithPeer(p.Host, pc)
	}
}

// syncWithPeer runs initial block download against one peer: send our
// block locator, receive an INV of blocks we're missing, GETDATA them, and
// repeat until a batch comes back smaller than the server's batch limit
// (§4.8).
func (w *Worker) syncWithPeer(host string, pc *peerConn) {
	for {
		locator := w.blockLocator()
		if err := sendFrame(pc.conn, p2p.EncodeGetBlocks(p2p.GetBlocks{Locator: locator})); err != nil {
			w.evHandler("worker: syncWithPeer: %s: getblocks: ERROR: %s", host, err)
			return
		}

		frame, err := readFrame(pc.conn)
		if err != nil {
			w.evHandler("worker: syncWithPeer: %s: read inv: ERROR: %s", host, err)
			return
		}
		if frame.Command != p2p.CmdInv {
			return
		}

		payload, err := p2p.DecodePayload(frame)
		if err != nil {
			w.evHandler("worker: syncWithPeer: %s: decode inv: ERROR: %s", host, err)
			return
		}
		items := payload.([]p2p.Inventory)
		if len(items) == 0 {
			return
		}

		if err := sendFrame(pc.conn, p2p.EncodeGetData(items)); err != nil {
			w.evHandler("worker: syncWithPeer: %s: getdata: ERROR: %s", host, err)
			return
		}

		for range items {
			blockFrame, err := readFrame(pc.conn)
			if err != nil {
				w.evHandler("worker: syncWithPeer: %s: read block: ERROR: %s", host, err)
				return
			}
			if blockFrame.Command != p2p.CmdBlock {
				continue
			}
			blockPayload, err := p2p.DecodePayload(blockFrame)
			if err != nil {
				w.evHandler("worker: syncWithPeer: %s: decode block: ERROR: %s", host, err)
				continue
			}
			block := blockPayload.(database.Block)
			if err := w.state.ProcessProposedBlock(block); err != nil {
				w.evHandler("worker: syncWithPeer: %s: processProposedBlock: height[%d]: ERROR: %s", host, block.Height, err)
			}
		}

		if len(items) < getBlocksBatchLimit {
			return
		}
	}
}

// blockLocator builds an exponentially-spaced list of recent block
// hashes, from the tip back toward genesis, so a peer can find the most
// recent common ancestor regardless of how far behind this node is
// (§4.8).
func (w *Worker) blockLocator() [][32]byte {
	tip := w.state.RetrieveLatestBlock()

	var locator [][32]byte
	step := uint64(1)
	height := tip.Height

	for {
		block, err := w.state.RetrieveBlockByHeight(height)
		if err == nil {
			locator = append(locator, block.Header.Hash())
		}

		if height == 0 {
			break
		}
		if len(locator) >= 10 {
			step *= 2
		}
		if height < step {
			height = 0
		} else {
			height -= step
		}
	}

	return locator
}
