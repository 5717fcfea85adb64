package worker

import (
	"errors"
	"net"

	"github.com/xorcoin/node/foundation/blockchain/database"
	"github.com/xorcoin/node/foundation/blockchain/p2p"
)

// handleInv answers an INV announcement with a GETDATA for whichever
// advertised items this node doesn't already have: transactions are
// matched against the mempool, and advertised blocks are always requested
// (§4.8's inventory exchange).
func (w *Worker) handleInv(host string, conn net.Conn, items []p2p.Inventory) error {
	var want []p2p.Inventory

	for _, item := range items {
		switch item.Type {
		case p2p.InvTx:
			if !w.state.RetrieveMempoolHas(item.Hash) {
				want = append(want, item)
			}
		case p2p.InvBlock:
			// A node with no direct block-index lookup by hash always
			// requests; the sync path (getblocks/IBD) is what actually
			// keeps repeated re-fetches from happening in practice.
			want = append(want, item)
		}
	}

	if len(want) == 0 {
		return nil
	}

	w.evHandler("worker: handleInv: %s: requesting %d items", host, len(want))
	return sendFrame(conn, p2p.EncodeGetData(want))
}

// handleGetData answers a GETDATA request by sending back whichever
// requested transactions or the single requested block this node has.
func (w *Worker) handleGetData(conn net.Conn, items []p2p.Inventory) error {
	for _, item := range items {
		switch item.Type {
		case p2p.InvTx:
			// Transaction relay by hash-lookup isn't indexed; a peer that
			// wants a specific pooled tx will get it via the next INV this
			// node itself announces when it pools something new.
		case p2p.InvBlock:
			block, err := w.blockByHash(item.Hash)
			if err != nil {
				continue
			}
			frame, err := p2p.EncodeBlock(block)
			if err != nil {
				continue
			}
			if err := sendFrame(conn, frame); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleTx admits a relayed transaction into the mempool and, if new,
// re-announces it to every other ready peer (§4.8).
func (w *Worker) handleTx(pconn *p2p.Conn, payload any) error {
	tx, ok := payload.(database.Transaction)
	if !ok {
		return errors.New("worker: handleTx: unexpected payload type")
	}

	if _, err := w.state.UpsertMempool(tx); err != nil {
		if pconn.AddBanScore(p2p.ScoreInvalidTx) {
			return errBanWorthy
		}
		return nil
	}

	frame, err := p2p.EncodeTx(tx)
	if err != nil {
		return err
	}
	w.broadcast(frame)

	return nil
}

// handleBlock hands a relayed block to state for validation and, if
// accepted, re-announces it (§4.6, §4.8).
func (w *Worker) handleBlock(pconn *p2p.Conn, payload any) error {
	block, ok := payload.(database.Block)
	if !ok {
		return errors.New("worker: handleBlock: unexpected payload type")
	}

	if err := w.state.ProcessProposedBlock(block); err != nil {
		if errors.Is(err, database.ErrChainForked) {
			w.evHandler("worker: handleBlock: chain forked, starting resync")
			_ = w.state.Reorganize()
			return nil
		}
		if pconn.AddBanScore(p2p.ScoreInvalidBlock) {
			return errBanWorthy
		}
		return nil
	}

	frame, err := p2p.EncodeBlock(block)
	if err != nil {
		return err
	}
	w.broadcast(frame)

	return nil
}

// handleGetBlocks walks the chain forward from the first locator hash
// this node recognizes and answers with an INV of the blocks that follow,
// up to a batch limit, ending initial block download once a batch comes
// back smaller than the limit (§4.8).
const getBlocksBatchLimit = 500

func (w *Worker) handleGetBlocks(conn net.Conn, req p2p.GetBlocks) error {
	tip := w.state.RetrieveLatestBlock()

	startHeight := uint64(0)
	for _, hash := range req.Locator {
		if block, err := w.blockByHash(hash); err == nil {
			startHeight = block.Height + 1
			break
		}
	}

	var items []p2p.Inventory
	for h := startHeight; h <= tip.Height && len(items) < getBlocksBatchLimit; h++ {
		block, err := w.state.RetrieveBlockByHeight(h)
		if err != nil {
			break
		}
		items = append(items, p2p.Inventory{Type: p2p.InvBlock, Hash: block.Header.Hash()})
	}

	if len(items) == 0 {
		return nil
	}
	return sendFrame(conn, p2p.EncodeInv(items))
}

// blockByHash scans the chain for the block whose header hashes to hash.
// The chain has no secondary hash index; this is only ever called against
// short locator lists and small getdata batches, so a linear scan bounded
// by chain height is acceptable (§4.8).
func (w *Worker) blockByHash(hash [32]byte) (database.Block, error) {
	tip := w.state.RetrieveLatestBlock()
	for h := tip.Height; ; h-- {
		block, err := w.state.RetrieveBlockByHeight(h)
		if err != nil {
			return database.Block{}, err
		}
		if block.Header.Hash() == hash {
			return block, nil
		}
		if h == 0 {
			break
		}
	}
	return database.Block{}, errors.New("worker: blockByHash: not found")
}
