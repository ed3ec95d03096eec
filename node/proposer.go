package node

import (
	"context"
	"time"

	"github.com/gitzhang10/pohchain/chain"
)

func (n *Node) proposeLoop(ctx context.Context) {
	ticker := time.NewTicker(n.conf.BlockInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.propose()
		}
	}
}

// propose assembles a block from the history not yet in a block and the
// pending transactions, and broadcasts it. Only the leader proposes when the
// node enforces leadership.
func (n *Node) propose() (chain.Block, bool) {
	if !n.isLeader() {
		n.logger.Debug("not the leader, skipping block")
		return chain.Block{}, false
	}
	cursor := n.chain.HistoryCursor()
	window := n.sequencer.Slice(cursor)
	txs := n.pool.Snapshot()
	b := n.chain.Assemble(n.id, cursor, window, txs, uint64(time.Now().Unix()))

	n.pool.Remove(b.Transactions)
	for i := range b.Transactions {
		n.seen.Add(b.Transactions[i].Hash(), struct{}{})
	}
	n.seen.Add(b.BlockHash, struct{}{})
	n.blocksProposed.Add(1)
	n.elect()

	n.votes.BeginRound(b.Height)
	n.votes.RecordVote(n.id, b.Height, true)
	n.checkFinal(b.Height)

	n.logger.Info("block proposed", "height", b.Height, "hash", b.BlockHash.Short(),
		"entries", len(b.HistoryWindow), "txs", len(b.Transactions))
	n.broadcast(BlockProposal{Block: b}, "")
	return b, true
}
