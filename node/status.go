package node

import (
	"context"
	"time"
)

// Status is a point-in-time view of the node.
type Status struct {
	HistoryLength    int
	Validators       int
	PoolSize         int
	TotalStake       uint64
	Height           uint64
	Finalized        uint64
	BlocksProposed   uint64
	VotesCounted     uint64
	VotesFailed      uint64 // votes from unregistered sessions, for unknown blocks or closed rounds
	Leader           string
	Peers            int
	MessagesSent     uint64
	MessagesReceived uint64
}

func (n *Node) Status() Status {
	_, height := n.chain.Tip()
	leader, _ := n.election.Leader()
	return Status{
		HistoryLength:    n.sequencer.Len(),
		Validators:       n.registry.Len(),
		PoolSize:         n.pool.Len(),
		TotalStake:       n.ledger.TotalStake(),
		Height:           height,
		Finalized:        n.finalized.Load(),
		BlocksProposed:   n.blocksProposed.Load(),
		VotesCounted:     n.votesCounted.Load(),
		VotesFailed:      n.votesFailed.Load(),
		Leader:           leader,
		Peers:            len(n.peers("")),
		MessagesSent:     n.messagesSent.Load(),
		MessagesReceived: n.messagesReceived.Load(),
	}
}

// StatusLoop logs the status every status interval.
func (n *Node) StatusLoop(ctx context.Context) {
	ticker := time.NewTicker(n.conf.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := n.Status()
			n.logger.Info("status", "history", s.HistoryLength, "validators", s.Validators,
				"pool", s.PoolSize, "stake", s.TotalStake, "height", s.Height, "finalized", s.Finalized,
				"proposed", s.BlocksProposed, "votes", s.VotesCounted, "failed-votes", s.VotesFailed,
				"leader", s.Leader, "peers", s.Peers, "sent", s.MessagesSent, "received", s.MessagesReceived)
		}
	}
}
