package node

import (
	"errors"

	"github.com/gitzhang10/pohchain/chain"
	"github.com/gitzhang10/pohchain/conn"
	"github.com/gitzhang10/pohchain/mempool"
	"github.com/gitzhang10/pohchain/poh"
	"github.com/gitzhang10/pohchain/sign"
	"github.com/gitzhang10/pohchain/stake"
)

// maxHistoryReply bounds the entries of one HistoryEntries reply so that it
// fits in a frame. The requester asks again for the rest.
const maxHistoryReply = 1 << 16

// HandleOpen announces the node on a new connection.
func (n *Node) HandleOpen(c *conn.NetConn) {
	n.sessionLock.Lock()
	n.sessions[c.ID()] = &session{conn: c}
	n.sessionLock.Unlock()
	if err := n.send(c, RegisterValidator{Validator: n.self}); err != nil {
		n.logger.Warn("failed to register with peer", "session", c.ID(), "remote-address", c.Target(),
			"error", err)
	}
}

// HandleFrame decodes one frame and dispatches it. Frames that do not decode
// are dropped and the connection stays open.
func (n *Node) HandleFrame(c *conn.NetConn, data []byte) {
	n.messagesReceived.Add(1)
	msg, err := decodeMessage(data)
	if err != nil {
		n.logger.Warn("dropping undecodable frame", "session", c.ID(), "error", err)
		return
	}
	switch m := msg.(type) {
	case RegisterValidator:
		n.handleRegister(c, m)
	case StakeTokens:
		n.handleStake(m)
	case TransactionMsg:
		n.admitTransaction(m.Tx, c.ID())
	case BlockProposal:
		n.handleProposal(c, m)
	case ConsensusVote:
		n.handleVote(c, m)
	case RetransmissionRequest:
		n.handleRetransmission(c, m)
	case HistoryEntries:
		n.handleHistory(c, m)
	case GossipMessage:
		n.logger.Trace("gossip message", "session", c.ID(), "text", m.Text)
	}
}

// HandleClose forgets the session. Its validator is deregistered unless
// another live session still carries it.
func (n *Node) HandleClose(c *conn.NetConn, err error) {
	n.sessionLock.Lock()
	s, ok := n.sessions[c.ID()]
	delete(n.sessions, c.ID())
	stillLive := false
	if ok && s.validator != "" {
		for _, other := range n.sessions {
			if other.validator == s.validator {
				stillLive = true
				break
			}
		}
	}
	n.sessionLock.Unlock()
	if !ok || s.validator == "" || stillLive {
		return
	}

	n.registry.Remove(s.validator)
	n.replicaLock.Lock()
	delete(n.replicas, s.validator)
	n.replicaLock.Unlock()
	n.elect()
	n.logger.Info("validator disconnected", "validator", s.validator, "session", c.ID(), "error", err)
}

func (n *Node) handleRegister(c *conn.NetConn, m RegisterValidator) {
	v := m.Validator
	if len(v.PublicKey) == 0 || v.ID != sign.KeyID(v.PublicKey) {
		n.logger.Warn("validator id does not match its public key", "session", c.ID(), "validator", v.ID)
		return
	}
	if v.ID == n.id {
		n.logger.Debug("ignoring connection to self", "session", c.ID())
		return
	}

	n.sessionLock.Lock()
	s, ok := n.sessions[c.ID()]
	if ok {
		if s.validator != "" && s.validator != v.ID {
			ok = false
		} else {
			s.validator = v.ID
		}
	}
	n.sessionLock.Unlock()
	if !ok {
		n.logger.Warn("session already carries another validator", "session", c.ID(), "validator", v.ID)
		return
	}

	n.registry.Register(stake.Validator{ID: v.ID, PublicKey: v.PublicKey})
	if !n.ledger.Contains(v.ID) {
		if err := n.ledger.Deposit(v.ID, n.conf.FaucetAmount); err != nil {
			n.logger.Error("failed to seed stake", "validator", v.ID, "error", err)
		}
	}
	n.logger.Info("validator registered", "validator", v.ID, "session", c.ID(),
		"remote-address", c.Target())
	n.elect()
}

func (n *Node) handleStake(m StakeTokens) {
	if err := n.ledger.Deposit(m.ValidatorID, m.Amount); err != nil {
		n.logger.Error("failed to deposit stake", "validator", m.ValidatorID, "amount", m.Amount,
			"error", err)
		return
	}
	n.logger.Debug("stake deposited", "validator", m.ValidatorID, "amount", m.Amount)
}

// admitTransaction adds tx to the pool and relays it. origin is the session it
// came from, or "" for a local submission.
func (n *Node) admitTransaction(tx mempool.Transaction, origin string) bool {
	h := tx.Hash()
	if n.seen.Contains(h) {
		return false
	}
	if !n.pool.Submit(tx) {
		n.logger.Debug("transaction rejected", "tx", h.Short())
		return false
	}
	n.seen.Add(h, struct{}{})
	n.gossip(TransactionMsg{Tx: tx}, origin)
	return true
}

func (n *Node) handleProposal(c *conn.NetConn, m BlockProposal) {
	b := m.Block
	if n.seen.Contains(b.BlockHash) {
		return
	}
	n.seen.Add(b.BlockHash, struct{}{})

	if err := n.chain.Accept(b); err != nil {
		var histErr *chain.HistoryError
		if errors.As(err, &histErr) {
			n.logger.Warn("block history does not verify", "height", b.Height, "proposer", b.Proposer,
				"index", histErr.Index)
			n.sendTowards(b.Proposer, c, RetransmissionRequest{Index: histErr.Index})
			return
		}
		n.logger.Debug("block rejected", "height", b.Height, "hash", b.BlockHash.Short(),
			"proposer", b.Proposer, "error", err)
		return
	}
	n.chain.AdvanceCursor(uint64(n.sequencer.Len()))
	n.elect()
	removed := n.pool.Remove(b.Transactions)
	for i := range b.Transactions {
		n.seen.Add(b.Transactions[i].Hash(), struct{}{})
	}
	n.logger.Info("block accepted", "height", b.Height, "hash", b.BlockHash.Short(),
		"proposer", b.Proposer, "txs", len(b.Transactions), "removed", removed)

	if b.Proposer != "" && b.Proposer != n.id {
		n.mirrorHistory(b.Proposer, c, b.HistoryOffset, b.HistoryWindow)
	}

	n.votes.BeginRound(b.Height)
	n.votes.RecordVote(n.id, b.Height, true)
	n.checkFinal(b.Height)
	n.sendTowards(b.Proposer, c, ConsensusVote{Block: b, Vote: true})
	n.gossip(m, c.ID())
}

func (n *Node) handleVote(c *conn.NetConn, m ConsensusVote) {
	voter := n.validatorOf(c)
	if voter == "" {
		n.votesFailed.Add(1)
		n.logger.Debug("vote from unregistered session", "session", c.ID())
		return
	}
	b, ok := n.chain.Block(m.Block.Height)
	if !ok || b.BlockHash != m.Block.BlockHash {
		n.votesFailed.Add(1)
		n.logger.Debug("vote for unknown block", "voter", voter, "height", m.Block.Height)
		return
	}
	if !n.votes.RecordVote(voter, m.Block.Height, m.Vote) {
		n.votesFailed.Add(1)
		return
	}
	n.votesCounted.Add(1)
	n.checkFinal(m.Block.Height)
}

// checkFinal records height as finalized once the vote tally crosses two
// thirds of the active stake.
func (n *Node) checkFinal(height uint64) {
	if !n.votes.IsFinal(height) {
		return
	}
	for {
		cur := n.finalized.Load()
		if cur >= height {
			return
		}
		if n.finalized.CompareAndSwap(cur, height) {
			yes, total := n.votes.Tally(height)
			n.logger.Info("block finalized", "height", height, "yes", yes, "total", total)
			return
		}
	}
}

func (n *Node) handleRetransmission(c *conn.NetConn, m RetransmissionRequest) {
	entries := n.sequencer.Slice(m.Index)
	if len(entries) > maxHistoryReply {
		entries = entries[:maxHistoryReply]
	}
	_ = n.send(c, HistoryEntries{Start: m.Index, Entries: entries})
}

func (n *Node) handleHistory(c *conn.NetConn, m HistoryEntries) {
	validator := n.validatorOf(c)
	if validator == "" {
		n.logger.Debug("history from unregistered session", "session", c.ID())
		return
	}
	n.mirrorHistory(validator, c, m.Start, m.Entries)
}

// mirrorHistory extends the replica of validator and asks for the missing
// part when the entries leave a gap or stop chaining.
func (n *Node) mirrorHistory(validator string, c *conn.NetConn, start uint64, entries []poh.HistoryEntry) {
	r := n.replica(validator)
	before := uint64(r.Len())
	next, ok := r.Extend(start, entries)
	switch {
	case ok && len(entries) == maxHistoryReply:
		n.sendTowards(validator, c, RetransmissionRequest{Index: next})
	case ok:
	case start > before || next > before:
		n.sendTowards(validator, c, RetransmissionRequest{Index: next})
	default:
		n.logger.Warn("history does not chain", "validator", validator, "index", next)
	}
}

func (n *Node) replica(validator string) *poh.Replica {
	n.replicaLock.Lock()
	defer n.replicaLock.Unlock()
	r, ok := n.replicas[validator]
	if !ok {
		r = poh.NewReplica()
		n.replicas[validator] = r
	}
	return r
}
