package node

import (
	"github.com/gitzhang10/pohchain/conn"
)

// send encodes msg and writes it to c.
func (n *Node) send(c *conn.NetConn, msg Message) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	if err = conn.SendFrame(c, data); err != nil {
		n.logger.Debug("failed to send message", "kind", msg.Kind(), "session", c.ID(), "error", err)
		return err
	}
	n.messagesSent.Add(1)
	return nil
}

// peers returns one connection per registered remote validator, leaving out
// the session exclude.
func (n *Node) peers(exclude string) []*conn.NetConn {
	n.sessionLock.Lock()
	defer n.sessionLock.Unlock()
	picked := make(map[string]bool)
	out := make([]*conn.NetConn, 0, len(n.sessions))
	for id, s := range n.sessions {
		if id == exclude || s.validator == "" || picked[s.validator] {
			continue
		}
		picked[s.validator] = true
		out = append(out, s.conn)
	}
	return out
}

// sessionOf returns a live connection carrying the validator id.
func (n *Node) sessionOf(validator string) (*conn.NetConn, bool) {
	n.sessionLock.Lock()
	defer n.sessionLock.Unlock()
	for _, s := range n.sessions {
		if s.validator == validator {
			return s.conn, true
		}
	}
	return nil, false
}

// validatorOf returns the validator registered on the session, or "".
func (n *Node) validatorOf(c *conn.NetConn) string {
	n.sessionLock.Lock()
	defer n.sessionLock.Unlock()
	if s, ok := n.sessions[c.ID()]; ok {
		return s.validator
	}
	return ""
}

// broadcast sends msg to every registered peer except the session exclude.
func (n *Node) broadcast(msg Message, exclude string) {
	for _, c := range n.peers(exclude) {
		_ = n.send(c, msg)
	}
}

// gossip sends msg to a random half of the registered peers except the
// session exclude. Delivery is best effort.
func (n *Node) gossip(msg Message, exclude string) {
	peers := n.peers(exclude)
	n.rngLock.Lock()
	targets := selectFanout(peers, fanoutSize(len(peers)), n.rng)
	n.rngLock.Unlock()
	for _, c := range targets {
		_ = n.send(c, msg)
	}
}

// sendTowards sends msg to the session of validator if there is one, and to
// fallback otherwise.
func (n *Node) sendTowards(validator string, fallback *conn.NetConn, msg Message) {
	if c, ok := n.sessionOf(validator); ok {
		fallback = c
	}
	_ = n.send(fallback, msg)
}
