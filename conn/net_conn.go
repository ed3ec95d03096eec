/*
Package conn implements the connections between a node and its peers.
Every connection, dialed or accepted, is used in both directions: one
goroutine reads frames from it in arrival order, and any goroutine may
write frames to it. A frame is a 4-byte big-endian length followed by
that many bytes of payload.
*/
package conn

import (
	"bufio"
	"net"
	"sync"
	"time"
)

// NetConn represents a live connection to a peer.
type NetConn struct {
	id       string
	target   string
	outbound bool
	conn     net.Conn
	r        *bufio.Reader

	wLock   sync.Mutex
	w       *bufio.Writer
	timeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func newNetConn(id, target string, outbound bool, c net.Conn, timeout time.Duration) *NetConn {
	return &NetConn{
		id:       id,
		target:   target,
		outbound: outbound,
		conn:     c,
		r:        bufio.NewReader(c),
		w:        bufio.NewWriter(c),
		timeout:  timeout,
	}
}

// ID is the session id of the connection, unique for the process lifetime.
func (n *NetConn) ID() string {
	return n.id
}

// Target is the address that was dialed, or the remote address of an accepted connection.
func (n *NetConn) Target() string {
	return n.target
}

// Outbound reports whether the connection was dialed by this node.
func (n *NetConn) Outbound() bool {
	return n.outbound
}

// Release closes the connection in a NetConn variable.
func (n *NetConn) Release() error {
	n.closeOnce.Do(func() {
		n.closeErr = n.conn.Close()
	})
	return n.closeErr
}
