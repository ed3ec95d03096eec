package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gitzhang10/pohchain/conn"
)

// StartP2PListen starts the node to listen for P2P connections.
func (n *Node) StartP2PListen() error {
	var err error
	n.trans, err = conn.NewTCPTransport(n.conf.ListenAddr, n.conf.DialTimeout, n.conf.IdleTimeout,
		n.logger.Named("net"), n)
	if err != nil {
		return err
	}
	return nil
}

// Addr returns the address the node listens on.
func (n *Node) Addr() string {
	if n.trans == nil {
		return ""
	}
	return n.trans.LocalAddr()
}

// EstablishP2PConns dials every configured peer. Peers that cannot be reached
// are reported in the returned error and retried by the redial loop.
func (n *Node) EstablishP2PConns() error {
	if n.trans == nil {
		return errors.New("networkTransport has not been created")
	}
	return n.dialMissing()
}

// Connect opens a connection to addr.
func (n *Node) Connect(addr string) error {
	if n.trans == nil {
		return errors.New("networkTransport has not been created")
	}
	_, err := n.trans.Dial(addr)
	return err
}

// dialMissing dials the configured peers that have no live outbound
// connection.
func (n *Node) dialMissing() error {
	live := make(map[string]bool)
	for _, c := range n.trans.Conns() {
		if c.Outbound() {
			live[c.Target()] = true
		}
	}
	var errs []error
	for _, addr := range n.conf.Peers {
		if live[addr] {
			continue
		}
		if _, err := n.trans.Dial(addr); err != nil {
			errs = append(errs, fmt.Errorf("dial %s: %w", addr, err))
			continue
		}
		n.logger.Debug("connection has been established", "receiver", addr)
	}
	return errors.Join(errs...)
}

func (n *Node) redialLoop(ctx context.Context) {
	if n.trans == nil || n.conf.RedialInterval <= 0 {
		return
	}
	ticker := time.NewTicker(n.conf.RedialInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.dialMissing(); err != nil {
				n.logger.Debug("failed to redial peers", "error", err)
			}
		}
	}
}

// keepaliveLoop pings every connection so that live peers do not hit the
// idle timeout.
func (n *Node) keepaliveLoop(ctx context.Context) {
	if n.trans == nil || n.conf.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(n.conf.IdleTimeout / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range n.trans.Conns() {
				_ = n.send(c, GossipMessage{Text: "ping"})
			}
		}
	}
}
