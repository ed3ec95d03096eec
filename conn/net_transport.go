package conn

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")
)

// Handler receives the events of every connection. All calls for one
// connection are made from that connection's read goroutine, in order:
// HandleOpen, then HandleFrame for each frame, then HandleClose.
type Handler interface {
	HandleOpen(c *NetConn)
	HandleFrame(c *NetConn, data []byte)
	HandleClose(c *NetConn, err error)
}

/*
NetworkTransport provides a network based transport that can be
used to communicate with the remote nodes. It requires
an underlying stream layer to provide a stream abstraction, which can
be simple TCP, TLS, etc.

Connections are kept open for their whole life. A connection that stays
silent for longer than the idle timeout is closed.
*/
type NetworkTransport struct {
	conns     map[string]*NetConn // map from session id to connection
	connsLock sync.RWMutex

	handler Handler

	logger hclog.Logger

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	// streamCtx is used to cancel existing connection handlers.
	streamCtx     context.Context
	streamCancel  context.CancelFunc
	streamCtxLock sync.RWMutex

	timeout      time.Duration
	idleTimeout  time.Duration
	maxFrameSize uint32
}

// setupStreamContext is used to create a new stream context. This should be
// called with the stream lock held.
func (n *NetworkTransport) setupStreamContext() {
	ctx, cancel := context.WithCancel(context.Background())
	n.streamCtx = ctx
	n.streamCancel = cancel
}

// getStreamContext is used retrieve the current stream context.
func (n *NetworkTransport) getStreamContext() context.Context {
	n.streamCtxLock.RLock()
	defer n.streamCtxLock.RUnlock()
	return n.streamCtx
}

// listen is used to handling incoming connections.
func (n *NetworkTransport) listen() {
	const baseDelay = 5 * time.Millisecond
	const maxDelay = 1 * time.Second

	var loopDelay time.Duration
	for {
		// Accept incoming connections
		c, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			if loopDelay == 0 {
				loopDelay = baseDelay
			} else {
				loopDelay *= 2
			}
			if loopDelay > maxDelay {
				loopDelay = maxDelay
			}
			n.logger.Error("failed to accept connection", "error", err)

			select {
			case <-n.shutdownCh:
				return
			case <-time.After(loopDelay):
				continue
			}
		}
		// No error, reset loop delay
		loopDelay = 0

		netC := newNetConn(uuid.NewString(), c.RemoteAddr().String(), false, c, n.timeout)
		if !n.addConn(netC) {
			_ = netC.Release()
			return
		}
		n.logger.Debug("accepted connection", "local-address", n.LocalAddr(),
			"remote-address", netC.target, "session", netC.id)

		// Handle the connection in dedicated routine
		go n.handleConn(n.getStreamContext(), netC)
	}
}

// handleConn is used to handle a connection for its lifespan. The
// handler will exit when the passed context is cancelled or the connection is
// closed.
func (n *NetworkTransport) handleConn(connCtx context.Context, netC *NetConn) {
	n.handler.HandleOpen(netC)

	var err error
	for {
		select {
		case <-connCtx.Done():
			err = ErrTransportShutdown
		default:
		}
		if err != nil {
			break
		}

		if n.idleTimeout > 0 {
			_ = netC.conn.SetReadDeadline(time.Now().Add(n.idleTimeout))
		}
		var data []byte
		if data, err = ReadFrame(netC.r, n.maxFrameSize); err != nil {
			break
		}
		n.handler.HandleFrame(netC, data)
	}

	if err != io.EOF && !n.IsShutdown() {
		n.logger.Debug("connection closed", "remote-address", netC.target, "session", netC.id, "error", err)
	}
	n.removeConn(netC)
	_ = netC.Release()
	n.handler.HandleClose(netC, err)
}

func (n *NetworkTransport) addConn(netC *NetConn) bool {
	n.connsLock.Lock()
	defer n.connsLock.Unlock()
	if n.IsShutdown() {
		return false
	}
	n.conns[netC.id] = netC
	return true
}

func (n *NetworkTransport) removeConn(netC *NetConn) {
	n.connsLock.Lock()
	defer n.connsLock.Unlock()
	delete(n.conns, netC.id)
}

// Conns returns the live connections.
func (n *NetworkTransport) Conns() []*NetConn {
	n.connsLock.RLock()
	defer n.connsLock.RUnlock()
	out := make([]*NetConn, 0, len(n.conns))
	for _, c := range n.conns {
		out = append(out, c)
	}
	return out
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	return n.stream.Addr().String()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// Close is used to stop the network transport. It closes the listener and
// every live connection.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()
		n.streamCtxLock.Lock()
		n.streamCancel()
		n.streamCtxLock.Unlock()
		for _, c := range n.Conns() {
			_ = c.Release()
		}
		n.shutdown = true
	}
	return nil
}

// Dial opens a connection to target and starts reading from it.
func (n *NetworkTransport) Dial(target string) (*NetConn, error) {
	if n.IsShutdown() {
		return nil, ErrTransportShutdown
	}
	c, err := n.stream.Dial(target, n.timeout)
	if err != nil {
		return nil, err
	}
	netC := newNetConn(uuid.NewString(), target, true, c, n.timeout)
	if !n.addConn(netC) {
		_ = netC.Release()
		return nil, ErrTransportShutdown
	}
	n.logger.Debug("connection has been established", "remote-address", target, "session", netC.id)
	go n.handleConn(n.getStreamContext(), netC)
	return netC, nil
}

// NetworkTransportConfig encapsulates configuration for the network transport layer.
type NetworkTransportConfig struct {
	Handler Handler

	Logger hclog.Logger

	// Dialer
	Stream StreamLayer

	// Timeout is used for dialing and as the write deadline of a frame.
	Timeout time.Duration

	// IdleTimeout closes a connection that delivers no frame for that long.
	// Zero disables it.
	IdleTimeout time.Duration

	MaxFrameSize uint32
}

// NewNetworkTransportWithConfig creates a new network transport with the given config struct.
func NewNetworkTransportWithConfig(
	config *NetworkTransportConfig,
) *NetworkTransport {
	if config.Logger == nil {
		config.Logger = hclog.New(&hclog.LoggerOptions{
			Name:   "poh-net",
			Output: hclog.DefaultOutput,
			Level:  hclog.DefaultLevel,
		})
	}
	if config.MaxFrameSize == 0 {
		config.MaxFrameSize = DefaultMaxFrameSize
	}
	trans := &NetworkTransport{
		conns:        make(map[string]*NetConn),
		handler:      config.Handler,
		logger:       config.Logger,
		shutdownCh:   make(chan struct{}),
		stream:       config.Stream,
		timeout:      config.Timeout,
		idleTimeout:  config.IdleTimeout,
		maxFrameSize: config.MaxFrameSize,
	}

	// Create the connection context and then start our listener.
	trans.setupStreamContext()
	go trans.listen()

	return trans
}

// NewNetworkTransport creates a new network transport with the given stream
// layer. The timeout is used to apply I/O deadlines.
func NewNetworkTransport(
	stream StreamLayer,
	timeout time.Duration,
	idleTimeout time.Duration,
	logger hclog.Logger,
	handler Handler,
) *NetworkTransport {
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{
			Name:   "poh-net",
			Output: os.Stderr,
			Level:  hclog.DefaultLevel,
		})
	}
	config := &NetworkTransportConfig{Stream: stream, Timeout: timeout, IdleTimeout: idleTimeout,
		Logger: logger, Handler: handler}
	return NewNetworkTransportWithConfig(config)
}

// SendFrame is used to frame and send data. The connection is released when
// the write fails, which ends its read loop as well.
func SendFrame(conn *NetConn, data []byte) error {
	conn.wLock.Lock()
	defer conn.wLock.Unlock()

	if conn.timeout > 0 {
		_ = conn.conn.SetWriteDeadline(time.Now().Add(conn.timeout))
	}
	if err := WriteFrame(conn.w, data); err != nil {
		conn.Release()
		return err
	}

	// Flush
	if err := conn.w.Flush(); err != nil {
		conn.Release()
		return err
	}
	return nil
}
