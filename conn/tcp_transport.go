package conn

import (
	"net"
	"time"

	"github.com/hashicorp/go-hclog"
)

// tcpKeepAlive is the OS keepalive period of every connection. It only
// detects dead hosts; silent peers are handled by the idle timeout.
const tcpKeepAlive = 30 * time.Second

// StreamLayer is the listener and dialer a NetworkTransport runs on.
type StreamLayer interface {
	net.Listener

	// Dial opens an outgoing connection, giving up after timeout.
	Dial(address string, timeout time.Duration) (net.Conn, error)
}

// TCPStreamLayer is a StreamLayer over plain TCP. Every connection it
// accepts or dials has Nagle's algorithm off, since frames are small and
// latency matters more than packet count, and OS keepalive on.
type TCPStreamLayer struct {
	listener  *net.TCPListener
	keepAlive time.Duration
}

// ListenTCP binds bindAddr. Port 0 picks a free port, see Addr.
func ListenTCP(bindAddr string, keepAlive time.Duration) (*TCPStreamLayer, error) {
	addr, err := net.ResolveTCPAddr("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	list, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPStreamLayer{listener: list, keepAlive: keepAlive}, nil
}

func (t *TCPStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout, KeepAlive: t.keepAlive}
	c, err := dialer.Dial("tcp", address)
	if err != nil {
		return nil, err
	}
	t.tune(c)
	return c, nil
}

func (t *TCPStreamLayer) Accept() (net.Conn, error) {
	c, err := t.listener.AcceptTCP()
	if err != nil {
		return nil, err
	}
	t.tune(c)
	return c, nil
}

func (t *TCPStreamLayer) Close() error {
	return t.listener.Close()
}

func (t *TCPStreamLayer) Addr() net.Addr {
	return t.listener.Addr()
}

func (t *TCPStreamLayer) tune(c net.Conn) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tc.SetNoDelay(true)
	if t.keepAlive > 0 {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(t.keepAlive)
	}
}

// NewTCPTransport listens on bindAddr and serves every connection to handler.
// timeout bounds dials and frame writes; idleTimeout closes connections that
// deliver no frame for that long.
func NewTCPTransport(
	bindAddr string,
	timeout time.Duration,
	idleTimeout time.Duration,
	logger hclog.Logger,
	handler Handler,
) (*NetworkTransport, error) {
	stream, err := ListenTCP(bindAddr, tcpKeepAlive)
	if err != nil {
		return nil, err
	}
	return NewNetworkTransport(stream, timeout, idleTimeout, logger, handler), nil
}
