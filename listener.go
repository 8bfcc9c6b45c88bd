package onewire

import (
	"net"
	"time"

	"github.com/valyala/tcplisten"
)

// ListenConfig configures Listen. ReusePort maps directly to
// tcplisten.Config.ReusePort, letting a Server be run as several
// prefork'd processes sharing one port (see the prefork subpackage).
type ListenConfig struct {
	ReusePort   bool
	DeferAccept bool
	FastOpen    bool
	Backlog     int
}

// Listen returns a net.Listener for network ("tcp", "tcp4", "tcp6") and
// addr. For "unix" it falls back to net.Listen directly, since
// SO_REUSEPORT has no meaning for Unix-domain sockets.
func Listen(network, addr string, cfg ListenConfig) (net.Listener, error) {
	if network == "unix" || network == "unixpacket" {
		return net.Listen(network, addr)
	}
	tc := tcplisten.Config{
		ReusePort:   cfg.ReusePort,
		DeferAccept: cfg.DeferAccept,
		FastOpen:    cfg.FastOpen,
		Backlog:     cfg.Backlog,
	}
	return tc.NewListener(network, addr)
}

type TimeoutListener struct {
	// The original listener.
	Listener net.Listener

	// Maximum wait time for each read() operation on accepted connections.
	//
	// By default read timeout is disabled.
	ReadTimeout time.Duration

	// Maximum wait time for each write() operation on accepted connections.
	//
	// By default write timeout is disabled.
	WriteTimeout time.Duration
}

func (ln *TimeoutListener) Accept() (net.Conn, error) {
	c, err := ln.Listener.Accept()
	if err != nil {
		return nil, err
	}

	return &timeoutConn{
		Conn:         c,
		readTimeout:  ln.ReadTimeout,
		writeTimeout: ln.WriteTimeout,
	}, nil
}

func (ln *TimeoutListener) Addr() net.Addr {
	return ln.Listener.Addr()
}

func (ln *TimeoutListener) Close() error {
	return ln.Listener.Close()
}

type timeoutConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *timeoutConn) Write(b []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

func (c *timeoutConn) Read(b []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}
