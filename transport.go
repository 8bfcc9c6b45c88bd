package onewire

import (
	"crypto/tls"
	"net"
	"os"
	"time"
)

// Conn is the byte-stream contract the engine drives: blocking read,
// blocking write, peer address, and cheap cloning of the underlying
// descriptor for Upgrade. TLS-wrapped connections satisfy the same
// interface but generally refuse TryClone, since cloning a raw fd would
// desynchronize the TLS record layer between the two handles.
type Conn interface {
	net.Conn

	// TryClone returns an independent handle sharing the same underlying
	// connection, or ok=false if this transport cannot be cloned cheaply.
	// The engine consults this only when servicing Upgrade.
	TryClone() (Conn, bool)
}

// wrapConn adapts a net.Conn into a Conn, choosing a TryClone strategy
// based on its concrete type.
func wrapConn(c net.Conn) Conn {
	if _, ok := c.(*tls.Conn); ok {
		return &tlsConn{Conn: c}
	}
	return &rawConn{Conn: c}
}

// rawConn clones by duplicating the OS file descriptor via (*os.File)
// obtained from the stdlib's File() accessor, then re-wrapping it with
// net.FileConn. This avoids any direct syscall dependency while still
// giving the clone independent kernel-level state, per net.Conn.File's
// documented behavior of returning a duplicated descriptor.
type rawConn struct {
	net.Conn
}

type filer interface {
	File() (*os.File, error)
}

func (c *rawConn) TryClone() (Conn, bool) {
	f, ok := c.Conn.(filer)
	if !ok {
		return nil, false
	}
	osf, err := f.File()
	if err != nil {
		return nil, false
	}
	defer osf.Close()

	nc, err := net.FileConn(osf)
	if err != nil {
		return nil, false
	}
	return &rawConn{Conn: nc}, true
}

// tlsConn never clones: the record layer's sequence numbers and cipher
// state live in the *tls.Conn itself, so a duplicated fd would see a
// byte stream neither handle could decode consistently. Upgrades that
// require cloning are declined over TLS.
type tlsConn struct {
	net.Conn
}

func (c *tlsConn) TryClone() (Conn, bool) { return nil, false }

// timeoutDeadline is a small helper shared by the engine to apply a
// read or write deadline only when the corresponding timeout is set.
func timeoutDeadline(c Conn, d time.Duration, write bool) error {
	if d <= 0 {
		return nil
	}
	deadline := time.Now().Add(d)
	if write {
		return c.SetWriteDeadline(deadline)
	}
	return c.SetReadDeadline(deadline)
}
