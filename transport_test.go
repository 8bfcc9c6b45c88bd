package onewire

import (
	"crypto/tls"
	"net"
	"testing"
	"time"
)

type fakeConn struct {
	net.Conn
}

func TestWrapConnPlain(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	wrapped := wrapConn(c1)
	if _, ok := wrapped.(*rawConn); !ok {
		t.Fatalf("wrapConn(net.Conn) = %T, want *rawConn", wrapped)
	}
}

func TestWrapConnTLS(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	tlsConnValue := tls.Client(c1, &tls.Config{InsecureSkipVerify: true})
	wrapped := wrapConn(tlsConnValue)
	if _, ok := wrapped.(*tlsConn); !ok {
		t.Fatalf("wrapConn(*tls.Conn) = %T, want *tlsConn", wrapped)
	}
}

func TestTLSConnTryCloneAlwaysFails(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	tc := &tlsConn{Conn: c1}
	clone, ok := tc.TryClone()
	if ok || clone != nil {
		t.Fatal("tlsConn.TryClone() must always refuse")
	}
}

func TestRawConnTryCloneUnsupportedTransport(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	rc := &rawConn{Conn: c1}
	clone, ok := rc.TryClone()
	if ok || clone != nil {
		t.Fatal("net.Pipe conns do not implement File(); TryClone() must report false")
	}
}

func TestTimeoutDeadlineNoop(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	rc := &rawConn{Conn: c1}
	if err := timeoutDeadline(rc, 0, false); err != nil {
		t.Fatalf("timeoutDeadline with zero duration must be a no-op, got %v", err)
	}
}

func TestTimeoutDeadlineSetsDeadline(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	rc := &rawConn{Conn: c1}
	if err := timeoutDeadline(rc, time.Second, true); err != nil {
		t.Fatalf("timeoutDeadline() err = %v", err)
	}
}
