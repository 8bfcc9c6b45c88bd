package wsupgrade

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rzajac/onewire"
)

// requestWire is a minimal RFC 6455 handshake request; the Sec-WebSocket-Key
// is the one used in RFC 6455's own worked example, so the expected accept
// value is a known constant.
const requestWire = "GET /ws HTTP/1.1\r\n" +
	"Host: example.com\r\n" +
	"Connection: Upgrade\r\n" +
	"Upgrade: websocket\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"\r\n"

// dialAndHandshake starts a onewire.Server whose handler calls Accept with
// fn, sends wire over a real TCP connection (so Upgrade's TryClone call
// succeeds), and returns the status line's code plus headers read up to the
// blank line, leaving conn/br positioned right after the head for the
// caller to continue the exchange.
func dialAndHandshake(t *testing.T, wire string, fn func(*websocket.Conn)) (status string, headers []string, conn net.Conn, br *bufio.Reader) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() err = %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	s := onewire.NewServer(func(req *onewire.Request) (*onewire.Response, error) {
		return Accept(req, fn)
	})
	go s.Serve(ln)

	conn, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("net.Dial() err = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	conn.Write([]byte(wire))
	br = bufio.NewReader(conn)
	line, _ := br.ReadString('\n')
	fields := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(fields) >= 2 {
		status = fields[1]
	}
	for {
		h, _ := br.ReadString('\n')
		if h == "\r\n" || h == "" {
			break
		}
		headers = append(headers, h)
	}
	return status, headers, conn, br
}

func TestAcceptRejectsNonWebsocketRequest(t *testing.T) {
	status, _, _, _ := dialAndHandshake(t, "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n", nil)
	if status != "400" {
		t.Fatalf("status = %q, want 400", status)
	}
}

func TestAcceptRejectsMissingKey(t *testing.T) {
	wire := "GET /ws HTTP/1.1\r\nHost: x\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n\r\n"
	status, _, _, _ := dialAndHandshake(t, wire, nil)
	if status != "400" {
		t.Fatalf("status = %q, want 400", status)
	}
}

func TestAcceptBuildsHandshakeResponse(t *testing.T) {
	status, headers, _, _ := dialAndHandshake(t, requestWire, func(*websocket.Conn) {})
	if status != "101" {
		t.Fatalf("status = %q, want 101", status)
	}

	var gotAccept string
	for _, h := range headers {
		if strings.HasPrefix(strings.ToLower(h), "sec-websocket-accept:") {
			gotAccept = strings.TrimSpace(strings.SplitN(h, ":", 2)[1])
		}
	}
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if gotAccept != want {
		t.Fatalf("Sec-WebSocket-Accept = %q, want %q", gotAccept, want)
	}
}

func TestUpgradeCallbackDeliversFrames(t *testing.T) {
	received := make(chan string, 1)
	_, _, conn, br := dialAndHandshake(t, requestWire, func(c *websocket.Conn) {
		_, msg, err := c.ReadMessage()
		if err != nil {
			received <- "error: " + err.Error()
			return
		}
		received <- string(msg)
	})

	clientWS := websocket.NewConn(&bufferedTestConn{Conn: conn, br: br}, false, 0, 0, nil, nil)
	if err := clientWS.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("WriteMessage() err = %v", err)
	}

	select {
	case got := <-received:
		if got != "hello" {
			t.Fatalf("server received %q, want hello", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive the frame in time")
	}
}

// bufferedTestConn lets the test client keep reading from the bufio.Reader
// that already consumed bytes past the handshake response head, mirroring
// how onewire's own bufferedConn drains pre-read bytes for a hijacked
// server-side connection.
type bufferedTestConn struct {
	net.Conn
	br *bufio.Reader
}

func (c *bufferedTestConn) Read(p []byte) (int, error) {
	if c.br.Buffered() > 0 {
		return c.br.Read(p)
	}
	return c.Conn.Read(p)
}
