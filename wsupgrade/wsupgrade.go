// Package wsupgrade adapts gorilla/websocket's server-side framing onto
// the onewire connection-upgrade contract: a Handler that wants to
// speak WebSocket answers 101 with an onewire.UpgradeFunc, and this
// package builds the 101 handshake response itself and turns the cloned
// raw connection into a *websocket.Conn with websocket.NewConn.
package wsupgrade

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/rzajac/onewire"
)

// websocketGUID is the fixed GUID RFC 6455 section 1.3 defines for
// deriving Sec-WebSocket-Accept from Sec-WebSocket-Key.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

func computeAcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Upgrader mirrors websocket.Upgrader's knobs relevant to a server that
// never owned an http.ResponseWriter in the first place.
type Upgrader struct {
	ReadBufferSize  int
	WriteBufferSize int
	Subprotocols    []string
}

// Accept validates req as a WebSocket handshake and, if valid, returns a
// Response whose Upgrade callback hands the connection to fn once the
// 101 response is on the wire. fn receives the live *websocket.Conn.
//
// Accept itself does not write the 101 response; onewire's engine does,
// from the Response this returns, with Sec-WebSocket-Accept computed
// here from the request's Sec-WebSocket-Key. The Upgrade callback does
// no further handshake work: it wraps the raw connection in a
// server-side *websocket.Conn and passes it to fn.
func Accept(req *onewire.Request, fn func(*websocket.Conn)) (*onewire.Response, error) {
	if !req.WantsUpgrade([]byte("websocket")) {
		return nil, errNotWebsocket
	}

	key := req.Header.GetString("Sec-WebSocket-Key")
	if len(key) == 0 {
		return nil, errNotWebsocket
	}

	resp := onewire.NewResponse(101)
	resp.Header.SetString("Upgrade", "websocket")
	resp.Header.SetString("Connection", "Upgrade")
	resp.Header.SetString("Sec-WebSocket-Accept", computeAcceptKey(string(key)))
	resp.Upgrade = func(conn onewire.Conn) {
		br := bufio.NewReader(conn)
		wsConn := websocket.NewConn(conn, true, 0, 0, br, nil)
		fn(wsConn)
	}
	return resp, nil
}

var errNotWebsocket = &upgradeError{"not a websocket upgrade request"}

type upgradeError struct{ msg string }

func (e *upgradeError) Error() string { return e.msg }

func (e *upgradeError) StatusHint() int { return http.StatusBadRequest }
