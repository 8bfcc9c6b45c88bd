package onewire

import (
	"bytes"
	"net"
)

// Request is a parsed request head plus its inbound body stream. Method
// and Target are opaque tokens copied from the wire; Target is never
// URL-decoded (the engine does not interpret it).
type Request struct {
	Method     []byte
	Target     []byte
	ProtoMajor int
	ProtoMinor int
	Header     Header
	Body       BodyReader

	// ContentLength is the negotiated length, or -1 if the body is
	// chunked or absent.
	ContentLength int64
	Chunked       bool

	connectionTokens [][]byte
	expectContinue   bool
	upgradeTokens    [][]byte

	remoteAddr net.Addr
	localAddr  net.Addr
	conn       Conn
}

// RemoteAddr returns the peer address of the connection this request
// arrived on.
func (r *Request) RemoteAddr() net.Addr { return r.remoteAddr }

// LocalAddr returns the local address of the connection this request
// arrived on.
func (r *Request) LocalAddr() net.Addr { return r.localAddr }

// HasConnectionToken reports whether the Connection header named tok
// (case-insensitively), e.g. "close", "keep-alive", "upgrade". tok must
// already be lowercase -- every caller in this package passes one of
// the package's lowercase token constants, matching the lowercased
// form connectionTokens was normalized to at parse time.
func (r *Request) HasConnectionToken(tok []byte) bool {
	for _, t := range r.connectionTokens {
		if bytes.Equal(t, tok) {
			return true
		}
	}
	return false
}

// WantsUpgrade reports whether the request asked to upgrade to proto
// (case-insensitively) via Connection: upgrade + Upgrade: <proto>.
func (r *Request) WantsUpgrade(proto []byte) bool {
	if !r.HasConnectionToken(strUpgradeTok) {
		return false
	}
	want := append([]byte(nil), proto...)
	lowercaseBytes(want)
	for _, t := range r.upgradeTokens {
		if bytes.Equal(t, want) {
			return true
		}
	}
	return false
}

// wantsKeepAlive resolves the per-version default: HTTP/1.1 connections
// stay open unless Connection: close is present; HTTP/1.0 connections
// close unless Connection: keep-alive is present.
func (r *Request) wantsKeepAlive() bool {
	if r.HasConnectionToken(strClose) {
		return false
	}
	if r.ProtoMajor == 1 && r.ProtoMinor == 0 {
		return r.HasConnectionToken(strKeepAlive)
	}
	return true
}

// TryClone exposes the underlying transport's cheap-clone capability,
// needed by an Upgrade callback that wants to keep reading/writing
// while the engine's goroutine unwinds.
func (r *Request) TryClone() (Conn, bool) {
	if r.conn == nil {
		return nil, false
	}
	return r.conn.TryClone()
}
