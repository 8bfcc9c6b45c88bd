// Package onewire implements a synchronous HTTP/1.0 and HTTP/1.1 server
// engine: incremental request parsing off a blocking byte stream, streaming
// request/response bodies, persistent connections with pipelining, chunked
// transfer coding with trailers, 100-continue, and connection upgrade to
// arbitrary byte protocols.
//
// The engine is thread-per-connection: Server hands each accepted net.Conn
// to a worker goroutine, which runs the connection state machine
// sequentially until the connection closes or is upgraded. Concurrency
// beyond a single connection is the caller's concern; the only cross-thread
// primitive inside a connection is the outbound Channel body, which lets a
// handler's own goroutines publish response chunks while the connection
// goroutine drains and writes them.
//
// HTTP/2, HTTP/3, request routing and in-memory buffering of entire bodies
// are out of scope. Callers provide a net.Listener (optionally TLS-wrapped)
// and a Handler; everything else -- framing, keep-alive, pipelining,
// upgrade -- is handled by Server.
package onewire
