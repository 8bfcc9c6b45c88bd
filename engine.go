package onewire

import (
	"bufio"
	"errors"
	"io"
	"time"
)

// EngineConfig controls one connection's behavior; Server copies its
// fields into this narrower struct per accepted connection so the
// engine itself stays free of listener/pool concerns.
type EngineConfig struct {
	MaxHeadSize          int
	MaxDrainSize         int
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	KeepAliveTimeout     time.Duration
	MaxPipelinedRequests int
	ExpectContinueEnabled bool
}

const (
	defaultMaxHeadSize  = 8192
	defaultMaxDrainSize = 65536
)

func (c *EngineConfig) maxHeadSize() int {
	if c.MaxHeadSize > 0 {
		return c.MaxHeadSize
	}
	return defaultMaxHeadSize
}

func (c *EngineConfig) maxDrainSize() int {
	if c.MaxDrainSize > 0 {
		return c.MaxDrainSize
	}
	return defaultMaxDrainSize
}

// engine drives a single accepted connection through the state machine
// described in §4.3: Idle -> ReadingHead -> DispatchingHandler ->
// WritingResponse -> PostResponse -> (Idle | Upgrading | Closed).
type engine struct {
	conn    Conn
	br      *bufio.Reader
	bw      *bufio.Writer
	cfg     *EngineConfig
	handler Handler
	logger  Logger
	trace   *ServerTrace

	// idle tracks this connection's idle-list entry, nil when the
	// owning Server isn't tracking idle connections (e.g. ServeConn
	// called directly rather than through Server.Serve). Its connTime
	// is refreshed every time the loop comes back around to wait for
	// the next pipelined request, so CloseIdleConnections sees how
	// long a connection has actually been parked.
	idle *idleConnListItem
}

// serve runs the state machine to completion. It never returns a
// transport error for a cleanly closed connection; non-nil returns
// indicate something worth logging at the caller's discretion.
func (e *engine) serve() error {
	pipelined := 0
	for {
		if e.idle != nil {
			// coarseTimeNow avoids a time.Now() syscall on every
			// request/response turnaround; second-level precision is
			// plenty for deciding whether a connection has been idle
			// long enough for CloseIdleConnections to reclaim it.
			e.idle.connTime.Store(coarseTimeNow().UnixNano())
		}

		if err := timeoutDeadline(e.conn, e.cfg.ReadTimeout, false); err != nil {
			return err
		}

		req, perr := parseHead(e.br, e.cfg.maxHeadSize())
		if perr != nil {
			if perr == io.EOF {
				return nil
			}
			return e.respondToParseError(perr)
		}
		pipelined++
		if e.cfg.MaxPipelinedRequests > 0 && pipelined > e.cfg.MaxPipelinedRequests {
			return e.respondToParseError(ErrMalformedHead(errors.New("too many pipelined requests")))
		}
		if e.idle != nil {
			// A request in flight is not idle; a connTime in the far
			// future keeps CloseIdleConnections from counting it stale.
			e.idle.connTime.Store(1<<63 - 1)
		}

		req.remoteAddr = e.conn.RemoteAddr()
		req.localAddr = e.conn.LocalAddr()
		req.conn = e.conn

		if e.trace != nil && e.trace.GotRequest != nil {
			e.trace.GotRequest(req)
		}

		if e.cfg.ExpectContinueEnabled && req.expectContinue &&
			req.ProtoMajor == 1 && req.ProtoMinor >= 1 && !isEmptyBodyReader(req.Body) {
			req.Body = &continueBody{inner: req.Body, bw: e.bw}
		}

		resp, herr := e.invokeHandler(req)

		// §9's open question on cloning failure is resolved here: an
		// upgrade whose connection can't be cloned is refused with 500
		// before anything is written, rather than stranding the peer
		// after a 101 it can no longer have handed off cleanly.
		var upgradeClone Conn
		upgradeFn := resp.Upgrade
		if resp.StatusCode == 101 && upgradeFn != nil {
			clone, ok := e.conn.TryClone()
			if !ok {
				resp = canonicalErrorResponse(500)
				upgradeFn = nil
				if e.logger != nil {
					e.logger.Printf("upgrade refused: connection does not support cloning")
				}
			} else {
				upgradeClone = clone
			}
		}

		fd, werr := writeResponseHead(e.bw, req, resp)
		if werr == nil {
			if emitErr := resp.Body.emit(e.bw, fd.chunked); emitErr != nil {
				werr = emitErr
			}
		}
		if werr == nil {
			werr = e.bw.Flush()
		}
		if e.trace != nil && e.trace.WroteResponse != nil {
			e.trace.WroteResponse(req, resp, werr)
		}
		if werr != nil {
			if upgradeClone != nil {
				upgradeClone.Close()
			}
			return werr
		}
		_ = herr // handler error already folded into resp by invokeHandler

		if upgradeFn != nil {
			return e.upgrade(upgradeClone, upgradeFn)
		}

		if fd.closeAfter {
			return nil
		}

		if !req.Body.consumed() {
			if cb, ok := req.Body.(*continueBody); ok && !cb.sent {
				// The handler answered without ever reading the body, so
				// the 100-continue interim response was never sent and
				// the client is still holding it back waiting for one.
				// Draining here would block on bytes that are never
				// coming, and sending 100-continue now would trail a
				// final response already on the wire, so the connection
				// is closed instead of reused (§4.3's suppression rule).
				return nil
			}
			if err := req.Body.Drain(e.cfg.maxDrainSize()); err != nil {
				return nil
			}
		}

		if req.ProtoMajor == 1 && req.ProtoMinor == 0 && !req.wantsKeepAlive() {
			return nil
		}
		if !req.wantsKeepAlive() {
			return nil
		}

		if e.br.Buffered() == 0 && e.cfg.KeepAliveTimeout > 0 {
			if err := e.conn.SetReadDeadline(time.Now().Add(e.cfg.KeepAliveTimeout)); err != nil {
				return err
			}
		}
	}
}

// invokeHandler calls the handler and folds an error return into a
// canonical error Response, matching the Response-or-error contract
// without ever letting the error escape the connection (§7's
// propagation policy: per-connection errors are surfaced only to the
// logging hook).
func (e *engine) invokeHandler(req *Request) (*Response, error) {
	resp, err := e.handler(req)
	if err != nil {
		if e.logger != nil {
			e.logger.Printf("handler error: %v", err)
		}
		return canonicalErrorResponse(statusHintOf(err)), err
	}
	if resp == nil {
		return canonicalErrorResponse(500), errors.New("onewire: handler returned a nil response")
	}
	return resp, nil
}

// respondToParseError answers a head-parse failure with the canonical
// status for its kind and closes, per §4.3's ReadingHead transitions
// and §7's ErrorResponse state.
func (e *engine) respondToParseError(perr error) error {
	status := 400
	var ke *kindError
	if errors.As(perr, &ke) {
		status = ke.status
	}
	resp := canonicalErrorResponse(status)
	resp.ProtoMajor, resp.ProtoMinor = 1, 1
	resp.Header.Set(strConnection, strClose)
	if _, werr := writeResponseHead(e.bw, &Request{ProtoMajor: 1, ProtoMinor: 1, Method: []byte("GET")}, resp); werr != nil {
		return werr
	}
	if werr := resp.Body.emit(e.bw, false); werr != nil {
		return werr
	}
	return e.bw.Flush()
}

func canonicalErrorResponse(status int) *Response {
	resp := NewResponse(status)
	resp.Header.Set(strConnection, strClose)
	return resp
}

// upgrade hands the already-cloned connection to the handler's
// callback; the engine then stops touching the socket entirely
// (ownership transfer, §4.3 Upgrading state). The 101 response and any
// bytes already buffered in e.br were written/read before this is
// called; clone was obtained with TryClone while deciding whether the
// upgrade could proceed at all.
func (e *engine) upgrade(clone Conn, fn UpgradeFunc) error {
	if e.br.Buffered() > 0 {
		fn(&bufferedConn{Conn: clone, pending: e.br})
		return errHijacked
	}
	fn(clone)
	return errHijacked
}

// bufferedConn lets an Upgrade callback drain bytes the engine already
// read into e.br before handing off the raw connection.
type bufferedConn struct {
	Conn
	pending *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	if c.pending.Buffered() > 0 {
		return c.pending.Read(p)
	}
	return c.Conn.Read(p)
}

func isEmptyBodyReader(b BodyReader) bool {
	_, ok := b.(*emptyBody)
	return ok
}
