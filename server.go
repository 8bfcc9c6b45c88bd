package onewire

import (
	"bufio"
	"crypto/tls"
	"errors"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sync/errgroup"
)

// ServeHandler serves a single accepted connection to completion,
// closing it (or transferring ownership, for Upgrade) before returning.
type ServeHandler func(net.Conn) error

// Serve serves incoming connections from ln using handler and default
// Server settings. Use a *Server directly for custom tuning.
func Serve(ln net.Listener, handler Handler) error {
	return NewServer(handler).Serve(ln)
}

// ListenAndServe serves HTTP requests from addr using handler and
// default Server settings.
func ListenAndServe(addr string, handler Handler) error {
	return NewServer(handler).ListenAndServe(addr)
}

// ListenAndServeTLS serves HTTPS requests from addr using handler and
// default Server settings.
func ListenAndServeTLS(addr, certFile, keyFile string, handler Handler) error {
	return NewServer(handler).ListenAndServeTLS(addr, certFile, keyFile)
}

// ServeConn serves requests from c using handler and default Server
// settings, closing c before returning.
func ServeConn(c net.Conn, handler Handler) error {
	return NewServer(handler).ServeConn(c)
}

// ConnState is reported to Server.ConnState as a connection transitions
// through the worker pool, mirroring the teacher's hook shape so
// existing instrumentation patterns (metrics, idle tracking) carry over
// unchanged.
type ConnState int

const (
	StateServed ConnState = iota
	StateClosed
	StateHijacked
)

var errHijacked = errors.New("onewire: connection ownership transferred via Upgrade")

// ErrBadTrailer is not returned by this package's body readers, which
// report a malformed trailer block as ErrBrokenChunk; a connection error
// matching ErrBadTrailer is not logged by Serve.
var ErrBadTrailer = errors.New("onewire: malformed chunk trailer")

// DefaultConcurrency bounds the number of connections Serve will hand
// to its worker pool when Server.Concurrency is unset.
const DefaultConcurrency = 256 * 1024

const (
	defaultReadBufferSize  = 4096
	defaultWriteBufferSize = 4096
)

// Logger is used for logging formatted per-connection diagnostics:
// engine/transport-level failures, and errors a Handler returns
// (§7's logging hook).
type Logger interface {
	Printf(format string, args ...interface{})
}

var defaultLogger = Logger(log.New(os.Stderr, "", log.LstdFlags))

// Server accepts connections and drives each with the engine. It
// mirrors the teacher's worker-pool/per-IP-limiter/idle-list shape,
// generalized from RequestCtx-per-request dispatch to the Handler
// contract of §6.
type Server struct {
	// Handler processes every request; required.
	Handler Handler

	// Name is not read by the engine; the wire protocol carries no
	// Server header injection beyond what Handler sets.
	Name string

	// Concurrency bounds the number of connections served
	// simultaneously when not in SingleThreadMode.
	Concurrency int

	ReadBufferSize  int
	WriteBufferSize int

	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	KeepAliveTimeout time.Duration

	MaxHeadSize           int
	MaxDrainSize          int
	MaxPipelinedRequests  int
	ExpectContinueEnabled bool

	// MaxConnsPerIP limits concurrent connections per remote IPv4
	// address; 0 means unlimited.
	MaxConnsPerIP int

	// SingleThreadMode disables the worker pool and serves every
	// connection on the accepting goroutine -- for hosts that integrate
	// long-lived Upgraded connections into an external event loop (§9).
	SingleThreadMode bool

	Logger Logger
	Trace  *ServerTrace

	concurrency      uint32
	perIPConnCounter perIPConnCounter
	idle             idleConnList
}

func (s *Server) expectContinueEnabled() bool {
	// NewServer below sets ExpectContinueEnabled to true. A Server
	// built by literal has it false, and so 100-continue disabled,
	// unless the field is set explicitly.
	return s.ExpectContinueEnabled
}

// NewServer returns a Server with the documented defaults from §6
// applied (max_head_size 8192, max_drain_size 65536,
// expect_continue_enabled true).
func NewServer(handler Handler) *Server {
	return &Server{
		Handler:               handler,
		MaxHeadSize:           defaultMaxHeadSize,
		MaxDrainSize:          defaultMaxDrainSize,
		ExpectContinueEnabled: true,
	}
}

// ListenAndServe listens on the TCP network address addr and serves
// requests using SO_REUSEPORT-capable Listen.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := Listen("tcp", addr, ListenConfig{})
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// ListenAndServeTLS wraps ListenAndServe with a TLS listener built from
// certFile/keyFile.
func (s *Server) ListenAndServeTLS(addr, certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	tlsLn := tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}})
	return s.Serve(tlsLn)
}

// ListenAndServeTLSEmbed is like ListenAndServeTLS but the certificate
// and key are already loaded in memory rather than on disk.
func (s *Server) ListenAndServeTLSEmbed(addr string, certData, keyData []byte) error {
	cert, err := tls.X509KeyPair(certData, keyData)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	tlsLn := tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}})
	return s.Serve(tlsLn)
}

// ServeMulti runs Serve concurrently over every listener in lns -- for
// instance a plain TCP listener alongside a Unix-socket listener
// sharing the same Handler. The first listener to return a permanent
// error cancels the rest.
func (s *Server) ServeMulti(lns ...net.Listener) error {
	var g errgroup.Group
	for _, ln := range lns {
		ln := ln
		g.Go(func() error {
			err := s.Serve(ln)
			if err != nil {
				for _, other := range lns {
					if other != ln {
						other.Close()
					}
				}
			}
			return err
		})
	}
	return g.Wait()
}

// Serve accepts connections from ln until it returns a permanent error,
// dispatching each to the engine either via a worker pool or, in
// SingleThreadMode, inline on the accepting goroutine.
func (s *Server) Serve(ln net.Listener) error {
	startServerDateUpdater()
	defer stopServerDateUpdater()

	if s.SingleThreadMode {
		return s.serveSingleThreaded(ln)
	}

	var lastOverflowErrorTime time.Time
	var lastPerIPErrorTime time.Time

	maxWorkersCount := s.getConcurrency()
	wp := &connPool{
		WorkerFunc:      s.serveConn,
		MaxWorkersCount: maxWorkersCount,
		Logger:          s.logger(),
		connState:       s.reportConnState,
	}
	wp.Start()

	for {
		c, err := acceptConn(s, ln, &lastPerIPErrorTime)
		if err != nil {
			wp.Stop()
			if err == io.EOF {
				return nil
			}
			return err
		}
		if s.Trace != nil && s.Trace.GotConn != nil {
			s.Trace.GotConn(c)
		}
		if !wp.Serve(c) {
			c.Close()
			if time.Since(lastOverflowErrorTime) > time.Minute {
				s.logger().Printf("connection dropped: %d concurrent connections already served, increase Server.Concurrency", maxWorkersCount)
				lastOverflowErrorTime = time.Now()
			}
		}
	}
}

func (s *Server) serveSingleThreaded(ln net.Listener) error {
	var lastPerIPErrorTime time.Time
	for {
		c, err := acceptConn(s, ln, &lastPerIPErrorTime)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if s.Trace != nil && s.Trace.GotConn != nil {
			s.Trace.GotConn(c)
		}
		s.reportConnState(c, StateServed)
		err = s.serveConn(c)
		switch err {
		case errHijacked:
			s.reportConnState(c, StateHijacked)
		default:
			if err != nil {
				s.logConnError(c, err)
			}
			c.Close()
			s.reportConnState(c, StateClosed)
		}
	}
}

func acceptConn(s *Server, ln net.Listener, lastPerIPErrorTime *time.Time) (net.Conn, error) {
	for {
		c, err := ln.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Temporary() {
				s.logger().Printf("temporary accept error: %s", netErr)
				time.Sleep(time.Second)
				continue
			}
			if err != io.EOF && !strings.Contains(err.Error(), "use of closed network connection") {
				s.logger().Printf("permanent accept error: %s", err)
				return nil, err
			}
			return nil, io.EOF
		}
		if c == nil {
			panic("BUG: net.Listener returned (nil, nil)")
		}
		if s.MaxConnsPerIP > 0 {
			ip := getUint32IP(c)
			pic := wrapPerIPConn(s, c)
			if pic == nil {
				c.Close()
				if time.Since(*lastPerIPErrorTime) > time.Minute {
					// uint322ip round-trips the uint32 form wrapPerIPConn
					// keyed its counter on, rather than re-parsing
					// RemoteAddr a second time just to log it.
					s.logger().Printf("connections from %s exceed MaxConnsPerIP=%d", uint322ip(ip), s.MaxConnsPerIP)
					*lastPerIPErrorTime = time.Now()
				}
				continue
			}
			return pic, nil
		}
		return c, nil
	}
}

func wrapPerIPConn(s *Server, c net.Conn) net.Conn {
	ip := getUint32IP(c)
	if ip == 0 {
		return c
	}
	n := s.perIPConnCounter.Register(ip)
	if n > s.MaxConnsPerIP {
		s.perIPConnCounter.Unregister(ip)
		return nil
	}
	return acquirePerIPConn(c, ip, &s.perIPConnCounter)
}

func (s *Server) logger() Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return defaultLogger
}

func (s *Server) logConnError(c net.Conn, err error) {
	errStr := err.Error()
	if strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "reset by peer") ||
		strings.Contains(errStr, "unexpected EOF") ||
		strings.Contains(errStr, "i/o timeout") ||
		errors.Is(err, ErrBadTrailer) {
		return
	}
	s.logger().Printf("error serving connection %s<->%s: %v", c.LocalAddr(), c.RemoteAddr(), err)
}

func (s *Server) reportConnState(c net.Conn, cs ConnState) {
	if s.Trace == nil {
		return
	}
	switch cs {
	case StateServed:
		if s.Trace.ServedConn != nil {
			s.Trace.ServedConn(c)
		}
	case StateClosed:
		if s.Trace.ClosedConn != nil {
			s.Trace.ClosedConn(c)
		}
	case StateHijacked:
		if s.Trace.HijackedConn != nil {
			s.Trace.HijackedConn(c)
		}
	}
}

func (s *Server) getConcurrency() int {
	if s.Concurrency > 0 {
		return s.Concurrency
	}
	return DefaultConcurrency
}

// ServeConn runs the engine once over c, applying Server's per-IP and
// concurrency limits. The worker pool used by Serve calls serveConn
// directly and does not go through ServeConn.
func (s *Server) ServeConn(c net.Conn) error {
	if s.MaxConnsPerIP > 0 {
		pic := wrapPerIPConn(s, c)
		if pic == nil {
			c.Close()
			return errors.New("onewire: too many connections from this IP")
		}
		c = pic
	}

	n := atomic.AddUint32(&s.concurrency, 1)
	defer atomic.AddUint32(&s.concurrency, ^uint32(0))
	if n > uint32(s.getConcurrency()) {
		c.Close()
		return errors.New("onewire: Server.Concurrency concurrent connections already served")
	}

	err := s.serveConn(c)
	if err == errHijacked {
		return nil
	}
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Server) serveConn(c net.Conn) error {
	conn := wrapConn(c)
	readBufSize := s.ReadBufferSize
	if readBufSize <= 0 {
		readBufSize = defaultReadBufferSize
	}
	writeBufSize := s.WriteBufferSize
	if writeBufSize <= 0 {
		writeBufSize = defaultWriteBufferSize
	}

	item := &idleConnListItem{c: c}
	item.connTime.Store(coarseTimeNow().UnixNano())
	itemPtr := uintptr(unsafe.Pointer(item))
	s.idle.insertBack(itemPtr)
	defer s.idle.remove(itemPtr)

	e := &engine{
		conn:    conn,
		br:      bufio.NewReaderSize(conn, readBufSize),
		bw:      bufio.NewWriterSize(conn, writeBufSize),
		handler: s.Handler,
		logger:  s.logger(),
		trace:   s.Trace,
		idle:    item,
		cfg: &EngineConfig{
			MaxHeadSize:           s.MaxHeadSize,
			MaxDrainSize:          s.MaxDrainSize,
			ReadTimeout:           s.ReadTimeout,
			WriteTimeout:          s.WriteTimeout,
			KeepAliveTimeout:      s.KeepAliveTimeout,
			MaxPipelinedRequests:  s.MaxPipelinedRequests,
			ExpectContinueEnabled: s.expectContinueEnabled(),
		},
	}

	return e.serve()
}

// CloseIdleConnections force-closes every connection that has been
// parked between requests (waiting on the next pipelined read, or on
// its first request) for at least maxIdle, without waiting out
// KeepAliveTimeout. It's meant for graceful shutdown: stop accepting,
// then reclaim whatever is left idle rather than blocking on it.
//
// Connections with a request in flight are never touched -- once a
// request head has been read, the engine moves its idle-list entry's
// connTime far into the future, and refreshes it to the current time
// only when the engine loop comes back around to wait for more input.
func (s *Server) CloseIdleConnections(maxIdle time.Duration) {
	now := time.Now().UnixNano()
	var stale []net.Conn
	s.idle.forEach(func(item *idleConnListItem) {
		if time.Duration(now-item.connTime.Load()) >= maxIdle {
			stale = append(stale, item.c)
		}
	})
	// Closed outside forEach: Close triggers the read loop's error
	// return, whose deferred s.idle.remove would otherwise try to
	// re-lock idleConnList.mtx while forEach still holds it.
	for _, c := range stale {
		c.Close()
	}
}
