package onewire

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/valyala/bytebufferpool"
)

// BodyReader is the handler-facing inbound body stream. Exactly one
// implementation variant is chosen at head-parse time: Empty, Sized, or
// Chunked (see deriveFraming). ReadChunk blocks on the underlying
// connection; it never returns more than one network read's worth of
// bytes. A chunked body's wire chunk may come back split across several
// calls, but two wire chunks are never merged into one result
// (concatenation, not the split points, is the guaranteed invariant).
type BodyReader interface {
	// ReadChunk returns the next non-empty chunk of body bytes, or
	// io.EOF once the body is exhausted. The returned slice is valid
	// only until the next call.
	ReadChunk() ([]byte, error)

	// Trailers returns the trailer header fields observed after a
	// chunked body's terminator. It is only meaningful after ReadChunk
	// has returned io.EOF; it returns an empty Header for non-chunked
	// bodies.
	Trailers() *Header

	// Drain reads and discards any unread remainder, up to cap bytes.
	// It is a no-op if the body is already exhausted. ErrBodyTooLargeOnDrain
	// is returned, and the connection must be closed rather than reused,
	// if the remainder exceeds cap.
	Drain(cap int) error

	// ReadToEnd accumulates the remaining body, capped the same way as
	// Drain.
	ReadToEnd(cap int) ([]byte, error)

	// consumed reports whether the body has been read to completion
	// (naturally or via Drain/ReadToEnd).
	consumed() bool
}

// emptyBody is the inbound stream for bodiless requests: Content-Length: 0,
// or no framing headers at all.
type emptyBody struct{ trailers Header }

func (b *emptyBody) ReadChunk() ([]byte, error)  { return nil, io.EOF }
func (b *emptyBody) Trailers() *Header           { return &b.trailers }
func (b *emptyBody) Drain(int) error             { return nil }
func (b *emptyBody) ReadToEnd(int) ([]byte, error) { return nil, nil }
func (b *emptyBody) consumed() bool              { return true }

// sizedBody frames exactly n remaining bytes off r, per a Content-Length
// header. Trailers are never present for this framing.
type sizedBody struct {
	r         *bufio.Reader
	remaining int
	trailers  Header
	buf       [32 * 1024]byte
}

func newSizedBody(r *bufio.Reader, n int) *sizedBody {
	return &sizedBody{r: r, remaining: n}
}

func (b *sizedBody) ReadChunk() ([]byte, error) {
	if b.remaining == 0 {
		return nil, io.EOF
	}
	want := len(b.buf)
	if want > b.remaining {
		want = b.remaining
	}
	n, err := io.ReadAtLeast(b.r, b.buf[:want], 1)
	b.remaining -= n
	if n > 0 {
		if err == io.EOF {
			err = nil
		}
		return b.buf[:n], err
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, err
}

func (b *sizedBody) Trailers() *Header { return &b.trailers }

func (b *sizedBody) consumed() bool { return b.remaining == 0 }

func (b *sizedBody) Drain(cap int) error {
	if b.remaining == 0 {
		return nil
	}
	if b.remaining > cap {
		return ErrBodyTooLargeOnDrain
	}
	_, err := io.CopyN(io.Discard, b.r, int64(b.remaining))
	b.remaining = 0
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

func (b *sizedBody) ReadToEnd(cap int) ([]byte, error) {
	if b.remaining > cap {
		return nil, ErrBodyTooLargeOnDrain
	}
	out := make([]byte, b.remaining)
	if _, err := io.ReadFull(b.r, out); err != nil {
		return nil, err
	}
	b.remaining = 0
	return out, nil
}

// chunkedBody frames a chunked-transfer-coded body: a sequence of
// size-prefixed chunks terminated by a zero-length chunk, optionally
// followed by trailer headers and a final CRLF.
type chunkedBody struct {
	r        *bufio.Reader
	done     bool
	trailers Header
	buf      [32 * 1024]byte

	// chunkLeft is the number of bytes still unread within the chunk
	// currently being streamed; 0 means the next ReadChunk must parse a
	// new chunk-size line.
	chunkLeft int
}

func newChunkedBody(r *bufio.Reader) *chunkedBody {
	return &chunkedBody{r: r}
}

func (b *chunkedBody) ReadChunk() ([]byte, error) {
	if b.done {
		return nil, io.EOF
	}
	if b.chunkLeft == 0 {
		size, err := b.readChunkSizeLine()
		if err != nil {
			return nil, err
		}
		if size == 0 {
			if err := b.readTrailer(); err != nil {
				return nil, err
			}
			b.done = true
			return nil, io.EOF
		}
		b.chunkLeft = size
	}

	want := len(b.buf)
	if want > b.chunkLeft {
		want = b.chunkLeft
	}
	n, err := io.ReadAtLeast(b.r, b.buf[:want], 1)
	b.chunkLeft -= n
	if err != nil && err != io.EOF {
		return nil, err
	}
	if n == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	if b.chunkLeft == 0 {
		if err := b.readCRLF(); err != nil {
			return nil, ErrBrokenChunk
		}
	}
	return b.buf[:n], nil
}

// readChunkSizeLine parses `size [; chunk-ext] CRLF`. Extensions are
// scanned past but not retained.
func (b *chunkedBody) readChunkSizeLine() (int, error) {
	n, err := readHexInt(b.r)
	if err != nil {
		return 0, ErrBrokenChunk
	}
	// Skip chunk-ext (";...") up to the terminating CRLF.
	for {
		c, err := b.r.ReadByte()
		if err != nil {
			return 0, ErrBrokenChunk
		}
		if c == '\r' {
			break
		}
		if c == '\n' {
			// lenient: bare LF terminator
			return n, nil
		}
	}
	c, err := b.r.ReadByte()
	if err != nil || c != '\n' {
		return 0, ErrBrokenChunk
	}
	return n, nil
}

func (b *chunkedBody) readCRLF() error {
	var tmp [2]byte
	if _, err := io.ReadFull(b.r, tmp[:]); err != nil {
		return err
	}
	if !bytes.Equal(tmp[:], strCRLF) {
		return ErrBrokenChunk
	}
	return nil
}

// readTrailer consumes zero or more `name: value` lines followed by a
// final CRLF, after the zero-size chunk line has already been consumed.
func (b *chunkedBody) readTrailer() error {
	for {
		line, err := b.r.ReadString('\n')
		if err != nil {
			return ErrBrokenChunk
		}
		line = trimCRLFString(line)
		if line == "" {
			return nil
		}
		idx := indexByteString(line, ':')
		if idx < 0 {
			return ErrBrokenChunk
		}
		// s2b avoids copying name/value out of line before trimOWS
		// narrows them; Header.Add copies whatever survives the trim,
		// so no reference to line's backing array escapes this call.
		name := trimOWS(s2b(line[:idx]))
		value := trimOWS(s2b(line[idx+1:]))
		b.trailers.Add(name, value)
	}
}

func (b *chunkedBody) Trailers() *Header { return &b.trailers }

func (b *chunkedBody) consumed() bool { return b.done }

func (b *chunkedBody) Drain(cap int) error {
	return b.drainInto(nil, cap)
}

// ReadToEnd accumulates a chunked body into a pooled, growable buffer
// rather than repeated append-triggered reallocation, the same device
// the teacher's bytebufferpool serves for request/response bodies whose
// final size isn't known up front. The pool buffer is returned as soon
// as its contents are copied out, so it can be reused immediately
// rather than handed to the caller indefinitely.
func (b *chunkedBody) ReadToEnd(cap int) ([]byte, error) {
	buf := AcquireByteBuffer()
	defer ReleaseByteBuffer(buf)
	if err := b.drainInto(buf, cap); err != nil {
		return nil, err
	}
	out := make([]byte, len(buf.B))
	copy(out, buf.B)
	return out, nil
}

func (b *chunkedBody) drainInto(buf *bytebufferpool.ByteBuffer, cap int) error {
	total := 0
	for {
		chunk, err := b.ReadChunk()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		total += len(chunk)
		if total > cap {
			return ErrBodyTooLargeOnDrain
		}
		if buf != nil {
			buf.Write(chunk)
		}
	}
}

func trimCRLFString(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func indexByteString(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

var errShortChunkRead = errors.New("onewire: short read assembling chunk")

// continueBody wraps the chosen BodyReader variant for a request
// carrying Expect: 100-continue. The 100 Continue interim response is
// deferred until the handler actually attempts to read the body, per
// §4.3 -- a handler that rejects the request outright without reading
// never triggers it.
type continueBody struct {
	inner BodyReader
	bw    *bufio.Writer
	sent  bool
}

func (c *continueBody) maybeSend() error {
	if c.sent {
		return nil
	}
	c.sent = true
	if _, err := c.bw.WriteString("HTTP/1.1 100 Continue\r\n\r\n"); err != nil {
		return err
	}
	return c.bw.Flush()
}

func (c *continueBody) ReadChunk() ([]byte, error) {
	if err := c.maybeSend(); err != nil {
		return nil, err
	}
	return c.inner.ReadChunk()
}

func (c *continueBody) Trailers() *Header { return c.inner.Trailers() }

func (c *continueBody) Drain(cap int) error {
	if err := c.maybeSend(); err != nil {
		return err
	}
	return c.inner.Drain(cap)
}

func (c *continueBody) ReadToEnd(cap int) ([]byte, error) {
	if err := c.maybeSend(); err != nil {
		return nil, err
	}
	return c.inner.ReadToEnd(cap)
}

func (c *continueBody) consumed() bool { return c.inner.consumed() }
