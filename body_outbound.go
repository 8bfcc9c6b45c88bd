package onewire

import (
	"bufio"
	"io"
)

type bodyKind int

const (
	bodyEmpty bodyKind = iota
	bodyFixed
	bodyReader
	bodyChannel
)

// OutboundBody is the response body source, a tagged variant rather
// than a dynamic-dispatch interface so that the engine can inspect the
// chosen kind locally when deciding framing headers (§ design notes).
type OutboundBody struct {
	kind   bodyKind
	fixed  []byte
	reader io.Reader
	// readerLen is the declared length of a Reader body, or -1 if
	// unknown (the body is then EOF- or chunk-framed).
	readerLen int64
	receiver  *Receiver
}

// EmptyBody is a response with no body at all.
func EmptyBody() OutboundBody { return OutboundBody{kind: bodyEmpty} }

// FixedBody serves b verbatim; its length is always known.
func FixedBody(b []byte) OutboundBody {
	return OutboundBody{kind: bodyFixed, fixed: b}
}

// ReaderBody streams r. Pass a non-negative length if known (it is then
// enforced: emit fails with ErrFramingMismatch if r produces a
// different number of bytes); pass -1 if unknown.
func ReaderBody(r io.Reader, length int64) OutboundBody {
	return OutboundBody{kind: bodyReader, reader: r, readerLen: length}
}

// ChannelBody streams chunks published by the paired Sender. Length is
// never known up front.
func ChannelBody(r *Receiver) OutboundBody {
	return OutboundBody{kind: bodyChannel, receiver: r, readerLen: -1}
}

// knownLength reports the body's length if determinable without
// consuming it, per §3's response framing invariant.
func (b OutboundBody) knownLength() (int64, bool) {
	switch b.kind {
	case bodyEmpty:
		return 0, true
	case bodyFixed:
		return int64(len(b.fixed)), true
	case bodyReader:
		if b.readerLen >= 0 {
			return b.readerLen, true
		}
	}
	return 0, false
}

// cancelChannel releases a Channel body's producers without writing
// anything, used when the engine decides the response carries no body
// at all (1xx/204/304/HEAD).
func (b OutboundBody) cancelChannel() {
	if b.kind == bodyChannel {
		b.receiver.Cancel()
	}
}

// emit writes the body per the chosen wire framing. When chunked is
// true, every write is chunk-encoded and a zero-length terminator (plus
// any trailers) closes the body; otherwise bytes are written verbatim
// and the caller is responsible for having sized the connection
// correctly (Content-Length or EOF-on-close framing).
func (b OutboundBody) emit(w *bufio.Writer, chunked bool) error {
	switch b.kind {
	case bodyEmpty:
		return nil
	case bodyFixed:
		if err := emitBytes(w, b.fixed, chunked); err != nil {
			return err
		}
		if chunked && len(b.fixed) > 0 {
			return writeChunkTerminator(w, nil)
		}
		return nil
	case bodyReader:
		return b.emitReader(w, chunked)
	case bodyChannel:
		return b.emitChannel(w, chunked)
	default:
		return nil
	}
}

func emitBytes(w *bufio.Writer, p []byte, chunked bool) error {
	if len(p) == 0 {
		if chunked {
			return writeChunkTerminator(w, nil)
		}
		return nil
	}
	if chunked {
		return writeChunk(w, p)
	}
	_, err := w.Write(p)
	return err
}

func (b OutboundBody) emitReader(w *bufio.Writer, chunked bool) error {
	const maxBufSize = 32 * 1024
	bufSize := maxBufSize
	// A short declared length gets a buffer sized to it (rounded up to
	// the next power of two) instead of the full 32KB scratch buffer,
	// the same sizing rule the teacher applies to response buffers
	// whose eventual size is known ahead of time.
	if n := b.readerLen; n >= 0 && n < maxBufSize {
		if bufSize = roundUpForSliceCap(int(n)); bufSize == 0 {
			bufSize = 1
		}
	}
	buf := make([]byte, bufSize)
	var total int64
	for {
		n, rerr := b.reader.Read(buf)
		if n > 0 {
			total += int64(n)
			if b.readerLen >= 0 && total > b.readerLen {
				return ErrFramingMismatch
			}
			if werr := emitBytes(w, buf[:n], chunked); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	if b.readerLen >= 0 && total != b.readerLen {
		return ErrFramingMismatch
	}
	if chunked {
		return writeChunkTerminator(w, nil)
	}
	return nil
}

func (b OutboundBody) emitChannel(w *bufio.Writer, chunked bool) error {
	for {
		chunk, err := b.receiver.Next()
		if err == io.EOF {
			trailers := b.receiver.Trailers()
			if chunked {
				return writeChunkTerminator(w, &trailers)
			}
			return nil
		}
		if err == ErrChannelClosedWithoutEnd {
			// Truncated body: still emit a valid terminator so the
			// wire framing isn't left dangling, then report upward.
			if chunked {
				_ = writeChunkTerminator(w, nil)
			}
			return err
		}
		if err != nil {
			return err
		}
		if werr := emitBytes(w, chunk, chunked); werr != nil {
			return werr
		}
	}
}

func writeChunk(w *bufio.Writer, p []byte) error {
	if err := writeHexInt(w, len(p)); err != nil {
		return err
	}
	if _, err := w.Write(strCRLF); err != nil {
		return err
	}
	if _, err := w.Write(p); err != nil {
		return err
	}
	_, err := w.Write(strCRLF)
	return err
}

func writeChunkTerminator(w *bufio.Writer, trailers *Header) error {
	if _, err := w.Write(strZeroChunk); err != nil {
		return err
	}
	if trailers != nil {
		var err error
		trailers.VisitAll(func(name, value []byte) {
			if err != nil {
				return
			}
			if _, werr := w.Write(name); werr != nil {
				err = werr
				return
			}
			if _, werr := w.Write(strColonSpace); werr != nil {
				err = werr
				return
			}
			if _, werr := w.Write(value); werr != nil {
				err = werr
				return
			}
			_, err = w.Write(strCRLF)
		})
		if err != nil {
			return err
		}
	}
	_, err := w.Write(strCRLF)
	return err
}

var strZeroChunk = []byte("0\r\n")
