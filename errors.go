package onewire

import "errors"

// StatusHint is the HTTP status code an error implies, if any. Errors that
// carry a non-zero hint let the engine respond with a specific status
// instead of falling back to 500.
type StatusHint interface {
	StatusHint() int
}

// kindError is a framing-level failure. Each carries the canonical status
// the engine answers with when no response bytes have reached the wire yet;
// the engine ignores status for kinds that always force a connection abort.
type kindError struct {
	kind   string
	status int
	err    error
}

func (e *kindError) Error() string {
	if e.err != nil {
		return e.kind + ": " + e.err.Error()
	}
	return e.kind
}

func (e *kindError) Unwrap() error { return e.err }

func (e *kindError) StatusHint() int { return e.status }

func newKindError(kind string, status int, err error) *kindError {
	return &kindError{kind: kind, status: status, err: err}
}

// ErrMalformedHead is returned when the start-line or header block violates
// RFC 7230 (bad request line, obs-fold, disagreeing Content-Length, ...).
// The engine responds 400 and closes.
func ErrMalformedHead(err error) error { return newKindError("malformed head", 400, err) }

// ErrHeadTooLarge is returned when the head exceeds the configured
// MaxHeadSize before a terminating CRLFCRLF is found. The engine responds
// 431 and closes.
func ErrHeadTooLarge(err error) error { return newKindError("head too large", 431, err) }

// ErrUnsupportedTransferCoding is returned for a Transfer-Encoding that
// names codings other than chunked, or names chunked out of final
// position. The engine responds 501 and closes.
func ErrUnsupportedTransferCoding(err error) error {
	return newKindError("unsupported transfer coding", 501, err)
}

// ErrUnsupportedVersion is returned for a request-line HTTP-version this
// engine does not speak. The engine responds 505 and closes.
func ErrUnsupportedVersion(err error) error { return newKindError("unsupported version", 505, err) }

// ErrBodyTooLargeOnDrain is returned by BodyReader.Drain when the unread
// remainder exceeds the drain cap; the connection cannot be reused.
var ErrBodyTooLargeOnDrain = errors.New("onewire: body too large to drain")

// ErrBrokenChunk is returned when chunk framing (size line, trailing CRLF,
// trailer block) is malformed.
var ErrBrokenChunk = errors.New("onewire: broken chunked encoding")

// ErrBodyClosed is returned by Sender.Close or Sender.Abort when the
// channel body has already been closed or aborted.
var ErrBodyClosed = errors.New("onewire: body already closed")

// ErrFramingMismatch is returned when an outbound Reader source with a
// declared length ends short, or overruns, its declared length.
var ErrFramingMismatch = errors.New("onewire: outbound body length mismatch")

// ErrChannelClosedWithoutEnd marks a chunked Channel body whose Sender was
// abandoned via Sender.Abort without a clean Close, as opposed to a normal
// end-of-body signal.
var ErrChannelClosedWithoutEnd = errors.New("onewire: channel body ended without a clean close")

// ErrReceiverGone is returned from Sender.Send after the connection that
// would have consumed the channel body has died.
var ErrReceiverGone = errors.New("onewire: body receiver is gone")

// ErrAmbiguousFraming names the case where a handler sets a Content-Length
// header on a response whose body source is a Channel of unknown length.
// The engine does not return or log this error: it writes the handler's
// Content-Length as given, writes every chunk the channel delivers without
// capping it at that length, and closes the connection afterward.
var ErrAmbiguousFraming = errors.New("onewire: response declares Content-Length with an unbounded channel body")
