package onewire

// UpgradeFunc is invoked on the connection's own goroutine once a 101
// response has been flushed. It owns the raw byte stream from that
// point on; the engine never touches the connection again.
type UpgradeFunc func(conn Conn)

// Response is what a Handler returns on success. The two framing
// headers (Content-Length, Transfer-Encoding) are normally left for the
// engine to inject per §3/§4.3; a handler may set Content-Length itself
// (e.g. to match a Reader body it knows the length of in advance).
type Response struct {
	StatusCode int
	// Reason overrides the canonical reason phrase for StatusCode when
	// non-empty.
	Reason string

	ProtoMajor int
	ProtoMinor int

	Header Header
	Body   OutboundBody

	// Upgrade, when non-nil alongside StatusCode 101, hands the cloned
	// connection to the callback instead of closing or reusing it.
	Upgrade UpgradeFunc
}

// NewResponse returns an HTTP/1.1 Response with the given status code,
// an empty body and no headers set.
func NewResponse(statusCode int) *Response {
	return &Response{StatusCode: statusCode, ProtoMajor: 1, ProtoMinor: 1, Body: EmptyBody()}
}

// Handler is the sole collaborator contract the engine drives: a
// function from a parsed Request to either a Response or an error. An
// error may optionally implement StatusHint to pick the status code of
// the canonical error response; otherwise 500 is used. This is Go's
// natural rendering of the "Response-or-error" tagged return the design
// notes call for -- no inheritance, just a second return value.
type Handler func(*Request) (*Response, error)

func statusHintOf(err error) int {
	if h, ok := err.(StatusHint); ok {
		if code := h.StatusHint(); code != 0 {
			return code
		}
	}
	return 500
}
