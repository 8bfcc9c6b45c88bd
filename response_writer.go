package onewire

import (
	"bufio"
	"net/http"
	"strconv"
)

// framingDecision is what writeResponseHead works out before any body
// bytes are written, per §3 and §4.3's "framing header injection" rule.
type framingDecision struct {
	chunked    bool
	bodiless   bool
	closeAfter bool
}

// writeResponseHead serializes the status line and headers, injecting
// exactly one framing header (Content-Length or Transfer-Encoding:
// chunked) unless the response is bodiless or EOF-framed, and injects a
// Date header when the handler omitted one. It returns the framing
// decision the caller must honor when emitting the body.
func writeResponseHead(w *bufio.Writer, req *Request, resp *Response) (framingDecision, error) {
	major, minor := resp.ProtoMajor, resp.ProtoMinor
	if major == 0 && minor == 0 {
		major, minor = req.ProtoMajor, req.ProtoMinor
	}

	fd := framingDecision{
		bodiless: isBodiless(resp.StatusCode, req.Method),
	}

	if fd.bodiless {
		resp.Header.Del(strContentLength)
		resp.Header.Del(strTransferEncoding)
		resp.Body.cancelChannel()
	} else {
		known, hasKnown := resp.Body.knownLength()
		declared := resp.Header.Get(strContentLength)

		switch {
		case len(declared) > 0:
			// Handler set Content-Length itself. A Reader body must
			// match it exactly (enforced in emitReader); a Channel
			// body of unknown length is the open-question case: the
			// header is written as given, the channel is written in
			// full without a cap, and the connection is closed
			// afterward (§9).
			if resp.Body.kind == bodyChannel {
				fd.closeAfter = true
			} else if hasKnown {
				if n, err := strconv.ParseInt(string(declared), 10, 64); err == nil && n != known {
					fd.closeAfter = true
				}
			}
		case hasKnown:
			resp.Header.Set(strContentLength, AppendUint(nil, int(known)))
		case major == 1 && minor == 1:
			resp.Header.Set(strTransferEncoding, strChunked)
			fd.chunked = true
		default:
			// HTTP/1.0 with no declared length: EOF framing.
			resp.Header.Set(strConnection, strClose)
			fd.closeAfter = true
		}
	}

	if !resp.Header.Has(strDate) {
		resp.Header.Set(strDate, getServerDate())
	}

	if req.HasConnectionToken(strClose) || resp.Header.Has(strConnection) && hasToken(resp.Header.Get(strConnection), strClose) {
		fd.closeAfter = true
	}
	if major == 1 && minor == 0 && !hasToken(resp.Header.Get(strConnection), strKeepAlive) {
		fd.closeAfter = true
	}

	if err := writeStatusLine(w, major, minor, resp); err != nil {
		return fd, err
	}
	var werr error
	resp.Header.VisitAll(func(name, value []byte) {
		if werr != nil {
			return
		}
		if _, err := w.Write(name); err != nil {
			werr = err
			return
		}
		if _, err := w.Write(strColonSpace); err != nil {
			werr = err
			return
		}
		if _, err := w.Write(value); err != nil {
			werr = err
			return
		}
		_, werr = w.Write(strCRLF)
	})
	if werr != nil {
		return fd, werr
	}
	_, err := w.Write(strCRLF)
	return fd, err
}

func writeStatusLine(w *bufio.Writer, major, minor int, resp *Response) error {
	if _, err := w.WriteString("HTTP/"); err != nil {
		return err
	}
	if _, err := w.WriteString(strconv.Itoa(major)); err != nil {
		return err
	}
	if err := w.WriteByte('.'); err != nil {
		return err
	}
	if _, err := w.WriteString(strconv.Itoa(minor)); err != nil {
		return err
	}
	if err := w.WriteByte(' '); err != nil {
		return err
	}
	if _, err := w.WriteString(strconv.Itoa(resp.StatusCode)); err != nil {
		return err
	}
	if err := w.WriteByte(' '); err != nil {
		return err
	}
	reason := resp.Reason
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	if _, err := w.WriteString(reason); err != nil {
		return err
	}
	_, err := w.Write(strCRLF)
	return err
}

func isBodiless(statusCode int, method []byte) bool {
	if statusCode/100 == 1 || statusCode == 204 || statusCode == 304 {
		return true
	}
	return tokenEq(method, strHead)
}

func hasToken(value, tok []byte) bool {
	for _, t := range splitCommaTokens(value) {
		if tokenEq(t, tok) {
			return true
		}
	}
	return false
}
