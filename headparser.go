package onewire

import (
	"bufio"
	"errors"
	"io"
)

// headLineReader accumulates CRLF-terminated lines from br, failing
// with ErrHeadTooLarge once the running total of head bytes (start-line
// plus every header line, including the terminating blank line) would
// exceed maxHeadSize. This is the "growable read buffer bounded by a
// configurable maximum head size" of §3, expressed directly in terms of
// bufio.Reader rather than a separate buffer type.
type headLineReader struct {
	br    *bufio.Reader
	total int
	max   int
}

func (h *headLineReader) readLine() (string, error) {
	line, err := h.br.ReadString('\n')
	h.total += len(line)
	if h.total > h.max {
		return "", ErrHeadTooLarge(errors.New("head exceeds configured maximum size"))
	}
	if err != nil {
		if err == io.EOF && line == "" {
			return "", io.EOF
		}
		return "", ErrMalformedHead(err)
	}
	return line, nil
}

// parseHead reads and validates one request head from br, returning a
// Request with Header, framing fields, and a chosen BodyReader
// populated, or an error classified per §7.
func parseHead(br *bufio.Reader, maxHeadSize int) (*Request, error) {
	hr := &headLineReader{br: br, max: maxHeadSize}

	startLine, err := hr.readLine()
	if err != nil {
		return nil, err
	}
	method, target, major, minor, err := parseRequestLine(startLine)
	if err != nil {
		return nil, ErrMalformedHead(err)
	}
	if major != 1 || (minor != 0 && minor != 1) {
		return nil, ErrUnsupportedVersion(errors.New("unsupported HTTP version"))
	}

	var h Header
	for {
		line, err := hr.readLine()
		if err != nil {
			return nil, err
		}
		if line == "\r\n" || line == "\n" {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			return nil, ErrMalformedHead(errors.New("obs-fold line continuation is not supported"))
		}
		trimmed := trimCRLFString(line)
		idx := indexByteString(trimmed, ':')
		if idx < 0 {
			return nil, ErrMalformedHead(errors.New("header line missing colon"))
		}
		name := trimOWS([]byte(trimmed[:idx]))
		if len(name) == 0 {
			return nil, ErrMalformedHead(errors.New("empty header name"))
		}
		value := trimOWS([]byte(trimmed[idx+1:]))
		h.Add(name, value)
	}

	contentLength, chunked, err := deriveFraming(&h)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Method:        method,
		Target:        target,
		ProtoMajor:    major,
		ProtoMinor:    minor,
		Header:        h,
		ContentLength: contentLength,
		Chunked:       chunked,
	}
	req.connectionTokens = lowercaseTokens(splitCommaTokens(h.Get(strConnection)))
	req.upgradeTokens = lowercaseTokens(splitCommaTokens(h.Get(strUpgrade)))
	req.expectContinue = tokenEq(trimOWS(h.Get(strExpect)), str100Cont)

	switch {
	case chunked:
		req.Body = newChunkedBody(br)
	case contentLength > 0:
		req.Body = newSizedBody(br, int(contentLength))
	default:
		req.Body = &emptyBody{}
	}

	return req, nil
}

// parseRequestLine splits "METHOD SP target SP HTTP/major.minor\r\n".
func parseRequestLine(line string) (method, target []byte, major, minor int, err error) {
	line = trimCRLFString(line)
	sp1 := indexByteString(line, ' ')
	if sp1 < 0 {
		return nil, nil, 0, 0, errors.New("malformed request line: missing method")
	}
	rest := line[sp1+1:]
	sp2 := indexByteString(rest, ' ')
	if sp2 < 0 {
		return nil, nil, 0, 0, errors.New("malformed request line: missing target")
	}
	methodStr := line[:sp1]
	targetStr := rest[:sp2]
	versionStr := rest[sp2+1:]

	if len(methodStr) == 0 || len(targetStr) == 0 {
		return nil, nil, 0, 0, errors.New("malformed request line: empty token")
	}
	maj, min, err := parseHTTPVersion(versionStr)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	return []byte(methodStr), []byte(targetStr), maj, min, nil
}

func parseHTTPVersion(v string) (major, minor int, err error) {
	const prefix = "HTTP/"
	if len(v) != len(prefix)+3 || v[:len(prefix)] != prefix {
		return 0, 0, errors.New("malformed HTTP version token")
	}
	maj := v[len(prefix)]
	dot := v[len(prefix)+1]
	min := v[len(prefix)+2]
	if maj < '0' || maj > '9' || dot != '.' || min < '0' || min > '9' {
		return 0, 0, errors.New("malformed HTTP version token")
	}
	return int(maj - '0'), int(min - '0'), nil
}

// deriveFraming applies §4.1's Content-Length/Transfer-Encoding rules
// and returns the resolved content length (-1 if chunked or absent) and
// whether the body is chunked. On success it also strips a
// Content-Length header that loses to a simultaneous chunked coding.
func deriveFraming(h *Header) (int64, bool, error) {
	var contentLength int64 = -1
	clValues := h.Values(strContentLength)
	if len(clValues) > 0 {
		first, err := ParseUint(trimOWS(clValues[0]))
		if err != nil {
			return 0, false, ErrMalformedHead(err)
		}
		for _, v := range clValues[1:] {
			n, err := ParseUint(trimOWS(v))
			if err != nil || n != first {
				return 0, false, ErrMalformedHead(errors.New("disagreeing Content-Length headers"))
			}
		}
		contentLength = int64(first)
	}

	teValues := h.Values(strTransferEncoding)
	chunked := false
	if len(teValues) > 0 {
		var tokens [][]byte
		for _, v := range teValues {
			tokens = append(tokens, splitCommaTokens(v)...)
		}
		if len(tokens) == 0 {
			return 0, false, ErrUnsupportedTransferCoding(errors.New("empty Transfer-Encoding"))
		}
		for i, tok := range tokens {
			if !tokenEq(tok, strChunked) {
				return 0, false, ErrUnsupportedTransferCoding(errors.New("unsupported transfer coding"))
			}
			if i != len(tokens)-1 {
				return 0, false, ErrUnsupportedTransferCoding(errors.New("chunked coding must be last"))
			}
		}
		chunked = true
	}

	if chunked {
		if contentLength >= 0 {
			h.Del(strContentLength)
		}
		contentLength = -1
	}

	return contentLength, chunked, nil
}
