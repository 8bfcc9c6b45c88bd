package onewire

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func newTestRequest(major, minor int, method string) *Request {
	return &Request{Method: []byte(method), ProtoMajor: major, ProtoMinor: minor}
}

func TestWriteResponseHeadInjectsContentLength(t *testing.T) {
	req := newTestRequest(1, 1, "GET")
	resp := NewResponse(200)
	resp.Body = FixedBody([]byte("Hello World"))

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	fd, err := writeResponseHead(w, req, resp)
	if err != nil {
		t.Fatalf("writeResponseHead() err = %v", err)
	}
	w.Flush()

	if fd.chunked || fd.bodiless || fd.closeAfter {
		t.Fatalf("fd = %+v, want all false", fd)
	}
	if !strings.Contains(buf.String(), "Content-Length: 11\r\n") {
		t.Fatalf("missing Content-Length: %q", buf.String())
	}
	if !strings.HasPrefix(buf.String(), "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("bad status line: %q", buf.String())
	}
}

func TestWriteResponseHeadChunkedForUnknownLengthHTTP11(t *testing.T) {
	req := newTestRequest(1, 1, "GET")
	resp := NewResponse(200)
	resp.Body = ReaderBody(strings.NewReader("x"), -1)

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	fd, err := writeResponseHead(w, req, resp)
	if err != nil {
		t.Fatalf("writeResponseHead() err = %v", err)
	}
	w.Flush()

	if !fd.chunked {
		t.Fatal("expected chunked framing")
	}
	if !strings.Contains(buf.String(), "Transfer-Encoding: chunked\r\n") {
		t.Fatalf("missing Transfer-Encoding: %q", buf.String())
	}
}

func TestWriteResponseHeadEOFFramingHTTP10(t *testing.T) {
	req := newTestRequest(1, 0, "GET")
	resp := NewResponse(200)
	resp.ProtoMajor, resp.ProtoMinor = 1, 0
	resp.Body = ReaderBody(strings.NewReader("x"), -1)

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	fd, err := writeResponseHead(w, req, resp)
	if err != nil {
		t.Fatalf("writeResponseHead() err = %v", err)
	}
	w.Flush()

	if !fd.closeAfter {
		t.Fatal("expected closeAfter for HTTP/1.0 unknown length")
	}
	if !strings.Contains(buf.String(), "Connection: close\r\n") {
		t.Fatalf("missing Connection: close: %q", buf.String())
	}
}

func TestWriteResponseHeadBodilessStripsFraming(t *testing.T) {
	req := newTestRequest(1, 1, "GET")
	resp := NewResponse(204)
	resp.Header.SetString("Content-Length", "5")
	resp.Body = FixedBody([]byte("xxxxx"))

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	fd, err := writeResponseHead(w, req, resp)
	if err != nil {
		t.Fatalf("writeResponseHead() err = %v", err)
	}
	w.Flush()

	if !fd.bodiless {
		t.Fatal("204 must be bodiless")
	}
	if strings.Contains(buf.String(), "Content-Length") {
		t.Fatalf("Content-Length must be stripped: %q", buf.String())
	}
}

func TestWriteResponseHeadHeadRequestBodiless(t *testing.T) {
	req := newTestRequest(1, 1, "HEAD")
	resp := NewResponse(200)
	resp.Body = FixedBody([]byte("ignored"))

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	fd, _ := writeResponseHead(w, req, resp)
	w.Flush()

	if !fd.bodiless {
		t.Fatal("HEAD response must be bodiless")
	}
}

func TestWriteResponseHeadExplicitContentLengthWithChannelForcesClose(t *testing.T) {
	req := newTestRequest(1, 1, "GET")
	_, receiver := NewChannelBody(4)
	resp := NewResponse(200)
	resp.Header.SetString("Content-Length", "100")
	resp.Body = ChannelBody(receiver)

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	fd, err := writeResponseHead(w, req, resp)
	if err != nil {
		t.Fatalf("writeResponseHead() err = %v", err)
	}
	w.Flush()

	if !fd.closeAfter {
		t.Fatal("explicit Content-Length with a Channel body must force closeAfter")
	}
	if !strings.Contains(buf.String(), "Content-Length: 100\r\n") {
		t.Fatalf("handler's Content-Length must be trusted verbatim: %q", buf.String())
	}
}

func TestWriteResponseHeadRequestCloseTokenForcesClose(t *testing.T) {
	req := newTestRequest(1, 1, "GET")
	req.connectionTokens = [][]byte{strClose}
	resp := NewResponse(200)
	resp.Body = FixedBody([]byte("ok"))

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	fd, _ := writeResponseHead(w, req, resp)
	w.Flush()

	if !fd.closeAfter {
		t.Fatal("request Connection: close must force closeAfter")
	}
}
