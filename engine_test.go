package onewire

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rzajac/onewire/fasthttputil"
)

func serveOnPipe(t *testing.T, handler Handler) (client net.Conn, wait func() error) {
	t.Helper()
	pc := fasthttputil.NewPipeConns()
	client = pc.Conn1()
	srv := pc.Conn2()

	s := NewServer(handler)
	done := make(chan error, 1)
	go func() { done <- s.ServeConn(srv) }()
	return client, func() error {
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("engine did not finish in time")
			return nil
		}
	}
}

func TestEngineHelloWorld(t *testing.T) {
	client, wait := serveOnPipe(t, func(r *Request) (*Response, error) {
		resp := NewResponse(200)
		resp.Body = FixedBody([]byte("hello"))
		return resp, nil
	})

	client.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))

	br := bufio.NewReader(client)
	line, _ := br.ReadString('\n')
	if !strings.HasPrefix(line, "HTTP/1.1 200") {
		t.Fatalf("status line = %q", line)
	}

	body, _ := io.ReadAll(br)
	if !strings.Contains(string(body), "hello") {
		t.Fatalf("body missing hello: %q", body)
	}
	client.Close()
	wait()
}

func TestEnginePipelinedRequests(t *testing.T) {
	count := 0
	client, wait := serveOnPipe(t, func(r *Request) (*Response, error) {
		count++
		resp := NewResponse(200)
		resp.Body = FixedBody([]byte("ok"))
		if count == 2 {
			resp.Header.Set(strConnection, strClose)
		}
		return resp, nil
	})

	client.Write([]byte("GET /a HTTP/1.1\r\nHost: x\r\n\r\nGET /b HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))

	data, _ := io.ReadAll(client)
	n := strings.Count(string(data), "HTTP/1.1 200")
	if n != 2 {
		t.Fatalf("expected 2 responses, got %d: %q", n, data)
	}
	wait()
}

func TestEngineExpectContinue(t *testing.T) {
	var gotBody string
	client, wait := serveOnPipe(t, func(r *Request) (*Response, error) {
		buf, _ := r.Body.ReadChunk()
		gotBody = string(buf)
		resp := NewResponse(200)
		resp.Header.Set(strConnection, strClose)
		resp.Body = FixedBody(nil)
		return resp, nil
	})

	client.Write([]byte("POST /up HTTP/1.1\r\nHost: x\r\nContent-Length: 4\r\nExpect: 100-continue\r\n\r\n"))

	br := bufio.NewReader(client)
	line, _ := br.ReadString('\n')
	if !strings.HasPrefix(line, "HTTP/1.1 100") {
		t.Fatalf("expected 100-continue first, got %q", line)
	}

	client.Write([]byte("body"))
	io.ReadAll(br)
	wait()

	if gotBody != "body" {
		t.Fatalf("handler saw body = %q, want %q", gotBody, "body")
	}
}

func TestEngineExpectContinueSuppressedOnRejection(t *testing.T) {
	client, wait := serveOnPipe(t, func(r *Request) (*Response, error) {
		resp := NewResponse(401)
		resp.Body = FixedBody(nil)
		return resp, nil
	})

	client.Write([]byte("POST /up HTTP/1.1\r\nHost: x\r\nContent-Length: 4\r\nExpect: 100-continue\r\n\r\n"))

	// The handler never read the body, so the client is still holding it
	// back waiting for 100-continue. A compliant engine must answer with
	// 401 alone and close rather than send a trailing 100-continue or
	// block reading body bytes that will never arrive.
	data, err := io.ReadAll(client)
	if err != nil {
		t.Fatalf("io.ReadAll() err = %v", err)
	}
	wait()

	if strings.Contains(string(data), "100 Continue") {
		t.Fatalf("100-continue must never follow a final response: %q", data)
	}
	if !strings.HasPrefix(string(data), "HTTP/1.1 401") {
		t.Fatalf("response = %q, want 401", data)
	}
}

func TestEngineChunkedUploadWithTrailers(t *testing.T) {
	var gotTrailer string
	client, wait := serveOnPipe(t, func(r *Request) (*Response, error) {
		for {
			_, err := r.Body.ReadChunk()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("ReadChunk() err = %v", err)
			}
		}
		gotTrailer = string(r.Body.Trailers().GetString("X-Checksum"))
		resp := NewResponse(200)
		resp.Header.Set(strConnection, strClose)
		resp.Body = FixedBody(nil)
		return resp, nil
	})

	client.Write([]byte("POST /up HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"3\r\nfoo\r\n0\r\nX-Checksum: abc\r\n\r\n"))

	io.ReadAll(client)
	wait()

	if gotTrailer != "abc" {
		t.Fatalf("trailer = %q, want abc", gotTrailer)
	}
}

func TestEngineOversizedHeadRejected(t *testing.T) {
	client, wait := serveOnPipe(t, func(r *Request) (*Response, error) {
		return NewResponse(200), nil
	})

	big := "GET / HTTP/1.1\r\nX-Pad: " + strings.Repeat("a", 9000) + "\r\n\r\n"
	client.Write([]byte(big))

	br := bufio.NewReader(client)
	line, _ := br.ReadString('\n')
	if !strings.Contains(line, "431") {
		t.Fatalf("status line = %q, want 431", line)
	}
	wait()
}

func TestEngineUpgradeRefusedWhenCloneUnsupported(t *testing.T) {
	called := false
	client, wait := serveOnPipe(t, func(r *Request) (*Response, error) {
		resp := NewResponse(101)
		resp.Upgrade = func(c Conn) {
			called = true
		}
		return resp, nil
	})

	client.Write([]byte("GET /ws HTTP/1.1\r\nHost: x\r\nConnection: upgrade\r\nUpgrade: example\r\n\r\n"))

	br := bufio.NewReader(client)
	line, _ := br.ReadString('\n')
	if !strings.Contains(line, "500") {
		t.Fatalf("status line = %q, want 500 (clone unsupported over in-memory pipe)", line)
	}
	client.Close()
	wait()

	if called {
		t.Fatal("Upgrade callback must not run when cloning is refused")
	}
}
