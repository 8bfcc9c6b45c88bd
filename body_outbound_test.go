package onewire

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestFixedBodyEmitPlain(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	body := FixedBody([]byte("hello"))

	if n, ok := body.knownLength(); !ok || n != 5 {
		t.Fatalf("knownLength() = %d, %v, want 5, true", n, ok)
	}
	if err := body.emit(w, false); err != nil {
		t.Fatalf("emit() err = %v", err)
	}
	w.Flush()
	if buf.String() != "hello" {
		t.Fatalf("wrote %q, want %q", buf.String(), "hello")
	}
}

func TestFixedBodyEmitChunked(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	body := FixedBody([]byte("hi"))

	if err := body.emit(w, true); err != nil {
		t.Fatalf("emit() err = %v", err)
	}
	w.Flush()
	if buf.String() != "2\r\nhi\r\n0\r\n\r\n" {
		t.Fatalf("wrote %q, want %q", buf.String(), "2\r\nhi\r\n0\r\n\r\n")
	}
}

func TestReaderBodyKnownLengthMismatch(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	body := ReaderBody(strings.NewReader("short"), 10)

	if err := body.emit(w, false); err != ErrFramingMismatch {
		t.Fatalf("emit() = %v, want ErrFramingMismatch", err)
	}
}

func TestReaderBodyUnknownLengthChunked(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	body := ReaderBody(strings.NewReader("abc"), -1)

	if err := body.emit(w, true); err != nil {
		t.Fatalf("emit() err = %v", err)
	}
	w.Flush()
	if buf.String() != "3\r\nabc\r\n0\r\n\r\n" {
		t.Fatalf("wrote %q", buf.String())
	}
}

func TestChannelBodyEmitCleanClose(t *testing.T) {
	sender, receiver := NewChannelBody(4)
	body := ChannelBody(receiver)

	go func() {
		sender.Send([]byte("foo"))
		sender.Send([]byte("bar"))
		trailers := Header{}
		trailers.SetString("X-Done", "yes")
		sender.Close(trailers)
	}()

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := body.emit(w, true); err != nil {
		t.Fatalf("emit() err = %v", err)
	}
	w.Flush()

	want := "3\r\nfoo\r\n3\r\nbar\r\n0\r\nX-Done: yes\r\n\r\n"
	if buf.String() != want {
		t.Fatalf("wrote %q, want %q", buf.String(), want)
	}
}

func TestChannelBodyEmitAbortWritesTerminator(t *testing.T) {
	sender, receiver := NewChannelBody(4)
	body := ChannelBody(receiver)

	go func() {
		sender.Send([]byte("x"))
		sender.Abort(nil)
	}()

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	err := body.emit(w, true)
	w.Flush()

	if err != ErrChannelClosedWithoutEnd {
		t.Fatalf("emit() = %v, want ErrChannelClosedWithoutEnd", err)
	}
	if !strings.HasSuffix(buf.String(), "0\r\n\r\n") {
		t.Fatalf("expected a terminator to still be written, got %q", buf.String())
	}
}

func TestCancelChannelReleasesSender(t *testing.T) {
	sender, receiver := NewChannelBody(1)
	body := ChannelBody(receiver)
	body.cancelChannel()

	if err := sender.Send([]byte("x")); err != ErrReceiverGone {
		t.Fatalf("Send() after cancel = %v, want ErrReceiverGone", err)
	}
}
