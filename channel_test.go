package onewire

import (
	"io"
	"testing"
)

func TestChannelSendReceiveOrder(t *testing.T) {
	sender, receiver := NewChannelBody(2)

	go func() {
		sender.Send([]byte("a"))
		sender.Send([]byte("b"))
		sender.Close(Header{})
	}()

	var got []string
	for {
		chunk, err := receiver.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() unexpected err: %v", err)
		}
		got = append(got, string(chunk))
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v, want [a b]", got)
	}
}

func TestChannelAbortDefaultError(t *testing.T) {
	sender, receiver := NewChannelBody(1)
	sender.Abort(nil)

	_, err := receiver.Next()
	if err != ErrChannelClosedWithoutEnd {
		t.Fatalf("Next() = %v, want ErrChannelClosedWithoutEnd", err)
	}
}

func TestChannelCloseTwiceErrors(t *testing.T) {
	sender, _ := NewChannelBody(1)
	if err := sender.Close(Header{}); err != nil {
		t.Fatalf("first Close() = %v, want nil", err)
	}
	if err := sender.Close(Header{}); err != ErrBodyClosed {
		t.Fatalf("second Close() = %v, want ErrBodyClosed", err)
	}
}

func TestChannelCancelUnblocksSend(t *testing.T) {
	sender, receiver := NewChannelBody(1)
	sender.Send([]byte("fill")) // fills the one-slot buffer

	receiver.Cancel()

	done := make(chan error, 1)
	go func() { done <- sender.Send([]byte("blocked")) }()

	if err := <-done; err != ErrReceiverGone {
		t.Fatalf("Send() after cancel = %v, want ErrReceiverGone", err)
	}
}
