package onewire

import "testing"

func TestHeaderCaseInsensitiveGet(t *testing.T) {
	var h Header
	h.SetString("Content-Type", "text/plain")

	if v := h.GetString("content-type"); string(v) != "text/plain" {
		t.Fatalf("GetString(content-type) = %q, want text/plain", v)
	}
	if !h.Has([]byte("CONTENT-TYPE")) {
		t.Fatal("Has() should be case-insensitive")
	}
}

func TestHeaderAddPreservesRepeats(t *testing.T) {
	var h Header
	h.AddString("X-Tag", "a")
	h.AddString("X-Tag", "b")

	vals := h.Values([]byte("X-Tag"))
	if len(vals) != 2 || string(vals[0]) != "a" || string(vals[1]) != "b" {
		t.Fatalf("Values() = %v, want [a b]", vals)
	}
}

func TestHeaderSetReplacesAllAndKeepsPosition(t *testing.T) {
	var h Header
	h.AddString("X-Tag", "a")
	h.AddString("Other", "1")
	h.AddString("X-Tag", "b")
	h.SetString("X-Tag", "c")

	if h.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", h.Len())
	}
	var order []string
	h.VisitAll(func(name, value []byte) { order = append(order, string(name)) })
	if order[0] != "X-Tag" || order[1] != "Other" {
		t.Fatalf("order = %v, want [X-Tag Other]", order)
	}
	if v := h.GetString("x-tag"); string(v) != "c" {
		t.Fatalf("GetString() = %q, want c", v)
	}
}

func TestHeaderDel(t *testing.T) {
	var h Header
	h.AddString("X-Tag", "a")
	h.AddString("X-Tag", "b")
	h.AddString("Other", "1")
	h.Del([]byte("x-tag"))

	if h.Has([]byte("X-Tag")) {
		t.Fatal("Del() should remove every matching field")
	}
	if h.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", h.Len())
	}
}
