package onewire

import (
	"bytes"

	"github.com/intuitivelabs/bytescase"
)

// HeaderField is a single name/value pair as it appeared on the wire.
// Names are compared case-insensitively but stored verbatim so that
// Response serialization round-trips the caller's preferred casing.
type HeaderField struct {
	Name  []byte
	Value []byte
}

// Header is an ordered, repeat-allowed list of header fields. Order of
// insertion is preserved; lookups are case-insensitive per RFC 7230 section
// 3.2.
type Header struct {
	fields []HeaderField
}

// Len returns the number of fields, counting repeats.
func (h *Header) Len() int { return len(h.fields) }

// Reset discards all fields, retaining the backing array for reuse.
func (h *Header) Reset() { h.fields = h.fields[:0] }

// Add appends a new field without removing any existing field of the same
// name, matching HTTP's repeat-allowed header semantics.
func (h *Header) Add(name, value []byte) {
	n := append([]byte(nil), name...)
	v := append([]byte(nil), value...)
	h.fields = append(h.fields, HeaderField{Name: n, Value: v})
}

// AddString is the string-argument convenience form of Add.
func (h *Header) AddString(name, value string) {
	h.Add([]byte(name), []byte(value))
}

// Set replaces all existing fields named name with a single field carrying
// value, preserving the position of the first match (or appending if none
// existed).
func (h *Header) Set(name, value []byte) {
	for i := range h.fields {
		if bytescase.CmpEq(h.fields[i].Name, name) {
			h.fields[i].Value = append([]byte(nil), value...)
			h.removeFrom(i + 1, name)
			return
		}
	}
	h.Add(name, value)
}

// SetString is the string-argument convenience form of Set.
func (h *Header) SetString(name, value string) {
	h.Set([]byte(name), []byte(value))
}

func (h *Header) removeFrom(start int, name []byte) {
	out := h.fields[:start]
	for _, f := range h.fields[start:] {
		if bytescase.CmpEq(f.Name, name) {
			continue
		}
		out = append(out, f)
	}
	h.fields = out
}

// Del removes every field named name.
func (h *Header) Del(name []byte) {
	out := h.fields[:0]
	for _, f := range h.fields {
		if bytescase.CmpEq(f.Name, name) {
			continue
		}
		out = append(out, f)
	}
	h.fields = out
}

// Get returns the value of the first field named name, or nil if absent.
func (h *Header) Get(name []byte) []byte {
	for i := range h.fields {
		if bytescase.CmpEq(h.fields[i].Name, name) {
			return h.fields[i].Value
		}
	}
	return nil
}

// GetString is the string-argument convenience form of Get.
func (h *Header) GetString(name string) []byte {
	return h.Get([]byte(name))
}

// Has reports whether any field named name is present.
func (h *Header) Has(name []byte) bool {
	for i := range h.fields {
		if bytescase.CmpEq(h.fields[i].Name, name) {
			return true
		}
	}
	return false
}

// VisitAll calls f for every field in insertion order. f must not retain
// the byte slices past the call.
func (h *Header) VisitAll(f func(name, value []byte)) {
	for i := range h.fields {
		f(h.fields[i].Name, h.fields[i].Value)
	}
}

// Values returns a newly allocated slice with the value of every field
// named name, in insertion order.
func (h *Header) Values(name []byte) [][]byte {
	var out [][]byte
	for i := range h.fields {
		if bytescase.CmpEq(h.fields[i].Name, name) {
			out = append(out, h.fields[i].Value)
		}
	}
	return out
}

var (
	strContentLength    = []byte("Content-Length")
	strTransferEncoding = []byte("Transfer-Encoding")
	strConnection       = []byte("Connection")
	strExpect           = []byte("Expect")
	strUpgrade          = []byte("Upgrade")
	strTrailer          = []byte("Trailer")
	strDate             = []byte("Date")
	strHost             = []byte("Host")

	strChunked    = []byte("chunked")
	strClose      = []byte("close")
	strKeepAlive  = []byte("keep-alive")
	strUpgradeTok = []byte("upgrade")
	str100Cont    = []byte("100-continue")
)

// splitCommaTokens splits a comma-separated header value (RFC 7230 #rule)
// into trimmed, non-empty tokens.
func splitCommaTokens(v []byte) [][]byte {
	var out [][]byte
	for _, part := range bytes.Split(v, []byte(",")) {
		part = trimOWS(part)
		if len(part) > 0 {
			out = append(out, part)
		}
	}
	return out
}

func trimOWS(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}

func tokenEq(tok, want []byte) bool {
	return bytescase.CmpEq(tok, want)
}

// lowercaseTokens folds every token to lowercase in a freshly allocated
// copy, so repeated checks against the package's lowercase token
// constants (strClose, strKeepAlive, strUpgradeTok) can use a plain
// byte compare instead of re-folding case on every call.
func lowercaseTokens(toks [][]byte) [][]byte {
	out := make([][]byte, len(toks))
	for i, t := range toks {
		c := append([]byte(nil), t...)
		lowercaseBytes(c)
		out[i] = c
	}
	return out
}
