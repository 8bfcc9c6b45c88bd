// Package compress negotiates and applies response body compression on
// top of onewire's outbound body model. It is deliberately outside the
// core engine package: response compression is an application
// semantics decision (which coding, which content types), not part of
// HTTP/1 framing, so it lives as an opt-in helper a Handler calls
// itself before returning its Response.
package compress

import (
	"bytes"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"github.com/rzajac/onewire"
	"github.com/rzajac/onewire/stackless"
)

// Negotiate picks a content-coding from an Accept-Encoding header value,
// preferring brotli, then gzip, then deflate. It returns "" if none of
// the client's offered codings are supported.
func Negotiate(acceptEncoding []byte) string {
	ae := strings.ToLower(string(acceptEncoding))
	switch {
	case strings.Contains(ae, "br"):
		return "br"
	case strings.Contains(ae, "gzip"):
		return "gzip"
	case strings.Contains(ae, "deflate"):
		return "deflate"
	default:
		return ""
	}
}

// Wrap compresses raw fully under coding ("br", "gzip", or "deflate")
// and replaces resp.Body with the result, setting Content-Encoding and
// an exact Content-Length (the compressed size is only known once
// encoding finishes, so this buffers the whole output -- callers
// serving very large bodies should compress at the source instead of
// reaching for this helper). coding == "" is a no-op.
func Wrap(resp *onewire.Response, coding string, raw io.Reader) error {
	if coding == "" {
		return nil
	}

	var buf bytes.Buffer
	zw, err := newCompressor(&buf, coding)
	if err != nil {
		return err
	}

	if _, err := io.Copy(zw, raw); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	resp.Header.SetString("Content-Encoding", coding)
	resp.Body = onewire.ReaderBody(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	return nil
}

// newCompressor wraps the chosen compressor in a stackless.Writer, the
// same device fasthttp's zstd.go uses to keep a compressor's large
// stack frame off every concurrently-compressing goroutine's own stack.
func newCompressor(dst io.Writer, coding string) (stackless.Writer, error) {
	switch coding {
	case "br":
		return stackless.NewWriter(dst, func(w io.Writer) stackless.Writer {
			return &brotliWriter{Writer: brotli.NewWriter(w)}
		}), nil
	case "gzip":
		return stackless.NewWriter(dst, func(w io.Writer) stackless.Writer {
			gw, _ := gzip.NewWriterLevel(w, gzip.DefaultCompression)
			return gw
		}), nil
	case "deflate":
		return stackless.NewWriter(dst, func(w io.Writer) stackless.Writer {
			fw, _ := flate.NewWriter(w, flate.DefaultCompression)
			return fw
		}), nil
	default:
		return nil, errUnsupportedCoding(coding)
	}
}

type errUnsupportedCoding string

func (e errUnsupportedCoding) Error() string { return "compress: unsupported coding " + string(e) }

// brotliWriter adapts *brotli.Writer to stackless.Writer's Reset
// contract by rebuilding the underlying writer, since brotli.Writer
// does not expose a Reset(io.Writer) of its own.
type brotliWriter struct {
	*brotli.Writer
}

func (w *brotliWriter) Reset(dst io.Writer) {
	w.Writer = brotli.NewWriter(dst)
}
