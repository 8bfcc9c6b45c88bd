package onewire

import (
	"github.com/valyala/bytebufferpool"
)

var defaultByteBufferPool bytebufferpool.Pool

// NewByteBuffer returns an empty byte buffer that never goes through
// the pool -- for a one-off accumulation outside the request/response
// lifecycle, where there's no clear release point to pair with
// ReleaseByteBuffer.
func NewByteBuffer() *bytebufferpool.ByteBuffer {
	return new(bytebufferpool.ByteBuffer)
}

// AcquireByteBuffer returns an empty byte buffer from the pool.
//
// Acquired byte buffer may be returned to the pool via ReleaseByteBuffer call.
// chunkedBody.ReadToEnd is the current caller: a chunked body's final
// size isn't known until the terminating chunk arrives, so it
// accumulates into one of these before copying the result out.
func AcquireByteBuffer() *bytebufferpool.ByteBuffer {
	return defaultByteBufferPool.Get()
}

// ReleaseByteBuffer returns byte buffer to the pool.
//
// ByteBuffer.B mustn't be touched after returning it to the pool.
// Otherwise data races occur.
func ReleaseByteBuffer(b *bytebufferpool.ByteBuffer) {
	defaultByteBufferPool.Put(b)
}
