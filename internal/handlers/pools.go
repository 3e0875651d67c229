package handlers

import (
	"bytes"
	"sync"
)

// jsonBufferPool provides reusable byte buffers for JSON decoding, avoiding
// a fresh allocation per request.
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

func getBuffer() *bytes.Buffer {
	if buf, ok := jsonBufferPool.Get().(*bytes.Buffer); ok {
		return buf
	}
	return bytes.NewBuffer(make([]byte, 0, 4096))
}

func putBuffer(buf *bytes.Buffer) {
	buf.Reset()
	jsonBufferPool.Put(buf)
}
