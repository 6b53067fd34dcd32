package shuttle

import (
	"bytes"
	"sync"
)

var bufferPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

func getBuffer(sizeHint int) *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	buf.Grow(sizeHint)
	return buf
}

// Payload owns the bytes of one flush. There is only ever one current buffer:
// Compress swaps it for the compressed one and Release hands it back to the
// pool. After Release the Payload is empty and further Releases do nothing.
type Payload struct {
	buf      *bytes.Buffer
	records  int
	encoding string
}

func newPayload(sizeHint int) *Payload {
	return &Payload{buf: getBuffer(sizeHint)}
}

// NewPayload returns a Payload holding a copy of data, counted as records
// records.
func NewPayload(data []byte, records int) *Payload {
	p := newPayload(len(data))
	p.buf.Write(data)
	p.records = records
	return p
}

// Bytes returns the current contents. The slice is only valid until Release.
func (p *Payload) Bytes() []byte {
	if p.buf == nil {
		return nil
	}
	return p.buf.Bytes()
}

// Len is the current size in bytes.
func (p *Payload) Len() int {
	if p.buf == nil {
		return 0
	}
	return p.buf.Len()
}

// Records is the number of records formatted into the payload.
func (p *Payload) Records() int {
	return p.records
}

// Encoding is the Content-Encoding of the current bytes, "" when identity.
func (p *Payload) Encoding() string {
	return p.encoding
}

// Compress gzips the payload in place. On failure the payload is left as it
// was.
func (p *Payload) Compress() error {
	if p.buf == nil || p.encoding != "" {
		return nil
	}
	dst := getBuffer(p.buf.Len() / 2)
	if err := compressor(dst, p.buf.Bytes()); err != nil {
		bufferPool.Put(dst)
		return err
	}
	bufferPool.Put(p.buf)
	p.buf = dst
	p.encoding = "gzip"
	return nil
}

// Release returns the buffer to the pool.
func (p *Payload) Release() {
	if p.buf == nil {
		return
	}
	bufferPool.Put(p.buf)
	p.buf = nil
}

// disown drops the buffer without returning it to the pool, for when
// something else may still be reading it.
func (p *Payload) disown() {
	p.buf = nil
}
