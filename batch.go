package shuttle

import (
	"time"

	"github.com/pborman/uuid"
)

// Envelope is one raw msgpack [timestamp, body] array as read from the input.
type Envelope struct {
	raw  []byte
	when time.Time
}

// NewEnvelope wraps raw msgpack bytes read at when.
func NewEnvelope(raw []byte, when time.Time) Envelope {
	return Envelope{raw: raw, when: when}
}

// Len is the encoded size of the envelope.
func (e Envelope) Len() int {
	return len(e.raw)
}

// Batch holds consecutive envelopes in their encoded form, which is exactly
// what Flush takes as input.
type Batch struct {
	buf   []byte
	count int
	UUID  string
}

// NewBatch returns a new batch with room for capacity envelopes of a
// typical size.
func NewBatch(capacity int) Batch {
	return Batch{
		buf:  make([]byte, 0, capacity*128),
		UUID: uuid.New(),
	}
}

// Add an envelope to the batch
func (b *Batch) Add(e Envelope) {
	b.buf = append(b.buf, e.raw...)
	b.count++
}

// MsgCount is the number of envelopes in the batch
func (b Batch) MsgCount() int {
	return b.count
}

// Bytes is the encoded batch
func (b Batch) Bytes() []byte {
	return b.buf
}
