package shuttle

import (
	"bytes"
	"io"
	"time"

	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/tinylib/msgp/msgp"
)

// Reader splits a msgpack stream into envelopes and emits them on outbox. It
// doesn't decode the envelopes; malformed ones are dealt with when the batch
// is formatted.
type Reader struct {
	outbox       chan<- Envelope
	delayTimers  []metrics.Timer
	readCounters []metrics.Counter
}

// NewReader constructs a new reader that will use the provided outbox. Its
// metrics are registered in every one of mRegistries.
func NewReader(outbox chan<- Envelope, mRegistries ...metrics.Registry) Reader {
	rdr := Reader{outbox: outbox}
	for _, mr := range mRegistries {
		rdr.delayTimers = append(rdr.delayTimers, metrics.GetOrRegisterTimer("reader.envelope.delay.time", mr))
		rdr.readCounters = append(rdr.readCounters, metrics.GetOrRegisterCounter("reader.envelope.count", mr))
	}
	return rdr
}

// Read reads envelopes until input is exhausted. A clean end of input
// returns nil; a truncated object returns the error.
func (rdr Reader) Read(input io.ReadCloser) error {
	defer input.Close()
	mr := msgp.NewReader(input)

	lastLogTime := time.Now()

	for {
		var buf bytes.Buffer
		_, err := mr.CopyNext(&buf)
		currentLogTime := time.Now()

		if err != nil {
			if errors.Is(err, io.EOF) && buf.Len() == 0 {
				return nil
			}
			return errors.Wrap(err, "reading envelope")
		}

		rdr.outbox <- Envelope{raw: buf.Bytes(), when: currentLogTime}
		for i := range rdr.readCounters {
			rdr.readCounters[i].Inc(1)
			rdr.delayTimers[i].Update(currentLogTime.Sub(lastLogTime))
		}
		lastLogTime = currentLogTime
	}
}
