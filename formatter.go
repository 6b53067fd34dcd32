package shuttle

import (
	"fmt"
	"log"

	"github.com/heroku/splunk-shuttle/keypath"
	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"
)

const (
	// maxRecordLogSize bounds how much of a skipped record is logged.
	maxRecordLogSize = 1048
	// SkipFormat is the format string for records left out of a payload
	SkipFormat = "at=format skip=true reason=%q event_key=%q record=%s\n"
	// MalformedFormat is the format string for malformed envelopes
	MalformedFormat = "at=format skip=true reason=%q count=%d\n"
)

// FormatError is returned when a batch can't be formatted at all. Retrying
// the same batch will fail the same way.
type FormatError struct {
	Record int // index of the record being encoded
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("formatting record %d: %s", e.Record, e.Err)
}

// Cause returns the underlying error, for errors.Cause.
func (e *FormatError) Cause() error {
	return e.Err
}

// Formatter turns msgpack batches into collector payloads. It keeps no state
// between calls besides metrics, so one Formatter can serve many goroutines.
type Formatter struct {
	shape     OutputShape
	eventKey  *keypath.Path
	errLogger *log.Logger

	formattedCount metrics.Counter // records written to payloads
	skippedCount   metrics.Counter // malformed envelopes and unresolved event keys
}

// NewFormatter returns a Formatter for mode.
func NewFormatter(mode Mode, mRegistry metrics.Registry, errLogger *log.Logger) *Formatter {
	return &Formatter{
		shape:          mode.Shape(),
		eventKey:       mode.EventKey,
		errLogger:      orDiscard(errLogger),
		formattedCount: metrics.GetOrRegisterCounter("formatter.records.formatted", mRegistry),
		skippedCount:   metrics.GetOrRegisterCounter("formatter.records.skipped", mRegistry),
	}
}

// Shape is the output shape this formatter produces.
func (f *Formatter) Shape() OutputShape {
	return f.shape
}

// Format converts batch into a Payload. Records that can't be shaped are
// logged and left out; only an encoding failure aborts the batch, in which
// case the error is a *FormatError and no Payload is returned.
func (f *Formatter) Format(batch []byte) (*Payload, error) {
	p := newPayload(len(batch) + len(batch)/2)
	rr := NewRecordReader(batch)

	var frag []byte
	for index := 0; rr.Next(); index++ {
		var ok bool
		var err error
		frag, ok, err = f.fragment(frag[:0], rr.Record())
		if err != nil {
			p.Release()
			return nil, &FormatError{Record: index, Err: err}
		}
		if !ok {
			f.skippedCount.Inc(1)
			continue
		}

		p.buf.Write(frag)
		if f.shape.Raw() {
			p.buf.WriteByte('\n')
		}
		p.records++
	}

	if n := rr.Skipped(); n > 0 {
		f.skippedCount.Inc(int64(n))
		f.errLogger.Printf(MalformedFormat, "malformed envelope", n)
	}
	if err := rr.Err(); err != nil {
		f.errLogger.Printf("at=format offset=%d trailing=%d error=%q\n", rr.Offset(), len(batch)-rr.Offset(), err)
	}

	f.formattedCount.Inc(int64(p.records))
	return p, nil
}

// fragment appends the encoding of one record to dst. ok is false when the
// record is skipped.
func (f *Formatter) fragment(dst []byte, rec Record) (frag []byte, ok bool, err error) {
	switch f.shape {
	case WholeBodyWrapped:
		frag, err = appendWrapped(dst, rec.Time, rec.Body)
	case WholeBodyRaw:
		frag, err = appendJSON(dst, rec.Body)
	case KeyValueWrapped, KeyValueRaw:
		value, found := f.eventKey.Lookup(rec.Body)
		if !found {
			f.logSkipped(rec)
			return dst, false, nil
		}
		if f.shape == KeyValueRaw {
			frag, err = appendJSON(dst, value)
		} else {
			frag, err = appendWrapped(dst, rec.Time, value)
		}
	default:
		return dst, false, errors.Errorf("unknown output shape %d", f.shape)
	}

	if err != nil {
		return dst, false, errors.Wrapf(err, "encoding %s record", f.shape)
	}
	return frag, true, nil
}

// appendWrapped appends {"time":<t>,"event":<event>}.
func appendWrapped(b []byte, t EventTime, event interface{}) ([]byte, error) {
	b = append(b, `{"time":`...)
	b, err := appendScalar(b, t.Float())
	if err != nil {
		return nil, err
	}
	b = append(b, `,"event":`...)
	if b, err = appendJSON(b, event); err != nil {
		return nil, err
	}
	return append(b, '}'), nil
}

func (f *Formatter) logSkipped(rec Record) {
	b, err := appendJSON(nil, rec.Body)
	if err != nil {
		b = []byte(err.Error())
	}
	if len(b) > maxRecordLogSize {
		b = b[:maxRecordLogSize]
	}
	f.errLogger.Printf(SkipFormat, "event key not found", f.eventKey, b)
}
