package shuttle

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"
)

// eventTimeExtType is the msgpack extension type used for EventTime
// timestamps (fixext8: big endian uint32 seconds, uint32 nanoseconds).
const eventTimeExtType int8 = 0

type eventTimeExt EventTime

func (e *eventTimeExt) ExtensionType() int8 { return eventTimeExtType }

func (e *eventTimeExt) Len() int { return 8 }

func (e *eventTimeExt) MarshalBinaryTo(b []byte) error {
	binary.BigEndian.PutUint32(b[0:4], uint32(e.Sec))
	binary.BigEndian.PutUint32(b[4:8], uint32(e.Nsec))
	return nil
}

func (e *eventTimeExt) UnmarshalBinary(b []byte) error {
	if len(b) != 8 {
		return fmt.Errorf("event time extension has %d bytes, want 8", len(b))
	}
	e.Sec = int64(binary.BigEndian.Uint32(b[0:4]))
	e.Nsec = int64(binary.BigEndian.Uint32(b[4:8]))
	return nil
}

// RecordReader walks a msgpack batch of [timestamp, body] envelopes. It works
// like a bufio.Scanner: call Next until it returns false, then check Err.
// Only the current record is held in memory. A new RecordReader over the same
// bytes starts over from the first envelope.
type RecordReader struct {
	buf     []byte
	offset  int
	rec     Record
	err     error
	skipped int
}

// NewRecordReader returns a RecordReader over b. b is not copied or modified.
func NewRecordReader(b []byte) *RecordReader {
	return &RecordReader{buf: b}
}

// Next advances to the next well formed envelope. Malformed envelopes are
// counted in Skipped and passed over.
func (r *RecordReader) Next() bool {
	for len(r.buf) > 0 && r.err == nil {
		rest, err := msgp.Skip(r.buf)
		if err != nil {
			r.err = errors.Wrapf(err, "decoding envelope at offset %d", r.offset)
			return false
		}
		raw := r.buf[:len(r.buf)-len(rest)]
		r.offset += len(raw)
		r.buf = rest

		rec, err := decodeEnvelope(raw)
		if err != nil {
			r.skipped++
			continue
		}
		r.rec = rec
		return true
	}
	return false
}

// Record returns the record read by the last successful call to Next.
func (r *RecordReader) Record() Record {
	return r.rec
}

// Err returns the error that stopped iteration, if any. Records returned
// before the error are valid.
func (r *RecordReader) Err() error {
	return r.err
}

// Skipped returns how many malformed envelopes have been passed over.
func (r *RecordReader) Skipped() int {
	return r.skipped
}

// Offset is the number of bytes consumed so far.
func (r *RecordReader) Offset() int {
	return r.offset
}

func decodeEnvelope(b []byte) (Record, error) {
	var rec Record

	if msgp.NextType(b) != msgp.ArrayType {
		return rec, errors.New("envelope is not an array")
	}
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return rec, err
	}
	if sz != 2 {
		return rec, errors.Errorf("envelope has %d elements, want 2", sz)
	}

	rec.Time, b, err = decodeEventTime(b, true)
	if err != nil {
		return rec, err
	}

	if msgp.NextType(b) != msgp.MapType {
		return rec, errors.New("envelope body is not a map")
	}
	rec.Body, _, err = decodeMap(b)
	return rec, err
}

// decodeEventTime reads an EventTime extension, integer seconds or float
// seconds. When header is true the timestamp may also be wrapped in a
// [timestamp, metadata] array.
func decodeEventTime(b []byte, header bool) (EventTime, []byte, error) {
	var t EventTime

	switch msgp.NextType(b) {
	case msgp.ExtensionType:
		var ext eventTimeExt
		o, err := msgp.ReadExtensionBytes(b, &ext)
		return EventTime(ext), o, err

	case msgp.IntType:
		sec, o, err := msgp.ReadInt64Bytes(b)
		t.Sec = sec
		return t, o, err

	case msgp.UintType:
		sec, o, err := msgp.ReadUint64Bytes(b)
		if sec > math.MaxInt64 {
			return t, o, errors.Errorf("timestamp %d out of range", sec)
		}
		t.Sec = int64(sec)
		return t, o, err

	case msgp.Float32Type:
		f, o, err := msgp.ReadFloat32Bytes(b)
		return floatEventTime(float64(f)), o, err

	case msgp.Float64Type:
		f, o, err := msgp.ReadFloat64Bytes(b)
		return floatEventTime(f), o, err

	case msgp.ArrayType:
		if !header {
			break
		}
		sz, o, err := msgp.ReadArrayHeaderBytes(b)
		if err != nil {
			return t, o, err
		}
		if sz == 0 {
			return t, o, errors.New("empty timestamp header")
		}
		t, o, err = decodeEventTime(o, false)
		if err != nil {
			return t, o, err
		}
		for i := uint32(1); i < sz; i++ {
			if o, err = msgp.Skip(o); err != nil {
				return t, o, err
			}
		}
		return t, o, nil
	}

	return t, b, errors.Errorf("unsupported timestamp type %s", msgp.NextType(b))
}

func floatEventTime(f float64) EventTime {
	sec := math.Floor(f)
	return EventTime{Sec: int64(sec), Nsec: int64(math.Round((f - sec) * 1e9))}
}

func decodeMap(b []byte) (Map, []byte, error) {
	sz, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}

	m := make(Map, 0, capHint(sz, len(b)))
	for i := uint32(0); i < sz; i++ {
		var f Field
		if f.Key, b, err = decodeKey(b); err != nil {
			return nil, b, err
		}
		if f.Value, b, err = decodeValue(b); err != nil {
			return nil, b, err
		}
		m = append(m, f)
	}
	return m, b, nil
}

func decodeKey(b []byte) (string, []byte, error) {
	switch msgp.NextType(b) {
	case msgp.StrType:
		return msgp.ReadStringBytes(b)
	case msgp.BinType:
		v, o, err := msgp.ReadBytesZC(b)
		return string(v), o, err
	}
	v, o, err := decodeValue(b)
	if err != nil {
		return "", o, err
	}
	return fmt.Sprint(v), o, nil
}

func decodeValue(b []byte) (interface{}, []byte, error) {
	switch msgp.NextType(b) {
	case msgp.MapType:
		return decodeMap(b)

	case msgp.ArrayType:
		sz, o, err := msgp.ReadArrayHeaderBytes(b)
		if err != nil {
			return nil, o, err
		}
		arr := make([]interface{}, 0, capHint(sz, len(o)))
		for i := uint32(0); i < sz; i++ {
			var v interface{}
			if v, o, err = decodeValue(o); err != nil {
				return nil, o, err
			}
			arr = append(arr, v)
		}
		return arr, o, nil

	case msgp.StrType:
		return msgp.ReadStringBytes(b)

	case msgp.BinType:
		v, o, err := msgp.ReadBytesZC(b)
		return string(v), o, err
	}

	v, o, err := msgp.ReadIntfBytes(b)
	if err != nil {
		return nil, o, err
	}
	return scalar(v), o, nil
}

// scalar maps the remaining msgpack types onto values that encode to JSON.
func scalar(v interface{}) interface{} {
	switch s := v.(type) {
	case float32:
		return finite(float64(s))
	case float64:
		return finite(s)
	case time.Time:
		return s.UTC().Format(time.RFC3339Nano)
	case *msgp.RawExtension:
		return string(s.Data)
	case complex64, complex128:
		return fmt.Sprint(s)
	}
	return v
}

// finite keeps NaN and infinities from failing the whole batch; JSON has no
// representation for them.
func finite(f float64) interface{} {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	return f
}

// capHint bounds a preallocation by the bytes remaining, so a corrupt length
// prefix can't request a huge slice.
func capHint(sz uint32, remaining int) int {
	if int(sz) > remaining {
		return remaining
	}
	return int(sz)
}
