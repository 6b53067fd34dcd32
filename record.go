package shuttle

import (
	"time"

	json "github.com/goccy/go-json"
)

// EventTime is the timestamp carried by every envelope: whole seconds plus
// nanoseconds.
type EventTime struct {
	Sec  int64
	Nsec int64
}

// Float returns the time as fractional seconds, which is what the collector
// expects in the "time" field.
func (t EventTime) Float() float64 {
	return float64(t.Sec) + float64(t.Nsec)/1e9
}

// Time converts t to a time.Time
func (t EventTime) Time() time.Time {
	return time.Unix(t.Sec, t.Nsec)
}

// Field is a single key/value pair of a Map.
type Field struct {
	Key   string
	Value interface{}
}

// Map is an ordered mapping. Record bodies and every nested map inside them
// decode to a Map so that the key order of the input survives into the JSON
// output.
type Map []Field

// Get returns the value of the first field named key.
func (m Map) Get(key string) (interface{}, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// MarshalJSON writes the fields in order.
func (m Map) MarshalJSON() ([]byte, error) {
	return appendJSON(make([]byte, 0, 2+len(m)*16), m)
}

// appendJSON encodes v onto b without HTML escaping. Maps and arrays are
// walked here: the encoder escapes whatever a Marshaler returns, even with
// MarshalNoEscape.
func appendJSON(b []byte, v interface{}) ([]byte, error) {
	var err error
	switch x := v.(type) {
	case Map:
		b = append(b, '{')
		for i, f := range x {
			if i > 0 {
				b = append(b, ',')
			}
			if b, err = appendScalar(b, f.Key); err != nil {
				return nil, err
			}
			b = append(b, ':')
			if b, err = appendJSON(b, f.Value); err != nil {
				return nil, err
			}
		}
		return append(b, '}'), nil

	case []interface{}:
		b = append(b, '[')
		for i, e := range x {
			if i > 0 {
				b = append(b, ',')
			}
			if b, err = appendJSON(b, e); err != nil {
				return nil, err
			}
		}
		return append(b, ']'), nil
	}
	return appendScalar(b, v)
}

func appendScalar(b []byte, v interface{}) ([]byte, error) {
	enc, err := json.MarshalNoEscape(v)
	if err != nil {
		return nil, err
	}
	return append(b, enc...), nil
}

// Record is one decoded envelope.
type Record struct {
	Time EventTime
	Body Map
}
