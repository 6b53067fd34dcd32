package shuttle

// OutputShape is the form each record takes in the payload. It is chosen once
// per Formatter from the send-raw switch and the presence of an event key.
type OutputShape int

// Output shapes
const (
	// WholeBodyWrapped is {"time":t,"event":{<body>}}
	WholeBodyWrapped OutputShape = iota
	// WholeBodyRaw is {<body>}
	WholeBodyRaw
	// KeyValueWrapped is {"time":t,"event":<value at event key>}
	KeyValueWrapped
	// KeyValueRaw is <value at event key>
	KeyValueRaw
)

// ShapeFor selects the output shape.
func ShapeFor(sendRaw, hasEventKey bool) OutputShape {
	switch {
	case hasEventKey && sendRaw:
		return KeyValueRaw
	case hasEventKey:
		return KeyValueWrapped
	case sendRaw:
		return WholeBodyRaw
	default:
		return WholeBodyWrapped
	}
}

// Raw reports whether fragments of this shape are newline delimited.
func (s OutputShape) Raw() bool {
	return s == WholeBodyRaw || s == KeyValueRaw
}

// UsesEventKey reports whether the shape extracts a single value.
func (s OutputShape) UsesEventKey() bool {
	return s == KeyValueWrapped || s == KeyValueRaw
}

func (s OutputShape) String() string {
	switch s {
	case WholeBodyWrapped:
		return "whole_body_wrapped"
	case WholeBodyRaw:
		return "whole_body_raw"
	case KeyValueWrapped:
		return "key_value_wrapped"
	case KeyValueRaw:
		return "key_value_raw"
	}
	return "unknown"
}
