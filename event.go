package scopez

import (
	"bytes"
	"encoding/json"
	"time"
)

// Field is one key/value pair attached to an event or span.
type Field struct {
	Value any    `json:"value"`
	Key   string `json:"key"`
}

// F builds a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Fields is an ordered list of key/value pairs. Order is preserved
// where a Go map would lose it.
type Fields []Field

// Get returns the value for key and whether it is present.
func (f Fields) Get(key string) (any, bool) {
	for i := range f {
		if f[i].Key == key {
			return f[i].Value, true
		}
	}
	return nil, false
}

// Set overwrites the value for key in place, appending when absent.
func (f *Fields) Set(key string, value any) {
	for i := range *f {
		if (*f)[i].Key == key {
			(*f)[i].Value = value
			return
		}
	}
	*f = append(*f, Field{Key: key, Value: value})
}

// Clone returns an independent copy.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	copy(out, f)
	return out
}

// MarshalJSON renders the fields as a JSON object, preserving order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f[i].Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(f[i].Value)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Metadata is the level, message, and fields shared by events and
// span attributes. The finer Filter capability inspects it before
// delivery.
//
//nolint:govet // Field order optimized for JSON serialization order
type Metadata struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	Fields  Fields `json:"fields,omitempty"`
}

// Event is a point-in-time record delivered to a subscriber.
// Events are immutable, fire-and-forget, and carry no identity.
type Event struct {
	Metadata
	// Time is stamped by the subscriber on delivery when zero.
	Time time.Time `json:"time"`
}

// SpanAttrs describes a span at creation time. The subscriber's stored
// copy may grow fields afterwards via Record; the caller's value is
// never touched.
type SpanAttrs struct {
	Metadata
}
