package entity

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindText
	KindNumber
)

// Value is an entity state value: text, number, or null. Home Assistant
// states are stringly typed by convention, but fixture files and
// injected states may carry bare numbers, and those must round-trip
// unchanged on the wire.
type Value struct {
	kind   Kind
	text   string
	number float64
}

// Null returns the null state value.
func Null() Value {
	return Value{}
}

// Text returns a text state value.
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// Number returns a numeric state value.
func Number(f float64) Value {
	return Value{kind: KindNumber, number: f}
}

// Kind returns which variant the value holds.
func (v Value) Kind() Kind {
	return v.kind
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// AsText returns the text variant, and whether the value holds one.
func (v Value) AsText() (string, bool) {
	return v.text, v.kind == KindText
}

// AsNumber returns the numeric variant, and whether the value holds one.
func (v Value) AsNumber() (float64, bool) {
	return v.number, v.kind == KindNumber
}

// Equal reports whether two values hold the same variant and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == o.text
	case KindNumber:
		return v.number == o.number
	default:
		return true
	}
}

// String renders the value for log output.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	default:
		return "null"
	}
}

// MarshalJSON encodes the value as a bare JSON string, number or null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return json.Marshal(v.text)
	case KindNumber:
		return json.Marshal(v.number)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON string, number or null. Other JSON types
// are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Null()
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Text(s)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*v = Number(f)
		return nil
	}

	return fmt.Errorf("unsupported state value: %s", data)
}

// ValueFrom converts a decoded JSON value (as produced by encoding/json
// into interface{}) into a state Value. Unsupported types map to null.
func ValueFrom(raw interface{}) Value {
	switch t := raw.(type) {
	case string:
		return Text(t)
	case float64:
		return Number(t)
	default:
		return Null()
	}
}
