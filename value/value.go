package value

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"unique"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindInvalid represents an invalid kind.
	KindInvalid Kind = iota
	// KindNull represents a null value.
	KindNull
	// KindBool represents a boolean value.
	KindBool
	// KindInt represents an integer value.
	KindInt
	// KindFloat represents a float value.
	KindFloat
	// KindString represents a string value.
	KindString
	// KindBytes represents an opaque byte string.
	KindBytes
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	default:
		return "invalid"
	}
}

// Value is a typed property value.
//
// NOTE: This is also used for persistence; keep it stable.
type Value struct {
	Kind Kind                  `json:"k"`
	I64  int64                 `json:"i,omitempty"`
	F64  float64               `json:"f,omitempty"`
	B    bool                  `json:"b,omitempty"`
	s    unique.Handle[string] `json:"-"` // interned string
	y    []byte                `json:"-"`
}

// Null returns a null Value.
func Null() Value { return Value{Kind: KindNull} }

// Bool returns a boolean Value.
func Bool(v bool) Value { return Value{Kind: KindBool, B: v} }

// Int returns an int64 Value.
func Int(v int64) Value { return Value{Kind: KindInt, I64: v} }

// Float returns a float64 Value.
func Float(v float64) Value { return Value{Kind: KindFloat, F64: v} }

// String returns a string Value.
func String(v string) Value { return Value{Kind: KindString, s: unique.Make(v)} }

// Bytes returns a byte string Value. The slice is copied.
func Bytes(v []byte) Value {
	c := make([]byte, len(v))
	copy(c, v)
	return Value{Kind: KindBytes, y: c}
}

// IsValid reports whether v holds one of the known kinds.
func (v Value) IsValid() bool { return v.Kind > KindInvalid && v.Kind <= KindBytes }

// IsNumber reports whether v is an Int or a Float.
func (v Value) IsNumber() bool { return v.Kind == KindInt || v.Kind == KindFloat }

// AsBool returns the boolean value if Kind is KindBool.
func (v Value) AsBool() (bool, bool) {
	if v.Kind != KindBool {
		return false, false
	}
	return v.B, true
}

// AsInt64 returns the int64 value if Kind is KindInt.
func (v Value) AsInt64() (int64, bool) {
	if v.Kind != KindInt {
		return 0, false
	}
	return v.I64, true
}

// AsFloat64 returns the float64 value if Kind is KindFloat.
func (v Value) AsFloat64() (float64, bool) {
	if v.Kind != KindFloat {
		return 0, false
	}
	return v.F64, true
}

// AsString returns the string value if Kind is KindString.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.s.Value(), true
}

// AsBytes returns the byte string if Kind is KindBytes.
// The returned slice must not be modified.
func (v Value) AsBytes() ([]byte, bool) {
	if v.Kind != KindBytes {
		return nil, false
	}
	return v.y, true
}

// StringValue returns the string value if Kind is KindString, otherwise empty string.
func (v Value) StringValue() string {
	if v.Kind == KindString {
		return v.s.Value()
	}
	return ""
}

// String returns a human readable representation for logs and errors.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.B)
	case KindInt:
		return strconv.FormatInt(v.I64, 10)
	case KindFloat:
		return strconv.FormatFloat(v.F64, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s.Value())
	case KindBytes:
		return "0x" + fmt.Sprintf("%x", v.y)
	default:
		return "invalid"
	}
}

func (v Value) asFloat64() float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.I64)
	case KindFloat:
		return v.F64
	default:
		return math.NaN()
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	type Alias Value
	aux := &struct {
		S string `json:"s,omitempty"`
		Y string `json:"y,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(&v),
	}
	switch v.Kind {
	case KindString:
		aux.S = v.s.Value()
	case KindBytes:
		aux.Y = base64.StdEncoding.EncodeToString(v.y)
	}
	return json.Marshal(aux)
}

// UnmarshalJSON implements json.Unmarshaler. The zero Value round-trips.
func (v *Value) UnmarshalJSON(data []byte) error {
	type Alias Value
	aux := &struct {
		S string `json:"s,omitempty"`
		Y string `json:"y,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(v),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch v.Kind {
	case KindString:
		v.s = unique.Make(aux.S)
	case KindBytes:
		b, err := base64.StdEncoding.DecodeString(aux.Y)
		if err != nil {
			return fmt.Errorf("value: decode bytes: %w", err)
		}
		v.y = b
	}
	if v.Kind != KindInvalid && !v.IsValid() {
		return fmt.Errorf("value: invalid kind %d", v.Kind)
	}
	return nil
}
