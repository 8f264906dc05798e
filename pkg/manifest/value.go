package manifest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ValueKind discriminates the scalar forms a flat configuration value can take.
type ValueKind string

const (
	KindString   ValueKind = "string"
	KindInteger  ValueKind = "integer"
	KindFloat    ValueKind = "float"
	KindBoolean  ValueKind = "boolean"
	KindDatetime ValueKind = "datetime"
)

// FlatTomlValue is a single scalar configuration value. It holds exactly one
// of the five supported kinds; tables and arrays are rejected at the
// conversion boundary and can never appear here, which keeps a resolved
// configuration directly forwardable to native build tooling.
type FlatTomlValue struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
}

// FlatTomlProperty pairs a property name with its flat value. Names must be
// non-empty and unique within one configuration layer.
type FlatTomlProperty struct {
	Name  string
	Value FlatTomlValue
}

// StringValue returns a flat value of kind string.
func StringValue(s string) FlatTomlValue {
	return FlatTomlValue{kind: KindString, s: s}
}

// IntegerValue returns a flat value of kind integer.
func IntegerValue(i int64) FlatTomlValue {
	return FlatTomlValue{kind: KindInteger, i: i}
}

// FloatValue returns a flat value of kind float.
func FloatValue(f float64) FlatTomlValue {
	return FlatTomlValue{kind: KindFloat, f: f}
}

// BooleanValue returns a flat value of kind boolean.
func BooleanValue(b bool) FlatTomlValue {
	return FlatTomlValue{kind: KindBoolean, b: b}
}

// DatetimeValue returns a flat value of kind datetime.
func DatetimeValue(t time.Time) FlatTomlValue {
	return FlatTomlValue{kind: KindDatetime, t: t}
}

// Kind returns the value's kind.
func (v FlatTomlValue) Kind() ValueKind {
	return v.kind
}

// AsString returns the string payload and true when the kind is string.
func (v FlatTomlValue) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

// AsInteger returns the integer payload and true when the kind is integer.
func (v FlatTomlValue) AsInteger() (int64, bool) {
	return v.i, v.kind == KindInteger
}

// AsFloat returns the float payload and true when the kind is float.
func (v FlatTomlValue) AsFloat() (float64, bool) {
	return v.f, v.kind == KindFloat
}

// AsBoolean returns the boolean payload and true when the kind is boolean.
func (v FlatTomlValue) AsBoolean() (bool, bool) {
	return v.b, v.kind == KindBoolean
}

// AsDatetime returns the datetime payload and true when the kind is datetime.
func (v FlatTomlValue) AsDatetime() (time.Time, bool) {
	return v.t, v.kind == KindDatetime
}

// String returns the canonical textual form of the value: strings verbatim,
// integers and floats in Go's shortest decimal form, booleans as true/false,
// datetimes in RFC 3339.
func (v FlatTomlValue) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindDatetime:
		return v.t.Format(time.RFC3339)
	}
	return ""
}

// Equal reports structural equality of two flat values.
func (v FlatTomlValue) Equal(o FlatTomlValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindInteger:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindBoolean:
		return v.b == o.b
	case KindDatetime:
		return v.t.Equal(o.t)
	}
	return true
}

// MarshalJSON renders the value as the corresponding native JSON scalar.
// Datetimes serialize in RFC 3339.
func (v FlatTomlValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindInteger:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindBoolean:
		return json.Marshal(v.b)
	case KindDatetime:
		return json.Marshal(v.t.Format(time.RFC3339))
	}
	return nil, fmt.Errorf("flat value has no kind")
}

// MarshalYAML renders the value as the corresponding native YAML scalar.
func (v FlatTomlValue) MarshalYAML() (interface{}, error) {
	switch v.kind {
	case KindString:
		return v.s, nil
	case KindInteger:
		return v.i, nil
	case KindFloat:
		return v.f, nil
	case KindBoolean:
		return v.b, nil
	case KindDatetime:
		return v.t.Format(time.RFC3339), nil
	}
	return nil, fmt.Errorf("flat value has no kind")
}

// FlattenTomlValue converts a general decoded TOML value into a flat value.
// It is defined only for the five scalar kinds; tables and arrays fail with
// an unsupported-nested-value error. This is the single point where shape
// validation of raw configuration data happens, so nothing downstream has to
// handle nested structures.
func FlattenTomlValue(raw any) (FlatTomlValue, error) {
	switch v := raw.(type) {
	case string:
		return StringValue(v), nil
	case bool:
		return BooleanValue(v), nil
	case int64:
		return IntegerValue(v), nil
	case int:
		return IntegerValue(int64(v)), nil
	case int32:
		return IntegerValue(int64(v)), nil
	case float64:
		return FloatValue(v), nil
	case time.Time:
		return DatetimeValue(v), nil
	case map[string]any:
		return FlatTomlValue{}, NewNestedValueError("value is a table")
	case []map[string]any:
		return FlatTomlValue{}, NewNestedValueError("value is an array of tables")
	case []any:
		return FlatTomlValue{}, NewNestedValueError("value is an array")
	default:
		return FlatTomlValue{}, NewNestedValueError(fmt.Sprintf("unsupported value of type %T", raw))
	}
}
