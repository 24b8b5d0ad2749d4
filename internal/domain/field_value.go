package domain

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// ValueKind tags the runtime type held by a FieldValue.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindInt
	KindDouble
	KindDateTime
	// KindOther holds any value outside the comparable set, e.g. booleans.
	KindOther
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindDateTime:
		return "datetime"
	case KindOther:
		return "other"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// FieldValue is the value of a work item field. Exactly one payload is
// meaningful, selected by Kind.
type FieldValue struct {
	kind  ValueKind
	str   string
	i     int64
	f     float64
	t     time.Time
	other any
}

func NullValue() FieldValue                { return FieldValue{} }
func StringValue(s string) FieldValue      { return FieldValue{kind: KindString, str: s} }
func IntValue(i int64) FieldValue          { return FieldValue{kind: KindInt, i: i} }
func DoubleValue(f float64) FieldValue     { return FieldValue{kind: KindDouble, f: f} }
func DateTimeValue(t time.Time) FieldValue { return FieldValue{kind: KindDateTime, t: t} }

// OtherValue wraps a value that does not belong to the comparable set.
// A nil argument yields a null value.
func OtherValue(v any) FieldValue {
	if v == nil {
		return NullValue()
	}
	return FieldValue{kind: KindOther, other: v}
}

// ValueOf maps a Go runtime value onto the closed set of field kinds.
func ValueOf(v any) FieldValue {
	switch val := v.(type) {
	case nil:
		return NullValue()
	case FieldValue:
		return val
	case string:
		return StringValue(val)
	case *string:
		if val == nil {
			return NullValue()
		}
		return StringValue(*val)
	case int:
		return IntValue(int64(val))
	case int8:
		return IntValue(int64(val))
	case int16:
		return IntValue(int64(val))
	case int32:
		return IntValue(int64(val))
	case int64:
		return IntValue(val)
	case uint:
		return unsignedValue(uint64(val))
	case uint8:
		return IntValue(int64(val))
	case uint16:
		return IntValue(int64(val))
	case uint32:
		return IntValue(int64(val))
	case uint64:
		return unsignedValue(val)
	case float32:
		return DoubleValue(float64(val))
	case float64:
		return DoubleValue(val)
	case time.Time:
		return DateTimeValue(val)
	case *time.Time:
		if val == nil {
			return NullValue()
		}
		return DateTimeValue(*val)
	default:
		return OtherValue(v)
	}
}

// unsignedValue keeps values beyond the int64 range ordered by widening them
// to a double.
func unsignedValue(u uint64) FieldValue {
	if u > math.MaxInt64 {
		return DoubleValue(float64(u))
	}
	return IntValue(int64(u))
}

func (v FieldValue) Kind() ValueKind { return v.kind }
func (v FieldValue) IsNull() bool    { return v.kind == KindNull }

// Str returns the string payload; ok is false for any other kind.
func (v FieldValue) Str() (string, bool) { return v.str, v.kind == KindString }

// Int returns the integer payload; ok is false for any other kind.
func (v FieldValue) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Double returns the floating point payload; ok is false for any other kind.
func (v FieldValue) Double() (float64, bool) { return v.f, v.kind == KindDouble }

// DateTime returns the time payload; ok is false for any other kind.
func (v FieldValue) DateTime() (time.Time, bool) { return v.t, v.kind == KindDateTime }

// Interface returns the payload as a plain Go value (nil for null).
func (v FieldValue) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.i
	case KindDouble:
		return v.f
	case KindDateTime:
		return v.t
	case KindOther:
		return v.other
	default:
		return nil
	}
}

// Text renders the value in a form that parses back to the same value.
func (v FieldValue) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindDateTime:
		return v.t.Format(time.RFC3339Nano)
	case KindOther:
		return fmt.Sprintf("%v", v.other)
	default:
		return ""
	}
}

func (v FieldValue) String() string {
	if v.kind == KindNull {
		return "<null>"
	}
	return v.Text()
}

// Equal reports whether both values have the same kind and payload.
func (v FieldValue) Equal(other FieldValue) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == other.str
	case KindInt:
		return v.i == other.i
	case KindDouble:
		return v.f == other.f
	case KindDateTime:
		return v.t.Equal(other.t)
	default:
		return reflect.DeepEqual(v.other, other.other)
	}
}
