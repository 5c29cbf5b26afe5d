package relational

import (
	"fmt"
)

// Value represents any value that can be stored in a Row.
// Just like the storage layer works over a closed set of cell types,
// we use interface{} with direct Go types rather than a wrapper struct.
type Value interface{}

// Valid value types:
// - nil      (the null value)
// - int64    (integers; booleans are stored as 0/1)
// - float64  (reals)
// - string   (text)
// - []byte   (blobs)
// - notFound (sentinel for absent attributes; never stored in a row)

// notFound is the sentinel type returned when a row is asked for an
// attribute it does not carry. It is never a stored value.
type notFound struct{}

// NotFound is the sentinel value returned for absent attributes.
var NotFound Value = notFound{}

// ValueType identifies the variant of a Value. The order of the
// constants is the cross-type sort order: null < integer < real <
// text < blob.
type ValueType byte

const (
	TypeNull ValueType = iota
	TypeInteger
	TypeReal
	TypeText
	TypeBlob
	TypeNotFound
)

// Type returns the type tag of a value.
func Type(v Value) ValueType {
	switch v.(type) {
	case nil:
		return TypeNull
	case int64:
		return TypeInteger
	case float64:
		return TypeReal
	case string:
		return TypeText
	case []byte:
		return TypeBlob
	case notFound:
		return TypeNotFound
	default:
		panic(fmt.Sprintf("unknown value type: %T", v))
	}
}

// Helper functions for creating typed values
func Integer(i int64) Value { return i }
func Real(f float64) Value  { return f }
func Text(s string) Value   { return s }
func Blob(b []byte) Value   { return b }

// Boolean returns the integer encoding of a boolean: 1 for true, 0 for false.
func Boolean(b bool) Value {
	if b {
		return int64(1)
	}
	return int64(0)
}

// Truthy reports whether a value is interpretable as boolean true.
// Only a non-zero integer is truthy.
func Truthy(v Value) bool {
	i, ok := v.(int64)
	return ok && i != 0
}

// IsStorable reports whether v may appear inside a row. The notFound
// sentinel is the only Value excluded.
func IsStorable(v Value) bool {
	switch v.(type) {
	case nil, int64, float64, string, []byte:
		return true
	}
	return false
}

// FormatValue renders a value for tables and log output.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%g", val)
	case string:
		return val
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(val))
	case notFound:
		return "<not found>"
	default:
		return fmt.Sprintf("%v", v)
	}
}
