package relational

import (
	"encoding/binary"
	"math"

	"golang.org/x/text/unicode/norm"
)

// Canonical byte encoding of values. The encoding is injective across
// the value domain: different values always produce different bytes.
// Persistent adapters derive file names and storage keys from it, so
// the format is fixed:
//
//	null      -> "n"
//	integer v -> "i" + decimal(v)
//	real v    -> "r" + 8-byte big-endian IEEE-754 bits of v
//	text s    -> "s" + NFD(s) as UTF-8
//	blob b    -> "d" + b

const (
	encNull    = 'n'
	encInteger = 'i'
	encReal    = 'r'
	encText    = 's'
	encBlob    = 'd'
)

// CanonicalBytes serializes a value to its canonical byte encoding.
// The notFound sentinel has no encoding; passing it panics.
func CanonicalBytes(v Value) []byte {
	switch val := v.(type) {
	case nil:
		return []byte{encNull}
	case int64:
		return appendDecimal([]byte{encInteger}, val)
	case float64:
		buf := make([]byte, 9)
		buf[0] = encReal
		binary.BigEndian.PutUint64(buf[1:], math.Float64bits(val))
		return buf
	case string:
		normalized := norm.NFD.String(val)
		buf := make([]byte, 0, len(normalized)+1)
		buf = append(buf, encText)
		return append(buf, normalized...)
	case []byte:
		buf := make([]byte, 0, len(val)+1)
		buf = append(buf, encBlob)
		return append(buf, val...)
	default:
		panic("cannot encode value: not a storable value")
	}
}

func appendDecimal(buf []byte, v int64) []byte {
	if v < 0 {
		buf = append(buf, '-')
		// Avoid overflow on math.MinInt64 by peeling the last digit first.
		last := byte('0' + -(v % 10))
		v = -(v / 10)
		if v > 0 {
			buf = appendUnsigned(buf, uint64(v))
		}
		return append(buf, last)
	}
	return appendUnsigned(buf, uint64(v))
}

func appendUnsigned(buf []byte, v uint64) []byte {
	var digits [20]byte
	i := len(digits)
	for {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
		if v == 0 {
			break
		}
	}
	return append(buf, digits[i:]...)
}
