package relational

import (
	"bytes"
	"strings"
)

// CompareValues compares two values and returns:
//
//	-1 if left < right
//	 0 if left == right
//	 1 if left > right
//
// Values of different types order by type tag: null < integer < real <
// text < blob. Within a type the payload decides; text compares
// lexicographically by scalar values, blobs byte-wise. The notFound
// sentinel sorts after every storable value so that sorting a mixed
// column is still total.
func CompareValues(left, right Value) int {
	lt, rt := Type(left), Type(right)
	if lt != rt {
		if lt < rt {
			return -1
		}
		return 1
	}

	switch lt {
	case TypeNull, TypeNotFound:
		return 0
	case TypeInteger:
		return compareInt64s(left.(int64), right.(int64))
	case TypeReal:
		return compareFloats(left.(float64), right.(float64))
	case TypeText:
		return strings.Compare(left.(string), right.(string))
	case TypeBlob:
		return bytes.Compare(left.([]byte), right.([]byte))
	}
	return 0
}

// ValuesEqual checks if two values are equal: same tag, same payload.
func ValuesEqual(a, b Value) bool {
	return CompareValues(a, b) == 0
}

func compareInt64s(a, b int64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

func compareFloats(a, b float64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}
