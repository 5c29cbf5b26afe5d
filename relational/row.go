package relational

import (
	"strings"
)

// Row is a finite mapping from attribute to value. Lookup of a missing
// attribute returns the NotFound sentinel.
type Row map[Attribute]Value

// NewRow builds a row from a name-to-value mapping.
func NewRow(values map[string]Value) Row {
	row := make(Row, len(values))
	for name, v := range values {
		row[Attr(name)] = v
	}
	return row
}

// Get returns the value for an attribute, or NotFound when the row
// does not carry it.
func (r Row) Get(a Attribute) Value {
	if v, ok := r[a]; ok {
		return v
	}
	return NotFound
}

// Scheme returns the set of attributes the row carries.
func (r Row) Scheme() Scheme {
	s := make(Scheme, len(r))
	for a := range r {
		s[a] = struct{}{}
	}
	return s
}

// Satisfies reports whether the row's attributes equal the scheme.
func (r Row) Satisfies(s Scheme) bool {
	if len(r) != len(s) {
		return false
	}
	for a := range r {
		if !s.Contains(a) {
			return false
		}
	}
	return true
}

// Equal reports whether two rows carry identical mappings.
func (r Row) Equal(other Row) bool {
	if len(r) != len(other) {
		return false
	}
	for a, v := range r {
		ov, ok := other[a]
		if !ok || !ValuesEqual(v, ov) {
			return false
		}
	}
	return true
}

// Clone returns a copy of the row. Values are immutable and shared.
func (r Row) Clone() Row {
	result := make(Row, len(r))
	for a, v := range r {
		result[a] = v
	}
	return result
}

// Project returns a copy of the row restricted to the scheme.
func (r Row) Project(s Scheme) Row {
	result := make(Row, len(s))
	for a := range s {
		result[a] = r.Get(a)
	}
	return result
}

// Overwriting returns a copy of the row with the given attributes
// replaced. Attributes absent from the row are added.
func (r Row) Overwriting(values Row) Row {
	result := r.Clone()
	for a, v := range values {
		result[a] = v
	}
	return result
}

// Renaming returns a copy of the row with attributes substituted per
// the mapping. Unmapped attributes keep their names.
func (r Row) Renaming(renames map[Attribute]Attribute) Row {
	result := make(Row, len(r))
	for a, v := range r {
		if to, ok := renames[a]; ok {
			result[to] = v
		} else {
			result[a] = v
		}
	}
	return result
}

// Key returns the canonical byte encoding of the row: attributes in
// name order, each as length-prefixed attribute bytes followed by
// length-prefixed canonical value bytes. Two rows are equal iff their
// keys are equal; relations use it for set semantics.
func (r Row) Key() string {
	var sb strings.Builder
	for _, a := range r.Scheme().Sorted() {
		name := a.String()
		vb := CanonicalBytes(r[a])
		sb.Write(appendUnsigned(nil, uint64(len(name))))
		sb.WriteByte(':')
		sb.WriteString(name)
		sb.Write(appendUnsigned(nil, uint64(len(vb))))
		sb.WriteByte(':')
		sb.Write(vb)
	}
	return sb.String()
}

// String renders the row with attributes in name order.
func (r Row) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, a := range r.Scheme().Sorted() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(a.String())
		sb.WriteByte('=')
		sb.WriteString(FormatValue(r[a]))
	}
	sb.WriteByte(']')
	return sb.String()
}
