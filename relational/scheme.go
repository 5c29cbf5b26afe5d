package relational

import (
	"sort"
	"strings"
)

// Scheme is an unordered set of attributes.
type Scheme map[Attribute]struct{}

// NewScheme builds a scheme from attribute names.
func NewScheme(names ...string) Scheme {
	s := make(Scheme, len(names))
	for _, name := range names {
		s[Attr(name)] = struct{}{}
	}
	return s
}

// SchemeOf builds a scheme from attributes.
func SchemeOf(attrs ...Attribute) Scheme {
	s := make(Scheme, len(attrs))
	for _, a := range attrs {
		s[a] = struct{}{}
	}
	return s
}

// Contains reports whether the scheme carries the attribute.
func (s Scheme) Contains(a Attribute) bool {
	_, ok := s[a]
	return ok
}

// Equal reports whether two schemes carry exactly the same attributes.
func (s Scheme) Equal(other Scheme) bool {
	if len(s) != len(other) {
		return false
	}
	for a := range s {
		if !other.Contains(a) {
			return false
		}
	}
	return true
}

// SubsetOf reports whether every attribute of s is in other.
func (s Scheme) SubsetOf(other Scheme) bool {
	for a := range s {
		if !other.Contains(a) {
			return false
		}
	}
	return true
}

// Union returns a new scheme with the attributes of both.
func (s Scheme) Union(other Scheme) Scheme {
	result := make(Scheme, len(s)+len(other))
	for a := range s {
		result[a] = struct{}{}
	}
	for a := range other {
		result[a] = struct{}{}
	}
	return result
}

// Intersection returns a new scheme with the shared attributes.
func (s Scheme) Intersection(other Scheme) Scheme {
	result := make(Scheme)
	for a := range s {
		if other.Contains(a) {
			result[a] = struct{}{}
		}
	}
	return result
}

// Clone returns a copy of the scheme.
func (s Scheme) Clone() Scheme {
	result := make(Scheme, len(s))
	for a := range s {
		result[a] = struct{}{}
	}
	return result
}

// Sorted returns the attributes in name order. Schemes are unordered;
// this is for deterministic encoding and display only.
func (s Scheme) Sorted() []Attribute {
	attrs := make([]Attribute, 0, len(s))
	for a := range s {
		attrs = append(attrs, a)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].Compare(attrs[j]) < 0
	})
	return attrs
}

// String renders the scheme as a sorted attribute list.
func (s Scheme) String() string {
	names := make([]string, 0, len(s))
	for _, a := range s.Sorted() {
		names = append(names, a.String())
	}
	return "{" + strings.Join(names, " ") + "}"
}
