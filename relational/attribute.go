package relational

import (
	"sync"
)

// Attribute is an interned column name. Comparable by value, so it can
// key rows and schemes directly.
type Attribute struct {
	name string
}

// attributeIntern caches attribute instances so the same schemes can be
// rebuilt constantly by derived relations without re-allocating names.
// Uses sync.Map for lock-free concurrent reads.
var attributeIntern sync.Map // map[string]Attribute

// Attr returns the interned attribute for a name.
func Attr(name string) Attribute {
	if val, ok := attributeIntern.Load(name); ok {
		return val.(Attribute)
	}

	attr := Attribute{name: name}
	actual, _ := attributeIntern.LoadOrStore(name, attr)
	return actual.(Attribute)
}

// String returns the attribute name.
func (a Attribute) String() string {
	return a.name
}

// Compare orders attributes by name.
func (a Attribute) Compare(other Attribute) int {
	if a.name < other.name {
		return -1
	} else if a.name > other.name {
		return 1
	}
	return 0
}
