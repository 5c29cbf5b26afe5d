package relational

import (
	"testing"
)

func row(values map[string]Value) Row {
	return NewRow(values)
}

func TestRowGetMissingAttribute(t *testing.T) {
	r := row(map[string]Value{"id": Integer(1)})
	if Type(r.Get(Attr("name"))) != TypeNotFound {
		t.Error("lookup of a missing attribute returns notFound")
	}
	if r.Get(Attr("id")) != Integer(1) {
		t.Error("lookup of a present attribute returns its value")
	}
}

func TestRowEqual(t *testing.T) {
	a := row(map[string]Value{"id": Integer(1), "name": Text("cat")})
	b := row(map[string]Value{"name": Text("cat"), "id": Integer(1)})
	c := row(map[string]Value{"id": Integer(1), "name": Text("dog")})

	if !a.Equal(b) {
		t.Error("rows with identical mappings are equal")
	}
	if a.Equal(c) {
		t.Error("rows with different values are not equal")
	}
	if a.Key() != b.Key() {
		t.Error("equal rows share a canonical key")
	}
	if a.Key() == c.Key() {
		t.Error("different rows have different keys")
	}
}

func TestRowSatisfies(t *testing.T) {
	r := row(map[string]Value{"id": Integer(1), "name": Text("cat")})
	if !r.Satisfies(NewScheme("id", "name")) {
		t.Error("row satisfies a scheme equal to its keys")
	}
	if r.Satisfies(NewScheme("id")) || r.Satisfies(NewScheme("id", "name", "extra")) {
		t.Error("row only satisfies a scheme equal to its keys")
	}
}

func TestRowProject(t *testing.T) {
	r := row(map[string]Value{"id": Integer(1), "name": Text("cat")})
	p := r.Project(NewScheme("name"))
	if len(p) != 1 || p.Get(Attr("name")) != Text("cat") {
		t.Errorf("projected row = %s", p)
	}
}

func TestRowOverwriting(t *testing.T) {
	r := row(map[string]Value{"id": Integer(1), "name": Text("cat")})
	u := r.Overwriting(row(map[string]Value{"name": Text("kat")}))
	if u.Get(Attr("name")) != Text("kat") || u.Get(Attr("id")) != Integer(1) {
		t.Errorf("overwritten row = %s", u)
	}
	if r.Get(Attr("name")) != Text("cat") {
		t.Error("source row is immutable")
	}
}

func TestRowRenaming(t *testing.T) {
	r := row(map[string]Value{"airport": Text("Atlanta")})
	renamed := r.Renaming(map[Attribute]Attribute{Attr("airport"): Attr("from")})
	if renamed.Get(Attr("from")) != Text("Atlanta") {
		t.Errorf("renamed row = %s", renamed)
	}
	if Type(renamed.Get(Attr("airport"))) != TypeNotFound {
		t.Error("old attribute name should be gone")
	}
}

func TestSchemeOperations(t *testing.T) {
	a := NewScheme("id", "name")
	b := NewScheme("name", "order")

	if !a.Union(b).Equal(NewScheme("id", "name", "order")) {
		t.Error("union")
	}
	if !a.Intersection(b).Equal(NewScheme("name")) {
		t.Error("intersection")
	}
	if !NewScheme("id").SubsetOf(a) || a.SubsetOf(NewScheme("id")) {
		t.Error("subset")
	}
}
