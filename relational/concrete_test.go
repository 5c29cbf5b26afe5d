package relational

import (
	"errors"
	"testing"
)

func TestConcreteAddRejectsSchemeViolations(t *testing.T) {
	rel := NewConcreteRelation(NewScheme("id", "name"))

	err := rel.Add(Row{Attr("id"): Integer(1)})
	if !errors.Is(err, ErrSchemeViolation) {
		t.Errorf("missing attribute: got %v", err)
	}
	err = rel.Add(Row{Attr("id"): Integer(1), Attr("name"): NotFound})
	if !errors.Is(err, ErrSchemeViolation) {
		t.Errorf("notFound value: got %v", err)
	}
}

func TestConcreteObserverNotifications(t *testing.T) {
	rel := NewConcreteRelation(NewScheme("id", "name"))
	var changes []RelationChange
	remove := rel.AddChangeObserver(func(c RelationChange) {
		changes = append(changes, c)
	})

	cat := Row{Attr("id"): Integer(1), Attr("name"): Text("cat")}
	if err := rel.Add(cat); err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 {
		t.Fatalf("add notification count = %d", len(changes))
	}
	added, _ := changes[0].AddedRows()
	if len(added) != 1 || !added[0].Equal(cat) {
		t.Errorf("added delta = %v", added)
	}

	// Duplicate adds are silent no-ops.
	if err := rel.Add(cat); err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 {
		t.Error("duplicate add must not notify")
	}

	if err := rel.Update(AttrEq("id", Integer(1)), Row{Attr("name"): Text("kat")}); err != nil {
		t.Fatal(err)
	}
	if len(changes) != 2 {
		t.Fatalf("update notification count = %d", len(changes))
	}
	upAdded, _ := changes[1].AddedRows()
	upRemoved, _ := changes[1].RemovedRows()
	if len(upAdded) != 1 || upAdded[0].Get(Attr("name")) != Text("kat") {
		t.Errorf("update added = %v", upAdded)
	}
	if len(upRemoved) != 1 || upRemoved[0].Get(Attr("name")) != Text("cat") {
		t.Errorf("update removed = %v", upRemoved)
	}

	if err := rel.Delete(AttrEq("id", Integer(1))); err != nil {
		t.Fatal(err)
	}
	if len(changes) != 3 {
		t.Fatalf("delete notification count = %d", len(changes))
	}
	delRemoved, _ := changes[2].RemovedRows()
	if len(delRemoved) != 1 || delRemoved[0].Get(Attr("name")) != Text("kat") {
		t.Errorf("delete removed = %v", delRemoved)
	}

	// After removal the observer stays silent.
	remove()
	if err := rel.Add(cat); err != nil {
		t.Fatal(err)
	}
	if len(changes) != 3 {
		t.Error("removed observer must not be notified")
	}
}

func TestObserverRegistryDeterministicOrder(t *testing.T) {
	var registry ObserverRegistry
	var order []int
	registry.Add(func(RelationChange) { order = append(order, 1) })
	registry.Add(func(RelationChange) { order = append(order, 2) })
	registry.Add(func(RelationChange) { order = append(order, 3) })

	registry.Notify(RelationChange{})
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("delivery order = %v", order)
	}
}

func TestRelationIdentity(t *testing.T) {
	scheme := NewScheme("id")
	a := NewConcreteRelation(scheme)
	b := NewConcreteRelation(scheme)
	if a.RelationID() == b.RelationID() {
		t.Error("every relation carries a unique identity")
	}

	// Intermediates compare by identity, not content.
	s1, _ := Select(a, TrueExpression)
	s2, _ := Select(a, TrueExpression)
	if s1.RelationID() == s2.RelationID() {
		t.Error("equal-content intermediates are still distinct")
	}
}
