package storage

import (
	"testing"

	"github.com/wbrown/janus-relational/relational"
)

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir(), petsScheme())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.Add(pet(1, "cat")); err != nil {
		t.Fatal(err)
	}
	if err := store.Add(pet(2, "dog")); err != nil {
		t.Fatal(err)
	}
	if err := store.Add(pet(1, "cat")); err != nil {
		t.Fatal(err)
	}
	if rows := storeRows(t, store); len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}

	if err := store.Update(relational.AttrEq("id", relational.Integer(1)), relational.Row{relational.Attr("name"): relational.Text("kat")}); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(relational.AttrEq("id", relational.Integer(2))); err != nil {
		t.Fatal(err)
	}

	rows := storeRows(t, store)
	if len(rows) != 1 || rows[0].Get(relational.Attr("name")) != relational.Text("kat") {
		t.Fatalf("rows after mutations = %v", rows)
	}
}

func TestBadgerStoreSchemeCheck(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBadgerStore(dir, petsScheme())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening with a different scheme is rejected.
	if _, err := NewBadgerStore(dir, relational.NewScheme("other")); err == nil {
		t.Fatal("scheme mismatch should fail")
	}
}
