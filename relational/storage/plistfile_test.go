package storage

import (
	"path/filepath"
	"testing"

	"github.com/wbrown/janus-relational/relational"
)

func TestPlistFileStorePersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pets.plist")

	store, err := NewPlistFileStore(path, petsScheme())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Add(pet(1, "cat")); err != nil {
		t.Fatal(err)
	}
	if err := store.Add(pet(2, "dog")); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewPlistFileStore(path, petsScheme())
	if err != nil {
		t.Fatal(err)
	}
	rows := storeRows(t, reopened)
	if len(rows) != 2 {
		t.Fatalf("reopened rows = %v", rows)
	}

	// Opening with a different scheme is rejected.
	if _, err := NewPlistFileStore(path, relational.NewScheme("other")); err == nil {
		t.Error("scheme mismatch should fail")
	}
}

func TestPlistFileStoreMutations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pets.plist")
	store, err := NewPlistFileStore(path, petsScheme())
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range []relational.Row{pet(1, "cat"), pet(2, "dog"), pet(3, "fish")} {
		if err := store.Add(r); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.Delete(relational.AttrEq("id", relational.Integer(2))); err != nil {
		t.Fatal(err)
	}
	if err := store.Update(relational.AttrEq("id", relational.Integer(1)), relational.Row{relational.Attr("name"): relational.Text("kat")}); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewPlistFileStore(path, petsScheme())
	if err != nil {
		t.Fatal(err)
	}
	rows := storeRows(t, reopened)
	if len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	byID := make(map[relational.Value]relational.Row)
	for _, row := range rows {
		byID[row.Get(relational.Attr("id"))] = row
	}
	if byID[relational.Integer(1)].Get(relational.Attr("name")) != relational.Text("kat") {
		t.Error("update not persisted")
	}
	if _, ok := byID[relational.Integer(2)]; ok {
		t.Error("delete not persisted")
	}
}
