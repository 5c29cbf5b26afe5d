package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/wbrown/janus-relational/relational"
	"github.com/wbrown/janus-relational/relational/codec"
)

func TestRowFileNameDerivation(t *testing.T) {
	// The filename is the lowercase hex SHA-256 of the canonical
	// byte encoding of the primary-key value. Bit-exact: "i1" for
	// integer 1.
	sum := sha256.Sum256([]byte("i1"))
	want := hex.EncodeToString(sum[:]) + ".rowplist"
	if got := RowFileName(relational.Integer(1)); got != want {
		t.Errorf("RowFileName(1) = %s, want %s", got, want)
	}

	// Different key variants derive different names.
	if RowFileName(relational.Integer(1)) == RowFileName(relational.Text("1")) {
		t.Error("integer 1 and text \"1\" must not collide")
	}
}

func TestRowDirStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRowDirStore(dir, petsScheme(), relational.Attr("id"), nil)
	if err != nil {
		t.Fatal(err)
	}

	cat := pet(1, "cat")
	if err := store.Add(cat); err != nil {
		t.Fatal(err)
	}

	// The file lands in the two-character shard directory.
	name := RowFileName(relational.Integer(1))
	path := filepath.Join(dir, name[:2], name)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("row file missing at %s: %v", path, err)
	}

	rows := storeRows(t, store)
	if len(rows) != 1 || !rows[0].Equal(cat) {
		t.Fatalf("rows = %v", rows)
	}

	// Update moves nothing when the key is unchanged.
	if err := store.Update(relational.AttrEq("id", relational.Integer(1)), relational.Row{relational.Attr("name"): relational.Text("kat")}); err != nil {
		t.Fatal(err)
	}
	rows = storeRows(t, store)
	if len(rows) != 1 || rows[0].Get(relational.Attr("name")) != relational.Text("kat") {
		t.Fatalf("rows after update = %v", rows)
	}

	// A primary-key change moves the row file.
	if err := store.Update(relational.AttrEq("id", relational.Integer(1)), relational.Row{relational.Attr("id"): relational.Integer(7)}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("old row file should be gone after key change")
	}

	if err := store.Delete(relational.AttrEq("id", relational.Integer(7))); err != nil {
		t.Fatal(err)
	}
	if rows := storeRows(t, store); len(rows) != 0 {
		t.Fatalf("rows after delete = %v", rows)
	}
}

func TestRowDirStoreWithCodec(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRowDirStore(dir, petsScheme(), relational.Attr("id"), codec.L85Codec{})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Add(pet(3, "fish")); err != nil {
		t.Fatal(err)
	}

	rows := storeRows(t, store)
	if len(rows) != 1 || rows[0].Get(relational.Attr("name")) != relational.Text("fish") {
		t.Fatalf("rows = %v", rows)
	}

	// The file contents are codec-wrapped, not raw XML.
	name := RowFileName(relational.Integer(3))
	raw, err := os.ReadFile(filepath.Join(dir, name[:2], name))
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) == 0 || raw[0] == '<' {
		t.Error("file should be codec-encoded")
	}
}

func TestRowDirStoreSurfacesPerRowErrors(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRowDirStore(dir, petsScheme(), relational.Attr("id"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Add(pet(1, "cat")); err != nil {
		t.Fatal(err)
	}

	// Corrupt file alongside a good one: iteration surfaces the
	// error for that row and still yields the good row.
	bad := filepath.Join(dir, "zz")
	if err := os.MkdirAll(bad, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bad, "broken.rowplist"), []byte("not a plist"), 0o644); err != nil {
		t.Fatal(err)
	}

	var good int
	var failures int
	it := store.Rows()
	defer it.Close()
	for it.Next() {
		if _, err := it.Row(); err != nil {
			failures++
		} else {
			good++
		}
	}
	if good != 1 || failures != 1 {
		t.Errorf("good=%d failures=%d, want 1 and 1", good, failures)
	}
}
