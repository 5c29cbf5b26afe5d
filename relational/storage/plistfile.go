package storage

import (
	"os"

	"howett.net/plist"

	"github.com/wbrown/janus-relational/relational"
)

// PlistFileStore persists the scheme and the entire row array as one
// XML plist under a caller-supplied path. Every mutation rewrites the
// file; the adapter suits small relations such as preference tables.
type PlistFileStore struct {
	path   string
	scheme relational.Scheme
	rows   []relational.Row
}

type plistFileDoc struct {
	Scheme []string                     `plist:"scheme"`
	Rows   []map[string]plistValue      `plist:"rows"`
}

// NewPlistFileStore opens a single-file plist store, loading existing
// contents when the file is present.
func NewPlistFileStore(path string, scheme relational.Scheme) (*PlistFileStore, error) {
	s := &PlistFileStore{path: path, scheme: scheme.Clone()}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, relational.StorageErrorf(err, "read %s", path)
	}

	var doc plistFileDoc
	if _, err := plist.Unmarshal(data, &doc); err != nil {
		return nil, relational.SerializationErrorf("malformed plist %s: %v", path, err)
	}
	loaded := relational.NewScheme(doc.Scheme...)
	if !loaded.Equal(s.scheme) {
		return nil, relational.SchemeViolationf("file %s has scheme %s, want %s", path, loaded, s.scheme)
	}
	for _, rowDoc := range doc.Rows {
		row := make(relational.Row, len(rowDoc))
		for name, pv := range rowDoc {
			v, err := valueFromPlist(pv)
			if err != nil {
				return nil, err
			}
			row[relational.Attr(name)] = v
		}
		s.rows = append(s.rows, row)
	}
	return s, nil
}

func (s *PlistFileStore) Scheme() relational.Scheme { return s.scheme }

func (s *PlistFileStore) Rows() relational.RowIterator {
	rows := make([]relational.Row, len(s.rows))
	copy(rows, s.rows)
	return relational.NewSliceIterator(rows)
}

func (s *PlistFileStore) save() error {
	doc := plistFileDoc{}
	for _, a := range s.scheme.Sorted() {
		doc.Scheme = append(doc.Scheme, a.String())
	}
	for _, row := range s.rows {
		rowDoc := make(map[string]plistValue, len(row))
		for a, v := range row {
			pv, err := valueToPlist(v)
			if err != nil {
				return err
			}
			rowDoc[a.String()] = pv
		}
		doc.Rows = append(doc.Rows, rowDoc)
	}

	data, err := plist.MarshalIndent(doc, plist.XMLFormat, "\t")
	if err != nil {
		return relational.SerializationErrorf("marshal %s: %v", s.path, err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return relational.StorageErrorf(err, "write %s", s.path)
	}
	return nil
}

func (s *PlistFileStore) Add(row relational.Row) error {
	if !row.Satisfies(s.scheme) {
		return relational.SchemeViolationf("row %s does not satisfy scheme %s", row, s.scheme)
	}
	for _, existing := range s.rows {
		if existing.Equal(row) {
			return nil
		}
	}
	s.rows = append(s.rows, row.Clone())
	return s.save()
}

func (s *PlistFileStore) Delete(expr relational.SelectExpression) error {
	kept := s.rows[:0]
	changed := false
	for _, row := range s.rows {
		if relational.Truthy(expr.Evaluate(row)) {
			changed = true
		} else {
			kept = append(kept, row)
		}
	}
	s.rows = kept
	if !changed {
		return nil
	}
	return s.save()
}

func (s *PlistFileStore) Update(expr relational.SelectExpression, newValues relational.Row) error {
	if !newValues.Scheme().SubsetOf(s.scheme) {
		return relational.SchemeViolationf("update values %s outside scheme %s", newValues, s.scheme)
	}
	changed := false
	updated := make([]relational.Row, 0, len(s.rows))
	seen := make(map[string]struct{}, len(s.rows))
	for _, row := range s.rows {
		next := row
		if relational.Truthy(expr.Evaluate(row)) {
			next = row.Overwriting(newValues)
			if !next.Equal(row) {
				changed = true
			}
		}
		key := next.Key()
		if _, dup := seen[key]; dup {
			changed = true
			continue
		}
		seen[key] = struct{}{}
		updated = append(updated, next)
	}
	s.rows = updated
	if !changed {
		return nil
	}
	return s.save()
}
