package storage

import (
	"github.com/wbrown/janus-relational/relational"
)

// MemoryStore keeps rows in memory behind the adapter contract. It is
// the reference adapter for tests and for relations that never touch
// disk, and the only adapter with native predicate support for every
// expression.
type MemoryStore struct {
	scheme relational.Scheme
	rows   map[string]relational.Row
	order  []string
}

// NewMemoryStore creates an empty in-memory adapter.
func NewMemoryStore(scheme relational.Scheme) *MemoryStore {
	return &MemoryStore{
		scheme: scheme.Clone(),
		rows:   make(map[string]relational.Row),
	}
}

func (s *MemoryStore) Scheme() relational.Scheme { return s.scheme }

func (s *MemoryStore) Rows() relational.RowIterator {
	rows := make([]relational.Row, 0, len(s.order))
	for _, key := range s.order {
		rows = append(rows, s.rows[key])
	}
	return relational.NewSliceIterator(rows)
}

func (s *MemoryStore) Add(row relational.Row) error {
	if !row.Satisfies(s.scheme) {
		return relational.SchemeViolationf("row %s does not satisfy scheme %s", row, s.scheme)
	}
	key := row.Key()
	if _, ok := s.rows[key]; ok {
		return nil
	}
	s.rows[key] = row.Clone()
	s.order = append(s.order, key)
	return nil
}

func (s *MemoryStore) Delete(expr relational.SelectExpression) error {
	kept := s.order[:0]
	for _, key := range s.order {
		if relational.Truthy(expr.Evaluate(s.rows[key])) {
			delete(s.rows, key)
		} else {
			kept = append(kept, key)
		}
	}
	s.order = kept
	return nil
}

func (s *MemoryStore) Update(expr relational.SelectExpression, newValues relational.Row) error {
	if !newValues.Scheme().SubsetOf(s.scheme) {
		return relational.SchemeViolationf("update values %s outside scheme %s", newValues, s.scheme)
	}
	var updated []relational.Row
	kept := s.order[:0]
	for _, key := range s.order {
		row := s.rows[key]
		if relational.Truthy(expr.Evaluate(row)) {
			updated = append(updated, row.Overwriting(newValues))
			delete(s.rows, key)
		} else {
			kept = append(kept, key)
		}
	}
	s.order = kept
	for _, row := range updated {
		key := row.Key()
		if _, ok := s.rows[key]; !ok {
			s.rows[key] = row
			s.order = append(s.order, key)
		}
	}
	return nil
}

// SelectNative filters in place; the memory adapter can evaluate any
// predicate directly against its rows.
func (s *MemoryStore) SelectNative(expr relational.SelectExpression) (relational.Relation, bool) {
	var matched []relational.Row
	for _, key := range s.order {
		row := s.rows[key]
		if relational.Truthy(expr.Evaluate(row)) {
			matched = append(matched, row)
		}
	}
	rel, err := relational.ConcreteFromRows(s.scheme, matched)
	if err != nil {
		return nil, false
	}
	return rel, true
}
