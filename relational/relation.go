package relational

import (
	"sync/atomic"
)

// Relation is an abstract producer of rows sharing one scheme.
// Derived relations are lazy: they carry operand references and
// re-evaluate on demand. Equality of relations is by identity, never
// by extensional content; every relation carries a process-unique ID
// so registries can key on it across maps.
type Relation interface {
	// RelationID returns the stable identity of this relation.
	RelationID() uint64

	// Scheme returns the attribute set of the relation. It is
	// determined statically for derived relations.
	Scheme() Scheme

	// Rows returns an iterator over the relation's rows. Iteration
	// surfaces errors per row; a row error aborts iteration of this
	// relation only.
	Rows() RowIterator
}

// MutableRelation is a relation that accepts mutation primitives.
// Base relations (concrete, stored, change-logging) implement it;
// intermediates do not.
type MutableRelation interface {
	Relation

	// Add inserts a row. Adding a duplicate of an existing row is a
	// no-op. The row's attributes must equal the scheme.
	Add(row Row) error

	// Delete removes the rows matching the predicate.
	Delete(expr SelectExpression) error

	// Update overwrites the given attributes on rows matching the
	// predicate.
	Update(expr SelectExpression, newValues Row) error
}

// ObservableRelation is a relation that notifies synchronous change
// observers when mutated.
type ObservableRelation interface {
	Relation

	// AddChangeObserver registers a synchronous delta callback and
	// returns its remover.
	AddChangeObserver(observer ChangeObserver) RemoveObserver
}

// NativeSelectable is implemented by relations whose backing adapter
// can push a select predicate down into native form.
type NativeSelectable interface {
	// SelectNative returns a relation evaluating the predicate
	// natively, or ok=false when this predicate cannot be pushed.
	SelectNative(expr SelectExpression) (Relation, bool)
}

// RowIterator provides streaming access to rows.
type RowIterator interface {
	// Next advances to the next row or row error.
	Next() bool

	// Row returns the current row, or the error that produced this
	// position. A non-nil error does not end iteration.
	Row() (Row, error)

	// Close releases any resources.
	Close() error
}

// relationID hands out process-unique relation identities.
var relationID atomic.Uint64

// NextRelationID returns a fresh relation identity. Relation
// implementations outside this package use it so registries can key
// any relation uniformly.
func NextRelationID() uint64 {
	return relationID.Add(1)
}

// sliceRowIterator iterates over a slice of rows.
type sliceRowIterator struct {
	rows []Row
	pos  int
}

// NewSliceIterator returns an iterator over the given rows.
func NewSliceIterator(rows []Row) RowIterator {
	return &sliceRowIterator{rows: rows, pos: -1}
}

func (it *sliceRowIterator) Next() bool {
	it.pos++
	return it.pos < len(it.rows)
}

func (it *sliceRowIterator) Row() (Row, error) {
	if it.pos >= 0 && it.pos < len(it.rows) {
		return it.rows[it.pos], nil
	}
	return nil, nil
}

func (it *sliceRowIterator) Close() error { return nil }

// errorRowIterator yields a single error position.
type errorRowIterator struct {
	err  error
	done bool
}

// NewErrorIterator returns an iterator delivering one row error.
func NewErrorIterator(err error) RowIterator {
	return &errorRowIterator{err: err}
}

func (it *errorRowIterator) Next() bool {
	if it.done {
		return false
	}
	it.done = true
	return true
}

func (it *errorRowIterator) Row() (Row, error) { return nil, it.err }
func (it *errorRowIterator) Close() error      { return nil }

// AllRows collects every row of the relation. The first row error
// aborts collection and is returned.
func AllRows(rel Relation) ([]Row, error) {
	var rows []Row
	it := rel.Rows()
	defer it.Close()

	for it.Next() {
		row, err := it.Row()
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RowSet collects the relation's rows keyed by canonical row key.
func RowSet(rel Relation) (map[string]Row, error) {
	rows, err := AllRows(rel)
	if err != nil {
		return nil, err
	}
	set := make(map[string]Row, len(rows))
	for _, row := range rows {
		set[row.Key()] = row
	}
	return set, nil
}

// IsEmpty reports whether the relation has no rows.
func IsEmpty(rel Relation) (bool, error) {
	it := rel.Rows()
	defer it.Close()

	for it.Next() {
		_, err := it.Row()
		if err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Contains reports whether the relation carries the row.
func Contains(rel Relation, row Row) (bool, error) {
	key := row.Key()
	it := rel.Rows()
	defer it.Close()

	for it.Next() {
		r, err := it.Row()
		if err != nil {
			return false, err
		}
		if r.Key() == key {
			return true, nil
		}
	}
	return false, nil
}

// OneRow returns the relation's single row. ok is false when the
// relation is empty or has more than one row.
func OneRow(rel Relation) (Row, bool, error) {
	it := rel.Rows()
	defer it.Close()

	var result Row
	for it.Next() {
		row, err := it.Row()
		if err != nil {
			return nil, false, err
		}
		if result != nil && !result.Equal(row) {
			return nil, false, nil
		}
		result = row
	}
	if result == nil {
		return nil, false, nil
	}
	return result, true, nil
}

// OneValue returns the single row's value for an attribute. ok is
// false when the relation does not have exactly one row.
func OneValue(rel Relation, a Attribute) (Value, bool, error) {
	row, ok, err := OneRow(rel)
	if err != nil || !ok {
		return nil, false, err
	}
	return row.Get(a), true, nil
}

// OneString returns the single row's text value for an attribute.
func OneString(rel Relation, a Attribute) (string, bool, error) {
	v, ok, err := OneValue(rel, a)
	if err != nil || !ok {
		return "", false, err
	}
	s, isText := v.(string)
	return s, isText, nil
}
