// Package storage defines the persistent row store contract and the
// adapters that satisfy it: an in-memory store, a BadgerDB store, a
// one-plist-file-per-row directory store, and a single-file plist
// store.
package storage

import (
	"github.com/wbrown/janus-relational/relational"
)

// Store is the contract every persistent row adapter satisfies.
// Stored relations are single-writer: the async update manager
// serializes all mutations.
type Store interface {
	// Scheme returns the attribute set of the stored rows.
	Scheme() relational.Scheme

	// Rows iterates the stored rows. Stable order is not required.
	// Errors surface per row and never poison the iterator.
	Rows() relational.RowIterator

	// Add inserts a row. Adding a duplicate of an existing row is a
	// no-op.
	Add(row relational.Row) error

	// Delete removes the rows matching the predicate.
	Delete(expr relational.SelectExpression) error

	// Update overwrites the given attributes on rows matching the
	// predicate.
	Update(expr relational.SelectExpression, newValues relational.Row) error
}

// PredicateStore is implemented by adapters that can push a select
// predicate down into native form.
type PredicateStore interface {
	Store

	// SelectNative returns a relation evaluating the predicate
	// natively, or ok=false when this predicate cannot be pushed.
	SelectNative(expr relational.SelectExpression) (relational.Relation, bool)
}

// Closer is implemented by adapters holding external resources.
type Closer interface {
	Close() error
}

// StoredRelation exposes a Store as a mutable, observable relation.
type StoredRelation struct {
	id        uint64
	store     Store
	observers relational.ObserverRegistry
}

// NewStoredRelation wraps a store.
func NewStoredRelation(store Store) *StoredRelation {
	return &StoredRelation{
		id:    relational.NextRelationID(),
		store: store,
	}
}

// Store returns the backing adapter.
func (r *StoredRelation) Store() Store { return r.store }

func (r *StoredRelation) RelationID() uint64        { return r.id }
func (r *StoredRelation) Scheme() relational.Scheme { return r.store.Scheme() }

func (r *StoredRelation) Rows() relational.RowIterator {
	return r.store.Rows()
}

// SelectNative pushes the predicate into the adapter when supported.
func (r *StoredRelation) SelectNative(expr relational.SelectExpression) (relational.Relation, bool) {
	if ps, ok := r.store.(PredicateStore); ok {
		return ps.SelectNative(expr)
	}
	return nil, false
}

// Add inserts a row and notifies observers with the added delta.
// Adding a duplicate is a no-op with no notification.
func (r *StoredRelation) Add(row relational.Row) error {
	if !row.Satisfies(r.Scheme()) {
		return relational.SchemeViolationf("row %s does not satisfy scheme %s", row, r.Scheme())
	}
	present, err := relational.Contains(r, row)
	if err != nil {
		return err
	}
	if present {
		return nil
	}
	if err := r.store.Add(row); err != nil {
		return err
	}
	added, err := relational.ConcreteFromRows(r.Scheme(), []relational.Row{row})
	if err != nil {
		return err
	}
	r.observers.Notify(relational.RelationChange{Added: added})
	return nil
}

// Delete removes the matching rows and notifies observers with the
// removed delta.
func (r *StoredRelation) Delete(expr relational.SelectExpression) error {
	removed, err := r.matching(expr)
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		return nil
	}
	if err := r.store.Delete(expr); err != nil {
		return err
	}
	removedRel, err := relational.ConcreteFromRows(r.Scheme(), removed)
	if err != nil {
		return err
	}
	r.observers.Notify(relational.RelationChange{Removed: removedRel})
	return nil
}

// Update overwrites attributes on matching rows and notifies with the
// before rows removed and the after rows added.
func (r *StoredRelation) Update(expr relational.SelectExpression, newValues relational.Row) error {
	if !newValues.Scheme().SubsetOf(r.Scheme()) {
		return relational.SchemeViolationf("update values %s outside scheme %s", newValues, r.Scheme())
	}
	before, err := r.matching(expr)
	if err != nil {
		return err
	}
	var changedBefore, changedAfter []relational.Row
	for _, row := range before {
		updated := row.Overwriting(newValues)
		if updated.Equal(row) {
			continue
		}
		changedBefore = append(changedBefore, row)
		changedAfter = append(changedAfter, updated)
	}
	if len(changedBefore) == 0 {
		return nil
	}
	if err := r.store.Update(expr, newValues); err != nil {
		return err
	}
	addedRel, err := relational.ConcreteFromRows(r.Scheme(), changedAfter)
	if err != nil {
		return err
	}
	removedRel, err := relational.ConcreteFromRows(r.Scheme(), changedBefore)
	if err != nil {
		return err
	}
	r.observers.Notify(relational.RelationChange{Added: addedRel, Removed: removedRel})
	return nil
}

func (r *StoredRelation) matching(expr relational.SelectExpression) ([]relational.Row, error) {
	var rows []relational.Row
	it := r.store.Rows()
	defer it.Close()
	for it.Next() {
		row, err := it.Row()
		if err != nil {
			return nil, err
		}
		if relational.Truthy(expr.Evaluate(row)) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// AddChangeObserver registers a synchronous delta callback.
func (r *StoredRelation) AddChangeObserver(observer relational.ChangeObserver) relational.RemoveObserver {
	return r.observers.Add(observer)
}

// Close releases the adapter when it holds external resources.
func (r *StoredRelation) Close() error {
	if c, ok := r.store.(Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *StoredRelation) String() string {
	return relational.FormatRelationTable(r)
}
