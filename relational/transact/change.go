// Package transact provides the change-logging substrate: relations
// that record mutations as an append-only log, group membership in a
// transactional database with begin/end nesting, and immutable
// snapshots of the logs for undo.
package transact

import (
	"github.com/wbrown/janus-relational/relational"
)

// Change is one entry of a mutation log. A delete of predicate P is
// stored as Select(not P), preserving the rows that should remain, so
// replaying the log over the underlying relation always reproduces
// the logical state.
type Change interface {
	// apply transforms a materialized row set in place.
	apply(rows map[string]relational.Row)

	// clone returns an independent copy; logs hand out snapshots and
	// must not share mutable state with them.
	clone() Change
}

// UnionChange adds a set of rows.
type UnionChange struct {
	Rows []relational.Row
}

func (c UnionChange) apply(rows map[string]relational.Row) {
	for _, row := range c.Rows {
		rows[row.Key()] = row
	}
}

func (c UnionChange) clone() Change {
	rows := make([]relational.Row, len(c.Rows))
	copy(rows, c.Rows)
	return UnionChange{Rows: rows}
}

// SelectChange keeps only the rows matching the expression.
type SelectChange struct {
	Keeping relational.SelectExpression
}

func (c SelectChange) apply(rows map[string]relational.Row) {
	for key, row := range rows {
		if !relational.Truthy(c.Keeping.Evaluate(row)) {
			delete(rows, key)
		}
	}
}

func (c SelectChange) clone() Change { return c }

// UpdateChange overwrites attributes on the rows matching the
// expression.
type UpdateChange struct {
	Expr      relational.SelectExpression
	NewValues relational.Row
}

func (c UpdateChange) apply(rows map[string]relational.Row) {
	var updated []relational.Row
	for key, row := range rows {
		if relational.Truthy(c.Expr.Evaluate(row)) {
			updated = append(updated, row.Overwriting(c.NewValues))
			delete(rows, key)
		}
	}
	for _, row := range updated {
		rows[row.Key()] = row
	}
}

func (c UpdateChange) clone() Change {
	return UpdateChange{Expr: c.Expr, NewValues: c.NewValues.Clone()}
}

// Materialize applies a log to an underlying relation and returns the
// logical content. Complexity is linear in log length times underlying
// iteration; the change-logging relation caches the result between
// log appends.
func Materialize(underlying relational.Relation, log []Change) (*relational.ConcreteRelation, error) {
	rows, err := relational.RowSet(underlying)
	if err != nil {
		return nil, err
	}
	for _, change := range log {
		change.apply(rows)
	}

	flat := make([]relational.Row, 0, len(rows))
	for _, row := range rows {
		flat = append(flat, row)
	}
	return relational.ConcreteFromRows(underlying.Scheme(), flat)
}

// ComputeChange diffs the logical state produced by the log against
// the underlying content, yielding the minimal row sets to add and
// delete when committing.
func ComputeChange(underlying relational.Relation, log []Change) (added, removed []relational.Row, err error) {
	current, err := relational.RowSet(underlying)
	if err != nil {
		return nil, nil, err
	}
	target := make(map[string]relational.Row, len(current))
	for key, row := range current {
		target[key] = row
	}
	for _, change := range log {
		change.apply(target)
	}

	for key, row := range target {
		if _, ok := current[key]; !ok {
			added = append(added, row)
		}
	}
	for key, row := range current {
		if _, ok := target[key]; !ok {
			removed = append(removed, row)
		}
	}
	return added, removed, nil
}
