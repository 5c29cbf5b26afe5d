package derivative

import (
	"github.com/wbrown/janus-relational/relational"
)

// The consistency check lets the update manager skip observers whose
// dependency region provably cannot overlap a mutation: no willChange,
// no recomputation. The check is conservative and cheap — it only
// proves inconsistency for pairs of equalities on the same attribute
// with different constant values.

// MutationFiltered reports whether a mutation described by a
// predicate on the given variable is provably outside every path from
// the root to that variable.
func (d *Derivative) MutationFiltered(variable relational.Relation, mutation relational.SelectExpression) bool {
	paths, ok := d.filters[variable.RelationID()]
	if !ok {
		// Not a variable of this root; nothing to notify anyway.
		return true
	}
	for _, path := range paths {
		if !pathExcludesPredicate(path, mutation) {
			return false
		}
	}
	return len(paths) > 0
}

// RowFiltered reports whether adding the given row to the variable is
// provably outside every path from the root to that variable.
func (d *Derivative) RowFiltered(variable relational.Relation, row relational.Row) bool {
	paths, ok := d.filters[variable.RelationID()]
	if !ok {
		return true
	}
	for _, path := range paths {
		if !pathExcludesRow(path, row) {
			return false
		}
	}
	return len(paths) > 0
}

func pathExcludesPredicate(path pathFilter, mutation relational.SelectExpression) bool {
	for _, filter := range path {
		if relational.ProvablyInconsistent(filter, mutation) {
			return true
		}
	}
	return false
}

func pathExcludesRow(path pathFilter, row relational.Row) bool {
	for _, filter := range path {
		attr, want, ok := relational.ConstantEquality(filter)
		if !ok {
			continue
		}
		have := row.Get(attr)
		if relational.Type(have) == relational.TypeNotFound {
			continue
		}
		if !relational.ValuesEqual(have, want) {
			return true
		}
	}
	return false
}
