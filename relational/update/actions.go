package update

import (
	"github.com/wbrown/janus-relational/relational"
	"github.com/wbrown/janus-relational/relational/transact"
)

// actionKind tags a registered action.
type actionKind int

const (
	actionAdd actionKind = iota
	actionDelete
	actionUpdate
	actionRestoreSnapshot
	actionQuery
)

func (k actionKind) String() string {
	switch k {
	case actionAdd:
		return "add"
	case actionDelete:
		return "delete"
	case actionUpdate:
		return "update"
	case actionRestoreSnapshot:
		return "restoreSnapshot"
	case actionQuery:
		return "query"
	}
	return "?"
}

// action is one registered unit of work. Mutation registrations
// return immediately; effects happen on the next drain, in
// registration order.
type action struct {
	kind actionKind

	// Mutations
	target relational.MutableRelation
	row    relational.Row
	expr   relational.SelectExpression
	values relational.Row

	// Snapshot restore
	db       *transact.Database
	snapshot transact.DatabaseSnapshot

	// Direct query
	queryRel relational.Relation
	queryCB  func(rows []relational.Row, err error)
}

// mutationPredicate describes the region an action touches, for the
// differentiator's consistency check. ok is false when the action has
// no describable predicate (restore, query).
func (a *action) mutationPredicate() (expr relational.SelectExpression, row relational.Row, ok bool) {
	switch a.kind {
	case actionAdd:
		return nil, a.row, true
	case actionDelete, actionUpdate:
		return a.expr, nil, true
	}
	return nil, nil, false
}
