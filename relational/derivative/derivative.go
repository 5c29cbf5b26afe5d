// Package derivative implements the incremental differentiator: given
// an algebraic expression tree and a change to one of its leaf
// variables, it computes the expression's derivative — the added and
// removed rows of the root — without re-evaluating the whole tree.
package derivative

import (
	"github.com/wbrown/janus-relational/relational"
)

// Derivative maps changes on leaf variables of a root expression to a
// RelationChange on the root. Leaf variables are every relation
// reachable from the root that is not an intermediate node: stored,
// concrete, and change-logging relations.
//
// Variable changes accumulate between Clear calls; the update manager
// routes each base-level change in and clears the derivative after
// the batch executes.
type Derivative struct {
	root      relational.Relation
	variables map[uint64]relational.Relation
	filters   map[uint64][]pathFilter

	added   map[uint64]map[string]relational.Row
	removed map[uint64]map[string]relational.Row
}

// pathFilter is the conjunction of select predicates bounding one
// path from the root to a variable.
type pathFilter []relational.SelectExpression

// NewDerivative walks the expression tree rooted at root, collecting
// every leaf variable and the filter predicates bounding it.
func NewDerivative(root relational.Relation) *Derivative {
	d := &Derivative{
		root:      root,
		variables: make(map[uint64]relational.Relation),
		filters:   make(map[uint64][]pathFilter),
		added:     make(map[uint64]map[string]relational.Row),
		removed:   make(map[uint64]map[string]relational.Row),
	}
	d.collect(root, nil)
	return d
}

// Root returns the observed root expression.
func (d *Derivative) Root() relational.Relation { return d.root }

// Variables returns the leaf variables reachable from the root.
func (d *Derivative) Variables() []relational.Relation {
	result := make([]relational.Relation, 0, len(d.variables))
	for _, rel := range d.variables {
		result = append(result, rel)
	}
	return result
}

// HasVariable reports whether the relation is a leaf of the root.
func (d *Derivative) HasVariable(rel relational.Relation) bool {
	_, ok := d.variables[rel.RelationID()]
	return ok
}

// AddVariableChange merges a change on a leaf variable into the
// pending per-variable deltas. A row removed then re-added cancels
// out, keeping the net delta minimal.
func (d *Derivative) AddVariableChange(variable relational.Relation, change relational.RelationChange) error {
	id := variable.RelationID()
	if _, ok := d.variables[id]; !ok {
		return nil
	}
	if d.added[id] == nil {
		d.added[id] = make(map[string]relational.Row)
		d.removed[id] = make(map[string]relational.Row)
	}

	addedRows, err := change.AddedRows()
	if err != nil {
		return err
	}
	removedRows, err := change.RemovedRows()
	if err != nil {
		return err
	}

	for _, row := range addedRows {
		key := row.Key()
		if _, ok := d.removed[id][key]; ok {
			delete(d.removed[id], key)
		} else {
			d.added[id][key] = row
		}
	}
	for _, row := range removedRows {
		key := row.Key()
		if _, ok := d.added[id][key]; ok {
			delete(d.added[id], key)
		} else {
			d.removed[id][key] = row
		}
	}
	return nil
}

// Clear drops every pending variable change.
func (d *Derivative) Clear() {
	d.added = make(map[uint64]map[string]relational.Row)
	d.removed = make(map[uint64]map[string]relational.Row)
}

// HasChanges reports whether any variable change is pending.
func (d *Derivative) HasChanges() bool {
	for _, rows := range d.added {
		if len(rows) > 0 {
			return true
		}
	}
	for _, rows := range d.removed {
		if len(rows) > 0 {
			return true
		}
	}
	return false
}

// Change derives the root's delta from the pending variable changes.
// The returned relations are lazy expressions in the same algebra;
// affected is false when no pending change can reach the root.
//
// The delta is computed against the CURRENT state of the variables,
// i.e. after the pending changes have been applied to them.
func (d *Derivative) Change() (change relational.RelationChange, affected bool, err error) {
	delta, err := d.deltaFor(d.root)
	if err != nil {
		return relational.RelationChange{}, false, err
	}
	if !delta.affected {
		return relational.RelationChange{}, false, nil
	}
	return relational.RelationChange{Added: delta.added, Removed: delta.removed}, true, nil
}

// collect gathers variables and their path filters.
func (d *Derivative) collect(rel relational.Relation, filters pathFilter) {
	node, ok := rel.(*relational.IntermediateRelation)
	if !ok {
		id := rel.RelationID()
		d.variables[id] = rel
		path := make(pathFilter, len(filters))
		copy(path, filters)
		d.filters[id] = append(d.filters[id], path)
		return
	}

	switch node.Op() {
	case relational.OperationSelect:
		extended := append(append(pathFilter{}, filters...), node.Expr())
		d.collect(node.Left(), extended)

	case relational.OperationRename:
		// Filters speak the renamed attribute space; invert the
		// mapping before descending.
		inverse := make(map[relational.Attribute]relational.Attribute, len(node.Renames()))
		for from, to := range node.Renames() {
			inverse[to] = from
		}
		inverted := make(pathFilter, 0, len(filters))
		for _, f := range filters {
			inverted = append(inverted, f.Renaming(inverse))
		}
		d.collect(node.Left(), inverted)

	case relational.OperationEquijoin:
		// A filter constrains an operand only when its attributes all
		// come from that operand's scheme.
		d.collect(node.Left(), filtersWithin(filters, node.Left().Scheme()))
		d.collect(node.Right(), filtersWithin(filters, node.Right().Scheme()))

	default:
		for _, operand := range node.Operands() {
			d.collect(operand, filtersWithin(filters, operand.Scheme()))
		}
	}
}

func (f pathFilter) renamed(mapping map[relational.Attribute]relational.Attribute) pathFilter {
	result := make(pathFilter, len(f))
	for i, expr := range f {
		result[i] = expr.Renaming(mapping)
	}
	return result
}

func filtersWithin(filters pathFilter, scheme relational.Scheme) pathFilter {
	var result pathFilter
	for _, f := range filters {
		if f.Attributes().SubsetOf(scheme) {
			result = append(result, f)
		}
	}
	return result
}

// Attributes returns the attributes referenced by every predicate on
// the path.
func (f pathFilter) Attributes() relational.Scheme {
	s := relational.Scheme{}
	for _, expr := range f {
		s = s.Union(expr.Attributes())
	}
	return s
}
