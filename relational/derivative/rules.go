package derivative

import (
	"github.com/wbrown/janus-relational/relational"
)

// nodeDelta is the derivative of one node: lazily constructed added
// and removed relations, either of which may be nil meaning empty.
type nodeDelta struct {
	added    relational.Relation
	removed  relational.Relation
	affected bool
}

// deltaFor derives the delta of a subtree from the pending variable
// changes. Union, difference, project, select, rename and equijoin
// decompose incrementally; intersection, aggregate, otherwise, unique
// and update are recomputed as the algebraic difference between the
// node's before and after images.
func (d *Derivative) deltaFor(rel relational.Relation) (nodeDelta, error) {
	node, ok := rel.(*relational.IntermediateRelation)
	if !ok {
		return d.leafDelta(rel)
	}

	switch node.Op() {
	case relational.OperationUnion:
		return d.unionDelta(node)
	case relational.OperationDifference:
		return d.differenceDelta(node)
	case relational.OperationProject:
		return d.projectDelta(node)
	case relational.OperationSelect:
		return d.selectDelta(node)
	case relational.OperationRename:
		return d.renameDelta(node)
	case relational.OperationEquijoin:
		return d.equijoinDelta(node)
	default:
		return d.recomputeDelta(node)
	}
}

func (d *Derivative) leafDelta(rel relational.Relation) (nodeDelta, error) {
	id := rel.RelationID()
	addedRows := d.added[id]
	removedRows := d.removed[id]
	if len(addedRows) == 0 && len(removedRows) == 0 {
		return nodeDelta{}, nil
	}

	delta := nodeDelta{affected: true}
	if len(addedRows) > 0 {
		added, err := concreteFromSet(rel.Scheme(), addedRows)
		if err != nil {
			return nodeDelta{}, err
		}
		delta.added = added
	}
	if len(removedRows) > 0 {
		removed, err := concreteFromSet(rel.Scheme(), removedRows)
		if err != nil {
			return nodeDelta{}, err
		}
		delta.removed = removed
	}
	return delta, nil
}

// beforeImage rebuilds the expression with every changed leaf
// replaced by its pre-change state: (leaf \ added) ∪ removed.
func (d *Derivative) beforeImage(rel relational.Relation) (relational.Relation, error) {
	node, ok := rel.(*relational.IntermediateRelation)
	if !ok {
		id := rel.RelationID()
		addedRows := d.added[id]
		removedRows := d.removed[id]
		if len(addedRows) == 0 && len(removedRows) == 0 {
			return rel, nil
		}

		before := rel
		if len(addedRows) > 0 {
			added, err := concreteFromSet(rel.Scheme(), addedRows)
			if err != nil {
				return nil, err
			}
			before, err = relational.Difference(before, added)
			if err != nil {
				return nil, err
			}
		}
		if len(removedRows) > 0 {
			removed, err := concreteFromSet(rel.Scheme(), removedRows)
			if err != nil {
				return nil, err
			}
			before, err = relational.Union(before, removed)
			if err != nil {
				return nil, err
			}
		}
		return before, nil
	}

	operands := node.Operands()
	rebuilt := make([]relational.Relation, len(operands))
	changed := false
	for i, operand := range operands {
		before, err := d.beforeImage(operand)
		if err != nil {
			return nil, err
		}
		rebuilt[i] = before
		if before != operand {
			changed = true
		}
	}
	if !changed {
		return rel, nil
	}
	return node.WithOperands(rebuilt...), nil
}

// d(union(A,B)).added   = (dA.added ∪ dB.added) \ (A ∪ B before)
// d(union(A,B)).removed = (dA.removed ∪ dB.removed) \ (A ∪ B after)
func (d *Derivative) unionDelta(node *relational.IntermediateRelation) (nodeDelta, error) {
	dA, err := d.deltaFor(node.Left())
	if err != nil {
		return nodeDelta{}, err
	}
	dB, err := d.deltaFor(node.Right())
	if err != nil {
		return nodeDelta{}, err
	}
	if !dA.affected && !dB.affected {
		return nodeDelta{}, nil
	}

	before, err := d.beforeImage(node)
	if err != nil {
		return nodeDelta{}, err
	}

	added, err := differenceOrNil(unionOrNil(dA.added, dB.added), before)
	if err != nil {
		return nodeDelta{}, err
	}
	removed, err := differenceOrNil(unionOrNil(dA.removed, dB.removed), node)
	if err != nil {
		return nodeDelta{}, err
	}
	return nodeDelta{added: added, removed: removed, affected: true}, nil
}

// d(difference(A,B)).added   = (dA.added \ B after) ∪ (A before ∩ dB.removed)
// d(difference(A,B)).removed = (dA.removed \ B before) ∪ (A after ∩ dB.added)
func (d *Derivative) differenceDelta(node *relational.IntermediateRelation) (nodeDelta, error) {
	dA, err := d.deltaFor(node.Left())
	if err != nil {
		return nodeDelta{}, err
	}
	dB, err := d.deltaFor(node.Right())
	if err != nil {
		return nodeDelta{}, err
	}
	if !dA.affected && !dB.affected {
		return nodeDelta{}, nil
	}

	aBefore, err := d.beforeImage(node.Left())
	if err != nil {
		return nodeDelta{}, err
	}
	bBefore, err := d.beforeImage(node.Right())
	if err != nil {
		return nodeDelta{}, err
	}

	addedLeft, err := differenceOrNil(dA.added, node.Right())
	if err != nil {
		return nodeDelta{}, err
	}
	addedRight, err := intersectionOrNil(aBefore, dB.removed)
	if err != nil {
		return nodeDelta{}, err
	}
	removedLeft, err := differenceOrNil(dA.removed, bBefore)
	if err != nil {
		return nodeDelta{}, err
	}
	removedRight, err := intersectionOrNil(node.Left(), dB.added)
	if err != nil {
		return nodeDelta{}, err
	}

	return nodeDelta{
		added:    unionOrNil(addedLeft, addedRight),
		removed:  unionOrNil(removedLeft, removedRight),
		affected: true,
	}, nil
}

// d(project(R,S)): the projection of dR, minus projected rows whose
// key is still produced on the relevant side.
func (d *Derivative) projectDelta(node *relational.IntermediateRelation) (nodeDelta, error) {
	dR, err := d.deltaFor(node.Left())
	if err != nil {
		return nodeDelta{}, err
	}
	if !dR.affected {
		return nodeDelta{}, nil
	}

	before, err := d.beforeImage(node)
	if err != nil {
		return nodeDelta{}, err
	}

	added, err := projectOrNil(dR.added, node.Scheme())
	if err != nil {
		return nodeDelta{}, err
	}
	added, err = differenceOrNil(added, before)
	if err != nil {
		return nodeDelta{}, err
	}

	removed, err := projectOrNil(dR.removed, node.Scheme())
	if err != nil {
		return nodeDelta{}, err
	}
	removed, err = differenceOrNil(removed, node)
	if err != nil {
		return nodeDelta{}, err
	}
	return nodeDelta{added: added, removed: removed, affected: true}, nil
}

// d(select(R,p)) = select(dR, p).
func (d *Derivative) selectDelta(node *relational.IntermediateRelation) (nodeDelta, error) {
	dR, err := d.deltaFor(node.Left())
	if err != nil {
		return nodeDelta{}, err
	}
	if !dR.affected {
		return nodeDelta{}, nil
	}

	added, err := selectOrNil(dR.added, node.Expr())
	if err != nil {
		return nodeDelta{}, err
	}
	removed, err := selectOrNil(dR.removed, node.Expr())
	if err != nil {
		return nodeDelta{}, err
	}
	return nodeDelta{added: added, removed: removed, affected: true}, nil
}

// d(rename) = rename of dR.
func (d *Derivative) renameDelta(node *relational.IntermediateRelation) (nodeDelta, error) {
	dR, err := d.deltaFor(node.Left())
	if err != nil {
		return nodeDelta{}, err
	}
	if !dR.affected {
		return nodeDelta{}, nil
	}

	added, err := renameOrNil(dR.added, node.Renames())
	if err != nil {
		return nodeDelta{}, err
	}
	removed, err := renameOrNil(dR.removed, node.Renames())
	if err != nil {
		return nodeDelta{}, err
	}
	return nodeDelta{added: added, removed: removed, affected: true}, nil
}

// d(equijoin(A,B,m)).added   = (dA.added ⋈ B after) ∪ (A before ⋈ dB.added)
// d(equijoin(A,B,m)).removed = (dA.removed ⋈ B before) ∪ (A after ⋈ dB.removed)
//
// The second added term joins against A's before image so a row pair
// arriving on both sides in one batch is reported exactly once.
func (d *Derivative) equijoinDelta(node *relational.IntermediateRelation) (nodeDelta, error) {
	dA, err := d.deltaFor(node.Left())
	if err != nil {
		return nodeDelta{}, err
	}
	dB, err := d.deltaFor(node.Right())
	if err != nil {
		return nodeDelta{}, err
	}
	if !dA.affected && !dB.affected {
		return nodeDelta{}, nil
	}

	aBefore, err := d.beforeImage(node.Left())
	if err != nil {
		return nodeDelta{}, err
	}
	bBefore, err := d.beforeImage(node.Right())
	if err != nil {
		return nodeDelta{}, err
	}

	addedLeft, err := equijoinOrNil(dA.added, node.Right(), node.Matching())
	if err != nil {
		return nodeDelta{}, err
	}
	addedRight, err := equijoinOrNil(aBefore, dB.added, node.Matching())
	if err != nil {
		return nodeDelta{}, err
	}
	removedLeft, err := equijoinOrNil(dA.removed, bBefore, node.Matching())
	if err != nil {
		return nodeDelta{}, err
	}
	removedRight, err := equijoinOrNil(node.Left(), dB.removed, node.Matching())
	if err != nil {
		return nodeDelta{}, err
	}

	return nodeDelta{
		added:    unionOrNil(addedLeft, addedRight),
		removed:  unionOrNil(removedLeft, removedRight),
		affected: true,
	}, nil
}

// recomputeDelta is the generic rule for operators that do not
// decompose incrementally (intersection, aggregate, otherwise,
// unique, update): the delta is the algebraic difference between the
// node's after and before images.
func (d *Derivative) recomputeDelta(node *relational.IntermediateRelation) (nodeDelta, error) {
	affected := false
	for _, operand := range node.Operands() {
		delta, err := d.deltaFor(operand)
		if err != nil {
			return nodeDelta{}, err
		}
		if delta.affected {
			affected = true
		}
	}
	if !affected {
		return nodeDelta{}, nil
	}

	before, err := d.beforeImage(node)
	if err != nil {
		return nodeDelta{}, err
	}
	added, err := relational.Difference(node, before)
	if err != nil {
		return nodeDelta{}, err
	}
	removed, err := relational.Difference(before, node)
	if err != nil {
		return nodeDelta{}, err
	}
	return nodeDelta{added: added, removed: removed, affected: true}, nil
}

// Algebra helpers treating nil as the empty relation.

func concreteFromSet(scheme relational.Scheme, rows map[string]relational.Row) (*relational.ConcreteRelation, error) {
	flat := make([]relational.Row, 0, len(rows))
	for _, row := range rows {
		flat = append(flat, row)
	}
	return relational.ConcreteFromRows(scheme, flat)
}

func unionOrNil(a, b relational.Relation) relational.Relation {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	result, err := relational.Union(a, b)
	if err != nil {
		return a
	}
	return result
}

func differenceOrNil(a, b relational.Relation) (relational.Relation, error) {
	if a == nil || b == nil {
		return a, nil
	}
	return relational.Difference(a, b)
}

func intersectionOrNil(a, b relational.Relation) (relational.Relation, error) {
	if a == nil || b == nil {
		return nil, nil
	}
	return relational.Intersection(a, b)
}

func projectOrNil(r relational.Relation, s relational.Scheme) (relational.Relation, error) {
	if r == nil {
		return nil, nil
	}
	return relational.Project(r, s)
}

func selectOrNil(r relational.Relation, expr relational.SelectExpression) (relational.Relation, error) {
	if r == nil {
		return nil, nil
	}
	return relational.Select(r, expr)
}

func renameOrNil(r relational.Relation, renames map[relational.Attribute]relational.Attribute) (relational.Relation, error) {
	if r == nil {
		return nil, nil
	}
	return relational.Rename(r, renames)
}

func equijoinOrNil(a, b relational.Relation, matching map[relational.Attribute]relational.Attribute) (relational.Relation, error) {
	if a == nil || b == nil {
		return nil, nil
	}
	return relational.Equijoin(a, b, matching)
}
