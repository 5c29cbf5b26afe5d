package relational

// Operation tags an intermediate relation node. The differentiator
// pattern-matches on these when it derives deltas.
type Operation byte

const (
	OperationUnion Operation = iota
	OperationIntersection
	OperationDifference
	OperationProject
	OperationSelect
	OperationRename
	OperationEquijoin
	OperationAggregate
	OperationOtherwise
	OperationUnique
	OperationUpdate
)

func (op Operation) String() string {
	switch op {
	case OperationUnion:
		return "union"
	case OperationIntersection:
		return "intersection"
	case OperationDifference:
		return "difference"
	case OperationProject:
		return "project"
	case OperationSelect:
		return "select"
	case OperationRename:
		return "rename"
	case OperationEquijoin:
		return "equijoin"
	case OperationAggregate:
		return "aggregate"
	case OperationOtherwise:
		return "otherwise"
	case OperationUnique:
		return "unique"
	case OperationUpdate:
		return "update"
	}
	return "?"
}

// AggregateFunc folds an accumulator with one attribute value. The
// accumulator starts at the combinator's initial value and may be
// NotFound to mean "no value yet".
type AggregateFunc func(acc Value, v Value) (Value, error)

// IntermediateRelation is a lazy algebraic node with one or two
// operand relations and an operation tag. Its scheme is determined
// statically from the operands at construction time. Re-evaluation
// happens on every Rows call.
type IntermediateRelation struct {
	id     uint64
	op     Operation
	scheme Scheme
	left   Relation
	right  Relation

	expr         SelectExpression       // select
	renames      map[Attribute]Attribute // rename
	matching     map[Attribute]Attribute // equijoin: left attr -> right attr
	aggAttr      Attribute               // aggregate
	aggInitial   Value                   // aggregate
	aggFn        AggregateFunc           // aggregate
	uniqueAttr   Attribute               // unique
	uniqueValue  Value                   // unique
	updateValues Row                     // update
}

func (r *IntermediateRelation) RelationID() uint64 { return r.id }
func (r *IntermediateRelation) Scheme() Scheme     { return r.scheme }
func (r *IntermediateRelation) Op() Operation      { return r.op }

// Operands returns the operand relations, left first.
func (r *IntermediateRelation) Operands() []Relation {
	if r.right == nil {
		return []Relation{r.left}
	}
	return []Relation{r.left, r.right}
}

func (r *IntermediateRelation) Left() Relation  { return r.left }
func (r *IntermediateRelation) Right() Relation { return r.right }

// Expr returns the select predicate for select nodes.
func (r *IntermediateRelation) Expr() SelectExpression { return r.expr }

// Renames returns the attribute substitution for rename nodes.
func (r *IntermediateRelation) Renames() map[Attribute]Attribute { return r.renames }

// Matching returns the join attribute mapping for equijoin nodes.
func (r *IntermediateRelation) Matching() map[Attribute]Attribute { return r.matching }

// UpdateValues returns the overwrite row for update nodes.
func (r *IntermediateRelation) UpdateValues() Row { return r.updateValues }

// ProjectScheme returns the output scheme for project nodes.
func (r *IntermediateRelation) ProjectScheme() Scheme { return r.scheme }

// WithOperands clones the node with substituted operands. The
// differentiator uses it to rebuild before-images; schemes must match
// the originals.
func (r *IntermediateRelation) WithOperands(operands ...Relation) *IntermediateRelation {
	clone := *r
	clone.id = NextRelationID()
	clone.left = operands[0]
	if len(operands) > 1 {
		clone.right = operands[1]
	}
	return &clone
}

func (r *IntermediateRelation) String() string { return relationString(r) }

// Table returns a formatted markdown table representation.
func (r *IntermediateRelation) Table() string { return FormatRelationTable(r) }

func newIntermediate(op Operation, scheme Scheme, left, right Relation) *IntermediateRelation {
	return &IntermediateRelation{
		id:     NextRelationID(),
		op:     op,
		scheme: scheme,
		left:   left,
		right:  right,
	}
}

// Union returns the rows present in a or b, set semantics. Schemes
// must match.
func Union(a, b Relation) (*IntermediateRelation, error) {
	if !a.Scheme().Equal(b.Scheme()) {
		return nil, SchemeViolationf("union of %s and %s", a.Scheme(), b.Scheme())
	}
	return newIntermediate(OperationUnion, a.Scheme().Clone(), a, b), nil
}

// Intersection returns the rows present in both a and b.
func Intersection(a, b Relation) (*IntermediateRelation, error) {
	if !a.Scheme().Equal(b.Scheme()) {
		return nil, SchemeViolationf("intersection of %s and %s", a.Scheme(), b.Scheme())
	}
	return newIntermediate(OperationIntersection, a.Scheme().Clone(), a, b), nil
}

// Difference returns the rows in a not in b.
func Difference(a, b Relation) (*IntermediateRelation, error) {
	if !a.Scheme().Equal(b.Scheme()) {
		return nil, SchemeViolationf("difference of %s and %s", a.Scheme(), b.Scheme())
	}
	return newIntermediate(OperationDifference, a.Scheme().Clone(), a, b), nil
}

// Project restricts each row to the attributes of s, collapsing
// duplicates. s must be a subset of r's scheme.
func Project(r Relation, s Scheme) (*IntermediateRelation, error) {
	if !s.SubsetOf(r.Scheme()) {
		return nil, SchemeViolationf("project %s from %s", s, r.Scheme())
	}
	return newIntermediate(OperationProject, s.Clone(), r, nil), nil
}

// Select keeps the rows for which expr evaluates truthy. When the
// operand's adapter advertises native predicate support the predicate
// is pushed down at evaluation time.
func Select(r Relation, expr SelectExpression) (*IntermediateRelation, error) {
	if !expr.Attributes().SubsetOf(r.Scheme()) {
		return nil, SchemeViolationf("select %s over %s", expr, r.Scheme())
	}
	node := newIntermediate(OperationSelect, r.Scheme().Clone(), r, nil)
	node.expr = expr
	return node, nil
}

// Rename substitutes attribute names. The rename must be a bijection
// from existing attributes and must not collide with attributes it
// leaves in place.
func Rename(r Relation, renames map[Attribute]Attribute) (*IntermediateRelation, error) {
	scheme := r.Scheme()
	result := make(Scheme, len(scheme))
	seen := make(map[Attribute]struct{}, len(renames))
	for from, to := range renames {
		if !scheme.Contains(from) {
			return nil, SchemeViolationf("rename of %s absent from %s", from, scheme)
		}
		if _, dup := seen[to]; dup {
			return nil, SchemeViolationf("rename maps two attributes to %s", to)
		}
		seen[to] = struct{}{}
	}
	for a := range scheme {
		target := a
		if to, ok := renames[a]; ok {
			target = to
		}
		if result.Contains(target) {
			return nil, SchemeViolationf("rename creates collision on %s", target)
		}
		result[target] = struct{}{}
	}

	copied := make(map[Attribute]Attribute, len(renames))
	for from, to := range renames {
		copied[from] = to
	}
	node := newIntermediate(OperationRename, result, r, nil)
	node.renames = copied
	return node, nil
}

// RenameAttrs is Rename with string attribute names.
func RenameAttrs(r Relation, renames map[string]string) (*IntermediateRelation, error) {
	mapped := make(map[Attribute]Attribute, len(renames))
	for from, to := range renames {
		mapped[Attr(from)] = Attr(to)
	}
	return Rename(r, mapped)
}

// Equijoin pairs every a in A with every b in B where, for each
// (k, v) in matching, a[k] == b[v]. The output scheme is the union of
// both schemes. Schemes may overlap only at attributes the matching
// maps to themselves; any other overlap is ambiguous and rejected.
func Equijoin(a, b Relation, matching map[Attribute]Attribute) (*IntermediateRelation, error) {
	if len(matching) == 0 {
		return nil, SchemeViolationf("equijoin requires a non-empty matching")
	}
	for k, v := range matching {
		if !a.Scheme().Contains(k) {
			return nil, SchemeViolationf("equijoin attribute %s absent from %s", k, a.Scheme())
		}
		if !b.Scheme().Contains(v) {
			return nil, SchemeViolationf("equijoin attribute %s absent from %s", v, b.Scheme())
		}
	}
	for shared := range a.Scheme().Intersection(b.Scheme()) {
		if to, ok := matching[shared]; !ok || to != shared {
			return nil, SchemeViolationf("equijoin has ambiguous overlap on %s", shared)
		}
	}

	copied := make(map[Attribute]Attribute, len(matching))
	for k, v := range matching {
		copied[k] = v
	}
	node := newIntermediate(OperationEquijoin, a.Scheme().Union(b.Scheme()), a, b)
	node.matching = copied
	return node, nil
}

// EquijoinAttrs is Equijoin with string attribute names.
func EquijoinAttrs(a, b Relation, matching map[string]string) (*IntermediateRelation, error) {
	mapped := make(map[Attribute]Attribute, len(matching))
	for k, v := range matching {
		mapped[Attr(k)] = Attr(v)
	}
	return Equijoin(a, b, mapped)
}

// Aggregate folds the attr values of r with fn starting from initial,
// producing a one-attribute, at-most-one-row relation. When initial is
// NotFound and r is empty, the result is empty.
func Aggregate(r Relation, attr Attribute, initial Value, fn AggregateFunc) (*IntermediateRelation, error) {
	if !r.Scheme().Contains(attr) {
		return nil, SchemeViolationf("aggregate over %s absent from %s", attr, r.Scheme())
	}
	node := newIntermediate(OperationAggregate, SchemeOf(attr), r, nil)
	node.aggAttr = attr
	node.aggInitial = initial
	node.aggFn = fn
	return node, nil
}

// Max is the aggregate keeping the largest attr value.
func Max(r Relation, attr Attribute) (*IntermediateRelation, error) {
	return Aggregate(r, attr, NotFound, func(acc, v Value) (Value, error) {
		if Type(acc) == TypeNotFound || CompareValues(v, acc) > 0 {
			return v, nil
		}
		return acc, nil
	})
}

// Min is the aggregate keeping the smallest attr value.
func Min(r Relation, attr Attribute) (*IntermediateRelation, error) {
	return Aggregate(r, attr, NotFound, func(acc, v Value) (Value, error) {
		if Type(acc) == TypeNotFound || CompareValues(v, acc) < 0 {
			return v, nil
		}
		return acc, nil
	})
}

// Count is the aggregate counting rows; an empty relation counts 0.
func Count(r Relation, attr Attribute) (*IntermediateRelation, error) {
	return Aggregate(r, attr, Integer(0), func(acc, v Value) (Value, error) {
		return acc.(int64) + 1, nil
	})
}

// Otherwise yields a when a is non-empty, else b. Schemes must match.
func Otherwise(a, b Relation) (*IntermediateRelation, error) {
	if !a.Scheme().Equal(b.Scheme()) {
		return nil, SchemeViolationf("otherwise of %s and %s", a.Scheme(), b.Scheme())
	}
	return newIntermediate(OperationOtherwise, a.Scheme().Clone(), a, b), nil
}

// Unique yields r when every row's attr equals v, else the empty
// relation.
func Unique(r Relation, attr Attribute, v Value) (*IntermediateRelation, error) {
	if !r.Scheme().Contains(attr) {
		return nil, SchemeViolationf("unique over %s absent from %s", attr, r.Scheme())
	}
	node := newIntermediate(OperationUnique, r.Scheme().Clone(), r, nil)
	node.uniqueAttr = attr
	node.uniqueValue = v
	return node, nil
}

// Update yields every row of r with the given attributes overwritten.
// The scheme is unchanged; newValues must stay within it.
func Update(r Relation, newValues Row) (*IntermediateRelation, error) {
	if !newValues.Scheme().SubsetOf(r.Scheme()) {
		return nil, SchemeViolationf("update values %s outside scheme %s", newValues, r.Scheme())
	}
	node := newIntermediate(OperationUpdate, r.Scheme().Clone(), r, nil)
	node.updateValues = newValues.Clone()
	return node, nil
}
