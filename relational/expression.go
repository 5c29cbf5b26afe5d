package relational

import (
	"fmt"
	"strings"
)

// SelectExpression is a predicate tree evaluated against rows.
// Evaluating yields a Value; booleans are encoded as integer 0/1. An
// expression is a predicate when its value against every row is
// interpretable as boolean.
type SelectExpression interface {
	// Evaluate computes the expression's value against a row.
	Evaluate(row Row) Value

	// Attributes reports the attributes the expression references.
	Attributes() Scheme

	// Renaming returns the expression with attribute references
	// substituted per the mapping.
	Renaming(renames map[Attribute]Attribute) SelectExpression

	String() string
}

// ComparisonOperator tags a binary expression node.
type ComparisonOperator byte

const (
	OpEq ComparisonOperator = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
)

func (op ComparisonOperator) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	}
	return "?"
}

// ConstantExpression yields a fixed value for every row.
type ConstantExpression struct {
	V Value
}

func Const(v Value) ConstantExpression { return ConstantExpression{V: v} }

func (e ConstantExpression) Evaluate(Row) Value   { return e.V }
func (e ConstantExpression) Attributes() Scheme   { return Scheme{} }
func (e ConstantExpression) String() string       { return FormatValue(e.V) }
func (e ConstantExpression) Renaming(map[Attribute]Attribute) SelectExpression {
	return e
}

// AttributeExpression yields the row's value for an attribute.
type AttributeExpression struct {
	A Attribute
}

func AttrRef(name string) AttributeExpression {
	return AttributeExpression{A: Attr(name)}
}

func (e AttributeExpression) Evaluate(row Row) Value { return row.Get(e.A) }
func (e AttributeExpression) Attributes() Scheme     { return SchemeOf(e.A) }
func (e AttributeExpression) String() string         { return e.A.String() }
func (e AttributeExpression) Renaming(renames map[Attribute]Attribute) SelectExpression {
	if to, ok := renames[e.A]; ok {
		return AttributeExpression{A: to}
	}
	return e
}

// BinaryExpression combines two subexpressions with a comparison or
// boolean operator.
type BinaryExpression struct {
	Op    ComparisonOperator
	Left  SelectExpression
	Right SelectExpression
}

func (e BinaryExpression) Evaluate(row Row) Value {
	switch e.Op {
	case OpAnd:
		return Boolean(Truthy(e.Left.Evaluate(row)) && Truthy(e.Right.Evaluate(row)))
	case OpOr:
		return Boolean(Truthy(e.Left.Evaluate(row)) || Truthy(e.Right.Evaluate(row)))
	}

	cmp := CompareValues(e.Left.Evaluate(row), e.Right.Evaluate(row))
	switch e.Op {
	case OpEq:
		return Boolean(cmp == 0)
	case OpNe:
		return Boolean(cmp != 0)
	case OpLt:
		return Boolean(cmp < 0)
	case OpLe:
		return Boolean(cmp <= 0)
	case OpGt:
		return Boolean(cmp > 0)
	case OpGe:
		return Boolean(cmp >= 0)
	}
	return Boolean(false)
}

func (e BinaryExpression) Attributes() Scheme {
	return e.Left.Attributes().Union(e.Right.Attributes())
}

func (e BinaryExpression) Renaming(renames map[Attribute]Attribute) SelectExpression {
	return BinaryExpression{
		Op:    e.Op,
		Left:  e.Left.Renaming(renames),
		Right: e.Right.Renaming(renames),
	}
}

func (e BinaryExpression) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

// NotExpression negates the truthiness of its subexpression.
type NotExpression struct {
	Sub SelectExpression
}

func Not(e SelectExpression) NotExpression { return NotExpression{Sub: e} }

func (e NotExpression) Evaluate(row Row) Value {
	return Boolean(!Truthy(e.Sub.Evaluate(row)))
}

func (e NotExpression) Attributes() Scheme { return e.Sub.Attributes() }
func (e NotExpression) String() string     { return fmt.Sprintf("(not %s)", e.Sub) }
func (e NotExpression) Renaming(renames map[Attribute]Attribute) SelectExpression {
	return NotExpression{Sub: e.Sub.Renaming(renames)}
}

// BoolExpression is a constant predicate.
type BoolExpression bool

const (
	TrueExpression  BoolExpression = true
	FalseExpression BoolExpression = false
)

func (e BoolExpression) Evaluate(Row) Value { return Boolean(bool(e)) }
func (e BoolExpression) Attributes() Scheme { return Scheme{} }
func (e BoolExpression) Renaming(map[Attribute]Attribute) SelectExpression {
	return e
}

func (e BoolExpression) String() string {
	if e {
		return "true"
	}
	return "false"
}

// Convenience constructors

// AttrEq builds attribute == constant.
func AttrEq(name string, v Value) SelectExpression {
	return BinaryExpression{Op: OpEq, Left: AttrRef(name), Right: Const(v)}
}

// Compare builds a comparison between two subexpressions.
func Compare(op ComparisonOperator, left, right SelectExpression) SelectExpression {
	return BinaryExpression{Op: op, Left: left, Right: right}
}

// And builds the conjunction of expressions; with no operands it is
// the true predicate.
func And(exprs ...SelectExpression) SelectExpression {
	if len(exprs) == 0 {
		return TrueExpression
	}
	result := exprs[0]
	for _, e := range exprs[1:] {
		result = BinaryExpression{Op: OpAnd, Left: result, Right: e}
	}
	return result
}

// Or builds the disjunction of expressions; with no operands it is
// the false predicate.
func Or(exprs ...SelectExpression) SelectExpression {
	if len(exprs) == 0 {
		return FalseExpression
	}
	result := exprs[0]
	for _, e := range exprs[1:] {
		result = BinaryExpression{Op: OpOr, Left: result, Right: e}
	}
	return result
}

// RowEquality builds the predicate matching exactly the given row.
func RowEquality(row Row) SelectExpression {
	exprs := make([]SelectExpression, 0, len(row))
	for _, a := range row.Scheme().Sorted() {
		exprs = append(exprs, BinaryExpression{
			Op:    OpEq,
			Left:  AttributeExpression{A: a},
			Right: Const(row[a]),
		})
	}
	return And(exprs...)
}

// ConstantEquality reports whether the expression is a plain equality
// between one attribute and one constant, and if so which.
func ConstantEquality(e SelectExpression) (Attribute, Value, bool) {
	bin, ok := e.(BinaryExpression)
	if !ok || bin.Op != OpEq {
		return Attribute{}, nil, false
	}
	if attr, ok := bin.Left.(AttributeExpression); ok {
		if c, ok := bin.Right.(ConstantExpression); ok {
			return attr.A, c.V, true
		}
	}
	if attr, ok := bin.Right.(AttributeExpression); ok {
		if c, ok := bin.Left.(ConstantExpression); ok {
			return attr.A, c.V, true
		}
	}
	return Attribute{}, nil, false
}

// ProvablyInconsistent is the conservative cheap check: two equality
// predicates on the same attribute with different constant values
// cannot both hold. Anything else is assumed consistent.
func ProvablyInconsistent(a, b SelectExpression) bool {
	aAttr, aVal, ok := ConstantEquality(a)
	if !ok {
		return false
	}
	bAttr, bVal, ok := ConstantEquality(b)
	if !ok {
		return false
	}
	return aAttr == bAttr && !ValuesEqual(aVal, bVal)
}

// Unsatisfiable reports whether the predicate provably holds for no
// row: the false literal, or a conjunction whose branches are
// mutually inconsistent equalities. The check is conservative; a
// false result proves nothing.
func Unsatisfiable(e SelectExpression) bool {
	switch expr := e.(type) {
	case BoolExpression:
		return !bool(expr)
	case BinaryExpression:
		if expr.Op == OpAnd {
			return Unsatisfiable(expr.Left) || Unsatisfiable(expr.Right) ||
				ProvablyInconsistent(expr.Left, expr.Right)
		}
		if expr.Op == OpOr {
			return Unsatisfiable(expr.Left) && Unsatisfiable(expr.Right)
		}
	}
	return false
}

// ExpressionString is a debug helper joining expressions.
func ExpressionString(exprs []SelectExpression) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, " ")
}
