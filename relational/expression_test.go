package relational

import (
	"testing"
)

func TestExpressionEvaluate(t *testing.T) {
	r := NewRow(map[string]Value{"id": Integer(1), "name": Text("cat"), "score": Real(2.5)})

	tests := []struct {
		name string
		expr SelectExpression
		want Value
	}{
		{"eq true", AttrEq("id", Integer(1)), Integer(1)},
		{"eq false", AttrEq("id", Integer(2)), Integer(0)},
		{"ne", Compare(OpNe, AttrRef("name"), Const(Text("dog"))), Integer(1)},
		{"lt", Compare(OpLt, AttrRef("id"), Const(Integer(5))), Integer(1)},
		{"le", Compare(OpLe, AttrRef("id"), Const(Integer(1))), Integer(1)},
		{"gt", Compare(OpGt, AttrRef("score"), Const(Real(3.0))), Integer(0)},
		{"ge", Compare(OpGe, AttrRef("score"), Const(Real(2.5))), Integer(1)},
		{"and", And(AttrEq("id", Integer(1)), AttrEq("name", Text("cat"))), Integer(1)},
		{"or", Or(AttrEq("id", Integer(9)), AttrEq("name", Text("cat"))), Integer(1)},
		{"not", Not(AttrEq("id", Integer(1))), Integer(0)},
		{"true literal", TrueExpression, Integer(1)},
		{"false literal", FalseExpression, Integer(0)},
		{"constant", Const(Text("x")), Text("x")},
		{"attribute", AttrRef("name"), Text("cat")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.expr.Evaluate(r); !ValuesEqual(got, tt.want) {
				t.Errorf("%s over %s = %v, want %v", tt.expr, r, got, tt.want)
			}
		})
	}
}

func TestExpressionMissingAttributeComparesAsNotFound(t *testing.T) {
	r := NewRow(map[string]Value{"id": Integer(1)})
	// notFound equals nothing storable, so equality on a missing
	// attribute is false.
	if Truthy(AttrEq("name", Text("cat")).Evaluate(r)) {
		t.Error("equality on a missing attribute must be false")
	}
}

func TestExpressionRenaming(t *testing.T) {
	e := AttrEq("airport", Text("Atlanta"))
	renamed := e.Renaming(map[Attribute]Attribute{Attr("airport"): Attr("from")})
	r := NewRow(map[string]Value{"from": Text("Atlanta")})
	if !Truthy(renamed.Evaluate(r)) {
		t.Errorf("renamed expression %s should match %s", renamed, r)
	}
	if !renamed.Attributes().Equal(NewScheme("from")) {
		t.Error("renamed expression references the new attribute")
	}
}

func TestConstantEquality(t *testing.T) {
	attr, v, ok := ConstantEquality(AttrEq("id", Integer(1)))
	if !ok || attr != Attr("id") || !ValuesEqual(v, Integer(1)) {
		t.Error("attribute = constant should be recognized")
	}

	// Flipped operand order is recognized too.
	attr, v, ok = ConstantEquality(BinaryExpression{Op: OpEq, Left: Const(Integer(2)), Right: AttrRef("id")})
	if !ok || attr != Attr("id") || !ValuesEqual(v, Integer(2)) {
		t.Error("constant = attribute should be recognized")
	}

	if _, _, ok := ConstantEquality(Compare(OpLt, AttrRef("id"), Const(Integer(1)))); ok {
		t.Error("non-equality is not a constant equality")
	}
}

func TestProvablyInconsistent(t *testing.T) {
	if !ProvablyInconsistent(AttrEq("id", Integer(1)), AttrEq("id", Integer(3))) {
		t.Error("same attribute, different constants: provably inconsistent")
	}
	if ProvablyInconsistent(AttrEq("id", Integer(1)), AttrEq("id", Integer(1))) {
		t.Error("identical equalities are consistent")
	}
	if ProvablyInconsistent(AttrEq("id", Integer(1)), AttrEq("name", Text("x"))) {
		t.Error("different attributes prove nothing")
	}
	// The check is conservative: ranges are assumed consistent.
	if ProvablyInconsistent(AttrEq("id", Integer(1)), Compare(OpGt, AttrRef("id"), Const(Integer(5)))) {
		t.Error("non-equality pairs are assumed consistent")
	}
}

func TestUnsatisfiable(t *testing.T) {
	if !Unsatisfiable(FalseExpression) {
		t.Error("false is unsatisfiable")
	}
	if !Unsatisfiable(And(AttrEq("id", Integer(1)), AttrEq("id", Integer(2)))) {
		t.Error("contradictory conjunction is unsatisfiable")
	}
	if Unsatisfiable(And(AttrEq("id", Integer(1)), AttrEq("name", Text("x")))) {
		t.Error("consistent conjunction is satisfiable")
	}
	if Unsatisfiable(Or(FalseExpression, AttrEq("id", Integer(1)))) {
		t.Error("a satisfiable branch keeps an or satisfiable")
	}
}
