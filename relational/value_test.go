package relational

import (
	"testing"
)

func TestValueTypes(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want ValueType
	}{
		{"null", nil, TypeNull},
		{"integer", Integer(42), TypeInteger},
		{"real", Real(3.14), TypeReal},
		{"text", Text("cat"), TypeText},
		{"blob", Blob([]byte{1, 2}), TypeBlob},
		{"notFound", NotFound, TypeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Type(tt.v); got != tt.want {
				t.Errorf("Type(%v) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}

func TestBooleanEncoding(t *testing.T) {
	if Boolean(true) != Integer(1) {
		t.Error("true should encode as integer 1")
	}
	if Boolean(false) != Integer(0) {
		t.Error("false should encode as integer 0")
	}
}

func TestTruthy(t *testing.T) {
	if !Truthy(Integer(1)) || !Truthy(Integer(-7)) {
		t.Error("non-zero integers should be truthy")
	}
	if Truthy(Integer(0)) {
		t.Error("zero should not be truthy")
	}
	// Only integers are interpretable as booleans.
	if Truthy(Text("yes")) || Truthy(Real(1.0)) || Truthy(nil) || Truthy(NotFound) {
		t.Error("non-integer values should not be truthy")
	}
}

func TestIsStorable(t *testing.T) {
	for _, v := range []Value{nil, Integer(1), Real(1.5), Text("x"), Blob(nil)} {
		if !IsStorable(v) {
			t.Errorf("%v should be storable", v)
		}
	}
	if IsStorable(NotFound) {
		t.Error("notFound is never stored")
	}
}
