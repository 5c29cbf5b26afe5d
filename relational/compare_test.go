package relational

import (
	"bytes"
	"testing"
)

func TestCompareValuesCrossType(t *testing.T) {
	// Ordering is total: null < integer < real < text < blob.
	ordered := []Value{nil, Integer(999), Real(-1e18), Text(""), Blob([]byte{0})}
	for i := 0; i < len(ordered); i++ {
		for j := 0; j < len(ordered); j++ {
			got := CompareValues(ordered[i], ordered[j])
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			if got != want {
				t.Errorf("CompareValues(%v, %v) = %d, want %d", ordered[i], ordered[j], got, want)
			}
		}
	}
}

func TestCompareValuesWithinType(t *testing.T) {
	tests := []struct {
		left, right Value
		want        int
	}{
		{Integer(1), Integer(2), -1},
		{Integer(2), Integer(2), 0},
		{Real(1.5), Real(1.25), 1},
		{Text("apple"), Text("banana"), -1},
		{Text("cat"), Text("cat"), 0},
		{Blob([]byte{1, 2}), Blob([]byte{1, 3}), -1},
		{nil, nil, 0},
	}
	for _, tt := range tests {
		if got := CompareValues(tt.left, tt.right); got != tt.want {
			t.Errorf("CompareValues(%v, %v) = %d, want %d", tt.left, tt.right, got, tt.want)
		}
	}
}

func TestValuesEqualRequiresSameTag(t *testing.T) {
	if ValuesEqual(Integer(1), Real(1.0)) {
		t.Error("integer 1 and real 1.0 have different tags and must not be equal")
	}
	if !ValuesEqual(Blob([]byte("abc")), Blob([]byte("abc"))) {
		t.Error("equal blobs should compare equal")
	}
}

func TestCanonicalBytesInjective(t *testing.T) {
	// Different values must produce different bytes, including
	// pairs that collide as naive strings.
	values := []Value{
		nil,
		Integer(0),
		Integer(1),
		Integer(-1),
		Integer(12),
		Real(0),
		Real(1),
		Text(""),
		Text("1"),
		Text("n"),
		Blob(nil),
		Blob([]byte("1")),
		Blob([]byte("n")),
	}

	seen := make(map[string]Value)
	for _, v := range values {
		enc := string(CanonicalBytes(v))
		if prior, ok := seen[enc]; ok {
			t.Errorf("values %v and %v share encoding %q", prior, v, enc)
		}
		seen[enc] = v
	}
}

func TestCanonicalBytesFormats(t *testing.T) {
	if !bytes.Equal(CanonicalBytes(nil), []byte("n")) {
		t.Error("null encodes as \"n\"")
	}
	if !bytes.Equal(CanonicalBytes(Integer(-42)), []byte("i-42")) {
		t.Errorf("integer -42 encodes as i-42, got %q", CanonicalBytes(Integer(-42)))
	}
	if got := CanonicalBytes(Real(1.0)); len(got) != 9 || got[0] != 'r' {
		t.Errorf("real encodes as 'r' + 8 bytes, got %q", got)
	}
	if !bytes.Equal(CanonicalBytes(Text("abc")), []byte("sabc")) {
		t.Error("text encodes as \"s\" + NFD UTF-8")
	}
	if !bytes.Equal(CanonicalBytes(Blob([]byte{0xff})), []byte{'d', 0xff}) {
		t.Error("blob encodes as \"d\" + bytes")
	}
}

func TestCanonicalBytesNFD(t *testing.T) {
	// Composed U+00E9 and decomposed e+U+0301 normalize to the same
	// canonical text bytes.
	composed := CanonicalBytes(Text("\u00e9"))
	decomposed := CanonicalBytes(Text("e\u0301"))
	if !bytes.Equal(composed, decomposed) {
		t.Errorf("NFD normalization should unify %q and %q", composed, decomposed)
	}
	if !bytes.Equal(composed, append([]byte("s"), []byte("e\u0301")...)) {
		t.Errorf("canonical text must be NFD, got %q", composed)
	}
}
