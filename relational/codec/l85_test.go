package codec

import (
	"bytes"
	"testing"
)

func TestL85RoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0},
		{1, 2, 3},
		{1, 2, 3, 4},
		{1, 2, 3, 4, 5},
		[]byte("hello world, this is a longer payload"),
		{0xff, 0xfe, 0xfd, 0xfc, 0xfb},
	}

	for _, src := range cases {
		encoded := EncodeL85(src)
		decoded, err := DecodeL85(encoded)
		if err != nil {
			t.Fatalf("decode %q: %v", encoded, err)
		}
		if !bytes.Equal(decoded, src) {
			t.Errorf("round trip of %v gave %v", src, decoded)
		}
	}
}

func TestL85RejectsInvalidInput(t *testing.T) {
	if _, err := DecodeL85("ab\x00cd"); err == nil {
		t.Error("invalid character should be rejected")
	}
	if _, err := DecodeL85("a"); err == nil {
		t.Error("incomplete group should be rejected")
	}
}

func TestL85Codec(t *testing.T) {
	var c L85Codec
	payload := []byte("<plist><dict/></plist>")
	decoded, err := c.Decode(c.Encode(payload))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Error("codec round trip failed")
	}
}
