// Package codec provides optional content codecs for persistent row
// adapters. A codec wraps the serialized bytes of a row file on the
// way to and from disk.
package codec

// Codec transforms serialized row bytes before they reach storage and
// back when they are read.
type Codec interface {
	// Encode transforms plaintext bytes into their stored form.
	Encode(src []byte) []byte

	// Decode reverses Encode.
	Decode(src []byte) ([]byte, error)
}

// Identity is the no-op codec.
type Identity struct{}

func (Identity) Encode(src []byte) []byte          { return src }
func (Identity) Decode(src []byte) ([]byte, error) { return src, nil }
