package codec

import (
	"errors"
	"fmt"
)

// L85 is a lexicographically-sortable Base85 variant. Row adapters can
// wrap file contents with it when the backing store is text-only.

// L85Alphabet is ordered so that encoded strings sort like their
// source bytes.
const L85Alphabet = "!$%&()+,-./" +
	"0123456789:;<=>@" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ[]_`" +
	"abcdefghijklmnopqrstuvwxyz{}"

var (
	// l85Decode is the decode lookup table; 0 marks an invalid byte.
	l85Decode [256]byte

	// ErrInvalidCharacter indicates an invalid character in input
	ErrInvalidCharacter = errors.New("invalid L85 character")
)

func init() {
	for i, c := range L85Alphabet {
		l85Decode[byte(c)] = byte(i + 1)
	}
}

// L85Codec encodes row file contents as L85 text.
type L85Codec struct{}

func (L85Codec) Encode(src []byte) []byte {
	return []byte(EncodeL85(src))
}

func (L85Codec) Decode(src []byte) ([]byte, error) {
	return DecodeL85(string(src))
}

// EncodeL85 encodes bytes to L85 format
func EncodeL85(src []byte) string {
	if len(src) == 0 {
		return ""
	}

	result := make([]byte, 0, len(src)*5/4+5)

	// Process full 4-byte groups
	for i := 0; i+4 <= len(src); i += 4 {
		v := uint32(src[i])<<24 | uint32(src[i+1])<<16 |
			uint32(src[i+2])<<8 | uint32(src[i+3])

		chars := [5]byte{}
		for j := 4; j >= 0; j-- {
			chars[j] = L85Alphabet[v%85]
			v /= 85
		}
		result = append(result, chars[:]...)
	}

	// Handle remainder bytes
	remainder := len(src) % 4
	if remainder > 0 {
		padded := [4]byte{}
		copy(padded[:], src[len(src)-remainder:])

		v := uint32(padded[0])<<24 | uint32(padded[1])<<16 |
			uint32(padded[2])<<8 | uint32(padded[3])

		chars := [5]byte{}
		for j := 4; j >= 0; j-- {
			chars[j] = L85Alphabet[v%85]
			v /= 85
		}

		// A group of n source bytes needs n+1 characters.
		result = append(result, chars[:remainder+1]...)
	}

	return string(result)
}

// DecodeL85 decodes L85 format back to bytes
func DecodeL85(src string) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}

	for i := 0; i < len(src); i++ {
		if l85Decode[src[i]] == 0 {
			return nil, fmt.Errorf("%w at position %d: %c", ErrInvalidCharacter, i, src[i])
		}
	}

	result := make([]byte, 0, len(src)*4/5+4)

	// Process full 5-char groups
	for i := 0; i+5 <= len(src); i += 5 {
		v := uint32(0)
		for j := 0; j < 5; j++ {
			v = v*85 + uint32(l85Decode[src[i+j]]-1)
		}

		group := [4]byte{
			byte(v >> 24),
			byte(v >> 16),
			byte(v >> 8),
			byte(v),
		}
		result = append(result, group[:]...)
	}

	// Handle remainder
	remainder := len(src) % 5
	if remainder > 0 {
		numBytes := remainder - 1
		if numBytes <= 0 {
			return nil, errors.New("invalid L85 encoding: incomplete group")
		}

		padded := src[len(src)-remainder:]
		for len(padded) < 5 {
			padded += string(L85Alphabet[len(L85Alphabet)-1])
		}

		v := uint32(0)
		for j := 0; j < 5; j++ {
			v = v*85 + uint32(l85Decode[padded[j]]-1)
		}

		group := [4]byte{
			byte(v >> 24),
			byte(v >> 16),
			byte(v >> 8),
			byte(v),
		}
		result = append(result, group[:numBytes]...)
	}

	return result, nil
}
