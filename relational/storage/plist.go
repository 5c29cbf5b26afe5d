package storage

import (
	"fmt"

	"howett.net/plist"

	"github.com/wbrown/janus-relational/relational"
)

// Rows serialize as XML plists. A plist has no native null and cannot
// distinguish an empty data from an absent one, so every value is a
// two-entry dict {"t": tag, "v": payload} using the same tag letters
// as the canonical byte encoding. The round-trip Row -> plist -> Row
// is the identity for all value variants.

type plistValue struct {
	Tag     string      `plist:"t"`
	Payload interface{} `plist:"v,omitempty"`
}

func valueToPlist(v relational.Value) (plistValue, error) {
	switch val := v.(type) {
	case nil:
		return plistValue{Tag: "n"}, nil
	case int64:
		return plistValue{Tag: "i", Payload: val}, nil
	case float64:
		return plistValue{Tag: "r", Payload: val}, nil
	case string:
		return plistValue{Tag: "s", Payload: val}, nil
	case []byte:
		return plistValue{Tag: "d", Payload: val}, nil
	}
	return plistValue{}, relational.SerializationErrorf("unserializable value %T", v)
}

func valueFromPlist(pv plistValue) (relational.Value, error) {
	switch pv.Tag {
	case "n":
		return nil, nil
	case "i":
		switch n := pv.Payload.(type) {
		case int64:
			return n, nil
		case uint64:
			return int64(n), nil
		case int:
			return int64(n), nil
		}
		return nil, relational.SerializationErrorf("integer payload is %T", pv.Payload)
	case "r":
		switch n := pv.Payload.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		}
		return nil, relational.SerializationErrorf("real payload is %T", pv.Payload)
	case "s":
		s, ok := pv.Payload.(string)
		if !ok {
			return nil, relational.SerializationErrorf("text payload is %T", pv.Payload)
		}
		return s, nil
	case "d":
		b, ok := pv.Payload.([]byte)
		if !ok {
			return nil, relational.SerializationErrorf("blob payload is %T", pv.Payload)
		}
		return b, nil
	}
	return nil, relational.SerializationErrorf("unknown value tag %q", pv.Tag)
}

// MarshalRow encodes a row as an XML plist document.
func MarshalRow(row relational.Row) ([]byte, error) {
	doc := make(map[string]plistValue, len(row))
	for a, v := range row {
		pv, err := valueToPlist(v)
		if err != nil {
			return nil, err
		}
		doc[a.String()] = pv
	}
	data, err := plist.MarshalIndent(doc, plist.XMLFormat, "\t")
	if err != nil {
		return nil, relational.SerializationErrorf("marshal row: %v", err)
	}
	return data, nil
}

// UnmarshalRow decodes a row from a plist document.
func UnmarshalRow(data []byte) (relational.Row, error) {
	var doc map[string]plistValue
	if _, err := plist.Unmarshal(data, &doc); err != nil {
		return nil, relational.SerializationErrorf("malformed row plist: %v", err)
	}
	row := make(relational.Row, len(doc))
	for name, pv := range doc {
		v, err := valueFromPlist(pv)
		if err != nil {
			return nil, fmt.Errorf("%w (attribute %s)", err, name)
		}
		row[relational.Attr(name)] = v
	}
	return row, nil
}
