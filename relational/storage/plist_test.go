package storage

import (
	"testing"

	"github.com/wbrown/janus-relational/relational"
)

func TestRowPlistRoundTrip(t *testing.T) {
	// Row -> plist -> Row is the identity for all value variants.
	row := relational.Row{
		relational.Attr("null"):    nil,
		relational.Attr("int"):     relational.Integer(-42),
		relational.Attr("real"):    relational.Real(2.5),
		relational.Attr("text"):    relational.Text("héllo"),
		relational.Attr("blob"):    relational.Blob([]byte{0, 1, 0xff}),
	}

	data, err := MarshalRow(row)
	if err != nil {
		t.Fatal(err)
	}
	back, err := UnmarshalRow(data)
	if err != nil {
		t.Fatal(err)
	}
	if !row.Equal(back) {
		t.Errorf("round trip changed the row:\n in  %s\n out %s", row, back)
	}
}

func TestUnmarshalRowRejectsMalformedPlist(t *testing.T) {
	_, err := UnmarshalRow([]byte("<plist><dict>"))
	if err == nil {
		t.Fatal("malformed plist should fail")
	}
}

func TestMarshalRowRejectsNotFound(t *testing.T) {
	_, err := MarshalRow(relational.Row{relational.Attr("x"): relational.NotFound})
	if err == nil {
		t.Fatal("notFound is unserializable")
	}
}
