package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeWireRoundTrip(t *testing.T) {
	s := Schema{TableName: "t", Columns: []ColumnDef{
		intCol("id", KindU32),
		{Name: "name", Type: AlgebraicType{Kind: KindString}},
	}}
	layout, err := Compute(s)
	require.NoError(t, err)

	row := Row{uint64(7), "hello, commit log"}
	wire, err := EncodeWire(layout, row)
	require.NoError(t, err)

	got, n, err := DecodeWire(layout, wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)
	assert.Equal(t, uint64(7), got[0])
	assert.Equal(t, "hello, commit log", got[1])
}

func TestDecodeWireDetectsTruncation(t *testing.T) {
	s := Schema{TableName: "t", Columns: []ColumnDef{intCol("id", KindU32)}}
	layout, err := Compute(s)
	require.NoError(t, err)

	_, _, err = DecodeWire(layout, []byte{1, 2})
	assert.Error(t, err)
}
