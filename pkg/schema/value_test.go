package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inlineResolver simulates the table layer resolving a VarLenRef slot: it
// looks the field's raw bytes up by path instead of following a real
// granule chain or blob lookup, which is enough to exercise Encode/Decode
// round-tripping in isolation from pkg/table and pkg/page.
func inlineResolver(varLen []VarLenField) func(path string, slotOffset uint32) ([]byte, error) {
	byPath := make(map[string][]byte, len(varLen))
	for _, v := range varLen {
		byPath[v.Path] = v.Bytes
	}
	return func(path string, slotOffset uint32) ([]byte, error) {
		return byPath[path], nil
	}
}

// TestSmallRowRoundTrip is spec scenario 1: (42, "alice").
func TestSmallRowRoundTrip(t *testing.T) {
	s := Schema{TableName: "people", Columns: []ColumnDef{
		intCol("id", KindU32),
		{Name: "name", Type: AlgebraicType{Kind: KindString}},
	}}
	layout, err := Compute(s)
	require.NoError(t, err)

	row := Row{uint64(42), "alice"}
	fixed, varLen, err := EncodeFixed(layout, row)
	require.NoError(t, err)
	require.Len(t, varLen, 1)
	assert.Equal(t, "alice", string(varLen[0].Bytes))

	got, err := DecodeFixed(layout, fixed, inlineResolver(varLen))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got[0])
	assert.Equal(t, "alice", got[1])
}

func TestProductRowRoundTrip(t *testing.T) {
	s := Schema{TableName: "t", Columns: []ColumnDef{
		intCol("id", KindU64),
		{Name: "point", Type: AlgebraicType{Kind: KindProduct, Fields: []ColumnDef{
			intCol("x", KindI32),
			intCol("y", KindI32),
		}}},
	}}
	layout, err := Compute(s)
	require.NoError(t, err)

	row := Row{uint64(7), Row{int64(-3), int64(9)}}
	fixed, varLen, err := EncodeFixed(layout, row)
	require.NoError(t, err)
	assert.Empty(t, varLen)

	got, err := DecodeFixed(layout, fixed, inlineResolver(varLen))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got[0])
	nested := got[1].(Row)
	assert.Equal(t, int64(-3), nested[0])
	assert.Equal(t, int64(9), nested[1])
}

func TestSumRowRoundTripBothVariants(t *testing.T) {
	s := Schema{TableName: "t", Columns: []ColumnDef{
		{Name: "value", Type: AlgebraicType{Kind: KindSum, Variants: []ColumnDef{
			{Name: "small", Type: AlgebraicType{Kind: KindU8}},
			{Name: "big", Type: AlgebraicType{Kind: KindU64}},
		}}},
	}}
	layout, err := Compute(s)
	require.NoError(t, err)

	row := Row{SumValue{Tag: 1, Payload: uint64(123456789)}}
	fixed, varLen, err := EncodeFixed(layout, row)
	require.NoError(t, err)

	got, err := DecodeFixed(layout, fixed, inlineResolver(varLen))
	require.NoError(t, err)
	sv := got[0].(SumValue)
	assert.EqualValues(t, 1, sv.Tag)
	assert.Equal(t, uint64(123456789), sv.Payload)
}
