package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intCol(name string, k Kind) ColumnDef { return ColumnDef{Name: name, Type: AlgebraicType{Kind: k}} }

func TestComputeScalarAlignment(t *testing.T) {
	s := Schema{TableName: "t", Columns: []ColumnDef{
		intCol("a", KindU8),
		intCol("b", KindU32),
		intCol("c", KindU8),
	}}
	l, err := Compute(s)
	require.NoError(t, err)

	fa, _ := l.FieldByPath("a")
	fb, _ := l.FieldByPath("b")
	fc, _ := l.FieldByPath("c")

	assert.Equal(t, uint32(0), fa.Offset)
	assert.Equal(t, uint32(4), fb.Offset, "u32 must land on 4-byte alignment, padding after the u8")
	assert.Equal(t, uint32(8), fc.Offset)
	assert.Equal(t, uint32(12), l.RowSize, "row size padded up to the max alignment (4)")
}

func TestComputeVarLenFieldGetsEightByteSlot(t *testing.T) {
	s := Schema{TableName: "t", Columns: []ColumnDef{
		intCol("id", KindU32),
		{Name: "name", Type: AlgebraicType{Kind: KindString}},
	}}
	l, err := Compute(s)
	require.NoError(t, err)

	fname, ok := l.FieldByPath("name")
	require.True(t, ok)
	assert.Equal(t, FieldVarLen, fname.Kind)
	assert.Equal(t, uint32(VarLenRefSize), fname.Size)
	assert.Equal(t, uint32(4), fname.Offset)
	assert.Equal(t, uint32(12), l.RowSize)
}

func TestComputeNestedProductFlattensWithDottedPaths(t *testing.T) {
	s := Schema{TableName: "t", Columns: []ColumnDef{
		intCol("id", KindU64),
		{Name: "point", Type: AlgebraicType{Kind: KindProduct, Fields: []ColumnDef{
			intCol("x", KindU32),
			intCol("y", KindU32),
		}}},
	}}
	l, err := Compute(s)
	require.NoError(t, err)

	fx, ok := l.FieldByPath("point.x")
	require.True(t, ok)
	fy, ok := l.FieldByPath("point.y")
	require.True(t, ok)
	assert.Equal(t, uint32(8), fx.Offset)
	assert.Equal(t, uint32(12), fy.Offset)
}

func TestComputeSumTypeTagPlusMaxVariantPayload(t *testing.T) {
	s := Schema{TableName: "t", Columns: []ColumnDef{
		{Name: "value", Type: AlgebraicType{Kind: KindSum, Variants: []ColumnDef{
			{Name: "small", Type: AlgebraicType{Kind: KindU8}},
			{Name: "big", Type: AlgebraicType{Kind: KindU64}},
		}}},
	}}
	l, err := Compute(s)
	require.NoError(t, err)

	f, ok := l.FieldByPath("value")
	require.True(t, ok)
	assert.Equal(t, FieldSum, f.Kind)
	assert.Equal(t, uint32(0), f.Offset, "tag byte at the front")
	assert.Equal(t, uint32(8), f.PayloadOffset, "payload padded to the widest variant's u64 alignment")
	assert.Equal(t, uint32(8), l.RowSize-f.PayloadOffset, "payload region sized to the largest variant (u64)")
}
