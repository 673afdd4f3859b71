package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgedb/ridge/pkg/schema"
	"github.com/ridgedb/ridge/pkg/table"
)

func peopleDef() TableDef {
	return TableDef{
		TableID: 0,
		Schema: schema.Schema{TableName: "people", Columns: []schema.ColumnDef{
			{Name: "id", Type: schema.AlgebraicType{Kind: schema.KindU32}},
			{Name: "name", Type: schema.AlgebraicType{Kind: schema.KindString}},
		}},
		Indexes: []table.IndexSpec{
			{Name: "id_unique", Column: "id", Kind: table.BTreeIndex, Unique: true},
		},
	}
}

func TestTableDefRoundTripsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	cat, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, cat.PutTable(peopleDef()))
	require.NoError(t, cat.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	defs, err := reopened.Tables()
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, peopleDef(), defs[0])
}

func TestTablesAreOrderedByTableID(t *testing.T) {
	dir := t.TempDir()
	cat, err := Open(dir)
	require.NoError(t, err)
	defer cat.Close()

	second := peopleDef()
	second.TableID = 2
	second.Schema.TableName = "orders"
	first := peopleDef()
	first.TableID = 1

	require.NoError(t, cat.PutTable(second))
	require.NoError(t, cat.PutTable(first))

	defs, err := cat.Tables()
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, uint32(1), defs[0].TableID)
	assert.Equal(t, uint32(2), defs[1].TableID)
}

func TestMetaIsAbsentOnFreshCatalog(t *testing.T) {
	dir := t.TempDir()
	cat, err := Open(dir)
	require.NoError(t, err)
	defer cat.Close()

	_, found, err := cat.Meta()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPutMetaRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cat, err := Open(dir)
	require.NoError(t, err)
	defer cat.Close()

	meta := DatabaseMeta{VersionMajor: 1, VersionMinor: 2, Edition: "standard", ClientConnectionID: "abc"}
	require.NoError(t, cat.PutMeta(meta))

	got, found, err := cat.Meta()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, meta, got)
}

func TestCheckVersionIgnoresPatchLevel(t *testing.T) {
	meta := DatabaseMeta{VersionMajor: 1, VersionMinor: 2}
	assert.NoError(t, CheckVersion(meta, 1, 2))
	assert.Error(t, CheckVersion(meta, 1, 3))
	assert.Error(t, CheckVersion(meta, 2, 2))
}
