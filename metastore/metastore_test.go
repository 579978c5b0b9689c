package metastore

import (
	"context"
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/danthegoodman1/icescan/stats"
	"github.com/danthegoodman1/icescan/table"
	"github.com/danthegoodman1/icescan/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventsTable() TableSchema {
	return TableSchema{
		Name:     "events",
		Location: "file://",
		Format:   "parquet",
		Columns: []Column{
			{Name: "id", Type: "int64"},
			{Name: "value", Type: "float64", Nullable: true},
			{Name: "name", Type: "utf8", Nullable: true},
		},
		PartitionColumns: []Column{{Name: "year", Type: "int32"}},
		OrderingKey:      []SortColumn{{Name: "id"}, {Name: "year", Descending: true}},
		Constraints:      []ConstraintDef{{Kind: "primary_key", Columns: []string{"id"}}},
	}
}

func TestParseDataType(t *testing.T) {
	for name, want := range map[string]arrow.DataType{
		"int32":        arrow.PrimitiveTypes.Int32,
		" UTF8 ":       arrow.BinaryTypes.String,
		"string":       arrow.BinaryTypes.String,
		"timestamp_ms": arrow.FixedWidthTypes.Timestamp_ms,
		"date32":       arrow.FixedWidthTypes.Date32,
	} {
		got, err := ParseDataType(name)
		require.NoError(t, err, name)
		assert.True(t, arrow.TypeEqual(want, got), name)
	}
	_, err := ParseDataType("decimal")
	assert.Error(t, err)
}

func TestTableSchema(t *testing.T) {
	ts := eventsTable()
	require.NoError(t, ts.Check())

	schema, err := ts.ArrowSchema()
	require.NoError(t, err)
	assert.Equal(t, 3, schema.NumFields())
	assert.False(t, schema.Field(0).Nullable)

	catalog, err := ts.PartitionCatalog()
	require.NoError(t, err)
	require.Len(t, catalog, 1)
	dict, ok := catalog[0].Type.(*arrow.DictionaryType)
	require.True(t, ok, "partition columns are dictionary encoded")
	assert.True(t, arrow.TypeEqual(arrow.PrimitiveTypes.Int32, dict.ValueType))

	tableSchema := arrow.NewSchema(append(schema.Fields(), catalog...), nil)
	orderings, err := ts.OutputOrdering(tableSchema)
	require.NoError(t, err)
	require.Len(t, orderings, 1)
	assert.Equal(t, "[id@0 ASC NULLS LAST, year@3 DESC NULLS FIRST]", orderings[0].String())

	constraints, err := ts.TableConstraints(tableSchema)
	require.NoError(t, err)
	assert.Equal(t, table.Constraints{{Kind: table.PrimaryKey, Columns: []int{0}}}, constraints)
}

func TestTableSchemaCheck(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(ts *TableSchema)
	}{
		{"unknown type", func(ts *TableSchema) { ts.Columns[0].Type = "money" }},
		{"duplicate column", func(ts *TableSchema) { ts.PartitionColumns[0].Name = "id" }},
		{"unknown ordering column", func(ts *TableSchema) { ts.OrderingKey[0].Name = "nope" }},
		{"unknown constraint column", func(ts *TableSchema) { ts.Constraints[0].Columns = []string{"nope"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := eventsTable()
			tt.mutate(&ts)
			assert.Error(t, ts.Check())
		})
	}
}

func TestFileEntryStatistics(t *testing.T) {
	schema, err := eventsTable().ArrowSchema()
	require.NoError(t, err)

	st := stats.NewUnknown(schema)
	st.ColumnStatistics[0].MinValue = stats.ExactOf[scalar.Scalar](scalar.NewInt64Scalar(-4))
	st.ColumnStatistics[0].MaxValue = stats.ExactOf[scalar.Scalar](scalar.NewInt64Scalar(90))
	st.ColumnStatistics[0].NullCount = stats.ExactOf(int64(0))
	st.ColumnStatistics[1].MinValue = stats.ExactOf[scalar.Scalar](scalar.NewFloat64Scalar(0.25))
	st.ColumnStatistics[1].MaxValue = stats.ExactOf[scalar.Scalar](scalar.NewFloat64Scalar(1.5))
	st.ColumnStatistics[2].NullCount = stats.ExactOf(int64(3))

	cols := ColumnStatsFrom(schema, st)
	require.Len(t, cols, 3)
	assert.Nil(t, cols[2].Min, "unknown bounds are not stored")

	f := FileEntry{Location: "year=2021/a.parquet", Size: 200, NumRows: utils.Ptr(int64(10)), Columns: cols}
	got := f.Statistics(schema)

	assert.Equal(t, stats.ExactOf(int64(10)), got.NumRows)
	assert.Equal(t, stats.InexactOf(int64(200)), got.TotalByteSize)

	minID, ok := got.ColumnStatistics[0].MinValue.Value()
	require.True(t, ok)
	assert.Equal(t, int64(-4), minID.(*scalar.Int64).Value)
	maxV, ok := got.ColumnStatistics[1].MaxValue.Value()
	require.True(t, ok)
	assert.Equal(t, 1.5, maxV.(*scalar.Float64).Value)
	nulls, _ := got.ColumnStatistics[2].NullCount.Value()
	assert.Equal(t, int64(3), nulls)
	_, ok = got.ColumnStatistics[2].MinValue.Value()
	assert.False(t, ok)
}

func TestFileEntryStatisticsUnparsable(t *testing.T) {
	schema, err := eventsTable().ArrowSchema()
	require.NoError(t, err)
	f := FileEntry{Location: "a", Columns: []ColumnStats{
		{Name: "id", Min: utils.Ptr("x"), Max: utils.Ptr("9")},
		{Name: "gone", Min: utils.Ptr("1"), Max: utils.Ptr("2")},
	}}
	got := f.Statistics(schema)
	_, ok := got.ColumnStatistics[0].MinValue.Value()
	assert.False(t, ok)
	_, ok = got.NumRows.Value()
	assert.False(t, ok)
}

func TestMemoryMetaStore(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryMetaStore()

	_, err := ms.GetTableSchema(ctx, "events")
	assert.True(t, errors.Is(err, ErrTableNotFound))

	require.NoError(t, ms.CreateTableSchema(ctx, eventsTable()))
	err = ms.CreateTableSchema(ctx, eventsTable())
	assert.True(t, errors.Is(err, ErrTableExists))

	bad := eventsTable()
	bad.Name = "bad"
	bad.Columns[0].Type = "money"
	assert.Error(t, ms.CreateTableSchema(ctx, bad))

	ts, err := ms.GetTableSchema(ctx, "events")
	require.NoError(t, err)
	assert.NotEmpty(t, ts.ID)
	assert.False(t, ts.CreatedAt.IsZero())

	for _, f := range []FileEntry{
		{Location: "year=2022/b.parquet", Partition: "year=2022", Size: 1},
		{Location: "year=2021/z.parquet", Partition: "year=2021", Size: 2},
		{Location: "year=2021/a.parquet", Partition: "year=2021", Size: 3},
	} {
		require.NoError(t, ms.RegisterFile(ctx, "events", f))
	}
	require.NoError(t, ms.RegisterFile(ctx, "events", FileEntry{Location: "year=2021/a.parquet", Partition: "year=2021", Size: 30}))
	assert.True(t, errors.Is(ms.RegisterFile(ctx, "nope", FileEntry{Location: "a"}), ErrTableNotFound))

	files, err := ms.ListFiles(ctx, "events")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "year=2021/a.parquet", files[0].Location)
	assert.Equal(t, int64(30), files[0].Size, "registering a location again replaces it")
	assert.Equal(t, "year=2021/z.parquet", files[1].Location)
	assert.Equal(t, "year=2022/b.parquet", files[2].Location)

	files, err = ms.ListFilesInPartitions(ctx, "events", []string{"year=2022"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "year=2022/b.parquet", files[0].Location)

	files, err = ms.ListFilesInPartitions(ctx, "events", nil)
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = ms.ListFiles(ctx, "nope")
	assert.True(t, errors.Is(err, ErrTableNotFound))
}
