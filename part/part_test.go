package part

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/danthegoodman1/icescan/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go/parquet"
)

func TestWithCopies(t *testing.T) {
	f := NewPartitionedFile("data/a.parquet", 100)
	ranged := f.WithRange(10, 60)

	assert.Nil(t, f.Range, "original must not change")
	assert.Equal(t, int64(100), f.ReadSize())
	assert.Equal(t, int64(50), ranged.ReadSize())
	assert.Equal(t, "data/a.parquet:10..60", ranged.String())

	vals := []scalar.Scalar{scalar.NewStringScalar("x")}
	withVals := f.WithPartitionValues(vals)
	vals[0] = scalar.NewStringScalar("y")
	assert.Equal(t, "x", withVals.PartitionValues[0].String())
}

func TestFlattenAndClone(t *testing.T) {
	groups := []FileGroup{
		{NewPartitionedFile("a", 1), NewPartitionedFile("b", 2)},
		{NewPartitionedFile("c", 3)},
	}
	flat := Flatten(groups)
	require.Len(t, flat, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{flat[0].Location, flat[1].Location, flat[2].Location})

	cloned := CloneGroups(groups)
	cloned[0][0].Location = "changed"
	assert.Equal(t, "a", groups[0][0].Location)
	assert.Equal(t, int64(3), groups[0].Size())
}

func f64(v float64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b
}

func i64(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

func rowGroup(rows int64, minV, maxV float64, minID, maxID int64, nulls int64) *parquet.RowGroup {
	return &parquet.RowGroup{
		NumRows:       rows,
		TotalByteSize: rows * 16,
		Columns: []*parquet.ColumnChunk{
			{MetaData: &parquet.ColumnMetaData{
				Type:         parquet.Type_DOUBLE,
				PathInSchema: []string{"Value"},
				Statistics: &parquet.Statistics{
					MinValue:  f64(minV),
					MaxValue:  f64(maxV),
					NullCount: &nulls,
				},
			}},
			{MetaData: &parquet.ColumnMetaData{
				Type:         parquet.Type_INT64,
				PathInSchema: []string{"id"},
				Statistics: &parquet.Statistics{
					Min: i64(minID),
					Max: i64(maxID),
				},
			}},
		},
	}
}

func TestStatisticsFromParquetFooter(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "value", Type: arrow.PrimitiveTypes.Float64},
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "missing", Type: arrow.BinaryTypes.String},
	}, nil)

	footer := &parquet.FileMetaData{
		NumRows: 30,
		RowGroups: []*parquet.RowGroup{
			rowGroup(10, 0.5, 0.9, 100, 200, 1),
			rowGroup(20, 0.1, 0.7, 50, 150, 2),
		},
	}

	s, err := StatisticsFromParquetFooter(footer, schema)
	require.NoError(t, err)

	rows, ok := s.NumRows.Value()
	require.True(t, ok)
	assert.Equal(t, int64(30), rows)
	assert.True(t, s.NumRows.IsExact())

	bytes, _ := s.TotalByteSize.Value()
	assert.Equal(t, int64(480), bytes)

	require.Len(t, s.ColumnStatistics, 3)
	minV, ok := s.ColumnStatistics[0].MinValue.Value()
	require.True(t, ok)
	assert.Equal(t, 0.1, minV.(*scalar.Float64).Value)
	maxV, _ := s.ColumnStatistics[0].MaxValue.Value()
	assert.Equal(t, 0.9, maxV.(*scalar.Float64).Value)
	nulls, _ := s.ColumnStatistics[0].NullCount.Value()
	assert.Equal(t, int64(3), nulls)

	minID, ok := s.ColumnStatistics[1].MinValue.Value()
	require.True(t, ok, "deprecated min/max fields are used as a fallback")
	assert.Equal(t, int64(50), minID.(*scalar.Int64).Value)
	_, ok = s.ColumnStatistics[1].NullCount.Value()
	assert.False(t, ok)

	_, ok = s.ColumnStatistics[2].MinValue.Value()
	assert.False(t, ok)
}

func TestStatisticsFromEmptyFooter(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{{Name: "value", Type: arrow.PrimitiveTypes.Float64}}, nil)
	s, err := StatisticsFromParquetFooter(&parquet.FileMetaData{}, schema)
	require.NoError(t, err)
	assert.Equal(t, stats.ExactOf(int64(0)), s.NumRows)
	assert.Len(t, s.ColumnStatistics, 1)

	_, err = StatisticsFromParquetFooter(nil, schema)
	assert.Error(t, err)
}
