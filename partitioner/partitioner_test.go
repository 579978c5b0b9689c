package partitioner

import (
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/danthegoodman1/icescan/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPartitionValueInDict(t *testing.T) {
	wrapped, err := WrapPartitionValueInDict(scalar.NewStringScalar("2021"))
	require.NoError(t, err)

	assert.True(t, arrow.TypeEqual(WrapPartitionType(arrow.BinaryTypes.String), wrapped.DataType()))

	decoded, err := stats.Decode(wrapped)
	require.NoError(t, err)
	assert.Equal(t, "2021", decoded.String())
}

func TestParsePartitionValues(t *testing.T) {
	catalog := Catalog{
		{Name: "year", Type: arrow.PrimitiveTypes.Int32},
		{Name: "day", Type: WrapPartitionType(arrow.BinaryTypes.String)},
	}

	values, err := ParsePartitionValues("s3://bucket/tbl/year=2021/month=10/day=26/part-0.parquet", catalog)
	require.NoError(t, err)
	require.Len(t, values, 2)

	year, ok := values[0].(*scalar.Int32)
	require.True(t, ok)
	assert.Equal(t, int32(2021), year.Value)

	_, isDict := values[1].(*scalar.Dictionary)
	assert.True(t, isDict)
	day, err := stats.Decode(values[1])
	require.NoError(t, err)
	assert.Equal(t, "26", day.String())

	_, err = ParsePartitionValues("tbl/year=2021/file.parquet", catalog)
	assert.True(t, errors.Is(err, ErrMissingPartition))
}

func TestParseDefaultPartition(t *testing.T) {
	catalog := Catalog{{Name: "region", Type: arrow.BinaryTypes.String}}
	values, err := ParsePartitionValues("t/region="+HiveDefaultPartition+"/f.csv", catalog)
	require.NoError(t, err)
	assert.False(t, values[0].IsValid())
}

func TestPartitionPath(t *testing.T) {
	catalog := Catalog{
		{Name: "year", Type: arrow.PrimitiveTypes.Int32},
		{Name: "city", Type: WrapPartitionType(arrow.BinaryTypes.String)},
	}
	city, err := WrapPartitionValueInDict(scalar.NewStringScalar("new york"))
	require.NoError(t, err)

	p, err := PartitionPath(catalog, []scalar.Scalar{scalar.NewInt32Scalar(2022), city})
	require.NoError(t, err)
	assert.Equal(t, "year=2022/city=new%20york", p)

	back, err := ParsePartitionValues("tbl/"+p+"/f.parquet", catalog)
	require.NoError(t, err)
	decoded, err := stats.Decode(back[1])
	require.NoError(t, err)
	assert.Equal(t, "new york", decoded.String())

	_, err = PartitionPath(catalog, nil)
	assert.True(t, errors.Is(err, ErrValueCount))
}
