package minmax

import (
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/danthegoodman1/icescan/ordering"
	"github.com/danthegoodman1/icescan/part"
	"github.com/danthegoodman1/icescan/stats"
	"github.com/danthegoodman1/icescan/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var schema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "value", Type: arrow.PrimitiveTypes.Float64},
}, nil)

func file(name string, lo, hi float64) part.PartitionedFile {
	return part.NewPartitionedFile(name, 10).WithStatistics(stats.Statistics{
		NumRows: stats.ExactOf(int64(1)),
		ColumnStatistics: []stats.ColumnStatistics{
			{},
			{
				MinValue: stats.ExactOf[scalar.Scalar](scalar.NewFloat64Scalar(lo)),
				MaxValue: stats.ExactOf[scalar.Scalar](scalar.NewFloat64Scalar(hi)),
			},
		},
	})
}

func TestMinValuesSorted(t *testing.T) {
	files := []part.PartitionedFile{
		file("c", 0.5, 0.6),
		file("a", 0.0, 0.1),
		file("b", 0.0, 0.3),
	}
	order := ordering.LexOrdering{ordering.Asc(ordering.Column{Name: "value", Index: 1})}

	s, err := NewFromFiles(order, schema, nil, files)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	// ties keep input order
	assert.Equal(t, []int{1, 2, 0}, s.MinValuesSorted())
	assert.True(t, s.StartsAfter(0, 2))
	assert.False(t, s.StartsAfter(2, 1))
	assert.False(t, s.IsSorted())
	assert.True(t, s.Less(s.Min(1), s.Min(0)))
	assert.False(t, s.Less(s.Min(1), s.Min(2)), "equal rows")
}

func TestDescendingSwapsBounds(t *testing.T) {
	files := []part.PartitionedFile{
		file("a", 0.0, 0.49),
		file("b", 0.5, 1.0),
	}
	order := ordering.LexOrdering{ordering.Desc(ordering.Column{Name: "value", Index: 1})}

	s, err := NewFromFiles(order, schema, nil, files)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, s.MinValuesSorted())
	assert.Equal(t, 1.0, s.Min(1)[0].(*scalar.Float64).Value)
	assert.Equal(t, 0.5, s.Max(1)[0].(*scalar.Float64).Value)
	assert.True(t, s.StartsAfter(0, 1))
}

func TestProjection(t *testing.T) {
	order := ordering.LexOrdering{ordering.Asc(ordering.Column{Name: "value", Index: 0})}
	s, err := NewFromFiles(order, schema, []int{1}, []part.PartitionedFile{file("a", 0, 1), file("b", 2, 3)})
	require.NoError(t, err)
	assert.True(t, s.IsSorted())

	_, err = NewFromFiles(order, schema, []int{0}, []part.PartitionedFile{file("a", 0, 1)})
	assert.ErrorContains(t, err, `sort column "value" not found`)
}

func TestErrors(t *testing.T) {
	order := ordering.LexOrdering{ordering.Asc(ordering.Column{Name: "value", Index: 1})}

	nullable := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "value", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil)
	_, err := NewFromFiles(order, nullable, nil, []part.PartitionedFile{file("a", 0, 1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrPlanning))
	assert.ErrorContains(t, err, "build min rows: create sorting columns")
	assert.ErrorContains(t, err, "cannot sort by nullable column")

	_, err = NewFromFiles(order, schema, nil, []part.PartitionedFile{file("a", 0, 1), part.NewPartitionedFile("b", 1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrPlanning))
	assert.ErrorContains(t, err, `collect min/max values: get min/max for column "value": planning error: statistics not found`)

	mixed := file("b", 0, 1)
	mixed.Statistics.ColumnStatistics[1].MinValue = stats.ExactOf[scalar.Scalar](scalar.NewInt64Scalar(0))
	_, err = NewFromFiles(order, schema, nil, []part.PartitionedFile{file("a", 0, 1), mixed})
	assert.True(t, errors.Is(err, utils.ErrPlanning))
}

func TestEmpty(t *testing.T) {
	order := ordering.LexOrdering{ordering.Asc(ordering.Column{Name: "value", Index: 1})}
	s, err := NewFromFiles(order, schema, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, s.MinValuesSorted())
	assert.True(t, s.IsSorted())
}
