package scan

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/danthegoodman1/icescan/ordering"
	"github.com/danthegoodman1/icescan/part"
	"github.com/danthegoodman1/icescan/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithReturnsCopies(t *testing.T) {
	base := baseConfig()
	projection := []int{0, 1}
	withProj := base.WithProjection(projection)
	projection[0] = 2

	assert.Nil(t, base.Projection)
	assert.Equal(t, []int{0, 1}, withProj.Projection)

	withFile := withProj.WithFile(part.NewPartitionedFile("a", 1))
	assert.Empty(t, withProj.FileGroups)
	require.Len(t, withFile.FileGroups, 1)

	more := withFile.WithFileGroup(part.FileGroup{part.NewPartitionedFile("b", 1)})
	more.FileGroups[0][0].Location = "changed"
	assert.Equal(t, "a", withFile.FileGroups[0][0].Location)
	assert.Len(t, more.FileGroups, 2)

	limited := base.WithLimit(utils.Ptr(int64(10)))
	assert.Nil(t, base.Limit)
	assert.Equal(t, int64(10), *limited.Fetch())
	assert.Nil(t, limited.WithFetch(nil).Fetch())

	ordered := base.WithOutputOrdering([]ordering.LexOrdering{{ordering.Asc(ordering.Column{Name: "c1"})}})
	ordered.OutputOrdering[0][0].Descending = true
	assert.Empty(t, base.OutputOrdering)

	assert.Equal(t, Gzip, base.WithFileCompressionType(Gzip).FileCompressionType)
	assert.True(t, base.WithNewlinesInValues(true).NewlinesInValues)
	assert.False(t, base.NewlinesInValues)

	assert.Empty(t, base.WithProjection([]int{}).ProjectedSchema().Fields())
}

func TestValidate(t *testing.T) {
	src := &memSource{}
	valid := baseConfig().WithSource(src).WithTablePartitionCols(partitionCols)
	withValues := func(n int) part.PartitionedFile {
		values := make([]scalar.Scalar, n)
		for i := range values {
			values[i] = scalar.NewStringScalar("x")
		}
		return part.NewPartitionedFile("f", 1).WithPartitionValues(values)
	}

	require.NoError(t, valid.WithFile(withValues(2)).Validate())

	tests := []struct {
		name string
		cfg  *Config
	}{
		{"no source", baseConfig()},
		{"projection out of range", valid.WithProjection([]int{5})},
		{"negative projection", valid.WithProjection([]int{-1})},
		{"partition value count", valid.WithFile(withValues(1))},
		{"negative limit", valid.WithLimit(utils.Ptr(int64(-1)))},
		{"bad range", valid.WithFile(withValues(2).WithRange(5, 1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestWithSourceHandsProjectedStatistics(t *testing.T) {
	cfg := baseConfig().WithProjection([]int{2}).WithSource(&memSource{})
	s, err := cfg.SourceStatistics()
	require.NoError(t, err)
	require.Len(t, s.ColumnStatistics, 1)
	assert.Equal(t, cfg.Statistics.ColumnStatistics[2], s.ColumnStatistics[0])
}

func TestCompressionType(t *testing.T) {
	for _, c := range []FileCompressionType{Uncompressed, Gzip, Bzip2, Zstd} {
		parsed, err := ParseFileCompressionType(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	_, err := ParseFileCompressionType("lzma")
	assert.Error(t, err)
	assert.Equal(t, ".zst", Zstd.Extension())
	assert.False(t, Uncompressed.IsCompressed())
}
