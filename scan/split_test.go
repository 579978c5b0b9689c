package scan

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/danthegoodman1/icescan/ordering"
	"github.com/danthegoodman1/icescan/part"
	"github.com/danthegoodman1/icescan/partitioner"
	"github.com/danthegoodman1/icescan/stats"
	"github.com/danthegoodman1/icescan/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	valueSchema = arrow.NewSchema([]arrow.Field{
		{Name: "value", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
	dateCol = arrow.Field{Name: "date", Type: partitioner.WrapPartitionType(arrow.BinaryTypes.String)}
)

func tableSchema(fileSchema *arrow.Schema) *arrow.Schema {
	return arrow.NewSchema(append(append([]arrow.Field(nil), fileSchema.Fields()...), dateCol), nil)
}

func valueFile(t *testing.T, name, date string, lo, hi float64) part.PartitionedFile {
	t.Helper()
	d, err := partitioner.WrapPartitionValueInDict(scalar.NewStringScalar(date))
	require.NoError(t, err)
	return part.NewPartitionedFile(name, 100).
		WithPartitionValues([]scalar.Scalar{d}).
		WithStatistics(stats.Statistics{
			NumRows: stats.ExactOf(int64(10)),
			ColumnStatistics: []stats.ColumnStatistics{{
				NullCount: stats.ExactOf(int64(0)),
				MinValue:  stats.ExactOf[scalar.Scalar](scalar.NewFloat64Scalar(lo)),
				MaxValue:  stats.ExactOf[scalar.Scalar](scalar.NewFloat64Scalar(hi)),
			}},
		})
}

func locations(groups []part.FileGroup) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		out[i] = []string{}
		for _, f := range g {
			out[i] = append(out[i], f.Location)
		}
	}
	return out
}

var (
	valueAsc  = ordering.LexOrdering{ordering.Asc(ordering.Column{Name: "value", Index: 0})}
	valueDesc = ordering.LexOrdering{ordering.Desc(ordering.Column{Name: "value", Index: 0})}
)

func TestSplitGroupsByStatistics(t *testing.T) {
	tests := []struct {
		name   string
		files  func(t *testing.T) []part.PartitionedFile
		order  ordering.LexOrdering
		groups [][]string
	}{
		{
			name: "overlapping file in another partition",
			files: func(t *testing.T) []part.PartitionedFile {
				return []part.PartitionedFile{
					valueFile(t, "A", "2023-01-01", 0.00, 0.49),
					valueFile(t, "B", "2023-01-01", 0.50, 1.00),
					valueFile(t, "C", "2023-01-02", 0.00, 1.00),
				}
			},
			order:  valueAsc,
			groups: [][]string{{"A", "B"}, {"C"}},
		},
		{
			name: "descending",
			files: func(t *testing.T) []part.PartitionedFile {
				return []part.PartitionedFile{
					valueFile(t, "A", "2023-01-01", 0.00, 0.49),
					valueFile(t, "B", "2023-01-01", 0.50, 1.00),
					valueFile(t, "C", "2023-01-02", 0.00, 1.00),
				}
			},
			order:  valueDesc,
			groups: [][]string{{"B", "A"}, {"C"}},
		},
		{
			name: "no overlap",
			files: func(t *testing.T) []part.PartitionedFile {
				return []part.PartitionedFile{
					valueFile(t, "0", "2023-01-01", 0.00, 0.49),
					valueFile(t, "1", "2023-01-01", 0.50, 0.99),
					valueFile(t, "2", "2023-01-01", 1.00, 1.49),
				}
			},
			order:  valueAsc,
			groups: [][]string{{"0", "1", "2"}},
		},
		{
			name: "all overlap",
			files: func(t *testing.T) []part.PartitionedFile {
				return []part.PartitionedFile{
					valueFile(t, "0", "2023-01-01", 0.00, 0.49),
					valueFile(t, "1", "2023-01-01", 0.00, 0.49),
					valueFile(t, "2", "2023-01-01", 0.00, 0.49),
				}
			},
			order:  valueAsc,
			groups: [][]string{{"0"}, {"1"}, {"2"}},
		},
		{
			name: "single file",
			files: func(t *testing.T) []part.PartitionedFile {
				return []part.PartitionedFile{valueFile(t, "0", "2023-01-01", 0.00, 0.49)}
			},
			order:  valueAsc,
			groups: [][]string{{"0"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := tt.files(t)
			// input grouping is ignored
			input := []part.FileGroup{files[:1], files[1:]}
			groups, err := SplitGroupsByStatistics(tableSchema(valueSchema), input, tt.order)
			require.NoError(t, err)
			assert.Equal(t, tt.groups, locations(groups))
		})
	}
}

func TestSplitGroupsByStatisticsEmpty(t *testing.T) {
	groups, err := SplitGroupsByStatistics(tableSchema(valueSchema), nil, valueAsc)
	require.NoError(t, err)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)

	groups, err = SplitGroupsByStatistics(tableSchema(valueSchema), []part.FileGroup{{}, {}}, valueAsc)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestSplitGroupsByStatisticsNullable(t *testing.T) {
	nullable := arrow.NewSchema([]arrow.Field{
		{Name: "value", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil)
	files := []part.FileGroup{{
		valueFile(t, "A", "2023-01-01", 0.00, 0.49),
		valueFile(t, "B", "2023-01-01", 0.50, 1.00),
	}}

	_, err := SplitGroupsByStatistics(tableSchema(nullable), files, valueAsc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrPlanning))
	assert.ErrorContains(t, err, "construct min/max statistics for split groups by statistics: build min rows: create sorting columns")
	assert.ErrorContains(t, err, `cannot sort by nullable column "value"`)
}

func TestSplitGroupsByStatisticsMissingStats(t *testing.T) {
	missing := valueFile(t, "B", "2023-01-01", 0.50, 1.00)
	missing.Statistics = nil
	files := []part.FileGroup{{
		valueFile(t, "A", "2023-01-01", 0.00, 0.49),
		missing,
	}}

	_, err := SplitGroupsByStatistics(tableSchema(valueSchema), files, valueAsc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrPlanning))
	assert.ErrorContains(t, err, `collect min/max values: get min/max for column "value": planning error: statistics not found`)
}

func TestSplitGroupsByStatisticsDoesNotModifyInput(t *testing.T) {
	files := []part.FileGroup{{
		valueFile(t, "B", "2023-01-01", 0.50, 1.00),
		valueFile(t, "A", "2023-01-01", 0.00, 0.49),
	}}
	_, err := SplitGroupsByStatistics(tableSchema(valueSchema), files, valueAsc)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"B", "A"}}, locations(files))
}

type interval struct {
	lo, hi float64
}

// minChains brute forces the fewest groups of mutually non-overlapping,
// strictly ordered intervals covering all of them.
func minChains(intervals []interval) int {
	n := len(intervals)
	labels := make([]int, n)
	for k := 1; k <= n; k++ {
		if assign(intervals, labels, 0, k) {
			return k
		}
	}
	return n
}

func assign(intervals []interval, labels []int, i, k int) bool {
	if i == len(intervals) {
		return validChains(intervals, labels, k)
	}
	for g := 0; g < k; g++ {
		labels[i] = g
		if assign(intervals, labels, i+1, k) {
			return true
		}
	}
	return false
}

func validChains(intervals []interval, labels []int, k int) bool {
	for g := 0; g < k; g++ {
		var chain []interval
		for i, l := range labels {
			if l == g {
				chain = append(chain, intervals[i])
			}
		}
		sort.Slice(chain, func(a, b int) bool { return chain[a].lo < chain[b].lo })
		for i := 1; i < len(chain); i++ {
			if !(chain[i-1].hi < chain[i].lo) {
				return false
			}
		}
	}
	return true
}

func TestSplitGroupsByStatisticsProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 40; trial++ {
		n := 1 + rng.Intn(6)
		intervals := make([]interval, n)
		var files []part.PartitionedFile
		byName := map[string]interval{}
		for i := range intervals {
			lo := float64(rng.Intn(6))
			hi := lo + float64(rng.Intn(3))
			intervals[i] = interval{lo, hi}
			name := fmt.Sprintf("f%d", i)
			byName[name] = intervals[i]
			files = append(files, valueFile(t, name, "2023-01-01", lo, hi))
		}

		// spread input over a few groups, boundaries must not matter
		input := []part.FileGroup{}
		for i := 0; i < len(files); i += 2 {
			end := i + 2
			if end > len(files) {
				end = len(files)
			}
			input = append(input, files[i:end])
		}

		groups, err := SplitGroupsByStatistics(tableSchema(valueSchema), input, valueAsc)
		require.NoError(t, err)

		var got []string
		for _, g := range groups {
			require.NotEmpty(t, g)
			for i, f := range g {
				got = append(got, f.Location)
				if i > 0 {
					prev := byName[g[i-1].Location]
					assert.Less(t, prev.hi, byName[f.Location].lo, "trial %d: files in a group must not overlap", trial)
				}
			}
		}
		var want []string
		for _, f := range files {
			want = append(want, f.Location)
		}
		assert.ElementsMatch(t, want, got, "trial %d: every file exactly once", trial)
		assert.Equal(t, minChains(intervals), len(groups), "trial %d: %v", trial, intervals)
	}
}
