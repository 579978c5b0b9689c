package minmax

import (
	"fmt"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/danthegoodman1/icescan/ordering"
	"github.com/danthegoodman1/icescan/part"
	"github.com/danthegoodman1/icescan/stats"
	"github.com/danthegoodman1/icescan/utils"
)

// Statistics holds, for a list of files, the lower and upper bound of each
// file on a sort order. Bounds of descending sort columns are swapped so
// that a file's min row always sorts first under the order.
type Statistics struct {
	sortOrder ordering.LexOrdering
	minRows   [][]scalar.Scalar
	maxRows   [][]scalar.Scalar
	sorted    []int
}

type sortColumn struct {
	name       string
	statsIndex int
	descending bool
}

// NewFromFiles builds min/max rows for files on sortOrder. Sort expressions
// are resolved against tableSchema, or against the fields of tableSchema
// selected by projection when one is given. Column statistics of each file
// are indexed by table schema position.
func NewFromFiles(sortOrder ordering.LexOrdering, tableSchema *arrow.Schema, projection []int, files []part.PartitionedFile) (*Statistics, error) {
	cols, err := sortColumns(sortOrder, tableSchema, projection)
	if err != nil {
		return nil, fmt.Errorf("build min rows: create sorting columns: %w", err)
	}

	s := &Statistics{
		sortOrder: sortOrder,
		minRows:   make([][]scalar.Scalar, len(files)),
		maxRows:   make([][]scalar.Scalar, len(files)),
	}
	for i, f := range files {
		minRow, maxRow, err := fileBounds(f, cols)
		if err != nil {
			return nil, fmt.Errorf("collect min/max values: %w", err)
		}
		s.minRows[i], s.maxRows[i] = minRow, maxRow
	}
	if err := s.checkComparable(cols); err != nil {
		return nil, fmt.Errorf("collect min/max values: %w", err)
	}

	s.sorted = make([]int, len(files))
	for i := range s.sorted {
		s.sorted[i] = i
	}
	sort.SliceStable(s.sorted, func(a, b int) bool {
		return s.compareRows(s.minRows[s.sorted[a]], s.minRows[s.sorted[b]]) < 0
	})
	return s, nil
}

func sortColumns(sortOrder ordering.LexOrdering, tableSchema *arrow.Schema, projection []int) ([]sortColumn, error) {
	fields := tableSchema.Fields()
	if projection != nil {
		projected := make([]arrow.Field, len(projection))
		for i, idx := range projection {
			if idx < 0 || idx >= len(fields) {
				return nil, fmt.Errorf("%w: projection index %d out of range", utils.ErrPlanning, idx)
			}
			projected[i] = fields[idx]
		}
		fields = projected
	}

	cols := make([]sortColumn, 0, len(sortOrder))
	for _, expr := range sortOrder {
		pos := -1
		for i, f := range fields {
			if f.Name == expr.Expr.Name {
				pos = i
				break
			}
		}
		if pos < 0 {
			return nil, fmt.Errorf("%w: sort column %q not found in schema", utils.ErrPlanning, expr.Expr.Name)
		}
		if fields[pos].Nullable {
			return nil, fmt.Errorf("%w: cannot sort by nullable column %q", utils.ErrPlanning, expr.Expr.Name)
		}
		statsIndex := pos
		if projection != nil {
			statsIndex = projection[pos]
		}
		cols = append(cols, sortColumn{name: expr.Expr.Name, statsIndex: statsIndex, descending: expr.Descending})
	}
	return cols, nil
}

func fileBounds(f part.PartitionedFile, cols []sortColumn) (minRow, maxRow []scalar.Scalar, err error) {
	minRow = make([]scalar.Scalar, len(cols))
	maxRow = make([]scalar.Scalar, len(cols))
	for i, col := range cols {
		lo, hi, err := columnBounds(f, col.statsIndex)
		if err != nil {
			return nil, nil, fmt.Errorf("get min/max for column %q: %w", col.name, err)
		}
		if col.descending {
			lo, hi = hi, lo
		}
		minRow[i], maxRow[i] = lo, hi
	}
	return
}

func columnBounds(f part.PartitionedFile, idx int) (lo, hi scalar.Scalar, err error) {
	if f.Statistics == nil || idx >= len(f.Statistics.ColumnStatistics) {
		return nil, nil, fmt.Errorf("%w: statistics not found", utils.ErrPlanning)
	}
	cs := f.Statistics.ColumnStatistics[idx]
	lo, okLo := cs.MinValue.Value()
	hi, okHi := cs.MaxValue.Value()
	if !okLo || !okHi || lo == nil || hi == nil || !lo.IsValid() || !hi.IsValid() {
		return nil, nil, fmt.Errorf("%w: statistics not found", utils.ErrPlanning)
	}
	if lo, err = stats.Decode(lo); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", utils.ErrPlanning, err)
	}
	if hi, err = stats.Decode(hi); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", utils.ErrPlanning, err)
	}
	return lo, hi, nil
}

// checkComparable makes sure every bound can be compared with the first
// file's, so later comparisons cannot fail.
func (s *Statistics) checkComparable(cols []sortColumn) error {
	if len(s.minRows) == 0 {
		return nil
	}
	for i, col := range cols {
		ref := s.minRows[0][i]
		for f := range s.minRows {
			for _, v := range []scalar.Scalar{s.minRows[f][i], s.maxRows[f][i]} {
				if _, err := stats.Compare(ref, v); err != nil {
					return fmt.Errorf("get min/max for column %q: %w: %s", col.name, utils.ErrPlanning, err)
				}
			}
		}
	}
	return nil
}

func (s *Statistics) compareRows(a, b []scalar.Scalar) int {
	for i, expr := range s.sortOrder {
		c, _ := stats.Compare(a[i], b[i])
		if expr.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func (s *Statistics) Len() int {
	return len(s.minRows)
}

// MinValuesSorted returns file indices ordered by their min row. Files with
// equal min rows keep their input order.
func (s *Statistics) MinValuesSorted() []int {
	return append([]int(nil), s.sorted...)
}

func (s *Statistics) Min(i int) []scalar.Scalar {
	return s.minRows[i]
}

func (s *Statistics) Max(i int) []scalar.Scalar {
	return s.maxRows[i]
}

// Less reports whether row a sorts strictly before row b.
func (s *Statistics) Less(a, b []scalar.Scalar) bool {
	return s.compareRows(a, b) < 0
}

// StartsAfter reports whether file i begins strictly after file j ends.
func (s *Statistics) StartsAfter(i, j int) bool {
	return s.compareRows(s.minRows[i], s.maxRows[j]) > 0
}

// IsSorted reports whether the files, in input order, are non-overlapping
// and ascending under the sort order.
func (s *Statistics) IsSorted() bool {
	for i := 1; i < len(s.minRows); i++ {
		if !s.StartsAfter(i, i-1) {
			return false
		}
	}
	return true
}
