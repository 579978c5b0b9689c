package stats

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/scalar"
)

type (
	ColumnStatistics struct {
		NullCount     Precision[int64]
		MaxValue      Precision[scalar.Scalar]
		MinValue      Precision[scalar.Scalar]
		DistinctCount Precision[int64]
	}

	// Statistics describes a set of rows. ColumnStatistics holds one entry per
	// field of the schema the statistics were computed for.
	Statistics struct {
		NumRows          Precision[int64]
		TotalByteSize    Precision[int64]
		ColumnStatistics []ColumnStatistics
	}
)

func NewUnknownColumn() ColumnStatistics {
	return ColumnStatistics{}
}

// NewUnknown returns statistics with every value absent and one column entry
// per field of schema.
func NewUnknown(schema *arrow.Schema) Statistics {
	return Statistics{
		ColumnStatistics: make([]ColumnStatistics, schema.NumFields()),
	}
}

// Clone copies the column slice so callers may modify the result.
func (s Statistics) Clone() Statistics {
	cols := make([]ColumnStatistics, len(s.ColumnStatistics))
	copy(cols, s.ColumnStatistics)
	s.ColumnStatistics = cols
	return s
}

// ToInexact downgrades every exact value.
func (s Statistics) ToInexact() Statistics {
	out := Statistics{
		NumRows:          s.NumRows.ToInexact(),
		TotalByteSize:    s.TotalByteSize.ToInexact(),
		ColumnStatistics: make([]ColumnStatistics, len(s.ColumnStatistics)),
	}
	for i, c := range s.ColumnStatistics {
		out.ColumnStatistics[i] = ColumnStatistics{
			NullCount:     c.NullCount.ToInexact(),
			MaxValue:      c.MaxValue.ToInexact(),
			MinValue:      c.MinValue.ToInexact(),
			DistinctCount: c.DistinctCount.ToInexact(),
		}
	}
	return out
}

// Merge combines the statistics of two disjoint row sets over the same
// schema. Distinct counts cannot be combined and become absent.
func Merge(a, b Statistics) (Statistics, error) {
	if len(a.ColumnStatistics) != len(b.ColumnStatistics) {
		return Statistics{}, fmt.Errorf("cannot merge statistics with %d and %d columns", len(a.ColumnStatistics), len(b.ColumnStatistics))
	}
	out := Statistics{
		NumRows:          addPrecision(a.NumRows, b.NumRows),
		TotalByteSize:    addPrecision(a.TotalByteSize, b.TotalByteSize),
		ColumnStatistics: make([]ColumnStatistics, len(a.ColumnStatistics)),
	}
	for i := range a.ColumnStatistics {
		ca, cb := a.ColumnStatistics[i], b.ColumnStatistics[i]
		out.ColumnStatistics[i] = ColumnStatistics{
			NullCount: addPrecision(ca.NullCount, cb.NullCount),
			MinValue:  pickBound(ca.MinValue, cb.MinValue, -1),
			MaxValue:  pickBound(ca.MaxValue, cb.MaxValue, 1),
		}
	}
	return out, nil
}

func addPrecision(a, b Precision[int64]) Precision[int64] {
	va, okA := a.Value()
	vb, okB := b.Value()
	if !okA || !okB {
		return AbsentOf[int64]()
	}
	if a.IsExact() && b.IsExact() {
		return ExactOf(va + vb)
	}
	return InexactOf(va + vb)
}

// pickBound keeps the smaller (want -1) or larger (want 1) bound.
func pickBound(a, b Precision[scalar.Scalar], want int) Precision[scalar.Scalar] {
	va, okA := a.Value()
	vb, okB := b.Value()
	if !okA || !okB {
		return AbsentOf[scalar.Scalar]()
	}
	c, err := Compare(va, vb)
	if err != nil {
		return AbsentOf[scalar.Scalar]()
	}
	kind := Inexact
	if a.IsExact() && b.IsExact() {
		kind = Exact
	}
	v := va
	if c*want < 0 {
		v = vb
	}
	return Precision[scalar.Scalar]{kind: kind, value: v}
}

func (s Statistics) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "rows=%s, bytes=%s", s.NumRows, s.TotalByteSize)
	for i, c := range s.ColumnStatistics {
		fmt.Fprintf(&sb, ", (col%d: min=%s max=%s nulls=%s)", i, c.MinValue, c.MaxValue, c.NullCount)
	}
	return sb.String()
}
