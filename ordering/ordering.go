package ordering

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

type (
	// Column references a field of a schema by name and position.
	Column struct {
		Name  string
		Index int
	}

	SortExpr struct {
		Expr       Column
		Descending bool
		NullsFirst bool
	}

	// LexOrdering is a lexicographical ordering: rows are ordered by the
	// first expression, ties broken by the next.
	LexOrdering []SortExpr
)

// NewColumn resolves name against schema.
func NewColumn(name string, schema *arrow.Schema) (Column, error) {
	indices := schema.FieldIndices(name)
	if len(indices) == 0 {
		return Column{}, fmt.Errorf("column %q not found in schema", name)
	}
	return Column{Name: name, Index: indices[0]}, nil
}

func Asc(c Column) SortExpr {
	return SortExpr{Expr: c}
}

func Desc(c Column) SortExpr {
	return SortExpr{Expr: c, Descending: true, NullsFirst: true}
}

func (e SortExpr) String() string {
	dir := "ASC"
	if e.Descending {
		dir = "DESC"
	}
	nulls := "NULLS LAST"
	if e.NullsFirst {
		nulls = "NULLS FIRST"
	}
	return fmt.Sprintf("%s@%d %s %s", e.Expr.Name, e.Expr.Index, dir, nulls)
}

func (o LexOrdering) String() string {
	parts := make([]string, len(o))
	for i, e := range o {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Project rewrites each ordering against schema. An ordering keeps its
// longest prefix of columns present in schema; orderings with no such prefix
// are dropped.
func Project(orderings []LexOrdering, schema *arrow.Schema) []LexOrdering {
	var out []LexOrdering
	for _, o := range orderings {
		var projected LexOrdering
		for _, e := range o {
			indices := schema.FieldIndices(e.Expr.Name)
			if len(indices) == 0 {
				break
			}
			e.Expr.Index = indices[0]
			projected = append(projected, e)
		}
		if len(projected) > 0 {
			out = append(out, projected)
		}
	}
	return out
}

// Clone returns deep copies so the result shares no backing arrays.
func Clone(orderings []LexOrdering) []LexOrdering {
	if orderings == nil {
		return nil
	}
	out := make([]LexOrdering, len(orderings))
	for i, o := range orderings {
		out[i] = append(LexOrdering(nil), o...)
	}
	return out
}
