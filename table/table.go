package table

import (
	"fmt"
	"strings"
)

type (
	ConstraintKind uint8

	Constraint struct {
		Kind ConstraintKind
		// Columns are positions in the schema the constraint is declared on
		Columns []int
	}

	Constraints []Constraint
)

const (
	PrimaryKey ConstraintKind = iota
	Unique
)

func (k ConstraintKind) String() string {
	if k == PrimaryKey {
		return "PrimaryKey"
	}
	return "Unique"
}

func (c Constraint) String() string {
	cols := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		cols[i] = fmt.Sprint(col)
	}
	return fmt.Sprintf("%s([%s])", c.Kind, strings.Join(cols, ", "))
}

func (cs Constraints) IsEmpty() bool {
	return len(cs) == 0
}

func (cs Constraints) Clone() Constraints {
	if cs == nil {
		return nil
	}
	out := make(Constraints, len(cs))
	for i, c := range cs {
		out[i] = Constraint{Kind: c.Kind, Columns: append([]int(nil), c.Columns...)}
	}
	return out
}

// Project remaps constraints onto the schema selected by indices. A
// constraint that references a column not in indices is dropped. The second
// return is false when no constraint survives.
func (cs Constraints) Project(indices []int) (Constraints, bool) {
	var out Constraints
	for _, c := range cs {
		cols := make([]int, 0, len(c.Columns))
		for _, col := range c.Columns {
			for pos, idx := range indices {
				if idx == col {
					cols = append(cols, pos)
					break
				}
			}
		}
		if len(cols) == len(c.Columns) {
			out = append(out, Constraint{Kind: c.Kind, Columns: cols})
		}
	}
	return out, len(out) > 0
}

func (cs Constraints) String() string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return "constraints=[" + strings.Join(parts, ", ") + "]"
}
