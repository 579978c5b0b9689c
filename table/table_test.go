package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProject(t *testing.T) {
	cs := Constraints{
		{Kind: PrimaryKey, Columns: []int{0, 2}},
		{Kind: Unique, Columns: []int{1}},
	}

	tests := []struct {
		name    string
		indices []int
		want    Constraints
		ok      bool
	}{
		{"all columns", []int{0, 1, 2}, cs, true},
		{"reordered", []int{2, 0}, Constraints{{Kind: PrimaryKey, Columns: []int{1, 0}}}, true},
		{"only unique column", []int{1}, Constraints{{Kind: Unique, Columns: []int{0}}}, true},
		{"nothing survives", []int{0, 3}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := cs.Project(tt.indices)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString(t *testing.T) {
	cs := Constraints{{Kind: PrimaryKey, Columns: []int{0, 2}}}
	assert.Equal(t, "constraints=[PrimaryKey([0, 2])]", cs.String())
}
