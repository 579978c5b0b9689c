package scan

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/danthegoodman1/icescan/minmax"
	"github.com/danthegoodman1/icescan/ordering"
	"github.com/danthegoodman1/icescan/stats"
	"github.com/danthegoodman1/icescan/table"
)

// Project computes the schema, constraints, statistics and orderings of the
// scan output. Partition columns get unknown statistics and the total byte
// size is unknown after any projection.
func (c *Config) Project() (*arrow.Schema, table.Constraints, stats.Statistics, []ordering.LexOrdering) {
	if c.Projection == nil && len(c.TablePartitionCols) == 0 {
		return c.FileSchema, c.Constraints, c.Statistics, c.OutputOrdering
	}

	schema, statistics := c.projectFields()
	constraints, ok := c.Constraints.Project(c.projectionIndices())
	if !ok {
		constraints = table.Constraints{}
	}
	return schema, constraints, statistics, c.projectedOutputOrdering(schema)
}

func (c *Config) ProjectedSchema() *arrow.Schema {
	schema, _, _, _ := c.Project()
	return schema
}

func (c *Config) ProjectedStatistics() stats.Statistics {
	_, _, statistics, _ := c.Project()
	return statistics
}

func (c *Config) ProjectedConstraints() table.Constraints {
	_, constraints, _, _ := c.Project()
	return constraints
}

// TableSchema is the file schema followed by the partition columns.
func (c *Config) TableSchema() *arrow.Schema {
	fields := append(append([]arrow.Field(nil), c.FileSchema.Fields()...), c.TablePartitionCols...)
	md := c.FileSchema.Metadata()
	return arrow.NewSchema(fields, &md)
}

func (c *Config) projectionIndices() []int {
	if c.Projection != nil {
		return c.Projection
	}
	indices := make([]int, c.FileSchema.NumFields()+len(c.TablePartitionCols))
	for i := range indices {
		indices[i] = i
	}
	return indices
}

func (c *Config) projectFields() (*arrow.Schema, stats.Statistics) {
	nFile := c.FileSchema.NumFields()
	indices := c.projectionIndices()

	fields := make([]arrow.Field, 0, len(indices))
	colStats := make([]stats.ColumnStatistics, 0, len(indices))
	for _, idx := range indices {
		if idx < nFile {
			fields = append(fields, c.FileSchema.Field(idx))
			if idx < len(c.Statistics.ColumnStatistics) {
				colStats = append(colStats, c.Statistics.ColumnStatistics[idx])
			} else {
				colStats = append(colStats, stats.NewUnknownColumn())
			}
			continue
		}
		fields = append(fields, c.TablePartitionCols[idx-nFile])
		// partition column statistics are not tracked
		colStats = append(colStats, stats.NewUnknownColumn())
	}

	md := c.FileSchema.Metadata()
	return arrow.NewSchema(fields, &md), stats.Statistics{
		NumRows:          c.Statistics.NumRows,
		TotalByteSize:    stats.AbsentOf[int64](),
		ColumnStatistics: colStats,
	}
}

// projectedOutputOrdering keeps the orderings that hold for the projected
// schema. An ordering is dropped when a group of several files cannot be
// shown to be sorted on it from file statistics, since concatenating sorted
// files only yields sorted output when they do not overlap.
func (c *Config) projectedOutputOrdering(projected *arrow.Schema) []ordering.LexOrdering {
	var out []ordering.LexOrdering
	tableSchema := c.TableSchema()
outer:
	for _, o := range ordering.Project(c.OutputOrdering, projected) {
		for _, group := range c.FileGroups {
			if len(group) <= 1 {
				continue
			}
			s, err := minmax.NewFromFiles(o, tableSchema, c.Projection, group)
			if err != nil {
				logger.Debug().Err(err).Str("ordering", o.String()).Msg("dropping output ordering, error fetching statistics")
				continue outer
			}
			if !s.IsSorted() {
				logger.Debug().Str("ordering", o.String()).Msg("dropping output ordering, files in group overlap")
				continue outer
			}
		}
		out = append(out, o)
	}
	return out
}

// ProjectedFileSchema is the schema of the file columns the scan reads.
func (c *Config) ProjectedFileSchema() *arrow.Schema {
	indices := c.FileColumnProjectionIndices()
	if indices == nil {
		return c.FileSchema
	}
	fields := make([]arrow.Field, len(indices))
	for i, idx := range indices {
		fields[i] = c.FileSchema.Field(idx)
	}
	md := c.FileSchema.Metadata()
	return arrow.NewSchema(fields, &md)
}

// FileColumnProjectionIndices are the projected file columns, in projection
// order. Nil means every file column.
func (c *Config) FileColumnProjectionIndices() []int {
	if c.Projection == nil {
		return nil
	}
	nFile := c.FileSchema.NumFields()
	indices := make([]int, 0, len(c.Projection))
	for _, idx := range c.Projection {
		if idx < nFile {
			indices = append(indices, idx)
		}
	}
	return indices
}

// ProjectedFileColumnNames are the names of FileColumnProjectionIndices.
func (c *Config) ProjectedFileColumnNames() []string {
	indices := c.FileColumnProjectionIndices()
	if indices == nil {
		return nil
	}
	names := make([]string, len(indices))
	for i, idx := range indices {
		names[i] = c.FileSchema.Field(idx).Name
	}
	return names
}
