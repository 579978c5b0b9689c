package scan

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/danthegoodman1/icescan/gologger"
	"github.com/danthegoodman1/icescan/ordering"
	"github.com/danthegoodman1/icescan/part"
	"github.com/danthegoodman1/icescan/partitioner"
	"github.com/danthegoodman1/icescan/stats"
	"github.com/danthegoodman1/icescan/table"
)

var logger = gologger.NewComponentLogger("scan")

// Config describes a scan over a set of files sharing one schema. A Config
// is never modified after construction, the With methods return copies, so
// one value can be shared by every partition of a scan.
type Config struct {
	// ObjectStoreURL selects the store holding the files, e.g. `s3://bucket`
	ObjectStoreURL string
	// FileSchema is the schema of the files, without partition columns
	FileSchema *arrow.Schema
	// FileGroups are scanned in parallel, the files of a group in order
	FileGroups  []part.FileGroup
	Constraints table.Constraints
	// Statistics has one column entry per FileSchema field
	Statistics stats.Statistics
	// Projection indexes the file fields followed by TablePartitionCols.
	// Nil reads every column.
	Projection []int
	Limit      *int64
	// TablePartitionCols are virtual columns whose values come from each
	// file's PartitionValues
	TablePartitionCols  partitioner.Catalog
	OutputOrdering      []ordering.LexOrdering
	FileCompressionType FileCompressionType
	// NewlinesInValues means quoted values of delimited text may contain
	// newlines, so such files cannot be split at arbitrary offsets
	NewlinesInValues bool
	Source           FileSource
}

func NewConfig(objectStoreURL string, fileSchema *arrow.Schema, source FileSource) *Config {
	statistics := stats.NewUnknown(fileSchema)
	var src FileSource
	if source != nil {
		src = source.WithStatistics(statistics)
	}
	return &Config{
		ObjectStoreURL: objectStoreURL,
		FileSchema:     fileSchema,
		Statistics:     statistics,
		Source:         src,
	}
}

func (c *Config) clone() *Config {
	out := *c
	out.FileGroups = part.CloneGroups(c.FileGroups)
	out.Constraints = c.Constraints.Clone()
	out.Statistics = c.Statistics.Clone()
	out.Projection = copyProjection(c.Projection)
	if c.Limit != nil {
		limit := *c.Limit
		out.Limit = &limit
	}
	out.TablePartitionCols = c.TablePartitionCols.Clone()
	out.OutputOrdering = ordering.Clone(c.OutputOrdering)
	return &out
}

// WithSource sets the format and hands it the projected statistics.
func (c *Config) WithSource(source FileSource) *Config {
	out := c.clone()
	out.Source = source.WithStatistics(out.ProjectedStatistics())
	return out
}

func (c *Config) WithConstraints(constraints table.Constraints) *Config {
	out := c.clone()
	out.Constraints = constraints.Clone()
	return out
}

func (c *Config) WithStatistics(s stats.Statistics) *Config {
	out := c.clone()
	out.Statistics = s.Clone()
	return out
}

// WithProjection sets the projection. Nil reads every column.
func (c *Config) WithProjection(projection []int) *Config {
	out := c.clone()
	out.Projection = copyProjection(projection)
	return out
}

// copyProjection keeps an empty projection distinct from no projection.
func copyProjection(projection []int) []int {
	if projection == nil {
		return nil
	}
	out := make([]int, len(projection))
	copy(out, projection)
	return out
}

// WithLimit sets the row limit. Nil removes it.
func (c *Config) WithLimit(limit *int64) *Config {
	out := c.clone()
	out.Limit = nil
	if limit != nil {
		l := *limit
		out.Limit = &l
	}
	return out
}

// WithFile adds a group holding only f.
func (c *Config) WithFile(f part.PartitionedFile) *Config {
	return c.WithFileGroup(part.FileGroup{f})
}

func (c *Config) WithFileGroup(g part.FileGroup) *Config {
	out := c.clone()
	out.FileGroups = append(out.FileGroups, g.Clone())
	return out
}

func (c *Config) WithFileGroups(groups []part.FileGroup) *Config {
	out := c.clone()
	out.FileGroups = append(out.FileGroups, part.CloneGroups(groups)...)
	return out
}

// ReplaceFileGroups swaps all groups, as repartitioning does.
func (c *Config) ReplaceFileGroups(groups []part.FileGroup) *Config {
	out := c.clone()
	out.FileGroups = part.CloneGroups(groups)
	return out
}

func (c *Config) WithTablePartitionCols(cols partitioner.Catalog) *Config {
	out := c.clone()
	out.TablePartitionCols = cols.Clone()
	return out
}

func (c *Config) WithOutputOrdering(orderings []ordering.LexOrdering) *Config {
	out := c.clone()
	out.OutputOrdering = ordering.Clone(orderings)
	return out
}

func (c *Config) WithFileCompressionType(t FileCompressionType) *Config {
	out := c.clone()
	out.FileCompressionType = t
	return out
}

func (c *Config) WithNewlinesInValues(newlines bool) *Config {
	out := c.clone()
	out.NewlinesInValues = newlines
	return out
}

// WithFetch sets the limit, nil removes it.
func (c *Config) WithFetch(limit *int64) *Config {
	return c.WithLimit(limit)
}

func (c *Config) Fetch() *int64 {
	return c.Limit
}

// Validate checks the invariants every other method relies on.
func (c *Config) Validate() error {
	if c.FileSchema == nil {
		return fmt.Errorf("file schema is required")
	}
	if c.Source == nil {
		return fmt.Errorf("file source is required")
	}
	nFile := c.FileSchema.NumFields()
	total := nFile + len(c.TablePartitionCols)
	for _, idx := range c.Projection {
		if idx < 0 || idx >= total {
			return fmt.Errorf("projection index %d out of range for %d columns", idx, total)
		}
	}
	if got := len(c.Statistics.ColumnStatistics); got != nFile {
		return fmt.Errorf("statistics have %d columns, file schema has %d", got, nFile)
	}
	if c.Limit != nil && *c.Limit < 0 {
		return fmt.Errorf("negative limit %d", *c.Limit)
	}
	for g, group := range c.FileGroups {
		for _, f := range group {
			if len(f.PartitionValues) != len(c.TablePartitionCols) {
				return fmt.Errorf("file %s in group %d has %d partition values, expected %d", f.Location, g, len(f.PartitionValues), len(c.TablePartitionCols))
			}
			if f.Statistics != nil && len(f.Statistics.ColumnStatistics) != nFile {
				return fmt.Errorf("file %s has statistics for %d columns, expected %d", f.Location, len(f.Statistics.ColumnStatistics), nFile)
			}
			if f.Range != nil && (f.Range.Start < 0 || f.Range.Start > f.Range.End) {
				return fmt.Errorf("file %s has invalid range %d..%d", f.Location, f.Range.Start, f.Range.End)
			}
		}
	}
	return nil
}

// OutputPartitioning is the number of partitions Open accepts.
func (c *Config) OutputPartitioning() int {
	return len(c.FileGroups)
}

// SourceStatistics are the statistics the source reports for the scan output.
func (c *Config) SourceStatistics() (stats.Statistics, error) {
	if c.Source == nil {
		return c.ProjectedStatistics(), nil
	}
	return c.Source.Statistics()
}

// Repartitioned lets the source regroup files into targetPartitions groups.
// The receiver is returned when the source keeps the grouping.
func (c *Config) Repartitioned(targetPartitions int, repartitionFileMinSize int64, outputOrdering ordering.LexOrdering) (*Config, error) {
	if c.Source == nil {
		return c, nil
	}
	out, err := c.Source.Repartitioned(targetPartitions, repartitionFileMinSize, outputOrdering, c)
	if err != nil {
		return nil, fmt.Errorf("error repartitioning %s scan: %w", c.Source.FileType(), err)
	}
	if out == nil {
		return c, nil
	}
	return out, nil
}

func (c *Config) String() string {
	schema, _, _, orderings := c.Project()
	s := fmt.Sprintf("file_groups=%d, projection=%v", len(c.FileGroups), schemaNames(schema))
	if c.Limit != nil {
		s += fmt.Sprintf(", limit=%d", *c.Limit)
	}
	for _, o := range orderings {
		s += ", output_ordering=" + o.String()
	}
	if c.Source != nil {
		s += ", file_type=" + c.Source.FileType()
	}
	return s
}

func schemaNames(schema *arrow.Schema) []string {
	names := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		names[i] = f.Name
	}
	return names
}
