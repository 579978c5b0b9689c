package metastore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/danthegoodman1/icescan/gologger"
	"github.com/danthegoodman1/icescan/ordering"
	"github.com/danthegoodman1/icescan/partitioner"
	"github.com/danthegoodman1/icescan/stats"
	"github.com/danthegoodman1/icescan/table"
)

var (
	logger = gologger.NewComponentLogger("metastore")

	ErrTableNotFound = errors.New("table not found")
	ErrTableExists   = errors.New("table already exists")
)

type (
	MetaStore interface {
		// GetTableSchema fetches the table schema for a given table
		GetTableSchema(ctx context.Context, table string) (TableSchema, error)
		CreateTableSchema(ctx context.Context, ts TableSchema) error

		// ListFiles lists all files of a table, ordered by partition then
		// location
		ListFiles(ctx context.Context, table string) ([]FileEntry, error)
		ListFilesInPartitions(ctx context.Context, table string, partitions []string) ([]FileEntry, error)
		// RegisterFile adds a file to a table, replacing an earlier entry
		// for the same location
		RegisterFile(ctx context.Context, table string, f FileEntry) error

		Shutdown(ctx context.Context) error
	}

	Column struct {
		Name     string `json:"name" validate:"required"`
		Type     string `json:"type" validate:"required"`
		Nullable bool   `json:"nullable"`
	}

	SortColumn struct {
		Name       string `json:"name" validate:"required"`
		Descending bool   `json:"descending"`
	}

	ConstraintDef struct {
		Kind    string   `json:"kind" validate:"required,oneof=primary_key unique"`
		Columns []string `json:"columns" validate:"required,min=1"`
	}

	CSVOptions struct {
		HasHeader        bool   `json:"has_header"`
		Delimiter        string `json:"delimiter" validate:"max=1"`
		Compression      string `json:"compression" validate:"omitempty,oneof=gzip bzip2 zstd uncompressed GZIP BZIP2 ZSTD UNCOMPRESSED"`
		NewlinesInValues bool   `json:"newlines_in_values"`
	}

	TableSchema struct {
		ID   string `json:"id"`
		Name string `json:"name" validate:"required"`
		// Location is the url of the object store holding the table files,
		// such as file:// or s3://bucket
		Location string `json:"location" validate:"required"`
		Format   string `json:"format" validate:"required,oneof=parquet csv arrow"`

		Columns          []Column        `json:"columns" validate:"required,min=1,dive"`
		PartitionColumns []Column        `json:"partition_columns" validate:"dive"`
		OrderingKey      []SortColumn    `json:"ordering_key" validate:"dive"`
		Constraints      []ConstraintDef `json:"constraints" validate:"dive"`
		CSV              CSVOptions      `json:"csv"`

		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	// FileEntry is a data file registered with a table.
	FileEntry struct {
		Location string `json:"location" validate:"required"`
		Size     int64  `json:"size" validate:"gte=0"`
		// Partition is the hive style partition path of the file, empty for
		// unpartitioned tables
		Partition string        `json:"partition"`
		NumRows   *int64        `json:"num_rows,omitempty"`
		Columns   []ColumnStats `json:"columns,omitempty" validate:"dive"`
		CreatedAt time.Time     `json:"created_at"`
	}

	// ColumnStats keeps bounds as text, parsed with the column type on read.
	ColumnStats struct {
		Name      string  `json:"name" validate:"required"`
		Min       *string `json:"min,omitempty"`
		Max       *string `json:"max,omitempty"`
		NullCount *int64  `json:"null_count,omitempty"`
	}
)

var dataTypes = map[string]arrow.DataType{
	"bool":         arrow.FixedWidthTypes.Boolean,
	"int8":         arrow.PrimitiveTypes.Int8,
	"int16":        arrow.PrimitiveTypes.Int16,
	"int32":        arrow.PrimitiveTypes.Int32,
	"int64":        arrow.PrimitiveTypes.Int64,
	"uint8":        arrow.PrimitiveTypes.Uint8,
	"uint16":       arrow.PrimitiveTypes.Uint16,
	"uint32":       arrow.PrimitiveTypes.Uint32,
	"uint64":       arrow.PrimitiveTypes.Uint64,
	"float32":      arrow.PrimitiveTypes.Float32,
	"float64":      arrow.PrimitiveTypes.Float64,
	"utf8":         arrow.BinaryTypes.String,
	"string":       arrow.BinaryTypes.String,
	"binary":       arrow.BinaryTypes.Binary,
	"date32":       arrow.FixedWidthTypes.Date32,
	"date64":       arrow.FixedWidthTypes.Date64,
	"timestamp_s":  arrow.FixedWidthTypes.Timestamp_s,
	"timestamp_ms": arrow.FixedWidthTypes.Timestamp_ms,
	"timestamp_us": arrow.FixedWidthTypes.Timestamp_us,
	"timestamp_ns": arrow.FixedWidthTypes.Timestamp_ns,
}

// ParseDataType resolves a column type name such as "int32" or "utf8".
func ParseDataType(name string) (arrow.DataType, error) {
	dt, ok := dataTypes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown column type %q", name)
	}
	return dt, nil
}

func fields(cols []Column) ([]arrow.Field, error) {
	out := make([]arrow.Field, len(cols))
	for i, c := range cols {
		dt, err := ParseDataType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
		out[i] = arrow.Field{Name: c.Name, Type: dt, Nullable: c.Nullable}
	}
	return out, nil
}

// ArrowSchema is the schema of the columns stored in the files.
func (ts TableSchema) ArrowSchema() (*arrow.Schema, error) {
	f, err := fields(ts.Columns)
	if err != nil {
		return nil, err
	}
	return arrow.NewSchema(f, nil), nil
}

// PartitionCatalog is the partition columns, dictionary encoded.
func (ts TableSchema) PartitionCatalog() (partitioner.Catalog, error) {
	f, err := fields(ts.PartitionColumns)
	if err != nil {
		return nil, err
	}
	catalog := make(partitioner.Catalog, len(f))
	for i, field := range f {
		field.Type = partitioner.WrapPartitionType(field.Type)
		catalog[i] = field
	}
	return catalog, nil
}

// OutputOrdering resolves the ordering key against the table schema, the
// file columns followed by the partition columns.
func (ts TableSchema) OutputOrdering(tableSchema *arrow.Schema) ([]ordering.LexOrdering, error) {
	if len(ts.OrderingKey) == 0 {
		return nil, nil
	}
	o := make(ordering.LexOrdering, len(ts.OrderingKey))
	for i, key := range ts.OrderingKey {
		col, err := ordering.NewColumn(key.Name, tableSchema)
		if err != nil {
			return nil, fmt.Errorf("ordering key: %w", err)
		}
		if key.Descending {
			o[i] = ordering.Desc(col)
		} else {
			o[i] = ordering.Asc(col)
		}
	}
	return []ordering.LexOrdering{o}, nil
}

func (ts TableSchema) TableConstraints(tableSchema *arrow.Schema) (table.Constraints, error) {
	var out table.Constraints
	for _, def := range ts.Constraints {
		c := table.Constraint{Kind: table.Unique}
		if def.Kind == "primary_key" {
			c.Kind = table.PrimaryKey
		}
		for _, name := range def.Columns {
			indices := tableSchema.FieldIndices(name)
			if len(indices) == 0 {
				return nil, fmt.Errorf("constraint column %q not found in schema", name)
			}
			c.Columns = append(c.Columns, indices[0])
		}
		out = append(out, c)
	}
	return out, nil
}

// Check verifies the schema can be turned into a scan: every type parses,
// names are unique and keys reference existing columns.
func (ts TableSchema) Check() error {
	schema, err := ts.ArrowSchema()
	if err != nil {
		return err
	}
	catalog, err := ts.PartitionCatalog()
	if err != nil {
		return err
	}
	all := append(append([]arrow.Field(nil), schema.Fields()...), catalog...)
	seen := map[string]bool{}
	for _, f := range all {
		if seen[f.Name] {
			return fmt.Errorf("duplicate column %q", f.Name)
		}
		seen[f.Name] = true
	}
	tableSchema := arrow.NewSchema(all, nil)
	if _, err := ts.OutputOrdering(tableSchema); err != nil {
		return err
	}
	if _, err := ts.TableConstraints(tableSchema); err != nil {
		return err
	}
	return nil
}

// Statistics parses the stored bounds against the file schema. Columns
// without an entry, or whose bounds do not parse, stay absent.
func (f FileEntry) Statistics(schema *arrow.Schema) stats.Statistics {
	s := stats.NewUnknown(schema)
	if f.NumRows != nil {
		s.NumRows = stats.ExactOf(*f.NumRows)
	}
	s.TotalByteSize = stats.InexactOf(f.Size)
	for _, cs := range f.Columns {
		indices := schema.FieldIndices(cs.Name)
		if len(indices) == 0 {
			continue
		}
		idx := indices[0]
		dt := schema.Field(idx).Type
		if cs.NullCount != nil {
			s.ColumnStatistics[idx].NullCount = stats.ExactOf(*cs.NullCount)
		}
		if cs.Min == nil || cs.Max == nil {
			continue
		}
		lo, err := scalar.ParseScalar(dt, *cs.Min)
		if err != nil {
			logger.Warn().Err(err).Str("file", f.Location).Str("column", cs.Name).Msg("ignoring unparsable min value")
			continue
		}
		hi, err := scalar.ParseScalar(dt, *cs.Max)
		if err != nil {
			logger.Warn().Err(err).Str("file", f.Location).Str("column", cs.Name).Msg("ignoring unparsable max value")
			continue
		}
		s.ColumnStatistics[idx].MinValue = stats.ExactOf(lo)
		s.ColumnStatistics[idx].MaxValue = stats.ExactOf(hi)
	}
	return s
}

// ColumnStatsFrom renders the known column statistics of s as text.
func ColumnStatsFrom(schema *arrow.Schema, s stats.Statistics) []ColumnStats {
	var out []ColumnStats
	for i, cs := range s.ColumnStatistics {
		if i >= schema.NumFields() {
			break
		}
		entry := ColumnStats{Name: schema.Field(i).Name}
		if n, ok := cs.NullCount.Value(); ok {
			entry.NullCount = &n
		}
		lo, okLo := cs.MinValue.Value()
		hi, okHi := cs.MaxValue.Value()
		if okLo && okHi && lo != nil && hi != nil && lo.IsValid() && hi.IsValid() {
			minText, maxText := lo.String(), hi.String()
			entry.Min, entry.Max = &minText, &maxText
		}
		if entry.NullCount == nil && entry.Min == nil {
			continue
		}
		out = append(out, entry)
	}
	return out
}
