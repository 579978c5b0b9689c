package listing

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/danthegoodman1/icescan/datastore"
	"github.com/danthegoodman1/icescan/metastore"
	"github.com/danthegoodman1/icescan/ordering"
	"github.com/danthegoodman1/icescan/part"
	"github.com/danthegoodman1/icescan/partitioner"
	"github.com/danthegoodman1/icescan/scan"
	"github.com/danthegoodman1/icescan/source"
	"github.com/danthegoodman1/icescan/stats"
	"github.com/danthegoodman1/icescan/utils"
	"github.com/rs/zerolog"
)

type (
	Request struct {
		Table string `json:"table" validate:"required"`
		// Partitions restricts the scan to these hive style partition paths
		Partitions []string `json:"partitions"`
		// Columns are the projected column names, nil reads every column
		Columns []string `json:"columns"`
		Limit   *int64   `json:"limit" validate:"omitempty,gte=0"`

		TargetPartitions       int   `json:"target_partitions" validate:"gte=0"`
		RepartitionFileMinSize int64 `json:"repartition_file_min_size" validate:"gte=0"`
		// SplitByStatistics packs files into sorted, non overlapping groups
		// on the ordering key of the table
		SplitByStatistics bool `json:"split_by_statistics"`
	}

	Plan struct {
		Config *scan.Config
		// Packed is true when the file groups were split by statistics
		Packed bool
		// PackingError is why packing fell back to the listed grouping
		PackingError error
	}
)

// SourceFor returns the file format of a table.
func SourceFor(ts metastore.TableSchema) (scan.FileSource, error) {
	switch ts.Format {
	case "parquet":
		return source.NewParquetSource(), nil
	case "arrow":
		return source.NewArrowSource(), nil
	case "csv":
		var delim rune
		if ts.CSV.Delimiter != "" {
			delim = []rune(ts.CSV.Delimiter)[0]
		}
		return source.NewCSVSource(ts.CSV.HasHeader, delim), nil
	}
	return nil, fmt.Errorf("%w: unknown table format %q", utils.ErrPlanning, ts.Format)
}

// BuildConfig plans a scan of a table from the files registered for it.
func BuildConfig(ctx context.Context, ms metastore.MetaStore, registry *datastore.Registry, req Request) (Plan, error) {
	logger := zerolog.Ctx(ctx)
	ts, err := ms.GetTableSchema(ctx, req.Table)
	if err != nil {
		return Plan{}, fmt.Errorf("error in GetTableSchema: %w", err)
	}
	if _, err := registry.Get(ts.Location); err != nil {
		return Plan{}, fmt.Errorf("error resolving table location: %w", err)
	}

	fileSchema, err := ts.ArrowSchema()
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %s", utils.ErrPlanning, err)
	}
	catalog, err := ts.PartitionCatalog()
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %s", utils.ErrPlanning, err)
	}
	src, err := SourceFor(ts)
	if err != nil {
		return Plan{}, err
	}
	compression, err := scan.ParseFileCompressionType(ts.CSV.Compression)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %s", utils.ErrPlanning, err)
	}

	cfg := scan.NewConfig(ts.Location, fileSchema, src).
		WithTablePartitionCols(catalog).
		WithFileCompressionType(compression).
		WithNewlinesInValues(ts.CSV.NewlinesInValues)
	tableSchema := cfg.TableSchema()

	orderings, err := ts.OutputOrdering(tableSchema)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %s", utils.ErrPlanning, err)
	}
	constraints, err := ts.TableConstraints(tableSchema)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %s", utils.ErrPlanning, err)
	}

	var entries []metastore.FileEntry
	if req.Partitions != nil {
		entries, err = ms.ListFilesInPartitions(ctx, req.Table, req.Partitions)
	} else {
		entries, err = ms.ListFiles(ctx, req.Table)
	}
	if err != nil {
		return Plan{}, fmt.Errorf("error listing files: %w", err)
	}

	files := make([]part.PartitionedFile, 0, len(entries))
	tableStats := stats.NewUnknown(fileSchema)
	for i, e := range entries {
		values, err := partitioner.ParsePartitionValues(e.Location, catalog)
		if err != nil {
			return Plan{}, fmt.Errorf("%w: %s", utils.ErrData, err)
		}
		fileStats := e.Statistics(fileSchema)
		files = append(files, part.NewPartitionedFile(e.Location, e.Size).
			WithPartitionValues(values).
			WithStatistics(fileStats))
		if i == 0 {
			tableStats = fileStats.Clone()
			continue
		}
		if tableStats, err = stats.Merge(tableStats, fileStats); err != nil {
			return Plan{}, fmt.Errorf("error merging statistics of %s: %w", e.Location, err)
		}
	}

	cfg = cfg.
		WithFileGroups(roundRobin(files, req.TargetPartitions)).
		WithConstraints(constraints).
		WithStatistics(tableStats).
		WithOutputOrdering(orderings).
		WithLimit(req.Limit)

	plan := Plan{}
	if req.SplitByStatistics && len(orderings) > 0 {
		groups, err := scan.SplitGroupsByStatistics(tableSchema, cfg.FileGroups, orderings[0])
		if err != nil {
			logger.Warn().Err(err).Str("table", req.Table).Msg("packing by statistics failed, keeping listed file groups")
			plan.PackingError = err
		} else {
			cfg = cfg.ReplaceFileGroups(groups)
			plan.Packed = true
		}
	} else if req.TargetPartitions > 1 {
		var sortOrder ordering.LexOrdering
		if len(orderings) > 0 {
			sortOrder = orderings[0]
		}
		if cfg, err = cfg.Repartitioned(req.TargetPartitions, req.RepartitionFileMinSize, sortOrder); err != nil {
			return Plan{}, err
		}
	}

	if req.Columns != nil {
		projection, err := projectionOf(tableSchema, req.Columns)
		if err != nil {
			return Plan{}, err
		}
		cfg = cfg.WithProjection(projection)
	}
	if err := cfg.Validate(); err != nil {
		return Plan{}, fmt.Errorf("invalid scan: %w", err)
	}
	plan.Config = cfg
	logger.Debug().Str("table", req.Table).Int("files", len(files)).Int("groups", cfg.OutputPartitioning()).Bool("packed", plan.Packed).Msg("built scan config")
	return plan, nil
}

// roundRobin deals files into at most n groups, keeping listing order
// within each group.
func roundRobin(files []part.PartitionedFile, n int) []part.FileGroup {
	if len(files) == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if n > len(files) {
		n = len(files)
	}
	groups := make([]part.FileGroup, n)
	for i, f := range files {
		groups[i%n] = append(groups[i%n], f)
	}
	return groups
}

func projectionOf(schema *arrow.Schema, columns []string) ([]int, error) {
	projection := make([]int, len(columns))
	for i, name := range columns {
		indices := schema.FieldIndices(name)
		if len(indices) == 0 {
			return nil, fmt.Errorf("%w: column %q not in table", utils.ErrPlanning, name)
		}
		projection[i] = indices[0]
	}
	return projection, nil
}

// Discover registers every object of the table location under prefix with
// the extension of the table format. Parquet files have their footer
// statistics recorded. It returns the registered entries.
func Discover(ctx context.Context, ms metastore.MetaStore, registry *datastore.Registry, table, prefix string) ([]metastore.FileEntry, error) {
	logger := zerolog.Ctx(ctx)
	ts, err := ms.GetTableSchema(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("error in GetTableSchema: %w", err)
	}
	store, err := registry.Get(ts.Location)
	if err != nil {
		return nil, err
	}
	fileSchema, err := ts.ArrowSchema()
	if err != nil {
		return nil, err
	}
	catalog, err := ts.PartitionCatalog()
	if err != nil {
		return nil, err
	}
	compression, err := scan.ParseFileCompressionType(ts.CSV.Compression)
	if err != nil {
		return nil, err
	}
	ext := "." + ts.Format + compression.Extension()

	objects, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("error listing %s: %w", prefix, err)
	}
	var out []metastore.FileEntry
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Location, ext) {
			continue
		}
		entry, err := NewFileEntry(ctx, store, ts.Format, fileSchema, catalog, obj)
		if errors.Is(err, partitioner.ErrMissingPartition) {
			logger.Warn().Err(err).Str("file", obj.Location).Msg("skipping file outside of partition layout")
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := ms.RegisterFile(ctx, table, entry); err != nil {
			return nil, fmt.Errorf("error registering %s: %w", obj.Location, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// NewFileEntry describes obj for the catalog.
func NewFileEntry(ctx context.Context, store datastore.DataStore, format string, fileSchema *arrow.Schema, catalog partitioner.Catalog, obj datastore.ObjectMeta) (metastore.FileEntry, error) {
	values, err := partitioner.ParsePartitionValues(obj.Location, catalog)
	if err != nil {
		return metastore.FileEntry{}, err
	}
	partition := ""
	if len(catalog) > 0 {
		if partition, err = partitioner.PartitionPath(catalog, values); err != nil {
			return metastore.FileEntry{}, err
		}
	}
	entry := metastore.FileEntry{Location: obj.Location, Size: obj.Size, Partition: partition}
	if format != "parquet" {
		return entry, nil
	}

	pf, err := datastore.OpenParquetFile(ctx, store, obj.Location)
	if err != nil {
		return metastore.FileEntry{}, fmt.Errorf("error opening %s: %w", path.Base(obj.Location), err)
	}
	defer pf.Close()
	st, err := part.ReadParquetStatistics(pf, fileSchema)
	if err != nil {
		return metastore.FileEntry{}, fmt.Errorf("error reading statistics of %s: %w", obj.Location, err)
	}
	if n, ok := st.NumRows.Value(); ok {
		entry.NumRows = &n
	}
	entry.Columns = metastore.ColumnStatsFrom(fileSchema, st)
	return entry, nil
}
