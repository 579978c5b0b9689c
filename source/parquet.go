package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/danthegoodman1/icescan/datastore"
	"github.com/danthegoodman1/icescan/ordering"
	"github.com/danthegoodman1/icescan/part"
	"github.com/danthegoodman1/icescan/scan"
	"github.com/danthegoodman1/icescan/stats"
	"github.com/danthegoodman1/icescan/utils"
)

// ParquetSource reads parquet files. A byte range reads the row groups
// whose midpoint falls inside it.
type ParquetSource struct {
	binding
}

func NewParquetSource() *ParquetSource {
	return &ParquetSource{}
}

func (s *ParquetSource) WithBatchSize(n int) scan.FileSource {
	out := *s
	out.batchSize = n
	return &out
}

func (s *ParquetSource) WithSchema(schema *arrow.Schema) scan.FileSource {
	out := *s
	out.schema = schema
	return &out
}

func (s *ParquetSource) WithProjection(cfg *scan.Config) scan.FileSource {
	out := *s
	out.binding = s.withProjection(cfg)
	return &out
}

func (s *ParquetSource) WithStatistics(st stats.Statistics) scan.FileSource {
	out := *s
	out.binding = s.withStatistics(st)
	return &out
}

func (s *ParquetSource) CreateFileOpener(store datastore.DataStore, _ *scan.Config, _ int) (scan.FileOpener, error) {
	schema, err := s.readSchema()
	if err != nil {
		return nil, err
	}
	return &parquetOpener{
		store:     store,
		schema:    schema,
		batchSize: int64(s.batchSizeOrDefault()),
		mem:       memory.DefaultAllocator,
	}, nil
}

func (s *ParquetSource) Repartitioned(targetPartitions int, minSize int64, outputOrdering ordering.LexOrdering, cfg *scan.Config) (*scan.Config, error) {
	return repartitionByRange(targetPartitions, minSize, outputOrdering, cfg), nil
}

func (s *ParquetSource) Statistics() (stats.Statistics, error) {
	return s.stats()
}

func (s *ParquetSource) FileType() string {
	return "parquet"
}

type parquetOpener struct {
	store     datastore.DataStore
	schema    *arrow.Schema
	batchSize int64
	mem       memory.Allocator
}

func (o *parquetOpener) Open(ctx context.Context, pf part.PartitionedFile) (array.RecordReader, error) {
	f, err := o.store.Open(ctx, pf.Location)
	if err != nil {
		return nil, err
	}
	rdr, err := file.NewParquetReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: error in file.NewParquetReader for %s: %s", utils.ErrData, pf.Location, err)
	}
	closer := closerFunc(func() error {
		return rdr.Close()
	})

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{BatchSize: o.batchSize}, o.mem)
	if err != nil {
		closer()
		return nil, fmt.Errorf("%w: error in pqarrow.NewFileReader for %s: %s", utils.ErrData, pf.Location, err)
	}
	columns, err := leafColumns(fr, o.schema)
	if err != nil {
		closer()
		return nil, fmt.Errorf("error resolving columns of %s: %w", pf.Location, err)
	}
	rowGroups, err := selectRowGroups(rdr, pf.Range)
	if err != nil {
		closer()
		return nil, err
	}
	if len(rowGroups) == 0 || len(columns) == 0 {
		return o.openEmpty(rdr, rowGroups, closer), nil
	}

	rr, err := fr.GetRecordReader(ctx, columns, rowGroups)
	if err != nil {
		closer()
		return nil, fmt.Errorf("error in GetRecordReader for %s: %w", pf.Location, err)
	}
	pull := func() (arrow.Record, error) {
		if !rr.Next() {
			if err := rr.Err(); err != nil {
				return nil, fmt.Errorf("error reading %s: %w", pf.Location, err)
			}
			return nil, nil
		}
		rec := rr.Record()
		rec.Retain()
		return rec, nil
	}
	return newSelectReader(o.schema, pull, closerFunc(func() error {
		rr.Release()
		return closer()
	})), nil
}

// openEmpty covers scans reading no columns, which only need row counts,
// and ranges holding no row group.
func (o *parquetOpener) openEmpty(rdr *file.Reader, rowGroups []int, closer closerFunc) array.RecordReader {
	var rows int64
	for _, rg := range rowGroups {
		rows += rdr.MetaData().RowGroup(rg).NumRows()
	}
	done := false
	pull := func() (arrow.Record, error) {
		if done || rows == 0 {
			return nil, nil
		}
		done = true
		return array.NewRecord(arrow.NewSchema(nil, nil), nil, rows), nil
	}
	return newSelectReader(o.schema, pull, closer)
}

// leafColumns maps the fields of schema onto parquet leaf column indices.
func leafColumns(fr *pqarrow.FileReader, schema *arrow.Schema) ([]int, error) {
	columns := make([]int, 0, schema.NumFields())
	for _, want := range schema.Fields() {
		idx := -1
		for _, sf := range fr.Manifest.Fields {
			if sf.Field != nil && strings.EqualFold(sf.Field.Name, want.Name) {
				idx = sf.ColIndex
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: column %q not found in parquet file", utils.ErrData, want.Name)
		}
		columns = append(columns, idx)
	}
	return columns, nil
}

// selectRowGroups returns every row group for a nil range, otherwise the
// row groups whose byte midpoint lies in [Start, End).
func selectRowGroups(rdr *file.Reader, r *part.FileRange) ([]int, error) {
	n := rdr.NumRowGroups()
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if r == nil {
			out = append(out, i)
			continue
		}
		rg := rdr.MetaData().RowGroup(i)
		if rg.NumColumns() == 0 {
			continue
		}
		col, err := rg.ColumnChunk(0)
		if err != nil {
			return nil, fmt.Errorf("error reading row group %d metadata: %w", i, err)
		}
		start := col.DataPageOffset()
		if col.HasDictionaryPage() && col.DictionaryPageOffset() > 0 && col.DictionaryPageOffset() < start {
			start = col.DictionaryPageOffset()
		}
		var size int64
		for c := 0; c < rg.NumColumns(); c++ {
			cc, err := rg.ColumnChunk(c)
			if err != nil {
				return nil, fmt.Errorf("error reading row group %d metadata: %w", i, err)
			}
			size += cc.TotalCompressedSize()
		}
		mid := start + size/2
		if mid >= r.Start && mid < r.End {
			out = append(out, i)
		}
	}
	return out, nil
}
