package source

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/danthegoodman1/icescan/datastore"
	"github.com/danthegoodman1/icescan/ordering"
	"github.com/danthegoodman1/icescan/part"
	"github.com/danthegoodman1/icescan/scan"
	"github.com/danthegoodman1/icescan/stats"
)

// ArrowSource reads files in the Arrow IPC file format. Files are always
// read whole.
type ArrowSource struct {
	binding
}

func NewArrowSource() *ArrowSource {
	return &ArrowSource{}
}

func (s *ArrowSource) WithBatchSize(n int) scan.FileSource {
	out := *s
	out.batchSize = n
	return &out
}

func (s *ArrowSource) WithSchema(schema *arrow.Schema) scan.FileSource {
	out := *s
	out.schema = schema
	return &out
}

func (s *ArrowSource) WithProjection(cfg *scan.Config) scan.FileSource {
	out := *s
	out.binding = s.withProjection(cfg)
	return &out
}

func (s *ArrowSource) WithStatistics(st stats.Statistics) scan.FileSource {
	out := *s
	out.binding = s.withStatistics(st)
	return &out
}

func (s *ArrowSource) CreateFileOpener(store datastore.DataStore, _ *scan.Config, _ int) (scan.FileOpener, error) {
	schema, err := s.readSchema()
	if err != nil {
		return nil, err
	}
	return &arrowOpener{store: store, schema: schema}, nil
}

// Repartitioned keeps the grouping, IPC files are not split.
func (s *ArrowSource) Repartitioned(int, int64, ordering.LexOrdering, *scan.Config) (*scan.Config, error) {
	return nil, nil
}

func (s *ArrowSource) Statistics() (stats.Statistics, error) {
	return s.stats()
}

func (s *ArrowSource) FileType() string {
	return "arrow"
}

type arrowOpener struct {
	store  datastore.DataStore
	schema *arrow.Schema
}

func (o *arrowOpener) Open(ctx context.Context, file part.PartitionedFile) (array.RecordReader, error) {
	f, err := o.store.Open(ctx, file.Location)
	if err != nil {
		return nil, err
	}
	fr, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error in ipc.NewFileReader: %w", err)
	}

	next := 0
	pull := func() (arrow.Record, error) {
		if next >= fr.NumRecords() {
			return nil, nil
		}
		rec, err := fr.RecordAt(next)
		if err != nil {
			return nil, fmt.Errorf("error reading record batch %d: %w", next, err)
		}
		next++
		return rec, nil
	}
	return newSelectReader(o.schema, pull, closerFunc(func() error {
		if err := fr.Close(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})), nil
}

type closerFunc func() error

func (c closerFunc) Close() error {
	return c()
}
