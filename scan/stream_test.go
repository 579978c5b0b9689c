package scan

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/danthegoodman1/icescan/datastore"
	"github.com/danthegoodman1/icescan/ordering"
	"github.com/danthegoodman1/icescan/part"
	"github.com/danthegoodman1/icescan/partitioner"
	"github.com/danthegoodman1/icescan/stats"
	"github.com/danthegoodman1/icescan/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSource serves batches held in memory, keyed by file location.
type memSource struct {
	batches    map[string][]arrow.Record
	batchSize  int
	schema     *arrow.Schema
	statistics stats.Statistics
}

func (m *memSource) WithBatchSize(n int) FileSource {
	out := *m
	out.batchSize = n
	return &out
}

func (m *memSource) WithSchema(schema *arrow.Schema) FileSource {
	out := *m
	out.schema = schema
	return &out
}

func (m *memSource) WithProjection(*Config) FileSource {
	out := *m
	return &out
}

func (m *memSource) WithStatistics(s stats.Statistics) FileSource {
	out := *m
	out.statistics = s
	return &out
}

func (m *memSource) CreateFileOpener(_ datastore.DataStore, cfg *Config, _ int) (FileOpener, error) {
	return &memOpener{source: m, indices: cfg.FileColumnProjectionIndices(), schema: cfg.ProjectedFileSchema()}, nil
}

func (m *memSource) Repartitioned(int, int64, ordering.LexOrdering, *Config) (*Config, error) {
	return nil, nil
}

func (m *memSource) Statistics() (stats.Statistics, error) {
	return m.statistics, nil
}

func (m *memSource) FileType() string {
	return "mem"
}

type memOpener struct {
	source  *memSource
	indices []int
	schema  *arrow.Schema
}

func (o *memOpener) Open(_ context.Context, f part.PartitionedFile) (array.RecordReader, error) {
	recs, ok := o.source.batches[f.Location]
	if !ok {
		return nil, fmt.Errorf("%w: %s", datastore.ErrNotFound, f.Location)
	}
	var projected []arrow.Record
	for _, rec := range recs {
		if o.indices == nil {
			rec.Retain()
			projected = append(projected, rec)
			continue
		}
		cols := make([]arrow.Array, len(o.indices))
		for i, idx := range o.indices {
			cols[i] = rec.Column(idx)
		}
		projected = append(projected, array.NewRecord(o.schema, cols, rec.NumRows()))
	}
	r, err := array.NewRecordReader(o.schema, projected)
	for _, rec := range projected {
		rec.Release()
	}
	return r, err
}

var streamFileSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int32},
	{Name: "v", Type: arrow.PrimitiveTypes.Int32},
}, nil)

func idBatch(start, n int) arrow.Record {
	ids := make([]int32, n)
	vs := make([]int32, n)
	for i := range ids {
		ids[i] = int32(start + i)
		vs[i] = int32((start + i) * 10)
	}
	idArr := int32Array(memory.DefaultAllocator, ids...)
	vArr := int32Array(memory.DefaultAllocator, vs...)
	defer idArr.Release()
	defer vArr.Release()
	return array.NewRecord(streamFileSchema, []arrow.Array{idArr, vArr}, int64(n))
}

func streamConfig(t *testing.T) (*Config, Env) {
	t.Helper()
	src := &memSource{batches: map[string][]arrow.Record{
		"y=2021/a": {idBatch(0, 3), idBatch(3, 3)},
		"y=2022/b": {idBatch(6, 2)},
		"y=2022/c": {idBatch(8, 4)},
	}}
	yearCol := partitioner.Catalog{{Name: "y", Type: partitioner.WrapPartitionType(arrow.BinaryTypes.String)}}
	file := func(loc string) part.PartitionedFile {
		values, err := partitioner.ParsePartitionValues(loc, yearCol)
		require.NoError(t, err)
		return part.NewPartitionedFile(loc, 10).WithPartitionValues(values)
	}

	cfg := NewConfig("file://", streamFileSchema, src).
		WithTablePartitionCols(yearCol).
		WithFileGroup(part.FileGroup{file("y=2021/a"), file("y=2022/b")}).
		WithFileGroup(part.FileGroup{file("y=2022/c")})

	dds, err := datastore.NewDiskDataStore(t.TempDir())
	require.NoError(t, err)
	registry := datastore.NewRegistry()
	require.NoError(t, registry.Register("file://", dds))
	return cfg, Env{Registry: registry, BatchSize: 1024}
}

func readAll(t *testing.T, s *FileStream) (rows []int32, years []string) {
	t.Helper()
	defer s.Release()
	for s.Next() {
		rec := s.Record()
		require.True(t, rec.Schema().Equal(s.Schema()))
		ids := rec.Column(0).(*array.Int32)
		for i := 0; i < ids.Len(); i++ {
			rows = append(rows, ids.Value(i))
		}
		years = append(years, dictValues(t, rec.Column(int(rec.NumCols())-1))...)
	}
	require.NoError(t, s.Err())
	return
}

func TestFileStream(t *testing.T) {
	cfg, env := streamConfig(t)

	s, err := cfg.Open(context.Background(), 0, env)
	require.NoError(t, err)
	rows, years := readAll(t, s)
	assert.Equal(t, []int32{0, 1, 2, 3, 4, 5, 6, 7}, rows)
	assert.Equal(t, []string{"2021", "2021", "2021", "2021", "2021", "2021", "2022", "2022"}, years)

	// projection that leaves out a file column and reorders the partition
	s, err = cfg.WithProjection([]int{2, 0}).Open(context.Background(), 1, env)
	require.NoError(t, err)
	defer s.Release()
	require.True(t, s.Next())
	rec := s.Record()
	assert.Equal(t, "y", rec.ColumnName(0))
	assert.Equal(t, "id", rec.ColumnName(1))
	assert.Equal(t, int64(4), rec.NumRows())
	assert.False(t, s.Next())
	require.NoError(t, s.Err())
}

func TestFileStreamLimit(t *testing.T) {
	cfg, env := streamConfig(t)

	s, err := cfg.WithLimit(utils.Ptr(int64(4))).Open(context.Background(), 0, env)
	require.NoError(t, err)
	rows, _ := readAll(t, s)
	assert.Equal(t, []int32{0, 1, 2, 3}, rows)

	s, err = cfg.WithLimit(utils.Ptr(int64(0))).Open(context.Background(), 0, env)
	require.NoError(t, err)
	rows, _ = readAll(t, s)
	assert.Empty(t, rows)
}

func TestFileStreamErrors(t *testing.T) {
	cfg, env := streamConfig(t)

	_, err := cfg.Open(context.Background(), 5, env)
	assert.Error(t, err)

	_, err = cfg.Open(context.Background(), 0, Env{Registry: datastore.NewRegistry()})
	assert.True(t, errors.Is(err, datastore.ErrNoStore))

	missing := cfg.WithFile(part.NewPartitionedFile("y=2023/missing", 1).WithPartitionValues([]scalar.Scalar{scalar.NewStringScalar("2023")}))
	s, err := missing.Open(context.Background(), 2, env)
	require.NoError(t, err)
	assert.False(t, s.Next())
	assert.True(t, errors.Is(s.Err(), datastore.ErrNotFound))
	s.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err = cfg.Open(ctx, 0, env)
	require.NoError(t, err)
	assert.False(t, s.Next())
	assert.True(t, errors.Is(s.Err(), context.Canceled))
	s.Release()
}

func TestCollect(t *testing.T) {
	cfg, env := streamConfig(t)

	results, err := Collect(context.Background(), cfg, env, 4)
	require.NoError(t, err)
	require.Len(t, results, 2)

	count := func(batches []arrow.Record) (n int64) {
		for _, b := range batches {
			n += b.NumRows()
			b.Release()
		}
		return
	}
	assert.Equal(t, int64(8), count(results[0]))
	assert.Equal(t, int64(4), count(results[1]))

	broken := cfg.WithFile(part.NewPartitionedFile("y=2023/missing", 1).WithPartitionValues([]scalar.Scalar{scalar.NewStringScalar("2023")}))
	_, err = Collect(context.Background(), broken, env, 2)
	assert.True(t, errors.Is(err, datastore.ErrNotFound))
}
