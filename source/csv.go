package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/danthegoodman1/icescan/datastore"
	"github.com/danthegoodman1/icescan/ordering"
	"github.com/danthegoodman1/icescan/part"
	"github.com/danthegoodman1/icescan/scan"
	"github.com/danthegoodman1/icescan/stats"
	"github.com/danthegoodman1/icescan/utils"
)

type CSVSource struct {
	binding
	HasHeader bool
	Delimiter rune
}

func NewCSVSource(hasHeader bool, delimiter rune) *CSVSource {
	if delimiter == 0 {
		delimiter = ','
	}
	return &CSVSource{HasHeader: hasHeader, Delimiter: delimiter}
}

func (s *CSVSource) WithBatchSize(n int) scan.FileSource {
	out := *s
	out.batchSize = n
	return &out
}

func (s *CSVSource) WithSchema(schema *arrow.Schema) scan.FileSource {
	out := *s
	out.schema = schema
	return &out
}

func (s *CSVSource) WithProjection(cfg *scan.Config) scan.FileSource {
	out := *s
	out.binding = s.withProjection(cfg)
	return &out
}

func (s *CSVSource) WithStatistics(st stats.Statistics) scan.FileSource {
	out := *s
	out.binding = s.withStatistics(st)
	return &out
}

func (s *CSVSource) CreateFileOpener(store datastore.DataStore, cfg *scan.Config, _ int) (scan.FileOpener, error) {
	if s.schema == nil {
		return nil, fmt.Errorf("csv source has no schema bound")
	}
	projected, err := s.readSchema()
	if err != nil {
		return nil, err
	}
	return &csvOpener{
		store:       store,
		fileSchema:  s.schema,
		projected:   projected,
		hasHeader:   s.HasHeader,
		delimiter:   s.Delimiter,
		batchSize:   s.batchSizeOrDefault(),
		compression: cfg.FileCompressionType,
	}, nil
}

// Repartitioned splits files on byte ranges. Compressed files, and files
// whose values may hold newlines, cannot be split on line boundaries.
func (s *CSVSource) Repartitioned(targetPartitions int, minSize int64, outputOrdering ordering.LexOrdering, cfg *scan.Config) (*scan.Config, error) {
	if cfg.FileCompressionType.IsCompressed() || cfg.NewlinesInValues {
		return nil, nil
	}
	return repartitionByRange(targetPartitions, minSize, outputOrdering, cfg), nil
}

func (s *CSVSource) Statistics() (stats.Statistics, error) {
	return s.stats()
}

func (s *CSVSource) FileType() string {
	return "csv"
}

type csvOpener struct {
	store       datastore.DataStore
	fileSchema  *arrow.Schema
	projected   *arrow.Schema
	hasHeader   bool
	delimiter   rune
	batchSize   int
	compression scan.FileCompressionType
}

func (o *csvOpener) Open(ctx context.Context, file part.PartitionedFile) (array.RecordReader, error) {
	body, err := o.body(ctx, file)
	if err != nil {
		return nil, err
	}

	// only the range holding the first line sees the header
	header := o.hasHeader && (file.Range == nil || file.Range.Start == 0)
	r := csv.NewReader(body, o.fileSchema,
		csv.WithHeader(header),
		csv.WithComma(o.delimiter),
		csv.WithChunk(o.batchSize),
		csv.WithNullReader(true, ""),
	)
	pull := func() (arrow.Record, error) {
		if !r.Next() {
			if err := r.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: error reading csv %s: %s", utils.ErrData, file, err)
			}
			return nil, nil
		}
		rec := r.Record()
		rec.Retain()
		return rec, nil
	}
	return newSelectReader(o.projected, pull, closerFunc(func() error {
		r.Release()
		return body.Close()
	})), nil
}

// body returns the bytes of the lines starting within the file range.
func (o *csvOpener) body(ctx context.Context, file part.PartitionedFile) (io.ReadCloser, error) {
	if file.Range == nil {
		rc, err := o.store.Get(ctx, file.Location)
		if err != nil {
			return nil, err
		}
		if !o.compression.IsCompressed() {
			return rc, nil
		}
		dec, err := o.compression.Decompress(rc)
		if err != nil {
			rc.Close()
			return nil, err
		}
		return readCloser{Reader: dec, close: func() error {
			dec.Close()
			return rc.Close()
		}}, nil
	}
	if o.compression.IsCompressed() {
		return nil, fmt.Errorf("%w: cannot read a byte range of %s compressed file %s", utils.ErrPlanning, o.compression, file.Location)
	}

	f, err := o.store.Open(ctx, file.Location)
	if err != nil {
		return nil, err
	}
	start, err := lineStart(f, file.Range.Start)
	if err != nil {
		f.Close()
		return nil, err
	}
	end, err := lineStart(f, file.Range.End)
	if err != nil {
		f.Close()
		return nil, err
	}
	if end < start {
		end = start
	}
	return readCloser{Reader: io.NewSectionReader(f, start, end-start), close: f.Close}, nil
}

// lineStart returns the offset of the first line that begins at or after
// pos. Offset 0 and the end of the file are line starts.
func lineStart(f datastore.File, pos int64) (int64, error) {
	if pos <= 0 {
		return 0, nil
	}
	size := f.Size()
	if pos >= size {
		return size, nil
	}
	// a line begins at pos when the byte before it ends a line
	br := bufio.NewReader(io.NewSectionReader(f, pos-1, size-pos+1))
	offset := pos - 1
	for {
		b, err := br.ReadByte()
		if errors.Is(err, io.EOF) {
			return size, nil
		}
		if err != nil {
			return 0, fmt.Errorf("error finding line start: %w", err)
		}
		offset++
		if b == '\n' {
			return offset, nil
		}
	}
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error {
	return r.close()
}
