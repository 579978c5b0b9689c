package scan

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/danthegoodman1/icescan/datastore"
	"github.com/danthegoodman1/icescan/gologger"
	"github.com/danthegoodman1/icescan/metrics"
	"github.com/danthegoodman1/icescan/part"
	"github.com/danthegoodman1/icescan/utils"
	"github.com/rs/zerolog"
)

const DefaultBatchSize = 8192

// Env carries what Open needs beyond the Config.
type Env struct {
	Registry  *datastore.Registry
	BatchSize int
}

// Open starts reading partition, the file group of the same index.
func (c *Config) Open(ctx context.Context, partition int, env Env) (*FileStream, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scan config: %w", err)
	}
	if partition < 0 || partition >= len(c.FileGroups) {
		return nil, fmt.Errorf("partition %d out of range for %d file groups", partition, len(c.FileGroups))
	}
	if env.Registry == nil {
		return nil, fmt.Errorf("no object store registry")
	}
	store, err := env.Registry.Get(c.ObjectStoreURL)
	if err != nil {
		return nil, fmt.Errorf("error resolving object store: %w", err)
	}

	batchSize := env.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	src := c.Source.WithBatchSize(batchSize).WithSchema(c.FileSchema).WithProjection(c)
	opener, err := src.CreateFileOpener(store, c, partition)
	if err != nil {
		return nil, fmt.Errorf("error in CreateFileOpener: %w", err)
	}

	return NewFileStream(ctx, c, partition, opener), nil
}

// FileStream reads the files of one partition in order and yields batches
// matching the projected schema. Any error ends the stream.
type FileStream struct {
	ctx       context.Context
	logger    zerolog.Logger
	schema    *arrow.Schema
	files     part.FileGroup
	opener    FileOpener
	projector *PartitionColumnProjector
	fileType  string

	limit     bool
	remaining int64

	next   int
	file   part.PartitionedFile
	reader array.RecordReader
	cur    arrow.Record
	err    error
	done   bool
}

func NewFileStream(ctx context.Context, cfg *Config, partition int, opener FileOpener) *FileStream {
	schema := cfg.ProjectedSchema()
	streamID := utils.GenKSortedID("stm_")
	ctx = context.WithValue(ctx, gologger.StreamIDKey, streamID)

	fileType := "unknown"
	if cfg.Source != nil {
		fileType = cfg.Source.FileType()
	}

	s := &FileStream{
		ctx:       ctx,
		logger:    zerolog.Ctx(ctx).With().Str("streamID", streamID).Int("partition", partition).Str("fileType", fileType).Logger(),
		schema:    schema,
		files:     cfg.FileGroups[partition].Clone(),
		opener:    opener,
		projector: NewPartitionColumnProjector(schema, cfg.TablePartitionCols.Names()),
		fileType:  fileType,
	}
	if cfg.Limit != nil {
		s.limit = true
		s.remaining = *cfg.Limit
	}
	return s
}

func (s *FileStream) Schema() *arrow.Schema {
	return s.schema
}

// Next advances to the next batch. The previous batch is released.
func (s *FileStream) Next() bool {
	if s.cur != nil {
		s.cur.Release()
		s.cur = nil
	}
	if s.done {
		return false
	}

	for {
		if err := s.ctx.Err(); err != nil {
			s.fail("cancel", err)
			return false
		}
		if s.limit && s.remaining <= 0 {
			s.finish()
			return false
		}

		if s.reader == nil {
			if s.next >= len(s.files) {
				s.finish()
				return false
			}
			s.file = s.files[s.next]
			s.next++
			r, err := s.opener.Open(s.ctx, s.file)
			if err != nil {
				s.fail("open", fmt.Errorf("error opening %s: %w", s.file, err))
				return false
			}
			metrics.FilesOpened.WithLabelValues(s.fileType).Inc()
			s.logger.Debug().Str("file", s.file.String()).Msg("opened file")
			s.reader = r
		}

		if !s.reader.Next() {
			if err := s.reader.Err(); err != nil {
				s.fail("decode", fmt.Errorf("error reading %s: %w", s.file, err))
				return false
			}
			s.reader.Release()
			s.reader = nil
			continue
		}

		batch := s.reader.Record()
		if batch.NumRows() == 0 {
			continue
		}
		out, err := s.projector.Project(batch, s.file.PartitionValues)
		if err != nil {
			s.fail("project", fmt.Errorf("error projecting batch of %s: %w", s.file, err))
			return false
		}
		if s.limit {
			if out.NumRows() > s.remaining {
				sliced := out.NewSlice(0, s.remaining)
				out.Release()
				out = sliced
			}
			s.remaining -= out.NumRows()
		}

		metrics.BatchesEmitted.Inc()
		metrics.RowsEmitted.Add(float64(out.NumRows()))
		s.cur = out
		return true
	}
}

// Record is valid until the next call to Next or Release.
func (s *FileStream) Record() arrow.Record {
	return s.cur
}

func (s *FileStream) Err() error {
	return s.err
}

func (s *FileStream) fail(stage string, err error) {
	metrics.StreamErrors.WithLabelValues(stage).Inc()
	s.logger.Error().Err(err).Str("stage", stage).Msg("scan stream failed")
	s.err = err
	s.finish()
}

func (s *FileStream) finish() {
	s.done = true
	if s.reader != nil {
		s.reader.Release()
		s.reader = nil
	}
}

// Release frees the current batch and any open reader.
func (s *FileStream) Release() {
	if s.cur != nil {
		s.cur.Release()
		s.cur = nil
	}
	s.finish()
}
