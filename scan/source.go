package scan

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/danthegoodman1/icescan/datastore"
	"github.com/danthegoodman1/icescan/ordering"
	"github.com/danthegoodman1/icescan/part"
	"github.com/danthegoodman1/icescan/stats"
)

type (
	// FileSource is the file format a Config scans. Implementations are
	// immutable: every With method returns a new value.
	FileSource interface {
		WithBatchSize(batchSize int) FileSource
		// WithSchema binds the file schema
		WithSchema(schema *arrow.Schema) FileSource
		// WithProjection binds the file columns cfg reads
		WithProjection(cfg *Config) FileSource
		WithStatistics(s stats.Statistics) FileSource

		CreateFileOpener(store datastore.DataStore, cfg *Config, partition int) (FileOpener, error)
		// Repartitioned returns cfg with its files regrouped into
		// targetPartitions groups, or nil when the format keeps the grouping
		Repartitioned(targetPartitions int, repartitionFileMinSize int64, outputOrdering ordering.LexOrdering, cfg *Config) (*Config, error)

		Statistics() (stats.Statistics, error)
		FileType() string
	}

	// FileOpener decodes one file, or the byte range of it, into batches
	// holding the projected file columns only.
	FileOpener interface {
		Open(ctx context.Context, file part.PartitionedFile) (array.RecordReader, error)
	}
)
