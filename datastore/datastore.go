package datastore

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/danthegoodman1/icescan/gologger"
	"github.com/xitongsys/parquet-go/source"
)

var (
	logger = gologger.NewComponentLogger("datastore")

	ErrNotFound = errors.New("object not found")
	ErrReadOnly = errors.New("object is read only")
)

type (
	ObjectMeta struct {
		Location     string
		Size         int64
		LastModified time.Time
	}

	// File is a random access handle on a single object.
	File interface {
		io.Reader
		io.ReaderAt
		io.Seeker
		io.Closer
		Size() int64
	}

	// DataStore reads and writes objects by location. Locations are slash
	// separated paths relative to the root of the store.
	DataStore interface {
		Get(ctx context.Context, location string) (io.ReadCloser, error)
		// GetRange reads the half open byte range [start, end)
		GetRange(ctx context.Context, location string, start, end int64) (io.ReadCloser, error)
		Open(ctx context.Context, location string) (File, error)
		Head(ctx context.Context, location string) (ObjectMeta, error)
		// List returns every object under prefix, ordered by location
		List(ctx context.Context, prefix string) ([]ObjectMeta, error)
		Put(ctx context.Context, location string, r io.Reader) error

		Shutdown(ctx context.Context) error
	}

	// ParquetFileOpener is implemented by stores with a native parquet-go
	// reader.
	ParquetFileOpener interface {
		OpenParquetFile(ctx context.Context, location string) (source.ParquetFile, error)
	}
)

// OpenParquetFile returns a parquet-go file for location, preferring the
// store's own reader.
func OpenParquetFile(ctx context.Context, store DataStore, location string) (source.ParquetFile, error) {
	if pfo, ok := store.(ParquetFileOpener); ok {
		return pfo.OpenParquetFile(ctx, location)
	}
	return NewParquetFile(ctx, store, location)
}
