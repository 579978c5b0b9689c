package metastore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/danthegoodman1/icescan/utils"
	"github.com/rs/zerolog"
)

// MemoryMetaStore keeps tables in process memory. It is safe for
// concurrent use.
type MemoryMetaStore struct {
	mu     sync.RWMutex
	tables map[string]TableSchema
	files  map[string][]FileEntry
}

func NewMemoryMetaStore() *MemoryMetaStore {
	return &MemoryMetaStore{
		tables: map[string]TableSchema{},
		files:  map[string][]FileEntry{},
	}
}

func (ms *MemoryMetaStore) GetTableSchema(ctx context.Context, table string) (TableSchema, error) {
	zerolog.Ctx(ctx).Debug().Str("table", table).Msg("getting table schema")
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	ts, exists := ms.tables[table]
	if !exists {
		return TableSchema{}, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return ts, nil
}

func (ms *MemoryMetaStore) CreateTableSchema(ctx context.Context, ts TableSchema) error {
	zerolog.Ctx(ctx).Debug().Str("table", ts.Name).Msg("creating table schema")
	if err := ts.Check(); err != nil {
		return fmt.Errorf("invalid table schema: %w", err)
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, exists := ms.tables[ts.Name]; exists {
		return fmt.Errorf("%w: %s", ErrTableExists, ts.Name)
	}
	if ts.ID == "" {
		ts.ID = utils.GenRandomID("tbl_")
	}
	now := time.Now()
	ts.CreatedAt, ts.UpdatedAt = now, now
	ms.tables[ts.Name] = ts
	return nil
}

func (ms *MemoryMetaStore) ListFiles(ctx context.Context, table string) ([]FileEntry, error) {
	return ms.listFiles(ctx, table, nil)
}

func (ms *MemoryMetaStore) ListFilesInPartitions(ctx context.Context, table string, partitions []string) ([]FileEntry, error) {
	want := make(map[string]bool, len(partitions))
	for _, p := range partitions {
		want[p] = true
	}
	return ms.listFiles(ctx, table, want)
}

func (ms *MemoryMetaStore) listFiles(ctx context.Context, table string, partitions map[string]bool) ([]FileEntry, error) {
	zerolog.Ctx(ctx).Debug().Str("table", table).Int("partitions", len(partitions)).Msg("listing files")
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if _, exists := ms.tables[table]; !exists {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	files := make([]FileEntry, 0, len(ms.files[table]))
	for _, f := range ms.files[table] {
		if partitions != nil && !partitions[f.Partition] {
			continue
		}
		files = append(files, f)
	}
	sortFiles(files)
	return files, nil
}

func (ms *MemoryMetaStore) RegisterFile(ctx context.Context, table string, f FileEntry) error {
	zerolog.Ctx(ctx).Debug().Str("table", table).Str("file", f.Location).Msg("registering file")
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, exists := ms.tables[table]; !exists {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	files := ms.files[table]
	for i, existing := range files {
		if existing.Location == f.Location {
			files[i] = f
			return nil
		}
	}
	ms.files[table] = append(files, f)
	return nil
}

func (ms *MemoryMetaStore) Shutdown(context.Context) error {
	return nil
}

func sortFiles(files []FileEntry) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Partition != files[j].Partition {
			return files[i].Partition < files[j].Partition
		}
		return files[i].Location < files[j].Location
	})
}
