package datastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/source"
)

type (
	DiskDataStore struct {
		rootPath string
	}

	diskFile struct {
		*os.File
		size int64
	}

	sectionReadCloser struct {
		io.Reader
		io.Closer
	}
)

func NewDiskDataStore(rootPath string) (*DiskDataStore, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("error in filepath.Abs: %w", err)
	}
	dds := &DiskDataStore{
		rootPath: abs,
	}

	return dds, nil
}

func (f *diskFile) Size() int64 {
	return f.size
}

func (dds *DiskDataStore) path(location string) string {
	return filepath.Join(dds.rootPath, filepath.FromSlash(strings.TrimPrefix(location, "/")))
}

func (dds *DiskDataStore) Open(_ context.Context, location string) (File, error) {
	f, err := os.Open(dds.path(location))
	if err != nil {
		return nil, mapDiskError(err, location)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error in f.Stat: %w", err)
	}
	return &diskFile{File: f, size: info.Size()}, nil
}

func (dds *DiskDataStore) Get(ctx context.Context, location string) (io.ReadCloser, error) {
	return dds.Open(ctx, location)
}

func (dds *DiskDataStore) GetRange(ctx context.Context, location string, start, end int64) (io.ReadCloser, error) {
	f, err := dds.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	if end > f.Size() {
		end = f.Size()
	}
	if start > end {
		f.Close()
		return nil, fmt.Errorf("invalid range %d..%d for %s", start, end, location)
	}
	return sectionReadCloser{Reader: io.NewSectionReader(f, start, end-start), Closer: f}, nil
}

func (dds *DiskDataStore) Head(_ context.Context, location string) (ObjectMeta, error) {
	info, err := os.Stat(dds.path(location))
	if err != nil {
		return ObjectMeta{}, mapDiskError(err, location)
	}
	return ObjectMeta{
		Location:     location,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

func (dds *DiskDataStore) List(_ context.Context, prefix string) ([]ObjectMeta, error) {
	var objects []ObjectMeta
	root := dds.path(prefix)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("error in d.Info: %w", err)
		}
		rel, err := filepath.Rel(dds.rootPath, p)
		if err != nil {
			return fmt.Errorf("error in filepath.Rel: %w", err)
		}
		objects = append(objects, ObjectMeta{
			Location:     filepath.ToSlash(rel),
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error in filepath.WalkDir: %w", err)
	}
	return objects, nil
}

func (dds *DiskDataStore) Put(_ context.Context, location string, r io.Reader) error {
	p := dds.path(location)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("error in os.MkdirAll: %w", err)
	}
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("error in os.Create: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("error in io.Copy: %w", err)
	}
	return f.Close()
}

func (dds *DiskDataStore) OpenParquetFile(_ context.Context, location string) (source.ParquetFile, error) {
	pf, err := local.NewLocalFileReader(dds.path(location))
	if err != nil {
		return nil, fmt.Errorf("error in local.NewLocalFileReader: %w", err)
	}
	return pf, nil
}

func (dds *DiskDataStore) Shutdown(context.Context) error {
	return nil
}

func mapDiskError(err error, location string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	return fmt.Errorf("error opening %s: %w", location, err)
}
