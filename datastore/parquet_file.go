package datastore

import (
	"bytes"
	"context"

	"github.com/xitongsys/parquet-go/source"
)

// ParquetFile adapts a store File to the parquet-go reader interface. It
// cannot be written.
type ParquetFile struct {
	File
	ctx      context.Context
	store    DataStore
	location string
}

func NewParquetFile(ctx context.Context, store DataStore, location string) (*ParquetFile, error) {
	f, err := store.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	return &ParquetFile{File: f, ctx: ctx, store: store, location: location}, nil
}

// Open opens another handle. parquet-go opens one per column reader.
func (p *ParquetFile) Open(name string) (source.ParquetFile, error) {
	if name == "" {
		name = p.location
	}
	return NewParquetFile(p.ctx, p.store, name)
}

func (p *ParquetFile) Create(string) (source.ParquetFile, error) {
	return nil, ErrReadOnly
}

func (p *ParquetFile) Write([]byte) (int, error) {
	return 0, ErrReadOnly
}

// BytesParquetFile serves a parquet file held in memory.
type BytesParquetFile struct {
	*bytes.Reader
	b []byte
}

func NewBytesParquetFile(b []byte) *BytesParquetFile {
	return &BytesParquetFile{Reader: bytes.NewReader(b), b: b}
}

func (p *BytesParquetFile) Open(string) (source.ParquetFile, error) {
	return NewBytesParquetFile(p.b), nil
}

func (p *BytesParquetFile) Create(string) (source.ParquetFile, error) {
	return nil, ErrReadOnly
}

func (p *BytesParquetFile) Write([]byte) (int, error) {
	return 0, ErrReadOnly
}

func (p *BytesParquetFile) Close() error {
	return nil
}
