package scan

import (
	"compress/bzip2"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type FileCompressionType uint8

const (
	Uncompressed FileCompressionType = iota
	Gzip
	Bzip2
	Zstd
)

func (c FileCompressionType) String() string {
	switch c {
	case Gzip:
		return "GZIP"
	case Bzip2:
		return "BZIP2"
	case Zstd:
		return "ZSTD"
	default:
		return "UNCOMPRESSED"
	}
}

// ParseFileCompressionType accepts the names returned by String, case
// insensitively. An empty string is Uncompressed.
func ParseFileCompressionType(s string) (FileCompressionType, error) {
	switch strings.ToUpper(s) {
	case "", "UNCOMPRESSED":
		return Uncompressed, nil
	case "GZIP", "GZ":
		return Gzip, nil
	case "BZIP2", "BZ2":
		return Bzip2, nil
	case "ZSTD":
		return Zstd, nil
	}
	return Uncompressed, fmt.Errorf("unknown compression type %q", s)
}

func (c FileCompressionType) IsCompressed() bool {
	return c != Uncompressed
}

// Extension is the file suffix used for this compression, including the dot.
func (c FileCompressionType) Extension() string {
	switch c {
	case Gzip:
		return ".gz"
	case Bzip2:
		return ".bz2"
	case Zstd:
		return ".zst"
	default:
		return ""
	}
}

// Decompress wraps r with the matching decoder. Closing the result does not
// close r.
func (c FileCompressionType) Decompress(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case Uncompressed:
		return io.NopCloser(r), nil
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("error in gzip.NewReader: %w", err)
		}
		return gr, nil
	case Bzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("error in zstd.NewReader: %w", err)
		}
		return zr.IOReadCloser(), nil
	}
	return nil, fmt.Errorf("unsupported compression type %d", c)
}
