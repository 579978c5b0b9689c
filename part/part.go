package part

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/danthegoodman1/icescan/stats"
)

type (
	// PartitionedFile is a single file to scan, or a byte range of it.
	PartitionedFile struct {
		// Location is the path of the file within its object store
		Location string
		// Size is the total size of the file in bytes
		Size int64
		// Range restricts the scan to part of the file. Nil reads it whole.
		Range *FileRange
		// PartitionValues are the values of the table partition columns for
		// this file, in partition catalog order
		PartitionValues []scalar.Scalar
		// Statistics has one column entry per field of the file schema
		Statistics *stats.Statistics
		// Extensions carries format specific data through planning untouched
		Extensions any
		// MetadataSizeHint is how many bytes from the end hold the footer
		MetadataSizeHint *int64
	}

	// FileRange is the half open byte range [Start, End).
	FileRange struct {
		Start int64
		End   int64
	}

	// FileGroup is read sequentially, in order, by one scan task.
	FileGroup []PartitionedFile
)

func NewPartitionedFile(location string, size int64) PartitionedFile {
	return PartitionedFile{
		Location: location,
		Size:     size,
	}
}

func (f PartitionedFile) WithRange(start, end int64) PartitionedFile {
	f.Range = &FileRange{Start: start, End: end}
	return f
}

func (f PartitionedFile) WithStatistics(s stats.Statistics) PartitionedFile {
	f.Statistics = &s
	return f
}

func (f PartitionedFile) WithPartitionValues(values []scalar.Scalar) PartitionedFile {
	f.PartitionValues = append([]scalar.Scalar(nil), values...)
	return f
}

// ReadSize is how many bytes a scan of this file covers.
func (f PartitionedFile) ReadSize() int64 {
	if f.Range != nil {
		return f.Range.End - f.Range.Start
	}
	return f.Size
}

func (f PartitionedFile) String() string {
	if f.Range != nil {
		return fmt.Sprintf("%s:%d..%d", f.Location, f.Range.Start, f.Range.End)
	}
	return f.Location
}

// Clone copies the group so appends to the result never alias g.
func (g FileGroup) Clone() FileGroup {
	return append(FileGroup(nil), g...)
}

func (g FileGroup) Size() (total int64) {
	for _, f := range g {
		total += f.ReadSize()
	}
	return
}

func CloneGroups(groups []FileGroup) []FileGroup {
	if groups == nil {
		return nil
	}
	out := make([]FileGroup, len(groups))
	for i, g := range groups {
		out[i] = g.Clone()
	}
	return out
}

// Flatten concatenates groups in order.
func Flatten(groups []FileGroup) []PartitionedFile {
	var files []PartitionedFile
	for _, g := range groups {
		files = append(files, g...)
	}
	return files
}
