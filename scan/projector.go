package scan

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/danthegoodman1/icescan/stats"
	"github.com/danthegoodman1/icescan/utils"
)

// PartitionColumnProjector inserts constant partition columns into batches
// decoded from a file. It is built once per scan partition and is not safe
// for concurrent use.
type PartitionColumnProjector struct {
	schema *arrow.Schema
	// partitionIndex[i] is the catalog position broadcast at output column
	// i, or -1 when the column is copied from the decoded batch
	partitionIndex []int
	fileColumns    int
	mem            memory.Allocator
	// zero filled dictionary keys by key width in bytes
	zeroKeys map[int][]byte
}

// NewPartitionColumnProjector maps every field of projectedSchema to either
// the next decoded file column or the partition column of the same name.
func NewPartitionColumnProjector(projectedSchema *arrow.Schema, partitionColNames []string) *PartitionColumnProjector {
	p := &PartitionColumnProjector{
		schema:         projectedSchema,
		partitionIndex: make([]int, projectedSchema.NumFields()),
		mem:            memory.DefaultAllocator,
		zeroKeys:       map[int][]byte{},
	}
	for i, f := range projectedSchema.Fields() {
		p.partitionIndex[i] = -1
		for j, name := range partitionColNames {
			if f.Name == name {
				p.partitionIndex[i] = j
				break
			}
		}
		if p.partitionIndex[i] < 0 {
			p.fileColumns++
		}
	}
	return p
}

func (p *PartitionColumnProjector) WithAllocator(mem memory.Allocator) *PartitionColumnProjector {
	p.mem = mem
	return p
}

// Project returns batch with the partition columns inserted at their schema
// positions, each repeating the file's value for every row. The caller
// releases both records.
func (p *PartitionColumnProjector) Project(batch arrow.Record, partitionValues []scalar.Scalar) (arrow.Record, error) {
	if int(batch.NumCols()) != p.fileColumns {
		return nil, fmt.Errorf("%w: unexpected batch schema from file, expected %d columns but got %d", utils.ErrData, p.fileColumns, batch.NumCols())
	}

	numRows := int(batch.NumRows())
	cols := make([]arrow.Array, 0, len(p.partitionIndex))
	var built []arrow.Array
	defer func() {
		for _, arr := range built {
			arr.Release()
		}
	}()

	next := 0
	for i, j := range p.partitionIndex {
		if j < 0 {
			cols = append(cols, batch.Column(next))
			next++
			continue
		}
		if j >= len(partitionValues) {
			return nil, fmt.Errorf("%w: missing partition value %d for column %q, got %d values", utils.ErrData, j, p.schema.Field(i).Name, len(partitionValues))
		}
		arr, err := p.broadcast(p.schema.Field(i).Type, partitionValues[j], numRows)
		if err != nil {
			return nil, fmt.Errorf("%w: error building column %q: %s", utils.ErrData, p.schema.Field(i).Name, err)
		}
		built = append(built, arr)
		cols = append(cols, arr)
	}

	if len(cols) != p.schema.NumFields() {
		return nil, fmt.Errorf("%w: assembled %d columns for a schema of %d fields", utils.ErrData, len(cols), p.schema.NumFields())
	}
	return array.NewRecord(p.schema, cols, int64(numRows)), nil
}

// broadcast builds n copies of v as an array of dt. Values that do not match
// the dictionary encoding of dt are re-encoded.
func (p *PartitionColumnProjector) broadcast(dt arrow.DataType, v scalar.Scalar, n int) (arrow.Array, error) {
	decoded, err := stats.Decode(v)
	if err != nil {
		return nil, err
	}

	dict, isDict := dt.(*arrow.DictionaryType)
	if !isDict {
		if !arrow.TypeEqual(decoded.DataType(), dt) {
			return nil, fmt.Errorf("partition value of type %s does not match field type %s", decoded.DataType(), dt)
		}
		return scalar.MakeArrayFromScalar(decoded, n, p.mem)
	}

	if !arrow.TypeEqual(decoded.DataType(), dict.ValueType) {
		return nil, fmt.Errorf("partition value of type %s does not match dictionary value type %s", decoded.DataType(), dict.ValueType)
	}
	keys, err := p.zeroKeyArray(dict.IndexType, n)
	if err != nil {
		return nil, err
	}
	defer keys.Release()
	values, err := scalar.MakeArrayFromScalar(decoded, 1, p.mem)
	if err != nil {
		return nil, err
	}
	defer values.Release()
	return array.NewDictionaryArray(dict, keys, values), nil
}

func (p *PartitionColumnProjector) zeroKeyArray(indexType arrow.DataType, n int) (arrow.Array, error) {
	fw, ok := indexType.(arrow.FixedWidthDataType)
	if !ok || !arrow.IsInteger(indexType.ID()) {
		return nil, fmt.Errorf("unsupported dictionary index type %s", indexType)
	}
	width := fw.BitWidth() / 8
	size := n * width
	keys := p.zeroKeys[width]
	if len(keys) < size {
		keys = make([]byte, size)
		p.zeroKeys[width] = keys
	}
	data := array.NewData(indexType, n, []*memory.Buffer{nil, memory.NewBufferBytes(keys[:size])}, nil, 0, 0)
	defer data.Release()
	return array.MakeFromData(data), nil
}
