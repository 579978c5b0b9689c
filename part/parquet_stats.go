package part

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/danthegoodman1/icescan/stats"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
)

// ReadParquetStatistics reads the footer of pf and summarizes it against
// schema. pf is not closed.
func ReadParquetStatistics(pf source.ParquetFile, schema *arrow.Schema) (stats.Statistics, error) {
	pr, err := reader.NewParquetReader(pf, nil, 1)
	if err != nil {
		return stats.Statistics{}, fmt.Errorf("error in reader.NewParquetReader: %w", err)
	}
	defer pr.ReadStop()

	return StatisticsFromParquetFooter(pr.Footer, schema)
}

// StatisticsFromParquetFooter merges the row group statistics of a parquet
// footer into one entry per field of schema. Columns are matched on their
// top level name, case insensitively. Columns without usable statistics in
// any row group stay absent.
func StatisticsFromParquetFooter(footer *parquet.FileMetaData, schema *arrow.Schema) (stats.Statistics, error) {
	if footer == nil {
		return stats.Statistics{}, fmt.Errorf("nil parquet footer")
	}
	if len(footer.RowGroups) == 0 {
		s := stats.NewUnknown(schema)
		s.NumRows = stats.ExactOf(footer.NumRows)
		s.TotalByteSize = stats.ExactOf(int64(0))
		return s, nil
	}

	var merged stats.Statistics
	for i, rg := range footer.RowGroups {
		rgStats := stats.Statistics{
			NumRows:          stats.ExactOf(rg.NumRows),
			TotalByteSize:    stats.ExactOf(rg.TotalByteSize),
			ColumnStatistics: make([]stats.ColumnStatistics, schema.NumFields()),
		}
		for _, chunk := range rg.Columns {
			if chunk.MetaData == nil || len(chunk.MetaData.PathInSchema) != 1 {
				continue
			}
			idx := fieldIndexFold(schema, chunk.MetaData.PathInSchema[0])
			if idx < 0 {
				continue
			}
			rgStats.ColumnStatistics[idx] = columnStatistics(chunk.MetaData, schema.Field(idx).Type)
		}

		if i == 0 {
			merged = rgStats
			continue
		}
		var err error
		merged, err = stats.Merge(merged, rgStats)
		if err != nil {
			return stats.Statistics{}, fmt.Errorf("error merging row group %d: %w", i, err)
		}
	}
	return merged, nil
}

func fieldIndexFold(schema *arrow.Schema, name string) int {
	for i, f := range schema.Fields() {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

func columnStatistics(md *parquet.ColumnMetaData, dt arrow.DataType) stats.ColumnStatistics {
	var cs stats.ColumnStatistics
	st := md.Statistics
	if st == nil {
		return cs
	}
	if st.NullCount != nil {
		cs.NullCount = stats.ExactOf(*st.NullCount)
	}
	if st.DistinctCount != nil {
		cs.DistinctCount = stats.ExactOf(*st.DistinctCount)
	}

	minRaw, maxRaw := st.MinValue, st.MaxValue
	if minRaw == nil || maxRaw == nil {
		// files written before MinValue/MaxValue existed
		minRaw, maxRaw = st.Min, st.Max
	}
	if minRaw == nil || maxRaw == nil {
		return cs
	}
	minVal, err := decodePlain(minRaw, md.Type, dt)
	if err != nil {
		return cs
	}
	maxVal, err := decodePlain(maxRaw, md.Type, dt)
	if err != nil {
		return cs
	}
	cs.MinValue = stats.ExactOf(minVal)
	cs.MaxValue = stats.ExactOf(maxVal)
	return cs
}

// decodePlain turns a plain encoded statistics value into a scalar of dt.
func decodePlain(b []byte, physical parquet.Type, dt arrow.DataType) (scalar.Scalar, error) {
	switch physical {
	case parquet.Type_BOOLEAN:
		if len(b) < 1 || dt.ID() != arrow.BOOL {
			break
		}
		return scalar.NewBooleanScalar(b[0]&1 == 1), nil
	case parquet.Type_INT32:
		if len(b) < 4 {
			break
		}
		v := int32(binary.LittleEndian.Uint32(b))
		switch dt.ID() {
		case arrow.INT8:
			return scalar.NewInt8Scalar(int8(v)), nil
		case arrow.INT16:
			return scalar.NewInt16Scalar(int16(v)), nil
		case arrow.INT32:
			return scalar.NewInt32Scalar(v), nil
		case arrow.UINT8:
			return scalar.NewUint8Scalar(uint8(v)), nil
		case arrow.UINT16:
			return scalar.NewUint16Scalar(uint16(v)), nil
		case arrow.UINT32:
			return scalar.NewUint32Scalar(uint32(v)), nil
		case arrow.DATE32:
			return scalar.NewDate32Scalar(arrow.Date32(v)), nil
		}
	case parquet.Type_INT64:
		if len(b) < 8 {
			break
		}
		v := int64(binary.LittleEndian.Uint64(b))
		switch dt.ID() {
		case arrow.INT64:
			return scalar.NewInt64Scalar(v), nil
		case arrow.UINT64:
			return scalar.NewUint64Scalar(uint64(v)), nil
		case arrow.DATE64:
			return scalar.NewDate64Scalar(arrow.Date64(v)), nil
		case arrow.TIMESTAMP:
			return scalar.NewTimestampScalar(arrow.Timestamp(v), dt), nil
		}
	case parquet.Type_FLOAT:
		if len(b) < 4 || dt.ID() != arrow.FLOAT32 {
			break
		}
		return scalar.NewFloat32Scalar(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	case parquet.Type_DOUBLE:
		if len(b) < 8 || dt.ID() != arrow.FLOAT64 {
			break
		}
		return scalar.NewFloat64Scalar(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
	case parquet.Type_BYTE_ARRAY, parquet.Type_FIXED_LEN_BYTE_ARRAY:
		switch dt.ID() {
		case arrow.STRING:
			return scalar.NewStringScalar(string(b)), nil
		case arrow.BINARY:
			return scalar.NewBinaryScalar(memory.NewBufferBytes(append([]byte(nil), b...)), arrow.BinaryTypes.Binary), nil
		}
	}
	return nil, fmt.Errorf("unsupported statistics conversion from %s to %s", physical, dt)
}
