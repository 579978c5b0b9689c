package partitioner

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/danthegoodman1/icescan/stats"
)

// Catalog lists the partition columns of a table. They are appended after
// the file schema and their values come from the file location, not the
// file contents.
type Catalog []arrow.Field

const HiveDefaultPartition = "__HIVE_DEFAULT_PARTITION__"

var (
	ErrMissingPartition = errors.New("missing partition value in path")
	ErrValueCount       = errors.New("partition value count does not match catalog")
)

func (c Catalog) Names() []string {
	names := make([]string, len(c))
	for i, f := range c {
		names[i] = f.Name
	}
	return names
}

func (c Catalog) Clone() Catalog {
	if c == nil {
		return nil
	}
	return append(Catalog(nil), c...)
}

// WrapPartitionType returns Dictionary(UInt16, valType). Partition values
// repeat across every row of a file, so a small key width over a one-entry
// dictionary is enough.
func WrapPartitionType(valType arrow.DataType) arrow.DataType {
	return &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Uint16, ValueType: valType}
}

// WrapPartitionValueInDict encodes v the way WrapPartitionType describes it.
func WrapPartitionValueInDict(v scalar.Scalar) (scalar.Scalar, error) {
	return WrapValueWithIndexType(v, arrow.PrimitiveTypes.Uint16)
}

// WrapValueWithIndexType encodes v as a dictionary scalar with key 0 of
// indexType over a one-entry dictionary.
func WrapValueWithIndexType(v scalar.Scalar, indexType arrow.DataType) (scalar.Scalar, error) {
	dict, err := scalar.MakeArrayFromScalar(v, 1, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("error building dictionary for %s: %w", v.DataType(), err)
	}
	idx, err := ZeroIndex(indexType)
	if err != nil {
		return nil, err
	}
	return scalar.NewDictScalar(idx, dict), nil
}

// ZeroIndex returns the dictionary key 0 as a scalar of indexType.
func ZeroIndex(indexType arrow.DataType) (scalar.Scalar, error) {
	switch indexType.ID() {
	case arrow.INT8:
		return scalar.NewInt8Scalar(0), nil
	case arrow.INT16:
		return scalar.NewInt16Scalar(0), nil
	case arrow.INT32:
		return scalar.NewInt32Scalar(0), nil
	case arrow.INT64:
		return scalar.NewInt64Scalar(0), nil
	case arrow.UINT8:
		return scalar.NewUint8Scalar(0), nil
	case arrow.UINT16:
		return scalar.NewUint16Scalar(0), nil
	case arrow.UINT32:
		return scalar.NewUint32Scalar(0), nil
	case arrow.UINT64:
		return scalar.NewUint64Scalar(0), nil
	default:
		return nil, fmt.Errorf("unsupported dictionary index type %s", indexType)
	}
}

// ValueType unwraps a dictionary type to the type of its values.
func ValueType(dt arrow.DataType) arrow.DataType {
	if d, ok := dt.(*arrow.DictionaryType); ok {
		return d.ValueType
	}
	return dt
}

// ParsePartitionValues extracts values for catalog from the hive style
// `name=value` segments of location, in catalog order.
func ParsePartitionValues(location string, catalog Catalog) ([]scalar.Scalar, error) {
	segments := map[string]string{}
	for _, seg := range strings.Split(location, "/") {
		k, v, found := strings.Cut(seg, "=")
		if !found {
			continue
		}
		segments[k] = v
	}

	values := make([]scalar.Scalar, 0, len(catalog))
	for _, field := range catalog {
		raw, exists := segments[field.Name]
		if !exists {
			return nil, fmt.Errorf("%w: %s in %s", ErrMissingPartition, field.Name, location)
		}
		value, err := parseValue(raw, field.Type)
		if err != nil {
			return nil, fmt.Errorf("error parsing partition %s=%s: %w", field.Name, raw, err)
		}
		values = append(values, value)
	}
	return values, nil
}

func parseValue(raw string, dt arrow.DataType) (scalar.Scalar, error) {
	valType := ValueType(dt)
	var value scalar.Scalar
	if raw == HiveDefaultPartition {
		value = scalar.MakeNullScalar(valType)
	} else {
		unescaped, err := url.PathUnescape(raw)
		if err != nil {
			return nil, fmt.Errorf("error in url.PathUnescape: %w", err)
		}
		value, err = scalar.ParseScalar(valType, unescaped)
		if err != nil {
			return nil, fmt.Errorf("error in scalar.ParseScalar: %w", err)
		}
	}
	if d, ok := dt.(*arrow.DictionaryType); ok {
		return WrapValueWithIndexType(value, d.IndexType)
	}
	return value, nil
}

// PartitionPath renders values as `name=value` segments joined by `/`.
func PartitionPath(catalog Catalog, values []scalar.Scalar) (string, error) {
	if len(values) != len(catalog) {
		return "", fmt.Errorf("%w: %d values for %d columns", ErrValueCount, len(values), len(catalog))
	}
	var finalParts []string
	for i, field := range catalog {
		v, err := stats.Decode(values[i])
		if err != nil {
			return "", fmt.Errorf("error decoding value for %s: %w", field.Name, err)
		}
		s := HiveDefaultPartition
		if v.IsValid() {
			s = url.PathEscape(v.String())
		}
		finalParts = append(finalParts, fmt.Sprintf("%s=%s", field.Name, s))
	}
	return strings.Join(finalParts, "/"), nil
}
