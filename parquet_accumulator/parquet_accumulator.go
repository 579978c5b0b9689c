package parquet_accumulator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/danthegoodman1/gojsonutils"
	"github.com/danthegoodman1/icescan/datastore"
	"github.com/danthegoodman1/icescan/gologger"
	"github.com/danthegoodman1/icescan/metastore"
	"github.com/danthegoodman1/icescan/part"
	"github.com/danthegoodman1/icescan/partitioner"
	"github.com/danthegoodman1/icescan/utils"
	"github.com/xitongsys/parquet-go/writer"
)

var (
	logger = gologger.NewComponentLogger("parquet_accumulator")

	ErrNotFlatMap = errors.New("not a flat map")
	ErrNotParquet = errors.New("table format is not parquet")
)

type (
	ParquetJSONSchema struct {
		Tag    string               `json:",omitempty"`
		Fields []*ParquetJSONSchema `json:",omitempty"`
	}

	SchemaTag struct {
		Name           string
		Type           string
		ConvertedType  string
		RepetitionType RepetitionType
		Encoding       string
	}

	RepetitionType string

	// Accumulator buffers rows of a table by partition and writes each
	// partition out as one parquet file.
	Accumulator struct {
		table        metastore.TableSchema
		catalog      partitioner.Catalog
		fileSchema   *arrow.Schema
		schemaString string
		parts        map[string][]map[string]any
	}
)

var (
	Optional RepetitionType = "OPTIONAL"
	Required RepetitionType = "REQUIRED"
)

// column types with a parquet physical type and, if needed, a converted type
var parquetTypes = map[arrow.Type][2]string{
	arrow.BOOL:    {"BOOLEAN", ""},
	arrow.INT8:    {"INT32", "INT_8"},
	arrow.INT16:   {"INT32", "INT_16"},
	arrow.INT32:   {"INT32", ""},
	arrow.INT64:   {"INT64", ""},
	arrow.UINT8:   {"INT32", "UINT_8"},
	arrow.UINT16:  {"INT32", "UINT_16"},
	arrow.UINT32:  {"INT32", "UINT_32"},
	arrow.UINT64:  {"INT64", "UINT_64"},
	arrow.FLOAT32: {"FLOAT", ""},
	arrow.FLOAT64: {"DOUBLE", ""},
	arrow.STRING:  {"BYTE_ARRAY", "UTF8"},
	arrow.BINARY:  {"BYTE_ARRAY", ""},
	arrow.DATE32:  {"INT32", "DATE"},
}

func tagFor(f arrow.Field) (SchemaTag, error) {
	tag := SchemaTag{Name: f.Name, RepetitionType: Required}
	if f.Nullable {
		tag.RepetitionType = Optional
	}
	if ts, ok := f.Type.(*arrow.TimestampType); ok {
		tag.Type = "INT64"
		switch ts.Unit {
		case arrow.Millisecond:
			tag.ConvertedType = "TIMESTAMP_MILLIS"
		case arrow.Microsecond:
			tag.ConvertedType = "TIMESTAMP_MICROS"
		default:
			return SchemaTag{}, fmt.Errorf("cannot write %s column %q to parquet", f.Type, f.Name)
		}
		return tag, nil
	}
	t, ok := parquetTypes[f.Type.ID()]
	if !ok {
		return SchemaTag{}, fmt.Errorf("cannot write %s column %q to parquet", f.Type, f.Name)
	}
	tag.Type, tag.ConvertedType = t[0], t[1]
	if tag.Type == "BYTE_ARRAY" {
		tag.Encoding = "PLAIN"
	}
	return tag, nil
}

func (t SchemaTag) String() string {
	var tagArr []string
	if t.Type != "" {
		tagArr = append(tagArr, "type="+t.Type)
	}
	if t.ConvertedType != "" {
		tagArr = append(tagArr, "convertedtype="+t.ConvertedType)
	}
	if t.Encoding != "" {
		tagArr = append(tagArr, "encoding="+t.Encoding)
	}
	if t.Name != "" {
		tagArr = append(tagArr, "name="+t.Name)
	}
	if string(t.RepetitionType) != "" {
		tagArr = append(tagArr, "repetitiontype="+string(t.RepetitionType))
	}
	return strings.Join(tagArr, ", ")
}

// GetSchemaString returns the JSON schema parquet-go writes schema with.
func GetSchemaString(schema *arrow.Schema) (string, error) {
	var fields []*ParquetJSONSchema
	for _, f := range schema.Fields() {
		tag, err := tagFor(f)
		if err != nil {
			return "", err
		}
		fields = append(fields, &ParquetJSONSchema{Tag: tag.String()})
	}
	pjs := ParquetJSONSchema{
		Tag:    "name=parquet_go_root, repetitiontype=REQUIRED",
		Fields: fields,
	}

	b, err := json.Marshal(pjs)
	if err != nil {
		return "", fmt.Errorf("error in json.Marshal: %w", err)
	}
	return string(b), nil
}

func NewAccumulator(ts metastore.TableSchema) (*Accumulator, error) {
	if ts.Format != "parquet" {
		return nil, fmt.Errorf("%w: %s", ErrNotParquet, ts.Format)
	}
	fileSchema, err := ts.ArrowSchema()
	if err != nil {
		return nil, err
	}
	catalog, err := ts.PartitionCatalog()
	if err != nil {
		return nil, err
	}
	schemaString, err := GetSchemaString(fileSchema)
	if err != nil {
		return nil, err
	}
	return &Accumulator{
		table:        ts,
		catalog:      catalog,
		fileSchema:   fileSchema,
		schemaString: schemaString,
		parts:        map[string][]map[string]any{},
	}, nil
}

// WriteRow flattens row and buffers it under its partition. Partition
// column values are taken out of the row, they live in the file path.
func (a *Accumulator) WriteRow(row map[string]any) error {
	flat, err := gojsonutils.Flatten(row, nil)
	if err != nil {
		return fmt.Errorf("error flattening JSON map: %w", err)
	}
	flatMap, ok := flat.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %+v", ErrNotFlatMap, flat)
	}

	partition, err := a.partitionOf(flatMap)
	if err != nil {
		return err
	}
	fileRow := make(map[string]any, a.fileSchema.NumFields())
	for _, f := range a.fileSchema.Fields() {
		v, exists := flatMap[f.Name]
		if !exists || v == nil {
			if !f.Nullable {
				return fmt.Errorf("%w: missing value for column %q", utils.ErrData, f.Name)
			}
			continue
		}
		fileRow[f.Name] = v
	}
	a.parts[partition] = append(a.parts[partition], fileRow)
	return nil
}

// WriteNDJSON buffers every line of r as a row.
func (a *Accumulator) WriteNDJSON(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(line, &row); err != nil {
			return n, fmt.Errorf("%w: line %d is not a JSON object: %s", utils.ErrData, n+1, err)
		}
		if err := a.WriteRow(row); err != nil {
			return n, err
		}
		n++
	}
	return n, scanner.Err()
}

func (a *Accumulator) partitionOf(row map[string]any) (string, error) {
	if len(a.catalog) == 0 {
		return "", nil
	}
	segments := make([]string, len(a.catalog))
	for i, f := range a.catalog {
		raw, err := partitionText(row[f.Name])
		if err != nil {
			return "", fmt.Errorf("%w: partition column %q: %s", utils.ErrData, f.Name, err)
		}
		segments[i] = f.Name + "=" + raw
	}
	values, err := partitioner.ParsePartitionValues(strings.Join(segments, "/"), a.catalog)
	if err != nil {
		return "", fmt.Errorf("%w: %s", utils.ErrData, err)
	}
	return partitioner.PartitionPath(a.catalog, values)
}

func partitionText(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return partitioner.HiveDefaultPartition, nil
	case string:
		return url.PathEscape(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	case json.Number:
		return val.String(), nil
	}
	return "", fmt.Errorf("unsupported value %v", v)
}

func (a *Accumulator) NumRows() (n int) {
	for _, rows := range a.parts {
		n += len(rows)
	}
	return
}

// Flush writes one parquet file per buffered partition under the table
// name in store and returns the catalog entries of the new files. The
// buffer is emptied.
func (a *Accumulator) Flush(ctx context.Context, store datastore.DataStore) ([]metastore.FileEntry, error) {
	partitions := make([]string, 0, len(a.parts))
	for p := range a.parts {
		partitions = append(partitions, p)
	}
	sort.Strings(partitions)

	entries := make([]metastore.FileEntry, 0, len(partitions))
	for _, p := range partitions {
		entry, err := a.writePartition(ctx, store, p, a.parts[p])
		if err != nil {
			return nil, fmt.Errorf("error writing partition %q: %w", p, err)
		}
		entries = append(entries, entry)
	}
	a.parts = map[string][]map[string]any{}
	return entries, nil
}

func (a *Accumulator) writePartition(ctx context.Context, store datastore.DataStore, partition string, rows []map[string]any) (metastore.FileEntry, error) {
	s := time.Now()
	var b bytes.Buffer
	pw, err := writer.NewJSONWriterFromWriter(a.schemaString, &b, 4)
	if err != nil {
		return metastore.FileEntry{}, fmt.Errorf("error in NewJSONWriterFromWriter: %w", err)
	}
	for _, row := range rows {
		rowBytes, err := json.Marshal(row)
		if err != nil {
			return metastore.FileEntry{}, fmt.Errorf("error in json.Marshal of flat row: %w", err)
		}
		if err := pw.Write(string(rowBytes)); err != nil {
			return metastore.FileEntry{}, fmt.Errorf("%w: error in pw.Write for row %s: %s", utils.ErrData, rowBytes, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return metastore.FileEntry{}, fmt.Errorf("error in pw.WriteStop: %w", err)
	}
	data := b.Bytes()

	st, err := part.ReadParquetStatistics(datastore.NewBytesParquetFile(data), a.fileSchema)
	if err != nil {
		return metastore.FileEntry{}, err
	}

	location := utils.GenKSortedID("") + ".parquet"
	if partition != "" {
		location = partition + "/" + location
	}
	location = a.table.Name + "/" + location
	if err := store.Put(ctx, location, bytes.NewReader(data)); err != nil {
		return metastore.FileEntry{}, fmt.Errorf("error uploading %s: %w", location, err)
	}

	entry := metastore.FileEntry{
		Location:  location,
		Size:      int64(len(data)),
		Partition: partition,
		Columns:   metastore.ColumnStatsFrom(a.fileSchema, st),
	}
	if n, ok := st.NumRows.Value(); ok {
		entry.NumRows = &n
	}
	logger.Debug().Str("file", location).Int("rows", len(rows)).Int("bytes", len(data)).Dur("took", time.Since(s)).Msg("wrote parquet file")
	return entry, nil
}
