// Package encode serializes assembled datasets into sink payloads.
package encode

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/prodbi/extractor/pkg/engine"
	"github.com/prodbi/extractor/pkg/errors"
	jsonpool "github.com/prodbi/extractor/pkg/json"
)

// JSON renders the dataset envelope as a JSON document.
func JSON(dataset *engine.Dataset) ([]byte, error) {
	payload, err := jsonpool.Marshal(dataset)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode dataset as JSON")
	}
	return payload, nil
}

// RecordsJSON renders only the record array, without the metadata envelope.
func RecordsJSON(dataset *engine.Dataset) ([]byte, error) {
	payload, err := jsonpool.Marshal(dataset.Records)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode records as JSON")
	}
	return payload, nil
}

// CSV renders records as a CSV document. The header is the sorted union of
// all record keys; missing values render empty, nested values as JSON.
func CSV(dataset *engine.Dataset) ([]byte, error) {
	columns := columnSet(dataset.Records)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(columns); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to write CSV header")
	}

	row := make([]string, len(columns))
	for _, rec := range dataset.Records {
		for i, col := range columns {
			row[i] = cellString(rec[col])
		}
		if err := w.Write(row); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to write CSV row")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to flush CSV")
	}
	return buf.Bytes(), nil
}

// Parquet renders records as a single-row-group Parquet file with a schema
// inferred from the record values. Column order is deterministic.
func Parquet(dataset *engine.Dataset) ([]byte, error) {
	columns := columnSet(dataset.Records)
	if len(columns) == 0 {
		// A Parquet schema needs at least one column even for zero rows.
		columns = []string{"empty"}
	}

	fields := make([]arrow.Field, len(columns))
	for i, col := range columns {
		fields[i] = arrow.Field{Name: col, Type: inferArrowType(dataset.Records, col), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	pool := memory.NewGoAllocator()
	builder := array.NewRecordBuilder(pool, schema)
	defer builder.Release()

	for _, rec := range dataset.Records {
		for i, col := range columns {
			appendValue(builder.Field(i), rec[col])
		}
	}

	arrowRecord := builder.NewRecord()
	defer arrowRecord.Release()

	var buf bytes.Buffer
	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(pool))

	fw, err := pqarrow.NewFileWriter(schema, &buf, props, arrowProps)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to create Parquet writer")
	}
	if err := fw.Write(arrowRecord); err != nil {
		_ = fw.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to write Parquet rows")
	}
	if err := fw.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to finalize Parquet file")
	}
	return buf.Bytes(), nil
}

func columnSet(records []engine.Record) []string {
	seen := map[string]struct{}{}
	for _, rec := range records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}

func cellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64, float32, int, int32, int64, bool:
		return fmt.Sprintf("%v", val)
	default:
		encoded, err := jsonpool.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(encoded)
	}
}

// inferArrowType picks the column type from the first non-nil value; mixed
// or nested columns fall back to string.
func inferArrowType(records []engine.Record, col string) arrow.DataType {
	for _, rec := range records {
		switch rec[col].(type) {
		case nil:
			continue
		case bool:
			return arrow.FixedWidthTypes.Boolean
		case float64, float32:
			return arrow.PrimitiveTypes.Float64
		case int, int32, int64:
			return arrow.PrimitiveTypes.Int64
		default:
			return arrow.BinaryTypes.String
		}
	}
	return arrow.BinaryTypes.String
}

func appendValue(b array.Builder, v interface{}) {
	if v == nil {
		b.AppendNull()
		return
	}
	switch builder := b.(type) {
	case *array.BooleanBuilder:
		if val, ok := v.(bool); ok {
			builder.Append(val)
		} else {
			builder.AppendNull()
		}
	case *array.Float64Builder:
		switch val := v.(type) {
		case float64:
			builder.Append(val)
		case float32:
			builder.Append(float64(val))
		case int:
			builder.Append(float64(val))
		case int64:
			builder.Append(float64(val))
		default:
			builder.AppendNull()
		}
	case *array.Int64Builder:
		switch val := v.(type) {
		case int64:
			builder.Append(val)
		case int:
			builder.Append(int64(val))
		case int32:
			builder.Append(int64(val))
		case float64:
			builder.Append(int64(val))
		default:
			builder.AppendNull()
		}
	case *array.StringBuilder:
		builder.Append(cellString(v))
	default:
		b.AppendNull()
	}
}
