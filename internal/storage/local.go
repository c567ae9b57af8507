package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"zgrid/internal/mdb"
)

// Local is the on-disk FileStore. Relations are parquet files; data lists
// and schemas are JSON. Paths are absolute (the registry prepends the data
// directory before they reach the store).
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (l *Local) SaveRelation(path string, rel *mdb.Relation) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	md, err := parquetMetadata(rel)
	if err != nil {
		return err
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	pw, err := writer.NewCSVWriter(md, fw, 1)
	if err != nil {
		fw.Close()
		return fmt.Errorf("open parquet writer %s: %w", path, err)
	}
	for _, row := range rel.Rows {
		rec := make([]interface{}, len(row))
		for i, v := range row {
			rec[i], err = parquetValue(v)
			if err != nil {
				fw.Close()
				return fmt.Errorf("write %s: %w", path, err)
			}
		}
		if err := pw.Write(rec); err != nil {
			fw.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finish %s: %w", path, err)
	}
	return fw.Close()
}

func (l *Local) LoadRelation(path string) (*mdb.Relation, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetColumnReader(fr, 1)
	if err != nil {
		return nil, fmt.Errorf("open parquet reader %s: %w", path, err)
	}
	defer pr.ReadStop()

	num := pr.GetNumRows()
	numColumns := len(pr.SchemaHandler.ValueColumns)

	rel := &mdb.Relation{}
	columns := make([][]interface{}, numColumns)
	for i := 0; i < numColumns; i++ {
		values, _, _, err := pr.ReadColumnByIndex(int64(i), num)
		if err != nil {
			return nil, fmt.Errorf("read column %d of %s: %w", i, path, err)
		}
		columns[i] = values
		// Infos[0] is the schema root; leaves follow in declaration order.
		rel.Columns = append(rel.Columns, pr.SchemaHandler.Infos[i+1].ExName)
	}

	for r := 0; r < int(num); r++ {
		row := make([]any, numColumns)
		for c := 0; c < numColumns; c++ {
			row[c] = columns[c][r]
		}
		rel.Rows = append(rel.Rows, row)
	}
	return rel, nil
}

func (l *Local) SaveDataList(path string, entries []mdb.DataFileEntry) error {
	return saveJSON(path, entries)
}

func (l *Local) LoadDataList(path string) ([]mdb.DataFileEntry, error) {
	var entries []mdb.DataFileEntry
	if err := loadJSON(path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *Local) SaveSchema(path string, schema *mdb.TableSchema) error {
	return saveJSON(path, schema)
}

func (l *Local) LoadSchema(path string) (*mdb.TableSchema, error) {
	schema := &mdb.TableSchema{}
	if err := loadJSON(path, schema); err != nil {
		return nil, err
	}
	return schema, nil
}

func saveJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// parquetMetadata derives the CSV-writer schema from the first non-nil
// value of each column. Columns with no values default to UTF8 strings.
func parquetMetadata(rel *mdb.Relation) ([]string, error) {
	md := make([]string, len(rel.Columns))
	for i, col := range rel.Columns {
		typ := "type=BYTE_ARRAY, convertedtype=UTF8"
		for _, row := range rel.Rows {
			switch row[i].(type) {
			case nil:
				continue
			case int, int32, int64:
				typ = "type=INT64"
			case float32, float64:
				typ = "type=DOUBLE"
			case bool:
				typ = "type=BOOLEAN"
			case string, []byte:
				typ = "type=BYTE_ARRAY, convertedtype=UTF8"
			default:
				return nil, fmt.Errorf("column %s has unsupported value type %T", col, row[i])
			}
			break
		}
		md[i] = fmt.Sprintf("name=%s, %s", col, typ)
	}
	return md, nil
}

// parquetValue coerces relation values to the exact types the parquet
// writer expects.
func parquetValue(v any) (interface{}, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float32:
		return float64(x), nil
	case float64, bool, string:
		return x, nil
	case []byte:
		return string(x), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
