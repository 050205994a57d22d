package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-dashboard/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Columns returns the union of document keys in first-seen order
func Columns(docs []bson.D) []string {
	var columns []string
	seen := make(map[string]bool)
	for _, doc := range docs {
		for _, e := range doc {
			if !seen[e.Key] {
				seen[e.Key] = true
				columns = append(columns, e.Key)
			}
		}
	}
	return columns
}

// WriteCSV writes docs to path with a header row, replacing any existing
// file. Keys missing from a document are left blank. Documents without
// any keys produce an empty file.
func WriteCSV(path string, docs []bson.D) (int, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	columns := Columns(docs)
	w := csv.NewWriter(tmp)
	if len(columns) > 0 {
		if err := w.Write(columns); err != nil {
			tmp.Close()
			return 0, fmt.Errorf("failed to write header: %w", err)
		}
	}

	record := make([]string, len(columns))
	for _, doc := range docs {
		if len(columns) == 0 {
			break
		}
		values := make(map[string]interface{}, len(doc))
		for _, e := range doc {
			values[e.Key] = e.Value
		}
		for i, col := range columns {
			record[i] = formatValue(values[col])
		}
		if err := w.Write(record); err != nil {
			tmp.Close()
			return 0, fmt.Errorf("failed to write record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to flush csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return len(docs), nil
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return formatTime(val.Time().UTC())
	case time.Time:
		return formatTime(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	case primitive.Decimal128:
		return val.String()
	case decimal.Decimal:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func formatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(models.DateLayout)
	}
	return t.Format(time.RFC3339)
}
