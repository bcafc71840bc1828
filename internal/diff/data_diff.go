package diff

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/koba/db-fixture/internal/schema"
)

// TableDiff represents data differences for a table
type TableDiff struct {
	TableName  string
	Missing    []schema.Row // expected but not found
	Unexpected []schema.Row // found but not expected
	Modified   []RowModification
}

// RowModification represents a row found under its key with other values
type RowModification struct {
	Expected schema.Row
	Actual   schema.Row
	Columns  []string
}

func (d *TableDiff) empty() bool {
	return len(d.Missing) == 0 && len(d.Unexpected) == 0 && len(d.Modified) == 0
}

// compareTable compares the rows of one table. Rows are matched by primary
// key when the key is usable, otherwise as a multiset of whole rows.
func compareTable(t *schema.Table, expected, actual []schema.Row, o *options) *TableDiff {
	diff := &TableDiff{TableName: t.Name}

	columns := compareColumns(t, o)
	keys := t.PrimaryKey
	for _, key := range keys {
		if col, _ := t.Column(key); col.Identity && o.ignoreIdentity {
			keys = nil
			break
		}
	}

	if len(keys) == 0 {
		compareMultiset(diff, columns, expected, actual)
	} else {
		compareKeyed(diff, keys, columns, expected, actual)
	}

	if diff.empty() {
		return nil
	}
	return diff
}

func compareColumns(t *schema.Table, o *options) []string {
	var columns []string
	for _, col := range t.Columns {
		if col.Identity && o.ignoreIdentity {
			continue
		}
		columns = append(columns, col.Name)
	}
	return columns
}

func compareKeyed(diff *TableDiff, keys, columns []string, expected, actual []schema.Row) {
	actualRows := make(map[string]schema.Row, len(actual))
	for _, row := range actual {
		actualRows[rowKey(row, keys)] = row
	}

	seen := make(map[string]bool, len(expected))
	for _, exp := range expected {
		key := rowKey(exp, keys)
		seen[key] = true

		act, exists := actualRows[key]
		if !exists {
			diff.Missing = append(diff.Missing, exp)
			continue
		}
		if changed := changedColumns(exp, act, columns); len(changed) > 0 {
			diff.Modified = append(diff.Modified, RowModification{
				Expected: exp,
				Actual:   act,
				Columns:  changed,
			})
		}
	}

	for _, act := range actual {
		if !seen[rowKey(act, keys)] {
			diff.Unexpected = append(diff.Unexpected, act)
		}
	}
}

func compareMultiset(diff *TableDiff, columns []string, expected, actual []schema.Row) {
	remaining := make(map[string]int, len(actual))
	for _, act := range actual {
		remaining[rowKey(act, columns)]++
	}

	matched := make(map[string]int, len(expected))
	for _, exp := range expected {
		key := rowKey(exp, columns)
		if remaining[key] > 0 {
			remaining[key]--
			matched[key]++
			continue
		}
		diff.Missing = append(diff.Missing, exp)
	}

	for _, act := range actual {
		key := rowKey(act, columns)
		if matched[key] > 0 {
			matched[key]--
			continue
		}
		diff.Unexpected = append(diff.Unexpected, act)
	}
}

func changedColumns(a, b schema.Row, columns []string) []string {
	var changed []string
	for _, col := range columns {
		if !sameValue(a[col], b[col]) {
			changed = append(changed, col)
		}
	}
	return changed
}

func sameValue(a, b interface{}) bool {
	ca, cb := canonical(a), canonical(b)
	if ca == nil || cb == nil {
		return ca == nil && cb == nil
	}
	return *ca == *cb
}

// rowKey generates a unique key for a row based on the given columns
func rowKey(row schema.Row, columns []string) string {
	keyParts := make([]*string, len(columns))
	for i, col := range columns {
		keyParts[i] = canonical(row[col])
	}

	// Use JSON encoding for consistent key generation
	keyJSON, err := json.Marshal(keyParts)
	if err != nil {
		return fmt.Sprintf("%v", keyParts)
	}

	return string(keyJSON)
}

// canonical renders a value so that equal data compares equal whichever
// side produced it: a data file yields int and string, a driver int64 and
// []byte. NULL is nil.
func canonical(v interface{}) *string {
	var s string
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		s = val
	case []byte:
		s = string(val)
	case json.Number:
		s = val.String()
	case bool:
		s = strconv.FormatBool(val)
	case int:
		s = strconv.FormatInt(int64(val), 10)
	case int8:
		s = strconv.FormatInt(int64(val), 10)
	case int16:
		s = strconv.FormatInt(int64(val), 10)
	case int32:
		s = strconv.FormatInt(int64(val), 10)
	case int64:
		s = strconv.FormatInt(val, 10)
	case uint:
		s = strconv.FormatUint(uint64(val), 10)
	case uint8:
		s = strconv.FormatUint(uint64(val), 10)
	case uint16:
		s = strconv.FormatUint(uint64(val), 10)
	case uint32:
		s = strconv.FormatUint(uint64(val), 10)
	case uint64:
		s = strconv.FormatUint(val, 10)
	case float32:
		s = formatFloat(float64(val))
	case float64:
		s = formatFloat(val)
	case time.Time:
		s = val.UTC().Format(time.RFC3339Nano)
	default:
		s = fmt.Sprintf("%v", val)
	}
	return &s
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
