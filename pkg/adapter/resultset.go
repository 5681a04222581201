package adapter

import (
	"fmt"
	"time"
)

// ResultSet is a fully materialized query result with every value rendered
// as text. NULL becomes the empty string.
type ResultSet struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Truncated reports whether collection stopped at the row limit.
func (rs *ResultSet) Truncated(limit int) bool {
	return limit > 0 && len(rs.Rows) >= limit
}

// CollectRows drains up to limit rows into a ResultSet. A limit of zero or
// less collects everything. The caller keeps ownership of r and must close
// it.
func CollectRows(r *Rows, limit int) (*ResultSet, error) {
	cols, err := r.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	rs := &ResultSet{Columns: cols}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for r.Next() {
		if err := r.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = renderValue(v)
		}
		rs.Rows = append(rs.Rows, row)
		if limit > 0 && len(rs.Rows) >= limit {
			break
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return rs, nil
}

func renderValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", x)
	}
}
