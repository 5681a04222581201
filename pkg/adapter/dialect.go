package adapter

import "fmt"

// Dialect captures the small set of SQL differences the adapters care about.
type Dialect struct {
	// Name identifies the dialect ("duckdb", "postgres").
	Name string

	// DefaultSchema is used for unqualified table names.
	DefaultSchema string

	// PositionalPlaceholders is true when the dialect numbers its
	// placeholders ($1, $2) instead of using '?'.
	PositionalPlaceholders bool
}

// FormatPlaceholder returns the placeholder for the n-th (1-based) argument.
func (d Dialect) FormatPlaceholder(n int) string {
	if d.PositionalPlaceholders {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
