// Package duckdb provides the DuckDB warehouse adapter for cnpjkit.
//
// This file registers the adapter with the registry. Import this package
// with a blank identifier to register it:
//
//	import _ "github.com/brdatalab/cnpjkit/pkg/adapters/duckdb"
package duckdb

import (
	"log/slog"

	"github.com/brdatalab/cnpjkit/pkg/adapter"
)

func init() {
	adapter.Register("duckdb", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
