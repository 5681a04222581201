// Package postgres provides the PostgreSQL warehouse adapter for cnpjkit.
//
// This file registers the adapter with the registry. Import this package
// with a blank identifier to register it:
//
//	import _ "github.com/brdatalab/cnpjkit/pkg/adapters/postgres"
package postgres

import (
	"log/slog"

	"github.com/brdatalab/cnpjkit/pkg/adapter"
)

func init() {
	adapter.Register("postgres", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
