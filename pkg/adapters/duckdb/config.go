package duckdb

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds DuckDB-specific configuration, decoded from
// adapter.Config.Params with mapstructure.
type Params struct {
	// Extensions to install and load (e.g. "httpfs", "json").
	Extensions []string `mapstructure:"extensions"`

	// Settings applied at session level (e.g. memory_limit, threads).
	Settings map[string]string `mapstructure:"settings"`
}

// parseParams decodes the raw params map into Params.
func parseParams(raw map[string]any) (Params, error) {
	var p Params
	if len(raw) == 0 {
		return p, nil
	}
	if err := mapstructure.Decode(raw, &p); err != nil {
		return p, fmt.Errorf("failed to decode params: %w", err)
	}
	return p, nil
}
