// Package config loads cnpjkit configuration from cnpjkit.yaml,
// environment variables and CLI flags.
package config

import (
	"fmt"
	"strings"

	"github.com/brdatalab/cnpjkit/internal/rfb"
	"github.com/brdatalab/cnpjkit/pkg/adapter"
)

// Default configuration values.
const (
	DefaultDataDir      = "data"
	DefaultStateFile    = ".cnpjkit/state.db"
	DefaultMaxSourceMB  = 500
	DefaultConcurrency  = 3
	DefaultOutput       = "auto" // Auto-detect: TTY=table, non-TTY=markdown
	DefaultListen       = ":8501"
	DefaultPreviewLimit = 100
)

// TargetConfig holds warehouse target configuration.
type TargetConfig struct {
	Type string `koanf:"type"` // duckdb, postgres

	// Database is the file path (DuckDB) or database name (network targets).
	Database string `koanf:"database"`

	// Network targets.
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	Schema string `koanf:"schema"`

	// Options holds driver-specific string options (e.g. sslmode).
	Options map[string]string `koanf:"options"`

	// Params holds adapter-specific configuration (e.g. DuckDB extensions
	// and settings).
	Params map[string]any `koanf:"params"`
}

// Validate checks the target against the adapter registry.
func (t *TargetConfig) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("target type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(t.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.List(),
		}
	}
	return nil
}

// ToAdapterConfig converts the target to an adapter connection config.
func (t *TargetConfig) ToAdapterConfig() adapter.Config {
	return adapter.Config{
		Type:     strings.ToLower(t.Type),
		Path:     t.Database,
		Database: t.Database,
		Schema:   t.Schema,
		Host:     t.Host,
		Port:     t.Port,
		Username: t.User,
		Password: t.Password,
		Options:  t.Options,
		Params:   t.Params,
	}
}

// RFBConfig holds the file-server client settings.
type RFBConfig struct {
	// BaseURL overrides the RFB open-data root.
	BaseURL string `koanf:"base_url"`

	// MaxParts caps the part probe for multi-part datasets.
	MaxParts int `koanf:"max_parts"`

	// Retries is the number of additional attempts after transient failures.
	Retries int `koanf:"retries"`
}

// UIConfig holds the web UI settings.
type UIConfig struct {
	// Listen is the address the UI server binds to.
	Listen string `koanf:"listen"`

	// Watch reloads connected browsers when the catalog changes.
	Watch bool `koanf:"watch"`

	// PreviewLimit caps rows shown in table previews.
	PreviewLimit int `koanf:"preview_limit"`
}

// Config holds all CLI configuration options.
type Config struct {
	// ProjectRoot is the directory containing cnpjkit.yaml (or the CWD).
	ProjectRoot string `koanf:"-"`

	DataDir     string `koanf:"data_dir"`
	StatePath   string `koanf:"state_path"`
	MaxSourceMB int64  `koanf:"max_source_mb"`
	Concurrency int    `koanf:"concurrency"`
	Verbose     bool   `koanf:"verbose"`
	Output      string `koanf:"output"`

	RFB    RFBConfig     `koanf:"rfb"`
	Target *TargetConfig `koanf:"target"`
	UI     UIConfig      `koanf:"ui"`
}

// MaxSourceBytes returns the source file size cap in bytes.
func (c *Config) MaxSourceBytes() int64 {
	return c.MaxSourceMB * 1024 * 1024
}

// ApplyTargetDefaults fills in type-specific target defaults.
func ApplyTargetDefaults(t *TargetConfig) {
	if t == nil {
		return
	}
	if t.Schema == "" {
		switch strings.ToLower(t.Type) {
		case "postgres":
			t.Schema = "public"
		default:
			t.Schema = "main"
		}
	}
	if strings.ToLower(t.Type) == "postgres" && t.Port == 0 {
		t.Port = 5432
	}
}

func defaultRFB() RFBConfig {
	return RFBConfig{
		BaseURL:  rfb.DefaultBaseURL,
		MaxParts: 20,
		Retries:  3,
	}
}
