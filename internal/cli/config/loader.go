package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store the logger in the command context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for
// config files.
const maxUpwardSearchLevels = 10

// Config file names, checked in order.
const (
	ConfigFileName    = "cnpjkit.yaml"
	ConfigFileNameAlt = "cnpjkit.yml"
)

var configFileUsed string

// configExistsIn checks if a cnpjkit config file exists in the directory.
func configExistsIn(dir string) bool {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// findConfigIn returns the config file path in dir, or empty.
func findConfigIn(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findProjectRootUpward searches upward from startDir for a cnpjkit config
// file. Returns empty string if not found within maxUpwardSearchLevels.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for range maxUpwardSearchLevels {
		if configExistsIn(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// inferProjectRoot determines the project root.
// Priority: directory of an explicit config file > upward search from CWD >
// current working directory.
func inferProjectRoot(cfgFile string) string {
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs)
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		if root := findProjectRootUpward(cwd); root != "" {
			return root
		}
	}
	cwd, _ := os.Getwd()
	if cwd == "" {
		cwd = "."
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not
// absolute. Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Load loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	projectRoot := inferProjectRoot(cfgFile)

	// 1. Defaults
	rfbDefaults := defaultRFB()
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"data_dir":         DefaultDataDir,
		"state_path":       DefaultStateFile,
		"max_source_mb":    DefaultMaxSourceMB,
		"concurrency":      DefaultConcurrency,
		"verbose":          false,
		"output":           DefaultOutput,
		"rfb.base_url":     rfbDefaults.BaseURL,
		"rfb.max_parts":    rfbDefaults.MaxParts,
		"rfb.retries":      rfbDefaults.Retries,
		"ui.listen":        DefaultListen,
		"ui.watch":         true,
		"ui.preview_limit": DefaultPreviewLimit,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if cfgFile == "" {
		cfgFile = findConfigIn(projectRoot)
	}
	configFileUsed = cfgFile
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// 3. Environment variables: CNPJKIT_RFB_MAX_PARTS -> rfb.max_parts
	if err := k.Load(env.Provider("CNPJKIT_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "CNPJKIT_"))
		for _, prefix := range []string{"rfb_", "target_", "ui_"} {
			if strings.HasPrefix(key, prefix) {
				return strings.TrimSuffix(prefix, "_") + "." + strings.TrimPrefix(key, prefix)
			}
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")

			// The CLI uses --state for brevity; the config key is state_path.
			if key == "state" {
				return "state_path", posflag.FlagVal(flags, f)
			}
			// --target selects the warehouse type.
			if key == "target" {
				return "target.type", posflag.FlagVal(flags, f)
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Resolve paths against the project root
	cfg.ProjectRoot = projectRoot
	cfg.DataDir = resolvePathRelativeTo(cfg.DataDir, projectRoot)
	cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, projectRoot)

	// 7. Target defaults and credential expansion
	if cfg.Target == nil {
		cfg.Target = &TargetConfig{
			Type:     "duckdb",
			Database: filepath.Join(cfg.DataDir, "cnpj.duckdb"),
		}
	}
	ApplyTargetDefaults(cfg.Target)
	expandTargetEnvVars(cfg.Target)
	if cfg.Target.Type == "duckdb" && cfg.Target.Database != "" && cfg.Target.Database != ":memory:" {
		cfg.Target.Database = resolvePathRelativeTo(cfg.Target.Database, projectRoot)
	}

	if err := cfg.Target.Validate(); err != nil {
		return nil, fmt.Errorf("invalid target configuration: %w", err)
	}

	return &cfg, nil
}

// FileUsed returns the path to the config file being used, if any.
func FileUsed() string {
	return configFileUsed
}

// LoggerKey returns the context key used for storing the logger, so the
// commands package can retrieve it without an import cycle.
func LoggerKey() interface{} {
	return loggerKey{}
}

// configKey is used to store the loaded config in the command context.
type configKey struct{}

// ConfigKey returns the context key used for storing the config.
func ConfigKey() interface{} {
	return configKey{}
}

// GetConfig retrieves the config from the command context, or a freshly
// loaded default when none was stored.
func GetConfig(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	cfg, err := Load("", nil)
	if err != nil {
		cfg = &Config{
			DataDir:     DefaultDataDir,
			StatePath:   DefaultStateFile,
			MaxSourceMB: DefaultMaxSourceMB,
			Concurrency: DefaultConcurrency,
			Output:      DefaultOutput,
			RFB:         defaultRFB(),
			Target:      &TargetConfig{Type: "duckdb"},
			UI:          UIConfig{Listen: DefaultListen, Watch: true, PreviewLimit: DefaultPreviewLimit},
		}
		ApplyTargetDefaults(cfg.Target)
	}
	return cfg
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// expandEnvVars expands ${VAR} patterns with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})
}

// expandTargetEnvVars expands environment variables in sensitive target
// fields.
func expandTargetEnvVars(t *TargetConfig) {
	if t == nil {
		return
	}
	t.Password = expandEnvVars(t.Password)
	t.User = expandEnvVars(t.User)
	t.Host = expandEnvVars(t.Host)
	t.Database = expandEnvVars(t.Database)
}
