// Package config reads and writes rsearch configuration.
// Global settings live in ~/.rsearch/config.yaml and repository settings in
// .rsearch/config.yaml. Reading uses the local file when it exists, otherwise
// the global one. Writing defaults to global.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoConfigPath is returned when the config path cannot be determined.
	ErrNoConfigPath = errors.New("cannot determine config path")
	// ErrUnknownKey is returned when getting or setting an unknown key.
	ErrUnknownKey = errors.New("unknown config key")
	// ErrInvalidValue is returned when a config value is out of bounds.
	ErrInvalidValue = errors.New("invalid config value")
)

// Scope is where a configuration file lives.
type Scope int

const (
	// ScopeGlobal is user-wide config in ~/.rsearch/config.yaml (default)
	ScopeGlobal Scope = iota
	// ScopeLocal is repository config in .rsearch/config.yaml
	ScopeLocal
)

// Duration is a time.Duration written as "30s" or "1m30s" in YAML.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("%w: %q is not a duration", ErrInvalidValue, text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration in Go notation.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Pool holds worker pool settings.
type Pool struct {
	MaxWorkers       *int      `yaml:"max_workers,omitempty"`
	IdleTimeout      *Duration `yaml:"idle_timeout,omitempty"`
	InitTimeout      *Duration `yaml:"init_timeout,omitempty"`
	StuckGracePeriod *Duration `yaml:"stuck_grace_period,omitempty"`
	Inline           *bool     `yaml:"inline,omitempty"`
}

// Search holds default search settings.
type Search struct {
	Hidden     *bool   `yaml:"hidden,omitempty"`
	MaxColumns *int    `yaml:"max_columns,omitempty"`
	Context    *int    `yaml:"context,omitempty"`
	Engine     *string `yaml:"engine,omitempty"`
}

// Defaults applied when a value is not configured.
const (
	DefaultIdleTimeout      = 30 * time.Second
	DefaultInitTimeout      = 5 * time.Second
	DefaultStuckGracePeriod = 5 * time.Second
	DefaultEngine           = "re2"
	maxDefaultWorkers       = 4
)

// Validation bounds for configuration values.
const (
	MinMaxWorkers  = 1
	MaxMaxWorkers  = 64
	MaxDuration    = time.Hour
	MaxMaxColumns  = 100000
	MaxContextSize = 1000
)

// Config contains configuration for rsearch.
type Config struct {
	Pool   Pool   `yaml:"pool,omitempty"`
	Search Search `yaml:"search,omitempty"`

	// path is the file this config was loaded from (for Save)
	path  string
	scope Scope
}

// Validate checks that all configured values are within bounds. Unset values
// are valid; defaults apply.
func (c *Config) Validate() error {
	if v := c.Pool.MaxWorkers; v != nil && (*v < MinMaxWorkers || *v > MaxMaxWorkers) {
		return fmt.Errorf("%w: pool.max_workers must be between %d and %d, got %d",
			ErrInvalidValue, MinMaxWorkers, MaxMaxWorkers, *v)
	}
	durations := []struct {
		key      string
		value    *Duration
		zeroOkay bool
	}{
		{"pool.idle_timeout", c.Pool.IdleTimeout, true},
		{"pool.init_timeout", c.Pool.InitTimeout, false},
		{"pool.stuck_grace_period", c.Pool.StuckGracePeriod, false},
	}
	for _, d := range durations {
		if d.value == nil {
			continue
		}
		v := time.Duration(*d.value)
		if v < 0 || v > MaxDuration || (v == 0 && !d.zeroOkay) {
			return fmt.Errorf("%w: %s must be positive and at most %s, got %s",
				ErrInvalidValue, d.key, MaxDuration, v)
		}
	}
	if v := c.Search.MaxColumns; v != nil && (*v < 0 || *v > MaxMaxColumns) {
		return fmt.Errorf("%w: search.max_columns must be between 0 and %d, got %d",
			ErrInvalidValue, MaxMaxColumns, *v)
	}
	if v := c.Search.Context; v != nil && (*v < 0 || *v > MaxContextSize) {
		return fmt.Errorf("%w: search.context must be between 0 and %d, got %d",
			ErrInvalidValue, MaxContextSize, *v)
	}
	if v := c.Search.Engine; v != nil && *v != "re2" && *v != "pcre" {
		return fmt.Errorf("%w: search.engine must be re2 or pcre, got %q", ErrInvalidValue, *v)
	}
	return nil
}

// MaxWorkers returns the pool size (defaults to the CPU count, at most 4).
func (c *Config) MaxWorkers() int {
	if c.Pool.MaxWorkers == nil {
		return min(runtime.NumCPU(), maxDefaultWorkers)
	}
	return *c.Pool.MaxWorkers
}

// IdleTimeout returns the idle eviction timeout (defaults to 30s, 0 disables).
func (c *Config) IdleTimeout() time.Duration {
	return durationOr(c.Pool.IdleTimeout, DefaultIdleTimeout)
}

// InitTimeout returns the worker handshake timeout (defaults to 5s).
func (c *Config) InitTimeout() time.Duration {
	return durationOr(c.Pool.InitTimeout, DefaultInitTimeout)
}

// StuckGracePeriod returns how long an abandoned worker may still answer
// (defaults to 5s).
func (c *Config) StuckGracePeriod() time.Duration {
	return durationOr(c.Pool.StuckGracePeriod, DefaultStuckGracePeriod)
}

// Inline reports whether searches bypass the pool (defaults to false).
func (c *Config) Inline() bool {
	return c.Pool.Inline != nil && *c.Pool.Inline
}

// Hidden reports whether hidden files are searched (defaults to true).
func (c *Config) Hidden() bool {
	return c.Search.Hidden == nil || *c.Search.Hidden
}

// MaxColumns returns the default line truncation width (0 means none).
func (c *Config) MaxColumns() int {
	if c.Search.MaxColumns == nil {
		return 0
	}
	return *c.Search.MaxColumns
}

// Context returns the default number of context lines.
func (c *Config) Context() int {
	if c.Search.Context == nil {
		return 0
	}
	return *c.Search.Context
}

// Engine returns the default regex engine (defaults to re2).
func (c *Config) Engine() string {
	if c.Search.Engine == nil {
		return DefaultEngine
	}
	return *c.Search.Engine
}

func durationOr(d *Duration, fallback time.Duration) time.Duration {
	if d == nil {
		return fallback
	}
	return time.Duration(*d)
}

// LocalPath returns the path to the local (repository) config file.
func LocalPath() string {
	return filepath.Join(".rsearch", "config.yaml")
}

// GlobalPath returns the path to the global config file: ~/.rsearch/config.yaml
func GlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".rsearch", "config.yaml")
}

// Load reads configuration: uses local if it exists, otherwise global.
func Load() (*Config, error) {
	if _, err := os.Stat(LocalPath()); err == nil {
		return LoadScope(ScopeLocal)
	}
	return LoadScope(ScopeGlobal)
}

// LoadScope reads configuration from a specific scope. A missing file yields
// an empty configuration.
func LoadScope(scope Scope) (*Config, error) {
	path := pathForScope(scope)
	if path == "" {
		return &Config{scope: scope}, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{path: path, scope: scope}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("malformed config file %s: %w", path, err)
	}
	cfg.path = path
	cfg.scope = scope

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

// Scope returns which scope this config was loaded from.
func (c *Config) Scope() Scope {
	return c.scope
}

// Save writes the configuration to its original location.
func (c *Config) Save() error {
	if c.path == "" {
		c.path = pathForScope(c.scope)
	}
	if c.path == "" {
		return ErrNoConfigPath
	}
	return c.saveToPath(c.path)
}

// SaveScope writes the configuration to the specified scope.
func (c *Config) SaveScope(scope Scope) error {
	path := pathForScope(scope)
	if path == "" {
		return ErrNoConfigPath
	}
	return c.saveToPath(path)
}

// saveToPath writes through a temporary file and a rename so readers never
// see a partial file. Concurrent writers are serialised by a lock file next
// to the config.
func (c *Config) saveToPath(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking config file: %w", err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}

func pathForScope(scope Scope) string {
	switch scope {
	case ScopeLocal:
		return LocalPath()
	case ScopeGlobal:
		return GlobalPath()
	default:
		return ""
	}
}
