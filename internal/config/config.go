package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "yaml"
	envPrefix  = "REVBRIDGE"
)

// Config represents the revbridge configuration. Field tags use mapstructure
// for viper unmarshalling.
type Config struct {
	Conduit     ConduitConfig     `mapstructure:"conduit"`
	Parser      string            `mapstructure:"parser"`
	UsersFile   string            `mapstructure:"users_file"`
	MergePolicy string            `mapstructure:"merge_policy"`
	Format      string            `mapstructure:"format"`
	Materialize MaterializeConfig `mapstructure:"materialize"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Log         LogConfig         `mapstructure:"log"`

	// AllowEmptyTestPlan makes the local parser accept messages without a
	// test plan, for installs that do not require the field.
	AllowEmptyTestPlan bool `mapstructure:"allow_empty_test_plan"`
}

// ConduitConfig locates and authenticates against the review service.
type ConduitConfig struct {
	URI     string        `mapstructure:"uri"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

// MaterializeConfig controls how diffs are written to disk.
type MaterializeConfig struct {
	Workers         int  `mapstructure:"workers"`
	ContinueOnError bool `mapstructure:"continue_on_error"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Dir        string `mapstructure:"dir"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// LogConfig controls the diagnostic logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Allowed values for enumerated keys.
var (
	Parsers      = []string{"conduit", "local"}
	Policies     = []string{"append", "override"}
	Formats      = []string{"text", "json", "markdown"}
	LogLevels    = []string{"debug", "info", "warn", "error"}
	LogFormats   = []string{"text", "json"}
	defaultValue = map[string]any{
		"conduit.uri":                   "",
		"conduit.token":                 "",
		"conduit.timeout":               60 * time.Second,
		"conduit.retries":               3,
		"parser":                        "conduit",
		"users_file":                    "",
		"allow_empty_test_plan":         false,
		"merge_policy":                  "append",
		"format":                        "text",
		"materialize.workers":           1,
		"materialize.continue_on_error": false,
		"cache.enabled":                 true,
		"cache.dir":                     "",
		"cache.ttl_seconds":             3600,
		"log.level":                     "info",
		"log.format":                    "text",
	}
)

// Validation errors.
var (
	ErrInvalidParser    = errors.New("parser must be one of: conduit, local")
	ErrInvalidPolicy    = errors.New("merge_policy must be one of: append, override")
	ErrInvalidFormat    = errors.New("format must be one of: text, json, markdown")
	ErrInvalidWorkers   = errors.New("materialize.workers must be at least 1")
	ErrInvalidRetries   = errors.New("conduit.retries must not be negative")
	ErrInvalidTimeout   = errors.New("conduit.timeout must be positive")
	ErrInvalidTTL       = errors.New("cache.ttl_seconds must not be negative")
	ErrInvalidLogLevel  = errors.New("log.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat = errors.New("log.format must be one of: text, json")
	ErrUnknownKey       = errors.New("unknown config key")
)

// Keys returns every configuration key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(defaultValue))
	for k := range defaultValue {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Default returns a Config with all defaults applied.
func Default() Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(fmt.Sprintf("decoding defaults: %v", err))
	}
	return cfg
}

// ConfigDir returns the platform-appropriate config directory for revbridge.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "revbridge"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "revbridge"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "revbridge"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "revbridge"), nil
	default:
		return filepath.Join(home, ".config", "revbridge"), nil
	}
}

// ConfigPath returns the full path to the default config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configName+"."+configType), nil
}

// Load builds the effective config by merging defaults, the config file, the
// environment and overrides, each taking precedence over the last. If path is
// empty the default config path is used; a missing default file is not an
// error. Overrides come from explicitly set CLI flags and are keyed like the
// file ("conduit.uri").
func Load(path string, overrides map[string]any) (Config, error) {
	v := newViper()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.Is(err, os.ErrNotExist) || errors.As(err, &notFound)
		if explicit || !missing {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	for k, val := range overrides {
		if _, ok := defaultValue[k]; !ok {
			return Config{}, fmt.Errorf("%w: %s", ErrUnknownKey, k)
		}
		v.Set(k, val)
	}

	cfg, err := decode(v)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ReadFile loads defaults and the file at path only, ignoring the
// environment. It is the base that SetField edits before Save.
func ReadFile(path string) (Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType(configType)
	for k, val := range defaultValue {
		v.SetDefault(k, val)
	}
	return v
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate checks enumerated values and numeric ranges.
func (c Config) Validate() error {
	switch {
	case !slices.Contains(Parsers, c.Parser):
		return ErrInvalidParser
	case !slices.Contains(Policies, c.MergePolicy):
		return ErrInvalidPolicy
	case !slices.Contains(Formats, c.Format):
		return ErrInvalidFormat
	case c.Materialize.Workers < 1:
		return ErrInvalidWorkers
	case c.Conduit.Retries < 0:
		return ErrInvalidRetries
	case c.Conduit.Timeout <= 0:
		return ErrInvalidTimeout
	case c.Cache.TTLSeconds < 0:
		return ErrInvalidTTL
	case !slices.Contains(LogLevels, c.Log.Level):
		return ErrInvalidLogLevel
	case !slices.Contains(LogFormats, c.Log.Format):
		return ErrInvalidLogFormat
	}
	return nil
}

// Settings flattens cfg into dotted keys, the shape of the config file.
func (c Config) Settings() map[string]any {
	return map[string]any{
		"conduit.uri":                   c.Conduit.URI,
		"conduit.token":                 c.Conduit.Token,
		"conduit.timeout":               c.Conduit.Timeout.String(),
		"conduit.retries":               c.Conduit.Retries,
		"parser":                        c.Parser,
		"users_file":                    c.UsersFile,
		"allow_empty_test_plan":         c.AllowEmptyTestPlan,
		"merge_policy":                  c.MergePolicy,
		"format":                        c.Format,
		"materialize.workers":           c.Materialize.Workers,
		"materialize.continue_on_error": c.Materialize.ContinueOnError,
		"cache.enabled":                 c.Cache.Enabled,
		"cache.dir":                     c.Cache.Dir,
		"cache.ttl_seconds":             c.Cache.TTLSeconds,
		"log.level":                     c.Log.Level,
		"log.format":                    c.Log.Format,
	}
}

// Save writes cfg to path, or to the default config path when path is
// empty. The file may hold an API token and is created owner-only.
func Save(cfg Config, path string) (string, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return "", err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType(configType)
	for k, val := range cfg.Settings() {
		v.Set(k, val)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("writing config: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return "", fmt.Errorf("writing config: %w", err)
	}
	return path, nil
}

// SetField sets a single config field by key name and validates the result.
func SetField(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "conduit.uri":
		cfg.Conduit.URI = value
	case "conduit.token":
		cfg.Conduit.Token = value
	case "conduit.timeout":
		cfg.Conduit.Timeout, err = cast.ToDurationE(value)
	case "conduit.retries":
		cfg.Conduit.Retries, err = cast.ToIntE(value)
	case "parser":
		cfg.Parser = value
	case "users_file":
		cfg.UsersFile = value
	case "allow_empty_test_plan":
		cfg.AllowEmptyTestPlan, err = cast.ToBoolE(value)
	case "merge_policy":
		cfg.MergePolicy = value
	case "format":
		cfg.Format = value
	case "materialize.workers":
		cfg.Materialize.Workers, err = cast.ToIntE(value)
	case "materialize.continue_on_error":
		cfg.Materialize.ContinueOnError, err = cast.ToBoolE(value)
	case "cache.enabled":
		cfg.Cache.Enabled, err = cast.ToBoolE(value)
	case "cache.dir":
		cfg.Cache.Dir = value
	case "cache.ttl_seconds":
		cfg.Cache.TTLSeconds, err = cast.ToIntE(value)
	case "log.level":
		cfg.Log.Level = value
	case "log.format":
		cfg.Log.Format = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return cfg.Validate()
}
