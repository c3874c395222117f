// Package config loads service configuration from assetforge.yml and
// ASSETFORGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// FileName is the configuration file base name, without extension
const FileName = "assetforge"

// EnvPrefix prefixes environment overrides, e.g. ASSETFORGE_COMPILE_WORKERS
const EnvPrefix = "ASSETFORGE"

// Config is the full service configuration
type Config struct {
	ContentRoot  string         `mapstructure:"content_root"`
	CompiledRoot string         `mapstructure:"compiled_root"`
	Database     DatabaseConfig `mapstructure:"database"`
	Cache        CacheConfig    `mapstructure:"cache"`
	Compile      CompileConfig  `mapstructure:"compile"`
	Preview      PreviewConfig  `mapstructure:"preview"`
	Watch        WatchConfig    `mapstructure:"watch"`
	RPC          RPCConfig      `mapstructure:"rpc"`
	HTTP         HTTPConfig     `mapstructure:"http"`
	Log          LogConfig      `mapstructure:"log"`
}

// DatabaseConfig selects the asset database
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// CacheConfig selects the residency backend for cached assets
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// RedisConfig is used when the cache backend is redis
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CompileConfig tunes the compiler orchestrator
type CompileConfig struct {
	// Workers is the compile pool size; zero means one per CPU
	Workers        int `mapstructure:"workers"`
	TextureMaxSize int `mapstructure:"texture_max_size"`
}

// PreviewConfig tunes the thumbnail service
type PreviewConfig struct {
	Workers int `mapstructure:"workers"`
	Size    int `mapstructure:"size"`
}

// WatchConfig controls the content root watcher
type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
	Ignore   []string      `mapstructure:"ignore"`
}

// RPCConfig controls the JSON-RPC listener
type RPCConfig struct {
	Listen string `mapstructure:"listen"`
}

// HTTPConfig controls the HTTP inspection API
type HTTPConfig struct {
	Listen      string `mapstructure:"listen"`
	TokenSecret string `mapstructure:"token_secret"`
}

// LogConfig controls logging
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration from the working directory
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom reads configuration from dir. A missing file is not an error;
// defaults and environment overrides still apply. Relative roots are resolved
// against dir.
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	cfg.ContentRoot = resolve(dir, cfg.ContentRoot)
	cfg.CompiledRoot = resolve(dir, cfg.CompiledRoot)
	if cfg.Database.Driver == "sqlite3" && cfg.Database.DSN != ":memory:" {
		cfg.Database.DSN = resolve(dir, cfg.Database.DSN)
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is configured
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("content_root", "content")
	v.SetDefault("compiled_root", ".assetforge/compiled")
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", ".assetforge/assets.db")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", "0s")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("compile.workers", 0)
	v.SetDefault("compile.texture_max_size", 0)
	v.SetDefault("preview.workers", 2)
	v.SetDefault("preview.size", 128)
	v.SetDefault("watch.enabled", true)
	v.SetDefault("watch.debounce", "100ms")
	v.SetDefault("watch.ignore", []string{"*.swp", "*~", "*.tmp-*"})
	v.SetDefault("rpc.listen", "127.0.0.1:7420")
	v.SetDefault("http.listen", "127.0.0.1:7421")
	v.SetDefault("http.token_secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

func validate(cfg *Config) error {
	if cfg.ContentRoot == "" {
		return fmt.Errorf("content_root must not be empty")
	}
	if cfg.CompiledRoot == "" {
		return fmt.Errorf("compiled_root must not be empty")
	}
	switch cfg.Database.Driver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("database.driver must be sqlite3 or pgx, got: %s", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn must not be empty")
	}
	switch cfg.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got: %s", cfg.Cache.Backend)
	}
	if cfg.Compile.Workers < 0 {
		return fmt.Errorf("compile.workers must not be negative, got: %d", cfg.Compile.Workers)
	}
	if cfg.Compile.TextureMaxSize < 0 {
		return fmt.Errorf("compile.texture_max_size must not be negative, got: %d", cfg.Compile.TextureMaxSize)
	}
	if cfg.Preview.Workers < 1 {
		return fmt.Errorf("preview.workers must be at least 1, got: %d", cfg.Preview.Workers)
	}
	if cfg.Preview.Size < 1 || cfg.Preview.Size > 1024 {
		return fmt.Errorf("preview.size must be between 1 and 1024, got: %d", cfg.Preview.Size)
	}
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got: %s", cfg.Watch.Debounce)
	}
	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level is invalid: %w", err)
	}
	return nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// Exists reports whether dir holds a configuration file
func Exists(dir string) bool {
	for _, ext := range []string{".yml", ".yaml"} {
		if _, err := os.Stat(filepath.Join(dir, FileName+ext)); err == nil {
			return true
		}
	}
	return false
}
