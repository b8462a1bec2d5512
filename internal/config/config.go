// Package config loads the filesystem configuration from layered sources:
// embedded defaults, then an optional config file, then the HTTPFS_CONFIG_JSON
// environment variable. Later layers override earlier ones key by key.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

//go:embed config.default.yaml
var defaultConfig []byte

// CacheConfig controls the persistent block tier.
type CacheConfig struct {
	// Dir is the on-disk cache directory for the bolt backend. Empty means
	// a "httpfs-cache" directory under the user cache dir.
	Dir string `key:"dir"`

	// MaxBytes bounds the total stored block bytes.
	MaxBytes int64 `key:"maxBytes"`

	// Backend selects the store implementation: bolt, postgres or mongodb.
	Backend string `key:"backend"`

	PostgresDSN   string `key:"postgresDSN"`
	MongoURI      string `key:"mongoURI"`
	MongoDatabase string `key:"mongoDatabase"`
}

// FetchConfig controls the remote backends.
type FetchConfig struct {
	// TLSInsecure disables certificate verification for https backends.
	TLSInsecure bool `key:"tlsInsecure"`

	// AWSProfile selects a shared-credentials profile for the s3 backend.
	AWSProfile string `key:"awsProfile"`
}

// MountConfig controls the kernel mount.
type MountConfig struct {
	AllowOther bool `key:"allowOther"`
}

// MetricsConfig controls the optional metrics endpoint.
type MetricsConfig struct {
	// Address is the listen address for the Prometheus endpoint. Empty
	// disables it.
	Address string `key:"address"`
}

// Config is the full filesystem configuration.
type Config struct {
	// Schema is the backend protocol: http, https, ftp or s3. Empty means
	// infer it from the mountpoint basename.
	Schema string `key:"schema"`

	// BlockSize is the fetch/cache unit in bytes.
	BlockSize int64 `key:"blockSize"`

	// LRUCapacity bounds the in-memory caches by entry count.
	LRUCapacity int `key:"lruCapacity"`

	LogLevel string `key:"logLevel"`

	Cache   CacheConfig   `key:"cache"`
	Fetch   FetchConfig   `key:"fetch"`
	Mount   MountConfig   `key:"mount"`
	Metrics MetricsConfig `key:"metrics"`
}

// Load builds the configuration. path names an optional yaml or json config
// file; empty means defaults plus environment overrides only.
func Load(path string) (Config, error) {
	kf := koanf.New(".")

	if err := kf.Load(rawbytes.Provider(defaultConfig), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("loading default config: %w", err)
	}

	if path != "" {
		parser, err := parserFor(filepath.Ext(path))
		if err != nil {
			return Config{}, err
		}
		if err := kf.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if raw := os.Getenv("HTTPFS_CONFIG_JSON"); raw != "" {
		if err := kf.Load(rawbytes.Provider([]byte(raw)), json.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading HTTPFS_CONFIG_JSON: %w", err)
		}
	}

	var cfg Config
	if err := kf.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "key"}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

func parserFor(ext string) (koanf.Parser, error) {
	switch ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, errors.New("unsupported config format: " + ext)
	}
}

// CacheDir returns the configured cache directory, falling back to a
// per-user default.
func (c *Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolving user cache dir: %w", err)
	}
	return filepath.Join(base, "httpfs"), nil
}
