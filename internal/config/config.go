// Package config loads livetodo settings from config.yaml, a .env file and
// LIVETODO_* environment variables.
//
// Precedence, highest first: environment (including values loaded from
// .env), config.yaml, built-in defaults. Command-line flags are applied on
// top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/livetodo/pkg/types"
)

const (
	fileName = "config"
	fileType = "yaml"
	// FileExt is the file name of the configuration inside the config dir.
	FileExt = "config.yaml"
	// DotEnvFile is loaded from the config dir and the working directory.
	DotEnvFile = ".env"
	// EnvPrefix prefixes every environment override, e.g. LIVETODO_ADDR.
	EnvPrefix = "LIVETODO"
)

// Keys.
const (
	KeyBackend       = "backend"
	KeyDataDir       = "data_dir"
	KeyAddr          = "addr"
	KeyServerURL     = "server_url"
	KeyAllowedOrigin = "allowed_origin"
	KeyLogLevel      = "log_level"
	KeyLogFormat     = "log_format"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// ErrLogFormat is returned for a log_format other than text or json.
var ErrLogFormat = errors.New("log_format must be text or json")

// Config is the merged configuration.
type Config struct {
	Backend       string `mapstructure:"backend" yaml:"backend"`
	DataDir       string `mapstructure:"data_dir" yaml:"data_dir,omitempty"`
	Addr          string `mapstructure:"addr" yaml:"addr"`
	ServerURL     string `mapstructure:"server_url" yaml:"server_url,omitempty"`
	AllowedOrigin string `mapstructure:"allowed_origin" yaml:"allowed_origin,omitempty"`
	LogLevel      string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat     string `mapstructure:"log_format" yaml:"log_format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Backend:   types.BackendSQLite,
		Addr:      "127.0.0.1:8080",
		LogLevel:  "info",
		LogFormat: LogFormatText,
	}
}

// Load reads the configuration rooted at configDir. A missing config.yaml
// or .env is not an error.
func Load(configDir string) (Config, error) {
	if err := loadDotEnv(configDir); err != nil {
		return Config{}, err
	}

	v := viper.New()
	def := Default()
	v.SetDefault(KeyBackend, def.Backend)
	v.SetDefault(KeyDataDir, def.DataDir)
	v.SetDefault(KeyAddr, def.Addr)
	v.SetDefault(KeyServerURL, def.ServerURL)
	v.SetDefault(KeyAllowedOrigin, def.AllowedOrigin)
	v.SetDefault(KeyLogLevel, def.LogLevel)
	v.SetDefault(KeyLogFormat, def.LogFormat)

	v.SetConfigName(fileName)
	v.SetConfigType(fileType)
	v.AddConfigPath(configDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading %s: %w", filepath.Join(configDir, FileExt), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that Load cannot default away.
func (c Config) Validate() error {
	if err := c.StorageConfig("").Validate(); err != nil {
		return err
	}
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("%w: %q", ErrLogFormat, c.LogFormat)
	}
	return nil
}

// StorageConfig returns the storage configuration for dataDir.
func (c Config) StorageConfig(dataDir string) types.Config {
	return types.Config{Backend: c.Backend, DataDir: dataDir}
}

// loadDotEnv loads configDir/.env and ./.env. Variables already set in the
// environment are left alone.
func loadDotEnv(configDir string) error {
	for _, path := range []string{filepath.Join(configDir, DotEnvFile), DotEnvFile} {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

const defaultHeader = `# livetodo configuration
# Every key can be overridden with a LIVETODO_<KEY> environment variable.
`

// WriteDefault writes cfg to configDir/config.yaml unless the file exists.
// It reports whether the file was created.
func WriteDefault(configDir string, cfg Config) (bool, error) {
	path := filepath.Join(configDir, FileExt)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return false, fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return false, fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o644); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	return true, nil
}
