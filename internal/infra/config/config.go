package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/datallboy/blobsync/internal/domain"
)

const (
	StateBackendFile   = "file"
	StateBackendSQLite = "sqlite"
)

type Config struct {
	Account   string `mapstructure:"account" yaml:"account"`
	Key       string `mapstructure:"key" yaml:"key"`
	Container string `mapstructure:"container" yaml:"container"`
	// Endpoint overrides https://<account>.blob.core.windows.net, e.g. for the emulator.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	Transfer TransferConfig `mapstructure:"transfer" yaml:"transfer"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

type TransferConfig struct {
	Workers   int   `mapstructure:"workers" yaml:"workers"`
	BlockSize int64 `mapstructure:"block_size" yaml:"block_size"`
	// Retries is the number of extra attempts per block. 0 fails fast.
	Retries int `mapstructure:"retries" yaml:"retries"`
	// RetryDelay is the first backoff interval; it grows exponentially.
	RetryDelay   time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	StateBackend string        `mapstructure:"state_backend" yaml:"state_backend"`
	StatePath    string        `mapstructure:"state_path" yaml:"state_path"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

// Load reads path (YAML) when it exists, then applies BLOBSYNC_* environment
// overrides. A missing file is not an error: the client can run from env alone.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "blobsync.yaml"
	}

	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	v := viper.New()

	// Set Defaults
	v.SetDefault("container", "")
	v.SetDefault("account", "")
	v.SetDefault("key", "")
	v.SetDefault("endpoint", "")
	v.SetDefault("transfer.workers", 2)
	v.SetDefault("transfer.block_size", domain.DefaultBlockSize)
	v.SetDefault("transfer.retries", 0)
	v.SetDefault("transfer.retry_delay", "500ms")
	v.SetDefault("transfer.state_backend", StateBackendFile)
	v.SetDefault("transfer.state_path", "blobsync.db")
	v.SetDefault("log.path", "blobsync.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("server.port", "10000")

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	// Support Environment Variables
	v.SetEnvPrefix("BLOBSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings needed to talk to a store.
func (c *Config) Validate() error {
	if c.Container == "" {
		return errors.New("container is required")
	}
	if c.Endpoint == "" && c.Account == "" {
		return errors.New("either account or endpoint must be configured")
	}
	return nil
}

// BaseURL returns the store endpoint without a trailing slash.
func (c *Config) BaseURL() string {
	if c.Endpoint != "" {
		return strings.TrimRight(c.Endpoint, "/")
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net", c.Account)
}

func (c *Config) validate() error {
	if c.Transfer.Workers <= 0 {
		// Default to a sane value
		c.Transfer.Workers = 2
	}

	if c.Transfer.BlockSize <= 0 {
		c.Transfer.BlockSize = domain.DefaultBlockSize
	}

	if c.Transfer.Retries < 0 {
		return fmt.Errorf("transfer.retries must be >= 0, got %d", c.Transfer.Retries)
	}

	if c.Transfer.RetryDelay <= 0 {
		c.Transfer.RetryDelay = 500 * time.Millisecond
	}

	switch c.Transfer.StateBackend {
	case "":
		c.Transfer.StateBackend = StateBackendFile
	case StateBackendFile, StateBackendSQLite:
	default:
		return fmt.Errorf("unknown transfer.state_backend %q (want %q or %q)",
			c.Transfer.StateBackend, StateBackendFile, StateBackendSQLite)
	}

	if c.Transfer.StateBackend == StateBackendSQLite && c.Transfer.StatePath == "" {
		return errors.New("transfer.state_path is required for the sqlite state backend")
	}

	return nil
}
