package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Config holds runtime settings for vaultctl.
type Config struct {
	DataDir string
	Backend string

	S3Region       string
	S3BaseEndpoint string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3Prefix       string

	AutoLockTimeout time.Duration
	// AutoLockTimeoutSet is true when -t or auto_lock_timeout was given.
	// Only then does the timeout replace the one saved in the vault store.
	AutoLockTimeoutSet bool

	LogLevel string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = "vaultdata"
	c.Backend = BackendSQLite
	c.AutoLockTimeout = time.Hour
	c.LogLevel = "info"
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
	case BackendS3:
		if c.S3Bucket == "" {
			return errors.New("s3 backend requires s3_bucket")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.AutoLockTimeout < 0 {
		return fmt.Errorf("negative auto-lock timeout %s", c.AutoLockTimeout)
	}
	return nil
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
