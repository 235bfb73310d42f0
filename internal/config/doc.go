// Package config loads runtime configuration for vaultctl.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-d string   data directory holding the store database and key file
//	-b string   storage backend: sqlite or s3
//	-t int      auto-lock timeout (seconds, 0 disables)
//	-l string   log level: debug, info, warn or error
//
// The auto-lock timeout is also saved in the vault store by the timeout
// command. A -t flag or auto_lock_timeout key replaces the saved value at
// startup; without either the saved value is kept.
//
// # JSON schema
//
// Durations use timex.Duration, so they can be strings like "15m" or integer
// seconds. S3 settings are JSON only:
//
//	{
//	  "data_dir": "vaultdata",
//	  "backend": "s3",
//	  "s3_region": "eu-central-1",
//	  "s3_base_endpoint": "http://127.0.0.1:9000",
//	  "s3_bucket": "vault",
//	  "s3_access_key": "minio",
//	  "s3_secret_key": "minio123",
//	  "s3_prefix": "alice/",
//	  "auto_lock_timeout": "1h",
//	  "log_level": "debug"
//	}
package config
