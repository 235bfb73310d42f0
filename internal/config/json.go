package config

import (
	"encoding/json"
	"os"

	"github.com/lanedirt/AliasVault-sub004/internal/flagx"
	"github.com/lanedirt/AliasVault-sub004/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields tell an absent key apart from an empty value.
type JsonConfig struct {
	DataDir         *string         `json:"data_dir"`
	Backend         *string         `json:"backend"`
	S3Region        *string         `json:"s3_region"`
	S3BaseEndpoint  *string         `json:"s3_base_endpoint"`
	S3Bucket        *string         `json:"s3_bucket"`
	S3AccessKey     *string         `json:"s3_access_key"`
	S3SecretKey     *string         `json:"s3_secret_key"`
	S3Prefix        *string         `json:"s3_prefix"`
	AutoLockTimeout *timex.Duration `json:"auto_lock_timeout"`
	LogLevel        *string         `json:"log_level"`
}

func overlay(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// parseJson overlays Config with the keys present in the JSON file named by
// -c or -config. Without such a flag nothing happens. Read and unmarshal
// errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	overlay(&cfg.DataDir, jc.DataDir)
	overlay(&cfg.Backend, jc.Backend)
	overlay(&cfg.S3Region, jc.S3Region)
	overlay(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	overlay(&cfg.S3Bucket, jc.S3Bucket)
	overlay(&cfg.S3AccessKey, jc.S3AccessKey)
	overlay(&cfg.S3SecretKey, jc.S3SecretKey)
	overlay(&cfg.S3Prefix, jc.S3Prefix)
	overlay(&cfg.LogLevel, jc.LogLevel)
	if jc.AutoLockTimeout != nil {
		cfg.AutoLockTimeout = jc.AutoLockTimeout.Duration
		cfg.AutoLockTimeoutSet = true
	}
}
