package config

import (
	"flag"
	"io"
	"os"
	"time"

	"github.com/lanedirt/AliasVault-sub004/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   data directory
//	-b string   storage backend (sqlite or s3)
//	-t int      auto-lock timeout in seconds
//	-l string   log level
//
// Only the flags above are kept from os.Args (see flagx.FilterArgs), so -c
// and positional arguments do not interfere.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-b", "-t", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.Backend, "b", cfg.Backend, "storage backend: sqlite or s3")
	autoLock := fs.Int("t", int(cfg.AutoLockTimeout.Seconds()), "auto-lock timeout (in seconds, 0 disables)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			cfg.AutoLockTimeout = time.Duration(*autoLock) * time.Second
			cfg.AutoLockTimeoutSet = true
		}
	})
}
