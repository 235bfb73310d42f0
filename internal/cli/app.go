package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/lanedirt/AliasVault-sub004/internal/blobstore"
	"github.com/lanedirt/AliasVault-sub004/internal/config"
	"github.com/lanedirt/AliasVault-sub004/internal/engine"
	"github.com/lanedirt/AliasVault-sub004/internal/filex"
	"github.com/lanedirt/AliasVault-sub004/internal/keyguard"
	"github.com/lanedirt/AliasVault-sub004/internal/logging"
	"github.com/lanedirt/AliasVault-sub004/internal/repositories/metadata"
	"github.com/lanedirt/AliasVault-sub004/internal/securestore"
)

const (
	storeFileName    = "vault.db"
	keystoreFileName = "keystore.bin"
	lockFileName     = "vaultctl.lock"
)

type App struct {
	engine  *engine.Engine
	logger  logging.Logger
	reader  *bufio.Reader
	out     io.Writer
	closers []func() error
}

func newApp(eng *engine.Engine, logger logging.Logger, in io.Reader, out io.Writer) *App {
	return &App{engine: eng, logger: logger, reader: bufio.NewReader(in), out: out}
}

// NewApp builds the engine for cfg. The data directory is locked for the
// lifetime of the App; a second vaultctl on the same directory fails fast.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, "json")

	dataDir, err := filex.EnsureDir(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare data dir: %w", err)
	}

	dirLock := flock.New(filepath.Join(dataDir, lockFileName))
	locked, err := dirLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock data dir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("data dir %s is in use by another process", dataDir)
	}

	app := &App{logger: logger, reader: bufio.NewReader(os.Stdin), out: os.Stdout}
	app.closers = append(app.closers, dirLock.Unlock)

	repo, err := app.openRepository(ctx, cfg, dataDir)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	secure := securestore.NewFile(filepath.Join(dataDir, keystoreFileName), securestore.NewTermAuthenticator())
	keys := keyguard.New(secure, logger)
	app.engine = engine.New(keys, blobstore.New(repo), logger)

	if err := app.engine.Restore(ctx); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to restore settings: %w", err)
	}
	if cfg.AutoLockTimeoutSet {
		if err := app.engine.SetAutoLockTimeout(ctx, int(cfg.AutoLockTimeout.Seconds())); err != nil {
			_ = app.Close()
			return nil, err
		}
	}

	logger.Info(ctx, "vaultctl started", "data_dir", dataDir, "backend", cfg.Backend)
	return app, nil
}

func (a *App) openRepository(ctx context.Context, cfg *config.Config, dataDir string) (metadata.Repository, error) {
	switch cfg.Backend {
	case config.BackendS3:
		client, err := metadata.NewS3Client(ctx, metadata.S3Options{
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return metadata.NewS3Repository(client, cfg.S3Bucket, cfg.S3Prefix), nil

	default:
		db, err := metadata.OpenSQLite(ctx, filepath.Join(dataDir, storeFileName))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return metadata.NewSQLiteRepository(db), nil
	}
}

// Run starts the REPL on stdin and releases every resource when it ends.
func (a *App) Run(ctx context.Context) {
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Error(ctx, "failed to close app", "error", err)
		}
	}()

	printlnFn("Welcome to vaultctl (type 'help' for commands)")
	runREPL(ctx, a, a.status, bufio.NewScanner(a.reader))
}

func (a *App) status() string {
	return a.engine.State().String()
}

// Close locks the vault and releases the store and the data dir lock, in
// reverse order of acquisition.
func (a *App) Close() error {
	if a.engine != nil {
		a.engine.ClearCache()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
