// Package engine orchestrates the local vault: it fetches the key from the
// KeyGuard, opens the encrypted blob, assembles the in-memory database and
// re-seals it on every commit.
//
// All operations are serialized by one mutex, including the auto-lock timer,
// so a lock can never interleave with a query or a commit.
package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lanedirt/AliasVault-sub004/internal/assembler"
	"github.com/lanedirt/AliasVault-sub004/internal/autofill"
	"github.com/lanedirt/AliasVault-sub004/internal/blobstore"
	"github.com/lanedirt/AliasVault-sub004/internal/common"
	"github.com/lanedirt/AliasVault-sub004/internal/cryptox"
	"github.com/lanedirt/AliasVault-sub004/internal/keyguard"
	"github.com/lanedirt/AliasVault-sub004/internal/logging"
	"github.com/lanedirt/AliasVault-sub004/internal/models"
)

type State int

const (
	Locked State = iota
	Unlocking
	Unlocked
)

func (s State) String() string {
	switch s {
	case Unlocking:
		return "unlocking"
	case Unlocked:
		return "unlocked"
	default:
		return "locked"
	}
}

// Timer is the part of *time.Timer the auto-lock needs.
type Timer interface {
	Stop() bool
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithAfterFunc replaces time.AfterFunc for the auto-lock timer.
func WithAfterFunc(f func(d time.Duration, fn func()) Timer) Option {
	return func(e *Engine) { e.afterFunc = f }
}

type Engine struct {
	mu     sync.Mutex
	state  State
	keys   *keyguard.KeyGuard
	store  *blobstore.Store
	handle *assembler.Handle
	logger logging.Logger

	now       func() time.Time
	afterFunc func(d time.Duration, fn func()) Timer
	timer     Timer
	deadline  time.Time
	// gen invalidates timers that fired after being superseded.
	gen uint64
}

func New(keys *keyguard.KeyGuard, store *blobstore.Store, logger logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		keys:   keys,
		store:  store,
		logger: logger,
		now:    time.Now,
		afterFunc: func(d time.Duration, fn func()) Timer {
			return time.AfterFunc(d, fn)
		},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Restore loads the persisted auth methods into the KeyGuard. It should be
// called once after construction so biometric unlock works across restarts.
func (e *Engine) Restore(ctx context.Context) error {
	methods, err := e.store.GetAuthMethods(ctx)
	if err != nil {
		return err
	}
	return e.keys.SetAuthMethods(ctx, models.AuthMethodsFromStrings(methods))
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Unlock opens the stored vault. When decryption fails with a cached key the
// key is dropped and one more attempt is made with a freshly fetched key. On
// failure the engine stays Locked and no key is kept.
func (e *Engine) Unlock(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.disposeHandle()
	e.state = Unlocking

	cached := e.keys.HasKey()
	err := e.unlockOnce(ctx)
	if err != nil && cached && errors.Is(err, common.ErrDecryptionFailed) {
		e.logger.Warn(ctx, "vault decryption failed with cached key, retrying", "error", err)
		e.keys.ClearKey()
		if retryErr := e.unlockOnce(ctx); retryErr == nil || !errors.Is(retryErr, common.ErrNoKeyAvailable) {
			err = retryErr
		}
	}

	if err != nil {
		e.keys.ClearKey()
		e.state = Locked
		e.logger.Error(ctx, "failed to unlock vault", "error", err)
		return err
	}

	e.state = Unlocked
	e.logger.Info(ctx, "vault unlocked")
	return nil
}

func (e *Engine) unlockOnce(ctx context.Context) error {
	key, err := e.keys.GetKey(ctx)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	blob, err := e.store.GetEncryptedBlob(ctx)
	if err != nil {
		return err
	}
	if blob == "" {
		return fmt.Errorf("%w: no encrypted vault stored", common.ErrStorage)
	}

	image, err := cryptox.OpenVault(blob, key)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(image)

	h, err := assembler.Load(ctx, image)
	if err != nil {
		return err
	}
	e.handle = h
	return nil
}

// IsUnlocked reports whether a key is in memory and the database is live.
// It never prompts.
func (e *Engine) IsUnlocked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle != nil && e.handle.IsOpen() && e.keys.HasKey()
}

func (e *Engine) requireHandle() (*assembler.Handle, error) {
	if e.handle == nil || !e.handle.IsOpen() {
		return nil, common.ErrNotInitialized
	}
	return e.handle, nil
}

func (e *Engine) ExecuteQuery(ctx context.Context, query string, params ...any) ([]assembler.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.requireHandle()
	if err != nil {
		return nil, err
	}
	return h.Query(ctx, query, params...)
}

// ExecuteUpdate returns the number of rows changed.
func (e *Engine) ExecuteUpdate(ctx context.Context, query string, params ...any) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.requireHandle()
	if err != nil {
		return 0, err
	}
	return h.Execute(ctx, query, params...)
}

func (e *Engine) ExecuteRaw(ctx context.Context, script string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.requireHandle()
	if err != nil {
		return err
	}
	return h.ExecuteRaw(ctx, script)
}

func (e *Engine) BeginTransaction(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.requireHandle()
	if err != nil {
		return err
	}
	return h.Begin(ctx)
}

// CommitTransaction commits the open transaction, if any, then re-seals the
// whole database and persists the new blob.
func (e *Engine) CommitTransaction(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.requireHandle()
	if err != nil {
		return err
	}
	if h.InTransaction() {
		if err := h.Commit(ctx); err != nil {
			return err
		}
	}
	return e.persist(ctx, h)
}

func (e *Engine) persist(ctx context.Context, h *assembler.Handle) error {
	image, err := h.Export(ctx)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(image)

	key, err := e.keys.GetKey(ctx)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	blob, err := cryptox.SealVault(image, key)
	if err != nil {
		return fmt.Errorf("failed to seal vault: %w", err)
	}
	if err := e.store.SetEncryptedBlob(ctx, blob); err != nil {
		return err
	}
	e.logger.Debug(ctx, "vault persisted", "blob_size", len(blob))
	return nil
}

func (e *Engine) RollbackTransaction(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.requireHandle()
	if err != nil {
		return err
	}
	return h.Rollback(ctx)
}

// StoreEncryptedDatabase stores a blob received from the server as is. The
// live database is not reloaded.
func (e *Engine) StoreEncryptedDatabase(ctx context.Context, blob string) error {
	return e.store.SetEncryptedBlob(ctx, blob)
}

func (e *Engine) GetEncryptedDatabase(ctx context.Context) (string, error) {
	return e.store.GetEncryptedBlob(ctx)
}

func (e *Engine) HasEncryptedDatabase(ctx context.Context) (bool, error) {
	return e.store.Exists(ctx)
}

// StorageUsage reports the persisted values and their sizes in bytes.
func (e *Engine) StorageUsage(ctx context.Context) (map[string]int, error) {
	return e.store.Usage(ctx)
}

// StoreMetadata validates and stores a VaultMetadata JSON document.
func (e *Engine) StoreMetadata(ctx context.Context, metadataJSON string) error {
	if _, err := models.ParseVaultMetadata([]byte(metadataJSON)); err != nil {
		return err
	}
	return e.store.SetMetadata(ctx, metadataJSON)
}

// GetVaultMetadata returns nil when no metadata is stored.
func (e *Engine) GetVaultMetadata(ctx context.Context) (*models.VaultMetadata, error) {
	return e.store.GetVaultMetadata(ctx)
}

func (e *Engine) StoreKeyDerivationParams(ctx context.Context, params string) error {
	return e.store.SetKeyDerivationParams(ctx, params)
}

func (e *Engine) GetKeyDerivationParams(ctx context.Context) (string, error) {
	return e.store.GetKeyDerivationParams(ctx)
}

// StoreEncryptionKey hands a base64 encoded 32-byte key to the KeyGuard.
func (e *Engine) StoreEncryptionKey(ctx context.Context, base64Key string) error {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return fmt.Errorf("failed to decode encryption key: %w", err)
	}
	defer common.WipeByteArray(key)

	if len(key) != cryptox.KeySize {
		return fmt.Errorf("invalid encryption key size %d, expected %d", len(key), cryptox.KeySize)
	}
	return e.keys.SetKey(ctx, key)
}

func (e *Engine) SetAuthMethods(ctx context.Context, methods []models.AuthMethod) error {
	if err := e.store.SetAuthMethods(ctx, models.AuthMethodsToStrings(methods)); err != nil {
		return err
	}
	return e.keys.SetAuthMethods(ctx, methods)
}

func (e *Engine) GetAuthMethods(ctx context.Context) ([]models.AuthMethod, error) {
	methods, err := e.store.GetAuthMethods(ctx)
	if err != nil {
		return nil, err
	}
	return models.AuthMethodsFromStrings(methods), nil
}

// ClearCache locks the vault: the in-memory key and database are dropped
// together. The stored blob and secure store copy are kept.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearCache()
}

func (e *Engine) clearCache() {
	e.keys.ClearKey()
	e.disposeHandle()
	e.state = Locked
}

func (e *Engine) disposeHandle() {
	if e.handle != nil {
		e.handle.Dispose()
		e.handle = nil
	}
}

// ClearVault locks the vault and removes every persisted trace of it.
func (e *Engine) ClearVault(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopTimer()
	e.clearCache()
	err := errors.Join(e.keys.ClearAll(ctx), e.store.Clear(ctx))
	if err != nil {
		return err
	}
	e.logger.Info(ctx, "vault cleared")
	return nil
}

// GetVaultRevisionNumber returns 0 when no metadata is stored.
func (e *Engine) GetVaultRevisionNumber(ctx context.Context) (int, error) {
	md, err := e.store.GetVaultMetadata(ctx)
	if err != nil {
		return 0, err
	}
	if md == nil {
		return 0, nil
	}
	return md.VaultRevisionNumber, nil
}

// SetVaultRevisionNumber rewrites the revision in the stored metadata,
// keeping the other fields.
func (e *Engine) SetVaultRevisionNumber(ctx context.Context, revision int) error {
	md, err := e.store.GetVaultMetadata(ctx)
	if err != nil {
		return err
	}
	if md == nil {
		md = &models.VaultMetadata{}
	}
	md.VaultRevisionNumber = revision

	b, err := md.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode vault metadata: %w", err)
	}
	return e.store.SetMetadata(ctx, string(b))
}

// CreateVault stores a new empty vault sealed with key, at revision 0. The
// engine stays locked; call Unlock to open it.
func (e *Engine) CreateVault(ctx context.Context, key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	image, err := assembler.NewEmpty(ctx)
	if err != nil {
		return fmt.Errorf("failed to build empty vault: %w", err)
	}
	defer common.WipeByteArray(image)

	e.disposeHandle()
	e.state = Locked
	if err := e.keys.SetKey(ctx, key); err != nil {
		return err
	}

	blob, err := cryptox.SealVault(image, key)
	if err != nil {
		return fmt.Errorf("failed to seal vault: %w", err)
	}
	md, err := models.VaultMetadata{}.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode vault metadata: %w", err)
	}
	if err := e.store.StoreVault(ctx, blob, string(md)); err != nil {
		return err
	}

	e.logger.Info(ctx, "vault created")
	return nil
}

// MatchCredentialsForApp filters creds down to the ones relevant to appInfo,
// an app package name or a website URL.
func (e *Engine) MatchCredentialsForApp(creds []models.Credential, appInfo string) []models.Credential {
	return autofill.Match(creds, appInfo)
}
