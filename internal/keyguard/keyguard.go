// Package keyguard owns the symmetric vault key. The key is kept sealed in a
// memguard enclave while in memory and, when biometric unlock is enabled,
// mirrored into a SecureStore so a later unlock can re-prompt instead of
// asking for the master password.
package keyguard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/lanedirt/AliasVault-sub004/internal/common"
	"github.com/lanedirt/AliasVault-sub004/internal/cryptox"
	"github.com/lanedirt/AliasVault-sub004/internal/logging"
	"github.com/lanedirt/AliasVault-sub004/internal/models"
)

type State int

const (
	NoKey State = iota
	KeyInMemory
	KeyInMemoryAndSecureStore
)

func (s State) String() string {
	switch s {
	case KeyInMemory:
		return "key-in-memory"
	case KeyInMemoryAndSecureStore:
		return "key-in-memory-and-secure-store"
	default:
		return "no-key"
	}
}

const (
	storePrompt    = "Authenticate to enable biometric unlock"
	retrievePrompt = "Authenticate to unlock your vault"
)

type KeyGuard struct {
	mu        sync.Mutex
	store     SecureStore
	logger    logging.Logger
	enclave   *memguard.Enclave
	biometric bool
	// stored is true while the secure store is known to hold the current key.
	stored bool
}

// New returns a KeyGuard without a key. store may be nil on platforms
// without a secure store.
func New(store SecureStore, logger logging.Logger) *KeyGuard {
	return &KeyGuard{store: store, logger: logger}
}

func (g *KeyGuard) storeAvailable() bool {
	return g.biometric && g.store != nil && g.store.IsAvailable()
}

func (g *KeyGuard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.enclave == nil:
		return NoKey
	case g.stored:
		return KeyInMemoryAndSecureStore
	default:
		return KeyInMemory
	}
}

// HasKey reports whether a key is held in memory. It never prompts.
func (g *KeyGuard) HasKey() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enclave != nil
}

// SetKey caches key in memory and, with biometric enabled, persists it to the
// secure store. A persistence failure is logged and not returned.
func (g *KeyGuard) SetKey(ctx context.Context, key []byte) error {
	if len(key) != cryptox.KeySize {
		return fmt.Errorf("invalid key size %d, expected %d", len(key), cryptox.KeySize)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// NewEnclave wipes its argument
	g.enclave = memguard.NewEnclave(common.CloneBytes(key))
	g.stored = false

	if !g.storeAvailable() {
		return nil
	}
	if err := g.store.Store(ctx, key, storePrompt); err != nil {
		g.logger.Warn(ctx, "failed to persist key to secure store", "error", err)
		return nil
	}
	g.stored = true
	return nil
}

// GetKey returns a copy of the vault key. Without an in-memory key it
// prompts the secure store (biometric only) and caches the result. The caller
// should wipe the returned slice when done.
func (g *KeyGuard) GetKey(ctx context.Context) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.enclave != nil {
		return openEnclave(g.enclave)
	}

	if !g.storeAvailable() {
		return nil, common.ErrNoKeyAvailable
	}

	key, err := g.store.Retrieve(ctx, retrievePrompt)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrAuthenticationCancelled),
			errors.Is(err, common.ErrAuthenticationFailed),
			errors.Is(err, common.ErrNoKeyAvailable):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", common.ErrNoKeyAvailable, err)
		}
	}
	if len(key) != cryptox.KeySize {
		common.WipeByteArray(key)
		return nil, fmt.Errorf("%w: stored key has invalid size", common.ErrNoKeyAvailable)
	}

	out := common.CloneBytes(key)
	g.enclave = memguard.NewEnclave(key)
	g.stored = true
	return out, nil
}

func openEnclave(e *memguard.Enclave) ([]byte, error) {
	buf, err := e.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrNoKeyAvailable, err)
	}
	defer buf.Destroy()
	return common.CloneBytes(buf.Bytes()), nil
}

// SetAuthMethods records the enabled methods. Without biometric the secure
// store copy is purged right away; the in-memory key is left alone.
func (g *KeyGuard) SetAuthMethods(ctx context.Context, methods []models.AuthMethod) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.biometric = models.HasAuthMethod(methods, models.AuthMethodBiometric)
	if g.biometric || g.store == nil {
		return nil
	}

	g.stored = false
	if err := g.store.Remove(ctx); err != nil {
		return fmt.Errorf("failed to purge secure store: %w", err)
	}
	return nil
}

// ClearKey drops the in-memory key only.
func (g *KeyGuard) ClearKey() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enclave = nil
}

// ClearAll drops the in-memory key and removes the secure store copy.
func (g *KeyGuard) ClearAll(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.enclave = nil
	g.stored = false
	if g.store == nil {
		return nil
	}
	if err := g.store.Remove(ctx); err != nil {
		return fmt.Errorf("failed to purge secure store: %w", err)
	}
	return nil
}
