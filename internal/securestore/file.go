package securestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/lanedirt/AliasVault-sub004/internal/common"
	"github.com/lanedirt/AliasVault-sub004/internal/cryptox"
	"github.com/lanedirt/AliasVault-sub004/internal/filex"
)

// Authenticator asks the user for the secret that gates the file store.
type Authenticator interface {
	Available() bool
	Secret(ctx context.Context, prompt string) ([]byte, error)
}

const (
	fileVersion = byte(1)
	saltSize    = 16
	lockRetry   = 50 * time.Millisecond
)

// File keeps the vault key at path as
// version(1) || salt(16) || AES-GCM(argon2id(secret, salt), key).
// Access is serialized across processes with a lock file next to it.
type File struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
	auth Authenticator
}

func NewFile(path string, auth Authenticator) *File {
	return &File{
		path: path,
		lock: flock.New(path + ".lock"),
		auth: auth,
	}
}

func (f *File) IsAvailable() bool {
	return f.auth != nil && f.auth.Available()
}

func (f *File) withLock(ctx context.Context, fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ok, err := f.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		if ctx.Err() != nil {
			return common.ErrAuthenticationCancelled
		}
		return fmt.Errorf("failed to lock %s: %w", f.lock.Path(), err)
	}
	if !ok {
		return fmt.Errorf("failed to lock %s", f.lock.Path())
	}
	defer func() { _ = f.lock.Unlock() }()

	return fn()
}

func (f *File) secret(ctx context.Context, prompt string) ([]byte, error) {
	if !f.IsAvailable() {
		return nil, common.ErrNoKeyAvailable
	}
	return f.auth.Secret(ctx, prompt)
}

func (f *File) Store(ctx context.Context, key []byte, prompt string) error {
	secret, err := f.secret(ctx, prompt)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)

	salt := common.GenerateRandByteArray(saltSize)
	wrapKey := cryptox.DeriveMasterKey(secret, salt)
	defer common.WipeByteArray(wrapKey)

	sealed, err := cryptox.Encrypt(key, wrapKey)
	if err != nil {
		return fmt.Errorf("failed to wrap key: %w", err)
	}

	data := make([]byte, 0, 1+saltSize+len(sealed))
	data = append(data, fileVersion)
	data = append(data, salt...)
	data = append(data, sealed...)

	return f.withLock(ctx, func() error {
		return filex.WriteFileAtomic(f.path, data, 0o600)
	})
}

func (f *File) Retrieve(ctx context.Context, prompt string) ([]byte, error) {
	// no key file means nothing to unlock; skip the lock file and the prompt
	ok, err := filex.Exists(f.path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrNoKeyAvailable
	}

	var data []byte
	err = f.withLock(ctx, func() error {
		var err error
		data, err = os.ReadFile(f.path)
		return err
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, common.ErrNoKeyAvailable
	}
	if err != nil {
		return nil, err
	}
	if len(data) < 1+saltSize || data[0] != fileVersion {
		return nil, fmt.Errorf("%w: unrecognized key file", common.ErrNoKeyAvailable)
	}

	secret, err := f.secret(ctx, prompt)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(secret)

	wrapKey := cryptox.DeriveMasterKey(secret, data[1:1+saltSize])
	defer common.WipeByteArray(wrapKey)

	key, err := cryptox.Decrypt(data[1+saltSize:], wrapKey)
	if err != nil {
		return nil, common.ErrAuthenticationFailed
	}
	return key, nil
}

func (f *File) Remove(ctx context.Context) error {
	return f.withLock(ctx, func() error {
		err := os.Remove(f.path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	})
}
