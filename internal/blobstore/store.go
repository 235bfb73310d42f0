// Package blobstore is the durable key-value surface of the vault: the
// encrypted blob plus the small documents kept next to it. It never
// interprets the blob itself.
package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lanedirt/AliasVault-sub004/internal/common"
	"github.com/lanedirt/AliasVault-sub004/internal/models"
	"github.com/lanedirt/AliasVault-sub004/internal/repositories/metadata"
)

// Persisted keys.
const (
	KeyEncryptedBlob       = "encrypted_db_blob"
	KeyVaultMetadata       = "vault_metadata"
	KeyAuthMethods         = "auth_methods"
	KeyAutoLockTimeout     = "auto_lock_timeout"
	KeyKeyDerivationParams = "encryption_key_derivation_params"
	DefaultAutoLockTimeout = 3600
)

type Store struct {
	repo metadata.Repository
}

func New(repo metadata.Repository) *Store {
	return &Store{repo: repo}
}

func storageErr(op, key string, err error) error {
	return fmt.Errorf("%w: failed to %s %s: %v", common.ErrStorage, op, key, err)
}

func (s *Store) getString(ctx context.Context, key string) (string, bool, error) {
	v, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", false, storageErr("read", key, err)
	}
	if v == nil {
		return "", false, nil
	}
	return string(v), true, nil
}

func (s *Store) setString(ctx context.Context, key, value string) error {
	if err := s.repo.Set(ctx, key, []byte(value)); err != nil {
		return storageErr("write", key, err)
	}
	return nil
}

// GetEncryptedBlob returns the base64 blob, or "" when none is stored.
func (s *Store) GetEncryptedBlob(ctx context.Context) (string, error) {
	v, _, err := s.getString(ctx, KeyEncryptedBlob)
	return v, err
}

func (s *Store) SetEncryptedBlob(ctx context.Context, blob string) error {
	return s.setString(ctx, KeyEncryptedBlob, blob)
}

// Exists reports whether an encrypted blob is stored.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	v, ok, err := s.getString(ctx, KeyEncryptedBlob)
	if err != nil {
		return false, err
	}
	return ok && v != "", nil
}

// GetMetadata returns the stored VaultMetadata JSON, or "" when absent.
func (s *Store) GetMetadata(ctx context.Context) (string, error) {
	v, _, err := s.getString(ctx, KeyVaultMetadata)
	return v, err
}

func (s *Store) SetMetadata(ctx context.Context, metadataJSON string) error {
	return s.setString(ctx, KeyVaultMetadata, metadataJSON)
}

// StoreVault writes the blob and its metadata in one batch.
func (s *Store) StoreVault(ctx context.Context, blob, metadataJSON string) error {
	err := s.repo.SetMany(ctx, map[string][]byte{
		KeyEncryptedBlob: []byte(blob),
		KeyVaultMetadata: []byte(metadataJSON),
	})
	if err != nil {
		return storageErr("write", "vault", err)
	}
	return nil
}

// GetAuthMethods returns the enabled auth methods; an unset value yields an
// empty list.
func (s *Store) GetAuthMethods(ctx context.Context) ([]string, error) {
	v, ok, err := s.getString(ctx, KeyAuthMethods)
	if err != nil || !ok {
		return []string{}, err
	}

	var methods []string
	if err := json.Unmarshal([]byte(v), &methods); err != nil {
		return nil, storageErr("decode", KeyAuthMethods, err)
	}
	if methods == nil {
		methods = []string{}
	}
	return methods, nil
}

func (s *Store) SetAuthMethods(ctx context.Context, methods []string) error {
	if methods == nil {
		methods = []string{}
	}
	b, err := json.Marshal(methods)
	if err != nil {
		return storageErr("encode", KeyAuthMethods, err)
	}
	return s.setString(ctx, KeyAuthMethods, string(b))
}

// GetAutoLockTimeout returns the timeout in seconds, DefaultAutoLockTimeout
// when unset.
func (s *Store) GetAutoLockTimeout(ctx context.Context) (int, error) {
	v, ok, err := s.getString(ctx, KeyAutoLockTimeout)
	if err != nil {
		return 0, err
	}
	if !ok {
		return DefaultAutoLockTimeout, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, storageErr("decode", KeyAutoLockTimeout, err)
	}
	return n, nil
}

func (s *Store) SetAutoLockTimeout(ctx context.Context, seconds int) error {
	if seconds < 0 {
		return fmt.Errorf("%w: negative auto-lock timeout %d", common.ErrStorage, seconds)
	}
	return s.setString(ctx, KeyAutoLockTimeout, strconv.Itoa(seconds))
}

// GetKeyDerivationParams returns the stored KDF parameters document, or ""
// when absent. The document is opaque to the engine.
func (s *Store) GetKeyDerivationParams(ctx context.Context) (string, error) {
	v, _, err := s.getString(ctx, KeyKeyDerivationParams)
	return v, err
}

func (s *Store) SetKeyDerivationParams(ctx context.Context, params string) error {
	return s.setString(ctx, KeyKeyDerivationParams, params)
}

// GetVaultMetadata parses the stored metadata; nil when none is stored.
func (s *Store) GetVaultMetadata(ctx context.Context) (*models.VaultMetadata, error) {
	v, ok, err := s.getString(ctx, KeyVaultMetadata)
	if err != nil || !ok {
		return nil, err
	}
	md, err := models.ParseVaultMetadata([]byte(v))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return md, nil
}

// Clear removes every stored value. It is safe on an empty store.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.repo.Clear(ctx); err != nil {
		return storageErr("clear", "store", err)
	}
	return nil
}

// Usage returns the size in bytes of each stored value, keyed by name.
func (s *Store) Usage(ctx context.Context) (map[string]int, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, storageErr("list", "store", err)
	}
	usage := make(map[string]int, len(all))
	for k, v := range all {
		usage[k] = len(v)
	}
	return usage, nil
}
