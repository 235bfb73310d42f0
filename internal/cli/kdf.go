package cli

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lanedirt/AliasVault-sub004/internal/common"
	"github.com/lanedirt/AliasVault-sub004/internal/cryptox"
)

const (
	kdfSaltSize   = 16
	kdfEncryption = "Argon2Id"
)

// kdfParams is stored next to the vault so the master password can be turned
// back into the vault key.
type kdfParams struct {
	Salt           string `json:"salt"`
	EncryptionType string `json:"encryptionType"`
}

func newKDFParams() kdfParams {
	return kdfParams{
		Salt:           base64.StdEncoding.EncodeToString(common.GenerateRandByteArray(kdfSaltSize)),
		EncryptionType: kdfEncryption,
	}
}

func (p kdfParams) deriveKey(password []byte) ([]byte, error) {
	if p.EncryptionType != kdfEncryption {
		return nil, fmt.Errorf("unsupported key derivation %q", p.EncryptionType)
	}
	salt, err := base64.StdEncoding.DecodeString(p.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	return cryptox.DeriveMasterKey(password, salt), nil
}

func (a *App) loadKDFParams(ctx context.Context) (kdfParams, error) {
	var p kdfParams

	raw, err := a.engine.GetKeyDerivationParams(ctx)
	if err != nil {
		return p, err
	}
	if raw == "" {
		return p, errors.New("no key derivation parameters stored")
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("failed to parse key derivation parameters: %w", err)
	}
	return p, nil
}

func (a *App) storeKDFParams(ctx context.Context, p kdfParams) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode key derivation parameters: %w", err)
	}
	return a.engine.StoreKeyDerivationParams(ctx, string(b))
}

// keyFromPassword prompts for the master password and derives the vault key.
func (a *App) keyFromPassword(ctx context.Context) ([]byte, error) {
	p, err := a.loadKDFParams(ctx)
	if err != nil {
		return nil, err
	}

	password, err := GetPassword(a.out, "Master password")
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(password)

	return p.deriveKey(password)
}
