package cryptox

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/lanedirt/AliasVault-sub004/internal/common"
)

// SealVault wraps a raw database image into the persisted blob format:
// base64( nonce || AES-GCM( base64(image) ) ).
func SealVault(image, key []byte) (string, error) {
	inner := []byte(base64.StdEncoding.EncodeToString(image))
	defer common.WipeByteArray(inner)

	sealed, err := Encrypt(inner, key)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt vault: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenVault is the inverse of SealVault. A blob that is not valid base64 or
// fails authentication yields common.ErrDecryptionFailed; a payload that
// decrypts but is not base64 yields common.ErrCorruptVault.
func OpenVault(blob string, key []byte) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(blob))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid blob encoding: %v", common.ErrDecryptionFailed, err)
	}

	inner, err := Decrypt(sealed, key)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(inner)

	image, err := base64.StdEncoding.DecodeString(string(inner))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid database encoding: %v", common.ErrCorruptVault, err)
	}
	return image, nil
}
