// Package cryptox implements the vault cipher: AES-256-GCM over opaque byte
// blobs with a fresh 96-bit nonce prepended to every ciphertext, plus the
// double-base64 envelope used for the persisted vault blob.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/lanedirt/AliasVault-sub004/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the only accepted key length (AES-256).
	KeySize = 32
	// NonceSize is the GCM standard nonce length.
	NonceSize = 12
)

// DeriveMasterKey stretches a secret into a 32-byte key using argon2id.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size %d, expected %d", len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext with key and returns nonce || ciphertext || tag.
//
// Example:
//
//	key := common.GenerateRandByteArray(cryptox.KeySize)
//	sealed, err := cryptox.Encrypt([]byte("hello"), key)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	plain, err := cryptox.Decrypt(sealed, key) // "hello"
func Encrypt(plaintext, key []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(NonceSize)

	out := make([]byte, 0, NonceSize+len(plaintext)+aesgcm.Overhead())
	out = append(out, nonce...)
	return aesgcm.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens a buffer produced by Encrypt. Every failure, including a
// truncated input or a key of the wrong size, is reported as
// common.ErrDecryptionFailed.
func Decrypt(data, key []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	if len(data) < NonceSize+aesgcm.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", common.ErrDecryptionFailed)
	}

	nonce, ciphertext := data[:NonceSize], data[NonceSize:]
	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
