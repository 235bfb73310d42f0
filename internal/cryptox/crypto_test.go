package cryptox

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/lanedirt/AliasVault-sub004/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveMasterKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveMasterKey(password, salt)
	key2 := DeriveMasterKey(password, salt)

	// одинаковые входы -> одинаковый вывод
	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}

	// argon2id, t=1, m=64 MiB, p=4, 32 байта
	expectedHex := "9290403300158e19f27e48e7087f7383b03065bf5b25ef23ebc40229616cd8b3"
	if hex.EncodeToString(key1) != expectedHex {
		t.Errorf("expected %s, got %s", expectedHex, hex.EncodeToString(key1))
	}
}

func TestDeriveMasterKey_DifferentInputs(t *testing.T) {
	password := []byte("secret-password")

	key1 := DeriveMasterKey(password, []byte("salt-1"))
	key2 := DeriveMasterKey(password, []byte("salt-2"))

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)

	inputs := [][]byte{
		{},
		[]byte("a"),
		[]byte("hello vault"),
		common.GenerateRandByteArray(4096),
	}
	for _, in := range inputs {
		sealed, err := Encrypt(in, key)
		require.NoError(t, err)
		require.Len(t, sealed, NonceSize+len(in)+16)

		out, err := Decrypt(sealed, key)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(in, out))
	}
}

func TestEncrypt_FreshNonce(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)

	a, err := Encrypt([]byte("same"), key)
	require.NoError(t, err)
	b, err := Encrypt([]byte("same"), key)
	require.NoError(t, err)

	assert.NotEqual(t, a[:NonceSize], b[:NonceSize])
}

func TestDecrypt_TamperDetection(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)
	sealed, err := Encrypt([]byte("tamper me"), key)
	require.NoError(t, err)

	// каждый бит каждого байта
	for i := range sealed {
		for bit := 0; bit < 8; bit++ {
			mutated := common.CloneBytes(sealed)
			mutated[i] ^= 1 << bit

			_, err := Decrypt(mutated, key)
			require.ErrorIs(t, err, common.ErrDecryptionFailed, "byte %d bit %d", i, bit)
		}
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	key1 := common.GenerateRandByteArray(KeySize)
	key2 := common.GenerateRandByteArray(KeySize)

	sealed, err := Encrypt([]byte("payload"), key1)
	require.NoError(t, err)

	_, err = Decrypt(sealed, key2)
	require.ErrorIs(t, err, common.ErrDecryptionFailed)
}

func TestDecrypt_ShortInputAndBadKey(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)

	_, err := Decrypt([]byte{1, 2, 3}, key)
	require.ErrorIs(t, err, common.ErrDecryptionFailed)

	_, err = Decrypt(make([]byte, 64), []byte("short"))
	require.ErrorIs(t, err, common.ErrDecryptionFailed)

	_, err = Encrypt([]byte("x"), []byte("short"))
	require.Error(t, err)
}

func TestSealOpenVault_RoundTrip(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)
	image := []byte("SQLite format 3\x00 fake image")

	blob, err := SealVault(image, key)
	require.NoError(t, err)

	// внешний слой: base64(nonce || ciphertext)
	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	inner, err := Decrypt(raw, key)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(image), string(inner))

	out, err := OpenVault(blob, key)
	require.NoError(t, err)
	assert.Equal(t, image, out)
}

func TestOpenVault_Errors(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)

	_, err := OpenVault("%%% not base64", key)
	require.ErrorIs(t, err, common.ErrDecryptionFailed)

	blob, err := SealVault([]byte("x"), key)
	require.NoError(t, err)
	_, err = OpenVault(blob, common.GenerateRandByteArray(KeySize))
	require.ErrorIs(t, err, common.ErrDecryptionFailed)

	// расшифровывается, но внутри не base64
	sealed, err := Encrypt([]byte("not*base64!"), key)
	require.NoError(t, err)
	_, err = OpenVault(base64.StdEncoding.EncodeToString(sealed), key)
	require.ErrorIs(t, err, common.ErrCorruptVault)
}
