package totp_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/twofactor/pkg/totp"
)

func TestCipher_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		plainText string
	}{
		{name: "secret", plainText: "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"},
		{name: "empty", plainText: ""},
	}

	key, err := totp.GenerateEncryptionKey()
	require.NoError(t, err)
	c, err := totp.NewCipher(key)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			encrypted, err := c.Encrypt(tt.plainText)
			require.NoError(t, err)
			assert.NotEmpty(t, encrypted)
			if tt.plainText != "" {
				assert.NotContains(t, encrypted, tt.plainText)
			}

			decrypted, err := c.Decrypt(encrypted)
			require.NoError(t, err)
			assert.Equal(t, tt.plainText, decrypted)
		})
	}
}

func TestCipher_FreshNonce(t *testing.T) {
	t.Parallel()

	c, err := totp.NewCipher(make([]byte, totp.AESKeySize))
	require.NoError(t, err)

	a, err := c.Encrypt("SAME")
	require.NoError(t, err)
	b, err := c.Encrypt("SAME")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNewCipher_InvalidKey(t *testing.T) {
	t.Parallel()

	_, err := totp.NewCipher(make([]byte, 16))
	assert.ErrorIs(t, err, totp.ErrInvalidEncryptionKeyLength)
}

func TestCipher_DecryptInvalid(t *testing.T) {
	t.Parallel()

	c, err := totp.NewCipher(make([]byte, totp.AESKeySize))
	require.NoError(t, err)

	other, err := totp.NewCipher(append(make([]byte, totp.AESKeySize-1), 1))
	require.NoError(t, err)
	sealedByOther, err := other.Encrypt("SECRET")
	require.NoError(t, err)

	tests := []struct {
		name    string
		encoded string
	}{
		{name: "invalid base64", encoded: "invalid-base64!@#$"},
		{name: "too short", encoded: base64.StdEncoding.EncodeToString([]byte("short"))},
		{name: "wrong key", encoded: sealedByOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := c.Decrypt(tt.encoded)
			assert.ErrorIs(t, err, totp.ErrFailedToDecryptSecret)
		})
	}
}

func TestEncryptionKeyEncoding(t *testing.T) {
	t.Parallel()

	encoded, err := totp.GenerateEncodedEncryptionKey()
	require.NoError(t, err)

	key, err := totp.DecodeEncryptionKey(encoded)
	require.NoError(t, err)
	assert.Len(t, key, totp.AESKeySize)

	_, err = totp.DecodeEncryptionKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, totp.ErrInvalidEncryptionKeyLength)

	_, err = totp.DecodeEncryptionKey("")
	assert.ErrorIs(t, err, totp.ErrFailedToLoadEncryptionKey)
}

func TestConfig_Cipher(t *testing.T) {
	t.Parallel()

	c, err := totp.Config{}.Cipher()
	require.NoError(t, err)
	assert.Nil(t, c)

	encoded, err := totp.GenerateEncodedEncryptionKey()
	require.NoError(t, err)
	c, err = totp.Config{EncryptionKey: encoded}.Cipher()
	require.NoError(t, err)
	assert.NotNil(t, c)
}
