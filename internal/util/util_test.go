package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomToken(t *testing.T) {
	a, err := RandomToken(32)
	require.NoError(t, err)
	b, err := RandomToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43) // 32 bytes, unpadded base64url
}

func TestAESRoundTrip(t *testing.T) {
	key, err := RandomBytes(AESKeySize)
	require.NoError(t, err)

	aad := []byte("session:abc")
	sealed, err := EncryptAESWithAAD([]byte("payload"), key, aad)
	require.NoError(t, err)

	opened, err := DecryptAESWithAAD(sealed, key, aad)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), opened)

	_, err = DecryptAESWithAAD(sealed, key, []byte("session:other"))
	assert.Error(t, err, "wrong AAD must not decrypt")
}

func TestAESRejectsBadKeySize(t *testing.T) {
	_, err := EncryptAESWithAAD([]byte("x"), make([]byte, 16), nil)
	assert.Error(t, err)
}

func TestHKDFDomainSeparation(t *testing.T) {
	master := make([]byte, 32)
	k1, err := HKDF(master, nil, []byte("spanner:session-key:v1"))
	require.NoError(t, err)
	k2, err := HKDF(master, nil, []byte("spanner:audit-key:v1"))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
	assert.Len(t, k1, HKDFKeyLength)
}

func TestWipeBytes(t *testing.T) {
	b := []byte{1, 2, 3}
	WipeBytes(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
}

func TestNormalize(t *testing.T) {
	// Decomposed "e" plus combining accent collapses to the composed form.
	assert.Equal(t, "\u00e9", Normalize("e\u0301"))
	assert.Equal(t, "plain", Normalize("plain"))
}
