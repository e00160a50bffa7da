package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyvard/helse-spanner/internal/util"
)

func TestSealAndOpenRecord(t *testing.T) {
	key, err := util.RandomBytes(util.AESKeySize)
	require.NoError(t, err)

	aad := []byte("session:tok-1")
	env, err := SealRecord(key, []byte(`{"id":"tok-1"}`), aad)
	require.NoError(t, err)
	assert.Equal(t, SchemeAESGCM, env.Scheme)
	assert.Len(t, env.Nonce, 12)

	plain, err := OpenRecord(key, env, aad)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"tok-1"}`), plain)
}

func TestOpenRecordRejectsTamperedCiphertext(t *testing.T) {
	key, err := util.RandomBytes(util.AESKeySize)
	require.NoError(t, err)

	env, err := SealRecord(key, []byte("payload"), nil)
	require.NoError(t, err)

	env.Ciphertext[0] ^= 0xff
	_, err = OpenRecord(key, env, nil)
	assert.Error(t, err)
}

func TestOpenRecordRejectsWrongScheme(t *testing.T) {
	key, err := util.RandomBytes(util.AESKeySize)
	require.NoError(t, err)

	env := PlainRecord([]byte("data"))
	_, err = OpenRecord(key, env, nil)
	assert.ErrorContains(t, err, "unsupported envelope scheme")
}
