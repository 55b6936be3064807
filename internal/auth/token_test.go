package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-shared-secret"

func TestTokenRoundtrip(t *testing.T) {
	encrypted, err := Encrypt([]byte(`{"fid":12345,"token":"abc","session_end":1700000000}`), testSecret)
	require.NoError(t, err)

	payload, err := ParseToken(encrypted, testSecret)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), payload.FID)
	assert.Equal(t, "abc", payload.Token)
	assert.Equal(t, int64(1700000000), payload.SessionEnd)
}

func TestDecryptWrongSecret(t *testing.T) {
	encrypted, err := Encrypt([]byte(`{"fid":1}`), testSecret)
	require.NoError(t, err)

	_, err = Decrypt(encrypted, "another-secret")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptMalformed(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"no separators", "deadbeef"},
		{"two parts", "dead:beef"},
		{"bad hex", "zz:beef:beef"},
		{"garbage ciphertext", "00112233445566778899aabb:00112233445566778899aabbccddeeff:deadbeef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(tt.token, testSecret)
			assert.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestParseTokenRequiresFID(t *testing.T) {
	encrypted, err := Encrypt([]byte(`{"token":"abc"}`), testSecret)
	require.NoError(t, err)

	_, err = ParseToken(encrypted, testSecret)
	assert.ErrorIs(t, err, ErrDecrypt)
}
