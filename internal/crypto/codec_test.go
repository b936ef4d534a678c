package crypto_test

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gossips/internal/crypto"
	"gossips/internal/domain"
)

func TestFitKey_Length(t *testing.T) {
	tests := []struct {
		name       string
		passphrase string
		want       string
	}{
		{name: "empty", passphrase: "", want: strings.Repeat("00", 16)},
		{name: "short", passphrase: "pw", want: "7077" + strings.Repeat("00", 14)},
		{name: "exact", passphrase: "0123456789abcdef", want: hex.EncodeToString([]byte("0123456789abcdef"))},
		{name: "long", passphrase: "secretPasswordLonger", want: hex.EncodeToString([]byte("secretPasswordLo"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := crypto.FitKey(tt.passphrase)
			assert.Len(t, k[:], crypto.KeySize)
			assert.Equal(t, tt.want, hex.EncodeToString(k[:]))
		})
	}
}

// Vectors produced by AES-128-ECB with PKCS#7 padding (openssl enc).
func TestEncode_KnownVectors(t *testing.T) {
	tests := []struct {
		plaintext, passphrase, want string
	}{
		{"hi", "pw", "qkePiJXOijx7D7DgSsd5fQ=="},
		{"hi", "wrong", "hnHrUbOFQv5Dw/F9aBNTCA=="},
		{"hello", "pw", "ho67ZFhum5KjBNZu74DsJQ=="},
		{"hello, secure world", "secretPasswordLonger", "c4vzyLYMTc6vnLaYZg1cNS1Cdu6v/jUE+P5pkkno69I="},
	}
	for _, tt := range tests {
		got, err := crypto.Encode(tt.plaintext, tt.passphrase)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "encode %q with %q", tt.plaintext, tt.passphrase)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	plaintexts := []string{
		"",
		"hi",
		"exactly16bytes!!",
		strings.Repeat("a long message spanning several blocks. ", 8),
		"ünïcødé ✓ 你好",
	}
	passphrases := []string{"pw", "0123456789abcdef", "a passphrase longer than sixteen bytes", "ключ"}
	for _, p := range plaintexts {
		for _, k := range passphrases {
			enc, err := crypto.Encode(p, k)
			require.NoError(t, err)
			dec, err := crypto.Decode(enc, k)
			require.NoError(t, err)
			assert.Equal(t, p, dec)
		}
	}
}

func TestEncode_Deterministic(t *testing.T) {
	a, err := crypto.Encode("same text", "same key")
	require.NoError(t, err)
	b, err := crypto.Encode("same text", "same key")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncode_LongPassphrasesShareKey(t *testing.T) {
	a, err := crypto.Encode("collide", "0123456789abcdefXXX")
	require.NoError(t, err)
	b, err := crypto.Encode("collide", "0123456789abcdefYYY")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncode_RejectsInvalidUTF8(t *testing.T) {
	_, err := crypto.Encode(string([]byte{0xff, 0xfe}), "pw")
	assert.ErrorIs(t, err, crypto.ErrInvalidPlaintext)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name       string
		ciphertext string
	}{
		{name: "not base64", ciphertext: "***not base64***"},
		{name: "empty", ciphertext: ""},
		{name: "short block", ciphertext: crypto.B64([]byte("0123456789"))},
		{name: "unaligned", ciphertext: crypto.B64(make([]byte, 17))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := crypto.Decode(tt.ciphertext, "pw")
			assert.ErrorIs(t, err, domain.ErrDecode)
		})
	}
}

func TestDecode_WrongKey(t *testing.T) {
	enc, err := crypto.Encode("hi", "pw")
	require.NoError(t, err)
	_, err = crypto.Decode(enc, "wrong")
	assert.ErrorIs(t, err, domain.ErrDecode)
}

func TestDecode_WrongKeyMostlyFails(t *testing.T) {
	const trials = 500
	failures := 0
	for i := 0; i < trials; i++ {
		k1, k2 := randomKey(t), randomKey(t)
		if k1 == k2 {
			continue
		}
		enc, err := crypto.Encode("the quick brown fox", k1)
		require.NoError(t, err)
		dec, err := crypto.Decode(enc, k2)
		if err != nil {
			require.ErrorIs(t, err, domain.ErrDecode)
			failures++
			continue
		}
		// A lucky wrong key still never reproduces the plaintext.
		assert.NotEqual(t, "the quick brown fox", dec)
	}
	assert.GreaterOrEqual(t, failures, trials*95/100)
}

func randomKey(t *testing.T) string {
	t.Helper()
	var b [12]byte
	_, err := rand.Read(b[:])
	require.NoError(t, err)
	return hex.EncodeToString(b[:])
}
