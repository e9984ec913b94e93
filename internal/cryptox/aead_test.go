package cryptox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		key, err := GenerateKey()
		require.NoError(t, err)

		plaintext := []byte("notes.txt")
		sealed, err := Seal(key, plaintext)
		require.NoError(t, err)
		assert.Len(t, sealed, NonceSize+len(plaintext)+16) // Poly1305 tag

		opened, err := Open(key, sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	})

	t.Run("WrongKeyFails", func(t *testing.T) {
		key, err := GenerateKey()
		require.NoError(t, err)
		other, err := GenerateKey()
		require.NoError(t, err)

		sealed, err := Seal(key, []byte("hello"))
		require.NoError(t, err)

		_, err = Open(other, sealed)
		assert.ErrorIs(t, err, ErrKeyMismatch)
	})

	t.Run("NoncesAreUnique", func(t *testing.T) {
		key, err := GenerateKey()
		require.NoError(t, err)

		seen := make(map[string]struct{})
		for i := 0; i < 256; i++ {
			sealed, err := Seal(key, []byte("hello"))
			require.NoError(t, err)
			nonce := string(sealed[:NonceSize])
			_, dup := seen[nonce]
			assert.False(t, dup, "nonce reuse detected")
			seen[nonce] = struct{}{}
		}
	})

	t.Run("TruncatedCiphertextFails", func(t *testing.T) {
		key, err := GenerateKey()
		require.NoError(t, err)
		_, err = Open(key, []byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrKeyMismatch)
	})
}

func TestWrapUnwrapRSA(t *testing.T) {
	priv, err := GenerateUserKeyPair()
	require.NoError(t, err)

	symKey, err := GenerateKey()
	require.NoError(t, err)

	wrapped, err := WrapToPublicKey(&priv.PublicKey, symKey)
	require.NoError(t, err)

	unwrapped, err := UnwrapWithPrivateKey(priv, wrapped)
	require.NoError(t, err)
	assert.Equal(t, symKey, unwrapped)

	other, err := GenerateUserKeyPair()
	require.NoError(t, err)
	_, err = UnwrapWithPrivateKey(other, wrapped)
	assert.ErrorIs(t, err, ErrKeyMismatch)
}

func TestPublicKeyMarshalRoundTrip(t *testing.T) {
	priv, err := GenerateUserKeyPair()
	require.NoError(t, err)

	der, err := MarshalPublicKey(&priv.PublicKey)
	require.NoError(t, err)

	parsed, err := ParsePublicKey(der)
	require.NoError(t, err)
	assert.Equal(t, priv.PublicKey, *parsed)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	sealed := []byte{0x01, 0x02, 0x03, 0xff}
	encoded := EncodeEnvelope(sealed)
	decoded, err := DecodeEnvelope(encoded)
	require.NoError(t, err)
	assert.Equal(t, sealed, decoded)
}
