package device

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameCipherRoundTrip(t *testing.T) {
	c, err := NewNameCipher(testIdentity(1))
	require.NoError(t, err)

	wire, err := c.Encrypt("push-relay")
	require.NoError(t, err)
	got, err := c.Decrypt(wire)
	require.NoError(t, err)
	assert.Equal(t, "push-relay", got)

	// A different identity must not open the name.
	other, err := NewNameCipher(testIdentity(9))
	require.NoError(t, err)
	_, err = other.Decrypt(wire)
	assert.Error(t, err)
}

func TestNameCipherRejectsGarbage(t *testing.T) {
	c, err := NewNameCipher(testIdentity(1))
	require.NoError(t, err)

	_, err = c.Decrypt("not base64!!")
	assert.Error(t, err)
	_, err = c.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestGeneratePreKeyBundleSignatures(t *testing.T) {
	seed := testIdentity(3)
	bundle, err := GeneratePreKeyBundle(seed)
	require.NoError(t, err)

	identity := ed25519.NewKeyFromSeed(seed)
	verify := func(pub, sig string) {
		rawPub, err := base64.StdEncoding.DecodeString(pub)
		require.NoError(t, err)
		rawSig, err := base64.StdEncoding.DecodeString(sig)
		require.NoError(t, err)
		assert.True(t, ed25519.Verify(identity.Public().(ed25519.PublicKey), rawPub, rawSig))
	}
	verify(bundle.SignedPreKey.PublicKey, bundle.SignedPreKey.Signature)
	verify(bundle.LastResort.PublicKey, bundle.LastResort.Signature)
	assert.NotEqual(t, bundle.SignedPreKey.PublicKey, bundle.LastResort.PublicKey)
}

func TestGeneratePreKeyBundleRejectsBadSeed(t *testing.T) {
	_, err := GeneratePreKeyBundle([]byte("short"))
	assert.Error(t, err)
}

func TestGenerateRegistrationIDRange(t *testing.T) {
	for i := 0; i < 64; i++ {
		id, err := GenerateRegistrationID()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, id, 1)
		assert.LessOrEqual(t, id, 16380)
	}
}

func TestGenerateSecretLengthAndUniqueness(t *testing.T) {
	a, err := GenerateSecret(18)
	require.NoError(t, err)
	b, err := GenerateSecret(18)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	raw, err := base64.RawStdEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, 18)
}
