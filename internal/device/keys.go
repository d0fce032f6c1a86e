// Package device provisions and verifies the linked relay device identity.
package device

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/halvely/push-relay-agent/internal/account"
)

// NameCipher encrypts the fixed device display name under a key derived
// from the account identity seed, so only the account owner can read it.
type NameCipher struct {
	key [32]byte
}

func NewNameCipher(identitySeed []byte) (*NameCipher, error) {
	if len(identitySeed) == 0 {
		return nil, fmt.Errorf("empty identity seed")
	}
	c := &NameCipher{}
	r := hkdf.New(sha256.New, identitySeed, nil, []byte("linked-device-name"))
	if _, err := io.ReadFull(r, c.key[:]); err != nil {
		return nil, err
	}
	return c, nil
}

// Encrypt seals name and returns the base64 wire form sent to the account
// server.
func (c *NameCipher) Encrypt(name string) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], []byte(name), &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a base64 wire-form name. Returns an error for ciphertext
// produced under a different identity.
func (c *NameCipher) Decrypt(wire string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(wire)
	if err != nil {
		return "", err
	}
	if len(raw) < 24 {
		return "", fmt.Errorf("ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	opened, ok := secretbox.Open(nil, raw[24:], &nonce, &c.key)
	if !ok {
		return "", fmt.Errorf("device name does not open under this identity")
	}
	return string(opened), nil
}

// GeneratePreKeyBundle creates a signed pre-key and a last-resort pre-key
// for one account identity, both curve25519 keys signed with the identity's
// ed25519 key.
func GeneratePreKeyBundle(identitySeed []byte) (account.PreKeyBundle, error) {
	if len(identitySeed) != ed25519.SeedSize {
		return account.PreKeyBundle{}, fmt.Errorf("identity seed must be %d bytes", ed25519.SeedSize)
	}
	identity := ed25519.NewKeyFromSeed(identitySeed)

	signed, err := generateSignedPreKey(identity)
	if err != nil {
		return account.PreKeyBundle{}, err
	}
	lastResort, err := generateSignedPreKey(identity)
	if err != nil {
		return account.PreKeyBundle{}, err
	}
	return account.PreKeyBundle{
		SignedPreKey: signed,
		LastResort:   lastResort,
	}, nil
}

func generateSignedPreKey(identity ed25519.PrivateKey) (account.SignedPreKey, error) {
	var priv [32]byte
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return account.SignedPreKey{}, err
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return account.SignedPreKey{}, err
	}
	keyID, err := randomKeyID()
	if err != nil {
		return account.SignedPreKey{}, err
	}
	return account.SignedPreKey{
		KeyID:     keyID,
		PublicKey: base64.StdEncoding.EncodeToString(pub),
		Signature: base64.StdEncoding.EncodeToString(ed25519.Sign(identity, pub)),
	}, nil
}

// randomKeyID returns a key id in the medium-value range servers accept.
func randomKeyID() (int, error) {
	var buf [4]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint32(buf[:])%0xFFFFFE) + 1, nil
}

// GenerateRegistrationID returns a fresh 14-bit registration id as used by
// messaging accounts.
func GenerateRegistrationID() (int, error) {
	var buf [2]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint16(buf[:])%16380) + 1, nil
}

// GenerateSecret returns n random bytes as a base64 device password.
func GenerateSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(buf), nil
}
