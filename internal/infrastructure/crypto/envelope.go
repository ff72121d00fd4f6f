// Package crypto implements envelope encryption for seller refresh secrets.
// Each secret is sealed with a fresh data key; the data key is sealed with
// the master key from configuration. Rotating the master key only requires
// re-wrapping data keys, never touching the sealed secrets themselves.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// envelopeVersion tags the wire format so the scheme can evolve
const envelopeVersion = "v1"

var (
	// ErrInvalidKey indicates the master key is malformed
	ErrInvalidKey = errors.New("crypto: master key must be 32 bytes")
	// ErrMalformedCiphertext indicates the envelope cannot be parsed
	ErrMalformedCiphertext = errors.New("crypto: malformed ciphertext envelope")
	// ErrDecryptFailed indicates authentication failed during open
	ErrDecryptFailed = errors.New("crypto: decryption failed")
)

// Envelope seals and opens secrets with XChaCha20-Poly1305 envelope
// encryption. It is safe for concurrent use.
type Envelope struct {
	masterKey []byte
}

// NewEnvelope creates an Envelope from a hex-encoded 32-byte master key.
func NewEnvelope(masterKeyHex string) (*Envelope, error) {
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	return &Envelope{masterKey: key}, nil
}

// Seal encrypts plaintext and returns the printable envelope:
// v1.<base64(wrapped data key)>.<base64(sealed payload)>
func (e *Envelope) Seal(plaintext []byte) (string, error) {
	dataKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(dataKey); err != nil {
		return "", fmt.Errorf("crypto: generating data key: %w", err)
	}

	sealedPayload, err := seal(dataKey, plaintext)
	if err != nil {
		return "", err
	}
	wrappedKey, err := seal(e.masterKey, dataKey)
	if err != nil {
		return "", err
	}

	return strings.Join([]string{
		envelopeVersion,
		base64.RawURLEncoding.EncodeToString(wrappedKey),
		base64.RawURLEncoding.EncodeToString(sealedPayload),
	}, "."), nil
}

// Open decrypts an envelope produced by Seal.
func (e *Envelope) Open(envelope string) ([]byte, error) {
	parts := strings.Split(envelope, ".")
	if len(parts) != 3 || parts[0] != envelopeVersion {
		return nil, ErrMalformedCiphertext
	}
	wrappedKey, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrMalformedCiphertext
	}
	sealedPayload, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, ErrMalformedCiphertext
	}

	dataKey, err := open(e.masterKey, wrappedKey)
	if err != nil {
		return nil, err
	}
	return open(dataKey, sealedPayload)
}

// seal encrypts plaintext with a random nonce prepended to the output
func seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts output of seal
func open(key, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, ErrMalformedCiphertext
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
