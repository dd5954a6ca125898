// Package vault encrypts secrets at rest and builds OAuth state tokens.
//
// A token is base64url(version | issued-at | nonce | ciphertext). The version
// byte and issue time are authenticated as additional data, so a reader can
// enforce a time-to-live without any server-side session.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const (
	version    byte = 0x81
	headerSize      = 1 + 8

	// Tokens stamped further than this in the future are rejected.
	maxClockSkew = 60 * time.Second

	DefaultStateTTL = 600 * time.Second
)

// ErrInvalidToken is returned for every decryption failure: malformed input,
// tampering, a different key or an expired token.
var ErrInvalidToken = errors.New("invalid or expired token")

var encoding = base64.RawURLEncoding.Strict()

type Vault struct {
	aead     cipher.AEAD
	now      func() time.Time
	stateTTL time.Duration
}

type Option func(*Vault)

func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

func WithStateTTL(ttl time.Duration) Option {
	return func(v *Vault) { v.stateTTL = ttl }
}

// New derives a 256-bit AES key from secret.
func New(secret string, opts ...Option) (*Vault, error) {
	if secret == "" {
		return nil, errors.New("vault: secret key is empty")
	}
	key := sha256.Sum256([]byte(secret))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	v := &Vault{aead: aead, now: time.Now, stateTTL: DefaultStateTTL}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	header := make([]byte, headerSize)
	header[0] = version
	binary.BigEndian.PutUint64(header[1:], uint64(v.now().Unix()))

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	data := make([]byte, 0, headerSize+len(nonce)+len(plaintext)+v.aead.Overhead())
	data = append(data, header...)
	data = append(data, nonce...)
	data = v.aead.Seal(data, nonce, plaintext, header)
	return encoding.EncodeToString(data), nil
}

func (v *Vault) EncryptString(plaintext string) (string, error) {
	return v.Encrypt([]byte(plaintext))
}

// Decrypt opens token. A ttl of zero disables the age check.
func (v *Vault) Decrypt(token string, ttl time.Duration) ([]byte, error) {
	data, err := encoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	nonceSize := v.aead.NonceSize()
	if len(data) < headerSize+nonceSize+v.aead.Overhead() || data[0] != version {
		return nil, ErrInvalidToken
	}

	header := data[:headerSize]
	nonce := data[headerSize : headerSize+nonceSize]
	plaintext, err := v.aead.Open(nil, nonce, data[headerSize+nonceSize:], header)
	if err != nil {
		return nil, ErrInvalidToken
	}

	issuedAt := time.Unix(int64(binary.BigEndian.Uint64(header[1:])), 0)
	now := v.now()
	if issuedAt.After(now.Add(maxClockSkew)) {
		return nil, ErrInvalidToken
	}
	if ttl > 0 && now.Sub(issuedAt) > ttl {
		return nil, ErrInvalidToken
	}
	return plaintext, nil
}

func (v *Vault) DecryptString(token string, ttl time.Duration) (string, error) {
	plaintext, err := v.Decrypt(token, ttl)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// IssuedAt reports when token was encrypted, after verifying it.
func (v *Vault) IssuedAt(token string) (time.Time, error) {
	if _, err := v.Decrypt(token, 0); err != nil {
		return time.Time{}, err
	}
	data, _ := encoding.DecodeString(token)
	return time.Unix(int64(binary.BigEndian.Uint64(data[1:headerSize])), 0), nil
}
