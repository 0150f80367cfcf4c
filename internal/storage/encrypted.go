package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const keyInfo = "toko-storefront/storage/v1"

// Encrypted seals JSON documents with XChaCha20-Poly1305 before handing them
// to the inner adapter. Records that fail to decode, decrypt or parse are
// reported as absent.
type Encrypted struct {
	inner  Adapter
	key    []byte
	logger zerolog.Logger
	rand   io.Reader
}

// NewEncrypted derives a cipher key from secret and wraps inner.
func NewEncrypted(inner Adapter, secret string, logger zerolog.Logger) (*Encrypted, error) {
	if inner == nil {
		return nil, errors.New("storage: encrypted adapter requires a backend")
	}
	if secret == "" {
		return nil, errors.New("storage: encryption secret is required")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("storage: derive key: %w", err)
	}
	return &Encrypted{inner: inner, key: key, logger: logger, rand: rand.Reader}, nil
}

// Load returns the decrypted JSON for key, or nil when the record is missing
// or unreadable.
func (e *Encrypted) Load(ctx context.Context, key string) ([]byte, error) {
	raw, err := e.inner.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	plain, err := e.open(raw)
	if err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("storage_decrypt_failed")
		return nil, nil
	}
	if !json.Valid(plain) {
		e.logger.Warn().Str("key", key).Msg("storage_payload_invalid")
		return nil, nil
	}
	return plain, nil
}

// Save encrypts value and writes it through.
func (e *Encrypted) Save(ctx context.Context, key string, value []byte) error {
	sealed, err := e.seal(value)
	if err != nil {
		return err
	}
	return e.inner.Save(ctx, key, sealed)
}

func (e *Encrypted) Remove(ctx context.Context, key string) error {
	return e.inner.Remove(ctx, key)
}

func (e *Encrypted) Ping(ctx context.Context) error {
	return e.inner.Ping(ctx)
}

func (e *Encrypted) seal(plain []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return nil, fmt.Errorf("storage: nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plain, nil)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(out, sealed)
	return out, nil
}

func (e *Encrypted) open(encoded []byte) ([]byte, error) {
	sealed := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(sealed, encoded)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	sealed = sealed[:n]
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}
