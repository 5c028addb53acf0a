package auth

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	providerName = "gotrue"
	sealInfo     = "optolib-credential-cache-v1"
)

var ErrSealBroken = errors.New("sealed credential cannot be opened")

type CredentialStore interface {
	SaveCredential(ctx context.Context, provider string, sealed []byte) error
	GetCredential(ctx context.Context, provider string) ([]byte, error)
	DeleteCredential(ctx context.Context, provider string) error
}

// CredentialCache keeps the last signed-in session sealed at rest.
// Passwords never reach it: Session has no field for one.
type CredentialCache struct {
	store CredentialStore
	key   []byte
}

func NewCredentialCache(store CredentialStore, secret string) (*CredentialCache, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("credential cache needs a non-empty secret")
	}

	key, err := deriveKey([]byte(secret))
	if err != nil {
		return nil, err
	}
	return &CredentialCache{store: store, key: key}, nil
}

func (c *CredentialCache) Save(ctx context.Context, s Session) error {
	plain, err := json.Marshal(s)
	if err != nil {
		return err
	}

	sealed, err := seal(c.key, plain, []byte(providerName))
	if err != nil {
		return fmt.Errorf("failed to seal session: %w", err)
	}
	return c.store.SaveCredential(ctx, providerName, sealed)
}

// Load returns domain.ErrNotFound when nothing is cached and ErrSealBroken
// when the blob was sealed under another secret or tampered with.
func (c *CredentialCache) Load(ctx context.Context) (Session, error) {
	sealed, err := c.store.GetCredential(ctx, providerName)
	if err != nil {
		return Session{}, err
	}

	plain, err := open(c.key, sealed, []byte(providerName))
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrSealBroken, err)
	}

	var s Session
	if err := json.Unmarshal(plain, &s); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrSealBroken, err)
	}
	return s, nil
}

func (c *CredentialCache) Clear(ctx context.Context) error {
	return c.store.DeleteCredential(ctx, providerName)
}

func deriveKey(secret []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, secret, nil, []byte(sealInfo))
	out := make([]byte, 32)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

// seal returns nonce || ciphertext.
func seal(key, plaintext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

func open(key, blob, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	ns := gcm.NonceSize()
	if len(blob) < ns {
		return nil, errors.New("ciphertext too short")
	}
	return gcm.Open(nil, blob[:ns], blob[ns:], aad)
}
