package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
)

// Value prefixes distinguish encrypted rows from plaintext rows written
// before a master key was configured.
const (
	encryptedPrefix = "enc:"
	plainPrefix     = "plain:"
)

// KeyStore persists provider API keys. With a master key configured, values
// are sealed with AES-GCM (key = SHA-256 of the master key); without one,
// values are stored plaintext with an explicit prefix so the two can never
// be confused.
type KeyStore struct {
	s      *DB
	logger arbor.ILogger
	aead   cipher.AEAD
}

// NewKeyStore creates a keystore. masterKey may be empty.
func NewKeyStore(s *DB, logger arbor.ILogger, masterKey string) (*KeyStore, error) {
	ks := &KeyStore{s: s, logger: logger}

	if masterKey != "" {
		sum := sha256.Sum256([]byte(masterKey))
		block, err := aes.NewCipher(sum[:])
		if err != nil {
			return nil, common.NewError(common.ErrInternal, "failed to derive keystore cipher").WithCause(err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, common.NewError(common.ErrInternal, "failed to initialize keystore").WithCause(err)
		}
		ks.aead = aead
	} else {
		logger.Warn().Msg("No master key configured; API keys will be stored unencrypted")
	}
	return ks, nil
}

// SetKey stores or replaces a provider's API key.
func (k *KeyStore) SetKey(ctx context.Context, provider, value string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return common.NewError(common.ErrValidationFailed, "provider is required")
	}
	if value == "" {
		return common.NewError(common.ErrValidationFailed, "key value is required")
	}

	stored, err := k.seal(value)
	if err != nil {
		return err
	}

	_, err = k.s.db.ExecContext(ctx,
		`INSERT INTO settings_keys (provider, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(provider) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		provider, stored, time.Now().Unix())
	if err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to store key").WithCause(err)
	}

	k.logger.Info().Str("provider", provider).Msg("API key stored")
	return nil
}

// GetKey returns a provider's decrypted API key, or NOT_FOUND.
func (k *KeyStore) GetKey(ctx context.Context, provider string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))

	var stored string
	err := k.s.db.QueryRowContext(ctx,
		`SELECT value FROM settings_keys WHERE provider = ?`, provider).Scan(&stored)
	if err == sql.ErrNoRows {
		return "", common.NewError(common.ErrNotFound, fmt.Sprintf("no key stored for %s", provider))
	}
	if err != nil {
		return "", common.NewError(common.ErrDatabaseError, "failed to read key").WithCause(err)
	}

	return k.open(stored)
}

// DeleteKey removes a provider's stored key.
func (k *KeyStore) DeleteKey(ctx context.Context, provider string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))

	result, err := k.s.db.ExecContext(ctx,
		`DELETE FROM settings_keys WHERE provider = ?`, provider)
	if err != nil {
		return common.NewError(common.ErrDatabaseError, "failed to delete key").WithCause(err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return common.NewError(common.ErrNotFound, fmt.Sprintf("no key stored for %s", provider))
	}
	return nil
}

// ListProviders returns providers with stored keys, never the values.
func (k *KeyStore) ListProviders(ctx context.Context) ([]string, error) {
	rows, err := k.s.db.QueryContext(ctx,
		`SELECT provider FROM settings_keys ORDER BY provider`)
	if err != nil {
		return nil, common.NewError(common.ErrDatabaseError, "failed to list providers").WithCause(err)
	}
	defer rows.Close()

	var providers []string
	for rows.Next() {
		var provider string
		if err := rows.Scan(&provider); err != nil {
			return nil, common.NewError(common.ErrDatabaseError, "failed to scan provider").WithCause(err)
		}
		providers = append(providers, provider)
	}
	return providers, rows.Err()
}

func (k *KeyStore) seal(value string) (string, error) {
	if k.aead == nil {
		return plainPrefix + value, nil
	}

	nonce := make([]byte, k.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", common.NewError(common.ErrInternal, "failed to generate nonce").WithCause(err)
	}

	sealed := k.aead.Seal(nonce, nonce, []byte(value), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (k *KeyStore) open(stored string) (string, error) {
	if strings.HasPrefix(stored, plainPrefix) {
		return strings.TrimPrefix(stored, plainPrefix), nil
	}
	if !strings.HasPrefix(stored, encryptedPrefix) {
		// Legacy row written before prefixes existed.
		return stored, nil
	}
	if k.aead == nil {
		return "", common.NewError(common.ErrInternal, "stored key is encrypted but no master key is configured")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encryptedPrefix))
	if err != nil {
		return "", common.NewError(common.ErrInternal, "corrupt stored key").WithCause(err)
	}
	if len(raw) < k.aead.NonceSize() {
		return "", common.NewError(common.ErrInternal, "corrupt stored key")
	}

	nonce, ciphertext := raw[:k.aead.NonceSize()], raw[k.aead.NonceSize():]
	plain, err := k.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", common.NewError(common.ErrInternal, "failed to decrypt stored key").WithCause(err)
	}
	return string(plain), nil
}
