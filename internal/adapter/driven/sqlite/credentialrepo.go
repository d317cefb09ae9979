package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/squadctf/ctfsync/internal/domain/model"
	"github.com/squadctf/ctfsync/internal/domain/port/driven"
)

// ErrEncryptionKeyNotSet is returned by all CredentialRepo operations when
// the repo was constructed without an encryption key.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set CTFSYNC_SECRET_KEY")

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// Secrets are encrypted with AES-256-GCM before write and decrypted after
// read; the username stays in cleartext for display.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil disables credential storage.
}

// NewCredentialRepo creates a CredentialRepo. key must be 32 bytes for
// AES-256-GCM, or nil to disable credential storage.
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key}
}

// Set stores or replaces the credential for a competition.
func (r *CredentialRepo) Set(ctx context.Context, cred model.Credential) error {
	encrypted, err := r.encrypt(cred.Secret)
	if err != nil {
		return err
	}

	const query = `
		INSERT OR REPLACE INTO credentials (competition_id, username, secret, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`
	if _, err := r.db.Writer.ExecContext(ctx, query, cred.CompetitionID, cred.Username, encrypted); err != nil {
		return fmt.Errorf("set credential for competition %q: %w", cred.CompetitionID, err)
	}
	return nil
}

// Get retrieves the credential for a competition with the secret decrypted.
// Returns nil, nil if no credential exists.
func (r *CredentialRepo) Get(ctx context.Context, competitionID string) (*model.Credential, error) {
	if r.key == nil {
		return nil, ErrEncryptionKeyNotSet
	}

	const query = `SELECT username, secret, updated_at FROM credentials WHERE competition_id = ?`

	var cred model.Credential
	var encrypted, updatedAt string
	err := r.db.Reader.QueryRowContext(ctx, query, competitionID).Scan(&cred.Username, &encrypted, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential for competition %q: %w", competitionID, err)
	}

	cred.CompetitionID = competitionID
	if cred.Secret, err = r.decrypt(encrypted); err != nil {
		return nil, fmt.Errorf("decrypt credential for competition %q: %w", competitionID, err)
	}
	if cred.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for credential %q: %w", competitionID, err)
	}

	return &cred, nil
}

// Delete removes a competition's credential.
func (r *CredentialRepo) Delete(ctx context.Context, competitionID string) error {
	const query = `DELETE FROM credentials WHERE competition_id = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, competitionID); err != nil {
		return fmt.Errorf("delete credential for competition %q: %w", competitionID, err)
	}
	return nil
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded
// string containing the nonce (12 bytes) prepended to the ciphertext.
func (r *CredentialRepo) encrypt(plaintext string) (string, error) {
	if r.key == nil {
		return "", ErrEncryptionKeyNotSet
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *CredentialRepo) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}
