// Package keystore manages the active encryption key and the key material
// files FFmpeg needs for HLS encryption.
package keystore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mediavault/mediavault/internal/models"
	"github.com/mediavault/mediavault/internal/repository"
)

// KeyFileName is the raw key file served to FFmpeg. FFmpeg expects the 16
// key bytes, not the hex string stored in the database.
const KeyFileName = "encryption.key"

// Keystore provisions the active encryption key and materializes the
// on-disk key files used by the HLS encoder.
type Keystore struct {
	keys       repository.KeyRepository
	privateDir string
	baseURL    string
	logger     *slog.Logger
}

// New creates a Keystore rooted at privateDir. baseURL is the public origin
// players use to fetch keys.
func New(keys repository.KeyRepository, privateDir, baseURL string, logger *slog.Logger) *Keystore {
	if logger == nil {
		logger = slog.Default()
	}
	return &Keystore{
		keys:       keys,
		privateDir: privateDir,
		baseURL:    baseURL,
		logger:     logger.With(slog.String("component", "keystore")),
	}
}

// KeyFilePath returns the path of the raw binary key file.
func (k *Keystore) KeyFilePath() string {
	return filepath.Join(k.privateDir, KeyFileName)
}

// ActiveKey returns the active encryption key, creating one if none exists,
// and ensures the raw key file on disk matches it.
func (k *Keystore) ActiveKey(ctx context.Context) (*models.EncryptionKey, error) {
	key, err := k.keys.GetOrCreateActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("provisioning encryption key: %w", err)
	}
	if err := k.writeKeyFile(key); err != nil {
		return nil, err
	}
	return key, nil
}

// writeKeyFile writes the raw 16-byte key next to the HLS key-info files.
// Rewritten on every provisioning call so a rotated or repaired database
// row always wins over a stale file.
func (k *Keystore) writeKeyFile(key *models.EncryptionKey) error {
	raw, err := key.KeyBytes()
	if err != nil {
		return fmt.Errorf("decoding key %s: %w", key.ID, err)
	}
	if err := os.MkdirAll(k.privateDir, 0o700); err != nil {
		return fmt.Errorf("creating private dir: %w", err)
	}
	path := k.KeyFilePath()
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("writing key file %s: %w", path, err)
	}
	return nil
}

// WriteKeyInfo creates the three-line key-info descriptor FFmpeg reads for
// HLS encryption: the URL players fetch the key from, the local key file
// path, and the per-video IV in hex. The caller removes the file once the
// encode finishes.
func (k *Keystore) WriteKeyInfo(videoID, ivHex string) (string, error) {
	path := filepath.Join(k.privateDir, fmt.Sprintf("key_info_%s.txt", videoID))
	content := fmt.Sprintf("%s/api/media/keys/%s\n%s\n%s\n", k.baseURL, videoID, k.KeyFilePath(), ivHex)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("writing key info %s: %w", path, err)
	}
	return path, nil
}

// RemoveKeyInfo deletes a key-info descriptor. Missing files are not an
// error; the encode may have failed before the descriptor was written.
func (k *Keystore) RemoveKeyInfo(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		k.logger.Warn("failed to remove key info file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
