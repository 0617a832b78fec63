package processor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/mediavault/mediavault/internal/cryptobox"
)

// EncryptedSuffix is appended to every sealed artifact.
const EncryptedSuffix = ".enc"

// suspiciouslySmall flags artifacts that are probably broken encodes.
const suspiciouslySmall = 100

// sealArtifact encrypts the file at path to path + ".enc" and removes the
// plaintext. A missing or empty source produces the sealed placeholder
// artifact instead, so a catalog row never points at a non-existent file.
func sealArtifact(key []byte, path string, logger *slog.Logger) (string, error) {
	encPath := path + EncryptedSuffix

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("artifact missing, sealing placeholder", slog.String("path", path))
		return encPath, sealPlaceholder(key, encPath)
	case err != nil:
		return "", fmt.Errorf("inspecting %s: %w", path, err)
	case info.Size() == 0:
		logger.Warn("artifact empty, sealing placeholder", slog.String("path", path))
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("removing empty %s: %w", path, err)
		}
		return encPath, sealPlaceholder(key, encPath)
	case info.Size() < suspiciouslySmall:
		logger.Warn("artifact suspiciously small",
			slog.String("path", path),
			slog.Int64("size_bytes", info.Size()),
		)
	}

	if err := cryptobox.EncryptFile(key, path, encPath); err != nil {
		return "", fmt.Errorf("sealing %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("removing plaintext %s: %w", path, err)
	}
	return encPath, nil
}

func sealPlaceholder(key []byte, encPath string) error {
	sealed, err := cryptobox.SealedPlaceholder(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(encPath, sealed, 0o600); err != nil {
		return fmt.Errorf("writing placeholder %s: %w", encPath, err)
	}
	return nil
}
