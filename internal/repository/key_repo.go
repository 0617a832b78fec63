package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mediavault/mediavault/internal/models"
	"gorm.io/gorm"
)

// keyRepo implements KeyRepository using GORM.
type keyRepo struct {
	db *gorm.DB
}

// NewKeyRepository creates a new KeyRepository.
func NewKeyRepository(db *gorm.DB) *keyRepo {
	return &keyRepo{db: db}
}

var _ KeyRepository = (*keyRepo)(nil)

// GetActive retrieves the active encryption key.
func (r *keyRepo) GetActive(ctx context.Context) (*models.EncryptionKey, error) {
	var key models.EncryptionKey
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC").
		First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNoActiveKey
		}
		return nil, fmt.Errorf("getting active key: %w", err)
	}
	return &key, nil
}

// GetByID retrieves a key by ID.
func (r *keyRepo) GetByID(ctx context.Context, id models.ULID) (*models.EncryptionKey, error) {
	var key models.EncryptionKey
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting key by ID: %w", err)
	}
	return &key, nil
}

// GetOrCreateActive retrieves the active key, provisioning one when missing.
// Creation happens in a transaction so concurrent callers converge on a
// single active row.
func (r *keyRepo) GetOrCreateActive(ctx context.Context) (*models.EncryptionKey, error) {
	key, err := r.GetActive(ctx)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, models.ErrNoActiveKey) {
		return nil, err
	}

	var created *models.EncryptionKey
	txErr := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Re-check under the transaction.
		var existing models.EncryptionKey
		err := tx.Where("is_active = ?", true).Order("created_at DESC").First(&existing).Error
		if err == nil {
			created = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("re-checking active key: %w", err)
		}

		fresh, err := newKeyMaterial()
		if err != nil {
			return err
		}
		if err := tx.Create(fresh).Error; err != nil {
			return fmt.Errorf("creating encryption key: %w", err)
		}
		created = fresh
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return created, nil
}

// Deactivate clears the active flag on the given key.
func (r *keyRepo) Deactivate(ctx context.Context, id models.ULID) error {
	result := r.db.WithContext(ctx).
		Model(&models.EncryptionKey{}).
		Where("id = ?", id).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("deactivating key: %w", result.Error)
	}
	return nil
}

// newKeyMaterial generates a fresh active AES-128 key with a random IV.
func newKeyMaterial() (*models.EncryptionKey, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generating key material: %w", err)
	}
	return &models.EncryptionKey{
		KeyValue: hex.EncodeToString(buf[:16]),
		IVValue:  hex.EncodeToString(buf[16:]),
		IsActive: true,
	}, nil
}
