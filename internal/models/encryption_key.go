package models

import (
	"encoding/hex"
	"fmt"

	"gorm.io/gorm"
)

// KeyHexLen is the length of the hex encoding of a 16-byte AES-128 key or IV.
const KeyHexLen = 32

// EncryptionKey holds AES-128 key material. Exactly one row should be active
// at a time; all artifact encryption uses the active key.
type EncryptionKey struct {
	BaseModel

	// KeyValue is the AES-128 key, hex encoded (32 characters).
	KeyValue string `gorm:"not null;size:32" json:"-"`

	// IVValue is a default IV, hex encoded (32 characters). Per-file
	// encryption generates fresh IVs; this one seeds HLS key descriptors.
	IVValue string `gorm:"not null;size:32" json:"-"`

	// IsActive marks the key currently used for new artifacts.
	IsActive bool `gorm:"not null;default:false;index" json:"is_active"`
}

// TableName returns the table name for EncryptionKey.
func (EncryptionKey) TableName() string {
	return "encryption_keys"
}

// KeyBytes decodes the hex key material.
func (k *EncryptionKey) KeyBytes() ([]byte, error) {
	b, err := hex.DecodeString(k.KeyValue)
	if err != nil {
		return nil, fmt.Errorf("decoding key material: %w", err)
	}
	return b, nil
}

// IVBytes decodes the hex IV material.
func (k *EncryptionKey) IVBytes() ([]byte, error) {
	b, err := hex.DecodeString(k.IVValue)
	if err != nil {
		return nil, fmt.Errorf("decoding IV material: %w", err)
	}
	return b, nil
}

// Validate checks the key material is well-formed.
func (k *EncryptionKey) Validate() error {
	if len(k.KeyValue) != KeyHexLen || len(k.IVValue) != KeyHexLen {
		return ErrInvalidKeyMaterial
	}
	if _, err := hex.DecodeString(k.KeyValue); err != nil {
		return ErrInvalidKeyMaterial
	}
	if _, err := hex.DecodeString(k.IVValue); err != nil {
		return ErrInvalidKeyMaterial
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the key and generates its ULID.
func (k *EncryptionKey) BeforeCreate(tx *gorm.DB) error {
	if err := k.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return k.Validate()
}
