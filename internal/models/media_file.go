package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// FileIDLen is the length of a media file identifier: the first 16 hex
// characters of SHA-256(path + timestamp).
const FileIDLen = 16

// NewFileID derives an identifier for a newly ingested file from its intake
// path and the current wall clock in microseconds.
func NewFileID(filePath string, now time.Time) string {
	input := fmt.Sprintf("%s%d", filePath, now.UnixMicro())
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:FileIDLen]
}

// MediaFile is the catalog record for a fully processed asset. A row is only
// written once every artifact it references exists on disk.
type MediaFile struct {
	// ID is the 16-hex-character asset identifier (not a ULID).
	ID string `gorm:"primarykey;size:16" json:"id"`

	// OriginalName is the base name of the intake file.
	OriginalName string `gorm:"not null;size:512" json:"original_name"`

	// FileHash is the SHA-256 of the intake file contents, hex encoded.
	// Unique: it backs content deduplication.
	FileHash string `gorm:"not null;size:64;uniqueIndex" json:"file_hash"`

	// FileType classifies the asset.
	FileType MediaType `gorm:"not null;size:10" json:"file_type"`

	// MimeType is the detected MIME type of the original file.
	MimeType string `gorm:"size:100" json:"mime_type"`

	// FileSizeBytes is the size of the original intake file.
	FileSizeBytes int64 `json:"file_size_bytes"`

	// Width and Height are the source dimensions where known.
	Width  *int `json:"width,omitempty"`
	Height *int `json:"height,omitempty"`

	// DurationSeconds is the media duration for videos.
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`

	// StoragePath is the primary artifact: the encrypted image or the HLS
	// stream directory.
	StoragePath string `gorm:"not null;size:1024" json:"storage_path"`

	// ThumbnailPath is the encrypted thumbnail artifact.
	ThumbnailPath string `gorm:"size:1024" json:"thumbnail_path,omitempty"`

	// PreviewPath is the encrypted animated preview, when one was produced.
	PreviewPath string `gorm:"size:1024" json:"preview_path,omitempty"`

	// EncryptionKeyID references the key the artifacts were encrypted under.
	EncryptionKeyID ULID `gorm:"type:varchar(26);index" json:"encryption_key_id"`

	// ProcessingStatus is recorded for the catalog consumer; rows are only
	// inserted after successful processing.
	ProcessingStatus string `gorm:"size:20;default:'completed'" json:"processing_status"`

	// ProcessingCompletedAt is when processing finished.
	ProcessingCompletedAt *Time `json:"processing_completed_at,omitempty"`

	// Metadata is a free-form JSON document with pipeline extras.
	Metadata string `gorm:"type:text" json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for MediaFile.
func (MediaFile) TableName() string {
	return "media_files"
}

// Validate performs basic validation on the media file record.
func (m *MediaFile) Validate() error {
	if len(m.ID) != FileIDLen {
		return ErrInvalidFileID
	}
	if _, err := hex.DecodeString(m.ID); err != nil {
		return ErrInvalidFileID
	}
	if m.FileHash == "" {
		return ErrFileHashRequired
	}
	if !m.FileType.Valid() {
		return ErrInvalidMediaType
	}
	if m.StoragePath == "" {
		return ErrFilePathRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the record.
func (m *MediaFile) BeforeCreate(tx *gorm.DB) error {
	return m.Validate()
}
