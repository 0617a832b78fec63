package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Common validation and lookup errors for models.
var (
	// ErrFilePathRequired indicates a required file path field is empty.
	ErrFilePathRequired = errors.New("file_path is required")

	// ErrInvalidMediaType indicates an invalid media type.
	ErrInvalidMediaType = errors.New("invalid media type: must be 'image' or 'video'")

	// ErrInvalidQueueStatus indicates an invalid queue status value.
	ErrInvalidQueueStatus = errors.New("invalid queue status")

	// ErrInvalidKeyMaterial indicates key or IV material of the wrong length or encoding.
	ErrInvalidKeyMaterial = errors.New("key and IV must be 32 hex characters")

	// ErrNoActiveKey indicates no active encryption key exists.
	ErrNoActiveKey = errors.New("no active encryption key")

	// ErrFileHashRequired indicates a required file hash field is empty.
	ErrFileHashRequired = errors.New("file_hash is required")

	// ErrInvalidFileID indicates a media file id that is not 16 hex characters.
	ErrInvalidFileID = errors.New("media file id must be 16 hex characters")

	// ErrJobNotFound indicates a queue job was not found.
	ErrJobNotFound = errors.New("queue job not found")

	// ErrMediaFileNotFound indicates a media file record was not found.
	ErrMediaFileNotFound = errors.New("media file not found")

	// ErrJobNotClaimable indicates a job could not be transitioned to processing,
	// usually because another worker claimed it first.
	ErrJobNotClaimable = errors.New("job is not claimable")
)
