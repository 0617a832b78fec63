package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/mediavault/mediavault/internal/models"
	"gorm.io/gorm"
)

// mediaRepo implements MediaRepository using GORM.
type mediaRepo struct {
	db *gorm.DB
}

// NewMediaRepository creates a new MediaRepository.
func NewMediaRepository(db *gorm.DB) *mediaRepo {
	return &mediaRepo{db: db}
}

var _ MediaRepository = (*mediaRepo)(nil)

// Create inserts a catalog record for a fully processed asset.
func (r *mediaRepo) Create(ctx context.Context, file *models.MediaFile) error {
	if err := r.db.WithContext(ctx).Create(file).Error; err != nil {
		return fmt.Errorf("creating media file record: %w", err)
	}
	return nil
}

// GetByID retrieves a media file by its 16-hex identifier.
func (r *mediaRepo) GetByID(ctx context.Context, id string) (*models.MediaFile, error) {
	var file models.MediaFile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting media file by ID: %w", err)
	}
	return &file, nil
}

// FindByHash retrieves a media file by content hash.
func (r *mediaRepo) FindByHash(ctx context.Context, fileHash string) (*models.MediaFile, error) {
	var file models.MediaFile
	if err := r.db.WithContext(ctx).Where("file_hash = ?", fileHash).First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding media file by hash: %w", err)
	}
	return &file, nil
}

// Count returns the total number of catalog records.
func (r *mediaRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.MediaFile{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting media files: %w", err)
	}
	return count, nil
}
