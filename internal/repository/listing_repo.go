package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"peermarket/internal/model"
)

// ListingRepository listing repository interface
type ListingRepository interface {
	// Create a listing; a duplicate hash reports success without mutation
	Create(ctx context.Context, listing *model.ListingItem) error

	// Get listing by content address, nil when absent
	GetByHash(ctx context.Context, hash string) (*model.ListingItem, error)

	// TouchLastSeen records a rebroadcast of an already known listing
	TouchLastSeen(ctx context.Context, hash string, seenAt time.Time) error

	// LinkTemplate attaches the local seller template to a listing
	LinkTemplate(ctx context.Context, hash string, templateID uint64) error

	// Count all listings
	Count(ctx context.Context) (int64, error)
}

// listingRepository listing repository implementation
type listingRepository struct {
	db *gorm.DB
}

// NewListingRepository creates a listing repository
func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepository{db: db}
}

// Create creates a listing; the hash unique index absorbs concurrent inserts
func (r *listingRepository) Create(ctx context.Context, listing *model.ListingItem) error {
	err := r.db.WithContext(ctx).Create(listing).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

// GetByHash gets a listing by content address
func (r *listingRepository) GetByHash(ctx context.Context, hash string) (*model.ListingItem, error) {
	var listing model.ListingItem
	err := r.db.WithContext(ctx).
		Where("hash = ?", hash).
		First(&listing).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &listing, nil
}

// TouchLastSeen updates the rebroadcast bookkeeping timestamp
func (r *listingRepository) TouchLastSeen(ctx context.Context, hash string, seenAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.ListingItem{}).
		Where("hash = ?", hash).
		Update("last_seen_at", &seenAt).Error
}

// LinkTemplate attaches a local template reference
func (r *listingRepository) LinkTemplate(ctx context.Context, hash string, templateID uint64) error {
	return r.db.WithContext(ctx).
		Model(&model.ListingItem{}).
		Where("hash = ?", hash).
		Update("template_id", templateID).Error
}

// Count counts all listings
func (r *listingRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ListingItem{}).
		Count(&count).Error
	return count, err
}
