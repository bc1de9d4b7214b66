package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"peermarket/internal/model"
)

// TemplateRepository local listing template repository interface
type TemplateRepository interface {
	// Create a template; a duplicate hash reports success without mutation
	Create(ctx context.Context, template *model.ListingTemplate) error

	// GetByHash gets a template by content address, nil when absent
	GetByHash(ctx context.Context, hash string) (*model.ListingTemplate, error)

	// LookupTemplate resolves the template id behind a listing hash
	LookupTemplate(ctx context.Context, listingHash string) (uint64, bool, error)
}

// templateRepository template repository implementation
type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository creates a template repository
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

// Create creates a template; the hash unique index absorbs republication
func (r *templateRepository) Create(ctx context.Context, template *model.ListingTemplate) error {
	err := r.db.WithContext(ctx).Create(template).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

// GetByHash gets a template by content address
func (r *templateRepository) GetByHash(ctx context.Context, hash string) (*model.ListingTemplate, error) {
	var template model.ListingTemplate
	err := r.db.WithContext(ctx).
		Where("hash = ?", hash).
		First(&template).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &template, nil
}

// LookupTemplate resolves the template id behind a listing hash
func (r *templateRepository) LookupTemplate(ctx context.Context, listingHash string) (uint64, bool, error) {
	template, err := r.GetByHash(ctx, listingHash)
	if err != nil {
		return 0, false, err
	}
	if template == nil {
		return 0, false, nil
	}
	return template.ID, true, nil
}
