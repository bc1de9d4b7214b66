package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"peermarket/internal/model"
)

// ErrStorageConflict a concurrent writer updated the row first; the caller
// may retry against fresh state
var ErrStorageConflict = errors.New("storage conflict")

// OrderRepository order repository interface
type OrderRepository interface {
	// CreateWithItem creates an order together with its first item
	CreateWithItem(ctx context.Context, order *model.Order, item *model.OrderItem) error

	// Get order by id with items, nil when absent
	GetByID(ctx context.Context, id uint64) (*model.Order, error)

	// Get order by hash, nil when absent
	GetByHash(ctx context.Context, hash string) (*model.Order, error)

	// GetItemByListingAndBidder finds the order item tracking a buyer/listing
	// pair, nil when absent
	GetItemByListingAndBidder(ctx context.Context, listingHash, bidder string) (*model.OrderItem, error)

	// UpdateItem persists status/history under an optimistic version check;
	// a lost race returns ErrStorageConflict
	UpdateItem(ctx context.Context, item *model.OrderItem) error

	// UpdateStatus updates the aggregate order status
	UpdateStatus(ctx context.Context, orderID uint64, status string) error

	// CountByStatus returns order counts keyed by status
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// orderRepository order repository implementation
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates an order repository
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// CreateWithItem creates an order and its first item in one transaction
func (r *orderRepository) CreateWithItem(ctx context.Context, order *model.Order, item *model.OrderItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrStorageConflict
			}
			return err
		}

		item.OrderID = order.ID
		if err := tx.Create(item).Error; err != nil {
			return err
		}
		return nil
	})
}

// GetByID gets an order with its items
func (r *orderRepository) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByHash gets an order by hash
func (r *orderRepository) GetByHash(ctx context.Context, hash string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("hash = ?", hash).
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetItemByListingAndBidder finds the item tracking a buyer/listing pair
func (r *orderRepository) GetItemByListingAndBidder(ctx context.Context, listingHash, bidder string) (*model.OrderItem, error) {
	var item model.OrderItem
	err := r.db.WithContext(ctx).
		Where("listing_hash = ? AND bidder = ?", listingHash, bidder).
		Order("id ASC").
		First(&item).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// UpdateItem persists an item mutation under an optimistic version check
func (r *orderRepository) UpdateItem(ctx context.Context, item *model.OrderItem) error {
	result := r.db.WithContext(ctx).
		Model(&model.OrderItem{}).
		Where("id = ? AND version = ?", item.ID, item.Version).
		Updates(map[string]interface{}{
			"status":  item.Status,
			"history": item.History,
			"version": item.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStorageConflict
	}
	item.Version++
	return nil
}

// UpdateStatus updates the aggregate order status
func (r *orderRepository) UpdateStatus(ctx context.Context, orderID uint64, status string) error {
	return r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Update("status", status).Error
}

// CountByStatus returns order counts keyed by status
func (r *orderRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, rw := range rows {
		counts[rw.Status] = rw.Count
	}
	return counts, nil
}
