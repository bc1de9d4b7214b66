package database

import (
	"fmt"

	"gorm.io/gorm"

	"peermarket/internal/model"
	"peermarket/pkg/log"
)

// AutoMigrate auto migrate database table schema
func AutoMigrate(db *gorm.DB) error {
	log.Info("Starting database migration...")

	models := []interface{}{
		&model.Message{},
		&model.ListingItem{},
		&model.ListingTemplate{},
		&model.Order{},
		&model.OrderItem{},
		&model.Bid{},
	}

	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", m, err)
		}
		log.Infof("Migrated model: %T", m)
	}

	log.Info("Database migration completed successfully")
	return nil
}

// CreateIndexes create additional indexes
func CreateIndexes(db *gorm.DB) error {
	indexes := []struct {
		name string
		sql  string
	}{
		{
			name: "idx_messages_status_retry",
			sql:  "CREATE INDEX IF NOT EXISTS idx_messages_status_retry ON messages (status, next_retry_at, received_at)",
		},
		{
			name: "idx_order_items_listing_bidder",
			sql:  "CREATE INDEX IF NOT EXISTS idx_order_items_listing_bidder ON order_items (listing_hash, bidder)",
		},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.sql).Error; err != nil {
			log.Warnf("Failed to create index %s: %v", idx.name, err)
		} else {
			log.Infof("Created index: %s", idx.name)
		}
	}
	return nil
}
