package store

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/plexlabs/vault-indexer/internal/store/schema"
)

// Migrate creates or updates the database tables for every model
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&schema.Product{},
		&schema.History{},
		&schema.MarketplaceItem{},
		&schema.WithdrawRequest{},
		&schema.KeyValue{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	return nil
}
