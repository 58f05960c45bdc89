package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketplaceItem represents the marketplace_items table - one row per
// listed position. Rows reference products by address equality rather than
// by surrogate key; only rows with is_expired = false are live. Sold or
// cancelled listings are soft-deleted by flipping the flag.
type MarketplaceItem struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// TokenID is the listed position token
	TokenID string `gorm:"column:token_id;not null;type:text;index"`
	// Seller is the listing wallet address
	Seller string `gorm:"column:seller;not null;type:text;index"`
	// PriceInDecimal is the normalized asking price per lot
	PriceInDecimal decimal.Decimal `gorm:"column:price_in_decimal;not null;type:numeric(36,18)"`
	// QuantityInDecimal is the normalized listed quantity
	QuantityInDecimal decimal.Decimal `gorm:"column:quantity_in_decimal;not null;type:numeric(36,18)"`
	// ProductAddress joins the owning product by address, not by id
	ProductAddress string `gorm:"column:product_address;not null;type:text;index"`
	// IsExpired soft-deletes the listing on sale or cancellation
	IsExpired bool `gorm:"column:is_expired;not null;default:false"`
	// StartingTime is the unix timestamp the listing becomes active
	StartingTime int64 `gorm:"column:starting_time;not null;default:0"`
	// CreatedAt is the listing creation timestamp
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the last modification timestamp
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the MarketplaceItem model
func (MarketplaceItem) TableName() string {
	return "marketplace_items"
}
