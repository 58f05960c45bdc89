package store

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/plexlabs/vault-indexer/internal/domain"
	"github.com/plexlabs/vault-indexer/internal/store/schema"
)

// CreateProductInput holds the fields for a new product row
type CreateProductInput struct {
	ChainID         domain.ChainID
	Address         string
	Name            string
	Underlying      string
	MaxCapacity     string
	Status          int
	CurrentCapacity string
	IssuanceCycle   json.RawMessage
}

// ProductStatsUpdate holds the mutable fields overwritten by a stats sync
type ProductStatsUpdate struct {
	Status          int
	CurrentCapacity string
	IssuanceCycle   json.RawMessage
}

// CreateHistoryInput holds the fields for a new ledger row
type CreateHistoryInput struct {
	Address         string
	Type            domain.HistoryType
	WithdrawType    domain.WithdrawType
	ProductID       uint64
	Amount          string
	AmountInDecimal decimal.Decimal
	TransactionHash string
	TokenID         *string
	Supply          *string
	SupplyInDecimal *decimal.Decimal
	ChainID         domain.ChainID
}

// CreateWithdrawRequestInput holds the fields for a new withdrawal intent
type CreateWithdrawRequestInput struct {
	Address        string
	ProductAddress string
	CurrentTokenID string
}

// ListedItem is a live marketplace row left-joined with its product by
// address equality. Product columns are nullable: a listing whose product
// was never indexed still surfaces, with the product side absent.
type ListedItem struct {
	ID                uint64          `gorm:"column:id"`
	TokenID           string          `gorm:"column:token_id"`
	Seller            string          `gorm:"column:seller"`
	PriceInDecimal    decimal.Decimal `gorm:"column:price_in_decimal"`
	QuantityInDecimal decimal.Decimal `gorm:"column:quantity_in_decimal"`
	ProductAddress    string          `gorm:"column:product_address"`
	StartingTime      int64           `gorm:"column:starting_time"`
	ProductID         *uint64         `gorm:"column:joined_product_id"`
	ProductChainID    *domain.ChainID `gorm:"column:product_chain_id"`
	ProductName       *string         `gorm:"column:product_name"`
	Underlying        *string         `gorm:"column:product_underlying"`
	CurrentCapacity   *string         `gorm:"column:product_current_capacity"`
	IssuanceCycle     datatypes.JSON  `gorm:"column:product_issuance_cycle"`
}

// Store defines the interface for database operations
type Store interface {
	// CreateProduct inserts a new product row
	CreateProduct(ctx context.Context, input CreateProductInput) (*schema.Product, error)
	// GetProduct retrieves a non-paused product by (chain, address); (nil, nil) when absent
	GetProduct(ctx context.Context, chain domain.ChainID, address string) (*schema.Product, error)
	// FindProduct retrieves a product by (chain, address) regardless of pause
	// state; (nil, nil) when absent. Ledger attribution must reach paused
	// products, so this does not share GetProduct's pause filter.
	FindProduct(ctx context.Context, chain domain.ChainID, address string) (*schema.Product, error)
	// GetProducts retrieves non-paused products with non-zero status, oldest first
	GetProducts(ctx context.Context, chain domain.ChainID) ([]*schema.Product, error)
	// GetProductsWithoutStatus retrieves all non-paused products regardless of status
	GetProductsWithoutStatus(ctx context.Context, chain domain.ChainID) ([]*schema.Product, error)
	// UpdateProduct overwrites the sync-owned product fields; returns rows affected
	UpdateProduct(ctx context.Context, chain domain.ChainID, address string, stats ProductStatsUpdate) (int64, error)
	// UpdateProductFull overwrites every sync-owned field from a creation event; returns rows affected
	UpdateProductFull(ctx context.Context, chain domain.ChainID, address string, input CreateProductInput) (int64, error)
	// UpdateProductName updates the product display name; returns rows affected
	UpdateProductName(ctx context.Context, chain domain.ChainID, address string, name string) (int64, error)
	// UpdateProductPauseStatus flips the pause flag; returns rows affected
	UpdateProductPauseStatus(ctx context.Context, chain domain.ChainID, address string, isPaused bool) (int64, error)

	// CreateHistory appends a ledger row; domain.ErrDuplicateEvent on a
	// transaction hash collision
	CreateHistory(ctx context.Context, input CreateHistoryInput) error
	// ListDepositHistories retrieves DEPOSIT rows for a product, newest first
	ListDepositHistories(ctx context.Context, productID uint64) ([]*schema.History, error)

	// ListListedItems retrieves live listings joined with their products,
	// optionally filtered by seller
	ListListedItems(ctx context.Context, seller *string) ([]*ListedItem, error)
	// GetListedItem retrieves a single listing by primary key, expired or
	// not; (nil, nil) when absent
	GetListedItem(ctx context.Context, id uint64) (*ListedItem, error)
	// GetListedItemByToken retrieves a single listing by token id, expired
	// or not; (nil, nil) when absent
	GetListedItemByToken(ctx context.Context, tokenID string) (*ListedItem, error)
	// ListOffers retrieves every listing for (productAddress, tokenID) - the offer book
	ListOffers(ctx context.Context, productAddress string, tokenID string) ([]*schema.MarketplaceItem, error)

	// CreateWithdrawRequest inserts a withdrawal intent unconditionally
	CreateWithdrawRequest(ctx context.Context, input CreateWithdrawRequestInput) error
	// FindWithdrawRequest retrieves the first pending intent for (address, product); (nil, nil) when absent
	FindWithdrawRequest(ctx context.Context, address string, productAddress string) (*schema.WithdrawRequest, error)
	// DeleteWithdrawRequest removes a withdrawal intent
	DeleteWithdrawRequest(ctx context.Context, request *schema.WithdrawRequest) error
}
