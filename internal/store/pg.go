package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/plexlabs/vault-indexer/internal/domain"
	"github.com/plexlabs/vault-indexer/internal/store/schema"
)

// listedItemColumns selects marketplace columns alongside aliased product
// columns so the two tables' overlapping names (id, created_at) never
// collide in the scan target.
const listedItemColumns = `marketplace_items.id, marketplace_items.token_id, marketplace_items.seller,
marketplace_items.price_in_decimal, marketplace_items.quantity_in_decimal,
marketplace_items.product_address, marketplace_items.starting_time,
products.id AS joined_product_id, products.chain_id AS product_chain_id,
products.name AS product_name, products.underlying AS product_underlying,
products.current_capacity AS product_current_capacity,
products.issuance_cycle AS product_issuance_cycle`

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance.
// The gorm connection must be opened with TranslateError enabled so unique
// violations surface as gorm.ErrDuplicatedKey.
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to defaults: 20 open, 5 idle,
// 5m lifetime, 10m idle time.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// CreateProduct inserts a new product row
func (s *pgStore) CreateProduct(ctx context.Context, input CreateProductInput) (*schema.Product, error) {
	product := schema.Product{
		ChainID:         input.ChainID,
		Address:         input.Address,
		Name:            input.Name,
		Underlying:      input.Underlying,
		MaxCapacity:     input.MaxCapacity,
		Status:          input.Status,
		CurrentCapacity: input.CurrentCapacity,
		IssuanceCycle:   datatypes.JSON(input.IssuanceCycle),
	}

	if err := s.db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	return &product, nil
}

// GetProduct retrieves a non-paused product by (chain, address)
func (s *pgStore) GetProduct(ctx context.Context, chain domain.ChainID, address string) (*schema.Product, error) {
	var product schema.Product
	err := s.db.WithContext(ctx).
		Where("chain_id = ? AND address = ? AND is_paused = ?", chain, address, false).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &product, nil
}

// FindProduct retrieves a product by (chain, address) regardless of pause state
func (s *pgStore) FindProduct(ctx context.Context, chain domain.ChainID, address string) (*schema.Product, error) {
	var product schema.Product
	err := s.db.WithContext(ctx).
		Where("chain_id = ? AND address = ?", chain, address).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find product: %w", err)
	}

	return &product, nil
}

// GetProducts retrieves non-paused products with non-zero status, oldest first
func (s *pgStore) GetProducts(ctx context.Context, chain domain.ChainID) ([]*schema.Product, error) {
	var products []*schema.Product
	err := s.db.WithContext(ctx).
		Where("chain_id = ? AND status <> 0 AND is_paused = ?", chain, false).
		Order("created_at ASC").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	return products, nil
}

// GetProductsWithoutStatus retrieves all non-paused products regardless of status
func (s *pgStore) GetProductsWithoutStatus(ctx context.Context, chain domain.ChainID) ([]*schema.Product, error) {
	var products []*schema.Product
	err := s.db.WithContext(ctx).
		Where("chain_id = ? AND is_paused = ?", chain, false).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list products without status: %w", err)
	}

	return products, nil
}

// UpdateProduct overwrites the sync-owned product fields
func (s *pgStore) UpdateProduct(ctx context.Context, chain domain.ChainID, address string, stats ProductStatsUpdate) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&schema.Product{}).
		Where("chain_id = ? AND address = ?", chain, address).
		Updates(map[string]interface{}{
			"status":           stats.Status,
			"current_capacity": stats.CurrentCapacity,
			"issuance_cycle":   datatypes.JSON(stats.IssuanceCycle),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update product: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// UpdateProductFull overwrites every sync-owned field from a creation event
func (s *pgStore) UpdateProductFull(ctx context.Context, chain domain.ChainID, address string, input CreateProductInput) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&schema.Product{}).
		Where("chain_id = ? AND address = ?", chain, address).
		Updates(map[string]interface{}{
			"name":             input.Name,
			"underlying":       input.Underlying,
			"max_capacity":     input.MaxCapacity,
			"status":           input.Status,
			"current_capacity": input.CurrentCapacity,
			"issuance_cycle":   datatypes.JSON(input.IssuanceCycle),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to overwrite product: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// UpdateProductName updates the product display name
func (s *pgStore) UpdateProductName(ctx context.Context, chain domain.ChainID, address string, name string) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&schema.Product{}).
		Where("chain_id = ? AND address = ?", chain, address).
		Update("name", name)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update product name: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// UpdateProductPauseStatus flips the pause flag
func (s *pgStore) UpdateProductPauseStatus(ctx context.Context, chain domain.ChainID, address string, isPaused bool) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&schema.Product{}).
		Where("chain_id = ? AND address = ?", chain, address).
		Update("is_paused", isPaused)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update product pause status: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// CreateHistory appends a ledger row. A transaction hash collision returns
// domain.ErrDuplicateEvent and leaves the existing row untouched.
func (s *pgStore) CreateHistory(ctx context.Context, input CreateHistoryInput) error {
	history := schema.History{
		Address:         input.Address,
		Type:            input.Type,
		WithdrawType:    input.WithdrawType,
		ProductID:       input.ProductID,
		Amount:          input.Amount,
		AmountInDecimal: input.AmountInDecimal,
		TransactionHash: input.TransactionHash,
		TokenID:         input.TokenID,
		Supply:          input.Supply,
		SupplyInDecimal: input.SupplyInDecimal,
		ChainID:         input.ChainID,
	}

	if err := s.db.WithContext(ctx).Create(&history).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: tx %s", domain.ErrDuplicateEvent, input.TransactionHash)
		}
		return fmt.Errorf("failed to create history: %w", err)
	}

	return nil
}

// ListDepositHistories retrieves DEPOSIT rows for a product, newest first
func (s *pgStore) ListDepositHistories(ctx context.Context, productID uint64) ([]*schema.History, error) {
	var histories []*schema.History
	err := s.db.WithContext(ctx).
		Where("product_id = ? AND type = ?", productID, domain.HistoryTypeDeposit).
		Order("created_at DESC").
		Find(&histories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list deposit histories: %w", err)
	}

	return histories, nil
}

// ListListedItems retrieves live listings joined with their products
func (s *pgStore) ListListedItems(ctx context.Context, seller *string) ([]*ListedItem, error) {
	query := s.db.WithContext(ctx).
		Table("marketplace_items").
		Select(listedItemColumns).
		Joins("LEFT JOIN products ON marketplace_items.product_address = products.address").
		Where("marketplace_items.is_expired = ?", false)

	if seller != nil {
		query = query.Where("marketplace_items.seller = ?", *seller)
	}

	var items []*ListedItem
	if err := query.Scan(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list marketplace items: %w", err)
	}

	return items, nil
}

// GetListedItem retrieves a single listing by primary key. Unlike the list
// queries, detail lookups do not filter on expiry: an expired listing stays
// addressable by id.
func (s *pgStore) GetListedItem(ctx context.Context, id uint64) (*ListedItem, error) {
	var items []*ListedItem
	err := s.db.WithContext(ctx).
		Table("marketplace_items").
		Select(listedItemColumns).
		Joins("LEFT JOIN products ON marketplace_items.product_address = products.address").
		Where("marketplace_items.id = ?", id).
		Limit(1).
		Scan(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get marketplace item: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	return items[0], nil
}

// GetListedItemByToken retrieves a single listing by token id, expired or not
func (s *pgStore) GetListedItemByToken(ctx context.Context, tokenID string) (*ListedItem, error) {
	var items []*ListedItem
	err := s.db.WithContext(ctx).
		Table("marketplace_items").
		Select(listedItemColumns).
		Joins("LEFT JOIN products ON marketplace_items.product_address = products.address").
		Where("marketplace_items.token_id = ?", tokenID).
		Limit(1).
		Scan(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get marketplace item by token: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	return items[0], nil
}

// ListOffers retrieves every listing for (productAddress, tokenID)
func (s *pgStore) ListOffers(ctx context.Context, productAddress string, tokenID string) ([]*schema.MarketplaceItem, error) {
	var offers []*schema.MarketplaceItem
	err := s.db.WithContext(ctx).
		Where("product_address = ? AND token_id = ?", productAddress, tokenID).
		Find(&offers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}

	return offers, nil
}

// CreateWithdrawRequest inserts a withdrawal intent unconditionally
func (s *pgStore) CreateWithdrawRequest(ctx context.Context, input CreateWithdrawRequestInput) error {
	request := schema.WithdrawRequest{
		Address:        input.Address,
		ProductAddress: input.ProductAddress,
		CurrentTokenID: input.CurrentTokenID,
	}

	if err := s.db.WithContext(ctx).Create(&request).Error; err != nil {
		return fmt.Errorf("failed to create withdraw request: %w", err)
	}

	return nil
}

// FindWithdrawRequest retrieves the first pending intent for (address, product)
func (s *pgStore) FindWithdrawRequest(ctx context.Context, address string, productAddress string) (*schema.WithdrawRequest, error) {
	var request schema.WithdrawRequest
	err := s.db.WithContext(ctx).
		Where("address = ? AND product_address = ?", address, productAddress).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find withdraw request: %w", err)
	}

	return &request, nil
}

// DeleteWithdrawRequest removes a withdrawal intent
func (s *pgStore) DeleteWithdrawRequest(ctx context.Context, request *schema.WithdrawRequest) error {
	if err := s.db.WithContext(ctx).Delete(request).Error; err != nil {
		return fmt.Errorf("failed to delete withdraw request: %w", err)
	}

	return nil
}
