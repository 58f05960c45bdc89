package schema

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/plexlabs/vault-indexer/internal/domain"
)

// Product represents the products table - one row per structured-product
// vault, keyed by (chain_id, address). Rows are created on the first observed
// creation event and overwritten field-by-field on every subsequent sync;
// they are never deleted.
type Product struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// ChainID identifies the network the vault is deployed on
	ChainID domain.ChainID `gorm:"column:chain_id;not null;uniqueIndex:idx_products_chain_address,priority:1"`
	// Address is the vault contract address, the natural key listings join against
	Address string `gorm:"column:address;not null;type:text;uniqueIndex:idx_products_chain_address,priority:2"`
	// Name is the product display name
	Name string `gorm:"column:name;not null;type:text"`
	// Underlying is the underlying asset identifier (e.g., "ETH/USDC")
	Underlying string `gorm:"column:underlying;not null;type:text"`
	// MaxCapacity is the raw on-chain capacity limit (string to support up to 78 digits)
	MaxCapacity string `gorm:"column:max_capacity;not null;type:numeric(78,0)"`
	// CurrentCapacity is the raw on-chain deposited capacity
	CurrentCapacity string `gorm:"column:current_capacity;not null;type:numeric(78,0)"`
	// Status is the externally driven product lifecycle state (0 = not yet active)
	Status int `gorm:"column:status;not null;default:0"`
	// IsPaused hides the product from all read paths when true
	IsPaused bool `gorm:"column:is_paused;not null;default:false"`
	// IssuanceCycle is the current investment period metadata, stored verbatim
	IssuanceCycle datatypes.JSON `gorm:"column:issuance_cycle;type:jsonb"`
	// VaultStrategy describes the product strategy (descriptive pass-through)
	VaultStrategy string `gorm:"column:vault_strategy;type:text"`
	// Risk describes the product risk profile (descriptive pass-through)
	Risk string `gorm:"column:risk;type:text"`
	// Fees describes the fee schedule (descriptive pass-through)
	Fees string `gorm:"column:fees;type:text"`
	// Counterparties lists the product counterparties (descriptive pass-through)
	Counterparties string `gorm:"column:counterparties;type:text"`
	// MtmPrice is the mark-to-market valuation
	MtmPrice decimal.Decimal `gorm:"column:mtm_price;type:numeric(36,18);default:0"`
	// CreatedAt is the timestamp when this product was first indexed
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp of the last sync overwrite
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`

	// Associations
	Histories []History `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the Product model
func (Product) TableName() string {
	return "products"
}
