package schema

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/plexlabs/vault-indexer/internal/domain"
)

// History represents the histories table - the append-only, deduplicated
// ledger of on-chain events attributed to a product. The transaction hash is
// globally unique: a collision means a replayed or misattributed event and
// must fail the insert rather than overwrite the existing row.
type History struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Address is the acting wallet address
	Address string `gorm:"column:address;not null;type:text"`
	// Type classifies the ledger event
	Type domain.HistoryType `gorm:"column:type;not null;type:text;default:'DEPOSIT'"`
	// WithdrawType sub-classifies WITHDRAW events
	WithdrawType domain.WithdrawType `gorm:"column:withdraw_type;not null;type:text;default:'NONE'"`
	// ProductID references the owning product
	ProductID uint64 `gorm:"column:product_id;not null;index"`
	// Amount is the raw on-chain integer amount
	Amount string `gorm:"column:amount;not null;type:numeric(78,0)"`
	// AmountInDecimal is the chain-aware normalized amount
	AmountInDecimal decimal.Decimal `gorm:"column:amount_in_decimal;not null;type:numeric(36,18)"`
	// TransactionHash is the idempotency key for event replay
	TransactionHash string `gorm:"column:transaction_hash;not null;type:text;uniqueIndex"`
	// TokenID is the minted position token id (deposits and coupons only)
	TokenID *string `gorm:"column:token_id;type:text"`
	// Supply is the raw minted supply (deposits and coupons only)
	Supply *string `gorm:"column:supply;type:numeric(78,0)"`
	// SupplyInDecimal is the normalized minted supply
	SupplyInDecimal *decimal.Decimal `gorm:"column:supply_in_decimal;type:numeric(36,18)"`
	// ChainID identifies the network the event was observed on
	ChainID domain.ChainID `gorm:"column:chain_id;not null"`
	// CreatedAt is the ingestion timestamp
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is kept for schema symmetry; ledger rows are never mutated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`

	// Associations
	Product Product `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the History model
func (History) TableName() string {
	return "histories"
}
