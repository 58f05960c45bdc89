package schema

import (
	"time"
)

// WithdrawRequest represents the withdraw_requests table - a short-lived
// record of a pending withdrawal intent per (address, product). Created on
// request, deleted on cancellation; there is no update path and no
// uniqueness guard, so repeated requests create multiple rows.
type WithdrawRequest struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Address is the requesting wallet
	Address string `gorm:"column:address;not null;type:text;index:idx_withdraw_requests_address_product,priority:1"`
	// ProductAddress identifies the product being withdrawn from
	ProductAddress string `gorm:"column:product_address;not null;type:text;index:idx_withdraw_requests_address_product,priority:2"`
	// CurrentTokenID is the position token the request applies to
	CurrentTokenID string `gorm:"column:current_token_id;not null;type:text"`
	// CreatedAt is the request timestamp
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the WithdrawRequest model
func (WithdrawRequest) TableName() string {
	return "withdraw_requests"
}
