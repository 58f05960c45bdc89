package domain

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ProductCreatedEvent is the decoded on-chain record of a product deployment
// or a refreshed read of its configuration. Re-delivery of the same event is
// expected and must be safe.
type ProductCreatedEvent struct {
	Address         string          `json:"address"`
	Name            string          `json:"name"`
	Underlying      string          `json:"underlying"`
	MaxCapacity     string          `json:"max_capacity"`     // raw integer string
	Status          int             `json:"status"`
	CurrentCapacity string          `json:"current_capacity"` // raw integer string
	IssuanceCycle   json.RawMessage `json:"issuance_cycle"`   // pass-through, not decomposed
	TxHash          string          `json:"tx_hash"`
	BlockNumber     uint64          `json:"block_number"`
}

// VaultEvent is a decoded deposit/coupon/withdraw log attributed to a product.
// TokenID and Supply are populated only for events that mint a positioned
// token (deposits and weekly coupons).
type VaultEvent struct {
	UserAddress string `json:"user_address"`
	Amount      string `json:"amount"` // raw integer string
	TokenID     string `json:"token_id,omitempty"`
	Supply      string `json:"supply,omitempty"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

// ProductStatsEvent carries the mutable product fields observed on-chain,
// used for targeted stats updates outside full product sync.
type ProductStatsEvent struct {
	Address         string          `json:"address"`
	Status          int             `json:"status"`
	CurrentCapacity string          `json:"current_capacity"`
	IssuanceCycle   json.RawMessage `json:"issuance_cycle"`
}

// PauseChangedEvent signals a product pause/unpause observed on-chain
type PauseChangedEvent struct {
	Address  string `json:"address"`
	IsPaused bool   `json:"is_paused"`
}

// ChainEvent is the envelope published to the message broker. Exactly one of
// the payload fields is set, selected by Kind.
type ChainEvent struct {
	ChainID        ChainID              `json:"chain_id"`
	Kind           EventKind            `json:"kind"`
	ProductAddress string               `json:"product_address"`
	ProductCreated *ProductCreatedEvent `json:"product_created,omitempty"`
	Vault          *VaultEvent          `json:"vault,omitempty"`
	Stats          *ProductStatsEvent   `json:"stats,omitempty"`
	Pause          *PauseChangedEvent   `json:"pause,omitempty"`
}

// Valid performs structural validation of the envelope before ingestion
func (e *ChainEvent) Valid() bool {
	if !IsSupportedChain(e.ChainID) {
		return false
	}
	if !common.IsHexAddress(e.ProductAddress) {
		return false
	}

	switch e.Kind {
	case EventKindProductCreated, EventKindProductUpdated:
		if e.ProductCreated == nil {
			return false
		}
		return validRawAmount(e.ProductCreated.MaxCapacity) &&
			validRawAmount(e.ProductCreated.CurrentCapacity) &&
			e.ProductCreated.TxHash != ""
	case EventKindDeposit, EventKindWeeklyCoupon, EventKindWithdraw:
		if e.Vault == nil {
			return false
		}
		if !common.IsHexAddress(e.Vault.UserAddress) {
			return false
		}
		return validRawAmount(e.Vault.Amount) && e.Vault.TxHash != ""
	case EventKindPauseChanged:
		return e.Pause != nil
	default:
		return false
	}
}

// HistoryType maps the envelope kind to its ledger classification
func (e *ChainEvent) HistoryType() (HistoryType, bool) {
	switch e.Kind {
	case EventKindDeposit:
		return HistoryTypeDeposit, true
	case EventKindWeeklyCoupon:
		return HistoryTypeWeeklyCoupon, true
	case EventKindWithdraw:
		return HistoryTypeWithdraw, true
	default:
		return "", false
	}
}

// validRawAmount checks a raw on-chain integer string (base 10, non-negative)
func validRawAmount(raw string) bool {
	if raw == "" {
		return false
	}
	v, ok := new(big.Int).SetString(raw, 10)
	return ok && v.Sign() >= 0
}
