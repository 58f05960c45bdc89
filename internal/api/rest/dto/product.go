// Package dto holds the REST response shapes for product rows
package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plexlabs/vault-indexer/internal/domain"
	"github.com/plexlabs/vault-indexer/internal/store/schema"
)

// Product is the list-level product response shape
type Product struct {
	ID              uint64          `json:"id"`
	Address         string          `json:"address"`
	Name            string          `json:"name"`
	Underlying      string          `json:"underlying"`
	MaxCapacity     string          `json:"maxCapacity"`
	CurrentCapacity string          `json:"currentCapacity"`
	Status          int             `json:"status"`
	IssuanceCycle   json.RawMessage `json:"issuanceCycle"`
	ChainID         domain.ChainID  `json:"chainId"`
	VaultStrategy   string          `json:"vaultStrategy"`
	Risk            string          `json:"risk"`
	Fees            string          `json:"fees"`
	Counterparties  string          `json:"counterparties"`
	MtmPrice        decimal.Decimal `json:"mtmPrice"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// FromProduct maps a product row to its response shape
func FromProduct(p *schema.Product) Product {
	return Product{
		ID:              p.ID,
		Address:         p.Address,
		Name:            p.Name,
		Underlying:      p.Underlying,
		MaxCapacity:     p.MaxCapacity,
		CurrentCapacity: p.CurrentCapacity,
		Status:          p.Status,
		IssuanceCycle:   json.RawMessage(p.IssuanceCycle),
		ChainID:         p.ChainID,
		VaultStrategy:   p.VaultStrategy,
		Risk:            p.Risk,
		Fees:            p.Fees,
		Counterparties:  p.Counterparties,
		MtmPrice:        p.MtmPrice,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// FromProducts maps product rows to their response shapes
func FromProducts(products []*schema.Product) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		out = append(out, FromProduct(p))
	}
	return out
}
