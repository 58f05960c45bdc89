// Package marketplace builds listing read-models by joining live marketplace
// entries with their product record and peer offers for the same token.
package marketplace

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/plexlabs/vault-indexer/internal/domain"
	"github.com/plexlabs/vault-indexer/internal/logger"
	"github.com/plexlabs/vault-indexer/internal/normalizer"
	"github.com/plexlabs/vault-indexer/internal/store"
)

// Item is the list-level marketplace projection. MtmPrice is emitted as zero:
// mark-to-market valuation is not implemented in this projection yet, the
// field is kept for payload compatibility.
type Item struct {
	ID             uint64          `json:"id"`
	TokenID        string          `json:"tokenId"`
	OfferPrice     decimal.Decimal `json:"offerPrice"`
	MtmPrice       decimal.Decimal `json:"mtmPrice"`
	Underlying     string          `json:"underlying"`
	ProductAddress string          `json:"productAddress"`
	Name           string          `json:"name"`
	TotalLots      int64           `json:"totalLots"`
	IssuanceCycle  json.RawMessage `json:"issuanceCycle"`
}

// ItemDetail extends Item with the detail-level fields that are omitted from
// list responses for payload size.
type ItemDetail struct {
	Item
	StartingTime int64  `json:"startingTime"`
	Seller       string `json:"seller"`
}

// Offer is one entry of a token's offer book
type Offer struct {
	ID           uint64          `json:"id"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	StartingTime int64           `json:"startingTime"`
	Seller       string          `json:"seller"`
}

// TokenItem is the per-token projection: the primary listing plus the full
// offer book for (productAddress, tokenId).
type TokenItem struct {
	Item
	Offers []Offer `json:"offers"`
}

// Aggregator builds marketplace read projections
type Aggregator interface {
	// GetListedItems returns every live listing joined with its product
	GetListedItems(ctx context.Context) ([]Item, error)
	// GetUserListedItems returns a seller's live listings
	GetUserListedItems(ctx context.Context, address string) ([]Item, error)
	// GetItem returns a single listing by id; (nil, nil) when absent
	GetItem(ctx context.Context, id uint64) (*ItemDetail, error)
	// GetTokenItem returns the listing for a token with its offer book;
	// (nil, nil) when absent
	GetTokenItem(ctx context.Context, tokenID string) (*TokenItem, error)
}

type aggregator struct {
	store store.Store
}

// NewAggregator creates a marketplace aggregator
func NewAggregator(st store.Store) Aggregator {
	return &aggregator{store: st}
}

// GetListedItems returns every live listing joined with its product
func (a *aggregator) GetListedItems(ctx context.Context) ([]Item, error) {
	rows, err := a.store.ListListedItems(ctx, nil)
	if err != nil {
		return nil, err
	}

	return projectItems(ctx, rows), nil
}

// GetUserListedItems returns a seller's live listings
func (a *aggregator) GetUserListedItems(ctx context.Context, address string) ([]Item, error) {
	seller := domain.NormalizeAddress(address)
	rows, err := a.store.ListListedItems(ctx, &seller)
	if err != nil {
		return nil, err
	}

	return projectItems(ctx, rows), nil
}

// GetItem returns a single listing by id
func (a *aggregator) GetItem(ctx context.Context, id uint64) (*ItemDetail, error) {
	row, err := a.store.GetListedItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}

	return &ItemDetail{
		Item:         projectItem(ctx, row),
		StartingTime: row.StartingTime,
		Seller:       row.Seller,
	}, nil
}

// GetTokenItem returns the listing for a token with its offer book. The
// secondary offers query is intentional: offer-book depth is small and
// bounded by realistic market activity.
func (a *aggregator) GetTokenItem(ctx context.Context, tokenID string) (*TokenItem, error) {
	row, err := a.store.GetListedItemByToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}

	offerRows, err := a.store.ListOffers(ctx, row.ProductAddress, tokenID)
	if err != nil {
		return nil, err
	}

	offers := make([]Offer, 0, len(offerRows))
	for _, offer := range offerRows {
		offers = append(offers, Offer{
			ID:           offer.ID,
			Price:        offer.PriceInDecimal,
			Quantity:     offer.QuantityInDecimal,
			StartingTime: offer.StartingTime,
			Seller:       offer.Seller,
		})
	}

	return &TokenItem{
		Item:   projectItem(ctx, row),
		Offers: offers,
	}, nil
}

// projectItems maps joined rows to the list projection
func projectItems(ctx context.Context, rows []*store.ListedItem) []Item {
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, projectItem(ctx, row))
	}
	return items
}

// projectItem maps one joined row to the list projection. Product columns
// are nullable on the left join; a listing without an indexed product keeps
// zero values for the product-derived fields.
func projectItem(ctx context.Context, row *store.ListedItem) Item {
	item := Item{
		ID:             row.ID,
		TokenID:        row.TokenID,
		OfferPrice:     row.PriceInDecimal,
		MtmPrice:       decimal.Zero,
		ProductAddress: row.ProductAddress,
		IssuanceCycle:  json.RawMessage(row.IssuanceCycle),
	}

	if row.ProductName != nil {
		item.Name = *row.ProductName
	}
	if row.Underlying != nil {
		item.Underlying = *row.Underlying
	}
	if row.CurrentCapacity != nil && row.ProductChainID != nil {
		capacity, err := normalizer.ToDecimal(*row.CurrentCapacity, *row.ProductChainID)
		if err != nil {
			logger.WarnCtx(ctx, "Failed to normalize listing capacity",
				zap.Error(err),
				zap.Uint64("listing_id", row.ID),
				zap.String("product_address", row.ProductAddress))
		} else {
			item.TotalLots = normalizer.CapacityLots(capacity)
		}
	}

	return item
}
