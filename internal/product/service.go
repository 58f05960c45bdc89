// Package product implements the on-chain-to-off-chain reconciliation core:
// idempotent product sync, deduplicated ledger ingestion, and the product
// read projections.
package product

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/plexlabs/vault-indexer/internal/domain"
	"github.com/plexlabs/vault-indexer/internal/logger"
	"github.com/plexlabs/vault-indexer/internal/normalizer"
	"github.com/plexlabs/vault-indexer/internal/store"
	"github.com/plexlabs/vault-indexer/internal/store/schema"
)

const defaultSyncWorkers = 8

// DepositActivity is one row of the product detail deposit feed
type DepositActivity struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Lots   decimal.Decimal `json:"lots"`
	TxHash string          `json:"txhash"`
}

// Detail is the single-product read projection
type Detail struct {
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
	Deposits        []DepositActivity `json:"deposits"`
}

// Service defines product sync, read, and withdraw-tracking operations
type Service interface {
	// SyncProducts reconciles a batch of creation events against the product
	// mirror. Per-event upserts run concurrently and independently; the call
	// waits for the whole batch and surfaces the first failure.
	SyncProducts(ctx context.Context, chain domain.ChainID, events []domain.ProductCreatedEvent) error
	// SyncHistories appends a batch of vault events to the ledger
	// sequentially. Replayed transaction hashes are skipped without
	// disturbing sibling rows.
	SyncHistories(ctx context.Context, chain domain.ChainID, productID uint64, historyType domain.HistoryType, events []domain.VaultEvent, withdrawType domain.WithdrawType) error

	// GetProduct returns the product detail with its deposit activity feed;
	// (nil, nil) when no matching product exists
	GetProduct(ctx context.Context, chain domain.ChainID, address string) (*Detail, error)
	// GetProducts returns active (non-zero status), non-paused products
	GetProducts(ctx context.Context, chain domain.ChainID) ([]*schema.Product, error)
	// GetProductsWithoutStatus returns all non-paused products, including
	// not-yet-active ones that administrative sync must still visit
	GetProductsWithoutStatus(ctx context.Context, chain domain.ChainID) ([]*schema.Product, error)

	// UpdateProduct overwrites status, capacity, and cycle; returns rows affected
	UpdateProduct(ctx context.Context, chain domain.ChainID, address string, stats domain.ProductStatsEvent) (int64, error)
	// UpdateProductName renames a product; returns rows affected
	UpdateProductName(ctx context.Context, chain domain.ChainID, address string, name string) (int64, error)
	// UpdateProductPauseStatus pauses or resumes a product; returns rows affected
	UpdateProductPauseStatus(ctx context.Context, chain domain.ChainID, address string, isPaused bool) (int64, error)

	// RequestWithdraw records a withdrawal intent
	RequestWithdraw(ctx context.Context, address string, productAddress string, tokenID string) error
	// CancelWithdraw removes the pending intent for (address, product) if one
	// exists; absence is a no-op
	CancelWithdraw(ctx context.Context, chain domain.ChainID, address string, productAddress string) error
}

type service struct {
	store       store.Store
	syncWorkers int
	entropy     *ulid.MonotonicEntropy
}

// NewService creates a product service. syncWorkers bounds the concurrent
// per-event upserts in SyncProducts; 0 uses the default.
func NewService(st store.Store, syncWorkers int) Service {
	if syncWorkers <= 0 {
		syncWorkers = defaultSyncWorkers
	}
	return &service{
		store:       st,
		syncWorkers: syncWorkers,
		entropy:     ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0), //nolint:gosec
	}
}

// SyncProducts reconciles a batch of creation events against the product mirror
func (s *service) SyncProducts(ctx context.Context, chain domain.ChainID, events []domain.ProductCreatedEvent) error {
	if !domain.IsSupportedChain(chain) {
		return fmt.Errorf("%w: %d", domain.ErrUnsupportedChain, chain)
	}
	if len(events) == 0 {
		return nil
	}

	batchID := ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
	logger.InfoCtx(ctx, "Syncing products",
		zap.String("batch_id", batchID),
		zap.Int("chain_id", int(chain)),
		zap.Int("events", len(events)),
	)

	pool := pond.NewPool(s.syncWorkers, pond.WithContext(ctx))
	defer pool.StopAndWait()

	group := pool.NewGroup()
	for _, event := range events {
		group.SubmitErr(func() error {
			return s.syncProduct(ctx, chain, event)
		})
	}

	// All-complete barrier; the first rejection wins, siblings still finish
	if err := group.Wait(); err != nil {
		return fmt.Errorf("product sync batch %s: %w", batchID, err)
	}

	return nil
}

// syncProduct upserts one product. Absent rows are created verbatim from the
// event; existing rows get their mutable fields overwritten, on the
// assumption that the latest on-chain read is authoritative.
func (s *service) syncProduct(ctx context.Context, chain domain.ChainID, event domain.ProductCreatedEvent) error {
	address := domain.NormalizeAddress(event.Address)

	existing, err := s.store.GetProduct(ctx, chain, address)
	if err != nil {
		return err
	}

	input := store.CreateProductInput{
		ChainID:         chain,
		Address:         address,
		Name:            event.Name,
		Underlying:      event.Underlying,
		MaxCapacity:     event.MaxCapacity,
		Status:          event.Status,
		CurrentCapacity: event.CurrentCapacity,
		IssuanceCycle:   event.IssuanceCycle,
	}

	if existing == nil {
		if _, err := s.store.CreateProduct(ctx, input); err != nil {
			return err
		}
		return nil
	}

	if _, err := s.store.UpdateProductFull(ctx, chain, address, input); err != nil {
		return err
	}

	return nil
}

// SyncHistories appends a batch of vault events to the ledger
func (s *service) SyncHistories(ctx context.Context, chain domain.ChainID, productID uint64, historyType domain.HistoryType, events []domain.VaultEvent, withdrawType domain.WithdrawType) error {
	if withdrawType == "" {
		withdrawType = domain.WithdrawTypeNone
	}

	for _, event := range events {
		amountInDecimal, err := normalizer.ToDecimal(event.Amount, chain)
		if err != nil {
			return fmt.Errorf("failed to normalize amount for tx %s: %w", event.TxHash, err)
		}

		input := store.CreateHistoryInput{
			Address:         domain.NormalizeAddress(event.UserAddress),
			Type:            historyType,
			WithdrawType:    withdrawType,
			ProductID:       productID,
			Amount:          event.Amount,
			AmountInDecimal: amountInDecimal,
			TransactionHash: event.TxHash,
			ChainID:         chain,
		}

		// Only events that mint a positioned token carry token fields
		if historyType == domain.HistoryTypeDeposit || historyType == domain.HistoryTypeWeeklyCoupon {
			tokenID := event.TokenID
			supply := event.Supply
			supplyInDecimal, err := decimal.NewFromString(supply)
			if err != nil {
				return fmt.Errorf("failed to parse supply for tx %s: %w", event.TxHash, err)
			}
			input.TokenID = &tokenID
			input.Supply = &supply
			input.SupplyInDecimal = &supplyInDecimal
		}

		if err := s.store.CreateHistory(ctx, input); err != nil {
			if errors.Is(err, domain.ErrDuplicateEvent) {
				// Replayed delivery; the row is already in the ledger
				logger.WarnCtx(ctx, "Skipping replayed event",
					zap.String("tx_hash", event.TxHash),
					zap.String("type", string(historyType)),
				)
				continue
			}
			return err
		}
	}

	return nil
}

// GetProduct returns the product detail with its deposit activity feed
func (s *service) GetProduct(ctx context.Context, chain domain.ChainID, address string) (*Detail, error) {
	product, err := s.store.GetProduct(ctx, chain, address)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, nil
	}

	deposits, err := s.store.ListDepositHistories(ctx, product.ID)
	if err != nil {
		return nil, err
	}

	activity := make([]DepositActivity, 0, len(deposits))
	for _, h := range deposits {
		activity = append(activity, DepositActivity{
			Date:   h.CreatedAt,
			Amount: h.AmountInDecimal,
			// Fractional lots are meaningful in the activity feed, so this
			// is deliberately not floored like capacity lots
			Lots:   normalizer.ActivityLots(h.AmountInDecimal),
			TxHash: h.TransactionHash,
		})
	}

	return &Detail{
		ID:              product.ID,
		Address:         product.Address,
		Name:            product.Name,
		Underlying:      product.Underlying,
		MaxCapacity:     product.MaxCapacity,
		CurrentCapacity: product.CurrentCapacity,
		Status:          product.Status,
		IssuanceCycle:   json.RawMessage(product.IssuanceCycle),
		ChainID:         product.ChainID,
		VaultStrategy:   product.VaultStrategy,
		Risk:            product.Risk,
		Fees:            product.Fees,
		Counterparties:  product.Counterparties,
		MtmPrice:        product.MtmPrice,
		Deposits:        activity,
	}, nil
}

// GetProducts returns active, non-paused products
func (s *service) GetProducts(ctx context.Context, chain domain.ChainID) ([]*schema.Product, error) {
	return s.store.GetProducts(ctx, chain)
}

// GetProductsWithoutStatus returns all non-paused products
func (s *service) GetProductsWithoutStatus(ctx context.Context, chain domain.ChainID) ([]*schema.Product, error) {
	return s.store.GetProductsWithoutStatus(ctx, chain)
}

// UpdateProduct overwrites status, capacity, and cycle
func (s *service) UpdateProduct(ctx context.Context, chain domain.ChainID, address string, stats domain.ProductStatsEvent) (int64, error) {
	return s.store.UpdateProduct(ctx, chain, domain.NormalizeAddress(address), store.ProductStatsUpdate{
		Status:          stats.Status,
		CurrentCapacity: stats.CurrentCapacity,
		IssuanceCycle:   stats.IssuanceCycle,
	})
}

// UpdateProductName renames a product
func (s *service) UpdateProductName(ctx context.Context, chain domain.ChainID, address string, name string) (int64, error) {
	return s.store.UpdateProductName(ctx, chain, domain.NormalizeAddress(address), name)
}

// UpdateProductPauseStatus pauses or resumes a product
func (s *service) UpdateProductPauseStatus(ctx context.Context, chain domain.ChainID, address string, isPaused bool) (int64, error) {
	return s.store.UpdateProductPauseStatus(ctx, chain, domain.NormalizeAddress(address), isPaused)
}

// RequestWithdraw records a withdrawal intent. The insert is unconditional:
// a second request for the same (address, product) creates a second row.
func (s *service) RequestWithdraw(ctx context.Context, address string, productAddress string, tokenID string) error {
	return s.store.CreateWithdrawRequest(ctx, store.CreateWithdrawRequestInput{
		Address:        domain.NormalizeAddress(address),
		ProductAddress: domain.NormalizeAddress(productAddress),
		CurrentTokenID: tokenID,
	})
}

// CancelWithdraw removes the pending intent for (address, product).
// The chain id is accepted for API symmetry but withdraw requests are keyed
// chain-agnostically; the lookup does not filter on it.
func (s *service) CancelWithdraw(ctx context.Context, chain domain.ChainID, address string, productAddress string) error {
	logger.DebugCtx(ctx, "Cancelling withdraw request",
		zap.Int("chain_id", int(chain)),
		zap.String("address", address),
	)

	request, err := s.store.FindWithdrawRequest(ctx, domain.NormalizeAddress(address), domain.NormalizeAddress(productAddress))
	if err != nil {
		return err
	}
	if request == nil {
		return nil
	}

	return s.store.DeleteWithdrawRequest(ctx, request)
}
