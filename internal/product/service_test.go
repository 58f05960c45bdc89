package product

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexlabs/vault-indexer/internal/domain"
	"github.com/plexlabs/vault-indexer/internal/store"
	"github.com/plexlabs/vault-indexer/internal/store/schema"
)

const (
	testProductAddress = "0x1111111111111111111111111111111111111111"
	testUserAddress    = "0x2222222222222222222222222222222222222222"
)

// fakeStore is an in-memory Store standing in for Postgres. Only the methods
// the product service reaches are implemented; the embedded interface panics
// on anything else, which is the desired test failure mode.
type fakeStore struct {
	store.Store

	mu sync.Mutex

	products map[string]*schema.Product
	created  []store.CreateProductInput
	updated  []store.CreateProductInput

	histories  []store.CreateHistoryInput
	historyErr func(input store.CreateHistoryInput) error

	deposits []*schema.History

	withdrawRequests []schema.WithdrawRequest
	deleted          []*schema.WithdrawRequest

	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{products: make(map[string]*schema.Product)}
}

func productKey(chain domain.ChainID, address string) string {
	return fmt.Sprintf("%d/%s", chain, address)
}

func (f *fakeStore) GetProduct(_ context.Context, chain domain.ChainID, address string) (*schema.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	product, ok := f.products[productKey(chain, address)]
	if !ok || product.IsPaused {
		return nil, nil
	}
	return product, nil
}

func (f *fakeStore) CreateProduct(_ context.Context, input store.CreateProductInput) (*schema.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}

	f.created = append(f.created, input)
	product := &schema.Product{
		ID:              uint64(len(f.products) + 1),
		ChainID:         input.ChainID,
		Address:         input.Address,
		Name:            input.Name,
		Underlying:      input.Underlying,
		MaxCapacity:     input.MaxCapacity,
		Status:          input.Status,
		CurrentCapacity: input.CurrentCapacity,
	}
	f.products[productKey(input.ChainID, input.Address)] = product
	return product, nil
}

func (f *fakeStore) UpdateProductFull(_ context.Context, chain domain.ChainID, address string, input store.CreateProductInput) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.updated = append(f.updated, input)
	if _, ok := f.products[productKey(chain, address)]; !ok {
		return 0, nil
	}
	return 1, nil
}

func (f *fakeStore) CreateHistory(_ context.Context, input store.CreateHistoryInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.historyErr != nil {
		if err := f.historyErr(input); err != nil {
			return err
		}
	}
	f.histories = append(f.histories, input)
	return nil
}

func (f *fakeStore) ListDepositHistories(_ context.Context, _ uint64) ([]*schema.History, error) {
	return f.deposits, nil
}

func (f *fakeStore) CreateWithdrawRequest(_ context.Context, input store.CreateWithdrawRequestInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.withdrawRequests = append(f.withdrawRequests, schema.WithdrawRequest{
		ID:             uint64(len(f.withdrawRequests) + 1),
		Address:        input.Address,
		ProductAddress: input.ProductAddress,
		CurrentTokenID: input.CurrentTokenID,
	})
	return nil
}

func (f *fakeStore) FindWithdrawRequest(_ context.Context, address string, productAddress string) (*schema.WithdrawRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.withdrawRequests {
		request := &f.withdrawRequests[i]
		if request.Address == address && request.ProductAddress == productAddress {
			return request, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) DeleteWithdrawRequest(_ context.Context, request *schema.WithdrawRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleted = append(f.deleted, request)
	return nil
}

func buildCreatedEvent(address string) domain.ProductCreatedEvent {
	return domain.ProductCreatedEvent{
		Address:         address,
		Name:            "ETH Bullish Spread",
		Underlying:      "ETH/USDC",
		MaxCapacity:     "1000000000000",
		Status:          1,
		CurrentCapacity: "250000000",
		IssuanceCycle:   []byte(`{"coupon":10}`),
		TxHash:          "0xcafe",
		BlockNumber:     18500000,
	}
}

func TestSyncProductsUnsupportedChain(t *testing.T) {
	svc := NewService(newFakeStore(), 0)

	err := svc.SyncProducts(context.Background(), domain.ChainID(1337), []domain.ProductCreatedEvent{buildCreatedEvent(testProductAddress)})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedChain)
}

func TestSyncProductsEmptyBatch(t *testing.T) {
	fake := newFakeStore()
	svc := NewService(fake, 0)

	require.NoError(t, svc.SyncProducts(context.Background(), domain.ChainEthereumMainnet, nil))
	assert.Empty(t, fake.created)
}

func TestSyncProductsCreatesAndOverwrites(t *testing.T) {
	fake := newFakeStore()
	svc := NewService(fake, 2)
	ctx := context.Background()

	first := buildCreatedEvent(testProductAddress)
	require.NoError(t, svc.SyncProducts(ctx, domain.ChainEthereumMainnet, []domain.ProductCreatedEvent{first}))
	require.Len(t, fake.created, 1)
	assert.Empty(t, fake.updated)

	// Re-syncing the same product overwrites instead of duplicating
	second := buildCreatedEvent(testProductAddress)
	second.CurrentCapacity = "500000000"
	require.NoError(t, svc.SyncProducts(ctx, domain.ChainEthereumMainnet, []domain.ProductCreatedEvent{second}))
	require.Len(t, fake.created, 1)
	require.Len(t, fake.updated, 1)
	assert.Equal(t, "500000000", fake.updated[0].CurrentCapacity)
}

func TestSyncProductsNormalizesAddresses(t *testing.T) {
	fake := newFakeStore()
	svc := NewService(fake, 0)

	event := buildCreatedEvent("0xab5801a7d398351b8be11c439e05c5b3259aec9b")
	require.NoError(t, svc.SyncProducts(context.Background(), domain.ChainEthereumMainnet, []domain.ProductCreatedEvent{event}))

	require.Len(t, fake.created, 1)
	assert.Equal(t, "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", fake.created[0].Address)
}

func TestSyncProductsBatchSurfacesFirstFailure(t *testing.T) {
	fake := newFakeStore()
	fake.createErr = errors.New("connection reset")
	svc := NewService(fake, 2)

	events := []domain.ProductCreatedEvent{
		buildCreatedEvent(testProductAddress),
		buildCreatedEvent("0x3333333333333333333333333333333333333333"),
	}
	err := svc.SyncProducts(context.Background(), domain.ChainEthereumMainnet, events)
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")
}

func TestSyncHistoriesDepositNormalization(t *testing.T) {
	fake := newFakeStore()
	svc := NewService(fake, 0)

	events := []domain.VaultEvent{{
		UserAddress: testUserAddress,
		Amount:      "2500000000",
		TokenID:     "7",
		Supply:      "3000",
		TxHash:      "0xaaa1",
		BlockNumber: 18500000,
	}}

	require.NoError(t, svc.SyncHistories(context.Background(), domain.ChainEthereumMainnet, 1, domain.HistoryTypeDeposit, events, ""))
	require.Len(t, fake.histories, 1)

	row := fake.histories[0]
	assert.Equal(t, domain.HistoryTypeDeposit, row.Type)
	assert.Equal(t, domain.WithdrawTypeNone, row.WithdrawType)
	assert.Equal(t, "2500000000", row.Amount)
	// Mainnet uses 6 decimals
	assert.Equal(t, "2500", row.AmountInDecimal.String())
	require.NotNil(t, row.TokenID)
	assert.Equal(t, "7", *row.TokenID)
	require.NotNil(t, row.SupplyInDecimal)
	// Supply is stored as a plain decimal, not chain-scaled
	assert.Equal(t, "3000", row.SupplyInDecimal.String())
}

func TestSyncHistoriesWithdrawOmitsTokenFields(t *testing.T) {
	fake := newFakeStore()
	svc := NewService(fake, 0)

	events := []domain.VaultEvent{{
		UserAddress: testUserAddress,
		Amount:      "1000000000000000000",
		TxHash:      "0xbbb1",
	}}

	require.NoError(t, svc.SyncHistories(context.Background(), domain.ChainBSCMainnet, 1, domain.HistoryTypeWithdraw, events, domain.WithdrawTypePrincipal))
	require.Len(t, fake.histories, 1)

	row := fake.histories[0]
	assert.Equal(t, domain.HistoryTypeWithdraw, row.Type)
	assert.Equal(t, domain.WithdrawTypePrincipal, row.WithdrawType)
	// BSC uses 18 decimals
	assert.Equal(t, "1", row.AmountInDecimal.String())
	assert.Nil(t, row.TokenID)
	assert.Nil(t, row.Supply)
	assert.Nil(t, row.SupplyInDecimal)
}

func TestSyncHistoriesSkipsReplayedEvents(t *testing.T) {
	fake := newFakeStore()
	fake.historyErr = func(input store.CreateHistoryInput) error {
		if input.TransactionHash == "0xdup" {
			return fmt.Errorf("%w: tx %s", domain.ErrDuplicateEvent, input.TransactionHash)
		}
		return nil
	}
	svc := NewService(fake, 0)

	events := []domain.VaultEvent{
		{UserAddress: testUserAddress, Amount: "100", TokenID: "1", Supply: "1", TxHash: "0xdup"},
		{UserAddress: testUserAddress, Amount: "200", TokenID: "2", Supply: "2", TxHash: "0xfresh"},
	}

	// The replayed row is skipped, the sibling still lands
	require.NoError(t, svc.SyncHistories(context.Background(), domain.ChainEthereumMainnet, 1, domain.HistoryTypeDeposit, events, ""))
	require.Len(t, fake.histories, 1)
	assert.Equal(t, "0xfresh", fake.histories[0].TransactionHash)
}

func TestSyncHistoriesInvalidAmount(t *testing.T) {
	fake := newFakeStore()
	svc := NewService(fake, 0)

	events := []domain.VaultEvent{{
		UserAddress: testUserAddress,
		Amount:      "not-a-number",
		TxHash:      "0xccc1",
	}}

	err := svc.SyncHistories(context.Background(), domain.ChainEthereumMainnet, 1, domain.HistoryTypeWithdraw, events, domain.WithdrawTypePrincipal)
	require.Error(t, err)
	assert.Empty(t, fake.histories)
}

func TestGetProductDetail(t *testing.T) {
	fake := newFakeStore()
	svc := NewService(fake, 0)
	ctx := context.Background()

	_, err := fake.CreateProduct(ctx, store.CreateProductInput{
		ChainID:         domain.ChainEthereumMainnet,
		Address:         testProductAddress,
		Name:            "ETH Bullish Spread",
		Underlying:      "ETH/USDC",
		MaxCapacity:     "1000000000000",
		Status:          1,
		CurrentCapacity: "250000000",
	})
	require.NoError(t, err)

	fake.deposits = []*schema.History{{
		ID:              1,
		AmountInDecimal: decimal.RequireFromString("2500"),
		TransactionHash: "0xaaa1",
		CreatedAt:       time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}, {
		ID:              2,
		AmountInDecimal: decimal.RequireFromString("750"),
		TransactionHash: "0xaaa2",
		CreatedAt:       time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC),
	}}

	detail, err := svc.GetProduct(ctx, domain.ChainEthereumMainnet, testProductAddress)
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "ETH Bullish Spread", detail.Name)
	require.Len(t, detail.Deposits, 2)

	// Activity lots keep the fractional part
	assert.Equal(t, "2.5", detail.Deposits[0].Lots.String())
	assert.Equal(t, "0.75", detail.Deposits[1].Lots.String())
	assert.Equal(t, "0xaaa1", detail.Deposits[0].TxHash)
}

func TestGetProductDetailAbsent(t *testing.T) {
	svc := NewService(newFakeStore(), 0)

	detail, err := svc.GetProduct(context.Background(), domain.ChainEthereumMainnet, testProductAddress)
	require.NoError(t, err)
	assert.Nil(t, detail)
}

func TestRequestWithdrawNormalizesAddresses(t *testing.T) {
	fake := newFakeStore()
	svc := NewService(fake, 0)

	err := svc.RequestWithdraw(context.Background(), "0xab5801a7d398351b8be11c439e05c5b3259aec9b", testProductAddress, "7")
	require.NoError(t, err)

	require.Len(t, fake.withdrawRequests, 1)
	assert.Equal(t, "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", fake.withdrawRequests[0].Address)
	assert.Equal(t, "7", fake.withdrawRequests[0].CurrentTokenID)
}

func TestCancelWithdraw(t *testing.T) {
	fake := newFakeStore()
	svc := NewService(fake, 0)
	ctx := context.Background()

	t.Run("absence is a no-op", func(t *testing.T) {
		require.NoError(t, svc.CancelWithdraw(ctx, domain.ChainEthereumMainnet, testUserAddress, testProductAddress))
		assert.Empty(t, fake.deleted)
	})

	t.Run("pending request is removed", func(t *testing.T) {
		require.NoError(t, svc.RequestWithdraw(ctx, testUserAddress, testProductAddress, "7"))
		require.NoError(t, svc.CancelWithdraw(ctx, domain.ChainEthereumMainnet, testUserAddress, testProductAddress))

		require.Len(t, fake.deleted, 1)
		assert.Equal(t, "7", fake.deleted[0].CurrentTokenID)
	})
}
