package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexlabs/vault-indexer/internal/api/middleware"
	"github.com/plexlabs/vault-indexer/internal/domain"
	"github.com/plexlabs/vault-indexer/internal/marketplace"
	"github.com/plexlabs/vault-indexer/internal/product"
	"github.com/plexlabs/vault-indexer/internal/store/schema"
)

const (
	testProductAddress = "0x1111111111111111111111111111111111111111"
	testUserAddress    = "0x2222222222222222222222222222222222222222"
	testAPIKey         = "test-api-key"
)

// fakeProductService records read and write calls from the handler
type fakeProductService struct {
	product.Service

	products []*schema.Product
	detail   *product.Detail
	listErr  error

	detailChain   domain.ChainID
	detailAddress string

	updateRows int64
	updateErr  error

	updatedName  string
	updatedStats *domain.ProductStatsEvent
	updatedPause *bool

	withdrawAddress string
	withdrawProduct string
	withdrawToken   string
	withdrawErr     error

	cancelChain   domain.ChainID
	cancelAddress string
	cancelProduct string
}

func (f *fakeProductService) GetProducts(_ context.Context, _ domain.ChainID) ([]*schema.Product, error) {
	return f.products, f.listErr
}

func (f *fakeProductService) GetProductsWithoutStatus(_ context.Context, _ domain.ChainID) ([]*schema.Product, error) {
	return f.products, f.listErr
}

func (f *fakeProductService) GetProduct(_ context.Context, chain domain.ChainID, address string) (*product.Detail, error) {
	f.detailChain = chain
	f.detailAddress = address
	return f.detail, f.listErr
}

func (f *fakeProductService) UpdateProduct(_ context.Context, _ domain.ChainID, _ string, stats domain.ProductStatsEvent) (int64, error) {
	if f.updateErr != nil {
		return 0, f.updateErr
	}
	f.updatedStats = &stats
	return f.updateRows, nil
}

func (f *fakeProductService) UpdateProductName(_ context.Context, _ domain.ChainID, _ string, name string) (int64, error) {
	if f.updateErr != nil {
		return 0, f.updateErr
	}
	f.updatedName = name
	return f.updateRows, nil
}

func (f *fakeProductService) UpdateProductPauseStatus(_ context.Context, _ domain.ChainID, _ string, isPaused bool) (int64, error) {
	f.updatedPause = &isPaused
	return f.updateRows, nil
}

func (f *fakeProductService) RequestWithdraw(_ context.Context, address string, productAddress string, tokenID string) error {
	if f.withdrawErr != nil {
		return f.withdrawErr
	}
	f.withdrawAddress = address
	f.withdrawProduct = productAddress
	f.withdrawToken = tokenID
	return nil
}

func (f *fakeProductService) CancelWithdraw(_ context.Context, chain domain.ChainID, address string, productAddress string) error {
	f.cancelChain = chain
	f.cancelAddress = address
	f.cancelProduct = productAddress
	return nil
}

// fakeAggregator serves canned marketplace projections
type fakeAggregator struct {
	marketplace.Aggregator

	items     []marketplace.Item
	item      *marketplace.ItemDetail
	tokenItem *marketplace.TokenItem
	err       error

	sellerQuery string
	itemQuery   uint64
	tokenQuery  string
}

func (f *fakeAggregator) GetListedItems(_ context.Context) ([]marketplace.Item, error) {
	return f.items, f.err
}

func (f *fakeAggregator) GetUserListedItems(_ context.Context, address string) ([]marketplace.Item, error) {
	f.sellerQuery = address
	return f.items, f.err
}

func (f *fakeAggregator) GetItem(_ context.Context, id uint64) (*marketplace.ItemDetail, error) {
	f.itemQuery = id
	return f.item, f.err
}

func (f *fakeAggregator) GetTokenItem(_ context.Context, tokenID string) (*marketplace.TokenItem, error) {
	f.tokenQuery = tokenID
	return f.tokenItem, f.err
}

func newTestRouter(products product.Service, mk marketplace.Aggregator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupRoutes(router, NewHandler(products, mk), middleware.AuthConfig{APIKeys: []string{testAPIKey}})
	return router
}

func doRequest(router *gin.Engine, method, path string, body any, authenticated bool) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authenticated {
		req.Header.Set("Authorization", "ApiKey "+testAPIKey)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListProducts(t *testing.T) {
	products := &fakeProductService{products: []*schema.Product{
		{
			ID:              1,
			ChainID:         domain.ChainEthereumMainnet,
			Address:         testProductAddress,
			Name:            "ETH Bullish Spread",
			Underlying:      "ETH/USDC",
			MaxCapacity:     "1000000000000",
			CurrentCapacity: "250000000",
			Status:          1,
			IssuanceCycle:   []byte(`{"coupon":10}`),
		},
	}}
	router := newTestRouter(products, &fakeAggregator{})

	t.Run("returns products for the chain", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/products?chainId=1", nil, false)

		require.Equal(t, http.StatusOK, w.Code)

		var body []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body, 1)
		assert.Equal(t, "ETH Bullish Spread", body[0]["name"])
		assert.Equal(t, testProductAddress, body[0]["address"])
	})

	t.Run("missing chainId", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/products", nil, false)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "bad_request")
	})

	t.Run("non-numeric chainId", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/products?chainId=mainnet", nil, false)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "validation_failed")
	})

	t.Run("unsupported chainId", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/products?chainId=1337", nil, false)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "unsupported chain id")
	})

	t.Run("store failure", func(t *testing.T) {
		failing := newTestRouter(&fakeProductService{listErr: errors.New("connection reset")}, &fakeAggregator{})
		w := doRequest(failing, http.MethodGet, "/api/v1/products?chainId=1", nil, false)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "internal_error")
	})
}

func TestListAllProducts(t *testing.T) {
	// Status-zero products are visible on the unfiltered listing
	products := &fakeProductService{products: []*schema.Product{
		{ID: 1, Address: testProductAddress, Status: 0},
	}}
	router := newTestRouter(products, &fakeAggregator{})

	w := doRequest(router, http.MethodGet, "/api/v1/products/all?chainId=1", nil, false)

	require.Equal(t, http.StatusOK, w.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body, 1)
}

func TestGetProduct(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		products := &fakeProductService{detail: &product.Detail{
			ID:      42,
			Address: testProductAddress,
			Name:    "ETH Bullish Spread",
		}}
		router := newTestRouter(products, &fakeAggregator{})

		// Lowercased address must still resolve through normalization
		w := doRequest(router, http.MethodGet, "/api/v1/products/"+testProductAddress+"?chainId=1", nil, false)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "ETH Bullish Spread")
		assert.Equal(t, domain.ChainEthereumMainnet, products.detailChain)
		assert.Equal(t, domain.NormalizeAddress(testProductAddress), products.detailAddress)
	})

	t.Run("not found", func(t *testing.T) {
		router := newTestRouter(&fakeProductService{}, &fakeAggregator{})

		w := doRequest(router, http.MethodGet, "/api/v1/products/"+testProductAddress+"?chainId=1", nil, false)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "not_found")
	})

	t.Run("malformed address", func(t *testing.T) {
		router := newTestRouter(&fakeProductService{}, &fakeAggregator{})

		w := doRequest(router, http.MethodGet, "/api/v1/products/not-an-address?chainId=1", nil, false)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid product address")
	})
}

func TestUpdateProductName(t *testing.T) {
	path := "/api/v1/products/" + testProductAddress + "/name?chainId=1"

	t.Run("requires authentication", func(t *testing.T) {
		router := newTestRouter(&fakeProductService{updateRows: 1}, &fakeAggregator{})

		w := doRequest(router, http.MethodPut, path, gin.H{"name": "Renamed"}, false)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("renames the product", func(t *testing.T) {
		products := &fakeProductService{updateRows: 1}
		router := newTestRouter(products, &fakeAggregator{})

		w := doRequest(router, http.MethodPut, path, gin.H{"name": "Renamed"}, true)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"updated": 1}`, w.Body.String())
		assert.Equal(t, "Renamed", products.updatedName)
	})

	t.Run("missing name", func(t *testing.T) {
		router := newTestRouter(&fakeProductService{updateRows: 1}, &fakeAggregator{})

		w := doRequest(router, http.MethodPut, path, gin.H{}, true)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "validation_failed")
	})

	t.Run("unknown product", func(t *testing.T) {
		router := newTestRouter(&fakeProductService{updateRows: 0}, &fakeAggregator{})

		w := doRequest(router, http.MethodPut, path, gin.H{"name": "Renamed"}, true)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestUpdateProductStats(t *testing.T) {
	path := "/api/v1/products/" + testProductAddress + "/stats?chainId=1"

	t.Run("overwrites stats", func(t *testing.T) {
		products := &fakeProductService{updateRows: 1}
		router := newTestRouter(products, &fakeAggregator{})

		w := doRequest(router, http.MethodPut, path, gin.H{
			"status":          2,
			"currentCapacity": "500000000",
			"issuanceCycle":   gin.H{"coupon": 12},
		}, true)

		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, products.updatedStats)
		assert.Equal(t, 2, products.updatedStats.Status)
		assert.Equal(t, "500000000", products.updatedStats.CurrentCapacity)
		assert.JSONEq(t, `{"coupon":12}`, string(products.updatedStats.IssuanceCycle))
		assert.Equal(t, testProductAddress, products.updatedStats.Address)
	})

	t.Run("missing capacity", func(t *testing.T) {
		router := newTestRouter(&fakeProductService{updateRows: 1}, &fakeAggregator{})

		w := doRequest(router, http.MethodPut, path, gin.H{
			"status":        2,
			"issuanceCycle": gin.H{"coupon": 12},
		}, true)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown product", func(t *testing.T) {
		router := newTestRouter(&fakeProductService{updateRows: 0}, &fakeAggregator{})

		w := doRequest(router, http.MethodPut, path, gin.H{
			"status":          2,
			"currentCapacity": "500000000",
			"issuanceCycle":   gin.H{"coupon": 12},
		}, true)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestUpdateProductPause(t *testing.T) {
	path := "/api/v1/products/" + testProductAddress + "/pause?chainId=1"

	t.Run("pauses the product", func(t *testing.T) {
		products := &fakeProductService{updateRows: 1}
		router := newTestRouter(products, &fakeAggregator{})

		w := doRequest(router, http.MethodPut, path, gin.H{"isPaused": true}, true)

		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, products.updatedPause)
		assert.True(t, *products.updatedPause)
	})

	t.Run("explicit false passes binding", func(t *testing.T) {
		products := &fakeProductService{updateRows: 1}
		router := newTestRouter(products, &fakeAggregator{})

		w := doRequest(router, http.MethodPut, path, gin.H{"isPaused": false}, true)

		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, products.updatedPause)
		assert.False(t, *products.updatedPause)
	})

	t.Run("missing flag", func(t *testing.T) {
		router := newTestRouter(&fakeProductService{updateRows: 1}, &fakeAggregator{})

		w := doRequest(router, http.MethodPut, path, gin.H{}, true)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRequestWithdraw(t *testing.T) {
	t.Run("accepts the intent", func(t *testing.T) {
		products := &fakeProductService{}
		router := newTestRouter(products, &fakeAggregator{})

		w := doRequest(router, http.MethodPost, "/api/v1/withdrawals", gin.H{
			"address":        testUserAddress,
			"productAddress": testProductAddress,
			"currentTokenId": "7",
		}, false)

		require.Equal(t, http.StatusCreated, w.Code)
		assert.JSONEq(t, `{"status": "accepted"}`, w.Body.String())
		assert.Equal(t, testUserAddress, products.withdrawAddress)
		assert.Equal(t, testProductAddress, products.withdrawProduct)
		assert.Equal(t, "7", products.withdrawToken)
	})

	t.Run("missing product address", func(t *testing.T) {
		router := newTestRouter(&fakeProductService{}, &fakeAggregator{})

		w := doRequest(router, http.MethodPost, "/api/v1/withdrawals", gin.H{
			"address": testUserAddress,
		}, false)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "validation_failed")
	})

	t.Run("malformed address", func(t *testing.T) {
		router := newTestRouter(&fakeProductService{}, &fakeAggregator{})

		w := doRequest(router, http.MethodPost, "/api/v1/withdrawals", gin.H{
			"address":        "not-an-address",
			"productAddress": testProductAddress,
		}, false)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid address")
	})

	t.Run("store failure", func(t *testing.T) {
		router := newTestRouter(&fakeProductService{withdrawErr: errors.New("connection reset")}, &fakeAggregator{})

		w := doRequest(router, http.MethodPost, "/api/v1/withdrawals", gin.H{
			"address":        testUserAddress,
			"productAddress": testProductAddress,
		}, false)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestCancelWithdraw(t *testing.T) {
	t.Run("cancels the intent", func(t *testing.T) {
		products := &fakeProductService{}
		router := newTestRouter(products, &fakeAggregator{})

		w := doRequest(router, http.MethodDelete, "/api/v1/withdrawals", gin.H{
			"chainId":        1,
			"address":        testUserAddress,
			"productAddress": testProductAddress,
		}, false)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status": "cancelled"}`, w.Body.String())
		assert.Equal(t, domain.ChainEthereumMainnet, products.cancelChain)
		assert.Equal(t, testUserAddress, products.cancelAddress)
		assert.Equal(t, testProductAddress, products.cancelProduct)
	})

	t.Run("missing address", func(t *testing.T) {
		router := newTestRouter(&fakeProductService{}, &fakeAggregator{})

		w := doRequest(router, http.MethodDelete, "/api/v1/withdrawals", gin.H{
			"productAddress": testProductAddress,
		}, false)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListMarketplace(t *testing.T) {
	mk := &fakeAggregator{items: []marketplace.Item{
		{ID: 1, TokenID: "7", ProductAddress: testProductAddress, Name: "ETH Bullish Spread", TotalLots: 2},
	}}
	router := newTestRouter(&fakeProductService{}, mk)

	w := doRequest(router, http.MethodGet, "/api/v1/marketplace", nil, false)

	require.Equal(t, http.StatusOK, w.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "ETH Bullish Spread", body[0]["name"])
	assert.EqualValues(t, 2, body[0]["totalLots"])
}

func TestListUserMarketplace(t *testing.T) {
	t.Run("scopes to the seller", func(t *testing.T) {
		mk := &fakeAggregator{items: []marketplace.Item{{ID: 1}}}
		router := newTestRouter(&fakeProductService{}, mk)

		w := doRequest(router, http.MethodGet, "/api/v1/marketplace/user/"+testUserAddress, nil, false)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, testUserAddress, mk.sellerQuery)
	})

	t.Run("malformed seller address", func(t *testing.T) {
		router := newTestRouter(&fakeProductService{}, &fakeAggregator{})

		w := doRequest(router, http.MethodGet, "/api/v1/marketplace/user/not-an-address", nil, false)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid seller address")
	})
}

func TestGetMarketplaceItem(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		mk := &fakeAggregator{item: &marketplace.ItemDetail{
			Item:   marketplace.Item{ID: 9, TokenID: "7"},
			Seller: testUserAddress,
		}}
		router := newTestRouter(&fakeProductService{}, mk)

		w := doRequest(router, http.MethodGet, "/api/v1/marketplace/item/9", nil, false)

		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 9, mk.itemQuery)
		assert.Contains(t, w.Body.String(), testUserAddress)
	})

	t.Run("not found", func(t *testing.T) {
		router := newTestRouter(&fakeProductService{}, &fakeAggregator{})

		w := doRequest(router, http.MethodGet, "/api/v1/marketplace/item/9", nil, false)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("non-numeric id", func(t *testing.T) {
		router := newTestRouter(&fakeProductService{}, &fakeAggregator{})

		w := doRequest(router, http.MethodGet, "/api/v1/marketplace/item/latest", nil, false)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid listing id")
	})
}

func TestGetMarketplaceToken(t *testing.T) {
	t.Run("found with offer book", func(t *testing.T) {
		mk := &fakeAggregator{tokenItem: &marketplace.TokenItem{
			Item: marketplace.Item{ID: 9, TokenID: "7"},
			Offers: []marketplace.Offer{
				{ID: 9, Seller: testUserAddress},
				{ID: 10, Seller: testProductAddress},
			},
		}}
		router := newTestRouter(&fakeProductService{}, mk)

		w := doRequest(router, http.MethodGet, "/api/v1/marketplace/token/7", nil, false)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "7", mk.tokenQuery)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		offers, ok := body["offers"].([]any)
		require.True(t, ok)
		assert.Len(t, offers, 2)
	})

	t.Run("not found", func(t *testing.T) {
		router := newTestRouter(&fakeProductService{}, &fakeAggregator{})

		w := doRequest(router, http.MethodGet, "/api/v1/marketplace/token/7", nil, false)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(&fakeProductService{}, &fakeAggregator{})

	w := doRequest(router, http.MethodGet, "/health", nil, false)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
}
