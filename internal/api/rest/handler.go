package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/plexlabs/vault-indexer/internal/api/rest/dto"
	"github.com/plexlabs/vault-indexer/internal/domain"
	"github.com/plexlabs/vault-indexer/internal/marketplace"
	"github.com/plexlabs/vault-indexer/internal/product"
)

// Handler defines the interface for REST API handlers
type Handler interface {
	// ListProducts retrieves active products for a chain
	// GET /api/v1/products?chainId=<id>
	ListProducts(c *gin.Context)

	// ListAllProducts retrieves all non-paused products regardless of status
	// GET /api/v1/products/all?chainId=<id>
	ListAllProducts(c *gin.Context)

	// GetProduct retrieves a single product with its deposit activity
	// GET /api/v1/products/:address?chainId=<id>
	GetProduct(c *gin.Context)

	// UpdateProductName renames a product (requires authentication)
	// PUT /api/v1/products/:address/name
	UpdateProductName(c *gin.Context)

	// UpdateProductStats overwrites status, capacity, and cycle (requires authentication)
	// PUT /api/v1/products/:address/stats
	UpdateProductStats(c *gin.Context)

	// UpdateProductPause pauses or resumes a product (requires authentication)
	// PUT /api/v1/products/:address/pause
	UpdateProductPause(c *gin.Context)

	// RequestWithdraw records a withdrawal intent
	// POST /api/v1/withdrawals
	RequestWithdraw(c *gin.Context)

	// CancelWithdraw removes a pending withdrawal intent
	// DELETE /api/v1/withdrawals
	CancelWithdraw(c *gin.Context)

	// ListMarketplace retrieves every live listing
	// GET /api/v1/marketplace
	ListMarketplace(c *gin.Context)

	// ListUserMarketplace retrieves a seller's live listings
	// GET /api/v1/marketplace/user/:address
	ListUserMarketplace(c *gin.Context)

	// GetMarketplaceItem retrieves one listing by id
	// GET /api/v1/marketplace/item/:id
	GetMarketplaceItem(c *gin.Context)

	// GetMarketplaceToken retrieves the listing and offer book for a token
	// GET /api/v1/marketplace/token/:tokenId
	GetMarketplaceToken(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	products    product.Service
	marketplace marketplace.Aggregator
}

// NewHandler creates a new REST API handler
func NewHandler(products product.Service, mk marketplace.Aggregator) Handler {
	return &handler{
		products:    products,
		marketplace: mk,
	}
}

// parseChainID reads and validates the chainId query parameter
func parseChainID(c *gin.Context) (domain.ChainID, bool) {
	raw := c.Query("chainId")
	if raw == "" {
		respondBadRequest(c, "chainId query parameter is required")
		return 0, false
	}

	id, err := strconv.Atoi(raw)
	if err != nil {
		respondValidationError(c, "chainId must be an integer")
		return 0, false
	}

	chain := domain.ChainID(id)
	if !domain.IsSupportedChain(chain) {
		respondValidationError(c, "unsupported chain id")
		return 0, false
	}

	return chain, true
}

// parseProductAddress reads and validates the :address path parameter
func parseProductAddress(c *gin.Context) (string, bool) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		respondBadRequest(c, "Invalid product address")
		return "", false
	}
	return address, true
}

// ListProducts retrieves active products for a chain
func (h *handler) ListProducts(c *gin.Context) {
	chain, ok := parseChainID(c)
	if !ok {
		return
	}

	products, err := h.products.GetProducts(c.Request.Context(), chain)
	if err != nil {
		respondInternalError(c, err, "Failed to list products")
		return
	}

	c.JSON(http.StatusOK, dto.FromProducts(products))
}

// ListAllProducts retrieves all non-paused products regardless of status
func (h *handler) ListAllProducts(c *gin.Context) {
	chain, ok := parseChainID(c)
	if !ok {
		return
	}

	products, err := h.products.GetProductsWithoutStatus(c.Request.Context(), chain)
	if err != nil {
		respondInternalError(c, err, "Failed to list products")
		return
	}

	c.JSON(http.StatusOK, dto.FromProducts(products))
}

// GetProduct retrieves a single product with its deposit activity
func (h *handler) GetProduct(c *gin.Context) {
	chain, ok := parseChainID(c)
	if !ok {
		return
	}

	address, ok := parseProductAddress(c)
	if !ok {
		return
	}

	detail, err := h.products.GetProduct(c.Request.Context(), chain, domain.NormalizeAddress(address))
	if err != nil {
		respondInternalError(c, err, "Failed to get product", zap.String("address", address))
		return
	}
	if detail == nil {
		respondNotFound(c, "Product not found")
		return
	}

	c.JSON(http.StatusOK, detail)
}

type updateNameRequest struct {
	Name string `json:"name" binding:"required"`
}

// UpdateProductName renames a product
func (h *handler) UpdateProductName(c *gin.Context) {
	chain, ok := parseChainID(c)
	if !ok {
		return
	}

	address, ok := parseProductAddress(c)
	if !ok {
		return
	}

	var req updateNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	rows, err := h.products.UpdateProductName(c.Request.Context(), chain, address, req.Name)
	if err != nil {
		respondInternalError(c, err, "Failed to update product name")
		return
	}
	if rows == 0 {
		respondNotFound(c, "Product not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": rows})
}

type updateStatsRequest struct {
	Status          int             `json:"status"`
	CurrentCapacity string          `json:"currentCapacity" binding:"required"`
	IssuanceCycle   json.RawMessage `json:"issuanceCycle" binding:"required"`
}

// UpdateProductStats overwrites status, capacity, and cycle
func (h *handler) UpdateProductStats(c *gin.Context) {
	chain, ok := parseChainID(c)
	if !ok {
		return
	}

	address, ok := parseProductAddress(c)
	if !ok {
		return
	}

	var req updateStatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	rows, err := h.products.UpdateProduct(c.Request.Context(), chain, address, domain.ProductStatsEvent{
		Address:         address,
		Status:          req.Status,
		CurrentCapacity: req.CurrentCapacity,
		IssuanceCycle:   req.IssuanceCycle,
	})
	if err != nil {
		respondInternalError(c, err, "Failed to update product stats")
		return
	}
	if rows == 0 {
		respondNotFound(c, "Product not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": rows})
}

type updatePauseRequest struct {
	IsPaused *bool `json:"isPaused" binding:"required"`
}

// UpdateProductPause pauses or resumes a product
func (h *handler) UpdateProductPause(c *gin.Context) {
	chain, ok := parseChainID(c)
	if !ok {
		return
	}

	address, ok := parseProductAddress(c)
	if !ok {
		return
	}

	var req updatePauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	rows, err := h.products.UpdateProductPauseStatus(c.Request.Context(), chain, address, *req.IsPaused)
	if err != nil {
		respondInternalError(c, err, "Failed to update product pause status")
		return
	}
	if rows == 0 {
		respondNotFound(c, "Product not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": rows})
}

type withdrawRequest struct {
	Address        string `json:"address" binding:"required"`
	ProductAddress string `json:"productAddress" binding:"required"`
	CurrentTokenID string `json:"currentTokenId"`
}

// RequestWithdraw records a withdrawal intent
func (h *handler) RequestWithdraw(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	if !common.IsHexAddress(req.Address) || !common.IsHexAddress(req.ProductAddress) {
		respondBadRequest(c, "Invalid address")
		return
	}

	if err := h.products.RequestWithdraw(c.Request.Context(), req.Address, req.ProductAddress, req.CurrentTokenID); err != nil {
		respondInternalError(c, err, "Failed to record withdraw request")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "accepted"})
}

type cancelWithdrawRequest struct {
	ChainID        int    `json:"chainId"`
	Address        string `json:"address" binding:"required"`
	ProductAddress string `json:"productAddress" binding:"required"`
}

// CancelWithdraw removes a pending withdrawal intent
func (h *handler) CancelWithdraw(c *gin.Context) {
	var req cancelWithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	if !common.IsHexAddress(req.Address) || !common.IsHexAddress(req.ProductAddress) {
		respondBadRequest(c, "Invalid address")
		return
	}

	if err := h.products.CancelWithdraw(c.Request.Context(), domain.ChainID(req.ChainID), req.Address, req.ProductAddress); err != nil {
		respondInternalError(c, err, "Failed to cancel withdraw request")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// ListMarketplace retrieves every live listing
func (h *handler) ListMarketplace(c *gin.Context) {
	items, err := h.marketplace.GetListedItems(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to list marketplace items")
		return
	}

	c.JSON(http.StatusOK, items)
}

// ListUserMarketplace retrieves a seller's live listings
func (h *handler) ListUserMarketplace(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		respondBadRequest(c, "Invalid seller address")
		return
	}

	items, err := h.marketplace.GetUserListedItems(c.Request.Context(), address)
	if err != nil {
		respondInternalError(c, err, "Failed to list user marketplace items")
		return
	}

	c.JSON(http.StatusOK, items)
}

// GetMarketplaceItem retrieves one listing by id
func (h *handler) GetMarketplaceItem(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondBadRequest(c, "Invalid listing id")
		return
	}

	item, err := h.marketplace.GetItem(c.Request.Context(), id)
	if err != nil {
		respondInternalError(c, err, "Failed to get marketplace item")
		return
	}
	if item == nil {
		respondNotFound(c, "Listing not found")
		return
	}

	c.JSON(http.StatusOK, item)
}

// GetMarketplaceToken retrieves the listing and offer book for a token
func (h *handler) GetMarketplaceToken(c *gin.Context) {
	tokenID := c.Param("tokenId")
	if tokenID == "" {
		respondBadRequest(c, "Token id is required")
		return
	}

	item, err := h.marketplace.GetTokenItem(c.Request.Context(), tokenID)
	if err != nil {
		respondInternalError(c, err, "Failed to get marketplace token")
		return
	}
	if item == nil {
		respondNotFound(c, "Listing not found")
		return
	}

	c.JSON(http.StatusOK, item)
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
