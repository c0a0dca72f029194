package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appstock "github.com/retailpos/backend/internal/application/stock"
)

// StockHandler handles stock ledger HTTP requests
type StockHandler struct {
	BaseHandler
	entryService *appstock.StockEntryService
}

// NewStockHandler creates a new stock handler
func NewStockHandler(entryService *appstock.StockEntryService) *StockHandler {
	return &StockHandler{entryService: entryService}
}

// RegisterRoutes registers stock ledger routes
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	stock := rg.Group("/stock")
	{
		stock.POST("/entries", h.CreateEntry)
		stock.GET("/lots", h.ListLots)
		stock.POST("/validate", h.ValidateStock)
	}
}

// CreateEntry accepts an inbound stock entry. The entry is applied
// asynchronously through the event bus, so the handler answers 202.
func (h *StockHandler) CreateEntry(c *gin.Context) {
	var req appstock.StockEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid stock entry: "+err.Error())
		return
	}

	result, err := h.entryService.RequestEntry(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, result)
}

// ListLots lists every lot of a product, including empty and expired ones
func (h *StockHandler) ListLots(c *gin.Context) {
	productID, err := uuid.Parse(c.Query("product_id"))
	if err != nil {
		h.BadRequest(c, "Invalid or missing product_id parameter")
		return
	}

	lots, err := h.entryService.ListLots(c.Request.Context(), productID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, lots)
}

// ValidateStock publishes a stock validation request; the answer arrives
// on the event bus as a ProductValidated event
func (h *StockHandler) ValidateStock(c *gin.Context) {
	var req appstock.ValidateStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid validation request: "+err.Error())
		return
	}

	result, err := h.entryService.RequestValidation(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, result)
}
