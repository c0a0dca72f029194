package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/retailpos/backend/internal/application/checkout"
	"github.com/retailpos/backend/internal/interfaces/http/dto"
)

// CheckoutHandler handles checkout HTTP requests
type CheckoutHandler struct {
	BaseHandler
	checkoutService *checkout.CheckoutService
	lotOptions      *checkout.LotOptionsService
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(checkoutService *checkout.CheckoutService, lotOptions *checkout.LotOptionsService) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
		lotOptions:      lotOptions,
	}
}

// RegisterRoutes registers checkout routes
func (h *CheckoutHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/checkout", h.Checkout)
	rg.GET("/products/:id/lot-options", h.LotOptions)
}

// Checkout runs a sale to a terminal state. The response always carries
// the three-outcome contract in the body; the HTTP status mirrors it:
// 200 committed, 409 out_of_stock, 422 authorization_error.
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	var req checkout.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid checkout request: "+err.Error())
		return
	}
	if req.OperatorID == uuid.Nil {
		operatorID, err := getOperatorID(c)
		if err != nil {
			h.BadRequest(c, "Operator ID required in body or X-Operator-ID header")
			return
		}
		req.OperatorID = operatorID
	}

	result, err := h.checkoutService.Checkout(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(checkoutStatusCode(result.Status), dto.NewSuccessResponse(result))
}

func checkoutStatusCode(status string) int {
	switch status {
	case checkout.StatusCommitted:
		return http.StatusOK
	case checkout.StatusOutOfStock:
		return http.StatusConflict
	case checkout.StatusAuthorizationError:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// LotOptions lists the eligible lots of a product in FEFO order
func (h *CheckoutHandler) LotOptions(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid product ID")
		return
	}

	qty := decimal.Zero
	if qtyStr := c.Query("qty"); qtyStr != "" {
		qty, err = decimal.NewFromString(qtyStr)
		if err != nil || qty.IsNegative() {
			h.BadRequest(c, "Invalid qty parameter")
			return
		}
	}

	result, err := h.lotOptions.ListOptions(c.Request.Context(), productID, qty)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}
