package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailpos/backend/internal/interfaces/http/dto"
)

func TestSetupValidator(t *testing.T) {
	SetupValidator()

	v, ok := binding.Validator.Engine().(*validator.Validate)
	assert.True(t, ok)
	assert.NotNil(t, v)
}

func TestHandleValidationError_FieldDetails(t *testing.T) {
	type entryRequest struct {
		ProductID string `json:"product_id" binding:"required,uuid"`
		LotCode   string `json:"lot_code" binding:"required,max=64"`
		Quantity  int    `json:"quantity" binding:"required,gt=0"`
	}

	SetupValidator()

	router := gin.New()
	router.POST("/entries", func(c *gin.Context) {
		var req entryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(nil))
	})

	body := strings.NewReader(`{"product_id": "not-a-uuid", "quantity": -2}`)
	req := httptest.NewRequest(http.MethodPost, "/entries", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)

	fields := make(map[string]string, len(resp.Error.Details))
	for _, d := range resp.Error.Details {
		fields[d.Field] = d.Message
	}
	assert.Contains(t, fields, "product_id")
	assert.Contains(t, fields, "lot_code")
	assert.Contains(t, fields, "quantity")
	assert.Equal(t, "Invalid UUID format", fields["product_id"])
	assert.Equal(t, "This field is required", fields["lot_code"])
	assert.Equal(t, "Must be greater than 0", fields["quantity"])
}

func TestFormatValidationErrors_NonValidatorError(t *testing.T) {
	resp := FormatValidationErrors(errors.New("unexpected EOF"), "req-1")

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-1", resp.Error.RequestID)
	assert.Empty(t, resp.Error.Details)
}

func TestHandleValidationError_CarriesRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.POST("/entries", func(c *gin.Context) {
		HandleValidationError(c, errors.New("bad input"))
	})

	req := httptest.NewRequest(http.MethodPost, "/entries", strings.NewReader("{}"))
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "req-42", resp.Error.RequestID)
}
