package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ledgerly/einvoice/internal/api/middleware"
	"ledgerly/einvoice/internal/invoicing"
	"ledgerly/einvoice/internal/services"
)

// TaxRateHandler exposes the book's tax rate table and admin overrides.
type TaxRateHandler struct {
	taxRateService services.ITaxRateService
}

// NewTaxRateHandler creates a new TaxRateHandler.
func NewTaxRateHandler(taxRateService services.ITaxRateService) *TaxRateHandler {
	return &TaxRateHandler{taxRateService: taxRateService}
}

type setTaxRateRequest struct {
	Name    string          `json:"name"`
	Percent decimal.Decimal `json:"percent"`
	RateID  string          `json:"rate_id"`
	// AllBooks applies the override to every book instead of the caller's.
	AllBooks bool `json:"all_books"`
}

// ListTaxRates handles GET /v1/tax-rates
func (h *TaxRateHandler) ListTaxRates(c *gin.Context) {
	table, err := h.taxRateService.Table(c.Request.Context(), middleware.BookFromContext(c))
	if err != nil {
		respondError(c, err, "Failed to load tax rates")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tax_rates": table.Rates()})
}

// SetTaxRate handles PUT /v1/admin/tax-rates/:code
func (h *TaxRateHandler) SetTaxRate(c *gin.Context) {
	var req setTaxRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	book := middleware.BookFromContext(c)
	if req.AllBooks {
		book = invoicing.BookContext{BookID: services.AllBooks}
	}
	rate := invoicing.TaxRate{
		ID:      strings.TrimSpace(req.RateID),
		Code:    c.Param("code"),
		Name:    req.Name,
		Percent: req.Percent,
	}
	if err := h.taxRateService.SetOverride(c.Request.Context(), book, rate); err != nil {
		respondError(c, err, "Failed to update tax rate")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Tax rate updated", "book_id": book.BookID, "code": strings.ToUpper(rate.Code)})
}
