package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ledgerly/einvoice/internal/api/middleware"
	"ledgerly/einvoice/internal/invoicing"
	"ledgerly/einvoice/internal/services"
)

// InvoiceHandler serves the invoice form: totals, validation, submission and PDFs.
type InvoiceHandler struct {
	invoiceService services.IInvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler.
func NewInvoiceHandler(invoiceService services.IInvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService}
}

type totalsRequest struct {
	LineItems []invoicing.LineItem `json:"line_items"`
}

type submitRequest struct {
	invoicing.InvoiceFormValues
	EmailTo string `json:"email_to"`
}

type pdfRequest struct {
	Email string `json:"email"`
}

// ComputeTotals handles POST /v1/invoices/totals
func (h *InvoiceHandler) ComputeTotals(c *gin.Context) {
	var req totalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	items, totals, err := h.invoiceService.ComputeTotals(c.Request.Context(), middleware.BookFromContext(c), req.LineItems)
	if err != nil {
		respondError(c, err, "Failed to compute totals")
		return
	}
	if items == nil {
		items = []invoicing.LineItem{}
	}
	c.JSON(http.StatusOK, gin.H{"line_items": items, "totals": totals})
}

// ValidateInvoice handles POST /v1/invoices/validate
func (h *InvoiceHandler) ValidateInvoice(c *gin.Context) {
	var form invoicing.InvoiceFormValues
	if err := c.ShouldBindJSON(&form); err != nil {
		bindError(c, err)
		return
	}
	if err := h.invoiceService.Validate(c.Request.Context(), middleware.BookFromContext(c), form); err != nil {
		respondError(c, err, "Failed to validate invoice")
		return
	}
	c.Status(http.StatusNoContent)
}

// PreviewInvoice handles POST /v1/invoices/preview. It returns the body that would be sent.
func (h *InvoiceHandler) PreviewInvoice(c *gin.Context) {
	var form invoicing.InvoiceFormValues
	if err := c.ShouldBindJSON(&form); err != nil {
		bindError(c, err)
		return
	}
	req, err := h.invoiceService.Prepare(c.Request.Context(), middleware.BookFromContext(c), form)
	if err != nil {
		respondError(c, err, "Failed to prepare invoice")
		return
	}
	c.JSON(http.StatusOK, req)
}

// CreateInvoice handles POST /v1/invoices
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	h.submit(c, "")
}

// UpdateInvoice handles PUT /v1/invoices/:id
func (h *InvoiceHandler) UpdateInvoice(c *gin.Context) {
	h.submit(c, c.Param("id"))
}

func (h *InvoiceHandler) submit(c *gin.Context, invoiceID string) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	sub, err := h.invoiceService.Submit(
		c.Request.Context(),
		middleware.BookFromContext(c),
		middleware.UserIDFromContext(c),
		invoiceID,
		req.InvoiceFormValues,
		strings.TrimSpace(req.EmailTo),
	)
	if err != nil {
		respondError(c, err, "Failed to submit invoice")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"submission_id": sub.ID,
		"status":        sub.Status,
		"totals":        sub.Totals,
		"request":       sub.Request,
	})
}

// GetInvoiceForm handles GET /v1/invoices/:id/form. It loads a stored invoice for editing.
func (h *InvoiceHandler) GetInvoiceForm(c *gin.Context) {
	form, totals, err := h.invoiceService.LoadForEdit(c.Request.Context(), middleware.BookFromContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to load invoice")
		return
	}
	c.JSON(http.StatusOK, gin.H{"form": form, "totals": totals})
}

// RequestPDF handles POST /v1/invoices/:id/pdf
func (h *InvoiceHandler) RequestPDF(c *gin.Context) {
	// The body is optional; without an e-mail the PDF is only rendered and stored.
	var req pdfRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		bindError(c, err)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email != "" && !strings.Contains(email, "@") {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "Validation failed",
			"fields": []invoicing.FieldError{{Field: "email", Message: "a valid e-mail address is required"}},
		})
		return
	}
	if err := h.invoiceService.RequestPDF(c.Request.Context(), middleware.BookFromContext(c), c.Param("id"), email); err != nil {
		respondError(c, err, "Failed to queue PDF")
		return
	}
	if email == "" {
		c.JSON(http.StatusAccepted, gin.H{"message": "PDF will be rendered"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "PDF will be e-mailed to " + email})
}

// GetSubmission handles GET /v1/submissions/:id
func (h *InvoiceHandler) GetSubmission(c *gin.Context) {
	sub, err := h.invoiceService.GetSubmission(c.Request.Context(), middleware.BookFromContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to get submission")
		return
	}
	c.JSON(http.StatusOK, sub)
}

// FormatPrice handles POST /v1/format-price
func FormatPrice(c *gin.Context) {
	var req struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": invoicing.FormatPrice(req.Value)})
}
