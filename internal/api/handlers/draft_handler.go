package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ledgerly/einvoice/internal/api/middleware"
	"ledgerly/einvoice/internal/invoicing"
	"ledgerly/einvoice/internal/models"
	"ledgerly/einvoice/internal/services"
)

// DraftHandler handles REST requests for saved invoice drafts.
type DraftHandler struct {
	draftService services.IDraftService
}

// NewDraftHandler creates a new DraftHandler.
func NewDraftHandler(draftService services.IDraftService) *DraftHandler {
	return &DraftHandler{draftService: draftService}
}

type draftRequest struct {
	InvoiceID string                      `json:"invoice_id"`
	Form      invoicing.InvoiceFormValues `json:"form"`
}

// ListDrafts handles GET /v1/drafts
func (h *DraftHandler) ListDrafts(c *gin.Context) {
	drafts, err := h.draftService.ListDrafts(c.Request.Context(), middleware.BookFromContext(c), middleware.UserIDFromContext(c))
	if err != nil {
		respondError(c, err, "Failed to list drafts")
		return
	}
	c.JSON(http.StatusOK, gin.H{"drafts": drafts})
}

// CreateDraft handles POST /v1/drafts
func (h *DraftHandler) CreateDraft(c *gin.Context) {
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	draft := &models.InvoiceDraft{InvoiceID: req.InvoiceID, Form: req.Form}
	saved, err := h.draftService.SaveDraft(c.Request.Context(), middleware.BookFromContext(c), middleware.UserIDFromContext(c), draft)
	if err != nil {
		respondError(c, err, "Failed to save draft")
		return
	}
	c.JSON(http.StatusCreated, saved)
}

// GetDraft handles GET /v1/drafts/:id. The id may also be a draft reference code.
func (h *DraftHandler) GetDraft(c *gin.Context) {
	draft, err := h.draftService.GetDraft(c.Request.Context(), middleware.BookFromContext(c), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to get draft")
		return
	}
	c.JSON(http.StatusOK, draft)
}

// UpdateDraft handles PUT /v1/drafts/:id
func (h *DraftHandler) UpdateDraft(c *gin.Context) {
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	ctx := c.Request.Context()
	book := middleware.BookFromContext(c)
	userID := middleware.UserIDFromContext(c)

	existing, err := h.draftService.GetDraft(ctx, book, userID, c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to get draft")
		return
	}
	existing.Form = req.Form
	if req.InvoiceID != "" {
		existing.InvoiceID = req.InvoiceID
	}
	saved, err := h.draftService.SaveDraft(ctx, book, userID, existing)
	if err != nil {
		respondError(c, err, "Failed to save draft")
		return
	}
	c.JSON(http.StatusOK, saved)
}

// DeleteDraft handles DELETE /v1/drafts/:id
func (h *DraftHandler) DeleteDraft(c *gin.Context) {
	if err := h.draftService.DeleteDraft(c.Request.Context(), middleware.BookFromContext(c), middleware.UserIDFromContext(c), c.Param("id")); err != nil {
		respondError(c, err, "Failed to delete draft")
		return
	}
	c.Status(http.StatusNoContent)
}
