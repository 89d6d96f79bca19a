package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ledgerly/einvoice/internal/api/middleware"
	"ledgerly/einvoice/internal/services"
)

// CatalogHandler pre-fills invoice rows from the accounting catalog.
type CatalogHandler struct {
	catalogService services.ICatalogService
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(catalogService services.ICatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

// GetLineItem handles GET /v1/products/:id/line-item
func (h *CatalogHandler) GetLineItem(c *gin.Context) {
	item, err := h.catalogService.DefaultLineItem(c.Request.Context(), middleware.BookFromContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to load product")
		return
	}
	c.JSON(http.StatusOK, item)
}
