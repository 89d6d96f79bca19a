package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ledgerly/einvoice/internal/accounting"
	"ledgerly/einvoice/internal/invoicing"
	"ledgerly/einvoice/internal/services"
)

// respondError maps a service error to a status code and JSON body.
// fallback is the message shown for unexpected failures.
func respondError(c *gin.Context, err error, fallback string) {
	var verr *invoicing.ValidationError
	var perr *invoicing.PreconditionError
	var apiErr *accounting.APIError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Validation failed", "fields": verr.Fields})
	case errors.As(err, &perr):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": perr.Error()})
	case errors.Is(err, services.ErrNotFound), accounting.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.As(err, &apiErr):
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Accounting service error"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
}
