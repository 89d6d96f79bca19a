package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"ledgerly/einvoice/internal/api/handlers"
	"ledgerly/einvoice/internal/api/middleware"
	"ledgerly/einvoice/internal/config"
	"ledgerly/einvoice/internal/email"
	"ledgerly/einvoice/internal/services"
)

// Services are the dependencies the public API handlers call into.
type Services struct {
	Invoices services.IInvoiceService
	Drafts   services.IDraftService
	Catalog  services.ICatalogService
	TaxRates services.ITaxRateService
}

var (
	testEmailPollAttempts = 10
	testEmailPollInterval = 200 * time.Millisecond
)

// SetupRouter configures and returns the main Gin engine.
// The returned rate limiter owns a cleanup goroutine; Close it on shutdown.
func SetupRouter(cfg *config.Config, svc Services) (*gin.Engine, *middleware.RateLimiterMiddleware) {
	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	// Order matters: CORS answers preflight before it counts against the limit.
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigin))
	r.Use(rateLimiter.Limit())

	invoiceHandler := handlers.NewInvoiceHandler(svc.Invoices)
	draftHandler := handlers.NewDraftHandler(svc.Drafts)
	catalogHandler := handlers.NewCatalogHandler(svc.Catalog)
	taxRateHandler := handlers.NewTaxRateHandler(svc.TaxRates)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Everything else works on the book selected by the caller's token.
		book := v1.Group("/")
		book.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.RequireBook())
		{
			book.POST("/format-price", handlers.FormatPrice)

			book.POST("/invoices/totals", invoiceHandler.ComputeTotals)
			book.POST("/invoices/validate", invoiceHandler.ValidateInvoice)
			book.POST("/invoices/preview", invoiceHandler.PreviewInvoice)
			book.POST("/invoices", invoiceHandler.CreateInvoice)
			book.PUT("/invoices/:id", invoiceHandler.UpdateInvoice)
			book.GET("/invoices/:id/form", invoiceHandler.GetInvoiceForm)
			book.POST("/invoices/:id/pdf", invoiceHandler.RequestPDF)
			book.GET("/submissions/:id", invoiceHandler.GetSubmission)

			book.GET("/products/:id/line-item", catalogHandler.GetLineItem)
			book.GET("/tax-rates", taxRateHandler.ListTaxRates)

			book.GET("/drafts", draftHandler.ListDrafts)
			book.POST("/drafts", draftHandler.CreateDraft)
			book.GET("/drafts/:id", draftHandler.GetDraft)
			book.PUT("/drafts/:id", draftHandler.UpdateDraft)
			book.DELETE("/drafts/:id", draftHandler.DeleteDraft)
		}

		adminRequired := v1.Group("/admin")
		adminRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.RequireBook(), middleware.AdminMiddleware())
		{
			adminRequired.PUT("/tax-rates/:code", taxRateHandler.SetTaxRate)
		}
	}

	return r, rateLimiter
}

// SetupServiceRouter configures the internal service API.
// rdb may be nil when mock services are off; getTestEmail then answers 503.
func SetupServiceRouter(rdb redis.Cmdable, taxRates services.ITaxRateService, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			log.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
				log.Println("Shutdown signal sent successfully.")
			default:
				log.Println("Shutdown channel already signaled or blocked.")
			}

		case "reloadTaxRates":
			// Optional argument: ["book_id"]. Without it every cached table is dropped.
			bookID := services.AllBooks
			var args []string
			if len(req.Arguments) > 0 {
				if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) > 1 {
					c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [bookID]"})
					return
				}
				if len(args) == 1 && args[0] != "" {
					bookID = args[0]
				}
			}
			taxRates.Invalidate(bookID)
			log.Printf("Service API: tax rate cache invalidated for %s", bookID)
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Tax rates reloaded for " + bookID})

		case "getTestEmail":
			if rdb == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Mock e-mail capture is not enabled"})
				return
			}
			var args []string // ["template_id", "email"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 2 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [templateID, email]"})
				return
			}
			templateID, emailAddr := args[0], args[1]

			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()

			var msg *email.MockEmail
			for i := 0; i < testEmailPollAttempts; i++ {
				var err error
				msg, err = email.GetMockEmail(ctx, rdb, emailAddr, templateID)
				if err != nil {
					log.Printf("Service API: Error reading test email for %s: %v", emailAddr, err)
					c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
					return
				}
				if msg != nil {
					rdb.Del(ctx, email.MockEmailKey(emailAddr, templateID))
					break
				}
				time.Sleep(testEmailPollInterval)
			}

			if msg == nil {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found for key %s", email.MockEmailKey(emailAddr, templateID))})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": msg})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
