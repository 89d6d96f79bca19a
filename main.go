package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"ledgerly/einvoice/internal/accounting"
	"ledgerly/einvoice/internal/api"
	"ledgerly/einvoice/internal/cache"
	"ledgerly/einvoice/internal/config"
	"ledgerly/einvoice/internal/db"
	"ledgerly/einvoice/internal/email"
	"ledgerly/einvoice/internal/services"
	"ledgerly/einvoice/internal/storage"
	"ledgerly/einvoice/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	runAPI := cfg.RunMode == "api" || cfg.RunMode == "all"
	runBg := cfg.RunMode == "bg" || cfg.RunMode == "all"
	if !runAPI && !runBg {
		log.Fatalf("Invalid run mode specified in config: %s.", cfg.RunMode)
	}

	// Initialize Database
	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()
	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureIndexes(indexCtx, mongoDb); err != nil {
		log.Fatalf("Failed to ensure MongoDB indexes: %v", err)
	}
	cancelIndex()

	// Initialize Cache (Redis)
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Printf("Error disconnecting from Redis: %v", err)
		}
	}()

	mockServices := os.Getenv("MOCK_SERVICES") == "true"

	// Initialize Email Sender
	var primaryEmailSender email.Sender
	if mockServices {
		log.Println("MOCK_SERVICES enabled: Using Redis email sender.")
		primaryEmailSender = email.NewRedisSender(redisClient, cfg.SmtpFromAddress)
	} else {
		log.Println("MOCK_SERVICES disabled or not set: Using SMTP/Logging email sender.")
		primaryEmailSender = email.NewSMTPSender(cfg)
	}
	compositeSender := email.NewCompositeEmailSender(primaryEmailSender)

	// Optionally add FileEmailSender if LOG_EMAILS is set
	if logEmailsPath := os.Getenv("LOG_EMAILS"); logEmailsPath != "" {
		log.Printf("LOG_EMAILS set to '%s', enabling file email logger.", logEmailsPath)
		fileSender, err := email.NewFileEmailSender(logEmailsPath)
		if err != nil {
			log.Printf("WARNING: Failed to initialize file email sender (LOG_EMAILS='%s'): %v. Proceeding without file logging.", logEmailsPath, err)
		} else {
			compositeSender.AddSender(fileSender)
		}
	}

	// Initialize Services needed by handlers and/or task processor
	accountingClient := accounting.NewClient(cfg)
	taxRateService, err := services.NewTaxRateService(mongoDb, cfg, redisClient, accountingClient)
	if err != nil {
		log.Fatalf("Failed to initialize tax rate service: %v", err)
	}
	catalogService := services.NewCatalogService(accountingClient, taxRateService, redisClient, cfg.CatalogCacheTTL)
	draftService := services.NewDraftService(mongoDb, cfg)
	emailTemplateService := services.NewEmailTemplateService(mongoDb)

	// Initialize Task Client
	taskClient := tasks.NewClient(cfg)
	defer taskClient.Close()
	taskQueue := tasks.NewQueue(taskClient, cfg.SubmitMaxRetries)

	invoiceService := services.NewInvoiceService(mongoDb, cfg.DefaultPaymentTerms, taxRateService, accountingClient, taskQueue)

	// WaitGroup for managing goroutines
	var wg sync.WaitGroup

	// Channel to signal shutdown from Service API
	shutdownChan := make(chan struct{}, 1)

	// Start Service API (always runs). Test e-mails are only readable in mock mode.
	var mockEmailStore redis.Cmdable
	if mockServices {
		mockEmailStore = redisClient
	}
	serviceRouter := api.SetupServiceRouter(mockEmailStore, taxRateService, shutdownChan)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: serviceRouter,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		fmt.Printf("Service API listening on :%s\n", cfg.ServiceApiPort)
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Service API ListenAndServe error: %v", err)
		}
		fmt.Println("Service API server stopped.")
	}()

	// --- Mode-specific servers ---
	var mainApiSrv *http.Server
	var backgroundTaskSrv *asynq.Server

	fmt.Printf("Starting application in '%s' mode...\n", cfg.RunMode)

	if runAPI {
		fmt.Println("Starting main API server...")
		mainApiRouter, rateLimiter := api.SetupRouter(cfg, api.Services{
			Invoices: invoiceService,
			Drafts:   draftService,
			Catalog:  catalogService,
			TaxRates: taxRateService,
		})
		defer rateLimiter.Close()
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: mainApiRouter,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Printf("Main API listening on :%s\n", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Main API ListenAndServe error: %v", err)
			}
			fmt.Println("Main API server stopped.")
		}()
	}

	if runBg {
		fmt.Println("Starting background worker...")
		s3StorageService, err := storage.NewS3Storage(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize S3 storage: %v", err)
		}
		taskProcessor := tasks.NewTaskProcessor(cfg, compositeSender, s3StorageService, invoiceService, taxRateService, accountingClient, emailTemplateService, taskQueue)

		var mux *asynq.ServeMux
		backgroundTaskSrv, mux = tasks.SetupServer(tasks.RedisOpt(cfg), taskProcessor)
		if err := backgroundTaskSrv.Start(mux); err != nil {
			log.Fatalf("Background task server error: %v", err)
		}
		fmt.Println("Background task server started.")
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		fmt.Printf("\nReceived signal: %s. Shutting down gracefully...\n", sig)
	case <-shutdownChan:
		fmt.Println("\nShutdown requested via Service API. Shutting down gracefully...")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	fmt.Println("Shutting down Service API server...")
	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Printf("Service API server shutdown error: %v", err)
	}

	if mainApiSrv != nil {
		fmt.Println("Shutting down Main API server...")
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Printf("Main API server shutdown error: %v", err)
		}
	}

	if backgroundTaskSrv != nil {
		fmt.Println("Shutting down Background Task server...")
		backgroundTaskSrv.Shutdown()
	}

	fmt.Println("Waiting for servers to stop...")
	wg.Wait()

	fmt.Println("Server gracefully stopped")
}
