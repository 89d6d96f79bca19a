package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ledgerly/einvoice/internal/accounting"
	"ledgerly/einvoice/internal/cache"
	"ledgerly/einvoice/internal/invoicing"
)

// ICatalogService looks up products to pre-fill invoice rows.
type ICatalogService interface {
	GetProduct(ctx context.Context, book invoicing.BookContext, productID string) (*invoicing.Product, error)
	DefaultLineItem(ctx context.Context, book invoicing.BookContext, productID string) (invoicing.LineItem, error)
}

// catalogService reads products through a Redis cache in front of the accounting API.
type catalogService struct {
	client   accounting.IClient
	taxRates ITaxRateService
	rdb      redis.Cmdable
	ttl      time.Duration
}

// NewCatalogService creates a new CatalogService. rdb may be nil to disable caching.
// Without taxRates, rows are returned without computed amounts.
func NewCatalogService(client accounting.IClient, taxRates ITaxRateService, rdb redis.Cmdable, ttl time.Duration) ICatalogService {
	return &catalogService{client: client, taxRates: taxRates, rdb: rdb, ttl: ttl}
}

func catalogKey(bookID, productID string) string {
	return fmt.Sprintf("catalog:%s:%s", bookID, productID)
}

func (s *catalogService) GetProduct(ctx context.Context, book invoicing.BookContext, productID string) (*invoicing.Product, error) {
	if err := book.Require(); err != nil {
		return nil, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("product: %w", ErrNotFound)
	}

	key := catalogKey(book.BookID, productID)
	if s.rdb != nil {
		var cached invoicing.Product
		err := cache.GetJSON(ctx, s.rdb, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			log.Printf("Warning: Catalog cache read failed for %s: %v", key, err)
		}
	}

	p, err := s.client.GetProduct(ctx, book, productID)
	if err != nil {
		if accounting.IsNotFound(err) {
			return nil, fmt.Errorf("product %s: %w", productID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch product %s: %w", productID, err)
	}

	if s.rdb != nil && s.ttl > 0 {
		if err := cache.SetJSON(ctx, s.rdb, key, p, s.ttl); err != nil {
			log.Printf("Warning: Catalog cache write failed for %s: %v", key, err)
		}
	}
	return p, nil
}

// DefaultLineItem returns a new row pre-filled from the product, with its amount and tax computed.
// A tax code the book does not know yet is taken from the product's own percent and remembered
// for the book, so totals and validation resolve it too.
func (s *catalogService) DefaultLineItem(ctx context.Context, book invoicing.BookContext, productID string) (invoicing.LineItem, error) {
	p, err := s.GetProduct(ctx, book, productID)
	if err != nil {
		return invoicing.LineItem{}, err
	}
	item := invoicing.LineItemFromProduct(*p)
	if s.taxRates == nil {
		return item, nil
	}

	table, err := s.taxRates.Table(ctx, book)
	if err != nil {
		log.Printf("Warning: Failed to load tax rates for book %s, returning row without amounts: %v", book.BookID, err)
		return item, nil
	}
	var rates invoicing.TaxRates = table
	if rate, ok := invoicing.ProductTaxRate(*p); ok {
		if _, known := table.ByCode(rate.Code); !known {
			if err := s.taxRates.AddCatalogRate(ctx, book, rate); err != nil {
				log.Printf("Warning: Ignoring tax rate %s from product %s: %v", rate.Code, p.ID, err)
			} else {
				rates = invoicing.ExtendRates(table, rate)
			}
		}
	}
	return invoicing.WithComputed([]invoicing.LineItem{item}, rates)[0], nil
}
