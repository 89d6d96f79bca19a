package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ledgerly/einvoice/internal/accounting"
	"ledgerly/einvoice/internal/config"
	"ledgerly/einvoice/internal/db"
	"ledgerly/einvoice/internal/invoicing"
	"ledgerly/einvoice/internal/models"
)

// ITaxRateService resolves the tax rate table for a book.
type ITaxRateService interface {
	Table(ctx context.Context, book invoicing.BookContext) (*invoicing.RateTable, error)
	SetOverride(ctx context.Context, book invoicing.BookContext, rate invoicing.TaxRate) error
	AddCatalogRate(ctx context.Context, book invoicing.BookContext, rate invoicing.TaxRate) error
	Invalidate(bookID string)
	SubscribeToChanges(ctx context.Context) error
}

const (
	taxRateUpdateChannel  = "tax_rate_updates"
	catalogRatesKeyPrefix = "tax_rates:catalog:"
	// AllBooks addresses every book in overrides and invalidation messages.
	AllBooks = "*"
)

// taxRateOverrideStore persists locally maintained rates.
type taxRateOverrideStore interface {
	List(ctx context.Context, bookID string) ([]models.TaxRateOverride, error)
	Upsert(ctx context.Context, o *models.TaxRateOverride) error
}

type cachedTable struct {
	table    *invoicing.RateTable
	loadedAt time.Time
}

// taxRateService implements ITaxRateService.
// Sources merge from lowest to highest precedence: configured defaults, rates learned from
// catalog products, the accounting API, stored overrides.
type taxRateService struct {
	defaults  []invoicing.TaxRate
	client    accounting.IClient
	overrides taxRateOverrideStore
	rdb       *redis.Client
	ttl       time.Duration
	now       func() time.Time

	cache map[string]cachedTable
	// catalog is used when Redis is not configured: book ID -> code -> rate.
	catalog map[string]map[string]invoicing.TaxRate
	mutex   sync.RWMutex
}

// NewTaxRateService creates a new TaxRateService and starts listening for invalidations.
func NewTaxRateService(database *mongo.Database, cfg *config.Config, rdb *redis.Client, client accounting.IClient) (ITaxRateService, error) {
	defaults, err := ParseTaxRateList(cfg.DefaultTaxRates)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_TAX_RATES: %w", err)
	}
	var store taxRateOverrideStore
	if database != nil {
		store = &mongoTaxRateStore{coll: database.Collection(db.TaxRatesCollection)}
	}
	s := newTaxRateService(defaults, client, store, rdb, cfg.TaxRateRefresh)

	if rdb != nil {
		go func() {
			if err := s.SubscribeToChanges(context.Background()); err != nil {
				log.Printf("CRITICAL: Tax rate Pub/Sub listener stopped: %v", err)
			}
		}()
	}
	return s, nil
}

func newTaxRateService(defaults []invoicing.TaxRate, client accounting.IClient, store taxRateOverrideStore, rdb *redis.Client, ttl time.Duration) *taxRateService {
	return &taxRateService{
		defaults:  defaults,
		client:    client,
		overrides: store,
		rdb:       rdb,
		ttl:       ttl,
		now:       time.Now,
		cache:     make(map[string]cachedTable),
		catalog:   make(map[string]map[string]invoicing.TaxRate),
	}
}

// Table returns the book's merged rate table, loading it when the cached copy is missing or stale.
func (s *taxRateService) Table(ctx context.Context, book invoicing.BookContext) (*invoicing.RateTable, error) {
	if err := book.Require(); err != nil {
		return nil, err
	}

	s.mutex.RLock()
	entry, exists := s.cache[book.BookID]
	s.mutex.RUnlock()
	if exists && (s.ttl <= 0 || s.now().Sub(entry.loadedAt) < s.ttl) {
		return entry.table, nil
	}

	table, err := s.load(ctx, book)
	if err != nil {
		if exists {
			log.Printf("Warning: Failed to refresh tax rates for book %s, serving cached table: %v", book.BookID, err)
			return entry.table, nil
		}
		return nil, err
	}

	s.mutex.Lock()
	s.cache[book.BookID] = cachedTable{table: table, loadedAt: s.now()}
	s.mutex.Unlock()
	return table, nil
}

func (s *taxRateService) load(ctx context.Context, book invoicing.BookContext) (*invoicing.RateTable, error) {
	rates := inRange(book.BookID, "default", s.defaults)
	rates = append(rates, inRange(book.BookID, "catalog", s.catalogRates(ctx, book.BookID))...)

	if s.client != nil {
		remote, err := s.client.ListTaxRates(ctx, book)
		if err != nil {
			// The configured defaults still resolve the common codes.
			log.Printf("Warning: Failed to fetch tax rates for book %s from accounting API: %v", book.BookID, err)
		} else {
			rates = append(rates, inRange(book.BookID, "remote", remote)...)
		}
	}

	if s.overrides != nil {
		stored, err := s.overrides.List(ctx, book.BookID)
		if err != nil {
			return nil, fmt.Errorf("failed to load tax rate overrides for book %s: %w", book.BookID, err)
		}
		base := invoicing.NewRateTable(rates...)
		for _, o := range stored {
			rate, err := o.TaxRate()
			if err != nil {
				log.Printf("Warning: Skipping tax rate override %s for book %s: %v", o.Code, o.BookID, err)
				continue
			}
			// An override without its own rate ID keeps the ID invoices already reference.
			if o.RateID == "" {
				if prev, ok := base.ByCode(o.Code); ok && prev.ID != "" {
					rate.ID = prev.ID
				}
			}
			rates = append(rates, rate)
		}
	}

	log.Printf("Loaded %d tax rate entries for book %s.", len(rates), book.BookID)
	return invoicing.NewRateTable(rates...), nil
}

// SetOverride stores a rate for the book and tells every instance to reload it.
func (s *taxRateService) SetOverride(ctx context.Context, book invoicing.BookContext, rate invoicing.TaxRate) error {
	if err := book.Require(); err != nil {
		return err
	}
	if s.overrides == nil {
		return fmt.Errorf("tax rate overrides are not configured")
	}
	code := strings.ToUpper(strings.TrimSpace(rate.Code))
	if code == "" {
		return &invoicing.ValidationError{Fields: []invoicing.FieldError{{Field: "code", Message: "tax code is required"}}}
	}
	if !validPercent(rate.Percent) {
		return &invoicing.ValidationError{Fields: []invoicing.FieldError{{Field: "percent", Message: "percent must be between 0 and 100"}}}
	}

	o := &models.TaxRateOverride{
		Base:    models.NewBase(),
		BookID:  book.BookID,
		Code:    code,
		RateID:  strings.TrimSpace(rate.ID),
		Name:    rate.Name,
		Percent: rate.Percent.String(),
	}
	if err := s.overrides.Upsert(ctx, o); err != nil {
		return fmt.Errorf("failed to store tax rate override %s for book %s: %w", code, book.BookID, err)
	}

	s.notifyChanged(ctx, book.BookID)
	log.Printf("Updated tax rate override %s for book %s.", code, book.BookID)
	return nil
}

// AddCatalogRate remembers a rate a catalog product advertises so rows using its code resolve.
// The book's own sources still win for any code they define.
func (s *taxRateService) AddCatalogRate(ctx context.Context, book invoicing.BookContext, rate invoicing.TaxRate) error {
	if err := book.Require(); err != nil {
		return err
	}
	rate.Code = strings.ToUpper(strings.TrimSpace(rate.Code))
	if rate.Code == "" {
		return &invoicing.ValidationError{Fields: []invoicing.FieldError{{Field: "code", Message: "tax code is required"}}}
	}
	if !validPercent(rate.Percent) {
		return &invoicing.ValidationError{Fields: []invoicing.FieldError{{Field: "percent", Message: "percent must be between 0 and 100"}}}
	}
	if rate.ID == "" {
		rate.ID = rate.Code
	}
	if rate.Name == "" {
		rate.Name = rate.Code
	}

	if s.rdb != nil {
		data, err := json.Marshal(rate)
		if err != nil {
			return fmt.Errorf("failed to encode catalog tax rate %s: %w", rate.Code, err)
		}
		if err := s.rdb.HSet(ctx, catalogRatesKeyPrefix+book.BookID, rate.Code, data).Err(); err != nil {
			return fmt.Errorf("failed to store catalog tax rate %s for book %s: %w", rate.Code, book.BookID, err)
		}
	} else {
		s.mutex.Lock()
		if s.catalog[book.BookID] == nil {
			s.catalog[book.BookID] = make(map[string]invoicing.TaxRate)
		}
		s.catalog[book.BookID][rate.Code] = rate
		s.mutex.Unlock()
	}

	s.notifyChanged(ctx, book.BookID)
	log.Printf("Added catalog tax rate %s (%s%%) for book %s.", rate.Code, rate.Percent, book.BookID)
	return nil
}

func (s *taxRateService) catalogRates(ctx context.Context, bookID string) []invoicing.TaxRate {
	var rates []invoicing.TaxRate
	if s.rdb == nil {
		s.mutex.RLock()
		for _, r := range s.catalog[bookID] {
			rates = append(rates, r)
		}
		s.mutex.RUnlock()
		return rates
	}

	stored, err := s.rdb.HGetAll(ctx, catalogRatesKeyPrefix+bookID).Result()
	if err != nil {
		log.Printf("Warning: Failed to read catalog tax rates for book %s: %v", bookID, err)
		return nil
	}
	for code, data := range stored {
		var r invoicing.TaxRate
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			log.Printf("Warning: Skipping catalog tax rate %s for book %s: %v", code, bookID, err)
			continue
		}
		rates = append(rates, r)
	}
	return rates
}

// notifyChanged drops the local copy of the book's table and tells the other instances to do the same.
func (s *taxRateService) notifyChanged(ctx context.Context, bookID string) {
	s.Invalidate(bookID)
	if s.rdb != nil {
		if err := s.rdb.Publish(ctx, taxRateUpdateChannel, bookID).Err(); err != nil {
			log.Printf("Warning: Failed to publish tax rate update for book %s: %v", bookID, err)
		}
	}
}

func validPercent(p decimal.Decimal) bool {
	return !p.IsNegative() && !p.GreaterThan(decimal.NewFromInt(100))
}

// inRange drops rates whose percent falls outside 0-100.
func inRange(bookID, source string, rates []invoicing.TaxRate) []invoicing.TaxRate {
	out := make([]invoicing.TaxRate, 0, len(rates))
	for _, r := range rates {
		if !validPercent(r.Percent) {
			log.Printf("Warning: Skipping %s tax rate %s for book %s: percent %s is outside 0-100", source, r.Code, bookID, r.Percent)
			continue
		}
		out = append(out, r)
	}
	return out
}

// Invalidate drops the cached table for bookID, or every table for AllBooks.
func (s *taxRateService) Invalidate(bookID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if bookID == AllBooks || bookID == "" {
		s.cache = make(map[string]cachedTable)
		return
	}
	delete(s.cache, bookID)
}

// SubscribeToChanges listens for invalidation messages on Redis Pub/Sub.
func (s *taxRateService) SubscribeToChanges(ctx context.Context) error {
	if s.rdb == nil {
		log.Println("Redis client not configured, cannot subscribe to tax rate changes.")
		return nil
	}

	pubsub := s.rdb.Subscribe(ctx, taxRateUpdateChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to receive confirmation from Redis Pub/Sub subscription: %w", err)
	}

	log.Println("Subscribed to Redis channel for tax rate updates:", taxRateUpdateChannel)
	for msg := range pubsub.Channel() {
		log.Printf("Received tax rate update notification for book %s", msg.Payload)
		s.Invalidate(msg.Payload)
	}

	log.Println("Tax rate Pub/Sub listener stopped.")
	return nil
}

// ParseTaxRateList parses "CODE:PERCENT[:RATE_ID]" entries separated by commas, e.g. "GST:10,FRE:0".
// A missing rate ID defaults to the code.
func ParseTaxRateList(list string) ([]invoicing.TaxRate, error) {
	var rates []invoicing.TaxRate
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("tax rate entry %q must look like CODE:PERCENT or CODE:PERCENT:RATE_ID", entry)
		}
		code := strings.ToUpper(strings.TrimSpace(parts[0]))
		if code == "" {
			return nil, fmt.Errorf("tax rate entry %q has no code", entry)
		}
		pct, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("tax rate entry %q has an invalid percent: %w", entry, err)
		}
		id := code
		if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
			id = strings.TrimSpace(parts[2])
		}
		rates = append(rates, invoicing.TaxRate{ID: id, Code: code, Name: code, Percent: pct})
	}
	return rates, nil
}

// mongoTaxRateStore keeps overrides in the tax_rates collection.
type mongoTaxRateStore struct {
	coll *mongo.Collection
}

// List returns the global overrides first so book-specific ones replace them.
func (m *mongoTaxRateStore) List(ctx context.Context, bookID string) ([]models.TaxRateOverride, error) {
	filter := bson.M{"book_id": bson.M{"$in": []string{AllBooks, bookID}}}
	cursor, err := m.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var global, specific []models.TaxRateOverride
	for cursor.Next(ctx) {
		var o models.TaxRateOverride
		if err := cursor.Decode(&o); err != nil {
			log.Printf("Warning: Failed to decode tax rate override: %v", err)
			continue
		}
		if o.BookID == AllBooks {
			global = append(global, o)
		} else {
			specific = append(specific, o)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tax rate cursor: %w", err)
	}
	return append(global, specific...), nil
}

func (m *mongoTaxRateStore) Upsert(ctx context.Context, o *models.TaxRateOverride) error {
	filter := bson.M{"book_id": o.BookID, "code": o.Code}
	update := bson.M{
		"$set": bson.M{
			"rate_id":    o.RateID,
			"name":       o.Name,
			"percent":    o.Percent,
			"updated_at": o.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":        o.ID,
			"created_at": o.CreatedAt,
		},
	}
	_, err := m.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}
