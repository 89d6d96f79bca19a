package accounting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"ledgerly/einvoice/internal/config"
	"ledgerly/einvoice/internal/invoicing"
)

type idempotencyKeyCtx struct{}

// WithIdempotencyKey makes requests sent with ctx carry an Idempotency-Key header,
// so a retried create is not applied twice.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

// maxErrorBody caps how much of a failed response is kept on an APIError.
const maxErrorBody = 4 << 10

// IClient is the external accounting API as the services use it.
type IClient interface {
	GetInvoice(ctx context.Context, book invoicing.BookContext, invoiceID string) (*invoicing.InvoiceRecord, error)
	CreateInvoice(ctx context.Context, book invoicing.BookContext, req invoicing.InvoiceRequest) (*invoicing.InvoiceRecord, error)
	UpdateInvoice(ctx context.Context, book invoicing.BookContext, invoiceID string, req invoicing.InvoiceRequest) (*invoicing.InvoiceRecord, error)
	GetProduct(ctx context.Context, book invoicing.BookContext, productID string) (*invoicing.Product, error)
	ListTaxRates(ctx context.Context, book invoicing.BookContext) ([]invoicing.TaxRate, error)
}

// Client talks JSON to the accounting API. Every call is scoped to one book.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client from the service configuration.
func NewClient(cfg *config.Config) *Client {
	return NewClientWithHTTP(cfg.AccountingAPIURL, cfg.AccountingAPIKey, &http.Client{Timeout: cfg.AccountingAPITimeout})
}

// NewClientWithHTTP creates a client with a caller-supplied HTTP client.
func NewClientWithHTTP(baseURL, apiKey string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// GetInvoice fetches a stored invoice. GET /books/{book}/invoices/{id}
func (c *Client) GetInvoice(ctx context.Context, book invoicing.BookContext, invoiceID string) (*invoicing.InvoiceRecord, error) {
	var rec invoicing.InvoiceRecord
	if err := c.do(ctx, book, http.MethodGet, "/invoices/"+url.PathEscape(invoiceID), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateInvoice posts a new invoice. POST /books/{book}/invoices
func (c *Client) CreateInvoice(ctx context.Context, book invoicing.BookContext, req invoicing.InvoiceRequest) (*invoicing.InvoiceRecord, error) {
	var rec invoicing.InvoiceRecord
	if err := c.do(ctx, book, http.MethodPost, "/invoices", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateInvoice replaces an existing invoice. PUT /books/{book}/invoices/{id}
func (c *Client) UpdateInvoice(ctx context.Context, book invoicing.BookContext, invoiceID string, req invoicing.InvoiceRequest) (*invoicing.InvoiceRecord, error) {
	var rec invoicing.InvoiceRecord
	if err := c.do(ctx, book, http.MethodPut, "/invoices/"+url.PathEscape(invoiceID), req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetProduct fetches a catalog item. GET /books/{book}/items/{id}
func (c *Client) GetProduct(ctx context.Context, book invoicing.BookContext, productID string) (*invoicing.Product, error) {
	var p invoicing.Product
	if err := c.do(ctx, book, http.MethodGet, "/items/"+url.PathEscape(productID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListTaxRates fetches the book's tax rate table. GET /books/{book}/taxrates
func (c *Client) ListTaxRates(ctx context.Context, book invoicing.BookContext) ([]invoicing.TaxRate, error) {
	var rates []invoicing.TaxRate
	if err := c.do(ctx, book, http.MethodGet, "/taxrates", nil, &rates); err != nil {
		return nil, err
	}
	return rates, nil
}

func (c *Client) do(ctx context.Context, book invoicing.BookContext, method, path string, body, out interface{}) error {
	if err := book.Require(); err != nil {
		return err
	}
	endpoint := c.baseURL + "/books/" + url.PathEscape(book.BookID) + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s request: %w", method, path, err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create accounting request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("X-Book-Id", book.BookID)
	if key, ok := ctx.Value(idempotencyKeyCtx{}).(string); ok && key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("accounting API %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Printf("Accounting API %s %s (book %s) returned %d: %s", method, path, book.BookID, resp.StatusCode, string(errBody))
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: string(errBody)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode accounting API response for %s %s: %w", method, path, err)
	}
	return nil
}
