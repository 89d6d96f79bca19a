package handlers_test

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"

	"ledgerly/einvoice/internal/api/middleware"
	"ledgerly/einvoice/internal/invoicing"
	"ledgerly/einvoice/internal/models"
)

const (
	testBookID = "book-1"
	testUserID = "user-1"
)

var testBook = invoicing.BookContext{BookID: testBookID}

func init() {
	gin.SetMode(gin.TestMode)
}

// withIdentity stands in for AuthMiddleware.
func withIdentity(bookID string, isAdmin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, testUserID)
		c.Set(middleware.ContextKeyBookID, bookID)
		c.Set(middleware.ContextKeyIsAdmin, isAdmin)
		c.Next()
	}
}

// --- Mocks ---

type MockInvoiceService struct {
	mock.Mock
}

func (m *MockInvoiceService) ComputeTotals(ctx context.Context, book invoicing.BookContext, items []invoicing.LineItem) ([]invoicing.LineItem, invoicing.InvoiceTotals, error) {
	args := m.Called(ctx, book, items)
	var out []invoicing.LineItem
	if args.Get(0) != nil {
		out = args.Get(0).([]invoicing.LineItem)
	}
	return out, args.Get(1).(invoicing.InvoiceTotals), args.Error(2)
}

func (m *MockInvoiceService) Validate(ctx context.Context, book invoicing.BookContext, form invoicing.InvoiceFormValues) error {
	args := m.Called(ctx, book, form)
	return args.Error(0)
}

func (m *MockInvoiceService) Prepare(ctx context.Context, book invoicing.BookContext, form invoicing.InvoiceFormValues) (invoicing.InvoiceRequest, error) {
	args := m.Called(ctx, book, form)
	return args.Get(0).(invoicing.InvoiceRequest), args.Error(1)
}

func (m *MockInvoiceService) Submit(ctx context.Context, book invoicing.BookContext, userID, invoiceID string, form invoicing.InvoiceFormValues, emailTo string) (*models.InvoiceSubmission, error) {
	args := m.Called(ctx, book, userID, invoiceID, form, emailTo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InvoiceSubmission), args.Error(1)
}

func (m *MockInvoiceService) GetSubmission(ctx context.Context, book invoicing.BookContext, id string) (*models.InvoiceSubmission, error) {
	args := m.Called(ctx, book, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InvoiceSubmission), args.Error(1)
}

func (m *MockInvoiceService) LoadForEdit(ctx context.Context, book invoicing.BookContext, invoiceID string) (invoicing.InvoiceFormValues, invoicing.InvoiceTotals, error) {
	args := m.Called(ctx, book, invoiceID)
	return args.Get(0).(invoicing.InvoiceFormValues), args.Get(1).(invoicing.InvoiceTotals), args.Error(2)
}

func (m *MockInvoiceService) RequestPDF(ctx context.Context, book invoicing.BookContext, invoiceID, emailTo string) error {
	args := m.Called(ctx, book, invoiceID, emailTo)
	return args.Error(0)
}

func (m *MockInvoiceService) FindSubmission(ctx context.Context, id string) (*models.InvoiceSubmission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InvoiceSubmission), args.Error(1)
}

func (m *MockInvoiceService) MarkSubmissionSent(ctx context.Context, id, invoiceID string) error {
	args := m.Called(ctx, id, invoiceID)
	return args.Error(0)
}

func (m *MockInvoiceService) MarkSubmissionFailed(ctx context.Context, id, reason string, final bool) error {
	args := m.Called(ctx, id, reason, final)
	return args.Error(0)
}

type MockDraftService struct {
	mock.Mock
}

func (m *MockDraftService) SaveDraft(ctx context.Context, book invoicing.BookContext, userID string, draft *models.InvoiceDraft) (*models.InvoiceDraft, error) {
	args := m.Called(ctx, book, userID, draft)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InvoiceDraft), args.Error(1)
}

func (m *MockDraftService) GetDraft(ctx context.Context, book invoicing.BookContext, userID, idOrRef string) (*models.InvoiceDraft, error) {
	args := m.Called(ctx, book, userID, idOrRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InvoiceDraft), args.Error(1)
}

func (m *MockDraftService) ListDrafts(ctx context.Context, book invoicing.BookContext, userID string) ([]models.InvoiceDraft, error) {
	args := m.Called(ctx, book, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.InvoiceDraft), args.Error(1)
}

func (m *MockDraftService) DeleteDraft(ctx context.Context, book invoicing.BookContext, userID, id string) error {
	args := m.Called(ctx, book, userID, id)
	return args.Error(0)
}

type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) GetProduct(ctx context.Context, book invoicing.BookContext, productID string) (*invoicing.Product, error) {
	args := m.Called(ctx, book, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.Product), args.Error(1)
}

func (m *MockCatalogService) DefaultLineItem(ctx context.Context, book invoicing.BookContext, productID string) (invoicing.LineItem, error) {
	args := m.Called(ctx, book, productID)
	return args.Get(0).(invoicing.LineItem), args.Error(1)
}

type MockTaxRateService struct {
	mock.Mock
}

func (m *MockTaxRateService) Table(ctx context.Context, book invoicing.BookContext) (*invoicing.RateTable, error) {
	args := m.Called(ctx, book)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.RateTable), args.Error(1)
}

func (m *MockTaxRateService) SetOverride(ctx context.Context, book invoicing.BookContext, rate invoicing.TaxRate) error {
	args := m.Called(ctx, book, rate)
	return args.Error(0)
}

func (m *MockTaxRateService) AddCatalogRate(ctx context.Context, book invoicing.BookContext, rate invoicing.TaxRate) error {
	args := m.Called(ctx, book, rate)
	return args.Error(0)
}

func (m *MockTaxRateService) Invalidate(bookID string) {
	m.Called(bookID)
}

func (m *MockTaxRateService) SubscribeToChanges(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
