package tasks_test

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"

	"ledgerly/einvoice/internal/invoicing"
	"ledgerly/einvoice/internal/models"
)

// MockEmailSender
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	args := m.Called(ctx, to, subject, rawMessage)
	return args.Error(0)
}

// MockEmailTemplateService
type MockEmailTemplateService struct {
	mock.Mock
}

func (m *MockEmailTemplateService) GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error) {
	args := m.Called(ctx, templateID, locale)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmailTemplate), args.Error(1)
}

// MockAsynqClient records enqueued tasks.
type MockAsynqClient struct {
	mock.Mock
}

func (m *MockAsynqClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}

// MockStorage implements storage.IS3Storage
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) UploadInvoicePDF(ctx context.Context, bookID, invoiceID string, data []byte) (string, error) {
	args := m.Called(ctx, bookID, invoiceID, data)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Error(1)
}

// MockAccountingClient implements accounting.IClient
type MockAccountingClient struct {
	mock.Mock
}

func (m *MockAccountingClient) GetInvoice(ctx context.Context, book invoicing.BookContext, invoiceID string) (*invoicing.InvoiceRecord, error) {
	args := m.Called(ctx, book, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.InvoiceRecord), args.Error(1)
}

func (m *MockAccountingClient) CreateInvoice(ctx context.Context, book invoicing.BookContext, req invoicing.InvoiceRequest) (*invoicing.InvoiceRecord, error) {
	args := m.Called(ctx, book, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.InvoiceRecord), args.Error(1)
}

func (m *MockAccountingClient) UpdateInvoice(ctx context.Context, book invoicing.BookContext, invoiceID string, req invoicing.InvoiceRequest) (*invoicing.InvoiceRecord, error) {
	args := m.Called(ctx, book, invoiceID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.InvoiceRecord), args.Error(1)
}

func (m *MockAccountingClient) GetProduct(ctx context.Context, book invoicing.BookContext, productID string) (*invoicing.Product, error) {
	args := m.Called(ctx, book, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.Product), args.Error(1)
}

func (m *MockAccountingClient) ListTaxRates(ctx context.Context, book invoicing.BookContext) ([]invoicing.TaxRate, error) {
	args := m.Called(ctx, book)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]invoicing.TaxRate), args.Error(1)
}

// MockInvoiceService implements services.IInvoiceService
type MockInvoiceService struct {
	mock.Mock
}

func (m *MockInvoiceService) ComputeTotals(ctx context.Context, book invoicing.BookContext, items []invoicing.LineItem) ([]invoicing.LineItem, invoicing.InvoiceTotals, error) {
	args := m.Called(ctx, book, items)
	return args.Get(0).([]invoicing.LineItem), args.Get(1).(invoicing.InvoiceTotals), args.Error(2)
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
