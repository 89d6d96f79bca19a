package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"

	"ledgerly/einvoice/internal/invoicing"
	"ledgerly/einvoice/internal/models"
)

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

// MockTaskQueue implements ITaskQueue
type MockTaskQueue struct {
	mock.Mock
}

func (m *MockTaskQueue) EnqueueSubmitInvoice(ctx context.Context, submissionID string) error {
	args := m.Called(ctx, submissionID)
	return args.Error(0)
}

func (m *MockTaskQueue) EnqueueRenderPDF(ctx context.Context, book invoicing.BookContext, invoiceID, emailTo string) error {
	args := m.Called(ctx, book, invoiceID, emailTo)
	return args.Error(0)
}

// fakeOverrideStore is an in-memory taxRateOverrideStore.
type fakeOverrideStore struct {
	overrides []models.TaxRateOverride
	listErr   error
}

func (f *fakeOverrideStore) List(ctx context.Context, bookID string) ([]models.TaxRateOverride, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.TaxRateOverride
	for _, o := range f.overrides {
		if o.BookID == AllBooks {
			out = append(out, o)
		}
	}
	for _, o := range f.overrides {
		if o.BookID == bookID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOverrideStore) Upsert(ctx context.Context, o *models.TaxRateOverride) error {
	for i := range f.overrides {
		if f.overrides[i].BookID == o.BookID && f.overrides[i].Code == o.Code {
			f.overrides[i] = *o
			return nil
		}
	}
	f.overrides = append(f.overrides, *o)
	return nil
}

// fakeSubmissionStore is an in-memory submissionStore understanding the filters the service uses.
type fakeSubmissionStore struct {
	mu   sync.Mutex
	subs map[string]models.InvoiceSubmission
}

func newFakeSubmissionStore() *fakeSubmissionStore {
	return &fakeSubmissionStore{subs: map[string]models.InvoiceSubmission{}}
}

func (f *fakeSubmissionStore) Insert(ctx context.Context, sub *models.InvoiceSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[sub.ID] = *sub
	return nil
}

func (f *fakeSubmissionStore) Find(ctx context.Context, filter bson.M) (*models.InvoiceSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[filter["_id"].(string)]
	if !ok {
		return nil, fmt.Errorf("submission: %w", ErrNotFound)
	}
	if book, scoped := filter["book_id"]; scoped && sub.BookID != book {
		return nil, fmt.Errorf("submission: %w", ErrNotFound)
	}
	return &sub, nil
}

func (f *fakeSubmissionStore) Update(ctx context.Context, id string, set bson.M, inc bson.M) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[id]
	if !ok {
		return fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	if v, ok := set["status"]; ok {
		sub.Status = v.(models.SubmissionStatus)
	}
	if v, ok := set["invoice_id"]; ok {
		sub.InvoiceID = v.(string)
	}
	if v, ok := set["last_error"]; ok {
		sub.LastError = v.(string)
	}
	if n, ok := inc["attempts"]; ok {
		sub.Attempts += n.(int)
	}
	f.subs[id] = sub
	return nil
}
