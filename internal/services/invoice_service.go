package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"ledgerly/einvoice/internal/accounting"
	"ledgerly/einvoice/internal/db"
	"ledgerly/einvoice/internal/invoicing"
	"ledgerly/einvoice/internal/models"
)

// ITaskQueue schedules the background work the invoice service hands off.
type ITaskQueue interface {
	EnqueueSubmitInvoice(ctx context.Context, submissionID string) error
	EnqueueRenderPDF(ctx context.Context, book invoicing.BookContext, invoiceID, emailTo string) error
}

// IInvoiceService ties the invoicing core to tax rates, the accounting API and the task queue.
type IInvoiceService interface {
	ComputeTotals(ctx context.Context, book invoicing.BookContext, items []invoicing.LineItem) ([]invoicing.LineItem, invoicing.InvoiceTotals, error)
	Validate(ctx context.Context, book invoicing.BookContext, form invoicing.InvoiceFormValues) error
	Prepare(ctx context.Context, book invoicing.BookContext, form invoicing.InvoiceFormValues) (invoicing.InvoiceRequest, error)
	Submit(ctx context.Context, book invoicing.BookContext, userID, invoiceID string, form invoicing.InvoiceFormValues, emailTo string) (*models.InvoiceSubmission, error)
	GetSubmission(ctx context.Context, book invoicing.BookContext, id string) (*models.InvoiceSubmission, error)
	LoadForEdit(ctx context.Context, book invoicing.BookContext, invoiceID string) (invoicing.InvoiceFormValues, invoicing.InvoiceTotals, error)
	RequestPDF(ctx context.Context, book invoicing.BookContext, invoiceID, emailTo string) error

	// Used by the background worker.
	FindSubmission(ctx context.Context, id string) (*models.InvoiceSubmission, error)
	MarkSubmissionSent(ctx context.Context, id, invoiceID string) error
	MarkSubmissionFailed(ctx context.Context, id, reason string, final bool) error
}

// submissionStore persists the submission log.
type submissionStore interface {
	Insert(ctx context.Context, sub *models.InvoiceSubmission) error
	Find(ctx context.Context, filter bson.M) (*models.InvoiceSubmission, error)
	Update(ctx context.Context, id string, set bson.M, inc bson.M) error
}

// invoiceService implements IInvoiceService.
type invoiceService struct {
	taxRates     ITaxRateService
	client       accounting.IClient
	queue        ITaskQueue
	submissions  submissionStore
	defaultTerms string
}

// NewInvoiceService creates a new InvoiceService.
func NewInvoiceService(database *mongo.Database, defaultTerms string, taxRates ITaxRateService, client accounting.IClient, queue ITaskQueue) IInvoiceService {
	return newInvoiceService(&mongoSubmissionStore{coll: database.Collection(db.SubmissionsCollection)}, defaultTerms, taxRates, client, queue)
}

func newInvoiceService(store submissionStore, defaultTerms string, taxRates ITaxRateService, client accounting.IClient, queue ITaskQueue) *invoiceService {
	return &invoiceService{
		taxRates:     taxRates,
		client:       client,
		queue:        queue,
		submissions:  store,
		defaultTerms: defaultTerms,
	}
}

// ComputeTotals returns the rows with their computed amounts and the invoice totals.
func (s *invoiceService) ComputeTotals(ctx context.Context, book invoicing.BookContext, items []invoicing.LineItem) ([]invoicing.LineItem, invoicing.InvoiceTotals, error) {
	rates, err := s.taxRates.Table(ctx, book)
	if err != nil {
		return nil, invoicing.InvoiceTotals{}, err
	}
	return invoicing.WithComputed(items, rates), invoicing.CalculateTotals(items, rates), nil
}

func (s *invoiceService) Validate(ctx context.Context, book invoicing.BookContext, form invoicing.InvoiceFormValues) error {
	rates, err := s.taxRates.Table(ctx, book)
	if err != nil {
		return err
	}
	return invoicing.Validate(s.withDefaults(form), rates)
}

// Prepare validates the form and builds the accounting API payload without sending it.
func (s *invoiceService) Prepare(ctx context.Context, book invoicing.BookContext, form invoicing.InvoiceFormValues) (invoicing.InvoiceRequest, error) {
	rates, err := s.taxRates.Table(ctx, book)
	if err != nil {
		return invoicing.InvoiceRequest{}, err
	}
	return invoicing.ToAPI(book, s.withDefaults(form), rates)
}

// Submit records the prepared request and queues it for delivery. An empty invoiceID creates a new invoice.
func (s *invoiceService) Submit(ctx context.Context, book invoicing.BookContext, userID, invoiceID string, form invoicing.InvoiceFormValues, emailTo string) (*models.InvoiceSubmission, error) {
	rates, err := s.taxRates.Table(ctx, book)
	if err != nil {
		return nil, err
	}
	form = s.withDefaults(form)
	req, err := invoicing.ToAPI(book, form, rates)
	if err != nil {
		return nil, err
	}

	sub := &models.InvoiceSubmission{
		Base:      models.NewBase(),
		BookID:    book.BookID,
		UserID:    userID,
		InvoiceID: strings.TrimSpace(invoiceID),
		Request:   req,
		Totals:    invoicing.CalculateTotals(form.LineItems, rates),
		Status:    models.SubmissionQueued,
		EmailTo:   strings.TrimSpace(emailTo),
	}
	if err := s.submissions.Insert(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to record submission: %w", err)
	}

	if err := s.queue.EnqueueSubmitInvoice(ctx, sub.ID); err != nil {
		if markErr := s.MarkSubmissionFailed(ctx, sub.ID, "enqueue failed: "+err.Error(), true); markErr != nil {
			log.Printf("ERROR marking submission %s failed after enqueue error: %v", sub.ID, markErr)
		}
		return nil, fmt.Errorf("failed to queue submission %s: %w", sub.ID, err)
	}

	log.Printf("Queued submission %s (invoice %q, total %s) for book %s", sub.ID, sub.InvoiceID, req.Total, book.BookID)
	return sub, nil
}

// GetSubmission returns a submission visible to the book.
func (s *invoiceService) GetSubmission(ctx context.Context, book invoicing.BookContext, id string) (*models.InvoiceSubmission, error) {
	if err := book.Require(); err != nil {
		return nil, err
	}
	return s.submissions.Find(ctx, bson.M{"_id": id, "book_id": book.BookID})
}

// LoadForEdit fetches a stored invoice and maps it back to form values with freshly computed totals.
func (s *invoiceService) LoadForEdit(ctx context.Context, book invoicing.BookContext, invoiceID string) (invoicing.InvoiceFormValues, invoicing.InvoiceTotals, error) {
	rates, err := s.taxRates.Table(ctx, book)
	if err != nil {
		return invoicing.InvoiceFormValues{}, invoicing.InvoiceTotals{}, err
	}
	rec, err := s.client.GetInvoice(ctx, book, invoiceID)
	if err != nil {
		if accounting.IsNotFound(err) {
			return invoicing.InvoiceFormValues{}, invoicing.InvoiceTotals{}, fmt.Errorf("invoice %s: %w", invoiceID, ErrNotFound)
		}
		return invoicing.InvoiceFormValues{}, invoicing.InvoiceTotals{}, fmt.Errorf("failed to fetch invoice %s: %w", invoiceID, err)
	}
	return invoicing.FromAPI(book, *rec, rates)
}

// RequestPDF queues rendering of the invoice PDF, mailing the link when emailTo is set.
func (s *invoiceService) RequestPDF(ctx context.Context, book invoicing.BookContext, invoiceID, emailTo string) error {
	if err := book.Require(); err != nil {
		return err
	}
	if strings.TrimSpace(invoiceID) == "" {
		return fmt.Errorf("invoice: %w", ErrNotFound)
	}
	if err := s.queue.EnqueueRenderPDF(ctx, book, invoiceID, strings.TrimSpace(emailTo)); err != nil {
		return fmt.Errorf("failed to queue PDF for invoice %s: %w", invoiceID, err)
	}
	return nil
}

func (s *invoiceService) FindSubmission(ctx context.Context, id string) (*models.InvoiceSubmission, error) {
	return s.submissions.Find(ctx, bson.M{"_id": id})
}

func (s *invoiceService) MarkSubmissionSent(ctx context.Context, id, invoiceID string) error {
	now := time.Now().UTC()
	return s.submissions.Update(ctx, id, bson.M{
		"status":     models.SubmissionSent,
		"invoice_id": invoiceID,
		"last_error": "",
		"sent_at":    now,
		"updated_at": now,
	}, bson.M{"attempts": 1})
}

// MarkSubmissionFailed records a failed attempt. Only a final failure changes the status.
func (s *invoiceService) MarkSubmissionFailed(ctx context.Context, id, reason string, final bool) error {
	set := bson.M{"last_error": reason, "updated_at": time.Now().UTC()}
	if final {
		set["status"] = models.SubmissionFailed
	}
	return s.submissions.Update(ctx, id, set, bson.M{"attempts": 1})
}

// withDefaults fills the payment terms from configuration when the form leaves them blank.
func (s *invoiceService) withDefaults(form invoicing.InvoiceFormValues) invoicing.InvoiceFormValues {
	if strings.TrimSpace(form.PaymentTerms) == "" {
		form.PaymentTerms = s.defaultTerms
	}
	return form
}

// mongoSubmissionStore keeps the submission log in invoice_submissions.
type mongoSubmissionStore struct {
	coll *mongo.Collection
}

func (m *mongoSubmissionStore) Insert(ctx context.Context, sub *models.InvoiceSubmission) error {
	_, err := m.coll.InsertOne(ctx, sub)
	return err
}

func (m *mongoSubmissionStore) Find(ctx context.Context, filter bson.M) (*models.InvoiceSubmission, error) {
	var sub models.InvoiceSubmission
	err := m.coll.FindOne(ctx, filter).Decode(&sub)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("submission: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	return &sub, nil
}

func (m *mongoSubmissionStore) Update(ctx context.Context, id string, set bson.M, inc bson.M) error {
	update := bson.M{"$set": set}
	if len(inc) > 0 {
		update["$inc"] = inc
	}
	res, err := m.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update submission %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	return nil
}
