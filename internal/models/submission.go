package models

import (
	"time"

	"ledgerly/einvoice/internal/invoicing"
)

// SubmissionStatus tracks an asynchronous push to the accounting API.
type SubmissionStatus string

const (
	SubmissionQueued SubmissionStatus = "queued"
	SubmissionSent   SubmissionStatus = "sent"
	SubmissionFailed SubmissionStatus = "failed"
)

// InvoiceSubmission records one create or update request queued for the accounting API.
type InvoiceSubmission struct {
	Base      `bson:",inline"`
	BookID    string                   `bson:"book_id" json:"book_id"`
	UserID    string                   `bson:"user_id" json:"user_id"`
	InvoiceID string                   `bson:"invoice_id,omitempty" json:"invoice_id,omitempty"` // empty until the API assigns one on create
	Request   invoicing.InvoiceRequest `bson:"request" json:"request"`
	Totals    invoicing.InvoiceTotals  `bson:"totals" json:"totals"`
	Status    SubmissionStatus         `bson:"status" json:"status"`
	Attempts  int                      `bson:"attempts" json:"attempts"`
	LastError string                   `bson:"last_error,omitempty" json:"last_error,omitempty"`
	EmailTo   string                   `bson:"email_to,omitempty" json:"email_to,omitempty"` // PDF recipient once sent
	SentAt    *time.Time               `bson:"sent_at,omitempty" json:"sent_at,omitempty"`
}

// IsCreate reports whether the submission creates a new invoice rather than updating one.
func (s *InvoiceSubmission) IsCreate() bool {
	return s.InvoiceID == ""
}
