package models

import (
	"time"

	"ledgerly/einvoice/internal/invoicing"
)

// DraftRefPrefix prefixes every draft reference code.
const DraftRefPrefix = "DRF"

// InvoiceDraft is a saved, not yet submitted invoice form.
type InvoiceDraft struct {
	Base      `bson:",inline"`
	BookID    string                      `bson:"book_id" json:"book_id"`
	UserID    string                      `bson:"user_id" json:"user_id"`
	Reference string                      `bson:"reference" json:"reference"` // e.g. "DRF-7K2Q9M"
	// InvoiceID is set when the draft edits an existing invoice.
	InvoiceID string                      `bson:"invoice_id,omitempty" json:"invoice_id,omitempty"`
	Form      invoicing.InvoiceFormValues `bson:"form" json:"form"`
	ExpiresAt time.Time                   `bson:"expires_at" json:"expires_at"`
}
