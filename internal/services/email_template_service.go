package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ledgerly/einvoice/internal/db"
	"ledgerly/einvoice/internal/models"
)

// Template IDs used by the background worker.
const (
	TemplateInvoicePDF    = "invoice_pdf"
	DefaultTemplateLocale = "en-US"
)

// Default email templates used as fallback when not found in database
var defaultEmailTemplates = map[string]models.EmailTemplate{
	TemplateInvoicePDF: {
		TemplateID: TemplateInvoicePDF,
		Locale:     DefaultTemplateLocale,
		Subject:    "Invoice {{.invoice_number}} from {{.app_name}}",
		Body: "Hello,\n\nInvoice {{.invoice_number}} for {{.total}} is ready.\n" +
			"Download it here (link valid for {{.link_ttl}}): {{.pdf_url}}\n\nThank you for your business.",
	},
}

// IEmailTemplateService defines the interface for email template operations.
type IEmailTemplateService interface {
	GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
}

// EmailTemplateService handles operations related to email templates
type EmailTemplateService struct {
	db *mongo.Database
}

// NewEmailTemplateService creates a new instance of EmailTemplateService
func NewEmailTemplateService(db *mongo.Database) *EmailTemplateService {
	return &EmailTemplateService{
		db: db,
	}
}

// GetTemplate retrieves an email template by ID and locale, falling back to the built-in template.
func (s *EmailTemplateService) GetTemplate(ctx context.Context, templateID string, locale string) (*models.EmailTemplate, error) {
	if s.db != nil {
		filter := bson.M{"template_id": templateID, "locale": locale}
		var template models.EmailTemplate
		err := s.db.Collection(db.EmailTemplatesCollection).FindOne(ctx, filter).Decode(&template)
		if err == nil {
			return &template, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("error retrieving template: %w", err)
		}
	}

	if defaultTemplate, ok := defaultEmailTemplates[templateID]; ok {
		return &defaultTemplate, nil
	}
	return nil, fmt.Errorf("template %s (locale: %s): %w", templateID, locale, ErrNotFound)
}

// SaveTemplate saves an email template to the database
func (s *EmailTemplateService) SaveTemplate(ctx context.Context, template *models.EmailTemplate) error {
	filter := bson.M{
		"template_id": template.TemplateID,
		"locale":      template.Locale,
	}
	template.Touch(time.Now().UTC())

	update := bson.M{
		"$set": bson.M{
			"subject":    template.Subject,
			"body":       template.Body,
			"updated_at": template.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"created_at": template.CreatedAt,
		},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := s.db.Collection(db.EmailTemplatesCollection).UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("error saving template: %w", err)
	}
	return nil
}
