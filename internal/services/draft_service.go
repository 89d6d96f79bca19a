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
	"go.mongodb.org/mongo-driver/mongo/options"

	"ledgerly/einvoice/internal/config"
	"ledgerly/einvoice/internal/db"
	"ledgerly/einvoice/internal/invoicing"
	"ledgerly/einvoice/internal/models"
	"ledgerly/einvoice/internal/utils"
)

// IDraftService stores invoice forms that are still being edited.
type IDraftService interface {
	SaveDraft(ctx context.Context, book invoicing.BookContext, userID string, draft *models.InvoiceDraft) (*models.InvoiceDraft, error)
	GetDraft(ctx context.Context, book invoicing.BookContext, userID, idOrRef string) (*models.InvoiceDraft, error)
	ListDrafts(ctx context.Context, book invoicing.BookContext, userID string) ([]models.InvoiceDraft, error)
	DeleteDraft(ctx context.Context, book invoicing.BookContext, userID, id string) error
}

const maxDraftsListed = 100

// draftService implements IDraftService on the invoice_drafts collection.
type draftService struct {
	coll *mongo.Collection
	ttl  time.Duration
}

// NewDraftService creates a new DraftService.
func NewDraftService(database *mongo.Database, cfg *config.Config) IDraftService {
	return &draftService{
		coll: database.Collection(db.DraftsCollection),
		ttl:  cfg.DraftTTL,
	}
}

// SaveDraft creates the draft when it has no ID and replaces its form otherwise.
// Computed line fields are never stored.
func (s *draftService) SaveDraft(ctx context.Context, book invoicing.BookContext, userID string, draft *models.InvoiceDraft) (*models.InvoiceDraft, error) {
	if err := book.Require(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	draft.BookID = book.BookID
	draft.UserID = userID
	draft.Form.LineItems = stripComputed(draft.Form.LineItems)
	draft.ExpiresAt = now.Add(s.ttl)
	draft.Touch(now)

	if draft.ID == "" {
		draft.GenID()
		err := db.Try(func() error {
			draft.Reference = utils.NewRefCode(models.DraftRefPrefix)
			_, err := s.coll.InsertOne(ctx, draft)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to insert draft for book %s: %w", book.BookID, err)
		}
		log.Printf("Created draft %s (%s) for user %s in book %s", draft.ID, draft.Reference, userID, book.BookID)
		return draft, nil
	}

	filter := bson.M{"_id": draft.ID, "book_id": book.BookID, "user_id": userID}
	update := bson.M{"$set": bson.M{
		"form":       draft.Form,
		"invoice_id": draft.InvoiceID,
		"updated_at": draft.UpdatedAt,
		"expires_at": draft.ExpiresAt,
	}}
	var saved models.InvoiceDraft
	err := s.coll.FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&saved)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("draft %s: %w", draft.ID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update draft %s: %w", draft.ID, err)
	}
	return &saved, nil
}

// GetDraft finds a draft by ID or by its reference code.
func (s *draftService) GetDraft(ctx context.Context, book invoicing.BookContext, userID, idOrRef string) (*models.InvoiceDraft, error) {
	if err := book.Require(); err != nil {
		return nil, err
	}
	filter := bson.M{"book_id": book.BookID, "user_id": userID}
	if utils.IsRefCode(idOrRef, models.DraftRefPrefix) {
		filter["reference"] = utils.NormalizeRefCode(idOrRef)
	} else {
		filter["_id"] = strings.TrimSpace(idOrRef)
	}

	var draft models.InvoiceDraft
	err := s.coll.FindOne(ctx, filter).Decode(&draft)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("draft %s: %w", idOrRef, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft %s: %w", idOrRef, err)
	}
	return &draft, nil
}

// ListDrafts returns the user's drafts in the book, newest first.
func (s *draftService) ListDrafts(ctx context.Context, book invoicing.BookContext, userID string) ([]models.InvoiceDraft, error) {
	if err := book.Require(); err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}).SetLimit(maxDraftsListed)
	cursor, err := s.coll.Find(ctx, bson.M{"book_id": book.BookID, "user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query drafts: %w", err)
	}
	defer cursor.Close(ctx)

	drafts := []models.InvoiceDraft{}
	if err := cursor.All(ctx, &drafts); err != nil {
		return nil, fmt.Errorf("failed to decode drafts: %w", err)
	}
	return drafts, nil
}

func (s *draftService) DeleteDraft(ctx context.Context, book invoicing.BookContext, userID, id string) error {
	if err := book.Require(); err != nil {
		return err
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id, "book_id": book.BookID, "user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete draft %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	return nil
}

func stripComputed(items []invoicing.LineItem) []invoicing.LineItem {
	out := make([]invoicing.LineItem, len(items))
	for i, item := range items {
		item.ComputedAmount = ""
		item.ComputedTax = ""
		out[i] = item
	}
	return out
}
