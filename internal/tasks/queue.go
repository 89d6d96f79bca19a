package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"ledgerly/einvoice/internal/config"
	"ledgerly/einvoice/internal/invoicing"
)

// Task types.
const (
	TypeSubmitInvoice = "accounting:invoice:submit"
	TypeRenderPDF     = "invoice:pdf:render"
	TypeEmailDelivery = "email:deliver"
)

// Queue names and their priorities.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// SubmitInvoicePayload references a recorded submission; the request itself stays in Mongo.
type SubmitInvoicePayload struct {
	SubmissionID string `json:"submission_id"`
}

// RenderPDFPayload asks for an invoice PDF, optionally mailed to EmailTo.
type RenderPDFPayload struct {
	BookID    string `json:"book_id"`
	InvoiceID string `json:"invoice_id"`
	EmailTo   string `json:"email_to,omitempty"`
}

// EmailTaskPayload is a templated email waiting to be sent.
type EmailTaskPayload struct {
	To         string                 `json:"to"`
	TemplateID string                 `json:"template_id"`
	Locale     string                 `json:"locale,omitempty"`
	Data       map[string]interface{} `json:"data"`
}

// IAsynqClient is the part of *asynq.Client the queue uses.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RedisOpt builds the asynq connection options from the service configuration.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

func NewClient(cfg *config.Config) *asynq.Client {
	return asynq.NewClient(RedisOpt(cfg))
}

// Queue enqueues background work. It implements services.ITaskQueue.
type Queue struct {
	client   IAsynqClient
	maxRetry int
}

func NewQueue(client IAsynqClient, maxRetry int) *Queue {
	return &Queue{client: client, maxRetry: maxRetry}
}

// EnqueueSubmitInvoice schedules delivery of a submission. The submission ID doubles as the
// task ID, so a submission is never queued twice.
func (q *Queue) EnqueueSubmitInvoice(ctx context.Context, submissionID string) error {
	return q.enqueue(ctx, TypeSubmitInvoice, SubmitInvoicePayload{SubmissionID: submissionID},
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(q.maxRetry),
		asynq.TaskID("submit:"+submissionID),
	)
}

func (q *Queue) EnqueueRenderPDF(ctx context.Context, book invoicing.BookContext, invoiceID, emailTo string) error {
	if err := book.Require(); err != nil {
		return err
	}
	return q.enqueue(ctx, TypeRenderPDF, RenderPDFPayload{BookID: book.BookID, InvoiceID: invoiceID, EmailTo: emailTo},
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(q.maxRetry),
	)
}

func (q *Queue) EnqueueEmail(ctx context.Context, payload EmailTaskPayload) error {
	return q.enqueue(ctx, TypeEmailDelivery, payload,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(q.maxRetry),
	)
}

func (q *Queue) enqueue(ctx context.Context, taskType string, payload interface{}, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}
	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(taskType, data), opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s task: %w", taskType, err)
	}
	log.Printf("Enqueued %s task %s on queue %s", taskType, info.ID, info.Queue)
	return nil
}
