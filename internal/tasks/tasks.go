package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"text/template"
	"time"

	"github.com/hibiken/asynq"

	"ledgerly/einvoice/internal/accounting"
	"ledgerly/einvoice/internal/config"
	"ledgerly/einvoice/internal/email"
	"ledgerly/einvoice/internal/invoicing"
	"ledgerly/einvoice/internal/models"
	"ledgerly/einvoice/internal/pdf"
	"ledgerly/einvoice/internal/services"
	"ledgerly/einvoice/internal/storage"
)

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg                  *config.Config
	emailSender          email.Sender
	storageService       storage.IS3Storage
	invoiceService       services.IInvoiceService
	taxRateService       services.ITaxRateService
	accountingClient     accounting.IClient
	emailTemplateService services.IEmailTemplateService
	queue                *Queue
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	storageService storage.IS3Storage,
	invoiceService services.IInvoiceService,
	taxRateService services.ITaxRateService,
	accountingClient accounting.IClient,
	emailTemplateService services.IEmailTemplateService,
	queue *Queue,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:                  cfg,
		emailSender:          emailSender,
		storageService:       storageService,
		invoiceService:       invoiceService,
		taxRateService:       taxRateService,
		accountingClient:     accountingClient,
		emailTemplateService: emailTemplateService,
		queue:                queue,
	}
}

// SetupServer configures the Asynq server and its handlers. The caller runs it.
func SetupServer(redisOpt asynq.RedisClientOpt, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
				QueueLow:      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				log.Printf("[Asynq Error] Task Type: %s, Attempt: %d/%d, Payload: %s, Error: %v", task.Type(), retried+1, maxRetry+1, string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSubmitInvoice, processor.HandleSubmitInvoiceTask)
	mux.HandleFunc(TypeRenderPDF, processor.HandleRenderPDFTask)
	mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
	fmt.Println("Registered background task handlers (submit, pdf, email).")
	return srv, mux
}

// lastAttempt reports whether the running task will not be retried after a failure.
func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return ok && retried >= maxRetry
}

// --- Task Handlers ---

// HandleSubmitInvoiceTask pushes a recorded submission to the accounting API.
func (p *TaskProcessor) HandleSubmitInvoiceTask(ctx context.Context, t *asynq.Task) error {
	var payload SubmitInvoicePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal submit payload: %v: %w", err, asynq.SkipRetry)
	}

	sub, err := p.invoiceService.FindSubmission(ctx, payload.SubmissionID)
	if errors.Is(err, services.ErrNotFound) {
		log.Printf("Submission %s no longer exists, dropping task", payload.SubmissionID)
		return fmt.Errorf("submission %s not found: %w", payload.SubmissionID, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	if sub.Status == models.SubmissionSent {
		log.Printf("Submission %s already sent as invoice %s, skipping", sub.ID, sub.InvoiceID)
		return nil
	}
	if sub.Status == models.SubmissionFailed {
		log.Printf("Submission %s already failed permanently, skipping", sub.ID)
		return nil
	}

	book := invoicing.BookContext{BookID: sub.BookID}
	apiCtx := accounting.WithIdempotencyKey(ctx, sub.ID)

	var rec *invoicing.InvoiceRecord
	if sub.IsCreate() {
		rec, err = p.accountingClient.CreateInvoice(apiCtx, book, sub.Request)
	} else {
		rec, err = p.accountingClient.UpdateInvoice(apiCtx, book, sub.InvoiceID, sub.Request)
	}
	if err != nil {
		var perr *invoicing.PreconditionError
		permanent := accounting.IsPermanent(err) || errors.As(err, &perr)
		if markErr := p.invoiceService.MarkSubmissionFailed(ctx, sub.ID, err.Error(), permanent || lastAttempt(ctx)); markErr != nil {
			log.Printf("ERROR recording failed attempt for submission %s: %v", sub.ID, markErr)
		}
		if permanent {
			return fmt.Errorf("accounting API rejected submission %s: %v: %w", sub.ID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("submission %s: %w", sub.ID, err)
	}

	invoiceID := sub.InvoiceID
	if rec != nil && rec.ID != "" {
		invoiceID = rec.ID
	}
	// The invoice exists now; retrying the task would only repeat the request.
	if err := p.invoiceService.MarkSubmissionSent(ctx, sub.ID, invoiceID); err != nil {
		log.Printf("ERROR marking submission %s sent (invoice %s): %v", sub.ID, invoiceID, err)
	}
	log.Printf("Submission %s delivered as invoice %s (book %s)", sub.ID, invoiceID, sub.BookID)

	if sub.EmailTo != "" {
		if err := p.queue.EnqueueRenderPDF(ctx, book, invoiceID, sub.EmailTo); err != nil {
			log.Printf("ERROR queueing PDF for invoice %s after submission %s: %v", invoiceID, sub.ID, err)
		}
	}
	return nil
}

// HandleRenderPDFTask renders an invoice, stores it in S3 and optionally emails the link.
func (p *TaskProcessor) HandleRenderPDFTask(ctx context.Context, t *asynq.Task) error {
	var payload RenderPDFPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal pdf payload: %v: %w", err, asynq.SkipRetry)
	}
	book := invoicing.BookContext{BookID: payload.BookID}
	if err := book.Require(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	rec, err := p.accountingClient.GetInvoice(ctx, book, payload.InvoiceID)
	if err != nil {
		if accounting.IsPermanent(err) {
			return fmt.Errorf("cannot fetch invoice %s: %v: %w", payload.InvoiceID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to fetch invoice %s: %w", payload.InvoiceID, err)
	}

	rates, err := p.taxRateService.Table(ctx, book)
	if err != nil {
		return err
	}
	form, totals, err := invoicing.FromAPI(book, *rec, rates)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	doc := pdf.NewDocument(p.cfg.AppName, *rec, form, totals)
	data, err := pdf.RenderInvoice(doc)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	key, err := p.storageService.UploadInvoicePDF(ctx, book.BookID, payload.InvoiceID, data)
	if err != nil {
		return err
	}
	if payload.EmailTo == "" {
		log.Printf("Rendered invoice %s to %s", payload.InvoiceID, key)
		return nil
	}

	url, err := p.storageService.PresignedGetURL(ctx, key, p.cfg.PdfURLTTL)
	if err != nil {
		return err
	}
	err = p.queue.EnqueueEmail(ctx, EmailTaskPayload{
		To:         payload.EmailTo,
		TemplateID: services.TemplateInvoicePDF,
		Data: map[string]interface{}{
			"invoice_number": doc.InvoiceNumber,
			"customer_name":  doc.CustomerName,
			"total":          totals.Total,
			"pdf_url":        url,
			"link_ttl":       p.cfg.PdfURLTTL.String(),
		},
	})
	if err != nil {
		return err
	}
	log.Printf("Rendered invoice %s to %s and queued email to %s", payload.InvoiceID, key, payload.EmailTo)
	return nil
}

// HandleEmailDeliveryTask renders a stored template and sends it.
func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}
	if strings.TrimSpace(payload.To) == "" {
		return fmt.Errorf("email task has no recipient: %w", asynq.SkipRetry)
	}

	locale := payload.Locale
	if locale == "" {
		locale = services.DefaultTemplateLocale
	}

	tmpl, err := p.emailTemplateService.GetTemplate(ctx, payload.TemplateID, locale)
	if err != nil {
		log.Printf("Error getting email template %s/%s: %v", payload.TemplateID, locale, err)
		return fmt.Errorf("email template %s not found: %w", payload.TemplateID, asynq.SkipRetry)
	}

	data := map[string]interface{}{"app_name": p.cfg.AppName}
	for k, v := range payload.Data {
		data[k] = v
	}
	subject, err := renderTemplate("subject", tmpl.Subject, data)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	body, err := renderTemplate("body", tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	from := p.cfg.SmtpFromAddress
	if from == "" {
		from = "noreply@example.com"
		log.Printf("Warning: SmtpFromAddress not configured, using fallback %s for email to %s", from, payload.To)
	}
	msg := email.Message{
		From:    from,
		To:      []string{payload.To},
		Subject: subject,
		Body:    body,
		Headers: map[string]string{email.TemplateHeader: payload.TemplateID},
	}

	if err := p.emailSender.Send(ctx, msg.To, subject, msg.Bytes(time.Now())); err != nil {
		log.Printf("Email sending failed for %s (template %s): %v", payload.To, payload.TemplateID, err)
		return err
	}
	log.Printf("Email task processed successfully: To=%s, Template=%s", payload.To, payload.TemplateID)
	return nil
}

// renderTemplate executes a text/template source. Unknown keys are an error.
func renderTemplate(name, src string, data map[string]interface{}) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return "", fmt.Errorf("invalid %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", name, err)
	}
	return buf.String(), nil
}
