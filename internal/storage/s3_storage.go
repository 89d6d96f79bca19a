package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"ledgerly/einvoice/internal/config"
)

const pdfContentType = "application/pdf"

// IS3Storage stores rendered invoice documents.
type IS3Storage interface {
	UploadInvoicePDF(ctx context.Context, bookID, invoiceID string, data []byte) (string, error)
	PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// s3API is the part of *s3.Client the storage uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// s3Storage implements IS3Storage.
type s3Storage struct {
	bucket        string
	s3Client      s3API
	presignClient *s3.PresignClient
}

// NewS3Storage creates a new S3 storage service.
func NewS3Storage(cfg *config.Config) (IS3Storage, error) {
	if cfg.AwsS3Bucket == "" {
		return nil, fmt.Errorf("AWS_S3_BUCKET is not configured")
	}
	awsCfg, err := aws_config.LoadDefaultConfig(context.TODO(),
		aws_config.WithRegion(cfg.AwsRegion),
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	return &s3Storage{
		bucket:        cfg.AwsS3Bucket,
		s3Client:      s3Client,
		presignClient: s3.NewPresignClient(s3Client),
	}, nil
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// InvoicePDFKey builds the object key for a rendered invoice. Each render gets a fresh key.
func InvoicePDFKey(bookID, invoiceID string) string {
	return fmt.Sprintf("invoices/%s/%s/%s.pdf",
		unsafeKeyChars.ReplaceAllString(bookID, "_"),
		unsafeKeyChars.ReplaceAllString(invoiceID, "_"),
		uuid.NewString())
}

// UploadInvoicePDF stores the document and returns its object key.
func (s *s3Storage) UploadInvoicePDF(ctx context.Context, bookID, invoiceID string, data []byte) (string, error) {
	key := InvoicePDFKey(bookID, invoiceID)
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(pdfContentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload invoice PDF %s: %w", key, err)
	}
	log.Printf("Uploaded invoice PDF for invoice %s (book %s) to key %s (%d bytes)", invoiceID, bookID, key, len(data))
	return key, nil
}

// PresignedGetURL returns a time-limited download link for key.
func (s *s3Storage) PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.bucket),
		Key:                        aws.String(key),
		ResponseContentType:        aws.String(pdfContentType),
		ResponseContentDisposition: aws.String("inline"),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned GET URL for key %s: %w", key, err)
	}
	return req.URL, nil
}
