package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"

	"github.com/artisan-market/api/internal/services"
)

const defaultReportPrefix = "reports"

// ObjectWriter opens a writer for a new object version.
type ObjectWriter interface {
	NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser
}

// GCSWriter adapts a Cloud Storage client to ObjectWriter.
type GCSWriter struct {
	Client *gcs.Client
}

// NewWriter implements ObjectWriter.
func (w GCSWriter) NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
	writer := w.Client.Bucket(bucket).Object(object).NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "private, max-age=0"
	return writer
}

// ReportPublisherConfig wires the report publisher.
type ReportPublisherConfig struct {
	Writer ObjectWriter
	Signer *URLSigner
	Bucket string
	Prefix string
	URLTTL time.Duration
}

// ReportPublisher uploads monthly order reports and hands out signed download URLs.
type ReportPublisher struct {
	writer ObjectWriter
	signer *URLSigner
	bucket string
	prefix string
	ttl    time.Duration
}

var _ services.ReportPublisher = (*ReportPublisher)(nil)

// NewReportPublisher validates the configuration.
func NewReportPublisher(cfg ReportPublisherConfig) (*ReportPublisher, error) {
	if cfg.Writer == nil {
		return nil, errors.New("storage: report writer is required")
	}
	if cfg.Signer == nil {
		return nil, errNoSigner
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	if prefix == "" {
		prefix = defaultReportPrefix
	}
	return &ReportPublisher{
		writer: cfg.Writer,
		signer: cfg.Signer,
		bucket: bucket,
		prefix: prefix,
		ttl:    cfg.URLTTL,
	}, nil
}

// Publish uploads the report content and returns a signed URL to it. Each call overwrites the
// object so the download always reflects the archive at request time.
func (p *ReportPublisher) Publish(ctx context.Context, report services.Report) (string, error) {
	if strings.TrimSpace(report.Filename) == "" {
		return "", errInvalidObject
	}
	object := path.Join(p.prefix, report.Filename)

	writer := p.writer.NewWriter(ctx, p.bucket, object, report.ContentType)
	if _, err := writer.Write(report.Content); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage: upload %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage: finalise %s: %w", object, err)
	}

	signed, err := p.signer.SignDownload(ctx, p.bucket, object, DownloadOptions{
		ExpiresIn:    p.ttl,
		Disposition:  fmt.Sprintf("attachment; filename=%q", report.Filename),
		ResponseType: report.ContentType,
	})
	if err != nil {
		return "", err
	}
	return signed.URL, nil
}
