package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	defaultDownloadExpiry = 5 * time.Minute
	maxDownloadExpiry     = 7 * 24 * time.Hour
)

var (
	errNoSigner       = errors.New("storage: signer is required")
	errInvalidBucket  = errors.New("storage: bucket name is required")
	errInvalidObject  = errors.New("storage: object name is required")
	errExpiryTooLong  = errors.New("storage: expiry exceeds permitted maximum")
	errMethodRejected = errors.New("storage: only GET and HEAD downloads can be signed")
)

// URLSigner generates V4 signed download URLs backed by a Signer.
type URLSigner struct {
	signer Signer
	now    func() time.Time
}

// SignerOption customises URLSigner behaviour.
type SignerOption func(*URLSigner)

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) SignerOption {
	return func(s *URLSigner) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewURLSigner constructs a signed URL generator.
func NewURLSigner(signer Signer, opts ...SignerOption) (*URLSigner, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	s := &URLSigner{signer: signer, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// DownloadOptions control response behaviour of the signed URL.
type DownloadOptions struct {
	Method       string
	ExpiresIn    time.Duration
	Disposition  string
	ResponseType string
}

// SignedURL describes a generated URL.
type SignedURL struct {
	URL       string
	Method    string
	ExpiresAt time.Time
}

// SignDownload creates a V4 signed URL granting read access to a single object.
func (s *URLSigner) SignDownload(ctx context.Context, bucket, object string, opts DownloadOptions) (SignedURL, error) {
	if s == nil {
		return SignedURL{}, errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return SignedURL{}, errInvalidBucket
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return SignedURL{}, errInvalidObject
	}

	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = "GET"
	}
	if method != "GET" && method != "HEAD" {
		return SignedURL{}, errMethodRejected
	}

	expiry := opts.ExpiresIn
	if expiry <= 0 {
		expiry = defaultDownloadExpiry
	}
	if expiry > maxDownloadExpiry {
		return SignedURL{}, errExpiryTooLong
	}
	expiresAt := s.now().Add(expiry)

	query := map[string]string{}
	if opts.Disposition != "" {
		query["response-content-disposition"] = opts.Disposition
	}
	if opts.ResponseType != "" {
		query["response-content-type"] = opts.ResponseType
	}

	urlOpts := &storage.SignedURLOptions{
		GoogleAccessID: s.signer.Email(),
		Scheme:         storage.SigningSchemeV4,
		Method:         method,
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return s.signer.SignBytes(ctx, payload)
		},
	}
	if len(query) > 0 {
		urlOpts.QueryParameters = mapToURLValues(query)
	}

	signed, err := storage.SignedURL(bucket, object, urlOpts)
	if err != nil {
		return SignedURL{}, fmt.Errorf("storage: sign download url: %w", err)
	}
	return SignedURL{URL: signed, Method: method, ExpiresAt: expiresAt}, nil
}

func mapToURLValues(values map[string]string) url.Values {
	out := make(url.Values, len(values))
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		out.Add(key, values[key])
	}
	return out
}
