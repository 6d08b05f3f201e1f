package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2/google"
)

// Signer produces RSA-SHA256 signatures for V4 signed URLs on behalf of a service account.
type Signer interface {
	Email() string
	SignBytes(ctx context.Context, payload []byte) ([]byte, error)
}

// ServiceAccountSigner signs locally with the private key of a service account JSON key.
type ServiceAccountSigner struct {
	email string
	keyID string
	key   *rsa.PrivateKey
}

// NewServiceAccountSigner loads a service account key. The report signer key is either the JSON
// document itself, as resolved from Secret Manager, or a path to it.
func NewServiceAccountSigner(keyOrPath string) (*ServiceAccountSigner, error) {
	keyOrPath = strings.TrimSpace(keyOrPath)
	if keyOrPath == "" {
		return nil, errors.New("storage: report signer key is empty")
	}
	raw := []byte(keyOrPath)
	if !strings.HasPrefix(keyOrPath, "{") {
		contents, err := os.ReadFile(keyOrPath)
		if err != nil {
			return nil, fmt.Errorf("storage: read report signer key: %w", err)
		}
		raw = contents
	}

	cfg, err := google.JWTConfigFromJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("storage: parse report signer key: %w", err)
	}
	if strings.TrimSpace(cfg.Email) == "" {
		return nil, errors.New("storage: report signer key has no client_email")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("storage: report signer private key: %w", err)
	}
	return &ServiceAccountSigner{email: cfg.Email, keyID: cfg.PrivateKeyID, key: key}, nil
}

// Email is the GoogleAccessID embedded in signed URLs.
func (s *ServiceAccountSigner) Email() string {
	if s == nil {
		return ""
	}
	return s.email
}

// KeyID identifies which of the service account's keys produced a signature.
func (s *ServiceAccountSigner) KeyID() string {
	if s == nil {
		return ""
	}
	return s.keyID
}

func (s *ServiceAccountSigner) SignBytes(ctx context.Context, payload []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("storage: signer not initialised")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("storage: sign url payload: %w", err)
	}
	return sig, nil
}
