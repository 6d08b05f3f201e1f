package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a completed submission can be replayed.
const DefaultTTL = 24 * time.Hour

// State is the outcome of claiming a submission key.
type State int

const (
	// StateNew means the caller owns the key and must run the handler.
	StateNew State = iota
	// StateCompleted means a stored response exists and should be replayed.
	StateCompleted
	// StateInFlight means another request holds the key.
	StateInFlight
)

// Entry is the persisted outcome of one keyed submission.
type Entry struct {
	Key         string
	Fingerprint string
	Completed   bool
	Status      int
	Headers     map[string][]string
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store persists submission keys and their responses.
type Store interface {
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Entry, error)
	Complete(ctx context.Context, key string, entry Entry) error
	Forget(ctx context.Context, key string) error
}

// ErrFingerprintMismatch is returned when a key is reused for a different request body.
var ErrFingerprintMismatch = errors.New("idempotency: key already used for a different request")

func documentID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// replayableHeaders drops hop-by-hop headers that must not be replayed.
func replayableHeaders(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "keep-alive", "transfer-encoding", "upgrade", "trailer":
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
