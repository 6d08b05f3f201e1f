package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/artisan-market/api/internal/platform/firestore"
)

const defaultCollection = "order_submissions"

// FirestoreStore keeps submission keys in a Firestore collection. Configure a TTL policy on
// expires_at to reap stale documents.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

// NewFirestoreStore constructs a store writing to collection, or order_submissions when empty.
func NewFirestoreStore(provider *pfirestore.Provider, collection string) *FirestoreStore {
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{provider: provider, collection: collection}
}

func (s *FirestoreStore) doc(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(documentID(key)), nil
}

func (s *FirestoreStore) Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Entry, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	ref, err := s.doc(ctx, key)
	if err != nil {
		return 0, Entry{}, err
	}

	var (
		state State
		entry Entry
	)
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			var doc submissionDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			existing := doc.toEntry()
			if !existing.expired(now) {
				if existing.Fingerprint != fingerprint {
					return ErrFingerprintMismatch
				}
				state, entry = StateInFlight, existing
				if existing.Completed {
					state = StateCompleted
				}
				return nil
			}
		}

		entry = Entry{Key: key, Fingerprint: fingerprint, CreatedAt: now, ExpiresAt: now.Add(ttl)}
		state = StateNew
		return tx.Set(ref, newSubmissionDocument(entry))
	}, pfirestore.WithTxName("orderSubmissions.claim"))
	if err != nil {
		return 0, Entry{}, err
	}
	return state, entry, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, key string, entry Entry) error {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var doc submissionDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if doc.Fingerprint != entry.Fingerprint {
				return ErrFingerprintMismatch
			}
			entry.CreatedAt = doc.CreatedAt
		}
		entry.Key = key
		entry.Completed = true
		return tx.Set(ref, newSubmissionDocument(entry))
	}, pfirestore.WithTxName("orderSubmissions.complete"))
}

func (s *FirestoreStore) Forget(ctx context.Context, key string) error {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return pfirestore.WrapError("idempotency.forget", err)
	}
	return nil
}

type submissionDocument struct {
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	Completed   bool                `firestore:"completed"`
	Status      int                 `firestore:"responseStatus"`
	Headers     map[string][]string `firestore:"responseHeaders,omitempty"`
	Body        []byte              `firestore:"responseBody,omitempty"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	ExpiresAt   time.Time           `firestore:"expires_at"`
}

func newSubmissionDocument(e Entry) submissionDocument {
	return submissionDocument{
		Key:         e.Key,
		Fingerprint: e.Fingerprint,
		Completed:   e.Completed,
		Status:      e.Status,
		Headers:     e.Headers,
		Body:        e.Body,
		CreatedAt:   e.CreatedAt,
		ExpiresAt:   e.ExpiresAt,
	}
}

func (d submissionDocument) toEntry() Entry {
	return Entry{
		Key:         d.Key,
		Fingerprint: d.Fingerprint,
		Completed:   d.Completed,
		Status:      d.Status,
		Headers:     d.Headers,
		Body:        d.Body,
		CreatedAt:   d.CreatedAt,
		ExpiresAt:   d.ExpiresAt,
	}
}
