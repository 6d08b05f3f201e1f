package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/artisan-market/api/internal/domain"
	pfirestore "github.com/artisan-market/api/internal/platform/firestore"
	"github.com/artisan-market/api/internal/repositories"
)

const profilesCollection = "users"

// ProfileRepository stores customer profiles keyed by lower-cased email.
type ProfileRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.Collection[profileDocument]
	now      func() time.Time
}

var _ repositories.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository constructs a Firestore-backed profile repository.
func NewProfileRepository(provider *pfirestore.Provider) (*ProfileRepository, error) {
	if provider == nil {
		return nil, errors.New("profile repository requires firestore provider")
	}
	base := pfirestore.NewCollection[profileDocument](provider, profilesCollection)
	return &ProfileRepository{provider: provider, base: base, now: time.Now}, nil
}

func (r *ProfileRepository) Get(ctx context.Context, email string) (domain.CustomerProfile, error) {
	key := profileKey(email)
	if key == "" {
		return domain.CustomerProfile{}, errors.New("profile email is required")
	}
	doc, err := r.base.Get(ctx, key)
	if err != nil {
		return domain.CustomerProfile{}, err
	}
	profile := doc.Data.toDomain(key)
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = doc.CreateTime
	}
	return profile, nil
}

// Upsert keeps the original creation time of an existing profile.
func (r *ProfileRepository) Upsert(ctx context.Context, profile domain.CustomerProfile) (domain.CustomerProfile, error) {
	key := profileKey(profile.Email)
	if key == "" {
		return domain.CustomerProfile{}, errors.New("profile email is required")
	}

	now := r.now().UTC()
	var saved domain.CustomerProfile
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.Doc(ctx, key)
		if err != nil {
			return err
		}
		doc := newProfileDocument(profile)
		doc.CreatedAt = now
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var existing profileDocument
			if err := snap.DataTo(&existing); err == nil && !existing.CreatedAt.IsZero() {
				doc.CreatedAt = existing.CreatedAt
			}
		case status.Code(err) != codes.NotFound:
			return err
		}
		doc.UpdatedAt = now
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		saved = doc.toDomain(key)
		return nil
	}, pfirestore.WithTxName("users.upsert"))
	if err != nil {
		return domain.CustomerProfile{}, pfirestore.WrapError("users.upsert", err)
	}
	return saved, nil
}

type profileDocument struct {
	Name        string    `firestore:"name"`
	Role        string    `firestore:"role"`
	PhoneNumber string    `firestore:"phoneNumber"`
	Address     string    `firestore:"address"`
	City        string    `firestore:"city"`
	State       string    `firestore:"state"`
	Pincode     string    `firestore:"pincode"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func newProfileDocument(profile domain.CustomerProfile) profileDocument {
	return profileDocument{
		Name:        strings.TrimSpace(profile.Name),
		Role:        strings.TrimSpace(profile.Role),
		PhoneNumber: strings.TrimSpace(profile.PhoneNumber),
		Address:     strings.TrimSpace(profile.Address),
		City:        strings.TrimSpace(profile.City),
		State:       strings.TrimSpace(profile.State),
		Pincode:     strings.TrimSpace(profile.Pincode),
	}
}

func (d profileDocument) toDomain(email string) domain.CustomerProfile {
	return domain.CustomerProfile{
		Email:       email,
		Name:        d.Name,
		Role:        d.Role,
		PhoneNumber: d.PhoneNumber,
		Address:     d.Address,
		City:        d.City,
		State:       d.State,
		Pincode:     d.Pincode,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

func profileKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
