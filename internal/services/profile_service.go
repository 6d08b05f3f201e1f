package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	domain "github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/repositories"
)

var (
	phonePattern   = regexp.MustCompile(`^[0-9]{10}$`)
	pincodePattern = regexp.MustCompile(`^[0-9]{6}$`)
)

// ProfileServiceDeps bundles the collaborators required to construct a profile service.
type ProfileServiceDeps struct {
	Profiles repositories.ProfileRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type profileService struct {
	profiles repositories.ProfileRepository
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

var _ ProfileService = (*profileService)(nil)

func NewProfileService(deps ProfileServiceDeps) (ProfileService, error) {
	if deps.Profiles == nil {
		return nil, errors.New("profile service: profile repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &profileService{
		profiles: deps.Profiles,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// EnsureProfile returns the stored profile, creating it from the identity on first sight.
func (s *profileService) EnsureProfile(ctx context.Context, identity ProfileIdentity) (CustomerProfile, error) {
	email := normaliseEmail(identity.Email)
	if email == "" {
		return CustomerProfile{}, newValidationError("email", "is required")
	}

	profile, err := s.profiles.Get(ctx, email)
	switch {
	case err == nil:
		if strings.TrimSpace(profile.Name) != "" || strings.TrimSpace(identity.Name) == "" {
			return profile, nil
		}
		profile.Name = strings.TrimSpace(identity.Name)
	case isRepoNotFound(err):
		role := strings.TrimSpace(identity.Role)
		if role == "" {
			role = domain.RoleCustomer
		}
		profile = CustomerProfile{
			Email:     email,
			Name:      strings.TrimSpace(identity.Name),
			Role:      role,
			CreatedAt: s.clock(),
		}
		s.logger(ctx, "profiles.created", map[string]any{"email": email})
	default:
		return CustomerProfile{}, fmt.Errorf("load profile: %w", err)
	}

	profile.UpdatedAt = s.clock()
	return s.profiles.Upsert(ctx, profile)
}

func (s *profileService) UpdatePhone(ctx context.Context, email string, phone string) (CustomerProfile, error) {
	email = normaliseEmail(email)
	if email == "" {
		return CustomerProfile{}, newValidationError("email", "is required")
	}
	phone = strings.TrimSpace(phone)
	if !phonePattern.MatchString(phone) {
		return CustomerProfile{}, newValidationError("phone_number", "must be exactly 10 digits")
	}

	profile, err := s.load(ctx, email)
	if err != nil {
		return CustomerProfile{}, err
	}
	profile.PhoneNumber = phone
	profile.UpdatedAt = s.clock()
	return s.profiles.Upsert(ctx, profile)
}

func (s *profileService) UpdateAddress(ctx context.Context, cmd UpdateAddressCommand) (CustomerProfile, error) {
	email := normaliseEmail(cmd.Email)
	if email == "" {
		return CustomerProfile{}, newValidationError("email", "is required")
	}
	address := strings.TrimSpace(cmd.Address)
	if address == "" {
		return CustomerProfile{}, newValidationError("address", "is required")
	}
	pincode := strings.TrimSpace(cmd.Pincode)
	if pincode != "" && !pincodePattern.MatchString(pincode) {
		return CustomerProfile{}, newValidationError("pincode", "must be 6 digits")
	}

	profile, err := s.load(ctx, email)
	if err != nil {
		return CustomerProfile{}, err
	}
	profile.Address = address
	profile.City = strings.TrimSpace(cmd.City)
	profile.State = strings.TrimSpace(cmd.State)
	profile.Pincode = pincode
	profile.UpdatedAt = s.clock()
	return s.profiles.Upsert(ctx, profile)
}

func (s *profileService) load(ctx context.Context, email string) (CustomerProfile, error) {
	profile, err := s.profiles.Get(ctx, email)
	if err != nil {
		if isRepoNotFound(err) {
			return CustomerProfile{}, &NotFoundError{Resource: "profile", ID: email, Err: err}
		}
		return CustomerProfile{}, fmt.Errorf("load profile: %w", err)
	}
	return profile, nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
