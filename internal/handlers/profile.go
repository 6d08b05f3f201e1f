package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/artisan-market/api/internal/platform/auth"
	"github.com/artisan-market/api/internal/platform/httpx"
	"github.com/artisan-market/api/internal/services"
)

const maxProfileBodySize = 8 * 1024

// ProfileHandlers exposes the authenticated customer's profile and contact details.
type ProfileHandlers struct {
	authn    *auth.Authenticator
	profiles services.ProfileService
}

// NewProfileHandlers constructs profile handlers.
func NewProfileHandlers(authn *auth.Authenticator, profiles services.ProfileService) *ProfileHandlers {
	return &ProfileHandlers{authn: authn, profiles: profiles}
}

// Routes registers /me and /user endpoints against the API root.
func (h *ProfileHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(group chi.Router) {
		if h.authn != nil {
			group.Use(h.authn.RequireAuth())
		}
		group.Get("/me", h.getProfile)
		group.Put("/me/address", h.updateAddress)
		group.Post("/user/phone", h.updatePhone)
	})
}

type profilePayload struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Address     string `json:"address,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Pincode     string `json:"pincode,omitempty"`
	HasPhone    bool   `json:"hasPhone"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

type updatePhoneRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type updateAddressRequest struct {
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

func (h *ProfileHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.profiles == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	profile, err := h.profiles.EnsureProfile(ctx, profileIdentity(identity))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newProfilePayload(profile))
}

func (h *ProfileHandlers) updatePhone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.profiles == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req updatePhoneRequest
	if err := decodeJSONBody(r.Body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	if _, err := h.profiles.EnsureProfile(ctx, profileIdentity(identity)); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	profile, err := h.profiles.UpdatePhone(ctx, identity.Email, req.PhoneNumber)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newProfilePayload(profile))
}

func (h *ProfileHandlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.profiles == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req updateAddressRequest
	if err := decodeJSONBody(r.Body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	if _, err := h.profiles.EnsureProfile(ctx, profileIdentity(identity)); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	profile, err := h.profiles.UpdateAddress(ctx, services.UpdateAddressCommand{
		Email:   identity.Email,
		Address: req.Address,
		City:    req.City,
		State:   req.State,
		Pincode: req.Pincode,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newProfilePayload(profile))
}

func newProfilePayload(profile services.CustomerProfile) profilePayload {
	return profilePayload{
		Email:       profile.Email,
		Name:        profile.Name,
		Role:        profile.Role,
		PhoneNumber: profile.PhoneNumber,
		Address:     profile.Address,
		City:        profile.City,
		State:       profile.State,
		Pincode:     profile.Pincode,
		HasPhone:    profile.HasPhone(),
		CreatedAt:   formatTime(profile.CreatedAt),
		UpdatedAt:   formatTime(profile.UpdatedAt),
	}
}

func decodeJSONBody(body io.Reader, dst any) error {
	if body == nil {
		return errors.New("request body is required")
	}
	decoder := json.NewDecoder(io.LimitReader(body, maxProfileBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return errors.New("invalid JSON payload")
	}
	return nil
}
