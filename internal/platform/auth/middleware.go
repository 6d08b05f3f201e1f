package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/artisan-market/api/internal/platform/httpx"
	"github.com/artisan-market/api/internal/platform/requestctx"
)

const defaultVerifyTimeout = 5 * time.Second

var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: token invalid")
	// ErrVerificationUnavailable means the token could not be checked at all, e.g. the JWKS
	// endpoint is down. Requests fail with 503 rather than 401.
	ErrVerificationUnavailable = errors.New("auth: verification unavailable")
)

// TokenVerifier turns a bearer token into decoded claims. Session, Google and Firebase tokens
// are all normalised to the Admin SDK token shape.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator guards routes with bearer token verification and role checks.
type Authenticator struct {
	verifier     TokenVerifier
	metrics      MetricsRecorder
	now          func() time.Time
	claims       claimSet
	adminEmails  map[string]struct{}
	fallbackRole string
	timeout      time.Duration
}

type Option func(*Authenticator)

// WithAdminEmails grants the admin role to these addresses whatever their token says.
func WithAdminEmails(emails ...string) Option {
	return func(a *Authenticator) {
		for _, email := range emails {
			if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
				a.adminEmails[email] = struct{}{}
			}
		}
	}
}

// WithRoleClaim reads roles from claim instead of "role".
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.claims.role = claim
		}
	}
}

func WithMetrics(recorder MetricsRecorder) Option {
	return func(a *Authenticator) {
		a.metrics = recorder
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:     verifier,
		now:          time.Now,
		claims:       defaultClaims,
		adminEmails:  make(map[string]struct{}),
		fallbackRole: RoleUser,
		timeout:      defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireAdmin is RequireAuth(RoleAdmin).
func (a *Authenticator) RequireAdmin() func(http.Handler) http.Handler {
	return a.RequireAuth(RoleAdmin)
}

// RequireAuth admits requests carrying a verified bearer token with an email claim. When roles
// are given the caller must hold at least one of them, otherwise the request fails with 403.
func (a *Authenticator) RequireAuth(roles ...string) func(http.Handler) http.Handler {
	var allowed []string
	for _, role := range roles {
		if role = normaliseRole(role); role != "" {
			allowed = append(allowed, role)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeRejection(ctx, w, rejection{http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid", "missing_token"})
				return
			}
			if a == nil || a.verifier == nil {
				writeRejection(ctx, w, rejection{http.StatusServiceUnavailable, "verification_unavailable", "authorization service unavailable", "no_verifier"})
				return
			}

			start := a.now()
			identity, rejected := a.authenticate(ctx, raw, allowed)
			provider := ""
			if identity != nil {
				provider = identity.Provider
			}
			if rejected != nil {
				a.record(ctx, provider, false, rejected.reason, start)
				writeRejection(ctx, w, *rejected)
				return
			}

			requestctx.SetPrincipal(ctx, identity.UID)
			a.record(ctx, provider, true, "ok", start)
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

// rejection is an authentication failure as reported to the caller and to metrics.
type rejection struct {
	status  int
	code    string
	message string
	reason  string
}

func (a *Authenticator) authenticate(ctx context.Context, raw string, allowed []string) (*Identity, *rejection) {
	verifyCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	token, err := a.verifier.VerifyIDToken(verifyCtx, raw)
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenExpired):
		return nil, &rejection{http.StatusUnauthorized, "token_expired", "token expired", "token_expired"}
	case errors.Is(err, ErrVerificationUnavailable):
		return nil, &rejection{http.StatusServiceUnavailable, "verification_unavailable", "token verification unavailable", "verifier_unavailable"}
	default:
		return nil, &rejection{http.StatusUnauthorized, "invalid_token", "token verification failed", "token_invalid"}
	}

	identity := a.claims.identity(token)
	if identity.Email == "" {
		return identity, &rejection{http.StatusUnauthorized, "invalid_token", "token does not carry an email", "email_missing"}
	}
	if len(identity.Roles) == 0 {
		identity.Roles = []string{a.fallbackRole}
	}
	if _, ok := a.adminEmails[identity.Email]; ok && !identity.IsAdmin() {
		identity.Roles = append(identity.Roles, RoleAdmin)
	}
	if len(allowed) > 0 && !holdsAny(identity, allowed) {
		return identity, &rejection{http.StatusForbidden, "insufficient_role", "identity does not have required role", "insufficient_role"}
	}
	return identity, nil
}

func holdsAny(identity *Identity, roles []string) bool {
	for _, role := range roles {
		if identity.HasRole(role) {
			return true
		}
	}
	return false
}

func (a *Authenticator) record(ctx context.Context, provider string, success bool, reason string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordVerification(ctx, provider, success, reason, a.now().Sub(start))
	}
}

func writeRejection(ctx context.Context, w http.ResponseWriter, rej rejection) {
	if rej.status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="artisan-market"`)
	}
	httpx.WriteError(ctx, w, httpx.NewError(rej.code, rej.message, rej.status))
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
