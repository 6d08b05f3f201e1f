package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	jwt "github.com/golang-jwt/jwt/v4"
)

const (
	// ProviderSession marks identities established by storefront session tokens.
	ProviderSession = "session"

	defaultSessionIssuer = "artisan-market"
	defaultSessionTTL    = 24 * time.Hour
)

// SessionClaims is the payload of an HS256 storefront session token.
type SessionClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SessionVerifier issues and verifies HS256 session tokens signed with a shared secret.
type SessionVerifier struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// SessionOption customises SessionVerifier behaviour.
type SessionOption func(*SessionVerifier)

// WithSessionTTL overrides the lifetime of issued tokens.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(v *SessionVerifier) {
		if ttl > 0 {
			v.ttl = ttl
		}
	}
}

// WithSessionIssuer overrides the iss claim written and expected by the verifier.
func WithSessionIssuer(issuer string) SessionOption {
	return func(v *SessionVerifier) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			v.issuer = issuer
		}
	}
}

// WithSessionClock injects the clock used when issuing tokens.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(v *SessionVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewSessionVerifier constructs a verifier for tokens signed with secret.
func NewSessionVerifier(secret string, opts ...SessionOption) (*SessionVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: session secret is required")
	}
	v := &SessionVerifier{
		secret: []byte(secret),
		issuer: defaultSessionIssuer,
		ttl:    defaultSessionTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Issue signs a session token for the given customer.
func (v *SessionVerifier) Issue(email, name, role string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", errors.New("auth: session email is required")
	}
	role = normaliseRole(role)
	if role == "" {
		role = RoleUser
	}

	now := v.now().UTC()
	claims := SessionClaims{
		Email: email,
		Name:  strings.TrimSpace(name),
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign session token: %w", err)
	}
	return signed, nil
}

// VerifyIDToken validates an HS256 session token and converts it to the shared token shape.
func (v *SessionVerifier) VerifyIDToken(_ context.Context, raw string) (*firebaseauth.Token, error) {
	if v == nil {
		return nil, errors.New("auth: session verifier not initialised")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &SessionClaims{}
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrTokenInvalid, claims.Issuer)
	}

	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return nil, fmt.Errorf("%w: session token without email", ErrTokenInvalid)
	}

	token := &firebaseauth.Token{
		Issuer:  claims.Issuer,
		Subject: email,
		UID:     email,
		Claims: map[string]interface{}{
			"email": email,
			"name":  claims.Name,
			"role":  claims.Role,
		},
		Firebase: firebaseauth.FirebaseInfo{SignInProvider: ProviderSession},
	}
	if claims.ExpiresAt != nil {
		token.Expires = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		token.IssuedAt = claims.IssuedAt.Unix()
	}
	return token, nil
}
