package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
	jwt "github.com/golang-jwt/jwt/v4"
)

const (
	// ProviderGoogle marks identities established by Google Sign-In ID tokens.
	ProviderGoogle = "google.com"

	// GoogleJWKSURL publishes the keys Google signs ID tokens with.
	GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
)

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// GoogleVerifier validates Google Sign-In ID tokens issued for the storefront client id.
type GoogleVerifier struct {
	cache    *JWKSCache
	clientID string
}

// NewGoogleVerifier constructs a verifier that accepts tokens whose audience is clientID.
func NewGoogleVerifier(cache *JWKSCache, clientID string) (*GoogleVerifier, error) {
	if cache == nil {
		return nil, errors.New("auth: google verifier requires a jwks cache")
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, errors.New("auth: google client id is required")
	}
	return &GoogleVerifier{cache: cache, clientID: clientID}, nil
}

// VerifyIDToken implements TokenVerifier.
func (v *GoogleVerifier) VerifyIDToken(ctx context.Context, raw string) (*firebaseauth.Token, error) {
	if v == nil || v.cache == nil {
		return nil, errors.New("auth: google verifier not initialised")
	}

	// Tokens from other issuers are rejected before the key lookup so they never force a JWKS refresh.
	unverified := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, unverified); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if issuer, _ := unverified["iss"].(string); !containsString(googleIssuers, issuer) {
		return nil, fmt.Errorf("%w: issuer %q is not google", ErrTokenInvalid, issuer)
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, v.cache.Keyfunc(ctx)); err != nil {
		switch {
		case errors.Is(err, ErrJWKSFetchFailed):
			return nil, fmt.Errorf("%w: %w", ErrVerificationUnavailable, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}

	if !containsString(audienceFromClaims(claims), v.clientID) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrTokenInvalid)
	}
	if verified, ok := claims["email_verified"].(bool); ok && !verified {
		return nil, fmt.Errorf("%w: google email not verified", ErrTokenInvalid)
	}

	issuer, _ := claims["iss"].(string)
	subject, _ := claims["sub"].(string)
	token := &firebaseauth.Token{
		Issuer:   issuer,
		Audience: v.clientID,
		Subject:  subject,
		UID:      subject,
		Claims:   cloneClaims(claims),
		Firebase: firebaseauth.FirebaseInfo{SignInProvider: ProviderGoogle},
	}
	if exp, ok := claims["exp"].(float64); ok {
		token.Expires = int64(exp)
	}
	if iat, ok := claims["iat"].(float64); ok {
		token.IssuedAt = int64(iat)
	}
	return token, nil
}

// ChainVerifier tries each verifier in order and returns the first accepted token.
type ChainVerifier []TokenVerifier

// VerifyIDToken implements TokenVerifier. When every verifier rejects the token the
// individual errors are joined so callers can still match ErrTokenExpired.
func (c ChainVerifier) VerifyIDToken(ctx context.Context, raw string) (*firebaseauth.Token, error) {
	var errs []error
	for _, verifier := range c {
		if verifier == nil {
			continue
		}
		token, err := verifier.VerifyIDToken(ctx, raw)
		if err == nil {
			return token, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no token verifier configured", ErrVerificationUnavailable)
	}
	return nil, errors.Join(errs...)
}

func audienceFromClaims(claims jwt.MapClaims) []string {
	raw, ok := claims["aud"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return []string{strings.TrimSpace(v)}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok && strings.TrimSpace(str) != "" {
				out = append(out, strings.TrimSpace(str))
			}
		}
		return out
	default:
		return nil
	}
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func cloneClaims(claims jwt.MapClaims) map[string]interface{} {
	out := make(map[string]interface{}, len(claims))
	for key, value := range claims {
		out[key] = value
	}
	return out
}
