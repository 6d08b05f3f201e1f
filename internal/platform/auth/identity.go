package auth

import (
	"context"
	"slices"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is the verified caller of an authenticated route. Email is lower-cased and is the key
// customer profiles and order ownership are tracked by.
type Identity struct {
	UID      string
	Email    string
	Name     string
	Locale   string
	Provider string
	Roles    []string
}

// HasRole matches role case-insensitively.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	return role != "" && slices.ContainsFunc(i.Roles, func(held string) bool {
		return strings.EqualFold(held, role)
	})
}

// IsAdmin reports whether the caller may process orders and download reports.
func (i *Identity) IsAdmin() bool {
	return i.HasRole(RoleAdmin)
}

// claimSet names the token claims an Identity is read from.
type claimSet struct {
	email  string
	name   string
	locale string
	role   string
}

var defaultClaims = claimSet{email: "email", name: "name", locale: "locale", role: "role"}

func (c claimSet) identity(token *firebaseauth.Token) *Identity {
	provider := token.Firebase.SignInProvider
	if provider == "" {
		provider = ProviderFirebase
	}
	return &Identity{
		UID:      token.UID,
		Email:    strings.ToLower(stringClaim(token.Claims, c.email, defaultClaims.email)),
		Name:     stringClaim(token.Claims, c.name),
		Locale:   stringClaim(token.Claims, c.locale),
		Provider: provider,
		Roles:    rolesClaim(token.Claims[c.role]),
	}
}

// stringClaim returns the first non-blank string claim among keys.
func stringClaim(claims map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := claims[key].(string); ok {
			if value = strings.TrimSpace(value); value != "" {
				return value
			}
		}
	}
	return ""
}

// rolesClaim accepts a single role, a list of roles, or a map of role to enabled flag.
func rolesClaim(raw any) []string {
	var names []string
	switch v := raw.(type) {
	case string:
		names = []string{v}
	case []string:
		names = v
	case []any:
		for _, item := range v {
			if name, ok := item.(string); ok {
				names = append(names, name)
			}
		}
	case map[string]any:
		for name, enabled := range v {
			if on, _ := enabled.(bool); on {
				names = append(names, name)
			}
		}
		slices.Sort(names)
	}

	roles := make([]string, 0, len(names))
	for _, name := range names {
		if role := normaliseRole(name); role != "" && !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	return roles
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

type identityKey struct{}

// WithIdentity attaches the verified caller to ctx.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the caller stored by RequireAuth.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}
