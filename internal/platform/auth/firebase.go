package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/artisan-market/api/internal/platform/config"
)

// ProviderFirebase is reported for Firebase ID tokens whose sign-in provider is not set.
const ProviderFirebase = "firebase"

// firebaseClient is the part of the Admin SDK auth client the verifier needs.
type firebaseClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseVerifier checks Firebase Authentication ID tokens with the Admin SDK.
type FirebaseVerifier struct {
	client       firebaseClient
	checkRevoked bool
}

type FirebaseOption func(*FirebaseVerifier)

// WithRevocationCheck also rejects tokens of disabled users and revoked sessions. It costs a
// round trip to the Firebase backend per request.
func WithRevocationCheck() FirebaseOption {
	return func(v *FirebaseVerifier) {
		v.checkRevoked = true
	}
}

// NewFirebaseVerifier initialises a Firebase app for cfg.ProjectID.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig, opts ...FirebaseOption) (*FirebaseVerifier, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, errors.New("auth: firebase project id is required")
	}
	var clientOpts []option.ClientOption
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(file))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase auth client: %w", err)
	}
	return newFirebaseVerifier(client, opts...), nil
}

func newFirebaseVerifier(client firebaseClient, opts ...FirebaseOption) *FirebaseVerifier {
	v := &FirebaseVerifier{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// VerifyIDToken implements TokenVerifier.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if v == nil || v.client == nil {
		return nil, fmt.Errorf("%w: firebase verifier not initialised", ErrVerificationUnavailable)
	}

	verify := v.client.VerifyIDToken
	if v.checkRevoked {
		verify = v.client.VerifyIDTokenAndCheckRevoked
	}
	token, err := verify(ctx, idToken)
	switch {
	case err == nil:
		return token, nil
	case firebaseauth.IsIDTokenExpired(err):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case firebaseauth.IsIDTokenInvalid(err), firebaseauth.IsIDTokenRevoked(err), firebaseauth.IsUserDisabled(err):
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	default:
		// Anything else is a malformed token or a key fetch problem; the SDK does not
		// distinguish the two, so the caller sees an invalid token.
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}
