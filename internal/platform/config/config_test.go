package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "artisan-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.BasePath != "/api" {
		t.Errorf("expected default base path /api, got %s", cfg.Server.BasePath)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "artisan-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Repository.Backend != RepositoryFirestore {
		t.Errorf("expected firestore repository backend, got %s", cfg.Repository.Backend)
	}
	if cfg.Notifications.Backend != NotifyBackendLog {
		t.Errorf("expected log notification backend, got %s", cfg.Notifications.Backend)
	}
	if cfg.Archive.Backend != ArchiveBackendFirestore {
		t.Errorf("expected firestore archive backend, got %s", cfg.Archive.Backend)
	}
	if cfg.Processing.NotifyTimeout != 10*time.Second || cfg.Processing.ArchiveTimeout != 10*time.Second {
		t.Errorf("unexpected processing timeouts: %+v", cfg.Processing)
	}
	if cfg.Events.KafkaTopic != defaultEventsTopic {
		t.Errorf("expected default events topic, got %s", cfg.Events.KafkaTopic)
	}
	if len(cfg.Auth.AdminEmails) != 0 {
		t.Errorf("expected no admin emails, got %v", cfg.Auth.AdminEmails)
	}
	if cfg.Auth.GoogleJWKSURL != defaultGoogleJWKSURL {
		t.Errorf("unexpected jwks url %s", cfg.Auth.GoogleJWKSURL)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_ENVIRONMENT":                "prod",
		"API_SERVER_PORT":                "9090",
		"API_SERVER_BASE_PATH":           "v1/",
		"API_SERVER_IDLE_TIMEOUT":        "2m",
		"API_FIREBASE_PROJECT_ID":        "artisan-prod",
		"API_FIRESTORE_PROJECT_ID":       "artisan-data",
		"API_AUTH_SESSION_SECRET":        "secret://auth/session",
		"API_AUTH_ADMIN_EMAILS":          "Owner@Example.com, ops@example.com",
		"API_NOTIFY_BACKEND":             "smtp",
		"API_NOTIFY_ADMIN_RECIPIENT":     "owner@example.com",
		"API_NOTIFY_SMTP_HOST":           "smtp.example.com",
		"API_NOTIFY_SMTP_PORT":           "2525",
		"API_NOTIFY_SMTP_USERNAME":       "mailer",
		"API_NOTIFY_SMTP_PASSWORD":       "sm://smtp/password",
		"API_NOTIFY_SMTP_FROM":           "orders@example.com",
		"API_ARCHIVE_BACKEND":            "pebble",
		"API_ARCHIVE_PEBBLE_DIR":         "/var/lib/archive",
		"API_REPORTS_BUCKET":             "artisan-reports",
		"API_REPORTS_URL_TTL":            "5m",
		"API_EVENTS_KAFKA_BROKERS":       "kafka-1:9092, kafka-2:9092",
		"API_PROCESSING_NOTIFY_TIMEOUT":  "3s",
		"API_PROCESSING_ARCHIVE_TIMEOUT": "4s",
		"API_TELEMETRY_OTLP_ENDPOINT":    "otel-collector:4318",
	}

	secrets := map[string]string{
		"secret://auth/session":  "session-key",
		"secret://smtp/password": "smtp-pass",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Environment != "prod" {
		t.Errorf("expected prod environment, got %s", cfg.Environment)
	}
	if cfg.Server.Port != "9090" || cfg.Server.BasePath != "/v1" {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Firestore.ProjectID != "artisan-data" {
		t.Errorf("expected explicit firestore project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Auth.SessionSecret != "session-key" {
		t.Errorf("expected resolved session secret, got %s", cfg.Auth.SessionSecret)
	}
	if got := cfg.Auth.AdminEmails; len(got) != 2 || got[0] != "owner@example.com" {
		t.Errorf("unexpected admin emails %v", got)
	}
	if cfg.Notifications.SMTP.Password != "smtp-pass" {
		t.Errorf("expected resolved smtp password, got %s", cfg.Notifications.SMTP.Password)
	}
	if cfg.Notifications.SMTP.Port != 2525 {
		t.Errorf("unexpected smtp port %d", cfg.Notifications.SMTP.Port)
	}
	if cfg.Archive.Backend != ArchiveBackendPebble || cfg.Archive.PebbleDir != "/var/lib/archive" {
		t.Errorf("unexpected archive config %+v", cfg.Archive)
	}
	if cfg.Reports.URLTTL != 5*time.Minute {
		t.Errorf("unexpected report url ttl %s", cfg.Reports.URLTTL)
	}
	if len(cfg.Events.KafkaBrokers) != 2 {
		t.Errorf("expected 2 kafka brokers, got %v", cfg.Events.KafkaBrokers)
	}
	if cfg.Processing.NotifyTimeout != 3*time.Second || cfg.Processing.ArchiveTimeout != 4*time.Second {
		t.Errorf("unexpected processing timeouts %+v", cfg.Processing)
	}
	if cfg.Telemetry.OTLPEndpoint != "otel-collector:4318" {
		t.Errorf("unexpected otlp endpoint %s", cfg.Telemetry.OTLPEndpoint)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "export API_SERVER_PORT=7070\nAPI_REPOSITORY_BACKEND=\"memory\"\nAPI_ARCHIVE_BACKEND=memory\n# comment\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Repository.Backend != RepositoryMemory {
		t.Errorf("expected memory repository from dotenv, got %s", cfg.Repository.Backend)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	if len(fields) != 1 || fields[0] != "Firestore.ProjectID" {
		t.Fatalf("expected deduplicated firestore project field, got %v", fields)
	}
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	env := map[string]string{
		"API_REPOSITORY_BACKEND": "mongo",
		"API_NOTIFY_BACKEND":     "pubsub",
		"API_ARCHIVE_BACKEND":    "xlsx",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := map[string]bool{
		"Repository.Backend":             true,
		"Notifications.PubSub.ProjectID": true,
		"Notifications.PubSub.TopicID":   true,
		"Notifications.AdminRecipient":   true,
		"Archive.Backend":                true,
	}
	for _, field := range validation.Fields() {
		delete(want, field)
	}
	if len(want) != 0 {
		t.Fatalf("missing expected fields %v in %v", want, validation.Fields())
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "artisan-dev",
		"API_AUTH_SESSION_SECRET": "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_ID", "os-secrets")

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
	}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_ID"]; got != "os-secrets" {
		t.Fatalf("expected system env value, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "artisan-dev",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Auth.SessionSecret", "Auth.SessionSecret"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if got := missing.Names(); len(got) != 1 || got[0] != "Auth.SessionSecret" {
		t.Fatalf("unexpected missing names %v", got)
	}
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != redactSecretName("Auth.SessionSecret") {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "artisan-dev",
		"API_REPORTS_SIGNER_KEY":  "sm://reports/signer",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://reports/signer" {
			return "{\"client_email\":\"x\"}", nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Reports.SignerKey != "{\"client_email\":\"x\"}" {
		t.Fatalf("expected resolved signer key, got %s", cfg.Reports.SignerKey)
	}
}
