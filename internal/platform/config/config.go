package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "8080"
	defaultBasePath         = "/api"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultShutdownTimeout  = 20 * time.Second
	defaultRepository       = RepositoryFirestore
	defaultNotifyBackend    = NotifyBackendLog
	defaultSMTPPort         = 587
	defaultArchiveBackend   = ArchiveBackendFirestore
	defaultPebbleDir        = "data/archive"
	defaultReportURLTTL     = 15 * time.Minute
	defaultEventsTopic      = "orders.events"
	defaultNotifyTimeout    = 10 * time.Second
	defaultArchiveTimeout   = 10 * time.Second
	defaultServiceName      = "artisan-market-api"
	defaultEnvironment      = "local"
	defaultGoogleJWKSURL    = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSessionTokenTTL  = 7 * 24 * time.Hour
	defaultEventsBatchDelay = 50 * time.Millisecond
)

// Repository backends.
const (
	RepositoryFirestore = "firestore"
	RepositoryMemory    = "memory"
)

// Notification backends.
const (
	NotifyBackendLog    = "log"
	NotifyBackendSMTP   = "smtp"
	NotifyBackendPubSub = "pubsub"
)

// Archive backends.
const (
	ArchiveBackendFirestore = "firestore"
	ArchiveBackendPebble    = "pebble"
	ArchiveBackendMemory    = "memory"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment   string
	Server        ServerConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Repository    RepositoryConfig
	Auth          AuthConfig
	Notifications NotificationConfig
	Archive       ArchiveConfig
	Reports       ReportConfig
	Events        EventsConfig
	Processing    ProcessingConfig
	Telemetry     TelemetryConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	BasePath        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	DatabaseID   string
	EmulatorHost string
}

// RepositoryConfig selects the persistence backend for products, orders and profiles.
type RepositoryConfig struct {
	Backend string
}

// AuthConfig groups end-user authentication settings.
type AuthConfig struct {
	SessionSecret   string
	SessionTokenTTL time.Duration
	GoogleClientID  string
	GoogleJWKSURL   string
	AdminEmails     []string
}

// NotificationConfig controls how customer and administrator notifications are delivered.
type NotificationConfig struct {
	Backend        string
	AdminRecipient string
	SMTP           SMTPConfig
	PubSub         PubSubConfig
}

// SMTPConfig carries mail relay credentials.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// PubSubConfig configures the mailer topic used by the pubsub notification backend.
type PubSubConfig struct {
	ProjectID string
	TopicID   string
}

// ArchiveConfig selects the processed-order archive store.
type ArchiveConfig struct {
	Backend   string
	PebbleDir string
}

// ReportConfig controls monthly report publishing.
type ReportConfig struct {
	Bucket    string
	SignerKey string
	URLTTL    time.Duration
}

// EventsConfig configures the domain event stream.
type EventsConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
	BatchTimeout time.Duration
}

// ProcessingConfig bounds the external side effects of order processing.
type ProcessingConfig struct {
	NotifyTimeout  time.Duration
	ArchiveTimeout time.Duration
}

// TelemetryConfig configures trace export.
type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to an empty value.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// Names returns the configuration field names of the missing secrets.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

// RedactedNames returns hashed identifiers that are safe to log.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

type lookupFunc func(key string) (string, bool)

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map. Values in the map take precedence over
// system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "Auth.SessionSecret") that must resolve to a
// non-empty value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// EnvironmentValues returns the effective environment after applying the precedence rules of
// Load (dotenv < OS env < explicit map). Callers use it to build dependencies, such as the
// secret fetcher, before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(dotEnv))
	for key, value := range dotEnv {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				continue
			}
			values[key] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the application configuration from defaults, .env overrides, environment
// variables and secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := lookupFunc(func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnv[key]
		return value, ok
	})

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "API_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			BasePath:        normalizeBasePath(stringWithDefault(lookup, "API_SERVER_BASE_PATH", defaultBasePath)),
			ReadTimeout:     durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			DatabaseID:   stringWithDefault(lookup, "API_FIRESTORE_DATABASE_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Repository: RepositoryConfig{
			Backend: strings.ToLower(stringWithDefault(lookup, "API_REPOSITORY_BACKEND", defaultRepository)),
		},
		Auth: AuthConfig{
			SessionSecret:   stringWithDefault(lookup, "API_AUTH_SESSION_SECRET", ""),
			SessionTokenTTL: durationWithDefault(lookup, "API_AUTH_SESSION_TTL", defaultSessionTokenTTL),
			GoogleClientID:  stringWithDefault(lookup, "API_AUTH_GOOGLE_CLIENT_ID", ""),
			GoogleJWKSURL:   stringWithDefault(lookup, "API_AUTH_GOOGLE_JWKS_URL", defaultGoogleJWKSURL),
			AdminEmails:     lowerAll(csvWithDefault(lookup, "API_AUTH_ADMIN_EMAILS")),
		},
		Notifications: NotificationConfig{
			Backend:        strings.ToLower(stringWithDefault(lookup, "API_NOTIFY_BACKEND", defaultNotifyBackend)),
			AdminRecipient: stringWithDefault(lookup, "API_NOTIFY_ADMIN_RECIPIENT", ""),
			SMTP: SMTPConfig{
				Host:     stringWithDefault(lookup, "API_NOTIFY_SMTP_HOST", ""),
				Port:     intWithDefault(lookup, "API_NOTIFY_SMTP_PORT", defaultSMTPPort),
				Username: stringWithDefault(lookup, "API_NOTIFY_SMTP_USERNAME", ""),
				Password: stringWithDefault(lookup, "API_NOTIFY_SMTP_PASSWORD", ""),
				From:     stringWithDefault(lookup, "API_NOTIFY_SMTP_FROM", ""),
			},
			PubSub: PubSubConfig{
				ProjectID: stringWithDefault(lookup, "API_NOTIFY_PUBSUB_PROJECT_ID", ""),
				TopicID:   stringWithDefault(lookup, "API_NOTIFY_PUBSUB_TOPIC", ""),
			},
		},
		Archive: ArchiveConfig{
			Backend:   strings.ToLower(stringWithDefault(lookup, "API_ARCHIVE_BACKEND", defaultArchiveBackend)),
			PebbleDir: stringWithDefault(lookup, "API_ARCHIVE_PEBBLE_DIR", defaultPebbleDir),
		},
		Reports: ReportConfig{
			Bucket:    stringWithDefault(lookup, "API_REPORTS_BUCKET", ""),
			SignerKey: stringWithDefault(lookup, "API_REPORTS_SIGNER_KEY", ""),
			URLTTL:    durationWithDefault(lookup, "API_REPORTS_URL_TTL", defaultReportURLTTL),
		},
		Events: EventsConfig{
			KafkaBrokers: csvWithDefault(lookup, "API_EVENTS_KAFKA_BROKERS"),
			KafkaTopic:   stringWithDefault(lookup, "API_EVENTS_KAFKA_TOPIC", defaultEventsTopic),
			BatchTimeout: durationWithDefault(lookup, "API_EVENTS_BATCH_TIMEOUT", defaultEventsBatchDelay),
		},
		Processing: ProcessingConfig{
			NotifyTimeout:  durationWithDefault(lookup, "API_PROCESSING_NOTIFY_TIMEOUT", defaultNotifyTimeout),
			ArchiveTimeout: durationWithDefault(lookup, "API_PROCESSING_ARCHIVE_TIMEOUT", defaultArchiveTimeout),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: stringWithDefault(lookup, "API_TELEMETRY_OTLP_ENDPOINT", ""),
			ServiceName:  stringWithDefault(lookup, "API_TELEMETRY_SERVICE_NAME", defaultServiceName),
		},
	}

	// Firestore and the mailer topic default to the Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Notifications.PubSub.ProjectID == "" {
		cfg.Notifications.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Auth.SessionSecret", &cfg.Auth.SessionSecret},
		{"Notifications.SMTP.Password", &cfg.Notifications.SMTP.Password},
		{"Reports.SignerKey", &cfg.Reports.SignerKey},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		invalid = append(invalid, "Server.ShutdownTimeout")
	}

	switch cfg.Repository.Backend {
	case RepositoryFirestore:
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
	case RepositoryMemory:
	default:
		invalid = append(invalid, "Repository.Backend")
	}

	switch cfg.Notifications.Backend {
	case NotifyBackendLog:
	case NotifyBackendSMTP:
		if cfg.Notifications.SMTP.Host == "" {
			invalid = append(invalid, "Notifications.SMTP.Host")
		}
		if cfg.Notifications.SMTP.Port <= 0 {
			invalid = append(invalid, "Notifications.SMTP.Port")
		}
		if cfg.Notifications.SMTP.From == "" {
			invalid = append(invalid, "Notifications.SMTP.From")
		}
		if cfg.Notifications.AdminRecipient == "" {
			invalid = append(invalid, "Notifications.AdminRecipient")
		}
	case NotifyBackendPubSub:
		if cfg.Notifications.PubSub.ProjectID == "" {
			invalid = append(invalid, "Notifications.PubSub.ProjectID")
		}
		if cfg.Notifications.PubSub.TopicID == "" {
			invalid = append(invalid, "Notifications.PubSub.TopicID")
		}
		if cfg.Notifications.AdminRecipient == "" {
			invalid = append(invalid, "Notifications.AdminRecipient")
		}
	default:
		invalid = append(invalid, "Notifications.Backend")
	}

	switch cfg.Archive.Backend {
	case ArchiveBackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
	case ArchiveBackendPebble:
		if strings.TrimSpace(cfg.Archive.PebbleDir) == "" {
			invalid = append(invalid, "Archive.PebbleDir")
		}
	case ArchiveBackendMemory:
	default:
		invalid = append(invalid, "Archive.Backend")
	}

	if cfg.Reports.Bucket != "" && cfg.Reports.URLTTL <= 0 {
		invalid = append(invalid, "Reports.URLTTL")
	}
	if len(cfg.Events.KafkaBrokers) > 0 && strings.TrimSpace(cfg.Events.KafkaTopic) == "" {
		invalid = append(invalid, "Events.KafkaTopic")
	}
	if cfg.Processing.NotifyTimeout <= 0 {
		invalid = append(invalid, "Processing.NotifyTimeout")
	}
	if cfg.Processing.ArchiveTimeout <= 0 {
		invalid = append(invalid, "Processing.ArchiveTimeout")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: dedupe(invalid)}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []string
	seen := make(map[string]struct{}, len(required))
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func normalizeBasePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "/" {
		return "/"
	}
	return "/" + strings.Trim(trimmed, "/")
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup lookupFunc, key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup lookupFunc, key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup lookupFunc, key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup lookupFunc, key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func lowerAll(values []string) []string {
	for i, value := range values {
		values[i] = strings.ToLower(value)
	}
	return values
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
