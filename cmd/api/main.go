package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/artisan-market/api/internal/di"
	"github.com/artisan-market/api/internal/handlers"
	"github.com/artisan-market/api/internal/platform/auth"
	"github.com/artisan-market/api/internal/platform/config"
	"github.com/artisan-market/api/internal/platform/observability"
	"github.com/artisan-market/api/internal/platform/secrets"
	"github.com/artisan-market/api/internal/repositories"
	"github.com/artisan-market/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: buildInfo.Version,
		Environment:    cfg.Environment,
	})
	if err != nil {
		logger.Fatal("failed to initialise tracing", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown error", zap.Error(err))
		}
	}()

	var extraChecks []repositories.DependencyCheck
	if ref := strings.TrimSpace(envValues["API_SECRET_HEALTH_REFERENCE"]); ref != "" {
		extraChecks = append(extraChecks, secretManagerCheck(fetcher, ref))
	}
	runtime, err := di.OpenRuntime(ctx, cfg, di.RuntimeOptions{
		Logger:       logger,
		Build:        buildInfo,
		HealthChecks: extraChecks,
	})
	if err != nil {
		logger.Fatal("failed to initialise runtime", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := runtime.Close(closeCtx); err != nil {
			logger.Warn("runtime close error", zap.Error(err))
		}
	}()
	svc := runtime.Container.Services

	authenticator, err := buildAuthenticator(ctx, logger.Named("auth"), cfg)
	if err != nil {
		logger.Fatal("failed to initialise authenticator", zap.Error(err))
	}

	orderHandlers := handlers.NewOrderHandlers(handlers.OrderHandlersDeps{
		Authenticator: authenticator,
		Intake:        svc.Intake,
		Query:         svc.Query,
		Processor:     svc.Processor,
		Profiles:      svc.Profiles,
		Reports:       svc.Reports,
		Submissions:   runtime.Submissions,
	})
	profileHandlers := handlers.NewProfileHandlers(authenticator, svc.Profiles)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(buildInfo)}
	if svc.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(svc.System))
	}

	router := handlers.NewRouter(
		handlers.WithBasePath(cfg.Server.BasePath),
		handlers.WithRequestTimeout(cfg.Server.WriteTimeout),
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithMetricsHandler(runtime.Metrics.Handler()),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithProfileRoutes(profileHandlers.Routes),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("artisan-market api listening",
			zap.String("repository", cfg.Repository.Backend),
			zap.String("archive", cfg.Archive.Backend),
			zap.String("notifications", cfg.Notifications.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildAuthenticator chains the configured verifiers: session tokens first because they are
// checked locally, then Google ID tokens, then Firebase.
func buildAuthenticator(ctx context.Context, logger *zap.Logger, cfg config.Config) (*auth.Authenticator, error) {
	var chain auth.ChainVerifier

	if secret := strings.TrimSpace(cfg.Auth.SessionSecret); secret != "" {
		session, err := auth.NewSessionVerifier(secret, auth.WithSessionTTL(cfg.Auth.SessionTokenTTL))
		if err != nil {
			return nil, fmt.Errorf("session verifier: %w", err)
		}
		chain = append(chain, session)
	}
	if clientID := strings.TrimSpace(cfg.Auth.GoogleClientID); clientID != "" {
		cache := auth.NewJWKSCache(cfg.Auth.GoogleJWKSURL, auth.WithJWKSLogger(logger.Named("jwks")))
		google, err := auth.NewGoogleVerifier(cache, clientID)
		if err != nil {
			return nil, fmt.Errorf("google verifier: %w", err)
		}
		chain = append(chain, google)
	}
	if strings.TrimSpace(cfg.Firebase.ProjectID) != "" {
		firebase, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			return nil, fmt.Errorf("firebase verifier: %w", err)
		}
		chain = append(chain, firebase)
	}
	if len(chain) == 0 {
		logger.Warn("no token verifiers configured; authenticated routes will answer 503")
	}

	recorder, err := auth.NewMeterRecorder(otel.GetMeterProvider().Meter("artisan-market/auth"))
	if err != nil {
		return nil, fmt.Errorf("auth metrics: %w", err)
	}

	return auth.NewAuthenticator(chain,
		auth.WithAdminEmails(cfg.Auth.AdminEmails...),
		auth.WithMetrics(recorder),
	), nil
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIREBASE_PROJECT_ID")
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
	}
	if path := lookup("API_SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if file := lookup("API_FIREBASE_CREDENTIALS_FILE"); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets the selected backends cannot run without.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.EqualFold(strings.TrimSpace(env["API_NOTIFY_BACKEND"]), config.NotifyBackendSMTP) &&
		strings.TrimSpace(env["API_NOTIFY_SMTP_USERNAME"]) != "" {
		required = append(required, "Notifications.SMTP.Password")
	}
	if strings.TrimSpace(env["API_REPORTS_BUCKET"]) != "" {
		required = append(required, "Reports.SignerKey")
	}
	return required
}

// secretManagerCheck resolves ref on every readiness probe.
func secretManagerCheck(fetcher *secrets.Fetcher, ref string) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:     "secretManager",
		Timeout:  time.Second,
		Optional: true,
		Check: func(ctx context.Context) error {
			_, err := fetcher.Resolve(ctx, ref)
			return err
		},
	}
}
