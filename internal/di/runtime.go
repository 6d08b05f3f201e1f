package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/artisan-market/api/internal/platform/config"
	"github.com/artisan-market/api/internal/platform/events"
	pfirestore "github.com/artisan-market/api/internal/platform/firestore"
	"github.com/artisan-market/api/internal/platform/idempotency"
	"github.com/artisan-market/api/internal/platform/metrics"
	"github.com/artisan-market/api/internal/platform/notify"
	"github.com/artisan-market/api/internal/platform/observability"
	platformstorage "github.com/artisan-market/api/internal/platform/storage"
	"github.com/artisan-market/api/internal/repositories"
	firestoreRepo "github.com/artisan-market/api/internal/repositories/firestore"
	"github.com/artisan-market/api/internal/repositories/memory"
	pebbleRepo "github.com/artisan-market/api/internal/repositories/pebble"
	"github.com/artisan-market/api/internal/services"
)

// Runtime owns the external clients behind a Container and closes them in reverse order.
type Runtime struct {
	Container *Container
	Metrics   *metrics.Registry

	// Submissions backs Idempotency-Key replay on order placement.
	Submissions idempotency.Store

	closers []func(context.Context) error
}

// RuntimeOptions customise OpenRuntime.
type RuntimeOptions struct {
	Logger *zap.Logger
	Build  services.BuildInfo
	// Registry overrides the configured repository backend.
	Registry repositories.Registry
	// HealthChecks are appended to the readiness probes.
	HealthChecks []repositories.DependencyCheck
}

// OpenRuntime dials the configured backends and assembles the service container.
func OpenRuntime(ctx context.Context, cfg config.Config, opts RuntimeOptions) (rt *Runtime, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rt = &Runtime{Metrics: metrics.NewRegistry()}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = rt.Close(closeCtx)
			rt = nil
		}
	}()

	reg := opts.Registry
	rt.Submissions = idempotency.NewMemoryStore()
	if reg == nil {
		var provider *pfirestore.Provider
		reg, provider, err = openRegistry(cfg)
		if err != nil {
			return rt, err
		}
		if provider != nil {
			rt.Submissions = idempotency.NewFirestoreStore(provider, "")
		}
	}
	rt.closers = append(rt.closers, reg.Close)

	collab := Collaborators{
		Metrics:      rt.Metrics,
		Build:        opts.Build,
		HealthChecks: append([]repositories.DependencyCheck(nil), opts.HealthChecks...),
		Logger:       observability.EventLogger(logger.Named("services")),
	}

	if collab.Archive, err = rt.openArchive(cfg, &collab); err != nil {
		return rt, err
	}
	if collab.Sink, err = rt.openSink(ctx, cfg, logger); err != nil {
		return rt, err
	}
	if collab.Events, err = rt.openEvents(cfg); err != nil {
		return rt, err
	}
	if collab.Reports, err = rt.openReportPublisher(ctx, cfg); err != nil {
		return rt, err
	}

	rt.Container, err = NewContainer(ctx, cfg, reg, collab)
	if err != nil {
		return rt, err
	}
	return rt, nil
}

// Close releases every client opened by OpenRuntime.
func (rt *Runtime) Close(ctx context.Context) error {
	if rt == nil {
		return nil
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func openRegistry(cfg config.Config) (repositories.Registry, *pfirestore.Provider, error) {
	switch cfg.Repository.Backend {
	case config.RepositoryMemory:
		return memory.NewRegistry(), nil, nil
	case config.RepositoryFirestore, "":
		var providerOpts []pfirestore.ProviderOption
		if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
			providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(file)))
		}
		provider := pfirestore.NewProvider(cfg.Firestore, providerOpts...)
		reg, err := firestoreRepo.NewRegistry(provider)
		if err != nil {
			return nil, nil, fmt.Errorf("build firestore registry: %w", err)
		}
		return reg, provider, nil
	default:
		return nil, nil, fmt.Errorf("unsupported repository backend %q", cfg.Repository.Backend)
	}
}

func (rt *Runtime) openArchive(cfg config.Config, collab *Collaborators) (repositories.ArchiveRepository, error) {
	switch cfg.Archive.Backend {
	case config.ArchiveBackendPebble:
		archive, err := pebbleRepo.Open(cfg.Archive.PebbleDir)
		if err != nil {
			return nil, fmt.Errorf("open pebble archive: %w", err)
		}
		rt.closers = append(rt.closers, func(context.Context) error { return archive.Close() })
		collab.HealthChecks = append(collab.HealthChecks, repositories.DependencyCheck{
			Name:    "archive",
			Timeout: time.Second,
			Check:   archive.Ping,
		})
		return archive, nil
	case config.ArchiveBackendMemory:
		return memory.NewArchiveStore(), nil
	default:
		// The registry's own archive collection.
		return nil, nil
	}
}

func (rt *Runtime) openSink(ctx context.Context, cfg config.Config, logger *zap.Logger) (services.NotificationSink, error) {
	switch cfg.Notifications.Backend {
	case config.NotifyBackendSMTP:
		smtp := cfg.Notifications.SMTP
		sink, err := notify.NewSMTPSink(notify.SMTPConfig{
			Host:     smtp.Host,
			Port:     smtp.Port,
			Username: smtp.Username,
			Password: smtp.Password,
			From:     smtp.From,
		})
		if err != nil {
			return nil, err
		}
		return sink, nil
	case config.NotifyBackendPubSub:
		var clientOpts []option.ClientOption
		if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(file))
		}
		client, err := pubsub.NewClient(ctx, cfg.Notifications.PubSub.ProjectID, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		topic := client.Topic(cfg.Notifications.PubSub.TopicID)
		rt.closers = append(rt.closers, func(context.Context) error {
			topic.Stop()
			return client.Close()
		})
		return notify.NewPubSubSink(topic)
	default:
		return notify.NewLogSink(logger.Named("notify")), nil
	}
}

func (rt *Runtime) openEvents(cfg config.Config) (services.OrderEventPublisher, error) {
	if len(cfg.Events.KafkaBrokers) == 0 {
		return nil, nil
	}
	producer, err := events.NewProducer(events.WriterConfig{
		Brokers:      cfg.Events.KafkaBrokers,
		Topic:        cfg.Events.KafkaTopic,
		ClientID:     cfg.Telemetry.ServiceName,
		BatchTimeout: cfg.Events.BatchTimeout,
	})
	if err != nil {
		return nil, err
	}
	publisher, err := events.NewKafkaPublisher(producer)
	if err != nil {
		_ = producer.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, func(context.Context) error { return publisher.Close() })
	return publisher, nil
}

func (rt *Runtime) openReportPublisher(ctx context.Context, cfg config.Config) (services.ReportPublisher, error) {
	bucket := strings.TrimSpace(cfg.Reports.Bucket)
	if bucket == "" {
		return nil, nil
	}
	signer, err := platformstorage.NewServiceAccountSigner(cfg.Reports.SignerKey)
	if err != nil {
		return nil, fmt.Errorf("load report signer: %w", err)
	}
	urlSigner, err := platformstorage.NewURLSigner(signer)
	if err != nil {
		return nil, err
	}

	var clientOpts []option.ClientOption
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(file))
	}
	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })

	return platformstorage.NewReportPublisher(platformstorage.ReportPublisherConfig{
		Writer: platformstorage.GCSWriter{Client: client},
		Signer: urlSigner,
		Bucket: bucket,
		URLTTL: cfg.Reports.URLTTL,
	})
}
