package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artisan-market/api/internal/platform/config"
	"github.com/artisan-market/api/internal/repositories"
	"github.com/artisan-market/api/internal/services"
)

// healthCacheTTL bounds how often readiness probes reach the backends.
const healthCacheTTL = 2 * time.Second

// Services bundles the service-layer contracts that handlers and the CLI rely upon.
type Services struct {
	Inventory     services.InventoryService
	Notifications services.NotificationService
	Intake        services.OrderIntakeService
	Query         services.OrderQueryService
	Processor     services.OrderProcessorService
	Reports       services.ReportService
	Profiles      services.ProfileService
	System        services.SystemService
}

// Collaborators are the outbound adapters built by the caller. Sink is required; the rest are
// optional and fall back to no-op behaviour inside the services.
type Collaborators struct {
	Sink    services.NotificationSink
	Events  services.OrderEventPublisher
	Reports services.ReportPublisher
	Metrics services.FulfilmentMetrics
	// Archive replaces the registry's archive store, e.g. with the pebble backend.
	Archive repositories.ArchiveRepository
	// HealthChecks are probed in addition to the registry's own checks.
	HealthChecks []repositories.DependencyCheck
	Build        services.BuildInfo
	Clock        func() time.Time
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Archive      repositories.ArchiveRepository
	Services     Services
}

// NewContainer constructs the runtime dependencies. Tests and the CLI supply the in-memory
// registry; the API server supplies the Firestore registry.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, collab Collaborators) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if collab.Sink == nil {
		return nil, errors.New("notification sink is required")
	}

	archive := collab.Archive
	if archive == nil {
		archive = reg.Archive()
	}

	svc, err := buildServices(ctx, cfg, reg, archive, collab)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Archive:      archive,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, cfg config.Config, reg repositories.Registry, archive repositories.ArchiveRepository, collab Collaborators) (Services, error) {
	var svc Services
	clock := collab.Clock
	if clock == nil {
		clock = time.Now
	}

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Products: reg.Products(),
		Metrics:  collab.Metrics,
		Logger:   collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	notificationSvc, err := services.NewNotificationService(services.NotificationServiceDeps{
		Sink:           collab.Sink,
		AdminRecipient: adminRecipient(cfg),
		Metrics:        collab.Metrics,
		Logger:         collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build notification service: %w", err)
	}
	svc.Notifications = notificationSvc

	intakeSvc, err := services.NewOrderIntakeService(services.OrderIntakeServiceDeps{
		Products:      reg.Products(),
		Orders:        reg.Orders(),
		Profiles:      reg.Profiles(),
		Inventory:     inventorySvc,
		Notifications: notificationSvc,
		Events:        collab.Events,
		Metrics:       collab.Metrics,
		NotifyTimeout: cfg.Processing.NotifyTimeout,
		Clock:         clock,
		Logger:        collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order intake service: %w", err)
	}
	svc.Intake = intakeSvc

	querySvc, err := services.NewOrderQueryService(services.OrderQueryServiceDeps{
		Products: reg.Products(),
		Orders:   reg.Orders(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order query service: %w", err)
	}
	svc.Query = querySvc

	processorSvc, err := services.NewOrderProcessorService(services.OrderProcessorServiceDeps{
		Orders:         reg.Orders(),
		Archive:        archive,
		Ledger:         reg.Dispatches(),
		Notifications:  notificationSvc,
		Events:         collab.Events,
		Metrics:        collab.Metrics,
		NotifyTimeout:  cfg.Processing.NotifyTimeout,
		ArchiveTimeout: cfg.Processing.ArchiveTimeout,
		Clock:          clock,
		Logger:         collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order processor service: %w", err)
	}
	svc.Processor = processorSvc

	reportSvc, err := services.NewReportService(services.ReportServiceDeps{
		Archive:   archive,
		Publisher: collab.Reports,
		Logger:    collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build report service: %w", err)
	}
	svc.Reports = reportSvc

	profileSvc, err := services.NewProfileService(services.ProfileServiceDeps{
		Profiles: reg.Profiles(),
		Clock:    clock,
		Logger:   collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build profile service: %w", err)
	}
	svc.Profiles = profileSvc

	checks := append(reg.HealthChecks(), collab.HealthChecks...)
	if len(checks) > 0 {
		healthRepo, err := repositories.NewDependencyHealthRepository(checks)
		if err != nil {
			return Services{}, fmt.Errorf("build health repository: %w", err)
		}
		build := collab.Build
		if build.Environment == "" {
			build.Environment = cfg.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            build,
			CacheTTL:         healthCacheTTL,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

// adminRecipient falls back to the first configured admin email when no explicit order
// notification address is set.
func adminRecipient(cfg config.Config) string {
	if recipient := strings.TrimSpace(cfg.Notifications.AdminRecipient); recipient != "" {
		return recipient
	}
	for _, email := range cfg.Auth.AdminEmails {
		if email = strings.TrimSpace(email); email != "" {
			return email
		}
	}
	return ""
}
