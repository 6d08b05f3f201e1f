package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/artisan-market/api/internal/di"
	"github.com/artisan-market/api/internal/platform/config"
	"github.com/artisan-market/api/internal/platform/secrets"
)

var (
	version = "dev"
	commit  = "none"
)

// ConfigLoader produces the configuration the commands run against.
type ConfigLoader func(ctx context.Context, envFile string) (config.Config, error)

// RuntimeOpener builds the service runtime for a loaded configuration.
type RuntimeOpener func(ctx context.Context, cfg config.Config) (*di.Runtime, error)

// Option customises the root command.
type Option func(*app)

// WithConfigLoader replaces the environment-backed configuration loader.
func WithConfigLoader(loader ConfigLoader) Option {
	return func(a *app) {
		if loader != nil {
			a.loadConfig = loader
		}
	}
}

// WithRuntimeOpener replaces di.OpenRuntime.
func WithRuntimeOpener(opener RuntimeOpener) Option {
	return func(a *app) {
		if opener != nil {
			a.openRuntime = opener
		}
	}
}

type app struct {
	envFile     string
	loadConfig  ConfigLoader
	openRuntime RuntimeOpener
}

// NewRootCmd returns the ordersctl command tree.
func NewRootCmd(opts ...Option) *cobra.Command {
	a := &app{
		loadConfig:  loadEnvironmentConfig,
		openRuntime: openRuntime,
	}
	for _, opt := range opts {
		opt(a)
	}

	cmd := &cobra.Command{
		Use:           "ordersctl",
		Short:         "Operate the artisan market order pipeline",
		Long:          "ordersctl seeds the catalog, processes orders and exports monthly fulfilment reports against the configured backends.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", "", "dotenv file with API_* settings")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newReportsCmd(a))
	cmd.AddCommand(newCatalogCmd(a))
	cmd.AddCommand(newOrdersCmd(a))
	cmd.AddCommand(newSessionCmd(a))
	return cmd
}

// Execute runs the root command with the default loaders.
func Execute() error {
	return NewRootCmd().Execute()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the ordersctl version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ordersctl %s (%s)\n", version, commit)
		},
	}
}

// withRuntime loads configuration, opens the runtime and closes it after fn returns.
func (a *app) withRuntime(ctx context.Context, fn func(rt *di.Runtime) error) (err error) {
	cfg, err := a.loadConfig(ctx, a.envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	rt, err := a.openRuntime(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening runtime: %w", err)
	}
	defer func() {
		if closeErr := rt.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = fmt.Errorf("closing runtime: %w", closeErr)
		}
	}()
	return fn(rt)
}

func loadEnvironmentConfig(ctx context.Context, envFile string) (config.Config, error) {
	var opts []config.Option
	if strings.TrimSpace(envFile) != "" {
		opts = append(opts, config.WithEnvFile(envFile))
	}
	env, err := config.EnvironmentValues(opts...)
	if err != nil {
		return config.Config{}, err
	}

	project := strings.TrimSpace(env["API_SECRET_DEFAULT_PROJECT_ID"])
	if project == "" {
		project = strings.TrimSpace(env["API_FIREBASE_PROJECT_ID"])
	}
	fetcherOpts := []secrets.Option{secrets.WithProject(project)}
	if path := strings.TrimSpace(env["API_SECRET_FALLBACK_FILE"]); path != "" {
		fetcherOpts = append(fetcherOpts, secrets.WithFallbackFile(path))
	}
	fetcher, err := secrets.NewFetcher(ctx, fetcherOpts...)
	if err != nil {
		return config.Config{}, err
	}
	defer fetcher.Close()

	return config.Load(ctx, append(opts, config.WithSecretResolver(fetcher))...)
}

func openRuntime(ctx context.Context, cfg config.Config) (*di.Runtime, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return di.OpenRuntime(ctx, cfg, di.RuntimeOptions{Logger: logger.Named("ordersctl")})
}
