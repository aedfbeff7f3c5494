package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/collabhub/internal/api"
	"github.com/good-yellow-bee/collabhub/internal/api/health"
	"github.com/good-yellow-bee/collabhub/internal/collab"
	"github.com/good-yellow-bee/collabhub/internal/messaging"
	"github.com/good-yellow-bee/collabhub/internal/metrics"
	"github.com/good-yellow-bee/collabhub/internal/notifier"
	"github.com/good-yellow-bee/collabhub/internal/outbox"
	"github.com/good-yellow-bee/collabhub/internal/storage"
	"github.com/good-yellow-bee/collabhub/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "collabhub-server",
	Short: "collabhub server - research collaboration backend",
	Long: `collabhub server serves project invites, applications and
messaging over HTTP, and delivers notifications through the outbox relay.`,
	SilenceUsage: true,
	RunE:         runServer,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		store, err := openStore(cfg, log)
		if err != nil {
			return err
		}
		defer store.Close()
		log.Info("database migrated", zap.String("path", cfg.Database.Path))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.VersionString())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup() (*Config, *zap.Logger, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	// Override with CLI flags
	if httpAddr != "" {
		cfg.Server.HTTPAddress = httpAddr
	}
	cfg.Verbose = verbose

	log, err := buildLogger(cfg.Log, cfg.Verbose)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func openStore(cfg *Config, log *zap.Logger) (*storage.SQLiteStorage, error) {
	// Auto-create data directory
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store := storage.NewSQLiteStorage(cfg.Database.Path, log)
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

// newDispatcher registers the notification store as the required sink and
// any configured webhook or SMTP channel as an optional mirror.
func newDispatcher(cfg NotificationsConfig, store storage.Storage, log *zap.Logger) (*notifier.Dispatcher, error) {
	d := notifier.NewDispatcherWithRateLimit(notifier.RateLimitConfig{
		Enabled:      cfg.RateLimit.Enabled,
		MaxPerWindow: cfg.RateLimit.MaxPerWindow,
		Window:       cfg.RateLimit.Window,
	}, log)
	d.Register(notifier.NewStoreNotifier(store.Notifications()))

	users := store.Users()
	if cfg.Slack.WebhookURL != "" {
		n, err := notifier.NewSlackNotifier(notifier.SlackConfig{WebhookURL: cfg.Slack.WebhookURL}, users)
		if err != nil {
			return nil, err
		}
		d.RegisterOptional(n)
	}
	if cfg.Teams.WebhookURL != "" {
		n, err := notifier.NewTeamsNotifier(notifier.TeamsConfig{WebhookURL: cfg.Teams.WebhookURL}, users)
		if err != nil {
			return nil, err
		}
		d.RegisterOptional(n)
	}
	if cfg.Email.Host != "" {
		n, err := notifier.NewEmailNotifier(notifier.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		}, users)
		if err != nil {
			return nil, err
		}
		d.RegisterOptional(n)
	}

	log.Info("notifiers registered", zap.Strings("names", d.Names()))
	return d, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.ValidateSecrets(); err != nil {
		return err
	}

	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create default admin user on first run
	if admin, err := store.EnsureAdminUser(ctx); err != nil {
		return fmt.Errorf("ensure admin user: %w", err)
	} else if admin != nil {
		log.Warn("created default admin user; mint a token with hubctl token", zap.String("username", admin.Username))
	}
	log.Info("database initialized", zap.String("path", cfg.Database.Path))

	registry := collab.New(store, log)
	channel := messaging.New(store, log, messaging.WithPolicy(cfg.Policy()))

	dispatcher, err := newDispatcher(cfg.Notifications, store, log)
	if err != nil {
		return fmt.Errorf("create notifiers: %w", err)
	}
	defer dispatcher.Close()

	relay := outbox.NewRelay(store.Outbox(), outbox.Config{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	}, log)
	collab.RegisterHandlers(relay, registry.Events(), dispatcher)

	srv, err := api.New(&api.Config{
		Address:          cfg.Server.HTTPAddress,
		JWTSecret:        []byte(cfg.Auth.JWTSecret),
		AccessTokenTTL:   cfg.Auth.TokenTTL,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		RateLimitPerUser: cfg.Server.RateLimitPerUser,
		RequestTimeout:   cfg.Server.RequestTimeout,
		Verbose:          cfg.Verbose,
	}, api.Deps{Store: store, Collaborations: registry, Messages: channel}, log)
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}
	srv.RegisterHealthChecker(health.NewSQLiteChecker(store.DB()))
	srv.RegisterHealthChecker(health.NewFuncChecker("outbox", relay.Healthy))

	log.Info("starting collabhub-server", zap.String("version", config.Version))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return relay.Run(gctx) })
	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.Address, log)
		g.Go(func() error { return ms.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run server: %w", err)
	}

	log.Info("server stopped")
	return nil
}
