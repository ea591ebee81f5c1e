package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/okian/attribd/internal/adapters/adsync"
	"github.com/okian/attribd/internal/adapters/capi"
	"github.com/okian/attribd/internal/adapters/http/api"
	"github.com/okian/attribd/internal/adapters/repository"
	service "github.com/okian/attribd/internal/app"
	"github.com/okian/attribd/internal/config"
	"github.com/okian/attribd/pkg/logger"
	"github.com/okian/attribd/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 15 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 120 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "attribd",
		Short:         "Multi-touch attribution and reporting engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), initDBCmd(), capiSweepCmd())

	if err := root.Execute(); err != nil {
		logger.Get().Error(context.Background(), "command failed", logger.Error(err))
		os.Exit(1)
	}
}

// loadConfig loads configuration and applies the configured log level.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

// openStore opens the SQLite event store.
func openStore(cfg *config.Config) (repository.Store, error) {
	return repository.Open(cfg.DBPath)
}

// buildCAPISyncer assembles the conversion push syncer from configured
// platform credentials. Returns nil when no platform is configured.
func buildCAPISyncer(store repository.Store, cfg *config.Config) *capi.Syncer {
	var pushers []capi.Pusher
	if cfg.MetaAccessToken != "" && cfg.MetaPixelID != "" {
		pushers = append(pushers, capi.NewMetaPusher(cfg.MetaAccessToken, cfg.MetaPixelID))
	}
	if cfg.GoogleDevToken != "" && cfg.GoogleCustomerID != "" {
		pushers = append(pushers, capi.NewGooglePusher(
			cfg.GoogleDevToken, cfg.GoogleCustomerID, cfg.GoogleConvAction, cfg.GoogleAccessToken))
	}
	if cfg.TikTokAccessToken != "" && cfg.TikTokPixelID != "" {
		pushers = append(pushers, capi.NewTikTokPusher(cfg.TikTokAccessToken, cfg.TikTokPixelID))
	}
	if len(pushers) == 0 {
		return nil
	}
	opts := make([]capi.SyncerOption, 0, len(pushers)+1)
	for _, p := range pushers {
		opts = append(opts, capi.WithPusher(p))
	}
	opts = append(opts, capi.WithMaxAttempts(cfg.CAPIMaxAttempts))
	return capi.NewSyncer(store, opts...)
}

// buildAdNameSyncer assembles the display-name syncer from configured
// marketing API credentials. Returns nil when no platform is configured.
func buildAdNameSyncer(store repository.Store, cfg *config.Config) *adsync.Syncer {
	var fetchers []adsync.Fetcher
	if cfg.MetaAccessToken != "" && cfg.MetaAdAccountID != "" {
		fetchers = append(fetchers, adsync.NewMetaFetcher(cfg.MetaAccessToken, cfg.MetaAdAccountID))
	}
	if cfg.TikTokAccessToken != "" && cfg.TikTokAdvertiserID != "" {
		fetchers = append(fetchers, adsync.NewTikTokFetcher(cfg.TikTokAccessToken, cfg.TikTokAdvertiserID))
	}
	if len(fetchers) == 0 {
		return nil
	}
	return adsync.NewSyncer(store, fetchers...)
}

// buildService wires the full service over an open store.
func buildService(store repository.Store, cfg *config.Config) *service.Service {
	opts := []service.Option{
		service.WithLogger(logger.Get()),
		service.WithSessionTimeout(time.Duration(cfg.SessionTimeoutMinutes) * time.Minute),
		service.WithLookbackDays(cfg.DefaultLookbackDays),
		service.WithHalfLifeDays(cfg.TimeDecayHalfLifeDays),
		service.WithReportWorkers(cfg.ReportWorkers),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithFeedBufferSize(cfg.FeedBufferSize),
		service.WithAnomalyThreshold(cfg.AnomalyThreshold),
	}
	if syncer := buildCAPISyncer(store, cfg); syncer != nil {
		opts = append(opts, service.WithCAPISyncer(syncer,
			time.Duration(cfg.CAPISweepIntervalMinutes)*time.Minute))
	}
	if names := buildAdNameSyncer(store, cfg); names != nil {
		opts = append(opts, service.WithAdNameSyncer(names))
	}
	return service.New(store, opts...)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the attribution HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logger.Get()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					log.Error(ctx, "store close failed", logger.Error(err))
				}
			}()

			svc := buildService(store, cfg)
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
			apiServer := api.NewServer(svc,
				api.WithShopifySecret(cfg.ShopifyWebhookSecret),
				api.WithStripeSecret(cfg.StripeWebhookSecret),
			)
			apiServer.Register(ctx, mux)

			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           mux,
				ReadTimeout:       readTimeout,
				WriteTimeout:      writeTimeout,
				IdleTimeout:       idleTimeout,
				ReadHeaderTimeout: readHeaderTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			log.Info(ctx, "shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error(ctx, "server shutdown failed", logger.Error(err))
			}
			log.Info(ctx, "server stopped")
			return nil
		},
	}
}

func initDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create the event store schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			logger.Get().Info(ctx, "event store initialized", logger.String("db_path", cfg.DBPath))
			return nil
		},
	}
}

func capiSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capi-sweep",
		Short: "Run one conversion push sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			syncer := buildCAPISyncer(store, cfg)
			if syncer == nil {
				return service.ErrCAPIDisabled
			}
			res, err := syncer.Sweep(ctx)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(res)
		},
	}
}
