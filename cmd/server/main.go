// @title           Staging Studio Backend API
// @version         1.0.0
// @description     Backend API for a virtual staging studio. Clients order staging work on room photos and pay through Stripe; editors deliver results and admins approve them. Order changes and chat messages are streamed over server-sent events.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"staging-studio-backend/internal/blob"
	"staging-studio-backend/internal/cache"
	"staging-studio-backend/internal/checkout"
	"staging-studio-backend/internal/config"
	"staging-studio-backend/internal/database"
	"staging-studio-backend/internal/handlers"
	"staging-studio-backend/internal/identity"
	"staging-studio-backend/internal/logging"
	"staging-studio-backend/internal/metrics"
	"staging-studio-backend/internal/middleware"
	"staging-studio-backend/internal/notify"
	"staging-studio-backend/internal/queue/rabbitmq"
	"staging-studio-backend/internal/r2"
	"staging-studio-backend/internal/realtime"
	"staging-studio-backend/internal/server"
	"staging-studio-backend/internal/services"
	"staging-studio-backend/internal/supabase"
	"staging-studio-backend/internal/vision"
)

const emailWorkers = 5

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "staging-studio",
		Short: "Virtual staging studio backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	setupFlags(rootCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations()
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "worker",
		Short: "Deliver queued emails from RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context())
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("port", defaults.GetString("port"), "HTTP listen port")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log_level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "port", "port")
	bindFlag(cmd, "log_level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	_ = godotenv.Load()
	if cfgFile == "" {
		return nil
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", cfgFile, err)
	}
	return nil
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

func runMigrations() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	migrator, err := database.NewMigrator(cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer migrator.Close()
	return migrator.Run()
}

func runWorker(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.RabbitMQURL == "" {
		return errors.New("RABBITMQ_URL is required for the worker")
	}
	queue, err := rabbitmq.NewClient(cfg.RabbitMQURL, cfg.EmailQueue, logger)
	if err != nil {
		return err
	}
	defer queue.Close()

	msgs, err := queue.Consume(emailWorkers)
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := notify.NewWorker(newMailer(cfg, logger), emailWorkers, logger, metrics.New())
	logger.Info("email worker running", zap.String("queue", queue.Queue()))
	worker.Run(signalCtx, msgs)
	logger.Info("email worker stopped")
	return nil
}

func newMailer(cfg *config.Config, logger *zap.Logger) notify.Mailer {
	if cfg.ResendAPIKey == "" {
		logger.Warn("RESEND_API_KEY not set; emails are logged instead of sent")
		return notify.NewLogMailer(logger)
	}
	return notify.NewResendMailer(cfg.ResendAPIKey, cfg.EmailFrom)
}

func newBlobStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (blob.Store, error) {
	if cfg.BlobBackend == config.BlobBackendR2 {
		client, err := r2.NewClient(cfg.R2Endpoint, cfg.R2AccessKeyID, cfg.R2SecretAccessKey, cfg.R2Bucket, cfg.R2PublicDomain, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			logger.Warn("r2 bucket check failed", zap.Error(err))
		}
		return client, nil
	}
	return supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabasePublishableKey, cfg.SupabaseStorageBucket)
}

func newCache(cfg *config.Config, logger *zap.Logger) (cache.Store, func()) {
	if cfg.RedisURL == "" {
		return cache.Nop{}, func() {}
	}
	c, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
	if err != nil {
		logger.Warn("redis unavailable; catalogue reads are not cached", zap.Error(err))
		return cache.Nop{}, func() {}
	}
	return c, func() { _ = c.Close() }
}

// newSender prefers the durable RabbitMQ outbox and falls back to
// in-process delivery.
func newSender(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (notify.Sender, func()) {
	if cfg.RabbitMQURL != "" {
		queue, err := rabbitmq.NewClient(cfg.RabbitMQURL, cfg.EmailQueue, logger)
		if err == nil {
			return notify.NewQueueSender(queue, logger), func() { _ = queue.Close() }
		}
		logger.Warn("rabbitmq unavailable; sending emails in process", zap.Error(err))
	}
	sender := notify.NewAsyncSender(newMailer(cfg, logger), emailWorkers, logger, m)
	return sender, sender.Close
}

func runServer(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	migrator, err := database.NewMigrator(cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	if err := migrator.Run(); err != nil {
		migrator.Close()
		return err
	}
	migrator.Close()

	db, err := supabase.NewDatabaseClient(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	supabaseClient, err := supabase.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize Supabase client: %w", err)
	}

	store, err := newBlobStore(signalCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize blob storage: %w", err)
	}
	uploader := blob.NewUploader(store)

	m := metrics.New()
	catalogCache, closeCache := newCache(cfg, logger)
	defer closeCache()
	sender, closeSender := newSender(cfg, logger, m)
	defer closeSender()

	stripeClient := checkout.NewStripeClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.Currency, cfg.BaseURL)
	if !stripeClient.Enabled() {
		logger.Warn("STRIPE_SECRET_KEY not set; checkout is disabled")
	}
	visionClient := vision.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel)

	catalog := services.NewCatalogService(db, catalogCache, uploader, m, logger)
	notifier := services.NewNotifier(catalog, notify.Composer{
		StudioEmail:  cfg.StudioContactEmail,
		ActionURL:    cfg.BaseURL,
		DeliveryDays: cfg.DeliveryBusinessDays,
	}, sender, logger)
	submissions := services.NewSubmissionService(db, uploader, notifier, m, logger)
	ordering := services.NewOrderingService(db, catalog, uploader, stripeClient, visionClient, notifier, m, logger)
	chat := services.NewChatService(db, submissions, logger)
	dashboard := services.NewDashboardService(submissions, chat, catalog, logger)

	newResolver := func() *identity.Resolver {
		return identity.NewResolver(cfg.AdminEmails, catalog, submissions, supabaseClient, logger)
	}
	resolvers := identity.NewRegistry(newResolver)

	verifier, err := middleware.NewVerifier(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}
	defer verifier.Close()

	dispatcher := realtime.NewDispatcher()
	feed := supabase.NewRealtimeClient(cfg.DatabaseURL, db, dispatcher, logger)
	go func() {
		if err := feed.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("realtime feed stopped", zap.Error(err))
		}
	}()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Verifier:       verifier,
		Users:          newResolver(),
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        m,
		Logger:         logger,
		Health:         handlers.NewHealthHandler(db),
		Session:        handlers.NewSessionHandler(resolvers),
		Submissions:    handlers.NewSubmissionsHandler(submissions, dashboard, dispatcher, m, logger, cfg.DeliveryBusinessDays),
		Orders:         handlers.NewOrdersHandler(ordering),
		Catalog:        handlers.NewCatalogHandler(catalog),
		Chat:           handlers.NewChatHandler(chat, submissions, dispatcher),
		Media:          handlers.NewMediaHandler(uploader),
		Webhook:        handlers.NewWebhookHandler(stripeClient, ordering, logger),
		SPA:            handlers.NewSPAHandler(cfg.StaticDir),
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
