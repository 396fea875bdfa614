// cmd/ingest-server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"template-ingest/internal/api"
	"template-ingest/internal/common/auth"
	"template-ingest/internal/common/aws"
	"template-ingest/internal/common/camunda"
	"template-ingest/internal/common/config"
	"template-ingest/internal/common/database"
	commonhttp "template-ingest/internal/common/http"
	"template-ingest/internal/common/logger"
	"template-ingest/internal/common/observability"
	"template-ingest/internal/common/storage"
	"template-ingest/internal/template/notify"
	"template-ingest/internal/template/pipeline"
	"template-ingest/internal/template/store"
	ptz "template-ingest/internal/workers/template/process-template-zip"
)

var version = "dev"

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	log, zapLog, level := logger.NewLeveled(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer zapLog.Sync()

	zapLog.Info("Starting template ingest server...",
		zap.String("version", version),
		zap.String("environment", cfg.App.Environment),
	)

	if config.Watch(func(next *config.Config) {
		level.SetLevel(logger.ParseLevel(next.Logging.Level))
		zapLog.Info("config reloaded", zap.String("logLevel", next.Logging.Level))
	}, func(err error) {
		zapLog.Warn("ignoring invalid config change", zap.Error(err))
	}) {
		zapLog.Info("watching config file for changes")
	}

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if err := pg.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("schema check failed", zap.Error(err))
	}

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	checks := map[string]api.ReadinessCheck{
		"postgres": pg.Ping,
		"redis":    redis.Ping,
	}

	// --- Init Elasticsearch (optional) ---
	var catalog pipeline.CatalogIndexer
	if cfg.Database.Elasticsearch.Enabled() {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		if err := esClient.EnsureIndex(ctx, cfg.Ingest.CatalogIndex); err != nil {
			zapLog.Fatal("catalog index setup failed", zap.Error(err))
		}
		catalog = store.NewCatalog(esClient.Client, cfg.Ingest.CatalogIndex)
		checks["elasticsearch"] = esClient.Ping
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init object storage ---
	objects, err := storage.NewStoreFromConfig(ctx, cfg.Storage)
	if err != nil {
		zapLog.Fatal("storage init failed", zap.Error(err))
	}
	zapLog.Info("Object storage ready",
		zap.String("backend", objects.Backend().Name()),
		zap.String("publicPrefix", objects.PublicPrefix()),
	)

	// --- Init Zeebe client (optional) ---
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled() {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientFromConfig(cfg.Camunda)
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zeebe.Close()
		checks["zeebe"] = zeebe.HealthCheck
		zapLog.Info("Zeebe client connected successfully")
	}

	// --- Init notifications (optional) ---
	var notifier pipeline.EventNotifier
	if n := buildNotifier(ctx, cfg, zeebe, log, zapLog); n.Enabled() {
		notifier = n
	}

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		zapLog.Fatal("auth init failed", zap.Error(err))
	}

	runs := store.NewRunTracker(redis.GetClient(), config.GetDuration(cfg.Ingest.RunStatusTTL))

	pipe, err := pipeline.New(pipeline.Dependencies{
		Uploader:      objects,
		Roles:         store.NewRoleStore(pg.GetDB(), redis.GetClient(), config.GetDuration(cfg.Ingest.RoleCacheTTL), log),
		Templates:     store.NewTemplateStore(pg.GetDB(), log),
		Downloader:    commonhttp.NewClient(config.GetDuration(cfg.Ingest.DownloadTimeout)),
		Runs:          runs,
		Catalog:       catalog,
		Notifier:      notifier,
		Observability: obs,
		Logger:        log,
	}, pipeline.OptionsFromConfig(cfg.Ingest))
	if err != nil {
		zapLog.Fatal("pipeline init failed", zap.Error(err))
	}

	// --- Zeebe worker (optional) ---
	if zeebe != nil {
		handler, err := ptz.NewHandler(ptz.HandlerOptions{
			AppConfig: cfg,
			Camunda:   zeebe,
			Processor: pipe,
			Logger:    log,
		})
		if err != nil {
			zapLog.Fatal("failed to create process-template-zip handler", zap.Error(err))
		}
		if err := handler.Register(); err != nil {
			zapLog.Fatal("failed to register process-template-zip worker", zap.Error(err))
		}
		defer handler.Close()
	}

	router := api.NewRouter(api.Options{
		Verifier:       verifier,
		Processor:      pipe,
		Runs:           runs,
		Checks:         checks,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ServiceName:    cfg.App.Name,
		Version:        version,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zapLog.Info("Template ingest server stopped gracefully")
}

func buildNotifier(ctx context.Context, cfg *config.Config, zeebe *camunda.Client, log logger.Logger, zapLog *zap.Logger) *notify.Notifier {
	awsCfg := cfg.Integrations.AWS

	var publisher notify.Publisher
	if awsCfg.SNS.Enabled {
		client, err := aws.NewSNSClient(ctx, awsCfg.Region)
		if err != nil {
			zapLog.Warn("SNS disabled, client init failed", zap.Error(err))
		} else {
			publisher = client
		}
	}

	var email notify.EmailSender
	if awsCfg.SES.Enabled {
		client, err := aws.NewSESClient(ctx, awsCfg.Region)
		if err != nil {
			zapLog.Warn("SES disabled, client init failed", zap.Error(err))
		} else {
			email = client
		}
	}

	n := notify.New(publisher, email, notify.Config{
		TopicARN:        awsCfg.SNS.TopicARN,
		FromEmail:       awsCfg.SES.FromEmail,
		AdminRecipients: awsCfg.SES.AdminRecipients,
	}, log)
	if zeebe != nil {
		n.WithProcessMessages(zeebe)
	}
	return n
}
