package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"circleburo/internal/api"
	"circleburo/internal/config"
	"circleburo/internal/database"
	"circleburo/internal/domain"
	"circleburo/internal/events"
	"circleburo/internal/google"
	"circleburo/internal/logging"
	"circleburo/internal/metrics"
	"circleburo/internal/monitoring"
	"circleburo/internal/notify"
	"circleburo/internal/repository"
	"circleburo/internal/service"
	"circleburo/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config.yaml (default $CONFIG_PATH or configs/config.yaml)")
	flag.Parse()

	cfg, logger, closer, err := loadConfigAndLogger(*configPath)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if enabled, err := monitoring.InitSentry(cfg.Sentry, cfg.App); err != nil {
		logger.Warn().Err(err).Msg("sentry init failed, continuing without error reporting")
	} else if enabled {
		defer monitoring.Flush(2 * time.Second)
	}

	loc, err := cfg.App.Location()
	if err != nil {
		return err
	}

	store, backup, err := initStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	redisClient := initRedis(cfg, logger)
	if redisClient != nil {
		defer (func() { _ = repository.Close(redisClient) })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, logger)

	bus := events.NewEventBus()
	startNotifications(ctx, cfg, bus, logger)
	startSheetsSync(ctx, cfg, store, redisClient, bus, loc, logger)

	if backup != nil {
		go backup.Start(ctx)
	}

	memoryStates := repository.NewMemoryStateRepository(cfg.Booking.SessionTTL)
	go sweepSessions(ctx, memoryStates, logger)
	var states domain.StateRepository = memoryStates
	if redisClient != nil {
		states = repository.NewFailoverStateRepository(
			repository.NewRedisStateRepository(redisClient, cfg.Booking.SessionTTL),
			memoryStates,
			logging.Component(logger, "state-failover"),
		)
	}

	availability := service.NewAvailabilityService(store, loc, cfg.Booking.WindowWeekdays, logging.Component(logger, "availability"))
	leads := service.NewLeadManager(store, bus, loc, logging.Component(logger, "leads"))
	if err := leads.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial leads load failed")
	}
	go leads.AutoRefresh(ctx, cfg.Booking.AdminRefreshInterval)

	deps := api.Deps{
		Booking: service.NewBookingService(store, availability, bus, logging.Component(logger, "booking")),
		Sessions: service.NewFormSessions(states, cfg.Booking.SubmitRateLimit, cfg.Booking.SubmitRateWindow,
			logging.Component(logger, "sessions")),
		Poller: service.NewStatusPoller(store, cfg.Booking.StatusPollInterval, logging.Component(logger, "status-poller")),
		Leads:  leads,
		Store:  store,
	}
	httpServer := api.NewHTTPServer(cfg.API, deps, logger)
	go httpServer.RunLimiterSweeper(ctx)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.API.GRPC, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go grpcServer.WatchStore(ctx, store, 15*time.Second)
	}

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func loadConfigAndLogger(configPath string) (*config.Config, *zerolog.Logger, io.Closer, error) {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

// initStore хранилище заявок по database.driver; бэкапы только для sqlite.
func initStore(cfg *config.Config, logger *zerolog.Logger) (domain.LeadStore, *database.BackupService, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		store, err := database.NewPostgresStore(cfg.Database.Postgres, logging.Component(logger, "postgres"))
		if err != nil {
			logger.Error().Err(err).Str("host", cfg.Database.Postgres.Host).Msg("init postgres")
			return nil, nil, err
		}
		if cfg.Backup.Enabled {
			logger.Warn().Msg("backup is supported for sqlite only, skipping")
		}
		return store, nil, nil
	default:
		db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "sqlite"))
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
			return nil, nil, err
		}
		var backup *database.BackupService
		if cfg.Backup.Enabled {
			backup = database.NewBackupService(db.Path(), cfg.Backup, logging.Component(logger, "backup"))
		}
		return db, backup, nil
	}
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(ctx, client); err != nil {
		// клиент оставляем: failover вернётся к Redis, когда тот поднимется
		logger.Warn().Err(err).Msg("redis connection failed, sessions start in memory")
		return client
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// startNotifications: Telegram получает события для сотрудников, Kafka всё.
func startNotifications(ctx context.Context, cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) {
	dispatcher := notify.NewDispatcher(cfg.Booking.NotifyQueueSize, logging.Component(logger, "notify"))

	telegram := notify.NewTelegramSink(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Debug,
		logging.Component(logger, "telegram"))
	dispatcher.AddSink(telegram, events.StaffNotifiedEvents...)

	kafka := notify.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, logging.Component(logger, "kafka"))
	dispatcher.AddSink(kafka, events.AllLeadEvents...)

	dispatcher.Attach(bus)
	go func() {
		dispatcher.Run(ctx)
		if err := kafka.Close(); err != nil {
			logger.Warn().Err(err).Msg("close kafka writer")
		}
	}()
}

func startSheetsSync(
	ctx context.Context,
	cfg *config.Config,
	store domain.LeadStore,
	redisClient *redis.Client,
	bus *events.EventBus,
	loc *time.Location,
	logger *zerolog.Logger,
) {
	if !cfg.Google.Enabled() {
		logger.Info().Msg("google sheets sync is not configured")
		return
	}

	sheet, err := google.NewLeadsSheet(ctx, cfg.Google.CredentialsFile, cfg.Google.LeadsSpreadsheetID, cfg.Google.SheetName, loc)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return
	}
	if err := sheet.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets connection test failed")
	}

	w := worker.NewSheetsWorker(store, sheet, redisClient, worker.RetryPolicy{}, logging.Component(logger, "sheets-worker"))
	w.Attach(bus)
	go w.Start(ctx)
	logger.Info().Str("spreadsheet_id", cfg.Google.LeadsSpreadsheetID).Msg("google sheets sync started")
}

func sweepSessions(ctx context.Context, repo *repository.MemoryStateRepository, logger *zerolog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := repo.Sweep(); n > 0 {
				logger.Debug().Int("removed", n).Msg("expired booking sessions swept")
			}
		}
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("http server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return runErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
