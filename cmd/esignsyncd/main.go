// Command esignsyncd runs the webhook reconciliation service: it receives
// e-signature lifecycle notifications over HTTP and reconciles them into
// agreement records.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcfirestore "cloud.google.com/go/firestore"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mihaimyh/esignsync/notify/redispub"
	"github.com/mihaimyh/esignsync/pkg/esignsync"
	zerologadapter "github.com/mihaimyh/esignsync/pkg/esignsync/logger/zerolog"
	prommetrics "github.com/mihaimyh/esignsync/pkg/esignsync/metrics/prometheus"
	"github.com/mihaimyh/esignsync/pkg/ingress"
	firestorestore "github.com/mihaimyh/esignsync/storage/firestore"
	"github.com/mihaimyh/esignsync/storage/memory"
	"github.com/mihaimyh/esignsync/storage/postgres"
	redisstore "github.com/mihaimyh/esignsync/storage/redis"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "esignsyncd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	zl := newZerolog(cfg.Logging)
	logger := zerologadapter.NewLogger(zl)

	registry := prometheus.NewRegistry()
	metrics := prommetrics.NewMetrics(registry, "esignsync")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store     esignsync.Storage
		artifacts esignsync.ArtifactStore
		closeFn   = func() {}
	)
	switch cfg.Storage.Type {
	case "postgres":
		pgCfg := postgres.DefaultConfig()
		pgCfg.ConnectionString = cfg.Storage.ConnectionString
		pg, err := postgres.New(ctx, pgCfg)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		store = pg
		artifacts = postgres.NewArtifactStore(pg.Pool(), cfg.Artifact.PublicBaseURL)
		closeFn = pg.Close
	case "firestore":
		client, err := gcfirestore.NewClient(ctx, cfg.Storage.ProjectID)
		if err != nil {
			return fmt.Errorf("firestore: %w", err)
		}
		fs, err := firestorestore.New(client, firestorestore.Config{})
		if err != nil {
			return fmt.Errorf("firestore store: %w", err)
		}
		fsArtifacts, err := firestorestore.NewArtifactStore(client, "", cfg.Artifact.PublicBaseURL)
		if err != nil {
			return fmt.Errorf("firestore artifacts: %w", err)
		}
		store = fs
		artifacts = fsArtifacts
		closeFn = func() { client.Close() }
	default:
		mem := memory.New()
		store = mem
		artifacts = memory.NewArtifactStore(cfg.Artifact.PublicBaseURL)
	}
	defer closeFn()

	var (
		fallbacks []esignsync.EventStore
		notifier  esignsync.Notifier = &esignsync.NoopNotifier{}
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		fb, err := redisstore.New(client, redisstore.DefaultConfig())
		if err != nil {
			return fmt.Errorf("redis event store: %w", err)
		}
		fallbacks = append(fallbacks, fb)

		pub, err := redispub.New(client, cfg.Redis.Channel)
		if err != nil {
			return fmt.Errorf("redis notifier: %w", err)
		}
		notifier = pub
	}

	recorder := esignsync.NewRecorder(store, fallbacks, esignsync.RecorderConfig{
		StoreTimeout: cfg.Storage.Timeout,
		Retries:      cfg.Storage.Retries,
	}, logger, metrics)
	locator := esignsync.NewLocator(store, false, logger, metrics)
	engine := esignsync.NewEngine(esignsync.EngineConfig{
		LandlordKeywords: cfg.Engine.LandlordKeywords,
		DefaultRole:      cfg.Engine.DefaultRole,
	})
	capture := esignsync.NewCapture(artifacts, store, store, logger, metrics)

	orchestrator, err := esignsync.NewOrchestrator(esignsync.OrchestratorDeps{
		Recorder:     recorder,
		Locator:      locator,
		Engine:       engine,
		Capture:      capture,
		Agreements:   store,
		Notifier:     notifier,
		Logger:       logger,
		Metrics:      metrics,
		StoreTimeout: cfg.Storage.Timeout,
	})
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Mount("/", ingress.NewHandler(orchestrator, logger))
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info().Str("addr", addr).Str("storage", cfg.Storage.Type).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newZerolog(cfg LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.Format == "console" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}
