package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"freightdesk/internal/platform/config"
	"freightdesk/internal/platform/httpserver"
	"freightdesk/internal/platform/logger"
	platformmetrics "freightdesk/internal/platform/metrics"
	"freightdesk/internal/platform/postgres"
	"freightdesk/internal/platform/redis"
	"freightdesk/internal/warehouse/catalog"
	"freightdesk/internal/warehouse/handler"
	warehousemetrics "freightdesk/internal/warehouse/metrics"
	"freightdesk/internal/warehouse/models"
	"freightdesk/internal/warehouse/ports"
	"freightdesk/internal/warehouse/service"
	"freightdesk/internal/warehouse/store"
	"freightdesk/pkg/platform/audit/publisher"
	kafkasink "freightdesk/pkg/platform/audit/publishers/kafka"
	"freightdesk/pkg/platform/httputil"
	"freightdesk/pkg/platform/middleware/admin"
	"freightdesk/pkg/platform/middleware/metadata"
	"freightdesk/pkg/platform/middleware/request"
	"freightdesk/pkg/platform/middleware/requesttime"
)

func main() {
	configFile := flag.String("config", "", "optional config file (yaml, toml or json)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// run wires dependencies and blocks until ctx is cancelled. Resources are
// released in reverse order of acquisition.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var (
		tx      ports.Tx
		queries ports.QueryStore
		cat     ports.InvoiceCatalog
	)
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := store.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		tx = store.NewPostgresTx(db, cfg.Warehouse.LockTimeout)
		queries = store.NewPostgres(db)

		pool, err := catalog.Connect(ctx, cfg.Storage.CatalogURL)
		if err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		defer pool.Close()
		cat = catalog.NewPostgres(pool)
		log.Info("using postgres storage")
	default:
		mem := store.NewInMemory()
		tx, queries = mem, mem
		static, err := seedCatalog(cfg.Storage.CatalogSeedFile)
		if err != nil {
			return err
		}
		cat = static
		log.Warn("using in-memory storage; state is lost on restart")
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		cat = catalog.NewRedisCache(redisClient, cat,
			catalog.WithTTL(cfg.Redis.CatalogTTL),
			catalog.WithLogger(log))
		log.Info("invoice catalog cache enabled", "ttl", cfg.Redis.CatalogTTL)
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(warehousemetrics.New(reg)),
		service.WithMaxAttempts(cfg.Warehouse.MaxAttempts),
		service.WithLockTimeout(cfg.Warehouse.LockTimeout),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := kafkasink.New(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer sink.Close()
		if err := sink.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.Replication); err != nil {
			return fmt.Errorf("ensure audit topic: %w", err)
		}
		pub := publisher.NewPublisher(sink,
			publisher.WithAsyncBuffer(cfg.Warehouse.AuditBuffer),
			publisher.WithLogger(log),
			publisher.WithMetrics(publisher.NewMetrics(reg)),
			publisher.WithCircuitBreaker(publisher.NewCircuitBreaker(5, 30*time.Second)),
		)
		// drain queued events before the sink closes
		defer func() {
			if err := pub.Close(); err != nil {
				log.Warn("audit publisher close", "error", err)
			}
		}()
		opts = append(opts, service.WithAuditPublisher(pub))
		log.Info("audit events published to kafka", "topic", cfg.Kafka.AuditTopic)
	}

	svc := service.New(tx, queries, cat, opts...)
	router := newRouter(cfg, log, reg, handler.New(svc, log))
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting freightdesk", "addr", cfg.Server.Addr, "storage", cfg.Storage.Driver)
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout)
	})
	return g.Wait()
}

func newRouter(cfg *config.Config, log *slog.Logger, reg *prometheus.Registry, h *handler.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(platformmetrics.NewHTTP(reg).Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
		h.Register(r)
		if cfg.Server.AdminToken != "" {
			h.RegisterAdmin(r, admin.RequireAdminToken(cfg.Server.AdminToken, log))
		} else {
			log.Warn("admin token not configured; admin routes disabled")
		}
	})
	return r
}

// seedCatalog loads invoice facts for the in-memory catalog.
func seedCatalog(path string) (*catalog.Static, error) {
	if path == "" {
		return catalog.NewStatic(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	var facts []models.InvoiceFacts
	if err := json.Unmarshal(raw, &facts); err != nil {
		return nil, fmt.Errorf("parse catalog seed: %w", err)
	}
	for i := range facts {
		if err := facts[i].Validate(); err != nil {
			return nil, errors.Join(fmt.Errorf("catalog seed entry %d", i), err)
		}
	}
	return catalog.NewStatic(facts...), nil
}
