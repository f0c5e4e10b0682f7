package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/Siddarth2230/shortlink/internal/config"
	"github.com/Siddarth2230/shortlink/internal/handler"
	"github.com/Siddarth2230/shortlink/internal/repository"
	"github.com/Siddarth2230/shortlink/internal/service"
	"github.com/Siddarth2230/shortlink/internal/visits"
	"github.com/Siddarth2230/shortlink/pkg/cache"
	"github.com/Siddarth2230/shortlink/pkg/idgen"
	"github.com/Siddarth2230/shortlink/pkg/logger"
	"github.com/Siddarth2230/shortlink/pkg/tracing"
)

// visitSink is what the service submits visits to, plus its shutdown hook.
type visitSink interface {
	service.VisitDispatcher
	Close(ctx context.Context) error
}

type inlineSink struct{ visits.Inline }

func (inlineSink) Close(context.Context) error { return nil }

func main() {
	cfg := config.Load()

	log := logger.New(logger.Options{
		Level:    cfg.LogLevel,
		AppName:  "shortlink-api",
		FilePath: cfg.LogFile,
	})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := tracing.Init("shortlink-api", os.Stdout)
		if err != nil {
			log.Fatal("tracing init failed", zap.Error(err))
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	// Connect to database
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		log.Fatal("db ping failed", zap.Error(err))
	}

	if err := repository.Migrate(ctx, db); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	repo := repository.NewLinkRepository(db, log)

	linkCache, closeCache := newCache(ctx, cfg, log)
	defer closeCache()

	sink, err := newVisitSink(cfg, repo, log)
	if err != nil {
		log.Fatal("visit pipeline init failed", zap.Error(err))
	}

	gen := idgen.NewGenerator(repo, cfg.CodeLength, idgen.WithLogger(log))
	svc := service.NewLinkService(repo, linkCache, gen, sink, service.Config{
		BaseURL:      cfg.BaseURL,
		CodeLength:   cfg.CodeLength,
		StoreTimeout: cfg.StoreTimeout,
	}, log)

	if cfg.PurgeInterval > 0 {
		go svc.RunPurger(ctx, cfg.PurgeInterval, cfg.PurgeGrace)
	}

	var routes http.Handler = handler.NewRouter(handler.NewLinkHandler(svc, log), cfg.CORSOrigins, log)
	if cfg.TracingEnabled {
		routes = otelhttp.NewHandler(routes, "shortlink-api")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("base_url", cfg.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	// pending visits are flushed before the store goes away
	if err := sink.Close(shutdownCtx); err != nil {
		log.Error("visit pipeline shutdown", zap.Error(err))
	}
}

func newCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (service.Cache, func()) {
	if cfg.CacheBackend == "memory" {
		log.Info("using in-process LRU cache", zap.Int("capacity", cfg.CacheSize))
		return cache.NewLRUCache(cfg.CacheSize, cfg.CacheTTL), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     50,
	})

	// the service degrades to store-only while redis is away
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis ping failed, continuing without cache hits", zap.Error(err))
	}

	return cache.NewRedisCache(client, cfg.CacheTTL, cfg.CacheTimeout), func() { _ = client.Close() }
}

// newVisitSink picks how visits leave the request path: to a broker, to
// the local worker pool, or inline when no workers are configured.
func newVisitSink(cfg *config.Config, repo *repository.LinkRepository, log *zap.Logger) (visitSink, error) {
	recorder := visits.NewRecorder(repo, visits.UAClassifier{}, log)

	if cfg.VisitWorkers <= 0 {
		log.Warn("no visit workers configured, recording visits inline")
		return inlineSink{visits.Inline{Recorder: recorder, Timeout: cfg.VisitTimeout}}, nil
	}

	handle := recorder.Handle
	var publisher *visits.Publisher
	if cfg.AMQPURL != "" {
		p, err := visits.NewPublisher(cfg.AMQPURL, cfg.VisitQueue)
		if err != nil {
			return nil, err
		}
		publisher = p
		handle = p.Publish
		log.Info("publishing visits to broker", zap.String("queue", cfg.VisitQueue))
	}

	pool := visits.NewPool(visits.PoolConfig{
		Workers:   cfg.VisitWorkers,
		QueueSize: cfg.VisitQueueSize,
		Timeout:   cfg.VisitTimeout,
	}, handle, log)

	if publisher == nil {
		return pool, nil
	}
	return &brokerSink{Pool: pool, publisher: publisher}, nil
}

type brokerSink struct {
	*visits.Pool
	publisher *visits.Publisher
}

func (b *brokerSink) Close(ctx context.Context) error {
	err := b.Pool.Close(ctx)
	return errors.Join(err, b.publisher.Close())
}
