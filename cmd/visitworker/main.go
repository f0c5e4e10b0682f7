package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Siddarth2230/shortlink/internal/config"
	"github.com/Siddarth2230/shortlink/internal/repository"
	"github.com/Siddarth2230/shortlink/internal/visits"
	"github.com/Siddarth2230/shortlink/pkg/logger"
)

// visitworker drains the visit queue the API publishes to and records each
// visit in Postgres.
func main() {
	cfg := config.Load()

	log := logger.New(logger.Options{
		Level:    cfg.LogLevel,
		AppName:  "shortlink-visitworker",
		FilePath: cfg.LogFile,
	})
	defer func() { _ = log.Sync() }()

	if cfg.AMQPURL == "" {
		log.Fatal("AMQP_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	recorder := visits.NewRecorder(repository.NewLinkRepository(db, log), visits.UAClassifier{}, log)

	consumers := cfg.VisitWorkers
	if consumers <= 0 {
		consumers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < consumers; i++ {
		c := visits.NewConsumer(cfg.AMQPURL, cfg.VisitQueue, 0, recorder.Handle, cfg.VisitTimeout, log)
		g.Go(func() error { return consumeLoop(gctx, c, log) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("visit worker stopped", zap.Error(err))
	}
	log.Info("visit worker stopped")
}

// consumeLoop reconnects with backoff whenever the broker drops the consumer.
func consumeLoop(ctx context.Context, c *visits.Consumer, log *zap.Logger) error {
	backoff := time.Second
	for {
		err := c.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consumer disconnected, retrying", zap.Error(err), zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
