package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lodgeline/lodgeline/internal/api"
	"github.com/lodgeline/lodgeline/internal/config"
	"github.com/lodgeline/lodgeline/internal/job"
	"github.com/lodgeline/lodgeline/internal/lodger"
	"github.com/lodgeline/lodgeline/internal/queue"
	"github.com/lodgeline/lodgeline/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rdb *redis.Client
	if cfg.StoreBackend == config.StoreRedis || cfg.QueueBackend == config.QueueRedis {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("redis unreachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
	}

	store, err := newStore(cfg, rdb)
	if err != nil {
		log.Fatal("store", zap.Error(err))
	}
	defer store.Close()

	q := newQueue(cfg, rdb)

	sim := lodger.NewSimulated(cfg.LodgeMinDelay, cfg.LodgeMaxDelay, cfg.LodgeFailureRate)
	w := worker.New(store, q, sim, log.Named("worker"))
	for i := 0; i < cfg.Concurrency; i++ {
		go w.Run(ctx)
	}

	if rq, ok := q.(*queue.RedisQueue); ok {
		go runRequeueSweeper(ctx, rq, cfg.SweepInterval, log.Named("sweeper"))
	}
	if ss, ok := store.(*job.SQLiteStore); ok {
		go runExpiryJanitor(ctx, ss, cfg.SweepInterval, log.Named("janitor"))
	}

	h := api.NewHandler(store, q, cfg, log.Named("api"))
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      h.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", zap.Error(err))
		}
	}()

	log.Info("lodgeline listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("store", cfg.StoreBackend),
		zap.String("queue", cfg.QueueBackend))
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal("server", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func newStore(cfg *config.Config, rdb *redis.Client) (job.Store, error) {
	if cfg.StoreBackend == config.StoreRedis {
		return job.NewRedisStore(rdb, cfg.RecordTTL), nil
	}
	return job.NewSQLiteStore(cfg.DBPath, cfg.RecordTTL)
}

func newQueue(cfg *config.Config, rdb *redis.Client) queue.Queue {
	if cfg.QueueBackend == config.QueueRedis {
		return queue.NewRedisQueue(rdb, cfg.QueueName, cfg.VisibilityTimeout)
	}
	return queue.NewMemoryQueue(cfg.QueueSize)
}

// runRequeueSweeper periodically returns timed-out in-flight messages to
// the queue so slow or crashed consumers do not strand work.
func runRequeueSweeper(ctx context.Context, q *queue.RedisQueue, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.RequeueExpired(ctx, time.Now())
			if err != nil {
				log.Error("requeue expired", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("requeued expired messages", zap.Int("count", n))
			}
		}
	}
}

// runExpiryJanitor garbage-collects expired records; SQLite has no native
// TTL the way Redis does.
func runExpiryJanitor(ctx context.Context, store *job.SQLiteStore, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.DeleteExpired(ctx, time.Now())
			if err != nil {
				log.Error("delete expired records", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("deleted expired records", zap.Int64("count", n))
			}
		}
	}
}
