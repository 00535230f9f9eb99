package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"classattend/internal/config"
	"classattend/internal/device"
	"classattend/internal/logging"
	"classattend/internal/metrics"
	"classattend/internal/observability"
	"classattend/internal/queue"
	"classattend/internal/store"
)

// Worker consumes device.sweep messages and sweeps expired device bindings on a timer.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Closer()
	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, "worker")
	if err != nil {
		lg.Base.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	if cfg.StoreBackend != "postgres" {
		lg.Base.Fatal("worker requires STORE_BACKEND=postgres")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		lg.Base.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.QueueBackend == "redis" {
		redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
		defer redisClient.Close()
		rdb = redisClient.Client
	}
	q, closeQueue, err := queue.Open(cfg.QueueBackend, rdb, cfg.AMQPURL, lg.Base.Named("queue"))
	if err != nil {
		lg.Base.Fatal("queue init failed", zap.Error(err))
	}
	defer closeQueue()

	registry := device.NewRegistry(device.NewPGStore(db.Client), lg.Base.Named("device"),
		device.WithTTL(cfg.DeviceTTL),
		device.WithSweepTrigger(func(context.Context) {}))

	w := &worker{registry: registry, log: lg.Base}
	if err := w.run(ctx, q, cfg.SweepInterval); err != nil {
		lg.Base.Fatal("worker failed", zap.Error(err))
	}
	lg.Base.Info("worker stopped")
}

type sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

type worker struct {
	registry sweeper
	log      *zap.Logger
}

// run handles queued jobs and sweeps every interval until ctx ends.
func (w *worker) run(ctx context.Context, q queue.Queue, interval time.Duration) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.log.Info("worker started, waiting for messages", zap.Duration("sweep_interval", interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sweep(ctx, "timer")
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			w.handle(ctx, msg)
		}
	}
}

func (w *worker) handle(ctx context.Context, msg queue.Message) {
	switch msg.Type {
	case queue.TypeDeviceSweep:
		w.sweep(ctx, queue.TypeDeviceSweep)
	default:
		metrics.QueueJobs.WithLabelValues(msg.Type, "skipped").Inc()
		w.log.Warn("unknown message type", zap.String("type", msg.Type))
	}
}

func (w *worker) sweep(ctx context.Context, source string) {
	n, err := w.registry.Sweep(ctx)
	if err != nil {
		metrics.QueueJobs.WithLabelValues(queue.TypeDeviceSweep, "failed").Inc()
		w.log.Error("device sweep failed", zap.String("source", source), zap.Error(err))
		observability.CaptureWithTags(err, map[string]string{"job": queue.TypeDeviceSweep})
		return
	}
	metrics.QueueJobs.WithLabelValues(queue.TypeDeviceSweep, "ok").Inc()
	if n > 0 {
		w.log.Info("expired device bindings removed", zap.String("source", source), zap.Int64("count", n))
	}
}
