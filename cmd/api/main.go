package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"classattend/internal/attendance"
	"classattend/internal/config"
	"classattend/internal/device"
	"classattend/internal/export"
	"classattend/internal/feed"
	"classattend/internal/handler"
	"classattend/internal/httpmiddleware"
	"classattend/internal/logging"
	"classattend/internal/observability"
	"classattend/internal/queue"
	"classattend/internal/roster"
	"classattend/internal/store"
	"classattend/internal/summary"
)

var version = "dev"

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

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, version)
	if err != nil {
		lg.Base.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, lg.Base); err != nil {
		lg.Base.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := feed.NewHub()
	probes := map[string]handler.Probe{}

	var (
		st       attendance.Store
		bindings device.BindingStore
	)
	switch cfg.StoreBackend {
	case "memory":
		lg.Warn("using in-memory store, data is lost on restart")
		st = attendance.NewMemStore(hub)
		bindings = device.NewMemoryStore()
	default:
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := store.Migrate(db.Client); err != nil {
			return err
		}
		st = attendance.NewRepository(db.Client)
		bindings = device.NewPGStore(db.Client)
		probes["db"] = func(ctx context.Context) bool { return db.Ping(ctx) == nil }
		go store.NewListener(cfg.DatabaseURL, attendance.ChangeChannel, hub, lg.Named("listener")).Run(ctx)
	}

	var redisClient *store.Redis
	if cfg.QueueBackend == "redis" || cfg.RateLimitBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
		defer redisClient.Close()
		probes["redis"] = redisClient.Healthy
	}

	regOpts := []device.Option{
		device.WithTTL(cfg.DeviceTTL),
		device.WithPolicy(device.Policy(cfg.DeviceExpiredPolicy)),
	}
	// The worker only sees bindings in Postgres; in-memory setups sweep in process.
	if cfg.StoreBackend != "memory" && cfg.QueueBackend != "memory" {
		q, closeQueue, err := queue.Open(cfg.QueueBackend, redisClientOrNil(redisClient), cfg.AMQPURL, lg.Named("queue"))
		if err != nil {
			return err
		}
		defer closeQueue()
		regOpts = append(regOpts, device.WithSweepTrigger(sweepPublisher(q, lg)))
	}
	registry := device.NewRegistry(bindings, lg.Named("device"), regOpts...)

	classes := attendance.NewService(st, registry, cfg.Location(), lg.Named("attendance"))
	h := handler.New(
		classes,
		summary.NewService(classes, hub, cfg.LateThreshold, lg.Named("summary")),
		export.NewExporter(classes, export.Options{
			Location:    cfg.Location(),
			LateAfter:   cfg.LateThreshold,
			AbsentAfter: cfg.ExportAbsentAfter,
		}, lg.Named("export")),
		roster.NewImporter(classes, lg.Named("roster")),
		handler.Options{
			PublicBaseURL:    cfg.PublicBaseURL,
			QRDisplaySeconds: cfg.QRDisplaySeconds,
			DeviceSalt:       cfg.DeviceSalt,
			JWTSigningKey:    cfg.JWTSigningKey,
			JWTIssuer:        cfg.JWTIssuer,
			Probes:           probes,
		},
		lg.Named("http"),
	)

	var limiter httpmiddleware.Limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	}

	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, rec any) {
		lg.Error("panic recovered", zap.Any("panic", rec), zap.String("path", c.FullPath()))
		observability.CaptureWithTags(errors.New("panic in handler"), map[string]string{"route": c.FullPath()})
		c.AbortWithStatus(http.StatusInternalServerError)
	}))
	r.Use(httpmiddleware.AccessLog(lg.Named("access"), "/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins())))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.RateLimit(limiter, lg.Named("ratelimit")))
	h.Register(r)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// no WriteTimeout: summary streams stay open
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("starting server", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	lg.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("server forced shutdown", zap.Error(err))
	}
	lg.Info("server exited")
	return nil
}

// sweepPublisher hands the post-bind sweep to the worker.
func sweepPublisher(q queue.Queue, lg *zap.Logger) func(context.Context) {
	return func(context.Context) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			body := []byte(time.Now().UTC().Format(time.RFC3339))
			if err := q.Publish(ctx, queue.Message{Type: queue.TypeDeviceSweep, Body: body}); err != nil {
				lg.Warn("queue publish failed", zap.String("type", queue.TypeDeviceSweep), zap.Error(err))
			}
		}()
	}
}

func redisClientOrNil(r *store.Redis) *redis.Client {
	if r == nil {
		return nil
	}
	return r.Client
}

func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", device.FingerprintHeader},
		ExposeHeaders: []string{"Content-Disposition", "X-QR-Display-Seconds"},
		MaxAge:        24 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cc.AllowAllOrigins = true
			return cc
		}
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
		return cc
	}
	cc.AllowOrigins = origins
	cc.AllowCredentials = true
	return cc
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

func init() {
	if v, ok := os.LookupEnv("APP_VERSION"); ok && v != "" {
		version = v
	}
}
