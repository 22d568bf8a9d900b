package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"

	"attensync/internal/attendance"
	"attensync/internal/ble"
	"attensync/internal/config"
	"attensync/internal/logger"
	"attensync/internal/queue"
	"attensync/internal/reader"
	"attensync/internal/store"
)

// The reader daemon: discovers the ESP32 RFID reader over BLE, keeps a
// notification subscription alive, and marks attendance for every scan.
func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The handler only cancels the context; BLE teardown happens inside
	// the supervisor loop, never in the signal handler itself.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect failed")
	}
	defer db.Close()

	repo := attendance.NewRepository(db.Client)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema init failed")
	}

	var redisClient *store.Redis
	var q queue.Queue
	switch cfg.QueueBackend {
	case "redis":
		redisClient = store.NewRedis(cfg.RedisAddr)
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	case "memory":
		q = queue.NewInMemory(64)
	default:
		log.Info().Str("backend", cfg.QueueBackend).Msg("scan event publication disabled")
	}

	proc := attendance.NewProcessor(repo, cfg.TeacherID, log)

	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		log.Fatal().Err(err).Msg("bluetooth adapter enable failed")
	}

	serviceUUID, err := bluetooth.ParseUUID(cfg.ServiceUUID)
	if err != nil {
		log.Fatal().Err(err).Str("uuid", cfg.ServiceUUID).Msg("invalid service uuid")
	}
	charUUID, err := bluetooth.ParseUUID(cfg.CharUUID)
	if err != nil {
		log.Fatal().Err(err).Str("uuid", cfg.CharUUID).Msg("invalid characteristic uuid")
	}

	events := make(chan ble.TagEvent, 16)
	locator := ble.NewLocator(adapter, ble.LocatorConfig{
		Address:     cfg.DeviceAddress,
		NamePattern: cfg.DeviceName,
		Attempts:    cfg.ScanAttempts,
		Timeout:     cfg.ScanTimeout,
	}, log)
	session := ble.NewSession(adapter, ble.SessionConfig{
		ServiceUUID:    serviceUUID,
		CharUUID:       charUUID,
		ConnectTimeout: cfg.ConnectTimeout,
	}, events, log)

	if cfg.MetricsAddr != "" {
		go serveOps(cfg, db, redisClient, log)
	}

	sup := reader.NewSupervisor(locator, session, events, proc, q, reader.Config{
		MaxRetries:    cfg.MaxRetries,
		RetryDelay:    cfg.RetryDelay,
		MaxRetryDelay: cfg.MaxRetryDelay,
		ServiceMode:   cfg.ServiceMode,
	}, log)

	log.Info().
		Str("device", cfg.DeviceAddress).
		Str("name", cfg.DeviceName).
		Bool("service_mode", cfg.ServiceMode).
		Msg("starting rfid reader")

	if err := sup.Run(ctx); err != nil {
		log.Error().Err(err).Msg("reader stopped")
		os.Exit(1)
	}
	log.Info().Uint64("scans", sup.Scans()).Msg("reader shutdown complete")
}

// serveOps exposes healthz and Prometheus metrics when METRICS_ADDR is
// set. The pipeline itself opens no port.
func serveOps(cfg config.App, db *store.DB, redisClient *store.Redis, log zerolog.Logger) {
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		redisHealthy := redisClient == nil || redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if !dbHealthy || !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "db": dbHealthy, "redis": redisHealthy})
	})

	srv := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	log.Info().Str("addr", cfg.MetricsAddr).Msg("ops endpoint listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("ops endpoint failed")
	}
}
