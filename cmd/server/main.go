// Command server runs the direct-message backend: the REST API, the
// WebSocket endpoint and the offline queue connector.
//
// @title                      Direct Message API
// @version                    1.0
// @description                One-to-one messaging with delivery and read receipts, recall, and offline queueing.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                Type "Bearer" followed by a space and the JWT.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-dm-backend/internal/auth"
	"github.com/tbourn/go-dm-backend/internal/config"
	httpapi "github.com/tbourn/go-dm-backend/internal/http"
	"github.com/tbourn/go-dm-backend/internal/observability"
	"github.com/tbourn/go-dm-backend/internal/queue"
	"github.com/tbourn/go-dm-backend/internal/realtime"
	"github.com/tbourn/go-dm-backend/internal/repo"
	"github.com/tbourn/go-dm-backend/internal/services"
	"github.com/tbourn/go-dm-backend/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.ConfigureLogger(sysutil.LogOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: cfg.OTEL.ServiceName,
		Version: version,
	})
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	// Offline queue: the server starts even when the backend is down; the
	// connector keeps retrying and the handle reports Unavailable meanwhile.
	handle := queue.NewHandle()
	conn := &queue.Connector{
		Open:           openQueue(cfg.Queue, cfg.Redis),
		Handle:         handle,
		Attempts:       cfg.Queue.ConnectAttempts,
		HealthInterval: cfg.Queue.HealthInterval,
		Name:           cfg.Queue.Backend,
	}
	if err := conn.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("offline queue unavailable at startup; continuing degraded")
	}
	queueDone := make(chan struct{})
	go func() {
		defer close(queueDone)
		conn.Run(ctx)
	}()
	offline := queue.New(handle, cfg.Queue.KeyPrefix)

	jwt := auth.New(cfg.Auth.Secret, cfg.Auth.Issuer)
	registry := realtime.NewRegistry()
	svc := &services.MessageService{
		DB:              db,
		Presence:        realtime.NewPresenceRouter(registry),
		Queue:           offline,
		MaxContentRunes: cfg.MaxContentRunes,
		IdempotencyTTL:  cfg.IdempotencyTTL,
	}
	ws := realtime.NewHandler(registry, svc, offline, jwt, realtime.Options{
		WriteTimeout:   cfg.WS.WriteTimeout,
		PongWait:       cfg.WS.PongWait,
		PingPeriod:     cfg.WS.PingPeriod,
		MaxFrameBytes:  cfg.WS.MaxFrameBytes,
		AllowedOrigins: cfg.WS.AllowedOrigins,
	})

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Messages: svc,
		Realtime: ws,
		Verifier: jwt,
		Sessions: registry,
		Queue:    handle,
	}, cfg)

	go purgeIdempotency(ctx, svc, time.Hour)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Str("queue", cfg.Queue.Backend).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	<-queueDone

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// openQueue returns the OpenFunc for the configured backend.
func openQueue(qc config.QueueConfig, rc config.RedisConfig) queue.OpenFunc {
	if qc.Backend == config.QueueBackendRedis {
		return func(ctx context.Context) (queue.Store, error) {
			return queue.NewRedisStore(ctx, queue.RedisOptions{
				Addr:     rc.Addr,
				Password: rc.Password,
				DB:       rc.DB,
			})
		}
	}
	return func(context.Context) (queue.Store, error) {
		return queue.OpenBadger(qc.BadgerPath)
	}
}

// purgeIdempotency drops expired idempotency records every interval.
func purgeIdempotency(ctx context.Context, svc *services.MessageService, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := svc.PurgeIdempotency(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired idempotency records removed")
			}
		}
	}
}
