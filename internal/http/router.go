// Package httpapi wires the HTTP transport (Gin) to the message service, the
// realtime endpoint, middleware and route handlers. It centralizes
// cross-cutting concerns such as tracing, correlation IDs, logging/redaction,
// panic recovery, metrics, compression, CORS, security headers,
// authentication, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-dm-backend/docs"
	"github.com/tbourn/go-dm-backend/internal/config"
	"github.com/tbourn/go-dm-backend/internal/http/handlers"
	"github.com/tbourn/go-dm-backend/internal/http/middleware"
)

// MessageService is what the router needs from the message layer: the
// handler contract plus the idempotency probe used by the validator.
type MessageService interface {
	handlers.MessageService
	IdempotencyExists(ctx context.Context, userID, key string, now time.Time) (bool, error)
}

// Deps are the collaborators RegisterRoutes mounts. Realtime, Sessions and
// Queue may be nil.
type Deps struct {
	Messages MessageService
	Realtime handlers.Realtime
	Verifier middleware.TokenVerifier

	// Sessions reports the number of live WebSocket sessions for /health.
	Sessions interface{ Count() int }
	// Queue reports whether the offline queue backend is connected.
	Queue interface{ Connected() bool }
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the authenticated API under cfg.APIBasePath and the
// WebSocket endpoint at cfg.WS.Path.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with credential and PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics (the WebSocket route is counted, not timed)
//  7. Gzip (never on the WebSocket route)
//  8. CORS and Security headers
//
// Inside the API group: Authenticate, then the idempotency validator, then
// the rate limiter, so replays are recognized per user before a token is spent.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	wsPath := cfg.WS.Path
	if wsPath == "" {
		wsPath = "/ws"
	}

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics(wsPath))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression; a hijacked connection cannot be gzip-wrapped
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{wsPath, "/metrics"})))

	// 8) CORS posture (safe defaults: allow all if none configured)
	useCORS(r, cfg.CORS.AllowedOrigins)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.Enabled,
		HSTSMaxAge:   cfg.Security.MaxAge,
		NoStore:      true,
		EnablePolicy: true,
		Expose:       []string{"ETag", middleware.HeaderIdempotencyReplayed},
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", health(deps))

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(deps.Messages, deps.Realtime)

	// Realtime: authenticates inside the handler so the handshake can carry
	// the token as a query parameter.
	if deps.Realtime != nil {
		r.GET(wsPath, h.Connect)
	}

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(
		middleware.Authenticate(deps.Verifier),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, deps.Messages.IdempotencyExists),
		rl.Handler(),
	)
	{
		// Messages
		api.POST("/messages", h.SendMessage)
		api.GET("/messages/:id", h.GetMessage)
		api.POST("/messages/:id/recall", h.RecallMessage)

		// Conversations
		api.GET("/conversations", h.ListConversations)
		api.GET("/conversations/:peerId/messages", h.ListMessages)
		api.POST("/conversations/:peerId/read", h.MarkConversationRead)
		api.GET("/unread-count", h.UnreadCount)
	}
}

// useCORS installs gin-contrib/cors. With no allowlist every origin is
// accepted without credentials; otherwise matching origins are echoed.
func useCORS(r *gin.Engine, origins []string) {
	methods := []string{"GET", "POST", "OPTIONS"}
	headers := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey, "If-None-Match"}
	expose := []string{middleware.RequestIDHeader, "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed}

	if len(origins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     methods,
			AllowHeaders:     headers,
			ExposeHeaders:    expose,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
		return
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	})
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     methods,
		AllowHeaders:     headers,
		ExposeHeaders:    expose,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
}

// health reports liveness plus the realtime and queue state. A disconnected
// queue degrades the service (messages are stored but offline recipients
// are not queued) without failing the probe.
func health(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if deps.Sessions != nil {
			body["sessions"] = deps.Sessions.Count()
		}
		if deps.Queue != nil {
			connected := deps.Queue.Connected()
			body["queue_connected"] = connected
			if !connected {
				body["status"] = "degraded"
			}
		}
		c.JSON(http.StatusOK, body)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
