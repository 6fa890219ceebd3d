package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"futures-trailing-bot/internal/auth"
	"futures-trailing-bot/internal/bot"
	"futures-trailing-bot/internal/events"
	"futures-trailing-bot/internal/logging"
	"futures-trailing-bot/internal/position"
)

// BotAPI is the read side of the trading loop.
type BotAPI interface {
	Status() bot.Status
}

// PositionAPI is the slice of the position manager the operator can reach.
type PositionAPI interface {
	Active() *position.ActivePosition
	State() position.State
	EmergencyExit(ctx context.Context, reason string) error
}

// BreakerAPI exposes the entry gate.
type BreakerAPI interface {
	GetStats() map[string]interface{}
	ForceReset()
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ProductionMode bool
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig
	botAPI     BotAPI
	positions  PositionAPI
	breaker    BreakerAPI
	jwtManager *auth.JWTManager
	hub        *WSHub
	logger     zerolog.Logger
	startedAt  time.Time
}

// Option configures a Server
type Option func(*Server)

// WithAuth guards mutating endpoints with operator tokens.
func WithAuth(m *auth.JWTManager) Option { return func(s *Server) { s.jwtManager = m } }

// WithBreaker exposes circuit breaker stats and reset.
func WithBreaker(b BreakerAPI) Option { return func(s *Server) { s.breaker = b } }

// WithLogger sets the server logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Server) { s.logger = l } }

// NewServer creates a new API server. Every bus event is streamed to /ws
// clients.
func NewServer(config ServerConfig, botAPI BotAPI, positions PositionAPI, eventBus *events.EventBus, opts ...Option) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:    gin.New(),
		config:    config,
		botAPI:    botAPI,
		positions: positions,
		logger:    zerolog.Nop(),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "api").Logger()

	s.router.Use(gin.Recovery())
	s.router.Use(s.requestLogger())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) == 0 || config.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	s.router.Use(cors.New(corsConfig))

	s.hub = NewWSHub(s.logger)
	if eventBus != nil {
		eventBus.SubscribeAll(s.hub.BroadcastEvent)
	}

	if s.jwtManager == nil {
		s.logger.Warn().Msg("Operator auth disabled, mutating endpoints are unguarded")
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleGetStatus)
		api.GET("/position", s.handleGetPosition)

		operator := api.Group("")
		if s.jwtManager != nil {
			operator.Use(auth.Middleware(s.jwtManager))
		}
		operator.POST("/position/close", s.handleClosePosition)
		operator.POST("/circuit-breaker/reset", s.handleResetCircuitBreaker)
	}

	s.router.NoRoute(func(c *gin.Context) {
		errorResponse(c, http.StatusNotFound, "endpoint not found: "+c.Request.Method+" "+c.Request.URL.Path)
	})
}

// requestLogger logs each request at a level chosen by status.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		l := logging.APIContext(s.logger, c.Request.Method, c.FullPath(), c.Writer.Status())
		ev := l.Debug()
		switch {
		case c.Writer.Status() >= 500:
			ev = l.Error()
		case c.Writer.Status() >= 400:
			ev = l.Warn()
		}
		ev.Dur("latency", time.Since(start)).Str("client_ip", c.ClientIP()).Msg("Request")
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub.
func (s *Server) Hub() *WSHub {
	return s.hub
}

// Start runs the hub and serves until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go s.hub.Run()
	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown stops accepting requests and closes websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	s.hub.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
