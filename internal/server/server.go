package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/freightdesk/relay/internal/api/http"
	"github.com/freightdesk/relay/internal/api/middleware"
	"github.com/freightdesk/relay/internal/infrastructure/config"
	"github.com/freightdesk/relay/internal/infrastructure/logging"
	"github.com/freightdesk/relay/internal/infrastructure/monitoring"
	"github.com/freightdesk/relay/internal/infrastructure/tracing"
	"github.com/freightdesk/relay/internal/relay"
	"github.com/freightdesk/relay/internal/transport"
	"github.com/freightdesk/relay/internal/ws"
)

// Server is the relay daemon: one Relay instance plus the HTTP surface
// that exposes it.
type Server struct {
	cfg     *config.Config
	log     *logging.Logger
	metrics *monitoring.Metrics
	relay   *relay.Relay
	router  *gin.Engine
	http    *http.Server
}

// New builds a fully wired daemon from configuration.
func New(cfg *config.Config, log *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	metrics := monitoring.NewMetrics()

	opts := relay.OptionsFromConfig(cfg.Relay)
	opts.Log = log
	opts.Metrics = metrics
	rl := relay.New(opts)

	upstream := transport.New(cfg.Upstream, log.Logger)
	handlers := apihttp.NewHandlers(rl, upstream, log.Logger)
	wsHandler := ws.NewHandler(rl, log.Logger, metrics)

	tracer := tracing.New("relayd", log.Logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.Middleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/stream", wsHandler.HandleConnection)

	api := router.Group("/")
	if cfg.AdminAPI.Enabled {
		api.Use(middleware.RateLimit(middleware.RateLimitFromConfig(cfg.AdminAPI)))
	}
	api.GET("/status", handlers.Status)
	api.Any("/proxy/*path", handlers.Proxy)
	api.POST("/admin/cache/clear", handlers.ClearCache)
	api.POST("/admin/queue/reset", handlers.ResetQueue)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	return &Server{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		relay:   rl,
		router:  router,
		http: &http.Server{
			Addr:    addr,
			Handler: router,
		},
	}
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until Shutdown is called or the listener fails.
func (s *Server) Run() error {
	s.log.Info("relay daemon listening",
		zap.String("addr", s.http.Addr),
		zap.String("upstream", s.cfg.Upstream.BaseURL),
	)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains HTTP connections, then closes the relay: pending
// queue items are rejected with a terminal error.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.relay.Close()
	s.log.Info("relay daemon stopped")
	return err
}
