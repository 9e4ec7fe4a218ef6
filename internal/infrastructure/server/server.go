// Package server wires the lifecycle manager together and serves the API.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/webOS-ports/sam/internal/api/http"
	"github.com/webOS-ports/sam/internal/api/middleware"
	"github.com/webOS-ports/sam/internal/api/ws"
	"github.com/webOS-ports/sam/internal/domain/catalog"
	"github.com/webOS-ports/sam/internal/domain/lifecycle"
	"github.com/webOS-ports/sam/internal/infrastructure/config"
	"github.com/webOS-ports/sam/internal/infrastructure/logging"
	"github.com/webOS-ports/sam/internal/infrastructure/monitoring"
	"github.com/webOS-ports/sam/internal/lifehandlers/native"
	"github.com/webOS-ports/sam/internal/lifehandlers/qml"
	"github.com/webOS-ports/sam/internal/lifehandlers/web"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	router       *gin.Engine
	httpServer   *http.Server
	orchestrator *lifecycle.Orchestrator
	catalog      *catalog.Catalog
	hub          *ws.Hub
	logger       *logging.Logger
	config       *config.Config
	metrics      *monitoring.Metrics
}

// New builds a fully wired server from configuration.
func New(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger, _ = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: false,
			OutputPaths: []string{"stdout"},
		})
		if logger == nil {
			logger = logging.NewDefault()
		}
	}

	logger.Info("initializing sam",
		zap.String("port", cfg.Server.Port),
		zap.String("distro", cfg.Lifecycle.TargetDistro),
		zap.Duration("transitionTimeout", cfg.Lifecycle.TransitionTimeout))

	metrics := monitoring.NewMetrics()

	cat := catalog.New()
	if err := cat.LoadDir(cfg.Catalog.Dir); err != nil {
		// An empty catalog still serves; apps appear as manifests install.
		logger.Warn("catalog load failed", zap.String("dir", cfg.Catalog.Dir), zap.Error(err))
	}
	logger.Info("catalog loaded", zap.Int("launchPoints", cat.Size()))

	hub := ws.NewHub(logger, metrics)

	// The native backend reports process exits back into the orchestrator;
	// the variable is bound before any process can start.
	var orchestrator *lifecycle.Orchestrator
	nativeHandler := native.New(logger, func(pid int) {
		orchestrator.OnProcessExited(pid)
	})
	webHandler := web.New(cfg.Launcher.WebManagerURL, cfg.Launcher.RequestTimeout, logger)
	qmlHandler := qml.New(cfg.Launcher.QMLBoosterURL, cfg.Launcher.RequestTimeout, logger)

	svc := lifecycle.NewServices(
		cfg,
		cat,
		lifecycle.NewHandlerMux(nativeHandler, webHandler, qmlHandler),
		hub,
		logger,
		metrics,
	)
	orchestrator = lifecycle.NewOrchestrator(svc)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(metrics.Middleware())
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit))
	}

	s := &Server{
		router:       router,
		orchestrator: orchestrator,
		catalog:      cat,
		hub:          hub,
		logger:       logger,
		config:       cfg,
		metrics:      metrics,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	handlers := apihttp.NewHandlers(s.orchestrator, s.catalog, s.logger)

	s.router.GET("/", handlers.Root)
	s.router.GET("/healthz", handlers.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api/v1")
	{
		api.POST("/launch", handlers.Launch)
		api.POST("/pause", handlers.Pause)
		api.POST("/close", handlers.Close)
		api.GET("/getAppLifeStatus", handlers.GetAppLifeStatus)
		api.GET("/running", handlers.Running)
		api.GET("/launchPoints", handlers.ListLaunchPoints)
		api.GET("/subscribe", s.hub.Subscribe)
		api.GET("/registerApp", s.hub.RegisterApp(s.orchestrator))
	}
}

// Orchestrator exposes the core for tests and embedding.
func (s *Server) Orchestrator() *lifecycle.Orchestrator { return s.orchestrator }

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	s.logger.Info("serving", zap.String("addr", addr))

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
