package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/GriffinCanCode/ExtensionHost/backend/internal/api/http"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/api/middleware"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/api/ws"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/command"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/install"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/ipclog"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/lifecycle"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/notify"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/permission"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/registry"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/providers/data"
	httpclient "github.com/GriffinCanCode/ExtensionHost/backend/internal/providers/http/client"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/providers/storage"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/sandbox"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/clock"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	manager *lifecycle.Manager
	stream  *ws.Handler
	tracer  *tracing.Tracer
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development)

	logger.Info("Initializing extension host",
		zap.String("addr", cfg.Addr()),
		zap.String("host_version", cfg.Runtime.HostVersion),
		zap.String("registry", registryLabel(cfg)),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("exthost", logger.Logger)
	clk := clock.Real()

	catalog, err := newCatalog(cfg, clk, metrics, logger)
	if err != nil {
		return nil, err
	}

	var installs install.Store
	if cfg.Install.URL != "" {
		installs = install.NewHTTPStore(newClient(cfg, "install", cfg.Install.URL, 0))
		logger.Info("Install state is remote", zap.String("url", cfg.Install.URL))
	} else {
		installs = install.NewMemory(clk)
		logger.Warn("INSTALL_API_URL not set, install state is kept in memory")
	}

	manager := lifecycle.NewManager(lifecycle.Deps{
		Catalog: catalog,
		Sandboxes: sandbox.NewAdapter(sandbox.Config{
			ScriptTimeout: cfg.Runtime.ScriptTimeout,
			CallTimeout:   cfg.Runtime.CallTimeout,
			Clock:         clk,
		}, logger.Named("sandbox"), metrics),
		Installs:    installs,
		Permissions: permission.NewManager(installs, clk, logger.Named("permission"), metrics),
		Data:        data.New(newClient(cfg, "data", cfg.Data.URL, cfg.Data.RequestsPerSecond)),
		KV:          storage.New(installs),
		Commands:    command.NewRegistry(),
		Notices:     notify.NewQueue(clk, cfg.Runtime.NotifyTTL),
		Log:         ipclog.New(clk, cfg.Runtime.LogRetention),
	}, lifecycle.Options{
		HandshakeTimeout: cfg.Runtime.HandshakeTimeout,
		EventHistory:     cfg.Runtime.EventHistory,
		Clock:            clk,
		Logger:           logger,
		Metrics:          metrics,
	})

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(cfg.Server.AllowOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limits))
	}

	handlers := apihttp.NewHandlers(manager, cfg.Runtime.HostVersion)
	stream := ws.NewHandler(manager, metrics, logger.Named("stream"))

	apihttp.Register(router, handlers)
	router.GET("/stream", stream.HandleConnection)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		manager: manager,
		stream:  stream,
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// newCatalog builds the registry loader over a directory or the registry API
func newCatalog(cfg *config.Config, clk clock.Clock, metrics *monitoring.Metrics, logger *logging.Logger) (*registry.Loader, error) {
	var src registry.Source
	if cfg.Registry.Dir != "" {
		src = registry.NewDirSource(cfg.Registry.Dir)
	} else {
		src = registry.NewHTTPSource(newClient(cfg, "registry", cfg.Registry.URL, 0))
	}

	opts := registry.LoaderOptions{
		HostVersion: cfg.Runtime.HostVersion,
		Clock:       clk,
		Metrics:     metrics,
		Logger:      logger.Named("registry"),
	}
	if cfg.Registry.CacheDir != "" {
		disk, err := registry.NewDiskCache(cfg.Registry.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("payload cache: %w", err)
		}
		opts.Disk = disk
	}
	return registry.NewLoader(src, opts), nil
}

func newClient(cfg *config.Config, name, baseURL string, rps float64) *httpclient.Client {
	opts := httpclient.DefaultOptions(name, baseURL)
	opts.Token = cfg.Auth.Token
	opts.APIKey = cfg.Auth.APIKey
	opts.RPS = rps
	if cfg.Registry.Timeout > 0 {
		opts.Timeout = cfg.Registry.Timeout
	}
	return httpclient.New(opts)
}

func registryLabel(cfg *config.Config) string {
	if cfg.Registry.Dir != "" {
		return "dir:" + cfg.Registry.Dir
	}
	return cfg.Registry.URL
}

// Router exposes the configured gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Manager exposes the lifecycle manager
func (s *Server) Manager() *lifecycle.Manager {
	return s.manager
}

// Run syncs the catalog, then serves HTTP until ctx is cancelled. A failed
// initial sync is logged and retried through POST /catalog/sync.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.manager.SyncCatalog(gctx); err != nil {
			s.logger.Warn("Initial catalog sync failed", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close gracefully shuts down the server
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.manager.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to stop extensions", zap.Error(err))
		errs = append(errs, fmt.Errorf("stop extensions: %w", err))
	}
	s.tracer.Close()
	_ = s.logger.Sync()

	return errors.Join(errs...)
}
