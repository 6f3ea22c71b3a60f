package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/ipcviz/backend/internal/api/http"
	"github.com/ipcviz/backend/internal/api/middleware"
	"github.com/ipcviz/backend/internal/engine"
	"github.com/ipcviz/backend/internal/events"
	"github.com/ipcviz/backend/internal/infrastructure/config"
	"github.com/ipcviz/backend/internal/infrastructure/logging"
	"github.com/ipcviz/backend/internal/infrastructure/monitoring"
	"github.com/ipcviz/backend/internal/scenario"
	"github.com/ipcviz/backend/internal/ws"
)

const shutdownTimeout = 10 * time.Second
const eventHistorySize = 500

// Server wraps the HTTP server and simulation components
type Server struct {
	cfg    *config.Config
	log    *logging.Logger
	engine *engine.Engine
	broker *events.Broker
	router *gin.Engine
	http   *http.Server
}

// New creates a fully wired server instance
func New(cfg *config.Config, log *logging.Logger) (*Server, error) {
	if log == nil {
		log = logging.NewDefault()
	}

	metrics := monitoring.NewMetrics()
	broker := events.NewBroker(eventHistorySize)

	eng := engine.New(engine.Config{
		TickPeriod:           cfg.Sim.TickPeriod,
		ProgressStep:         cfg.Sim.ProgressStep,
		ReleaseDelay:         cfg.Sim.ReleaseDelay,
		BlockDuration:        cfg.Sim.BlockDuration,
		BlockProbability:     cfg.Sim.BlockProbability,
		DefaultQueueCapacity: cfg.Sim.DefaultQueueCapacity,
		DefaultMaxReaders:    cfg.Sim.DefaultMaxReaders,
		Seed:                 cfg.Sim.Seed,
	}).WithEmitter(broker).WithLogger(log).WithMetrics(metrics)

	defs, err := scenario.LoadDir(cfg.Scenarios.Dir)
	if err != nil {
		return nil, err
	}
	runner := scenario.NewRunner(eng, defs)
	log.Info("scenarios loaded", zap.Int("count", len(defs)))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(monitoring.Middleware(metrics))

	handlers := apihttp.NewHandlers(eng, broker, runner)
	wsHandler := ws.NewHandler(eng, broker, log, metrics)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Command endpoints get the per-IP limiter; reads are unthrottled.
	commands := router.Group("/")
	if cfg.RateLimit.Enabled {
		commands.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	commands.POST("/processes", handlers.CreateProcess)
	commands.DELETE("/processes/:id", handlers.RemoveProcess)
	commands.POST("/connections", handlers.CreateConnection)
	commands.POST("/send", handlers.Send)
	commands.POST("/consume", handlers.Consume)
	commands.POST("/reset", handlers.Reset)
	commands.POST("/clear", handlers.Clear)
	commands.POST("/scenarios/:name/run", handlers.RunScenario)

	router.GET("/processes", handlers.ListProcesses)
	router.GET("/connections", handlers.ListConnections)
	router.GET("/transfers", handlers.ListTransfers)
	router.GET("/deadlocks", handlers.ListDeadlocks)
	router.GET("/state", handlers.State)
	router.GET("/events", handlers.ListEvents)
	router.GET("/scenarios", handlers.ListScenarios)

	router.GET("/stream", wsHandler.HandleConnection)

	return &Server{
		cfg:    cfg,
		log:    log,
		engine: eng,
		broker: broker,
		router: router,
	}, nil
}

// Engine exposes the simulation engine, for tests and embedding.
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Router exposes the HTTP router, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the simulation ticker and the HTTP server, blocking until
// ctx is canceled or the server fails.
func (s *Server) Run(ctx context.Context) error {
	go s.engine.Run(ctx)

	addr := s.cfg.Server.Host + ":" + s.cfg.Server.Port
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", zap.String("addr", addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.log.Info("shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.broker.Close()
	return nil
}
