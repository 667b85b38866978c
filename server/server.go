package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"smartdoor-relay/clock"
	"smartdoor-relay/confs"
	"smartdoor-relay/handlers"
	httpHandler "smartdoor-relay/handlers/http"
	"smartdoor-relay/repositories"
	"smartdoor-relay/services"
	"smartdoor-relay/storage"
	"smartdoor-relay/usecases"
	"smartdoor-relay/ws"
)

type Server struct {
	app     *gin.Engine
	httpSrv *http.Server
	cfg     *confs.Config
	log     *zap.Logger

	results   repositories.ResultStore
	mgr       *ws.Manager
	reclaimer *services.Reclaimer
	offload   *services.OffloadPipeline
	cancel    context.CancelFunc
}

// NewServer builds the stores, use cases and routes. Nothing runs until
// Start.
func NewServer(cfg *confs.Config, store storage.ObjectStore, clk clock.Clock, log *zap.Logger) *Server {
	gin.SetMode(cfg.GinMode)
	s := &Server{
		app: gin.Default(),
		cfg: cfg,
		log: log,
	}

	// Setup CORS middleware
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Device-Token", "X-Device-ID", "X-Relay-Role"}
	s.app.Use(cors.New(config))

	s.app.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	s.app.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Stores
	queue := repositories.NewMemCommandQueue(cfg.MaxQueueSize)
	s.results = repositories.NewMemResultStore(cfg.MaxResultCache, 4*cfg.MaxResultCache)
	tracker := repositories.NewMemDeviceTracker(clk, cfg.OfflineThreshold)
	logs := repositories.NewMemLogStore(cfg.MaxEvents)
	faces := repositories.NewMemFaceStore(cfg.MaxFaces)

	// Channel, background services and use cases
	s.mgr = ws.NewManager(tracker, cfg.RelayDeviceID, log)
	s.offload = services.NewOffloadPipeline(store, logs, cfg.OffloadWorkers, log)
	s.reclaimer = services.NewReclaimer(queue, s.results, tracker, clk, cfg.SweepInterval, cfg.OfflineThreshold, log)

	deviceUC := usecases.NewDeviceUseCase(tracker, logs, s.offload, store, s.mgr, clk, cfg.SignedURLTTL, log)
	commandsUC := usecases.NewCommandsUseCase(queue, s.results, tracker, clk, cfg.CommandTimeout, log)
	commandsUC.SetPusher(s.mgr)
	facesUC := usecases.NewFacesUseCase(faces, clk)

	// Handlers
	tokens := handlers.Tokens{Device: cfg.DeviceToken, User: cfg.UserToken, API: cfg.APIToken}
	wsHandler := handlers.NewWSHandler(s.mgr, commandsUC, deviceUC, tokens, cfg.RelayDeviceID, cfg.MaxEvents, log)
	cacheHandler := handlers.NewCacheHandler(s.reclaimer, queue, s.results, logs, faces, s.mgr)
	deviceHandler := httpHandler.NewDeviceHandler(commandsUC, deviceUC, log)
	cmdHandler := httpHandler.NewCommandHandler(s.mgr, commandsUC, deviceUC, log)
	faceHandler := httpHandler.NewFaceHandler(facesUC)

	s.app.GET("/api/time", deviceHandler.Time)

	// Device pull API
	device := s.app.Group("/api", handlers.RequireRole(tokens, handlers.RoleDevice))
	{
		device.GET("/heartbeat", deviceHandler.Heartbeat)
		device.GET("/device/poll", deviceHandler.Poll)
		device.POST("/event", deviceHandler.Event)
		device.POST("/device/result", deviceHandler.Result)
		device.POST("/upload/:kind", deviceHandler.Upload)
	}

	// Operator API
	operator := s.app.Group("/api", handlers.RequireRole(tokens, handlers.RoleOperator, handlers.RoleAPI))
	{
		operator.POST("/command", cmdHandler.Enqueue)
		operator.GET("/results", cmdHandler.Results)
		operator.GET("/devices", cmdHandler.Devices)
		operator.GET("/devices/:id/commands", cmdHandler.GetDeviceCommands)
		operator.GET("/status", cmdHandler.Status)
		operator.GET("/sender/poll", cmdHandler.SenderPoll)
		operator.POST("/relay/command", cmdHandler.RelayCommand)

		cache := operator.Group("/cache")
		{
			cache.POST("/sweep", cacheHandler.Sweep)
			cache.GET("/queues", cacheHandler.GetQueues)
			cache.GET("/stats", cacheHandler.GetCacheStats)
		}
	}

	// Face registry, shared by devices and operators
	face := s.app.Group("/api/face", handlers.RequireRole(tokens, handlers.RoleDevice, handlers.RoleOperator))
	{
		face.POST("/register/hex", faceHandler.Register)
		face.GET("/list", faceHandler.List)
		face.GET("/download/:name", faceHandler.Download)
		face.DELETE("/:name", faceHandler.Delete)
		face.POST("/sync", faceHandler.Sync)
	}

	s.app.GET("/ws", wsHandler.HandleChannel)

	s.httpSrv = &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           s.app,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Start launches the reclaimer and the result stream to operators.
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.reclaimer.Start(ctx)
	s.mgr.StreamResults(ctx, s.results)
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.log.Info("relay listening", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, ends background work, closes
// channel connections and waits for in-flight uploads until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)
	if s.cancel != nil {
		s.cancel()
	}
	s.reclaimer.Stop()
	s.mgr.Close()

	done := make(chan struct{})
	go func() {
		s.offload.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("shutdown before offloads finished", zap.Error(ctx.Err()))
	}
	return err
}
