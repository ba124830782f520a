package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"stagebox/internal/config"
	"stagebox/internal/executor"
	"stagebox/internal/handlers"
	"stagebox/internal/logging"
	"stagebox/internal/middleware"
	"stagebox/internal/runtime"
	"stagebox/internal/session"
	"stagebox/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			// No .env file; plain environment variables are fine.
		}
	}

	logging.Init()
	defer logging.Sync()
	log := logging.L()

	cfg := config.Load()
	log.Info("starting stagebox",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port))

	// Runtime backend and preview pipeline.
	backend, err := runtime.NewDockerBackend(cfg.DockerHost, cfg.RuntimeImage, cfg.PreviewPort)
	if err != nil {
		log.Fatal("failed to create docker client", zap.Error(err))
	}
	manager := runtime.NewManager(backend, runtime.WithInstallTimeout(cfg.InstallTimeout))
	controller := session.NewController(manager)

	if err := manager.Capable(context.Background()); err != nil {
		log.Warn("isolation capability absent, in-process sandbox disabled",
			zap.Error(err))
	} else {
		log.Info("docker runtime available",
			zap.String("image", cfg.RuntimeImage),
			zap.Int("preview_port", cfg.PreviewPort))
	}

	// Execution backends and routing chain.
	browser := executor.NewSandboxExecutor(manager)
	remote := executor.NewRemoteExecutor(cfg.RemoteExecutorURL)
	fallback := executor.NewFallbackExecutor(cfg.FallbackExecutorURL)
	var fallbackExec executor.Executor
	if fallback != nil {
		fallbackExec = fallback
		log.Info("fallback executor configured", zap.String("url", cfg.FallbackExecutorURL))
	}
	execRouter := executor.NewRouter(browser, remote, fallbackExec)
	log.Info("execution router initialized",
		zap.String("remote", cfg.RemoteExecutorURL),
		zap.Bool("fallback", fallback != nil))

	// Execution history.
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal("failed to open execution history store",
			zap.String("path", cfg.DatabasePath), zap.Error(err))
	}

	handler := handlers.NewHandler(execRouter, controller, st)
	handler.ExecTimeout = cfg.ExecutionTimeout

	engine := setupRouter(cfg, handler)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	log.Info("server listening", zap.String("addr", httpServer.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Fatal("server failed", zap.Error(err))
	case sig := <-quit:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

// setupRouter builds the gin engine with the middleware stack and all
// routes. The shared runtime, when booted, deliberately outlives the HTTP
// server; it has no teardown path.
func setupRouter(cfg *config.Config, handler *handlers.Handler) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.CORS())
	engine.Use(middleware.Metrics())
	engine.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitRPS*2))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"preview": handler.Controller.Status().Status,
		})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.RegisterRoutes(engine.Group("/api/v1"))

	return engine
}
