package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pybox/internal/config"
	handler "pybox/internal/delivery/http"
	"pybox/internal/executor"
	"pybox/internal/usecase"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting pybox execution server")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	// Resolve the two binaries every execution depends on, so a broken
	// deployment fails at startup instead of on the first request.
	interpreterPath, err := exec.LookPath(cfg.Execution.PythonPath)
	if err != nil {
		logger.Fatal("Interpreter not found", zap.String("python_path", cfg.Execution.PythonPath), zap.Error(err))
	}
	cfg.Execution.PythonPath = interpreterPath
	logger.Info("Resolved interpreter", zap.String("path", interpreterPath))

	initPath, err := exec.LookPath(cfg.Execution.SandboxInitPath)
	if err != nil {
		logger.Fatal("Sandbox init helper not found", zap.String("sandbox_init_path", cfg.Execution.SandboxInitPath), zap.Error(err))
	}
	cfg.Execution.SandboxInitPath = initPath
	logger.Info("Resolved sandbox init helper", zap.String("path", initPath))

	// Initialize the execution pipeline
	runner := executor.NewProcessRunner(cfg.Execution, logger)
	executeUC := usecase.NewExecuteCodeUsecase(runner, cfg.Execution, logger)

	// Initialize router
	router := handler.NewRouter(&handler.RouterDeps{
		ExecuteUC:       executeUC,
		ExecCfg:         cfg.Execution,
		Logger:          logger,
		RateLimitPerMin: cfg.Server.RateLimit,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown. The drain window must outlast the longest
	// admissible execution (30s) plus the kill escalation.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 35*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
