// TARSy session core server: claims queued alert sessions, runs them, and
// keeps the session history consistent across pods.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/tarsy-core/pkg/api"
	"github.com/codeready-toolchain/tarsy-core/pkg/cleanup"
	"github.com/codeready-toolchain/tarsy-core/pkg/config"
	"github.com/codeready-toolchain/tarsy-core/pkg/database"
	"github.com/codeready-toolchain/tarsy-core/pkg/history"
	"github.com/codeready-toolchain/tarsy-core/pkg/queue"
	"github.com/codeready-toolchain/tarsy-core/pkg/services"
	"github.com/codeready-toolchain/tarsy-core/pkg/telemetry"
	"github.com/codeready-toolchain/tarsy-core/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

// setupLogging installs the default slog handler from LOG_FORMAT (text|json)
// and LOG_LEVEL (debug|info|warn|error).
func setupLogging() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	envErr := godotenv.Load(envPath)
	setupLogging()
	if envErr != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", envErr)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	grpcPort := getEnv("GRPC_PORT", "9090")
	podID := resolvePodID()

	slog.Info("Starting TARSy session core",
		"version", version.Full(),
		"http_port", httpPort,
		"grpc_port", grpcPort,
		"pod_id", podID,
		"config_dir", *configDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Metrics
	metricsProvider, err := telemetry.Setup(ctx, telemetry.ExportConfig{
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:    getEnv("OTEL_EXPORTER_OTLP_INSECURE", "true") == "true",
		ServiceName: version.AppName,
		Version:     version.GitCommit,
	})
	if err != nil {
		slog.Error("Failed to initialize metrics", "error", err)
		os.Exit(1)
	}
	metrics := metricsProvider.Metrics

	// 3. History store
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	historySvc := history.NewServiceFromConfig(dbConfig, history.RetryConfig{
		MaxRetries: cfg.History.MaxRetries,
		BaseDelay:  cfg.History.BaseDelay,
		MaxDelay:   cfg.History.MaxDelay,
	}, metrics)
	// Without a database the process keeps serving in logging-only mode:
	// history calls return zero values and /health reports unhealthy.
	persistent := historySvc.Initialize(ctx)
	if persistent {
		slog.Info("History store ready", "driver", dbConfig.Driver)
	} else {
		slog.Error("History store unavailable, running in logging-only mode", "driver", dbConfig.Driver)
	}
	defer func() {
		if err := historySvc.Close(); err != nil {
			slog.Error("Error closing history store", "error", err)
		}
	}()

	// 4. Claim worker and maintenance. Neither runs without a database.
	runner := queue.NewSessionRunner(historySvc, cfg.Queue, queue.NewStubProcessor().Process, metrics)
	worker := queue.NewSessionClaimWorker(podID, historySvc, cfg.Queue, runner.Process, metrics)
	cleanupSvc := cleanup.NewService(cfg.Retention, cfg.Queue, historySvc)
	if persistent {
		// Rows this pod left behind in a previous run.
		sweepOwnRows(ctx, historySvc, podID, "startup")
		worker.Start(ctx)
		cleanupSvc.Start(ctx)
	}

	// 5. Servers
	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := api.NewServer(cfg, historySvc,
		services.NewAlertService(historySvc, cfg),
		services.NewSessionService(historySvc, worker),
		worker)
	grpcServer, grpcHealth := api.NewGRPCServer()

	errCh := make(chan error, 2)
	httpLis, err := net.Listen("tcp", ":"+httpPort)
	if err != nil {
		slog.Error("Failed to listen for HTTP", "port", httpPort, "error", err)
		os.Exit(1)
	}
	go func() {
		if err := httpServer.Serve(httpLis); err != nil {
			errCh <- err
		}
	}()

	grpcLis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		slog.Error("Failed to listen for gRPC", "port", grpcPort, "error", err)
		os.Exit(1)
	}
	go func() {
		slog.Info("gRPC health server listening", "addr", grpcLis.Addr().String())
		if err := grpcServer.Serve(grpcLis); err != nil {
			errCh <- err
		}
	}()
	go api.MirrorHealth(ctx, grpcHealth, api.DatabaseCheck(historySvc, 2*time.Second), 10*time.Second)

	slog.Info("TARSy session core started",
		"pod_id", podID,
		"max_global_concurrent", cfg.Queue.MaxGlobalConcurrent)

	// 6. Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}
	stop()

	// 7. Graceful shutdown. In-flight sessions get GracefulShutdownTimeout;
	// whatever is still owned by this pod afterwards is failed by the sweep.
	grpcHealth.Shutdown()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Queue.GracefulShutdownTimeout)
	if n := worker.Shutdown(shutdownCtx); n > 0 {
		slog.Warn("Sessions cancelled at shutdown", "count", n)
	}
	cancelShutdown()

	if persistent {
		sweepOwnRows(context.Background(), historySvc, podID, "shutdown")
	}
	cleanupSvc.Stop()

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelHTTP()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	grpcServer.GracefulStop()

	if err := metricsProvider.Shutdown(httpCtx); err != nil {
		slog.Warn("Metrics flush failed", "error", err)
	}
	slog.Info("Shutdown complete")
}

// sweepOwnRows fails the sessions and releases the chats still attributed
// to this pod.
func sweepOwnRows(ctx context.Context, h *history.Service, podID, phase string) {
	sessions := h.MarkPodSessionsInterrupted(ctx, podID)
	chats := h.MarkPodChatsInterrupted(ctx, podID)
	slog.Info("Pod sweep complete", "phase", phase, "pod_id", podID, "sessions", sessions, "chats", chats)
}
