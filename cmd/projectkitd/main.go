// Projectkitd serves the projectkit HTTP API.
//
// It materializes generated file sets into project directories under a
// workspace and serves those directories back as zip archives.
//
// Configuration is loaded from ~/.config/projectkit/config.yaml (or the file
// given with -config) and PROJECTKIT_* environment variables. See
// internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	projectkitd
//
//	# Configure via environment
//	PROJECTKIT_SERVER_PORT=9090 PROJECTKIT_PROJECTS_WORKSPACE=/srv/projects projectkitd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/projectkit/internal/archive"
	"github.com/fyrsmithlabs/projectkit/internal/config"
	httpserver "github.com/fyrsmithlabs/projectkit/internal/http"
	"github.com/fyrsmithlabs/projectkit/internal/logging"
	"github.com/fyrsmithlabs/projectkit/internal/project"
	"github.com/fyrsmithlabs/projectkit/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const instrumentationName = "github.com/fyrsmithlabs/projectkit"

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/projectkit/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  projectkitd [-config file]   Start the projectkit daemon\n")
			fmt.Fprintf(os.Stderr, "  projectkitd version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, prometheus.DefaultRegisterer, prometheus.DefaultGatherer); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("projectkitd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the server and blocks until ctx is cancelled.
//
// This function:
//  1. Loads and validates configuration
//  2. Initializes telemetry and the logger
//  3. Builds the materializer and archiver with their metrics
//  4. Starts the HTTP server
//  5. Shuts down gracefully on context cancellation
func run(ctx context.Context, configPath string, reg prometheus.Registerer, gatherer prometheus.Gatherer) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, global.GetLoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Strings("reasons", h.Reasons))
	}

	logger.Info(ctx, "starting projectkitd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("workspace", cfg.Projects.Workspace),
		zap.Bool("staging", cfg.Projects.Staging),
		zap.Bool("telemetry", tel.IsEnabled()),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))

	tracer := tel.Tracer(instrumentationName)

	materializer := project.NewMaterializer(cfg.Projects.Workspace,
		project.WithLogger(logger.Named("project")),
		project.WithTracer(tracer),
		project.WithStaging(cfg.Projects.Staging),
		project.WithMetrics(project.NewMetrics(reg)),
	)

	archiver := archive.NewArchiver(
		archive.WithCompressionLevel(cfg.Archive.CompressionLevel),
		archive.WithLimits(cfg.Archive.MaxFiles, cfg.Archive.MaxBytes),
		archive.WithLogger(logger.Named("archive")),
		archive.WithTracer(tracer),
		archive.WithMetrics(archive.NewMetrics(reg)),
	)

	srv, err := httpserver.NewServer(materializer, archiver, logger.Named("http"), &httpserver.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Workspace:      cfg.Projects.Workspace,
		DefaultProject: cfg.Projects.DefaultName,
		DownloadRate:   cfg.Server.DownloadRate,
		DownloadBurst:  cfg.Server.DownloadBurst,
		Gatherer:       gatherer,
		Metrics:        httpserver.NewHTTPMetrics(tel.Meter(instrumentationName), logger),
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := tel.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.Error(context.Background(), "server stopped with error", zap.Error(err))
		return err
	}

	logger.Info(context.Background(), "server shutdown complete")
	return nil
}
