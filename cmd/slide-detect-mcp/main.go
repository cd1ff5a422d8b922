package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ironsheep/slide-detect-mcp/internal/ocr"
	"github.com/ironsheep/slide-detect-mcp/internal/server"
	"github.com/ironsheep/slide-detect-mcp/internal/session"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var configPath string

	args := os.Args[1:]
	for len(args) > 0 {
		switch args[0] {
		case "--version", "-v", "version":
			fmt.Printf("slide-detect-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			fmt.Printf("  Tesseract:  %s\n", ocr.Version())
			return
		case "--help", "-h", "help":
			printHelp()
			return
		case "--config", "-c":
			if len(args) < 2 {
				fmt.Fprintln(os.Stderr, "--config requires a file path")
				os.Exit(2)
			}
			configPath = args[1]
			args = args[1:]
		default:
			fmt.Fprintf(os.Stderr, "unknown option: %s\n", args[0])
			os.Exit(2)
		}
		args = args[1:]
	}

	// Logs go to stderr; stdout is for MCP protocol
	logger, err := newLogger(os.Getenv("SLIDE_MCP_LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid SLIDE_MCP_LOG_LEVEL: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(logger, configPath); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(logger *zap.Logger, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	settings, err := cfg.settings()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := session.NewCollector("slides")
	if cfg.Server.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		if err := collector.Register(reg); err != nil {
			return err
		}
		go serveMetrics(ctx, logger, cfg.Server.MetricsAddr, reg)
	}

	sess := session.New(
		session.WithSettings(settings),
		session.WithLogger(logger),
		session.WithCollector(collector),
	)
	logger.Info("slide detection server starting",
		zap.String("version", Version),
		zap.String("session_id", sess.ID()),
		zap.Float64("sensitivity_threshold", settings.SensitivityThreshold),
		zap.String("ocr_language", cfg.OCR.Language))

	srv := server.New(
		server.WithSession(sess),
		server.WithLogger(logger),
		server.WithOCR(cfg.OCR),
		server.WithMaxFrameSide(cfg.Server.MaxFrameSide),
		server.WithTickInterval(cfg.tickInterval()),
	)
	return srv.Run(ctx)
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = lvl
	}
	return zcfg.Build()
}

// serveMetrics exposes the registry at /metrics until ctx is done.
func serveMetrics(ctx context.Context, logger *zap.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", zap.Error(err))
	}
}

func printHelp() {
	fmt.Println("slide-detect-mcp - MCP server for slide change detection")
	fmt.Println()
	fmt.Println("Usage: slide-detect-mcp [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config, -c FILE  Load settings from a YAML file")
	fmt.Println("  --version, -v      Print version information")
	fmt.Println("  --help, -h         Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  SLIDE_MCP_LOG_LEVEL=debug    Log level (debug, info, warn, error)")
	fmt.Println()
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
}
