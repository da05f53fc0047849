// Command texconvd serves the LaTeX conversion API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/darven/go-texconv/internal/api"
	"github.com/darven/go-texconv/internal/config"
	"github.com/darven/go-texconv/internal/convert"
)

// Version is set at build time via ldflags.
var Version = "dev"

// shutdownGrace is how long in-flight requests get to finish on SIGTERM.
const shutdownGrace = 30 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := flag.NewFlagSet("texconvd", flag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to YAML config file")
	listen := flags.String("listen", "", "bind address (overrides config)")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Println("texconvd " + Version)
		return nil
	}

	// A local .env is optional; absence is the normal case in production.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	setupLogging(cfg.LogLevel)

	// Error ignored: maxprocs.Set only fails on an invalid GOMAXPROCS env
	// value, in which case runtime defaults apply.
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, v ...interface{}) {
		slog.Debug(fmt.Sprintf(format, v...))
	}))

	svc := convert.New(
		convert.WithWorkspaceDir(cfg.WorkspaceDir),
		convert.WithAssetDir(cfg.AssetDir),
		convert.WithRenderTimeout(cfg.RenderTimeout),
	)
	srv := api.NewServer(cfg.Listen, svc, cfg.MaxUploadBytes)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("texconvd listening", "addr", cfg.Listen, "version", Version)
		errCh <- srv.Start()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// setupLogging installs the default slog handler at the configured level.
func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
