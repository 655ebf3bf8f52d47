package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"finadvisor/internal/adapter/channel"
	"finadvisor/internal/infra/config"
	"finadvisor/internal/infra/logger"
	"finadvisor/internal/infra/tracer"
)

const (
	warmupTimeout   = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = run()
	case "doctor":
		err = runDoctor()
	case "runs":
		err = runRecent(os.Stdout, os.Args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'finadvisor --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`finadvisor - financial education chat backend

USAGE:
    finadvisor [COMMAND] [FLAGS]

COMMANDS:
    serve       Serve the chat API (default)
    doctor      Check configuration and assistant connectivity
    runs        Print recent entries of the run journal

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml, optional)
    --limit N          Number of journal entries for 'runs' (default: 20)

ENVIRONMENT:
    OPENAI_API_KEY         Assistant service credential (required for chat)
    OPENAI_ASSISTANT_ID    Reuse an existing assistant instead of creating one
    OPENAI_BASE_URL        Assistant service endpoint
    FINADVISOR_CONFIG      Config file path
    FINADVISOR_CONFIG_KEY  Passphrase for enc: values in the config file
    FINADVISOR_*           Override individual config fields`)
}

// configPath returns the --config flag value, FINADVISOR_CONFIG, or config.yaml.
func configPath() string {
	return configPathFrom(os.Args, os.Getenv("FINADVISOR_CONFIG"))
}

func configPathFrom(args []string, env string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
	}
	if env != "" {
		return env
	}
	return "config.yaml"
}

func run() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	app, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.warmUp(ctx, cfg, log); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := channel.NewHTTPChannel(cfg.Server, app.advisor, log)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("http: %w", err)
	}

	log.Info("finadvisor starting",
		"addr", srv.Addr(),
		"configured", cfg.Assistant.Configured(),
		"circuit_breaker", cfg.Assistant.CircuitBreaker.Enabled,
		"journal", cfg.Journal.Enabled,
		"max_concurrent", cfg.Run.MaxConcurrent,
	)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("http shutdown error", "error", err)
	}
	app.runs.Wait()
	return nil
}

// warmUp resolves the persona once so that the first request does not pay
// for it and a bad persona id fails the process at startup.
func (a *app) warmUp(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if !cfg.Assistant.Configured() {
		log.Warn("OPENAI_API_KEY is not set; chat requests will be answered with a configuration error")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()

	p, err := a.registry.Persona(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("resolve persona: timed out after %s", warmupTimeout)
		}
		return fmt.Errorf("resolve persona: %w", err)
	}
	if cfg.Assistant.PersonaID == "" {
		log.Info("created a new assistant persona; set OPENAI_ASSISTANT_ID to reuse it", "persona_id", p.ID)
	}
	return nil
}
