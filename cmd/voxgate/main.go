// Command voxgate is the main entry point for the voxgate voice gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/voxgate/voxgate/internal/app"
	"github.com/voxgate/voxgate/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "voxgate.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxgate: %v\n", err)
		return 1
	}
	config.ApplyEnv(cfg)

	levelVar := new(slog.LevelVar)
	logger := newLogger(cfg.Server, levelVar)
	slog.SetDefault(logger)

	slog.Info("voxgate starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg,
		app.WithLogger(logger),
		app.WithLevelVar(levelVar),
	)
	if err != nil {
		slog.Error("failed to initialise application", "error", err)
		return 1
	}

	// Hot reload: the watcher polls the config file and hands valid changes
	// to the app. A missing file just disables reload.
	if _, statErr := os.Stat(*configPath); statErr == nil {
		watcher, werr := config.NewWatcher(*configPath, func(old, new *config.Config) {
			config.ApplyEnv(new)
			application.HandleReload(old, new)
		})
		if werr != nil {
			slog.Warn("config watcher disabled", "error", werr)
		} else {
			defer watcher.Stop()
		}
	}

	printStartupSummary(cfg)
	slog.Info("gateway ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "error", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         voxgate — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("LLM", string(cfg.Providers.LLM.Backend)+" / "+cfg.Providers.LLM.Model)
	printEntry("STT", "parakeet @ "+cfg.Providers.Parakeet.URL)
	printEntry("TTS kokoro", cfg.Providers.Kokoro.URL)
	if cfg.Providers.OpenAI.APIKey != "" {
		printEntry("TTS openai", "configured")
	} else {
		printEntry("TTS openai", "(disabled)")
	}
	fmt.Printf("║  Personas        : %-19d ║\n", len(cfg.Personas))
	if cfg.Keywords.Enabled {
		fmt.Printf("║  Keywords        : %-19d ║\n", len(cfg.Keywords.Words))
	}
	printEntry("Listen addr", cfg.Server.ListenAddr)
	if cfg.Server.TLS != nil {
		printEntry("TLS", "enabled")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEntry(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(cfg config.ServerConfig, levelVar *slog.LevelVar) *slog.Logger {
	switch cfg.LogLevel {
	case config.LogDebug:
		levelVar.Set(slog.LevelDebug)
	case config.LogWarn:
		levelVar.Set(slog.LevelWarn)
	case config.LogError:
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: levelVar}
	if cfg.LogFormat == config.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
