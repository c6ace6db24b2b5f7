// Command narrator is the main entry point for the colony narration server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/narrator/internal/app"
	"github.com/MrWong99/narrator/internal/backend"
	"github.com/MrWong99/narrator/internal/config"
	"github.com/MrWong99/narrator/internal/observe"
	"github.com/MrWong99/narrator/pkg/provider/llm"
	"github.com/MrWong99/narrator/pkg/provider/llm/anyllm"
	"github.com/MrWong99/narrator/pkg/provider/llm/openai"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	probe := flag.Bool("probe", false, "send a test prompt to a backend profile and exit")
	probeProfile := flag.String("profile", "", "profile used by -probe (default: the active one)")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	slog.SetDefault(newLogger(level))

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Load configuration ────────────────────────────────────────────────────
	// The watcher performs the initial load; its callback is bound to the
	// application once that exists.
	var application *app.App
	watcher, err := config.NewWatcher(*configPath, func(_, next *config.Config) {
		if application != nil {
			application.Reload(next)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "narrator: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "narrator: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()
	level.Set(logLevel(cfg.Server.LogLevel))

	slog.Info("narrator starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	profiles, err := app.BuildProfiles(cfg, reg)
	if err != nil {
		slog.Error("failed to build backend profiles", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *probe {
		return runProbe(ctx, profiles, *probeProfile)
	}

	// ── Telemetry ─────────────────────────────────────────────────────────────
	metricsReg := prometheus.NewRegistry()
	metricsReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "narrator",
		ServiceVersion: version,
		Registerer:     metricsReg,
		SampleRatio:    cfg.Observability.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	if addr := cfg.Observability.MetricsAddr; addr != "" {
		go serveMetrics(ctx, addr, metricsReg)
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err = app.New(ctx, cfg, profiles,
		app.WithLogLevel(level),
		app.WithWatcher(watcher),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// runProbe sends the test prompt to the named profile, or the active one,
// and prints the reply.
func runProbe(ctx context.Context, profiles *backend.Set, name string) int {
	p := profiles.Active()
	if name != "" {
		var ok bool
		if p, ok = profiles.Get(name); !ok {
			fmt.Fprintf(os.Stderr, "narrator: unknown profile %q\n", name)
			return 1
		}
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	reply, err := backend.Probe(ctx, p, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "narrator: %v\n", err)
		return 1
	}
	fmt.Printf("%s / %s replied:\n\n%s\n", p.Name, p.Model, reply)
	return 0
}

// serveMetrics exposes the Prometheus registry the OTel exporter writes to.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	slog.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server error", "err", err)
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmProviders share the same pattern: optional APIKey + optional BaseURL.
var anyllmProviders = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in LLM factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(b config.BackendConfig) (llm.Provider, error) {
		var opts []openai.Option
		if b.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(b.BaseURL))
		}
		if b.Timeout > 0 {
			opts = append(opts, openai.WithTimeout(b.Timeout))
		}
		return openai.New(b.APIKey, b.Model, opts...)
	})

	for _, providerName := range anyllmProviders {
		reg.RegisterLLM(providerName, func(b config.BackendConfig) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if b.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(b.APIKey))
			}
			if b.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(b.BaseURL))
			}
			return anyllm.New(providerName, b.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(b config.BackendConfig) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if b.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(b.BaseURL))
		}
		return anyllm.New("ollama", b.Model, opts...)
	})

	for _, name := range config.KnownProviders {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Narrator: startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	for _, b := range cfg.Backends {
		label := "Backend"
		if b.Active {
			label = "Backend (*)"
		}
		printRow(label, b.Provider+" / "+b.Model)
	}
	enabled := 0
	for _, p := range cfg.Personas {
		if p.IsEnabled() {
			enabled++
		}
	}
	printRow("Personas", fmt.Sprintf("%d (%d enabled)", len(cfg.Personas), enabled))
	printRow("State store", orDisabled(cfg.Storage.RedisAddr))
	printRow("Usage store", orDisabled(redactDSN(cfg.Storage.PostgresDSN)))
	if cfg.Sinks.Discord != nil {
		printRow("Discord", "enabled")
	} else {
		printRow("Discord", "(disabled)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr+cfg.Feed.Path)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func orDisabled(s string) string {
	if s == "" {
		return "(disabled)"
	}
	return s
}

// redactDSN hides everything but the scheme of a connection string.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	for i := 0; i+2 < len(dsn); i++ {
		if dsn[i:i+3] == "://" {
			return dsn[:i+3] + "…"
		}
	}
	return "configured"
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func logLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
