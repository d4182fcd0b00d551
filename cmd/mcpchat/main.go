// Command mcpchat is an interactive chat client that lets a language model
// answer queries with the tools of one MCP server.
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
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/mcpchat/internal/config"
	"github.com/MrWong99/mcpchat/internal/health"
	"github.com/MrWong99/mcpchat/internal/mcp/mcphost"
	"github.com/MrWong99/mcpchat/internal/observe"
	"github.com/MrWong99/mcpchat/internal/orchestrator"
	"github.com/MrWong99/mcpchat/internal/session"
	"github.com/MrWong99/mcpchat/internal/tools"
	"github.com/MrWong99/mcpchat/pkg/provider/llm"
	"github.com/MrWong99/mcpchat/pkg/provider/llm/anyllm"
	"github.com/MrWong99/mcpchat/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mcpchat: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "mcpchat: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("mcpchat starting",
		"config", *configPath,
		"llm", cfg.Providers.LLM.Name,
		"model", cfg.Providers.LLM.Model,
		"mcp_server", cfg.MCP.Server.Name,
		"transport", cfg.MCP.Server.Transport,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(sigCtx, observe.ProviderConfig{ServiceName: "mcpchat"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Language model ────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	model, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to create language model", "provider", cfg.Providers.LLM.Name, "err", err)
		return 1
	}
	llmOpts, err := cfg.Providers.LLM.LLMOptions()
	if err != nil {
		slog.Error("invalid llm options", "err", err)
		return 1
	}

	// ── Tool provider ─────────────────────────────────────────────────────────
	// The stdio child is bound to sigCtx so it outlives the errgroup below
	// until Shell.Run closes it.
	host, err := mcphost.Connect(sigCtx, cfg.MCP.Server.HostConfig())
	if err != nil {
		slog.Error("failed to connect to tool server", "err", fmt.Errorf("%w: %w", tools.ErrConnection, err))
		return 1
	}
	snap, err := tools.Discover(sigCtx, host)
	if err != nil {
		slog.Error("failed to list tools", "server", cfg.MCP.Server.Name, "err", err)
		if cerr := host.Close(); cerr != nil {
			slog.Warn("tool server close error", "err", cerr)
		}
		return 1
	}
	slog.Info("tool server connected", "server", host.ServerName(), "tools", snap.Len())

	// ── Console and loop ──────────────────────────────────────────────────────
	consoleOpts := []session.ConsoleOption{session.WithQuitWord(cfg.Chat.QuitWord)}
	if cfg.Chat.RenderMarkdown {
		consoleOpts = append(consoleOpts, session.WithMarkdown(cfg.Chat.MarkdownStyle, cfg.Chat.WrapWidth))
	}
	console, err := session.NewConsole(os.Stdin, os.Stdout, consoleOpts...)
	if err != nil {
		slog.Error("failed to create console", "err", err)
		_ = host.Close()
		return 1
	}

	loop := orchestrator.New(model, tools.NewDispatcher(host, snap, tools.WithMetrics(metrics)),
		orchestrator.WithMaxRounds(cfg.Chat.Rounds()),
		orchestrator.WithMaxTokens(cfg.Providers.LLM.MaxTokens),
		orchestrator.WithTemperature(llmOpts.Temperature),
		orchestrator.WithSystemPrompt(llmOpts.SystemPrompt),
		orchestrator.WithProviderName(cfg.Providers.LLM.Name),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithToolObserver(console.ShowToolCall),
	)
	if err := loop.Validate(); err != nil {
		slog.Error("model cannot use the tool server", "model", cfg.Providers.LLM.Model, "err", err)
		_ = host.Close()
		return 1
	}
	shell := session.NewShell(console, loop, host, snap.Names())

	// ── Run ───────────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Leaving the chat ends the whole process, diagnostics included.
		defer cancel()
		return shell.Run(gctx)
	})

	if addr := cfg.Server.ListenAddr; addr != "" {
		diag := health.New(health.SessionChecker(host)).WithStats(host)
		handler := health.NewMux(diag, metrics, promhttp.Handler())
		g.Go(func() error {
			return health.Serve(gctx, addr, handler)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the built-in LLM factories into reg.
//
// "openai" talks to any OpenAI-compatible endpoint selected by base_url. The
// remaining names go through any-llm-go.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		opts, err := entry.LLMOptions()
		if err != nil {
			return nil, err
		}
		var oaOpts []openai.Option
		if entry.BaseURL != "" {
			oaOpts = append(oaOpts, openai.WithBaseURL(entry.BaseURL))
		}
		if opts.Organization != "" {
			oaOpts = append(oaOpts, openai.WithOrganization(opts.Organization))
		}
		if opts.Timeout > 0 {
			oaOpts = append(oaOpts, openai.WithTimeout(opts.Timeout))
		}
		p, err := openai.New(entry.APIKey, entry.Model, oaOpts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// Every other any-llm-go backend is available under its own name. Local
	// servers are addressed by base_url and take no API key.
	for _, providerName := range anyllm.Backends() {
		if providerName == "openai" {
			continue
		}
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" && !anyllm.Local(providerName) {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(providerName, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}
}

// newLogger builds the process logger. Logs go to stderr so they never mix
// with the chat on stdout.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
