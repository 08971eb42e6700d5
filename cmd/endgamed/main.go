// Command endgamed is the main process entrypoint for the memory engine:
// it loads configuration, wires providers and stores, and runs the
// background nightly evolution scheduler until signalled to stop.
//
// The request-serving transport (HTTP/gRPC/whatever a collaborator wires
// up) is out of this core's scope; endgamed only owns process lifecycle
// and the subsystems constructed by [app.New].
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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zenzeng/endgameos/internal/app"
	"github.com/zenzeng/endgameos/internal/config"
	"github.com/zenzeng/endgameos/internal/health"
	"github.com/zenzeng/endgameos/internal/observe"
	"github.com/zenzeng/endgameos/pkg/provider/embeddings"
	embeddingsollama "github.com/zenzeng/endgameos/pkg/provider/embeddings/ollama"
	embeddingsopenai "github.com/zenzeng/endgameos/pkg/provider/embeddings/openai"
	"github.com/zenzeng/endgameos/pkg/provider/llm"
	"github.com/zenzeng/endgameos/pkg/provider/llm/anyllm"
	llmopenai "github.com/zenzeng/endgameos/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	userID := flag.String("user", "default", "user id the nightly evolution scheduler runs for")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "endgamed: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "endgamed: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Observability.LogLevel)
	slog.SetDefault(logger)
	slog.Info("endgamed starting", "config", *configPath, "log_level", cfg.Observability.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "endgameos"})
	if err != nil {
		slog.Error("failed to init observability providers", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("otel shutdown error", "err", err)
		}
	}()

	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	var metricsServer *http.Server
	if cfg.Observability.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		health.New(health.GraphStoreChecker(application.GraphStore(), *userID)).Register(mux)
		metricsServer = &http.Server{Addr: cfg.Observability.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "err", err)
			}
		}()
		slog.Info("metrics and health endpoints listening", "addr", cfg.Observability.MetricsAddr)
	}

	slog.Info("engine ready — press Ctrl+C to shut down")
	if err := application.Run(ctx, *userID); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildProviders constructs the embedding and LLM backends named in cfg.
// For embeddings, "openai" (or an empty name) gets the openai-go-backed
// provider, "ollama" the Ollama provider, and any other name is an error.
// For the LLM, "openai" (or an empty name) gets the dedicated
// openai-go-backed provider; any other name is resolved through any-llm-go's
// multi-backend client.
func buildProviders(cfg *config.Config) (*app.Providers, error) {
	emb, err := buildEmbeddings(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("build embeddings provider %q: %w", cfg.Embedding.Provider, err)
	}

	reasoner, err := buildLLM(cfg.Extraction)
	if err != nil {
		return nil, fmt.Errorf("build llm provider %q: %w", cfg.Extraction.Provider, err)
	}

	return &app.Providers{Embeddings: emb, LLM: reasoner}, nil
}

func buildEmbeddings(cfg config.EmbeddingConfig) (embeddings.Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		opts := []embeddingsopenai.Option{}
		if cfg.BaseURL != "" {
			opts = append(opts, embeddingsopenai.WithBaseURL(cfg.BaseURL))
		}
		return embeddingsopenai.New(cfg.APIKey, cfg.ModelID, opts...)
	case "ollama":
		opts := []embeddingsollama.Option{}
		if cfg.Dimension > 0 {
			opts = append(opts, embeddingsollama.WithDimensions(cfg.Dimension))
		}
		return embeddingsollama.New(cfg.BaseURL, cfg.ModelID, opts...)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func buildLLM(cfg config.ExtractionConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		opts := []llmopenai.Option{}
		if cfg.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, llmopenai.WithTimeout(cfg.Timeout))
		}
		return llmopenai.New(cfg.APIKey, cfg.ModelID, opts...)
	default:
		return anyllm.New(cfg.Provider, cfg.ModelID)
	}
}

func newLogger(level string) *slog.Logger {
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
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
