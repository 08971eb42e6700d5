// Package app wires the engine's subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects every
// subsystem in dependency order, and Shutdown tears them down in reverse.
//
// For testing, inject test doubles via functional options (WithGraphStore,
// WithVectorStore, etc.). When an option is not provided, New builds a real
// implementation from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zenzeng/endgameos/internal/config"
	"github.com/zenzeng/endgameos/internal/evolution"
	"github.com/zenzeng/endgameos/internal/graphstore"
	graphstorepg "github.com/zenzeng/endgameos/internal/graphstore/postgres"
	"github.com/zenzeng/endgameos/internal/ingest"
	"github.com/zenzeng/endgameos/internal/memoryservice"
	"github.com/zenzeng/endgameos/internal/perception"
	"github.com/zenzeng/endgameos/internal/retrieval"
	"github.com/zenzeng/endgameos/internal/vectorstore"
	vectorstorepg "github.com/zenzeng/endgameos/internal/vectorstore/postgres"
	"github.com/zenzeng/endgameos/pkg/provider/embeddings"
	"github.com/zenzeng/endgameos/pkg/provider/llm"
)

// Providers holds one backend per provider slot, populated by main.go from
// the resolved config. Nil Embeddings/LLM is a fatal wiring error — unlike
// the voice-agent ambient stack this domain has no optional providers.
type Providers struct {
	Embeddings embeddings.Provider
	LLM        llm.Provider
}

// App owns every subsystem's lifetime and wires the dependency order: Graph
// Store and Vector Store first, then the Perception Layer, then the Memory
// Service, Ingestion Orchestrator, and Evolution Service, and finally
// Retrieval, which depends on all of the above.
type App struct {
	cfg       *config.Config
	providers *Providers

	graph      graphstore.Store
	vectors    vectorstore.Store
	perception *perception.Layer
	memory     *memoryservice.Service
	ingestion  *ingest.Pipeline
	evolution  *evolution.Service
	scheduler  *evolution.Scheduler
	retrieval  *retrieval.Assembler

	// closers run in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithGraphStore injects a graph store instead of creating one from config.
func WithGraphStore(s graphstore.Store) Option {
	return func(a *App) { a.graph = s }
}

// WithVectorStore injects a vector store instead of creating one from config.
func WithVectorStore(s vectorstore.Store) Option {
	return func(a *App) { a.vectors = s }
}

// New wires every subsystem together in dependency order: Graph Store,
// Vector Store → Perception Layer → Memory Service → Ingestion
// Orchestrator, Evolution Service → Retrieval. The providers struct comes
// from main.go (resolved from cfg.Embedding/cfg.Extraction). Use Option
// functions to inject test doubles for the stores.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStores(ctx); err != nil {
		return nil, fmt.Errorf("app: init stores: %w", err)
	}

	a.perception = perception.New(providers.Embeddings, providers.LLM)

	a.memory = memoryservice.New(a.graph, a.vectors, a.perception, cfg.Attention)
	a.ingestion = ingest.New(a.graph, a.vectors, a.perception, cfg.Ingestion, cfg.Attention)
	a.evolution = evolution.New(a.graph, a.vectors, providers.Embeddings, providers.LLM, cfg.Evolution)
	a.retrieval = retrieval.New(a.graph, a.vectors, a.perception, a.evolution, cfg.Attention)

	return a, nil
}

// initStores constructs the Graph Store and Vector Store from cfg.Postgres
// and cfg.Embedding; each store is built only if it was not injected via an
// option.
func (a *App) initStores(ctx context.Context) error {
	if a.graph == nil {
		dsn := a.cfg.Postgres.DSN
		if dsn == "" {
			return fmt.Errorf("postgres.dsn is required when a graph store is not injected")
		}
		store, err := graphstorepg.NewStore(ctx, dsn)
		if err != nil {
			return fmt.Errorf("open graph store: %w", err)
		}
		a.graph = store
		a.closers = append(a.closers, func() error { store.Close(); return nil })
	}

	if a.vectors == nil {
		dsn := a.cfg.Postgres.DSN
		if dsn == "" {
			return fmt.Errorf("postgres.dsn is required when a vector store is not injected")
		}
		dims := a.cfg.Embedding.Dimension
		if dims == 0 {
			dims = 1536
		}
		store, err := vectorstorepg.NewStore(ctx, dsn, dims)
		if err != nil {
			return fmt.Errorf("open vector store: %w", err)
		}
		a.vectors = store
		a.closers = append(a.closers, func() error { store.Close(); return nil })
	}

	return nil
}

// ─── Accessors ──────────────────────────────────────────────────────────────

// GraphStore returns the Graph Store.
func (a *App) GraphStore() graphstore.Store { return a.graph }

// VectorStore returns the Vector Store.
func (a *App) VectorStore() vectorstore.Store { return a.vectors }

// Memory returns the cognitive-center Memory Service.
func (a *App) Memory() *memoryservice.Service { return a.memory }

// Ingestion returns the file Ingestion Orchestrator.
func (a *App) Ingestion() *ingest.Pipeline { return a.ingestion }

// Evolution returns the Evolution Service.
func (a *App) Evolution() *evolution.Service { return a.evolution }

// Retrieval returns the Retrieval & Context Assembler.
func (a *App) Retrieval() *retrieval.Assembler { return a.retrieval }

// ─── Run ────────────────────────────────────────────────────────────────────

// Run starts the nightly evolution scheduler for userID and blocks until ctx
// is cancelled. The external transport layer (out of this core's scope)
// calls Memory/Ingestion/Retrieval directly per-request; Run only owns the
// background nightly cycle.
func (a *App) Run(ctx context.Context, userID string) error {
	a.scheduler = evolution.NewScheduler(a.evolution, userID)
	a.scheduler.Start(ctx)

	slog.Info("app running", "nightly_cycle_hour", a.cfg.Evolution.NightlyCycleHour)
	<-ctx.Done()
	return ctx.Err()
}

// ─── Shutdown ───────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if a.scheduler != nil {
			a.scheduler.Stop()
		}

		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
