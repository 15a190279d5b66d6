package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/docuease/copilot/internal/audit"
	"github.com/docuease/copilot/internal/chat"
	"github.com/docuease/copilot/internal/config"
	"github.com/docuease/copilot/internal/identity"
	"github.com/docuease/copilot/internal/llm"
	"github.com/docuease/copilot/internal/llm/openai"
	"github.com/docuease/copilot/internal/observability"
	"github.com/docuease/copilot/internal/orchestrator"
	"github.com/docuease/copilot/internal/policy"
	"github.com/docuease/copilot/internal/storage"
	pgstore "github.com/docuease/copilot/internal/storage/postgres"
	sqlitestore "github.com/docuease/copilot/internal/storage/sqlite"
	"github.com/docuease/copilot/internal/tools"
	"github.com/docuease/copilot/internal/tools/clinical"
	"github.com/docuease/copilot/internal/workflow"
)

// offlineReply is what the static provider answers when no LLM is
// configured. Tool suggestions still work; only free-form generation is
// unavailable.
const offlineReply = "I'm running without a language model right now. I can still retrieve patient timelines, draft progress notes, and schedule appointments. Ask for one of those and I'll prepare the tool call."

// SharedComponents holds all initialized subsystems that both serve and MCP
// modes require. Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config *config.Config
	Logger *slog.Logger
	Store  storage.Store // Unified store (SQLite or PostgreSQL).

	Obs          *observability.Observability
	LLMProvider  llm.Provider
	ToolReg      *tools.Registry
	Engine       *policy.Engine
	Actors       *identity.StaticProvider
	Auditor      audit.Appender // Fans out to the DB store and the JSONL file.
	Orchestrator *orchestrator.Orchestrator
	Workflows    *workflow.Service
	Chat         *chat.Service

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// initShared performs all common initialization shared between serve and
// MCP modes. Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Ensure data directory exists.
	dataDir := cfg.ResolvedDataDir()
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	logger.Debug("data directory initialized", slog.String("path", dataDir))

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})
	if obs != nil {
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Metrics != nil),
			slog.Bool("tracing", obs.Tracer != nil),
		)
	}

	// Storage (unified: SQLite default, PostgreSQL optional).
	store, err := initStore(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	sc.Store = store
	sc.addCleanup(func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	})

	// Run migrations.
	if err := store.Migrate(context.Background()); err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Debug("storage initialized", slog.String("driver", store.Driver()))

	if obs != nil && obs.Health != nil {
		obs.Health.AddCheck("database", store.Ping)
	}

	// Audit trail: queryable DB store plus the append-only JSONL file.
	fileLog, err := audit.NewFileLogger(cfg.AuditLogPath(), logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	sc.addCleanup(func() {
		if err := fileLog.Close(); err != nil {
			logger.Error("closing audit log", slog.String("error", err.Error()))
		}
	})
	sc.Auditor = audit.MultiAppender{store.Audit(), fileLog}

	// Chat LLM provider.
	provider, err := newLLMProvider(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing LLM provider: %w", err)
	}
	logger.Debug("llm provider initialized", slog.String("provider", provider.Name()))

	if obs != nil && obs.Metrics != nil {
		provider = observability.NewInstrumentedProvider(provider, obs.Metrics, obs.TracerOrNil())
	}
	sc.LLMProvider = provider

	// Policy engine and identities.
	sc.Engine = policy.NewEngine(policy.DefaultPolicies(), logger)
	sc.Actors = identity.NewStaticProvider().WithAudit(sc.Auditor)

	// Clinical tools.
	reg := tools.NewRegistry()
	reg.Register(clinical.NewTimeline(store.EMR(), logger))
	reg.Register(clinical.NewNoteDrafter(store.EMR(), logger))
	reg.Register(clinical.NewScheduler(store.EMR(), logger))
	reg.Register(clinical.NewMedicationUpdater(store.EMR(), logger))
	sc.ToolReg = reg
	logger.Debug("clinical tools registered", slog.Int("count", len(reg.List())))

	// Orchestrator, workflows, chat.
	sc.Orchestrator = orchestrator.New(
		reg, sc.Engine, store.Pending(), sc.Auditor, store.EMR(), sc.Actors, logger,
	)
	sc.Workflows = workflow.NewService(store.EMR(), sc.Auditor, logger)
	sc.Chat = chat.NewService(store.EMR(), store.Retriever(), provider, logger)

	return sc, nil
}

// initStore opens the configured storage backend.
func initStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.StorageDriverName() {
	case storage.DriverPostgres:
		pg := cfg.Storage.Postgres
		pgCfg := pgstore.Config{
			DSN:        pg.DSN,
			PendingTTL: cfg.Confirmation.TTL(),
		}
		if pg.MaxOpenConns > 0 {
			pgCfg.MaxOpenConns = pg.MaxOpenConns
		}
		if pg.MaxIdleConns > 0 {
			pgCfg.MaxIdleConns = pg.MaxIdleConns
		}
		if pg.ConnMaxLifetimeS > 0 {
			pgCfg.ConnMaxLifetime = time.Duration(pg.ConnMaxLifetimeS) * time.Second
		}
		return pgstore.Open(pgCfg, logger)

	default:
		sqliteCfg := sqlitestore.Config{
			Path:       cfg.DatabasePath(),
			PendingTTL: cfg.Confirmation.TTL(),
		}
		if cfg.Storage != nil && cfg.Storage.SQLite != nil {
			sqliteCfg.JournalMode = cfg.Storage.SQLite.JournalMode
		}
		return sqlitestore.Open(sqliteCfg, logger)
	}
}

// newLLMProvider builds the chat provider chain from config. Unknown names
// fail fast; the static provider needs no credentials and is the default.
func newLLMProvider(cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	names := append([]string{cfg.Providers.DefaultProvider()}, cfg.Providers.Fallback...)

	providers := make([]llm.Provider, 0, len(names))
	for _, name := range names {
		p, err := buildProvider(name, cfg, logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if len(providers) == 1 {
		return providers[0], nil
	}
	return llm.NewFallbackProvider(providers, logger), nil
}

func buildProvider(name string, cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	switch name {
	case "openai":
		oc := cfg.Providers.OpenAI
		var opts []openai.Option
		if oc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(oc.BaseURL))
		}
		return openai.NewClient(oc.APIKey, oc.Model, logger, opts...), nil
	case "static":
		return &llm.StaticProvider{Content: offlineReply}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", name)
	}
}

// newLogger builds the process-wide JSON logger.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
