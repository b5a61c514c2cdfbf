package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/velora/internal/cache"
	"github.com/roach88/velora/internal/classify"
	"github.com/roach88/velora/internal/config"
	"github.com/roach88/velora/internal/ir"
	"github.com/roach88/velora/internal/llm"
	"github.com/roach88/velora/internal/llm/provider"
	"github.com/roach88/velora/internal/mapping"
	"github.com/roach88/velora/internal/metrics"
	"github.com/roach88/velora/internal/reconcile"
	"github.com/roach88/velora/internal/store"
)

// overrides are the per-command flags that take precedence over the config
// file and the environment.
type overrides struct {
	Source  string
	Mode    string
	Timeout time.Duration
}

// loadConfig merges defaults, the config file, the environment and flags.
// A config file named with --config must exist.
func loadConfig(opts *RootOptions, o overrides) (config.Config, error) {
	path, mustExist := opts.ConfigPath, true
	if path == "" {
		path, mustExist = config.DefaultFile, false
	}

	cfg, err := config.Load(path, mustExist, lookupEnv(opts))
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	if o.Source != "" || o.Mode != "" || o.Timeout != 0 {
		if o.Source != "" {
			cfg.Source.Path = o.Source
		}
		if o.Mode != "" {
			cfg.Mode = ir.UpdateMode(o.Mode)
		}
		if o.Timeout != 0 {
			cfg.Run.Timeout = o.Timeout
		}
		if err := cfg.Validate(); err != nil {
			return config.Config{}, WrapExitError(ExitCommandError, "invalid flags", err)
		}
	}

	if err := opts.setLogLevel(cfg.Log.Level); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

// runtime is everything one reconciliation needs, opened from a Config.
type runtime struct {
	cfg     config.Config
	logger  *zap.Logger
	store   *store.Store // nil unless a SQLite backend or tier is configured
	ledger  *mapping.Ledger
	cache   *cache.Cache
	metrics *metrics.Recorder
	orch    *reconcile.Orchestrator
	closers []func() error
}

// openRuntime opens the mapping store, the cache tiers and the LLM provider,
// and assembles the orchestrator. Close must be called on success.
func openRuntime(ctx context.Context, cfg config.Config, logger *zap.Logger, extra ...reconcile.Option) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger, metrics: metrics.New()}
	if err := rt.open(ctx, extra); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) open(ctx context.Context, extra []reconcile.Option) error {
	cfg := rt.cfg

	if usesSQLite(cfg) {
		st, err := openStore(databasePath(cfg))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		rt.store = st
		rt.closers = append(rt.closers, st.Close)
	}

	var backend mapping.Backend = mapping.NewFileBackend(cfg.Mapping.Path)
	if cfg.Mapping.Backend == "sqlite" {
		backend = rt.store.Mappings()
	}
	ledger, err := mapping.Open(ctx, backend)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load mapping store", err)
	}
	rt.ledger = ledger

	remote, err := rt.openRemote()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open remote cache", err)
	}
	cacheOpts := []cache.Option{
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithLogger(rt.logger),
		cache.WithMetrics(rt.metrics),
	}
	if remote != nil {
		cacheOpts = append(cacheOpts, cache.WithRemote(remote))
	}
	rt.cache = cache.New(cache.NewMemoryTier(), cacheOpts...)

	client, err := provider.New(ctx, provider.Config{
		Provider:     cfg.LLM.Provider,
		Model:        cfg.LLM.Model,
		GeminiAPIKey: cfg.LLM.GeminiAPIKey,
		OpenAIAPIKey: cfg.LLM.OpenAIAPIKey,
		OpenAIBase:   cfg.LLM.BaseURL,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create LLM client", err)
	}
	settings := cfg.LLM.Settings()
	gen := llm.NewGenerator(client, settings, llm.WithLogger(rt.logger))

	var judge classify.Judge = classify.LexicalJudge{}
	if cfg.LLM.Judge {
		judge = llm.NewJudge(client, settings)
	}
	classifier := classify.New(
		classify.WithJudge(judge),
		classify.WithConcurrency(cfg.Concurrency),
		classify.WithLogger(rt.logger),
	)

	policy, err := cfg.PolicyVersion()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to derive policy version", err)
	}
	rt.orch, err = reconcile.New(reconcile.Config{
		Mode:          cfg.Mode,
		Template:      cfg.Template,
		PolicyVersion: policy,
		Concurrency:   cfg.Concurrency,
	}, ledger, rt.cache, gen, classifier, append([]reconcile.Option{
		reconcile.WithLogger(rt.logger),
		reconcile.WithMetrics(rt.metrics),
	}, extra...)...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid reconciliation config", err)
	}
	return nil
}

// openRemote returns the configured remote tier, or nil for "none".
func (rt *runtime) openRemote() (cache.Tier, error) {
	cfg := rt.cfg.Cache
	switch cfg.Remote {
	case "sqlite":
		return rt.store.Cache(), nil
	case "badger":
		b, err := cache.OpenBadger(cfg.BadgerDir)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, b.Close)
		return b, nil
	case "upstash":
		u, err := cache.NewOptionalUpstash(cfg.UpstashURL, cfg.UpstashToken, cache.WithRemoteTTL(cfg.RemoteTTL))
		if err != nil || u == nil {
			return nil, err
		}
		return u, nil
	default:
		return nil, nil
	}
}

// Close releases every resource in reverse open order.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// recordRun appends res to the SQLite run log when a database is open.
func (rt *runtime) recordRun(ctx context.Context, res *reconcile.Result) error {
	if rt.store == nil || res == nil {
		return nil
	}
	return rt.store.WriteRun(context.WithoutCancel(ctx), store.Run{
		RunID:      res.RunID,
		Mode:       res.Result.Mode,
		Source:     rt.cfg.Source.Path,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Digest:     res.Digest,
		Counts:     res.Result.CountsByAction,
		Failed:     res.Result.Failed(),
		Committed:  res.Committed,
	})
}

// usesSQLite reports whether any component is backed by the SQLite database.
func usesSQLite(cfg config.Config) bool {
	return cfg.Mapping.Backend == "sqlite" || cfg.Cache.Remote == "sqlite"
}

// databasePath is the mapping path for the SQLite backend; otherwise the
// database sits next to the mapping file.
func databasePath(cfg config.Config) string {
	if cfg.Mapping.Backend == "sqlite" {
		return cfg.Mapping.Path
	}
	return filepath.Join(filepath.Dir(cfg.Mapping.Path), "velora.db")
}

func openStore(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	return store.Open(path)
}

// since formats the age of t for status output.
func since(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return now.Sub(t).Round(time.Second).String() + " ago"
}
