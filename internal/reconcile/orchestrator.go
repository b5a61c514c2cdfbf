// Package reconcile runs one reconciliation: classify the current
// requirements against the mapping ledger, decide an action per requirement,
// generate test cases through the cache for CREATE and REGENERATE, apply the
// outcomes to the ledger and commit it once.
//
// Generation runs on a bounded worker pool. Everything else, including every
// ledger mutation, happens on the calling goroutine in plan order, so the
// result is the same whatever order the workers finish in.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/velora/internal/cache"
	"github.com/roach88/velora/internal/classify"
	"github.com/roach88/velora/internal/fingerprint"
	"github.com/roach88/velora/internal/ir"
	"github.com/roach88/velora/internal/mapping"
	"github.com/roach88/velora/internal/metrics"
	"github.com/roach88/velora/internal/report"
)

// Generator produces test cases for requirement text.
type Generator interface {
	Generate(ctx context.Context, text string, tmpl ir.Template) ([]ir.TestCase, error)
}

// DefaultConcurrency bounds concurrent generations.
const DefaultConcurrency = 4

// Config is the immutable per-run configuration.
type Config struct {
	Mode          ir.UpdateMode
	Template      ir.Template
	PolicyVersion string
	Concurrency   int
}

// Validate checks c before a run starts.
func (c Config) Validate() error {
	if !ir.ValidModes[c.Mode] {
		return fmt.Errorf("invalid update mode %q", c.Mode)
	}
	if len(c.Template) == 0 {
		return errors.New("test case template has no fields")
	}
	if c.PolicyVersion == "" {
		return errors.New("policy version is required")
	}
	return nil
}

// Orchestrator reconciles requirement units against a mapping ledger.
// An Orchestrator is built for one run; Run must not be called twice
// concurrently on the same ledger.
type Orchestrator struct {
	cfg        Config
	ledger     *mapping.Ledger
	cache      *cache.Cache
	generator  Generator
	classifier *classify.Classifier

	logger  *zap.Logger
	metrics *metrics.Recorder
	now     func() time.Time
	runIDs  RunIDGenerator
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithMetrics records action outcomes.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithClock sets the time source for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithRunIDs sets the run id generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(o *Orchestrator) {
		o.runIDs = g
	}
}

// New creates an Orchestrator. cfg is validated here so that Run never
// starts with a bad configuration.
func New(cfg Config, ledger *mapping.Ledger, c *cache.Cache, gen Generator, cl *classify.Classifier, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("reconcile config: %w", err)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	cfg.Template = slices.Clone(cfg.Template)

	o := &Orchestrator{
		cfg:        cfg,
		ledger:     ledger,
		cache:      c,
		generator:  gen,
		classifier: cl,
		logger:     zap.NewNop(),
		now:        time.Now,
		runIDs:     UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns the orchestrator's configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Result is a finished run: the reconciliation result plus run bookkeeping
// that is deliberately kept out of it.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Result ir.ReconciliationResult
	Digest string

	// Generations counts generator calls that succeeded during the run.
	Generations int64
	// Sources counts how each CREATE/REGENERATE was satisfied.
	Sources map[cache.Source]int
	// Committed is false when the ledger had nothing to write.
	Committed bool
}

type job struct {
	index int // into the plan
	key   ir.CacheKey
	text  string
}

type jobResult struct {
	rec    ir.CacheRecord
	source cache.Source
	err    error
}

// Run reconciles units and commits the ledger.
//
// Per-requirement failures (generation errors, cancellation) are recorded in
// the result and leave that requirement's ledger entry untouched; the
// returned error is then nil. A non-nil error is always a *RunError. On
// PersistWriteFailure the returned Result describes the attempted run but
// nothing was persisted.
func (o *Orchestrator) Run(ctx context.Context, units []ir.RequirementUnit) (*Result, error) {
	return o.run(ctx, units, nil)
}

// RunDocument derives units from raw requirements and reconciles them.
// Identity fallbacks are reported as ClassificationAmbiguous warnings.
func (o *Orchestrator) RunDocument(ctx context.Context, raw []ir.RawRequirement) (*Result, error) {
	units, warnings := fingerprint.Units(raw)
	return o.run(ctx, units, warnings)
}

func (o *Orchestrator) run(ctx context.Context, units []ir.RequirementUnit, warnings []ir.Issue) (*Result, error) {
	runID := o.runIDs.Generate()
	logger := o.logger.With(zap.String("run_id", runID))
	res := &Result{RunID: runID, StartedAt: o.now().UTC(), Sources: make(map[cache.Source]int)}
	generationsBefore := o.cache.Generations()

	plan, err := o.plan(ctx, units, warnings)
	if err != nil {
		return nil, &RunError{Kind: ir.KindCancelled, Message: "run cancelled during classification", RunID: runID, Err: err}
	}

	b := report.NewBuilder(o.cfg.Mode)
	for _, w := range plan.Warnings {
		b.Warn(w)
	}

	texts := make(map[string]string, len(units))
	for _, u := range units {
		texts[u.ID] = u.NormalizedText
	}

	var jobs []job
	for i, pa := range plan.Actions {
		switch pa.Decision.Action {
		case ir.ActionSkip:
			o.record(b, logger, pa.actionRecord(ir.OutcomeSkipped))
		case ir.ActionRetire:
			o.ledger.Remove(pa.Change.RequirementID)
			a := pa.actionRecord(ir.OutcomeSucceeded)
			a.After = nil
			a.Superseded = slices.Clone(a.Before)
			o.record(b, logger, a)
		default:
			jobs = append(jobs, job{
				index: i,
				key:   ir.CacheKey{Fingerprint: pa.Change.CurrentFingerprint, PolicyVersion: o.cfg.PolicyVersion},
				text:  texts[pa.Change.RequirementID],
			})
		}
	}

	results := o.dispatch(ctx, jobs)

	for i, j := range jobs {
		o.apply(ctx, b, logger, plan.Actions[j.index], j, results[i], res)
	}

	if rerr := o.cache.Tiers().RemoteErr(); rerr != nil {
		b.Warn(ir.Issue{
			Kind:    ir.KindCacheBackendUnavailable,
			Message: fmt.Sprintf("remote cache unavailable, ran local-only: %v", rerr),
		})
	}

	res.Result = b.Build()
	res.Generations = o.cache.Generations() - generationsBefore
	if digest, err := report.Digest(res.Result); err == nil {
		res.Digest = digest
	}

	// Completed work is flushed even when the run was cancelled.
	if o.ledger.Dirty() {
		if err := o.ledger.Commit(context.WithoutCancel(ctx)); err != nil {
			res.FinishedAt = o.now().UTC()
			logger.Error("mapping commit failed", zap.Error(err))
			return res, &RunError{Kind: ir.KindPersistWriteFailure, Message: "mapping store commit failed", RunID: runID, Err: err}
		}
		res.Committed = true
	}
	res.FinishedAt = o.now().UTC()

	logger.Info("reconciliation finished",
		zap.String("mode", string(o.cfg.Mode)),
		zap.Int("actions", len(res.Result.Actions)),
		zap.Int("failed", res.Result.CountsByOutcome[ir.OutcomeFailed]),
		zap.Int64("generations", res.Generations),
		zap.Bool("committed", res.Committed))
	return res, nil
}

// dispatch runs jobs on the worker pool. results[i] belongs to jobs[i].
// Once ctx is done no further job reaches the cache.
func (o *Orchestrator) dispatch(ctx context.Context, jobs []job) []jobResult {
	results := make([]jobResult, len(jobs))

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i, j := range jobs {
		if err := ctx.Err(); err != nil {
			results[i] = jobResult{err: err}
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = jobResult{err: err}
				return nil
			}
			rec, src, err := o.cache.GetOrGenerate(ctx, j.key, func(ctx context.Context) ([]ir.TestCase, error) {
				return o.generator.Generate(ctx, j.text, o.cfg.Template)
			})
			results[i] = jobResult{rec: rec, source: src, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) apply(ctx context.Context, b *report.Builder, logger *zap.Logger, pa PlannedAction, j job, r jobResult, res *Result) {
	id := pa.Change.RequirementID

	if r.err != nil {
		a := pa.actionRecord(ir.OutcomeFailed)
		issue := ir.Issue{RequirementID: id, Message: r.err.Error()}
		if ctx.Err() != nil && isContextErr(r.err) {
			a.ErrorKind = ir.KindCancelled
			issue.Kind = ir.KindCancelled
		} else {
			a.ErrorKind = ir.KindGenerationFailure
			issue.Kind = ir.KindGenerationFailure
			issue.Cause = ir.GenerationCause(r.err)
		}
		b.Error(issue)
		o.record(b, logger, a)
		return
	}
	res.Sources[r.source]++

	key := j.key.String()
	ids, err := ir.TestCaseIDs(id, key, len(r.rec.Payload))
	if err != nil {
		// Only strings and ints are hashed; treat as a generation failure all the same.
		a := pa.actionRecord(ir.OutcomeFailed)
		a.ErrorKind = ir.KindGenerationFailure
		b.Error(ir.Issue{RequirementID: id, Kind: ir.KindGenerationFailure, Cause: ir.CauseUnknown, Message: err.Error()})
		o.record(b, logger, a)
		return
	}

	rows := make([]ir.TestCaseRow, len(ids))
	for i, tc := range r.rec.Payload {
		fields := maps.Clone(tc)
		if fields == nil {
			fields = ir.TestCase{}
		}
		fields[ir.FieldTestCaseID] = ids[i]
		rows[i] = ir.TestCaseRow{ID: ids[i], RequirementID: id, Fields: fields}
	}

	o.ledger.Upsert(ir.MappingEntry{
		RequirementID:   id,
		TestCaseIDs:     ids,
		LastFingerprint: j.key.Fingerprint,
		LastText:        j.text,
		LastGeneratedAt: r.rec.CreatedAt,
		PolicyVersion:   o.cfg.PolicyVersion,
	})

	a := pa.actionRecord(ir.OutcomeSucceeded)
	a.After = ids
	a.Superseded = difference(a.Before, ids)
	a.TestCases = rows
	logger.Debug("applied generation",
		zap.String("requirement_id", id),
		zap.String("action", string(a.Action)),
		zap.String("cache_source", string(r.source)),
		zap.Int("test_cases", len(ids)))
	o.record(b, logger, a)
}

func (o *Orchestrator) record(b *report.Builder, logger *zap.Logger, a ir.ActionRecord) {
	o.metrics.Action(string(a.Action), string(a.Outcome))
	if a.Outcome == ir.OutcomeFailed {
		logger.Warn("action failed",
			zap.String("requirement_id", a.RequirementID),
			zap.String("action", string(a.Action)),
			zap.String("error_kind", string(a.ErrorKind)))
	}
	b.Record(a)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// difference returns the members of a not in b, in a's order.
func difference(a, b []string) []string {
	var out []string
	for _, s := range a {
		if !slices.Contains(b, s) {
			out = append(out, s)
		}
	}
	return out
}
