package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/velora/internal/cache"
	"github.com/roach88/velora/internal/classify"
	"github.com/roach88/velora/internal/document"
	"github.com/roach88/velora/internal/fingerprint"
	"github.com/roach88/velora/internal/ir"
	"github.com/roach88/velora/internal/mapping"
	"github.com/roach88/velora/internal/reconcile"
	"github.com/roach88/velora/internal/testutil"
)

// Harness executes the runs of one scenario against shared state.
//
// Each run builds a fresh orchestrator, ledger and local cache tier, as a new
// process would. The mapping backend and the remote cache tier persist across
// runs.
type Harness struct {
	backend *memoryBackend
	remote  *cache.MemoryTier
	clock   *testutil.Clock
	runIDs  *reconcile.FixedGenerator
	logger  *zap.Logger
	policy  string
}

// Run executes a scenario and returns the result.
//
// Run returns an error only when a run could not execute at all (invalid
// configuration or cancellation). Failed expectations are reported in
// Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return RunWithLogger(ctx, scenario, zap.NewNop())
}

// RunWithLogger is Run with orchestrator logging sent to logger.
func RunWithLogger(ctx context.Context, scenario *Scenario, logger *zap.Logger) (*Result, error) {
	ids := make([]string, len(scenario.Runs))
	for i := range ids {
		ids[i] = fmt.Sprintf("run-%d", i+1)
	}
	h := &Harness{
		backend: &memoryBackend{},
		remote:  cache.NewMemoryTier(),
		clock:   testutil.NewClock(testutil.Epoch),
		runIDs:  reconcile.NewFixedGenerator(ids...),
		logger:  logger.With(zap.String("scenario", scenario.Name)),
		policy:  ir.MustPolicyVersion("v1", ir.DefaultTemplate(), "scenario"),
	}

	result := NewResult()
	for i, step := range scenario.Runs {
		trace, err := h.run(ctx, scenario, step)
		if err != nil {
			return nil, fmt.Errorf("runs[%d]: %w", i, err)
		}
		result.Runs = append(result.Runs, trace)
		checkExpect(i+1, step.Expect, trace, result)
	}

	for i, a := range scenario.Assertions {
		if err := evaluate(a, result); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return result, nil
}

func (h *Harness) run(ctx context.Context, s *Scenario, step Step) (RunTrace, error) {
	h.clock.Advance(step.Advance)

	raw := document.ParseMarkdown([]byte(step.Document))
	gen := testutil.NewGenerator(s.PerCall)
	if err := scriptFailures(gen, raw, step.Fail); err != nil {
		return RunTrace{}, err
	}

	ledger, err := mapping.Open(ctx, h.backend)
	if err != nil {
		return RunTrace{}, err
	}
	cacheOpts := []cache.Option{cache.WithRemote(h.remote), cache.WithClock(h.clock.Now), cache.WithLogger(h.logger)}
	if s.TTL > 0 {
		cacheOpts = append(cacheOpts, cache.WithTTL(s.TTL))
	}
	c := cache.New(cache.NewMemoryTier(), cacheOpts...)

	cl := classify.New(classify.WithJudge(judgeFor(s, step)), classify.WithLogger(h.logger))
	mode := s.Mode
	if step.Mode != "" {
		mode = step.Mode
	}
	orch, err := reconcile.New(reconcile.Config{
		Mode:          mode,
		Template:      ir.DefaultTemplate(),
		PolicyVersion: h.policy,
		Concurrency:   s.Concurrency,
	}, ledger, c, gen, cl,
		reconcile.WithClock(h.clock.Now),
		reconcile.WithRunIDs(h.runIDs),
		reconcile.WithLogger(h.logger),
	)
	if err != nil {
		return RunTrace{}, err
	}

	res, err := orch.RunDocument(ctx, raw)
	if err != nil {
		return RunTrace{}, err
	}

	entries, _ := h.backend.Load(ctx)
	slices.SortFunc(entries, func(a, b ir.MappingEntry) int {
		return strings.Compare(a.RequirementID, b.RequirementID)
	})
	return RunTrace{
		RunID:       res.RunID,
		Mode:        res.Result.Mode,
		Result:      res.Result,
		Digest:      res.Digest,
		Generations: res.Generations,
		Committed:   res.Committed,
		Mapping:     entries,
	}, nil
}

// scriptFailures makes gen fail for the requirements named in fail. The
// generator sees normalized text, so ids are resolved through the same
// fingerprinting the orchestrator uses.
func scriptFailures(gen *testutil.Generator, raw []ir.RawRequirement, fail map[string]string) error {
	if len(fail) == 0 {
		return nil
	}
	units, _ := fingerprint.Units(raw)
	texts := make(map[string]string, len(units))
	for _, u := range units {
		texts[u.ID] = u.NormalizedText
	}
	for _, id := range sortedKeys(fail) {
		text, ok := texts[id]
		if !ok {
			return fmt.Errorf("fail: requirement %s is not in the document", id)
		}
		gen.FailOn(text, fmt.Errorf("scripted failure: %w", failureCauses[fail[id]]))
	}
	return nil
}

func judgeFor(s *Scenario, step Step) classify.Judge {
	name := s.Judge
	if step.Judge != "" {
		name = step.Judge
	}
	if verdict, ok := judgeVerdicts[name]; ok {
		return fixedJudge(verdict)
	}
	return classify.LexicalJudge{}
}

// fixedJudge returns the same materiality for every modification.
type fixedJudge ir.Materiality

func (j fixedJudge) Judge(context.Context, string, string) (ir.Materiality, error) {
	return ir.Materiality(j), nil
}

// memoryBackend is the mapping store shared by the runs of a scenario.
type memoryBackend struct {
	mu      sync.Mutex
	entries []ir.MappingEntry
}

func (b *memoryBackend) Load(context.Context) ([]ir.MappingEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneEntries(b.entries), nil
}

func (b *memoryBackend) Commit(_ context.Context, entries []ir.MappingEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = cloneEntries(entries)
	return nil
}

func cloneEntries(in []ir.MappingEntry) []ir.MappingEntry {
	out := make([]ir.MappingEntry, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}
