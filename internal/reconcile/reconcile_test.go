package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/velora/internal/cache"
	"github.com/roach88/velora/internal/classify"
	"github.com/roach88/velora/internal/fingerprint"
	"github.com/roach88/velora/internal/ir"
	"github.com/roach88/velora/internal/mapping"
	"github.com/roach88/velora/internal/report"
	vtest "github.com/roach88/velora/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testPolicy = ir.MustPolicyVersion("v1", ir.DefaultTemplate(), "mock")

// memBackend is an in-memory mapping backend with an injectable commit failure.
type memBackend struct {
	mu      sync.Mutex
	entries []ir.MappingEntry
	commits int
	fail    error
}

func (b *memBackend) Load(context.Context) ([]ir.MappingEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneEntries(b.entries), nil
}

func (b *memBackend) Commit(_ context.Context, entries []ir.MappingEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.entries = cloneEntries(entries)
	b.commits++
	return nil
}

func (b *memBackend) entry(id string) (ir.MappingEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		if e.RequirementID == id {
			return e.Clone(), true
		}
	}
	return ir.MappingEntry{}, false
}

func (b *memBackend) ids() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var ids []string
	for _, e := range b.entries {
		ids = append(ids, e.RequirementID)
	}
	slices.Sort(ids)
	return ids
}

func cloneEntries(in []ir.MappingEntry) []ir.MappingEntry {
	out := make([]ir.MappingEntry, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}

type fixedJudge ir.Materiality

func (j fixedJudge) Judge(context.Context, string, string) (ir.Materiality, error) {
	return ir.Materiality(j), nil
}

// req is one requirement of a test document.
type req struct {
	id   string
	text string
}

func units(t *testing.T, reqs ...req) []ir.RequirementUnit {
	t.Helper()
	raw := make([]ir.RawRequirement, len(reqs))
	for i, r := range reqs {
		raw[i] = ir.RawRequirement{Position: i + 1, ExplicitID: r.id, Title: r.id, Text: r.text}
	}
	us, issues := fingerprint.Units(raw)
	require.Empty(t, issues)
	return us
}

// env is a mapping backend plus the remote cache tier shared by every run
// against it.
type env struct {
	backend *memBackend
	remote  *cache.MemoryTier
	clock   *vtest.Clock
}

func newEnv() *env {
	return &env{backend: &memBackend{}, remote: cache.NewMemoryTier(), clock: vtest.NewClock(vtest.Epoch)}
}

type runOpts struct {
	mode        ir.UpdateMode
	judge       classify.Judge
	concurrency int
	remote      cache.Tier
}

// orchestrator builds a fresh orchestrator, as a new process would.
func (e *env) orchestrator(t *testing.T, gen Generator, o runOpts) *Orchestrator {
	t.Helper()
	ledger, err := mapping.Open(context.Background(), e.backend)
	require.NoError(t, err)

	remote := o.remote
	if remote == nil {
		remote = e.remote
	}
	c := cache.New(cache.NewMemoryTier(), cache.WithRemote(remote), cache.WithClock(e.clock.Now))

	var clOpts []classify.Option
	if o.judge != nil {
		clOpts = append(clOpts, classify.WithJudge(o.judge))
	}
	orch, err := New(Config{
		Mode:          o.mode,
		Template:      ir.DefaultTemplate(),
		PolicyVersion: testPolicy,
		Concurrency:   o.concurrency,
	}, ledger, c, gen, classify.New(clOpts...), WithClock(e.clock.Now))
	require.NoError(t, err)
	return orch
}

func (e *env) run(t *testing.T, gen Generator, o runOpts, us []ir.RequirementUnit) *Result {
	t.Helper()
	res, err := e.orchestrator(t, gen, o).Run(context.Background(), us)
	require.NoError(t, err)
	return res
}

func actionsByID(r ir.ReconciliationResult) map[string]ir.ActionRecord {
	out := make(map[string]ir.ActionRecord, len(r.Actions))
	for _, a := range r.Actions {
		out[a.RequirementID] = a
	}
	return out
}

func (e *env) seed(t *testing.T, reqs ...req) {
	t.Helper()
	e.run(t, vtest.NewGenerator(2), runOpts{mode: ir.ModeFullSync}, units(t, reqs...))
}

func TestRun_IntelligentScenario(t *testing.T) {
	e := newEnv()
	e.seed(t, req{"R1", "Login with email"}, req{"R2", "Support SSO"})
	oldR2, ok := e.backend.entry("R2")
	require.True(t, ok)

	gen := vtest.NewGenerator(2)
	res := e.run(t, gen, runOpts{mode: ir.ModeIntelligent, judge: fixedJudge(ir.MaterialityFunctional)}, units(t,
		req{"R1", "Login with email"},
		req{"R2", "Support SSO via SAML"},
		req{"R3", "Support MFA"},
	))

	acts := actionsByID(res.Result)
	assert.Equal(t, ir.ActionSkip, acts["R1"].Action)
	assert.Equal(t, ir.ActionRegenerate, acts["R2"].Action)
	assert.Equal(t, ir.ActionCreate, acts["R3"].Action)
	for _, id := range []string{"R2", "R3"} {
		assert.Equal(t, ir.OutcomeSucceeded, acts[id].Outcome, id)
	}

	assert.Equal(t, 2, gen.Calls(), "exactly R2 and R3 generate")
	assert.Equal(t, 1, gen.CallsFor("Support SSO via SAML"))
	assert.Equal(t, 1, gen.CallsFor("Support MFA"))

	assert.Equal(t, []string{"R1", "R2", "R3"}, e.backend.ids())
	newR2, _ := e.backend.entry("R2")
	assert.NotEqual(t, oldR2.TestCaseIDs, newR2.TestCaseIDs)
	assert.ElementsMatch(t, oldR2.TestCaseIDs, acts["R2"].Superseded)
	assert.ElementsMatch(t, newR2.TestCaseIDs, acts["R2"].After)
	assert.Equal(t, fingerprint.Fingerprint("Support SSO via SAML"), newR2.LastFingerprint)

	key := ir.CacheKey{Fingerprint: fingerprint.Fingerprint("Support MFA"), PolicyVersion: testPolicy}
	want, err := ir.TestCaseIDs("R3", key.String(), 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, want, acts["R3"].After)
	require.Len(t, acts["R3"].TestCases, 2)
	assert.Equal(t, acts["R3"].TestCases[0].ID, acts["R3"].TestCases[0].Fields[ir.FieldTestCaseID])
}

func TestRun_GenerationFailureIsRetriedNextRun(t *testing.T) {
	e := newEnv()
	e.seed(t, req{"R1", "Login with email"}, req{"R2", "Support SSO"})
	doc := units(t,
		req{"R1", "Login with email"},
		req{"R2", "Support SSO via SAML"},
		req{"R3", "Support MFA"},
	)

	gen := vtest.NewGenerator(2)
	gen.FailOn("Support MFA", fmt.Errorf("429 too many requests: %w", ir.ErrRateLimited))
	opts := runOpts{mode: ir.ModeIntelligent, judge: fixedJudge(ir.MaterialityFunctional)}
	res := e.run(t, gen, opts, doc)

	r3 := actionsByID(res.Result)["R3"]
	assert.Equal(t, ir.OutcomeFailed, r3.Outcome)
	assert.Equal(t, ir.KindGenerationFailure, r3.ErrorKind)
	assert.Empty(t, r3.After)
	require.Len(t, res.Result.Errors, 1)
	assert.Equal(t, ir.CauseRateLimited, res.Result.Errors[0].Cause)
	assert.True(t, res.Result.Failed())

	_, ok := e.backend.entry("R3")
	assert.False(t, ok, "failed generation leaves no mapping")
	assert.Equal(t, ir.OutcomeSucceeded, actionsByID(res.Result)["R2"].Outcome, "other requirements proceed")

	gen.FailOn("Support MFA", nil)
	retry := e.run(t, gen, opts, doc)
	r3 = actionsByID(retry.Result)["R3"]
	assert.Equal(t, ir.ChangeAdded, r3.Change)
	assert.Equal(t, ir.ActionCreate, r3.Action)
	assert.Equal(t, ir.OutcomeSucceeded, r3.Outcome)
	assert.Equal(t, ir.ActionSkip, actionsByID(retry.Result)["R2"].Action)
	_, ok = e.backend.entry("R3")
	assert.True(t, ok)
}

func TestRun_UnchangedSecondRunGeneratesNothing(t *testing.T) {
	for _, mode := range []ir.UpdateMode{ir.ModeNewOnly, ir.ModeFullSync, ir.ModeIntelligent} {
		t.Run(string(mode), func(t *testing.T) {
			e := newEnv()
			doc := units(t, req{"R1", "Login with email"}, req{"R2", "Support SSO"})
			e.run(t, vtest.NewGenerator(2), runOpts{mode: mode}, doc)
			commits := e.backend.commits

			gen := vtest.NewGenerator(2)
			res := e.run(t, gen, runOpts{mode: mode, judge: fixedJudge(ir.MaterialityFunctional)}, doc)

			assert.Zero(t, gen.Calls())
			assert.Zero(t, res.Generations)
			assert.Equal(t, 2, res.Result.CountsByAction[ir.ActionSkip])
			assert.Equal(t, 2, res.Result.CountsByOutcome[ir.OutcomeSkipped])
			assert.False(t, res.Committed)
			assert.Equal(t, commits, e.backend.commits)
		})
	}
}

func TestRun_Idempotent(t *testing.T) {
	e := newEnv()
	e.seed(t, req{"R1", "Login with email"}, req{"R2", "Support SSO"}, req{"R4", "Audit log"})
	baseline := cloneEntries(e.backend.entries)
	doc := units(t,
		req{"R1", "Login with email"},
		req{"R2", "Support SSO via SAML"},
		req{"R3", "Support MFA"},
	)
	opts := runOpts{mode: ir.ModeFullSync, concurrency: 3}

	first := e.run(t, vtest.NewGenerator(2), opts, doc)
	e.backend.entries = cloneEntries(baseline)
	second := e.run(t, vtest.NewGenerator(2), opts, doc)

	if diff := cmp.Diff(first.Result, second.Result); diff != "" {
		t.Errorf("results differ (-first +second):\n%s", diff)
	}
	assert.Equal(t, first.Digest, second.Digest)
	assert.NotEmpty(t, first.Digest)

	want, err := report.Canonical(first.Result)
	require.NoError(t, err)
	got, err := report.Canonical(second.Result)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	r4 := actionsByID(first.Result)["R4"]
	assert.Equal(t, ir.ActionRetire, r4.Action)
	assert.NotEmpty(t, r4.Superseded)
}

func TestRun_NewOnlyPreservesModified(t *testing.T) {
	e := newEnv()
	e.seed(t, req{"R1", "Login with email"}, req{"R2", "Support SSO"})
	before, _ := e.backend.entry("R2")

	gen := vtest.NewGenerator(2)
	res := e.run(t, gen, runOpts{mode: ir.ModeNewOnly}, units(t,
		req{"R2", "Support SSO via SAML"},
	))

	acts := actionsByID(res.Result)
	assert.Equal(t, ir.ChangeModified, acts["R2"].Change)
	assert.Equal(t, ir.ActionSkip, acts["R2"].Action)
	assert.Equal(t, ir.ChangeRemoved, acts["R1"].Change)
	assert.Equal(t, ir.ActionSkip, acts["R1"].Action, "new_only never retires")
	assert.Zero(t, gen.Calls())

	after, _ := e.backend.entry("R2")
	assert.Equal(t, before.TestCaseIDs, after.TestCaseIDs)
	assert.Equal(t, before.LastFingerprint, after.LastFingerprint)
	assert.Equal(t, []string{"R1", "R2"}, e.backend.ids())
}

func TestRun_FullSyncGeneratesOncePerFingerprint(t *testing.T) {
	e := newEnv()
	e.seed(t, req{"R1", "Alpha"}, req{"R2", "Beta"})

	gen := vtest.NewGenerator(2)
	gen.Block()
	orch := e.orchestrator(t, gen, runOpts{mode: ir.ModeFullSync, concurrency: 4})
	doc := units(t,
		req{"R1", "Export  reports as CSV"},
		req{"R2", "Export reports\tas CSV"},
	)
	done := make(chan *Result, 1)
	go func() {
		res, err := orch.Run(context.Background(), doc)
		assert.NoError(t, err)
		done <- res
	}()
	<-gen.Started()
	gen.Release()
	res := <-done

	assert.Equal(t, 1, gen.Calls(), "identical normalized text generates once")
	acts := actionsByID(res.Result)
	for _, id := range []string{"R1", "R2"} {
		assert.Equal(t, ir.ActionRegenerate, acts[id].Action, id)
		assert.Equal(t, ir.OutcomeSucceeded, acts[id].Outcome, id)
	}
	assert.NotEqual(t, acts["R1"].After, acts["R2"].After, "ids are per requirement")
	assert.Equal(t, 1, res.Sources[cache.SourceGenerated])
	assert.Equal(t, 1, res.Sources[cache.SourceCoalesced]+res.Sources[cache.SourceLocal])
}

func TestRun_AddedIsNeverModified(t *testing.T) {
	e := newEnv()
	e.seed(t, req{"R1", "Support SSO"})

	gen := vtest.NewGenerator(2)
	res := e.run(t, gen, runOpts{mode: ir.ModeFullSync}, units(t, req{"R9", "Support SSO"}))

	acts := actionsByID(res.Result)
	assert.Equal(t, ir.ChangeAdded, acts["R9"].Change)
	assert.Equal(t, ir.ActionCreate, acts["R9"].Action)
	assert.Equal(t, ir.ActionRetire, acts["R1"].Action)
	assert.Zero(t, gen.Calls(), "same text reuses the shared cache entry")
	assert.Equal(t, 1, res.Sources[cache.SourceRemote])
	assert.Equal(t, []string{"R9"}, e.backend.ids())
}

func TestRun_CancellationFlushesCompletedWork(t *testing.T) {
	e := newEnv()
	// Warm the shared tier for "Alpha" from an unrelated store.
	other := &env{backend: &memBackend{}, remote: e.remote, clock: e.clock}
	other.seed(t, req{"R1", "Alpha"})

	gen := vtest.NewGenerator(2)
	gen.Block()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	orch := e.orchestrator(t, gen, runOpts{mode: ir.ModeFullSync, concurrency: 1})
	doc := units(t,
		req{"R1", "Alpha"},
		req{"R2", "Beta"},
		req{"R3", "Gamma"},
	)
	done := make(chan outcome, 1)
	go func() {
		res, err := orch.Run(ctx, doc)
		done <- outcome{res, err}
	}()
	<-gen.Started()
	cancel()
	out := <-done

	require.NoError(t, out.err)
	acts := actionsByID(out.res.Result)
	assert.Equal(t, ir.OutcomeSucceeded, acts["R1"].Outcome)
	for _, id := range []string{"R2", "R3"} {
		assert.Equal(t, ir.OutcomeFailed, acts[id].Outcome, id)
		assert.Equal(t, ir.KindCancelled, acts[id].ErrorKind, id)
	}
	assert.Equal(t, 1, gen.Calls(), "no dispatch after cancellation")
	assert.True(t, out.res.Committed)
	assert.Equal(t, []string{"R1"}, e.backend.ids())
}

func TestRun_PersistFailure(t *testing.T) {
	e := newEnv()
	e.seed(t, req{"R1", "Login with email"})
	e.backend.fail = errors.New("disk full")

	res, err := e.orchestrator(t, vtest.NewGenerator(2), runOpts{mode: ir.ModeFullSync}).Run(context.Background(), units(t,
		req{"R1", "Login with email"},
		req{"R2", "Support SSO"},
	))
	require.Error(t, err)
	assert.True(t, IsPersistFailure(err))
	assert.False(t, IsSourceUnavailable(err))
	assert.ErrorContains(t, err, "disk full")
	require.NotNil(t, res)
	assert.False(t, res.Committed)
	assert.Equal(t, []string{"R1"}, e.backend.ids())
}

type downTier struct{}

func (downTier) Name() string { return "down" }

func (downTier) Get(context.Context, string) (ir.CacheRecord, bool, error) {
	return ir.CacheRecord{}, false, errors.New("dial tcp: connection refused")
}

func (downTier) Put(context.Context, ir.CacheRecord) error {
	return errors.New("dial tcp: connection refused")
}

func TestRun_RemoteOutageDegrades(t *testing.T) {
	e := newEnv()
	gen := vtest.NewGenerator(2)
	res := e.run(t, gen, runOpts{mode: ir.ModeFullSync, remote: downTier{}}, units(t,
		req{"R1", "Login with email"},
	))

	assert.Equal(t, ir.OutcomeSucceeded, actionsByID(res.Result)["R1"].Outcome)
	require.Len(t, res.Result.Warnings, 1)
	assert.Equal(t, ir.KindCacheBackendUnavailable, res.Result.Warnings[0].Kind)
	assert.False(t, res.Result.Failed())
}

func TestPlan_HasNoSideEffects(t *testing.T) {
	e := newEnv()
	e.seed(t, req{"R1", "Login with email"}, req{"R2", "Support SSO"})
	commits := e.backend.commits

	gen := vtest.NewGenerator(2)
	plan, err := e.orchestrator(t, gen, runOpts{mode: ir.ModeIntelligent, judge: fixedJudge(ir.MaterialityCosmetic)}).
		Plan(context.Background(), units(t,
			req{"R2", "Support  SSO."},
			req{"R3", "Support MFA"},
		))
	require.NoError(t, err)

	assert.Equal(t, 1, plan.Count(ir.ActionCreate))
	assert.Equal(t, 1, plan.Count(ir.ActionSkip), "cosmetic R2")
	assert.Equal(t, 1, plan.Count(ir.ActionRetire))
	assert.Zero(t, gen.Calls())
	assert.Equal(t, commits, e.backend.commits)
}

func TestNew_ValidatesConfig(t *testing.T) {
	ledger, err := mapping.Open(context.Background(), &memBackend{})
	require.NoError(t, err)
	c := cache.New(cache.NewMemoryTier())

	_, err = New(Config{Mode: "sometimes", Template: ir.DefaultTemplate(), PolicyVersion: testPolicy}, ledger, c, vtest.NewGenerator(1), classify.New())
	assert.ErrorContains(t, err, "invalid update mode")

	_, err = New(Config{Mode: ir.ModeFullSync, PolicyVersion: testPolicy}, ledger, c, vtest.NewGenerator(1), classify.New())
	assert.ErrorContains(t, err, "template")

	o, err := New(Config{Mode: ir.ModeFullSync, Template: ir.DefaultTemplate(), PolicyVersion: testPolicy}, ledger, c, vtest.NewGenerator(1), classify.New())
	require.NoError(t, err)
	assert.Equal(t, DefaultConcurrency, o.Config().Concurrency)
}

func TestRunDocument_ReportsAmbiguousIdentity(t *testing.T) {
	e := newEnv()
	gen := vtest.NewGenerator(1)
	raw := []ir.RawRequirement{
		{Position: 1, ExplicitID: "R1", Text: "Login with email"},
		{Position: 2, ExplicitID: "R1", Text: "Login with SSO"},
		{Position: 3, ExplicitID: "R2", Text: "Export reports"},
	}

	res, err := e.orchestrator(t, gen, runOpts{mode: ir.ModeIntelligent}).RunDocument(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Result.CountsByAction[ir.ActionCreate])
	var ambiguous []string
	for _, w := range res.Result.Warnings {
		if w.Kind == ir.KindClassificationAmbiguous {
			ambiguous = append(ambiguous, w.RequirementID)
		}
	}
	assert.ElementsMatch(t, []string{fingerprint.PositionalID(1), fingerprint.PositionalID(2)}, ambiguous)
	_, ok := e.backend.entry("R2")
	assert.True(t, ok)
}
