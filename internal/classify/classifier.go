// Package classify compares the current requirement set against the
// committed mapping baseline and produces per-requirement change records.
package classify

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/velora/internal/ir"
)

// Judge decides whether a modification is cosmetic or functional.
// Implementations may block on external calls and may fail.
type Judge interface {
	Judge(ctx context.Context, previous, current string) (ir.Materiality, error)
}

// Baseline is the committed state the current units are compared against.
type Baseline interface {
	Get(requirementID string) (ir.MappingEntry, bool)
	All() []ir.MappingEntry
}

// DefaultJudgeConcurrency bounds concurrent judge calls.
const DefaultJudgeConcurrency = 4

// Classifier produces change records.
type Classifier struct {
	judge       Judge
	concurrency int
	logger      *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithJudge sets the materiality judge used in intelligent mode.
// Without a judge every modification is functional.
func WithJudge(j Judge) Option {
	return func(c *Classifier) {
		c.judge = j
	}
}

// WithConcurrency bounds concurrent judge calls.
func WithConcurrency(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Classifier) {
		c.logger = l
	}
}

// New creates a Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		concurrency: DefaultJudgeConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify compares units against the baseline.
//
// Records for current units come first in document order, followed by removed
// requirements sorted by id. A unit is only ever modified or unchanged when
// the baseline has an entry with the same id; any other unit is added,
// whatever its text. Warnings report judge failures (materiality falls back
// to functional). Classify returns an error only when ctx is cancelled.
func (c *Classifier) Classify(ctx context.Context, units []ir.RequirementUnit, baseline Baseline, mode ir.UpdateMode) ([]ir.ChangeRecord, []ir.Issue, error) {
	records := make([]ir.ChangeRecord, 0, len(units))
	current := make(map[string]bool, len(units))

	for _, u := range units {
		current[u.ID] = true
		rec := ir.ChangeRecord{
			RequirementID:      u.ID,
			CurrentFingerprint: u.Fingerprint,
			CurrentText:        u.NormalizedText,
		}

		entry, ok := baseline.Get(u.ID)
		switch {
		case !ok:
			rec.Kind = ir.ChangeAdded
		case entry.LastFingerprint == u.Fingerprint:
			rec.Kind = ir.ChangeUnchanged
			rec.PreviousFingerprint = entry.LastFingerprint
		default:
			rec.Kind = ir.ChangeModified
			rec.PreviousFingerprint = entry.LastFingerprint
			rec.PreviousText = entry.LastText
			rec.Diff = Diff(entry.LastText, u.NormalizedText)
		}
		if u.Ambiguous {
			rec.Materiality = ir.MaterialityUnknown
		}
		records = append(records, rec)
	}

	var removed []ir.ChangeRecord
	for _, e := range baseline.All() {
		if current[e.RequirementID] {
			continue
		}
		removed = append(removed, ir.ChangeRecord{
			RequirementID:       e.RequirementID,
			Kind:                ir.ChangeRemoved,
			PreviousFingerprint: e.LastFingerprint,
			PreviousText:        e.LastText,
		})
	}
	slices.SortFunc(removed, func(a, b ir.ChangeRecord) int {
		return strings.Compare(a.RequirementID, b.RequirementID)
	})
	records = append(records, removed...)

	for i := range records {
		records[i].Order = i
	}

	var warnings []ir.Issue
	if mode == ir.ModeIntelligent {
		var err error
		warnings, err = c.assess(ctx, records)
		if err != nil {
			return nil, nil, err
		}
	}
	return records, warnings, nil
}

// assess sets materiality on modified records. Records already marked
// unknown (ambiguous identity) are left alone.
func (c *Classifier) assess(ctx context.Context, records []ir.ChangeRecord) ([]ir.Issue, error) {
	failures := make([]error, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i := range records {
		rec := &records[i]
		if rec.Kind != ir.ChangeModified || rec.Materiality != ir.MaterialityNone {
			continue
		}
		if rec.PreviousText == "" {
			// Entries written without text cannot be compared.
			rec.Materiality = ir.MaterialityUnknown
			continue
		}
		if c.judge == nil {
			rec.Materiality = ir.MaterialityFunctional
			continue
		}
		g.Go(func() error {
			m, err := c.judge.Judge(gctx, rec.PreviousText, rec.CurrentText)
			if err == nil && m != ir.MaterialityCosmetic && m != ir.MaterialityFunctional {
				err = fmt.Errorf("judge returned %q", m)
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failures[i] = err
				m = ir.MaterialityFunctional
			}
			rec.Materiality = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var warnings []ir.Issue
	for i, err := range failures {
		if err == nil {
			continue
		}
		id := records[i].RequirementID
		c.logger.Warn("judge failed, treating change as functional",
			zap.String("requirement_id", id),
			zap.Error(err))
		warnings = append(warnings, ir.Issue{
			RequirementID: id,
			Kind:          ir.KindJudgeFailure,
			Message:       err.Error(),
		})
	}
	return warnings, nil
}
