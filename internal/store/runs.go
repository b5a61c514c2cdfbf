package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/velora/internal/ir"
)

// Run is one row of the run log.
type Run struct {
	RunID      string                `json:"run_id"`
	Mode       ir.UpdateMode         `json:"mode"`
	Source     string                `json:"source"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Digest     string                `json:"digest"`
	Counts     map[ir.ActionKind]int `json:"counts"`
	Failed     bool                  `json:"failed"`
	Committed  bool                  `json:"committed"`
}

// WriteRun appends a run to the log.
// Uses ON CONFLICT(run_id) DO NOTHING for idempotency.
func (s *Store) WriteRun(ctx context.Context, r Run) error {
	counts, err := json.Marshal(r.Counts)
	if err != nil {
		return fmt.Errorf("write run: encode counts: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, mode, source, started_at, finished_at, digest, counts, failed, committed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		r.RunID,
		string(r.Mode),
		r.Source,
		r.StartedAt.UnixNano(),
		r.FinishedAt.UnixNano(),
		r.Digest,
		string(counts),
		r.Failed,
		r.Committed,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, mode, source, started_at, finished_at, digest, counts, failed, committed
		FROM runs
		ORDER BY started_at DESC, run_id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r                 Run
			mode, counts      string
			started, finished int64
		)
		if err := rows.Scan(&r.RunID, &mode, &r.Source, &started, &finished, &r.Digest, &counts, &r.Failed, &r.Committed); err != nil {
			return nil, fmt.Errorf("recent runs: scan: %w", err)
		}
		r.Mode = ir.UpdateMode(mode)
		r.StartedAt = time.Unix(0, started).UTC()
		r.FinishedAt = time.Unix(0, finished).UTC()
		if err := json.Unmarshal([]byte(counts), &r.Counts); err != nil {
			return nil, fmt.Errorf("recent runs: decode counts: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	return runs, nil
}
