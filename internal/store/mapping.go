package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/velora/internal/ir"
)

// MappingTable is a mapping.Backend over SQLite.
type MappingTable struct {
	db *sql.DB
}

// Load returns every mapping entry ordered by requirement id.
func (m *MappingTable) Load(ctx context.Context) ([]ir.MappingEntry, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT requirement_id, last_fingerprint, last_text, last_generated_at, policy_version
		FROM mapping_entries
		ORDER BY requirement_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load mappings: %w", err)
	}
	defer rows.Close()

	entries := []ir.MappingEntry{}
	index := map[string]int{}
	for rows.Next() {
		var (
			e           ir.MappingEntry
			generatedAt int64
		)
		if err := rows.Scan(&e.RequirementID, &e.LastFingerprint, &e.LastText, &generatedAt, &e.PolicyVersion); err != nil {
			return nil, fmt.Errorf("load mappings: scan: %w", err)
		}
		e.LastGeneratedAt = time.Unix(0, generatedAt).UTC()
		e.TestCaseIDs = []string{}
		index[e.RequirementID] = len(entries)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load mappings: %w", err)
	}

	tcRows, err := m.db.QueryContext(ctx, `
		SELECT requirement_id, test_case_id
		FROM mapping_test_cases
		ORDER BY requirement_id COLLATE BINARY ASC, ordinal ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load mapping test cases: %w", err)
	}
	defer tcRows.Close()

	for tcRows.Next() {
		var reqID, tcID string
		if err := tcRows.Scan(&reqID, &tcID); err != nil {
			return nil, fmt.Errorf("load mapping test cases: scan: %w", err)
		}
		i, ok := index[reqID]
		if !ok {
			continue
		}
		entries[i].TestCaseIDs = append(entries[i].TestCaseIDs, tcID)
	}
	if err := tcRows.Err(); err != nil {
		return nil, fmt.Errorf("load mapping test cases: %w", err)
	}

	return entries, nil
}

// Commit replaces the whole ledger in one transaction.
func (m *MappingTable) Commit(ctx context.Context, entries []ir.MappingEntry) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit mappings: begin: %w", err)
	}
	defer tx.Rollback()

	// mapping_test_cases rows go with their entries (ON DELETE CASCADE)
	if _, err := tx.ExecContext(ctx, `DELETE FROM mapping_entries`); err != nil {
		return fmt.Errorf("commit mappings: clear: %w", err)
	}

	entryStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO mapping_entries
		(requirement_id, last_fingerprint, last_text, last_generated_at, policy_version)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("commit mappings: prepare: %w", err)
	}
	defer entryStmt.Close()

	tcStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO mapping_test_cases (requirement_id, ordinal, test_case_id)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("commit mappings: prepare: %w", err)
	}
	defer tcStmt.Close()

	for _, e := range entries {
		if _, err := entryStmt.ExecContext(ctx,
			e.RequirementID,
			e.LastFingerprint,
			e.LastText,
			e.LastGeneratedAt.UnixNano(),
			e.PolicyVersion,
		); err != nil {
			return fmt.Errorf("commit mappings: insert %s: %w", e.RequirementID, err)
		}
		for i, id := range e.TestCaseIDs {
			if _, err := tcStmt.ExecContext(ctx, e.RequirementID, i, id); err != nil {
				return fmt.Errorf("commit mappings: insert %s test case %d: %w", e.RequirementID, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mappings: %w", err)
	}
	return nil
}
