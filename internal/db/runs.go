package db

import (
	"context"
	"fmt"
)

// AnalysisRun is the audit record of one confidence analysis pass.
type AnalysisRun struct {
	RunID           string `json:"run_id"`
	StartedUnix     int64  `json:"started_unix"`
	Mode            string `json:"mode"` // "preview" or "apply"
	DevicesAnalyzed int    `json:"devices_analyzed"`
	DevicesUpdated  int    `json:"devices_updated"`
}

// RecordAnalysisRun stores the audit record for a completed pass.
func (db *DB) RecordAnalysisRun(ctx context.Context, run AnalysisRun) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO analysis_runs(run_id, started_unix, mode, devices_analyzed, devices_updated)
		VALUES (?, ?, ?, ?, ?)
	`, run.RunID, run.StartedUnix, run.Mode, run.DevicesAnalyzed, run.DevicesUpdated)
	if err != nil {
		return fmt.Errorf("failed to record analysis run: %w", err)
	}
	return nil
}

// RecentAnalysisRuns returns the most recent runs, newest first.
func (db *DB) RecentAnalysisRuns(ctx context.Context, limit int) ([]AnalysisRun, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, started_unix, mode, devices_analyzed, devices_updated
		FROM analysis_runs ORDER BY started_unix DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis runs: %w", err)
	}
	defer rows.Close()

	var runs []AnalysisRun
	for rows.Next() {
		var r AnalysisRun
		if err := rows.Scan(&r.RunID, &r.StartedUnix, &r.Mode, &r.DevicesAnalyzed, &r.DevicesUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan analysis run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
