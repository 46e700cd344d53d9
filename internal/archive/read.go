package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrRunNotFound is returned when no run has the requested id.
	ErrRunNotFound = errors.New("run not found")
	// ErrNotSnapshot is returned when archived JSON is not an object.
	ErrNotSnapshot = errors.New("snapshot json must be an object")
)

// Run summarizes one archived snapshot.
type Run struct {
	ID           string `json:"id"`
	Seq          int64  `json:"seq"`
	GeneratedAt  string `json:"generated_at"`
	Label        string `json:"label,omitempty"`
	HasDashboard bool   `json:"has_dashboard"`
	CallSites    int    `json:"call_sites"`
}

// CallSite is one call site row of a run.
type CallSite struct {
	RunID        string `json:"run_id"`
	Position     int    `json:"position"`
	Filename     string `json:"filename"`
	Line         int    `json:"line"`
	FunctionName string `json:"function_name"`
	ClassName    string `json:"class_name,omitempty"`
	IsDashboard  bool   `json:"is_dashboard"`
	Groups       int    `json:"groups"`
}

// ListRuns returns every run ordered by seq.
func (a *Archive) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT r.id, r.seq, r.generated_at, r.label, r.has_dashboard,
		       (SELECT COUNT(*) FROM call_sites c WHERE c.run_id = r.id)
		FROM runs r
		ORDER BY r.seq ASC, r.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Seq, &run.GeneratedAt, &run.Label, &run.HasDashboard, &run.CallSites); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// LoadSnapshot returns the snapshot JSON of a run.
func (a *Archive) LoadSnapshot(ctx context.Context, id string) ([]byte, error) {
	var blob []byte
	err := a.db.QueryRowContext(ctx, `SELECT snapshot FROM runs WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load snapshot %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}

	data, err := a.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot %s: %w", id, err)
	}
	return data, nil
}

// CallSites returns the call sites of a run in snapshot order.
func (a *Archive) CallSites(ctx context.Context, id string) ([]CallSite, error) {
	return a.querySites(ctx, `
		SELECT run_id, position, filename, line, function_name, class_name, is_dashboard, group_count
		FROM call_sites
		WHERE run_id = ?
		ORDER BY position ASC
	`, id)
}

// FindCallSite returns every archived occurrence of filename:line, oldest
// run first.
func (a *Archive) FindCallSite(ctx context.Context, filename string, line int) ([]CallSite, error) {
	return a.querySites(ctx, `
		SELECT c.run_id, c.position, c.filename, c.line, c.function_name, c.class_name, c.is_dashboard, c.group_count
		FROM call_sites c
		JOIN runs r ON r.id = c.run_id
		WHERE c.filename = ? AND c.line = ?
		ORDER BY r.seq ASC, c.position ASC
	`, filename, line)
}

func (a *Archive) querySites(ctx context.Context, query string, args ...any) ([]CallSite, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query call sites: %w", err)
	}
	defer rows.Close()

	var sites []CallSite
	for rows.Next() {
		var s CallSite
		if err := rows.Scan(&s.RunID, &s.Position, &s.Filename, &s.Line, &s.FunctionName, &s.ClassName, &s.IsDashboard, &s.Groups); err != nil {
			return nil, fmt.Errorf("scan call site: %w", err)
		}
		sites = append(sites, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query call sites: %w", err)
	}
	return sites, nil
}
