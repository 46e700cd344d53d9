package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/valyala/fastjson"

	"github.com/roach88/autopsy/internal/report"
)

// WriteSnapshot appends snap as a new run and returns the run id.
func (a *Archive) WriteSnapshot(ctx context.Context, label string, snap *report.Snapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return a.WriteJSON(ctx, label, data)
}

// WriteJSON appends snapshot JSON, as produced by an export, as a new run
// and returns the run id. The run and its call sites are written in one
// transaction.
func (a *Archive) WriteJSON(ctx context.Context, label string, data []byte) (string, error) {
	var p fastjson.Parser
	doc, err := p.ParseBytes(data)
	if err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if doc.Type() != fastjson.TypeObject {
		return "", fmt.Errorf("write snapshot: %w", ErrNotSnapshot)
	}
	dashboard := doc.Get("dashboard")
	hasDashboard := dashboard != nil && dashboard.Type() == fastjson.TypeObject

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("write snapshot: generate id: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return "", fmt.Errorf("write snapshot: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, seq, generated_at, label, has_dashboard, snapshot)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		id.String(),
		seq,
		string(doc.GetStringBytes("generated_at")),
		label,
		hasDashboard,
		a.enc.EncodeAll(data, nil),
	)
	if err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	for pos, site := range doc.GetArray("call_sites") {
		filename := string(site.GetStringBytes("filename"))
		line := site.GetInt("line")
		_, err := tx.ExecContext(ctx, `
			INSERT INTO call_sites
			(run_id, position, filename, line, function_name, class_name, is_dashboard, group_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			id.String(),
			pos,
			filename,
			line,
			string(site.GetStringBytes("function_name")),
			string(site.GetStringBytes("class_name")),
			site.GetBool("is_dashboard"),
			len(site.GetArray("value_groups")),
		)
		if err != nil {
			return "", fmt.Errorf("write call site %s:%d: %w", filename, line, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("write snapshot: commit: %w", err)
	}
	return id.String(), nil
}

// DeleteRun removes a run and its call sites.
func (a *Archive) DeleteRun(ctx context.Context, id string) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete run %s: %w", id, ErrRunNotFound)
	}
	return nil
}
