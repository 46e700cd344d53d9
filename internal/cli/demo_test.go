package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autopsy/internal/archive"
	"github.com/roach88/autopsy/internal/export"
	"github.com/roach88/autopsy/internal/report"
)

func TestDemoWritesReport(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")

	out, err := execute(t, "--format", "json", "demo", "--out", dir, "--json", "--archive", db, "--label", "ci")
	require.NoError(t, err)
	data := decodeResponse(t, out)

	assert.Equal(t, filepath.Join(dir, "autopsy_report.html"), data["html_path"])
	assert.Equal(t, filepath.Join(dir, "autopsy_report.json"), data["json_path"])
	assert.EqualValues(t, 7, data["call_sites"])

	html, err := os.ReadFile(filepath.Join(dir, "autopsy_report.html"))
	require.NoError(t, err)
	embedded, err := export.DecodeHTML(string(html))
	require.NoError(t, err)
	assert.True(t, export.ValidJSON(string(embedded)))

	a, err := archive.Open(db)
	require.NoError(t, err)
	defer a.Close()

	runs, err := a.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, data["run_id"], runs[0].ID)
	assert.Equal(t, "ci", runs[0].Label)
	assert.True(t, runs[0].HasDashboard)
	assert.Equal(t, 7, runs[0].CallSites)
}

func TestDemoRejectsZeroOrders(t *testing.T) {
	_, err := execute(t, "demo", "--out", t.TempDir(), "--orders", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestProcessOrders(t *testing.T) {
	cfg := report.DefaultConfiguration()
	cfg.AutoStackTrace = false
	r := report.New(cfg)

	processOrders(r, 5)
	snap := r.Export()

	require.NotNil(t, snap.Dashboard)
	require.Len(t, snap.Dashboard.Counts, 1)
	counts := snap.Dashboard.Counts[0].ValueCounts
	assert.Equal(t, 2, counts[`"eu-west"`].Count)
	assert.Equal(t, 2, counts[`"us-east"`].Count)
	assert.Equal(t, 1, counts[`"ap-south"`].Count)

	require.Len(t, snap.Dashboard.Histograms, 1)
	assert.Len(t, snap.Dashboard.Histograms[0].Values, 5)

	require.Len(t, snap.Dashboard.Timeline, 2)
	assert.Equal(t, "batch started", snap.Dashboard.Timeline[0].EventName)
	assert.Equal(t, "batch finished", snap.Dashboard.Timeline[1].EventName)

	require.Len(t, snap.Dashboard.Happened, 1)
	assert.Equal(t, "large order", *snap.Dashboard.Happened[0].Message)

	// One group per order plus one per line item, 1+2+3+4+5 of them.
	groups := 0
	for _, site := range snap.CallSites {
		if !site.IsDashboard {
			groups += len(site.ValueGroups)
		}
	}
	assert.Equal(t, 5+15, groups)
}
