package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// archivedDemo writes a demo report into a fresh archive and returns the
// archive path, the html path and the run id.
func archivedDemo(t *testing.T) (db, html, runID string) {
	t.Helper()
	dir := t.TempDir()
	db = filepath.Join(dir, "runs.db")
	out, err := execute(t, "--format", "json", "demo", "--out", dir, "--archive", db)
	require.NoError(t, err)
	data := decodeResponse(t, out)
	return db, data["html_path"].(string), data["run_id"].(string)
}

func TestArchiveWriteAndList(t *testing.T) {
	db, html, first := archivedDemo(t)

	out, err := execute(t, "--format", "json", "archive", "write", "--db", db, "--label", "from-html", html)
	require.NoError(t, err)
	second := decodeResponse(t, out)["run_id"].(string)
	assert.NotEqual(t, first, second)

	out, err = execute(t, "archive", "list", "--db", db)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], first)
	assert.Contains(t, lines[1], second)
	assert.Contains(t, lines[1], "from-html")
}

func TestArchiveWriteJSONFile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	input := filepath.Join(dir, "snapshot.json")
	require.NoError(t, os.WriteFile(input, []byte(snapshotJSON), 0o644))

	_, err := execute(t, "archive", "write", "--db", db, input)
	require.NoError(t, err)

	out, err := execute(t, "--format", "json", "archive", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, `"generated_at":"2024-05-01T10:00:00Z"`)
}

func TestArchiveShow(t *testing.T) {
	db, _, runID := archivedDemo(t)

	out, err := execute(t, "archive", "show", "--db", db, runID)
	require.NoError(t, err)
	assert.Contains(t, out, "demo.go:")
	assert.Contains(t, out, "processOrders")
	assert.Contains(t, out, "dashboard")

	out, err = execute(t, "archive", "show", "--db", db, "--snapshot", runID)
	require.NoError(t, err)
	assert.Contains(t, out, `"call_sites"`)

	_, err = execute(t, "archive", "show", "--db", db, "no-such-run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestArchiveFindAndRemove(t *testing.T) {
	db, _, runID := archivedDemo(t)

	out, err := execute(t, "--format", "json", "archive", "show", "--db", db, runID)
	require.NoError(t, err)
	var resp struct {
		Data []struct {
			Filename string `json:"filename"`
			Line     int    `json:"line"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Data)

	loc := resp.Data[0].Filename + ":" + strconv.Itoa(resp.Data[0].Line)
	out, err = execute(t, "archive", "find", "--db", db, loc)
	require.NoError(t, err)
	assert.Contains(t, out, "run="+runID)

	_, err = execute(t, "archive", "rm", "--db", db, runID)
	require.NoError(t, err)

	out, err = execute(t, "archive", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs archived.")

	_, err = execute(t, "archive", "rm", "--db", db, runID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestArchiveRequiresDatabase(t *testing.T) {
	t.Setenv("AUTOPSY_ARCHIVE", "")
	_, err := execute(t, "archive", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no archive database")
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		loc      string
		wantFile string
		wantLine int
		wantErr  bool
	}{
		{"demo.go:42", "demo.go", 42, false},
		{`C:\src\demo.go:7`, `C:\src\demo.go`, 7, false},
		{"demo.go", "", 0, true},
		{":3", "", 0, true},
		{"demo.go:x", "", 0, true},
		{"demo.go:0", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.loc, func(t *testing.T) {
			file, line, err := parseLocation(tt.loc)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFile, file)
			assert.Equal(t, tt.wantLine, line)
		})
	}
}
