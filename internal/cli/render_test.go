package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autopsy/internal/export"
)

const snapshotJSON = `{"generated_at":"2024-05-01T10:00:00Z","call_sites":[],"stack_traces":{}}`

func TestRenderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "snapshot.json")
	require.NoError(t, os.WriteFile(input, []byte(snapshotJSON), 0o644))

	out, err := execute(t, "render", input)
	require.NoError(t, err)
	htmlPath := filepath.Join(dir, "snapshot.html")
	assert.Contains(t, out, "rendered "+input+" -> "+htmlPath)

	html, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), `data-compressed="gzip"`)

	back := filepath.Join(dir, "nested", "back.json")
	_, err = execute(t, "render", "--from-html", htmlPath, "-o", back)
	require.NoError(t, err)

	data, err := os.ReadFile(back)
	require.NoError(t, err)
	assert.Equal(t, snapshotJSON, string(data))
}

func TestRenderCustomTemplate(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "snapshot.json")
	tmpl := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(input, []byte(snapshotJSON), 0o644))
	require.NoError(t, os.WriteFile(tmpl, []byte(`<main><script id="autopsy-data" type="application/json">{}</script></main>`), 0o644))

	out, err := execute(t, "--format", "json", "render", input, "--template", tmpl, "-o", filepath.Join(dir, "out.html"))
	require.NoError(t, err)
	data := decodeResponse(t, out)
	assert.Equal(t, "html", data["mode"])

	html, err := os.ReadFile(filepath.Join(dir, "out.html"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(html), "<main>"))

	decoded, err := export.DecodeHTML(string(html))
	require.NoError(t, err)
	assert.JSONEq(t, snapshotJSON, string(decoded))
}

func TestRenderErrors(t *testing.T) {
	dir := t.TempDir()
	badJSON := filepath.Join(dir, "bad.json")
	plainHTML := filepath.Join(dir, "plain.html")
	noMarker := filepath.Join(dir, "nomarker.html")
	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(badJSON, []byte(`{"call_sites":`), 0o644))
	require.NoError(t, os.WriteFile(plainHTML, []byte(`<html></html>`), 0o644))
	require.NoError(t, os.WriteFile(noMarker, []byte(`<html></html>`), 0o644))
	require.NoError(t, os.WriteFile(good, []byte(snapshotJSON), 0o644))

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantMsg  string
	}{
		{"missing input", []string{"render", filepath.Join(dir, "absent.json")}, ExitCommandError, "failed to read input"},
		{"invalid json", []string{"render", badJSON}, ExitFailure, "is not valid JSON"},
		{"html without payload", []string{"render", "--from-html", plainHTML}, ExitFailure, "failed to decode report"},
		{"template without marker", []string{"render", good, "--template", noMarker}, ExitFailure, "failed to render report"},
		{"missing template", []string{"render", good, "--template", filepath.Join(dir, "absent.html")}, ExitCommandError, "failed to read template"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestReplaceExt(t *testing.T) {
	assert.Equal(t, "out/report.html", replaceExt("out/report.json", ".html"))
	assert.Equal(t, "snapshot.json", replaceExt("snapshot", ".json"))
}
