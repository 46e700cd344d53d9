package autopsy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autopsy/internal/config"
	"github.com/roach88/autopsy/internal/export"
)

func reset(t *testing.T) {
	t.Helper()
	Close()
	SetAtExitEnabled(true)
	t.Cleanup(func() {
		Close()
		SetAtExitEnabled(true)
	})
}

func configured(t *testing.T) (config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Export.HTMLPath = filepath.Join(dir, "autopsy_report.html")
	return cfg, dir
}

func TestPackageFunctionsRecordCallSites(t *testing.T) {
	reset(t)

	qty := 2
	Log(qty)
	Count("eu")
	Hist(1.5)
	Timeline("start")
	Happened("done")

	snap := Default().Export()
	require.NotEmpty(t, snap.CallSites)
	assert.Equal(t, "TestPackageFunctionsRecordCallSites", snap.CallSites[0].FunctionName)
	assert.Equal(t, "qty", snap.CallSites[0].ValueGroups[0].Values[0].Name)
	require.NotNil(t, snap.Dashboard)
	assert.Len(t, snap.Dashboard.Happened, 1)
	assert.Equal(t, 5, Default().Len())
}

func TestGenerateJSONAndHTML(t *testing.T) {
	reset(t)
	LogNamed("cart", Named("sku", 9))

	text, err := GenerateJSON("")
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(text), &doc))
	assert.False(t, Default().Written())

	path := filepath.Join(t.TempDir(), "report.html")
	html, err := GenerateHTML(path)
	require.NoError(t, err)
	assert.True(t, Default().Written())

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, html, string(onDisk))

	embedded, err := export.DecodeHTML(html)
	require.NoError(t, err)
	assert.Contains(t, string(embedded), `"sku"`)
}

func TestAtExitWritesReport(t *testing.T) {
	reset(t)
	cfg, dir := configured(t)
	cfg.Export.JSONPath = filepath.Join(dir, "autopsy_report.json")
	require.NoError(t, Apply(cfg))

	Log("exit", 1)
	AtExit()

	assert.FileExists(t, cfg.Export.HTMLPath)
	assert.FileExists(t, cfg.Export.JSONPath)
	assert.True(t, Default().Written())
}

func TestAtExitConditions(t *testing.T) {
	tests := []struct {
		name  string
		setup func()
	}{
		{"disabled", func() {
			SetAtExitEnabled(false)
			Log(1)
		}},
		{"no data", func() {}},
		{"already written", func() {
			Log(1)
			Default().MarkWritten()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset(t)
			cfg, _ := configured(t)
			require.NoError(t, Apply(cfg))

			tt.setup()
			AtExit()
			assert.NoFileExists(t, cfg.Export.HTMLPath)
		})
	}
}

func TestAtExitWithoutDefaultReport(t *testing.T) {
	reset(t)
	assert.NotPanics(t, AtExit)
}

func TestApplyConfiguration(t *testing.T) {
	reset(t)
	cfg, dir := configured(t)
	cfg.Report.AutoStackTrace = false
	cfg.Export.AtExit = false
	tmpl := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(tmpl, []byte(`<p>custom</p><script id="autopsy-data" type="application/json"></script>`), 0644))
	cfg.Export.Template = tmpl

	require.NoError(t, Apply(cfg))
	assert.False(t, Default().Config().AutoStackTrace)
	assert.True(t, Default().Initialized())

	Log(1)
	_, ok := Default().StackTrace(0)
	assert.False(t, ok)

	html, err := GenerateHTML("")
	require.NoError(t, err)
	assert.Contains(t, html, "<p>custom</p>")

	AtExit()
	assert.NoFileExists(t, cfg.Export.HTMLPath)
}

func TestApplyMissingTemplate(t *testing.T) {
	reset(t)
	cfg, dir := configured(t)
	cfg.Export.Template = filepath.Join(dir, "absent.html")
	assert.ErrorContains(t, Apply(cfg), "read template")
}

func TestConfigureFromFile(t *testing.T) {
	reset(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "autopsy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("report:\n  auto_stack_trace: false\n"), 0644))

	require.NoError(t, Configure(path))
	assert.False(t, Default().Config().AutoStackTrace)

	assert.Error(t, Configure(filepath.Join(dir, "absent.yaml")))
}

func TestInitClear(t *testing.T) {
	reset(t)
	Log(1)
	Init(InitOptions{Clear: true, NoWarn: true})
	assert.False(t, Default().HasData())
	assert.Equal(t, 0, Default().Len())
}
