// Package autopsy records what a running program saw and renders it as a
// self-contained HTML report.
//
// The package-level functions act on a default Report:
//
//	func main() {
//		defer autopsy.AtExit()
//
//		total := checkout(cart)
//		autopsy.Log(total, cart)
//		autopsy.Count(cart.Region)
//		autopsy.Hist(total)
//		autopsy.Timeline("checkout done")
//		autopsy.Happened("paid")
//	}
//
// On return, AtExit writes autopsy_report.html when anything was recorded.
package autopsy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/roach88/autopsy/internal/config"
	"github.com/roach88/autopsy/internal/export"
	"github.com/roach88/autopsy/internal/live"
	"github.com/roach88/autopsy/internal/report"
)

type (
	// Report is the observation store.
	Report = report.Report
	// Configuration controls what a Report captures.
	Configuration = report.Configuration
	// InitOptions controls Init.
	InitOptions = report.InitOptions
	// Binding names a value passed to Log.
	Binding = report.Binding
)

var (
	mu       sync.Mutex
	std      *report.Report
	settings = exportSettings{htmlPath: config.DefaultHTMLPath}
	stopLive context.CancelFunc

	atExitEnabled atomic.Bool
)

type exportSettings struct {
	htmlPath string
	jsonPath string
	template string
}

func init() {
	atExitEnabled.Store(true)
}

// New returns a Report whose live mode serves on the configured address
// until ctx is done.
func New(ctx context.Context, cfg Configuration, opts ...report.Option) *Report {
	var r *report.Report
	source := func() *report.Snapshot { return r.Export() }
	opts = append([]report.Option{
		report.WithLiveStarter(live.Starter(ctx, source, slog.Default())),
	}, opts...)
	r = report.New(cfg, opts...)
	return r
}

// Default returns the Report used by the package-level functions.
func Default() *Report {
	mu.Lock()
	defer mu.Unlock()
	return defaultLocked()
}

func defaultLocked() *report.Report {
	if std == nil {
		ctx, cancel := context.WithCancel(context.Background())
		stopLive = cancel
		std = New(ctx, report.DefaultConfiguration())
	}
	return std
}

// Named binds name to v for Log.
func Named(name string, v any) Binding { return report.Named(name, v) }

// Log records args as one group at the calling site.
func Log(args ...any) { Default().Log(args...) }

// LogNamed records args as one group labelled name.
func LogNamed(name string, args ...any) { Default().LogNamed(name, args...) }

// Count counts v at the calling site.
func Count(v any) { Default().Count(v) }

// Hist adds n to the calling site's histogram.
func Hist(n float64) { Default().Hist(n) }

// Timeline records a named event now.
func Timeline(name string) { Default().Timeline(name) }

// Happened counts that the calling site ran.
func Happened(message ...string) { Default().Happened(message...) }

// Init initializes the default Report.
func Init(opts InitOptions) { Default().Init(opts) }

// Configure loads settings from path (empty for defaults plus AUTOPSY_*
// environment) and initializes the default Report with them.
func Configure(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	return Apply(cfg)
}

// Apply initializes the default Report from cfg.
func Apply(cfg config.Config) error {
	tmpl := ""
	if cfg.Export.Template != "" {
		data, err := os.ReadFile(cfg.Export.Template)
		if err != nil {
			return fmt.Errorf("read template: %w", err)
		}
		tmpl = string(data)
	}

	mu.Lock()
	settings = exportSettings{htmlPath: cfg.Export.HTMLPath, jsonPath: cfg.Export.JSONPath, template: tmpl}
	r := defaultLocked()
	mu.Unlock()

	SetAtExitEnabled(cfg.Export.AtExit)
	rc := cfg.ReportConfiguration()
	r.Init(InitOptions{Config: &rc})
	return nil
}

// GenerateHTML renders the default Report as HTML. With a non-empty path
// the page is also written there and the report marked written.
func GenerateHTML(path string) (string, error) {
	r, tmpl := Default(), currentSettings().templateOrDefault()
	if path != "" {
		return export.WriteHTML(r, path, tmpl)
	}
	return export.ToHTML(r.Export(), tmpl)
}

// GenerateJSON renders the default Report as JSON. With a non-empty path
// the text is also written there and the report marked written.
func GenerateJSON(path string) (string, error) {
	r := Default()
	if path != "" {
		return export.WriteJSON(r, path)
	}
	return export.ToJSON(r.Export())
}

// SetAtExitEnabled turns the AtExit report on or off.
func SetAtExitEnabled(enabled bool) { atExitEnabled.Store(enabled) }

// AtExit writes the default Report when it was initialized, has data, was
// not yet written and is not streaming live. Defer it from main.
func AtExit() {
	if !atExitEnabled.Load() {
		return
	}
	mu.Lock()
	r, s := std, settings
	mu.Unlock()
	if r == nil {
		return
	}
	if err := writeAtExit(r, s); err != nil {
		slog.Warn("autopsy report not written", "error", err)
	}
}

func writeAtExit(r *report.Report, s exportSettings) error {
	if !r.Initialized() || r.Written() || r.LiveMode() || !r.HasData() {
		return nil
	}
	if s.jsonPath != "" {
		if _, err := export.WriteJSON(r, s.jsonPath); err != nil {
			return err
		}
	}
	if _, err := export.WriteHTML(r, s.htmlPath, s.templateOrDefault()); err != nil {
		return err
	}
	slog.Info("autopsy report written", "path", s.htmlPath)
	return nil
}

// Close stops the live server of the default Report, if any, and discards
// the default Report.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if stopLive != nil {
		stopLive()
		stopLive = nil
	}
	std = nil
}

func currentSettings() exportSettings {
	mu.Lock()
	defer mu.Unlock()
	return settings
}

func (s exportSettings) templateOrDefault() string {
	if s.template == "" {
		return export.DefaultTemplate
	}
	return s.template
}
