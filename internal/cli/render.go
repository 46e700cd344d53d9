package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/autopsy/internal/export"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	Output   string
	Template string
	FromHTML bool
}

// RenderResult describes one rendered file.
type RenderResult struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	Mode   string `json:"mode"` // "html" | "json"
	Bytes  int    `json:"bytes"`
}

func (r RenderResult) String() string {
	return fmt.Sprintf("rendered %s -> %s (%d bytes)", r.Input, r.Output, r.Bytes)
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render <file>",
		Short: "Render snapshot JSON as an HTML report",
		Long: `Render a snapshot JSON file into a self-contained HTML report.

With --from-html the direction is reversed: the snapshot embedded in an
HTML report is decompressed and written out as JSON.

Examples:
  autopsy render snapshot.json
  autopsy render snapshot.json -o out/report.html --template custom.html
  autopsy render --from-html autopsy_report.html -o snapshot.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output path (default: input with the new extension)")
	cmd.Flags().StringVar(&opts.Template, "template", "", "HTML template path (default: export.template or built-in)")
	cmd.Flags().BoolVar(&opts.FromHTML, "from-html", false, "extract the snapshot JSON from an HTML report")

	return cmd
}

func runRender(opts *RenderOptions, input string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	in, err := os.ReadFile(input)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read input", err)
	}

	result := RenderResult{Input: input, Output: opts.Output}
	var content []byte

	if opts.FromHTML {
		result.Mode = "json"
		content, err = export.DecodeHTML(string(in))
		if err != nil {
			return WrapExitError(ExitFailure, "failed to decode report", err)
		}
	} else {
		result.Mode = "html"
		if !export.ValidJSON(string(in)) {
			return NewExitError(ExitFailure, fmt.Sprintf("%s is not valid JSON", input))
		}
		tmpl, err := resolveTemplate(opts)
		if err != nil {
			return err
		}
		out.VerboseLog("embedding %s (%d bytes)", input, len(in))
		html, err := export.EmbedJSON(in, tmpl)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to render report", err)
		}
		content = []byte(html)
	}

	if result.Output == "" {
		result.Output = replaceExt(input, "."+result.Mode)
	}
	if err := writeOutput(result.Output, content); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	result.Bytes = len(content)
	return out.Success(result)
}

// resolveTemplate prefers --template, then the configured template, then
// the built-in page.
func resolveTemplate(opts *RenderOptions) (string, error) {
	path := opts.Template
	if path == "" {
		cfg, err := opts.loadConfig()
		if err != nil {
			return "", err
		}
		path = cfg.Export.Template
	}
	if path == "" {
		return export.DefaultTemplate, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to read template", err)
	}
	return string(data), nil
}

func replaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

func writeOutput(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}
