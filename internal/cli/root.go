package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/autopsy/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the autopsy CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

// Execute runs the CLI with args, renders a failure in the selected
// format and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SilenceErrors = true

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	f := &OutputFormatter{Format: opts.Format, Writer: stdout, ErrWriter: stderr, Verbose: opts.Verbose}
	return f.Failure(err)
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autopsy",
		Short: "Autopsy - see what your program saw",
		Long: `Render, serve and archive autopsy reports.

A report records logged values, counts, histograms, timeline events and
stack traces from a running program and renders them as one self-contained
HTML page.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to a YAML config file")

	cmd.AddCommand(NewRenderCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewArchiveCommand(opts))
	cmd.AddCommand(NewDemoCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger returns a text logger on w, at debug level when verbose.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig loads the --config file, if any, with AUTOPSY_* overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}
