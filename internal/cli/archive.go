package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/autopsy/internal/archive"
	"github.com/roach88/autopsy/internal/export"
)

// ArchiveOptions holds flags shared by the archive subcommands.
type ArchiveOptions struct {
	*RootOptions
	Database string
	Label    string
	Snapshot bool
}

// NewArchiveCommand creates the archive command and its subcommands.
func NewArchiveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ArchiveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Store and inspect past report snapshots",
		Long: `Store report snapshots in a SQLite archive and query them.

The database defaults to archive.path from the config.

Examples:
  autopsy archive write --db runs.db --label nightly autopsy_report.html
  autopsy archive list --db runs.db
  autopsy archive show --db runs.db 0190a5c2-...
  autopsy archive find --db runs.db checkout.go:42`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite archive (default: archive.path)")

	write := &cobra.Command{
		Use:           "write <snapshot.json|report.html>",
		Short:         "Append a snapshot as a new run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(opts, cmd, func(ctx context.Context, a *archive.Archive) error {
				return runArchiveWrite(ctx, opts, a, args[0], cmd)
			})
		},
	}
	write.Flags().StringVar(&opts.Label, "label", "", "run label (default: archive.label)")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List archived runs, oldest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(opts, cmd, func(ctx context.Context, a *archive.Archive) error {
				runs, err := a.ListRuns(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list runs", err)
				}
				if opts.Format == "json" {
					if runs == nil {
						runs = []archive.Run{}
					}
					return opts.formatter(cmd).Success(runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs archived.")
					return nil
				}
				for _, run := range runs {
					fmt.Fprintf(cmd.OutOrStdout(), "%4d  %s  %s  %s\n", run.Seq, run.ID, run.GeneratedAt, run.Label)
				}
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show the call sites of a run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(opts, cmd, func(ctx context.Context, a *archive.Archive) error {
				return runArchiveShow(ctx, opts, a, args[0], cmd)
			})
		},
	}
	show.Flags().BoolVar(&opts.Snapshot, "snapshot", false, "print the archived snapshot JSON instead")

	find := &cobra.Command{
		Use:           "find <file:line>",
		Short:         "Find a call site across all runs",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, line, err := parseLocation(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid location", err)
			}
			return withArchive(opts, cmd, func(ctx context.Context, a *archive.Archive) error {
				sites, err := a.FindCallSite(ctx, file, line)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to query call sites", err)
				}
				return printSites(opts, cmd, sites)
			})
		},
	}

	rm := &cobra.Command{
		Use:           "rm <run-id>",
		Short:         "Delete a run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(opts, cmd, func(ctx context.Context, a *archive.Archive) error {
				if err := a.DeleteRun(ctx, args[0]); err != nil {
					return WrapExitError(ExitCommandError, "failed to delete run", err)
				}
				return opts.formatter(cmd).Success(map[string]string{"deleted": args[0]})
			})
		},
	}

	cmd.AddCommand(write, list, show, find, rm)
	return cmd
}

// withArchive opens the configured archive for fn and closes it after.
func withArchive(opts *ArchiveOptions, cmd *cobra.Command, fn func(context.Context, *archive.Archive) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Database == "" {
		opts.Database = cfg.Archive.Path
	}
	if opts.Label == "" {
		opts.Label = cfg.Archive.Label
	}
	if opts.Database == "" {
		return NewExitError(ExitCommandError, "no archive database: pass --db or set archive.path")
	}

	a, err := archive.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open archive", err)
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, a)
}

func runArchiveWrite(ctx context.Context, opts *ArchiveOptions, a *archive.Archive, path string, cmd *cobra.Command) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read input", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".html") {
		data, err = export.DecodeHTML(string(data))
		if err != nil {
			return WrapExitError(ExitFailure, "failed to decode report", err)
		}
	}

	id, err := a.WriteJSON(ctx, opts.Label, data)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to archive snapshot", err)
	}
	opts.formatter(cmd).VerboseLog("archived %s as %s", path, id)
	return opts.formatter(cmd).Success(map[string]string{"run_id": id})
}

func runArchiveShow(ctx context.Context, opts *ArchiveOptions, a *archive.Archive, id string, cmd *cobra.Command) error {
	if opts.Snapshot {
		data, err := a.LoadSnapshot(ctx, id)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load snapshot", err)
		}
		_, err = cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}

	sites, err := a.CallSites(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load call sites", err)
	}
	if len(sites) == 0 {
		// Unknown and empty runs both have no sites.
		if _, err := a.LoadSnapshot(ctx, id); err != nil {
			return WrapExitError(ExitCommandError, "failed to load run", err)
		}
	}
	return printSites(opts, cmd, sites)
}

func printSites(opts *ArchiveOptions, cmd *cobra.Command, sites []archive.CallSite) error {
	if opts.Format == "json" {
		if sites == nil {
			sites = []archive.CallSite{}
		}
		return opts.formatter(cmd).Success(sites)
	}
	if len(sites) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No call sites.")
		return nil
	}
	for _, s := range sites {
		kind := "log"
		if s.IsDashboard {
			kind = "dashboard"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s:%d  %s  %s  groups=%d  run=%s\n",
			s.Filename, s.Line, s.FunctionName, kind, s.Groups, s.RunID)
	}
	return nil
}

// parseLocation splits "file:line". The file part may itself contain
// colons.
func parseLocation(loc string) (string, int, error) {
	i := strings.LastIndexByte(loc, ':')
	if i <= 0 {
		return "", 0, fmt.Errorf("%q: want file:line", loc)
	}
	var line int
	if _, err := fmt.Sscanf(loc[i+1:], "%d", &line); err != nil || line < 1 {
		return "", 0, fmt.Errorf("%q: bad line number", loc)
	}
	return loc[:i], line, nil
}
