package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/autopsy/internal/archive"
	"github.com/roach88/autopsy/internal/export"
	"github.com/roach88/autopsy/internal/report"
)

// DemoOptions holds flags for the demo command.
type DemoOptions struct {
	*RootOptions
	OutDir  string
	Orders  int
	JSON    bool
	Traces  bool
	Archive string
	Label   string
}

// DemoResult lists what the demo wrote.
type DemoResult struct {
	HTMLPath  string `json:"html_path"`
	JSONPath  string `json:"json_path,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	CallSites int    `json:"call_sites"`
	Events    int    `json:"events"`
}

func (r DemoResult) String() string {
	s := fmt.Sprintf("wrote %s (%d call sites, %d events)", r.HTMLPath, r.CallSites, r.Events)
	if r.JSONPath != "" {
		s += "\nwrote " + r.JSONPath
	}
	if r.RunID != "" {
		s += "\narchived run " + r.RunID
	}
	return s
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Record a sample workload and write its report",
		Long: `Record a small order-processing workload and write its report.

Every observation kind is exercised: logged groups, counts, histograms,
timeline events and happened markers.

Examples:
  autopsy demo --out ./out
  autopsy demo --out ./out --json --archive ./runs.db --label nightly`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.OutDir, "out", ".", "directory for the report files")
	cmd.Flags().IntVar(&opts.Orders, "orders", 12, "number of orders to process")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "also write the snapshot as JSON")
	cmd.Flags().BoolVar(&opts.Traces, "traces", true, "capture a stack trace for every observation")
	cmd.Flags().StringVar(&opts.Archive, "archive", "", "archive database to append the run to")
	cmd.Flags().StringVar(&opts.Label, "label", "demo", "label of the archived run")

	return cmd
}

func runDemo(ctx context.Context, opts *DemoOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Orders < 1 {
		return NewExitError(ExitCommandError, "--orders must be at least 1")
	}
	out := opts.formatter(cmd)

	cfg := report.DefaultConfiguration()
	cfg.AutoStackTrace = opts.Traces
	r := report.New(cfg, report.WithLogger(opts.logger(cmd.ErrOrStderr())))
	r.Init(report.InitOptions{})

	processOrders(r, opts.Orders)
	snap := r.Export()
	out.VerboseLog("recorded %d events at %d call sites", r.Len(), len(snap.CallSites))

	result := DemoResult{
		HTMLPath:  filepath.Join(opts.OutDir, "autopsy_report.html"),
		CallSites: len(snap.CallSites),
		Events:    r.Len(),
	}
	if opts.JSON {
		result.JSONPath = filepath.Join(opts.OutDir, "autopsy_report.json")
		if _, err := export.WriteJSON(r, result.JSONPath); err != nil {
			return WrapExitError(ExitCommandError, "failed to write report", err)
		}
	}
	if _, err := export.WriteHTML(r, result.HTMLPath, ""); err != nil {
		return WrapExitError(ExitCommandError, "failed to write report", err)
	}

	if opts.Archive != "" {
		a, err := archive.Open(opts.Archive)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open archive", err)
		}
		defer a.Close()
		result.RunID, err = a.WriteSnapshot(ctx, opts.Label, snap)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to archive run", err)
		}
	}

	return out.Success(result)
}

type order struct {
	ID     int
	Region string
	Items  []string
	Total  float64
}

var (
	regions = []string{"eu-west", "us-east", "ap-south"}
	catalog = []string{"lamp", "desk", "chair", "shelf", "rug"}
)

// processOrders is the sample workload. Order i is a pure function of i.
func processOrders(r *report.Report, n int) {
	r.Timeline("batch started")
	for i := range n {
		o := order{
			ID:     i + 1,
			Region: regions[i%len(regions)],
			Items:  catalog[:1+i%len(catalog)],
		}
		o.Total = priceOrder(r, o)

		r.Log(o)
		r.Count(o.Region)
		r.Hist(o.Total)
		if o.Total > 200 {
			r.Happened("large order")
		}
	}
	r.Timeline("batch finished")
}

func priceOrder(r *report.Report, o order) float64 {
	var total float64
	for j, item := range o.Items {
		price := float64(20 + (o.ID*17+j*31)%90)
		total += price
		r.LogNamed("line item", item, price)
	}
	return total
}
