package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/market-validator/internal/model"
	"github.com/sells-group/market-validator/internal/pipeline"
)

var (
	validateDate          string
	validateSources       []string
	validateDryRun        bool
	validateVerbose       bool
	validateFailOnPartial bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run a validation session",
	Long:  "Validates every requested source against freshly fetched values, applies corrections unless --dry-run is set and writes the validation report and daily task list for the date.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "validate")
		if err != nil {
			return err
		}
		defer env.Close()

		dryRun := validateDryRun || cfg.Validation.DryRun
		out, err := env.Orchestrator.Run(ctx, pipeline.RunOptions{
			Date:    validateDate,
			Sources: validateSources,
			DryRun:  dryRun,
			Verbose: validateVerbose,
		})
		if err != nil {
			return eris.Wrap(err, "validate")
		}

		printOutcome(os.Stdout, out)

		if validateFailOnPartial && out.Snapshot.Totals.Status != model.SessionStatusSuccess {
			return eris.Errorf("session %s finished %s", out.Snapshot.SessionID, out.Snapshot.Totals.Status)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateDate, "date", "", "run date YYYY-MM-DD (default today)")
	validateCmd.Flags().StringSliceVar(&validateSources, "sources", nil, "comma-separated source ids (default all)")
	validateCmd.Flags().BoolVar(&validateDryRun, "dry-run", false, "detect discrepancies without applying updates")
	validateCmd.Flags().BoolVar(&validateVerbose, "verbose", true, "log per-ticker progress")
	validateCmd.Flags().BoolVar(&validateFailOnPartial, "fail-on-partial", false, "exit non-zero when the session is partial")
	rootCmd.AddCommand(validateCmd)
}

// printOutcome writes a short session summary to w.
func printOutcome(out io.Writer, o *pipeline.Outcome) {
	s := o.Snapshot
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Session:\t%s\n", s.SessionID)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", o.RunID)
	_, _ = fmt.Fprintf(w, "Date:\t%s\n", s.Date)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", s.Totals.Status)
	_, _ = fmt.Fprintf(w, "Validated:\t%d\n", s.Totals.ItemsValidated)
	_, _ = fmt.Fprintf(w, "Updated:\t%d\n", s.Totals.ItemsUpdated)
	_, _ = fmt.Fprintf(w, "Discrepancies:\t%d\n", s.Totals.Discrepancies)
	_, _ = fmt.Fprintf(w, "Anomalies:\t%d\n", s.Totals.Anomalies)
	_, _ = fmt.Fprintf(w, "Errors:\t%d\n", s.Totals.Errors)
	if o.Paths.Report != "" {
		_, _ = fmt.Fprintf(w, "Report:\t%s\n", o.Paths.Report)
		_, _ = fmt.Fprintf(w, "Daily tasks:\t%s\n", o.Paths.DailyTasks)
	}
	for _, warn := range o.Warnings {
		_, _ = fmt.Fprintf(w, "Warning:\t%s\n", warn)
	}
	_ = w.Flush()
}
