package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/market-validator/internal/model"
	"github.com/sells-group/market-validator/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect validation session history",
	Long:  "Commands for listing recorded sessions and printing their stored reports.",
}

// openHistory opens and migrates the run history store.
func openHistory(cmd *cobra.Command) (store.Store, error) {
	if err := cfg.Validate("sessions"); err != nil {
		return nil, err
	}
	st, err := initStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("sessions: no run history store configured")
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// -- sessions list --

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		date, _ := cmd.Flags().GetString("date")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(cmd.Context(), store.RunFilter{
			Status: model.RunStatus(status),
			Date:   date,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "sessions list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No sessions found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- sessions show --

var sessionsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the recorded details of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "sessions show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- sessions report --

var sessionsReportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Print the stored validation report of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "sessions report")
		}
		tasks, _ := cmd.Flags().GetBool("tasks")
		text, err := storedReport(run, tasks)
		if err != nil {
			return err
		}
		_, err = io.WriteString(os.Stdout, text)
		return err
	},
}

func init() {
	sessionsListCmd.Flags().String("status", "", "filter by status (running, complete, partial)")
	sessionsListCmd.Flags().String("date", "", "filter by run date YYYY-MM-DD")
	sessionsListCmd.Flags().Int("limit", 50, "max number of sessions to display")

	sessionsReportCmd.Flags().Bool("tasks", false, "print the daily task list instead of the validation report")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsReportCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// storedReport returns the validation report or daily task list of a
// finished run.
func storedReport(run *model.Run, tasks bool) (string, error) {
	if run.Status == model.RunStatusFailed {
		reason := "unknown error"
		if run.Result != nil && run.Result.Error != "" {
			reason = run.Result.Error
		}
		return "", eris.Errorf("session %s failed to start: %s", run.ID, reason)
	}
	if run.Result == nil {
		return "", eris.Errorf("session %s has not finished (status %s)", run.ID, run.Status)
	}
	if tasks {
		return run.Result.DailyTasks, nil
	}
	return run.Result.Report, nil
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDATE\tMODE\tSTATUS\tVALIDATED\tUPDATED\tERRORS\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t------\t---------\t-------\t------\t-------\t--------")

	for _, r := range runs {
		mode := "live"
		if r.DryRun {
			mode = "dry-run"
		}
		validated, updated, errs := "-", "-", "-"
		dur := "-"
		if r.Result != nil {
			validated = fmt.Sprint(r.Result.Totals.ItemsValidated)
			updated = fmt.Sprint(r.Result.Totals.ItemsUpdated)
			errs = fmt.Sprint(r.Result.Totals.Errors)
			dur = r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Date,
			mode,
			r.Status,
			validated,
			updated,
			errs,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
