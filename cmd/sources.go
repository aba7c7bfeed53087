package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/market-validator/internal/catalog"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List data sources and their validation rules",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, rules, err := catalog.Load(cfg.Catalog.RulesFile)
		if err != nil {
			return err
		}
		return formatSources(os.Stdout, reg, rules)
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

// formatSources writes each source followed by its rule table.
func formatSources(out io.Writer, reg *catalog.Registry, rules *catalog.RuleCatalog) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i, src := range reg.Sources() {
		rs, err := rules.RuleSet(src.ID)
		if err != nil {
			return err
		}
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s (%s)\n", src.ID, src.DisplayName, src.Currency)
		_, _ = fmt.Fprintf(w, "  target:\t%s\n", src.TargetFileID)
		_, _ = fmt.Fprintf(w, "  policy:\tmax %d items, retry=%t x%d, wait %dms\n",
			rs.MaxItemsPerSession, rs.RetryOnError, rs.MaxRetries, rs.WaitBetweenRequestsMs)
		for _, r := range rs.Rules {
			var flags []string
			if r.Required {
				flags = append(flags, "required")
			}
			if r.AllowNegative {
				flags = append(flags, "negative ok")
			}
			_, _ = fmt.Fprintf(w, "  %s\t%g%%\t%s\n", r.Field, r.ThresholdPercent, strings.Join(flags, ", "))
		}
	}
	return w.Flush()
}
