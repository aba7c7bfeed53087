package pipeline

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/market-validator/internal/compare"
	"github.com/sells-group/market-validator/internal/model"
)

// MaxModificationsShown caps the modification log in the validation report.
const MaxModificationsShown = 50

func newPrinter() *message.Printer {
	return message.NewPrinter(language.English)
}

// RenderValidationReport renders the full markdown report of a finished
// session. The output depends only on its arguments.
func RenderValidationReport(snap model.SessionSnapshot, th compare.Thresholds, generatedAt time.Time) string {
	th = th.WithDefaults()
	p := newPrinter()
	var b strings.Builder
	t := snap.Totals

	b.WriteString("# Market Data Validation Report\n\n")
	p.Fprintf(&b, "- Session: %s\n", snap.SessionID)
	p.Fprintf(&b, "- Date: %s\n", snap.Date)
	p.Fprintf(&b, "- Mode: %s\n", mode(snap.DryRun))
	p.Fprintf(&b, "- Status: %s\n", statusLabel(t))
	p.Fprintf(&b, "- Generated at: %s\n\n", generatedAt.UTC().Format(time.RFC3339))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	p.Fprintf(&b, "| Sources | %d |\n", t.Sources)
	p.Fprintf(&b, "| Items validated | %d |\n", t.ItemsValidated)
	p.Fprintf(&b, "| Items updated | %d |\n", t.ItemsUpdated)
	p.Fprintf(&b, "| Items skipped | %d |\n", t.ItemsSkipped)
	p.Fprintf(&b, "| Discrepancies found | %d |\n", t.Discrepancies)
	p.Fprintf(&b, "| Anomalies | %d |\n", t.Anomalies)
	p.Fprintf(&b, "| Errors | %d |\n\n", t.Errors)

	b.WriteString("## Sources\n\n")
	if len(snap.Sources) == 0 {
		b.WriteString("No sources were processed.\n\n")
	} else {
		b.WriteString("| Source | Name | Validated | Updated | Skipped | Discrepancies | Errors | Status |\n")
		b.WriteString("|---|---|---|---|---|---|---|---|\n")
		for _, r := range snap.Sources {
			p.Fprintf(&b, "| %s | %s | %d | %d | %d | %d | %d | %s |\n",
				r.Source, r.SourceName, r.ItemsValidated, r.ItemsUpdated, r.ItemsSkipped,
				r.Discrepancies, r.Errors, taskStatus(r))
		}
		b.WriteString("\n")
	}

	writeModifications(&b, p, snap)
	writeReviews(&b, p, snap.Reviews, th)
	writeErrors(&b, p, snap.Errors)

	return b.String()
}

func writeModifications(b *strings.Builder, p *message.Printer, snap model.SessionSnapshot) {
	b.WriteString("## Modifications\n\n")
	if len(snap.Modifications) == 0 {
		if snap.DryRun {
			b.WriteString("Dry run: no modifications were applied.\n\n")
		} else {
			b.WriteString("No modifications.\n\n")
		}
		return
	}
	for i, m := range snap.Modifications {
		if i == MaxModificationsShown {
			p.Fprintf(b, "\n... and %d more modifications\n", len(snap.Modifications)-MaxModificationsShown)
			break
		}
		p.Fprintf(b, "- `%s` %s %s: %s -> %s (%s, %s)\n",
			m.Ticker, m.Name, m.Field, number(p, m.OldValue), number(p, m.NewValue), m.File, m.Agent)
	}
	b.WriteString("\n")
}

func writeReviews(b *strings.Builder, p *message.Printer, reviews []model.Discrepancy, th compare.Thresholds) {
	var anomalies, flagged, secondary, high []model.Discrepancy
	for _, d := range reviews {
		switch {
		case d.Anomaly:
			anomalies = append(anomalies, d)
		case d.Action == model.ActionFlag:
			flagged = append(flagged, d)
		case d.PercentDiff >= th.SecondaryReview:
			secondary = append(secondary, d)
		case d.PercentDiff >= th.HighPriority:
			high = append(high, d)
		}
	}

	b.WriteString("## Manual Review\n\n")
	writeReviewBucket(b, p, p.Sprintf("Anomalies (over %s%%)", number(p, th.AnomalyCeiling)), anomalies)
	writeReviewBucket(b, p, "Flagged values", flagged)
	writeReviewBucket(b, p, p.Sprintf("Secondary verification (%s%% or more)", number(p, th.SecondaryReview)), secondary)
	writeReviewBucket(b, p, p.Sprintf("High priority (%s%% or more)", number(p, th.HighPriority)), high)
}

func writeReviewBucket(b *strings.Builder, p *message.Printer, title string, items []model.Discrepancy) {
	p.Fprintf(b, "### %s\n\n", title)
	if len(items) == 0 {
		b.WriteString("None.\n\n")
		return
	}
	for _, d := range items {
		p.Fprintf(b, "- `%s` %s %s: %s -> %s (%s%%)\n",
			d.Ticker, d.Name, d.Field, number(p, d.CurrentValue), number(p, d.FetchedValue), p.Sprintf("%.2f", d.PercentDiff))
	}
	b.WriteString("\n")
}

func writeErrors(b *strings.Builder, p *message.Printer, errs []model.ErrorRecord) {
	b.WriteString("## Errors\n\n")
	if len(errs) == 0 {
		b.WriteString("No errors.\n")
		return
	}
	var recoverable, fatal []model.ErrorRecord
	for _, e := range errs {
		if e.Recoverable {
			recoverable = append(recoverable, e)
		} else {
			fatal = append(fatal, e)
		}
	}

	b.WriteString("### Recoverable (retryable)\n\n")
	if len(recoverable) == 0 {
		b.WriteString("None.\n")
	}
	for _, e := range recoverable {
		p.Fprintf(b, "- [%s] %s: %s\n", e.Agent, e.Task, e.Error)
	}

	b.WriteString("\n### Non-recoverable (needs manual intervention)\n\n")
	if len(fatal) == 0 {
		b.WriteString("None.\n")
	}
	for _, e := range fatal {
		p.Fprintf(b, "- [%s] %s: %s (retries: %d)\n", e.Agent, e.Task, e.Error, e.RetryCount)
	}
}

// RenderDailyTasks renders the condensed per-source task list.
func RenderDailyTasks(snap model.SessionSnapshot, generatedAt time.Time) string {
	p := newPrinter()
	var b strings.Builder
	t := snap.Totals

	p.Fprintf(&b, "# Daily Tasks: %s\n\n", snap.Date)
	p.Fprintf(&b, "Generated at: %s\n", generatedAt.UTC().Format(time.RFC3339))
	p.Fprintf(&b, "Status: %s\n", statusLabel(t))
	p.Fprintf(&b, "Mode: %s\n\n", mode(snap.DryRun))

	for _, r := range snap.Sources {
		name := r.SourceName
		if name == "" {
			name = string(r.Source)
		}
		if r.Completed() {
			p.Fprintf(&b, "- [x] %s: COMPLETED\n", name)
		} else {
			p.Fprintf(&b, "- [ ] %s: PARTIAL (%d errors)\n", name, r.Errors)
		}
	}
	if len(snap.Sources) == 0 {
		b.WriteString("No sources were processed.\n")
	}

	p.Fprintf(&b, "\nValidated %d items, updated %d, found %d discrepancies.\n",
		t.ItemsValidated, t.ItemsUpdated, t.Discrepancies)

	fatal := 0
	for _, e := range snap.Errors {
		if !e.Recoverable {
			fatal++
		}
	}
	if t.Anomalies > 0 || fatal > 0 {
		b.WriteString("\n## Follow-ups\n\n")
		if t.Anomalies > 0 {
			p.Fprintf(&b, "- [ ] Review %d anomalies\n", t.Anomalies)
		}
		if fatal > 0 {
			p.Fprintf(&b, "- [ ] Investigate %d non-recoverable errors\n", fatal)
		}
	}
	return b.String()
}

func mode(dryRun bool) string {
	if dryRun {
		return "DRY RUN"
	}
	return "LIVE"
}

func statusLabel(t model.SessionTotals) string {
	s := strings.ToUpper(string(t.Status))
	if t.Cancelled {
		s += " (cancelled)"
	}
	return s
}

func taskStatus(r model.SourceReport) string {
	if r.Completed() {
		return "COMPLETED"
	}
	return "PARTIAL"
}

// number prints v with grouping, using more decimals for small magnitudes.
func number(p *message.Printer, v float64) string {
	if math.Abs(v) < 1 && v != 0 {
		return p.Sprintf("%.4f", v)
	}
	return p.Sprintf("%.2f", v)
}
