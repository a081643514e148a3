package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dshills/localbrain/internal/review"
)

// MarkdownWriter renders one "###" section per reviewed file.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *review.Report) error {
	ew := &errWriter{w: w}

	switch report.Outcome {
	case review.OutcomeNoFiles:
		return nil
	case review.OutcomeNoReviews:
		ew.println("# No Reviews Generated")
		ew.println("")
		return ew.err
	}

	ew.printf("# %s\n\n", heading(report))
	for _, f := range report.Succeeded() {
		ew.printf("### %s\n\n", displayName(f))
		ew.printf("%s\n", fileBody(f))
	}
	return ew.err
}

func fileBody(f review.FileReport) string {
	var b strings.Builder
	switch {
	case f.DryRun != nil:
		d := f.DryRun
		b.WriteString("## Dry Run Information\n\n")
		fmt.Fprintf(&b, "- Model: %s\n", d.Model)
		fmt.Fprintf(&b, "- File: %s (%d bytes)\n", d.File, d.Bytes)
		fmt.Fprintf(&b, "- System prompt: %d chars\n", d.SystemChars)
		fmt.Fprintf(&b, "- User prompt: %d chars\n", d.UserChars)
	case f.Validation != nil:
		writeValidation(&b, f)
	case len(f.Runs) > 1:
		first := true
		for _, r := range f.Runs {
			if !r.OK || r.Result == nil {
				continue
			}
			if !first {
				b.WriteString("\n---\n\n")
			}
			first = false
			fmt.Fprintf(&b, "## Run %d\n\n", r.Run)
			writeResult(&b, *r.Result)
		}
	case f.Result != nil:
		writeResult(&b, *f.Result)
	}
	return b.String()
}

func writeValidation(b *strings.Builder, f review.FileReport) {
	v := f.Validation
	b.WriteString("## Validation Report\n\n")
	fmt.Fprintf(b, "- **Total Runs**: %d\n", v.SuccessfulRuns)
	if failed := v.TotalRuns - v.SuccessfulRuns; failed > 0 {
		fmt.Fprintf(b, "- **Failed Runs**: %d\n", failed)
	}
	fmt.Fprintf(b, "- **Average Duration**: %s\n", seconds(v.MeanDuration))

	if len(v.Consistency) > 0 {
		b.WriteString("\n## Consistency\n\n")
		b.WriteString("| Category | Consistent | Unstable | Ratio |\n")
		b.WriteString("|----------|------------|----------|-------|\n")
		var stable []string
		for _, c := range v.Consistency {
			fmt.Fprintf(b, "| %s | %d | %d | %.0f%% |\n", c.Category, c.Consistent, c.Unstable, c.Ratio()*100)
			stable = append(stable, c.Stable...)
		}
		if len(stable) > 0 {
			b.WriteString("\nStable across runs:\n")
			for _, s := range stable {
				fmt.Fprintf(b, "- %s\n", s)
			}
		}
	}

	if len(v.Runs) > 0 {
		b.WriteString("\n## Run Metrics\n\n")
		b.WriteString("| Run | Duration | Status |\n")
		b.WriteString("|-----|----------|--------|\n")
		for _, r := range v.Runs {
			status := "✓"
			if !r.OK {
				status = "✗"
			}
			fmt.Fprintf(b, "| %d | %s | %s |\n", r.Run, seconds(r.Duration), status)
		}
	}

	b.WriteString("\n## All Runs\n\n")
	for _, r := range f.Runs {
		if !r.OK || r.Result == nil {
			continue
		}
		fmt.Fprintf(b, "### Run %d\n\n", r.Run)
		writeResult(b, *r.Result)
		b.WriteString("\n")
	}
}

func writeResult(b *strings.Builder, r review.Result) {
	writeItems(b, "Issues Found", r.Issues)
	writeItems(b, "Simplifications", r.Simplifications)
	writeItems(b, "Consider Later", r.Deferred)
	b.WriteString("## Other Observations\n")
	if len(r.Observations) == 0 {
		b.WriteString("- None\n")
	}
	for _, o := range r.Observations {
		fmt.Fprintf(b, "- %s\n", o)
	}
}

func writeItems(b *strings.Builder, title string, items []review.Item) {
	fmt.Fprintf(b, "## %s\n", title)
	if len(items) == 0 {
		b.WriteString("- None\n")
	}
	for _, it := range items {
		fmt.Fprintf(b, "- **%s**", it.Title)
		if it.Summary != "" {
			fmt.Fprintf(b, ": %s", it.Summary)
		}
		if it.Lines != "" {
			fmt.Fprintf(b, " (lines: %s)", it.Lines)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
