package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/dshills/localbrain/internal/review"
)

// TextWriter outputs a compact terminal report. Colors are applied only when
// the destination is a terminal.
type TextWriter struct{}

type textStyles struct {
	title, file, section, dim, fail, ok lipgloss.Style
}

func newTextStyles(w io.Writer) textStyles {
	r := lipgloss.NewRenderer(w)
	return textStyles{
		title:   r.NewStyle().Bold(true),
		file:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#8be9fd")),
		section: r.NewStyle().Foreground(lipgloss.Color("#bd93f9")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("#6272a4")),
		fail:    r.NewStyle().Foreground(lipgloss.Color("#ff5555")),
		ok:      r.NewStyle().Foreground(lipgloss.Color("#50fa7b")),
	}
}

func (t *TextWriter) Write(w io.Writer, report *review.Report) error {
	ew := &errWriter{w: w}
	st := newTextStyles(w)

	ew.println(st.title.Render(fmt.Sprintf("Local Brain %s (%s mode)", heading(report), report.Mode)))
	if report.Model != "" {
		ew.println(st.dim.Render(fmt.Sprintf("Model: %s (%s)", report.Model, report.Source)))
	}
	if report.Repo != nil && report.Repo.Root != "" {
		ew.println(st.dim.Render(fmt.Sprintf("Repository: %s (branch: %s)", report.Repo.Root, report.Repo.Branch)))
	}
	ew.println(strings.Repeat("─", 60))

	if report.Outcome == review.OutcomeNoFiles {
		ew.println("No files to review.")
		return ew.err
	}
	if report.Outcome == review.OutcomeNoReviews {
		ew.println(st.fail.Render("No reviews generated."))
	}

	for _, f := range report.Files {
		meta := []string{humanize.Bytes(uint64(f.Bytes))}
		if f.Language != "" {
			meta = append(meta, f.Language)
		}
		if f.Model != "" {
			meta = append(meta, f.Model)
		}
		if f.Redacted {
			meta = append(meta, "redacted")
		}
		ew.printf("\n%s  %s\n", st.file.Render(f.Path), st.dim.Render(strings.Join(meta, " · ")))

		if !f.OK() {
			ew.printf("  %s %s\n", st.fail.Render("FAILED:"), f.Error)
			continue
		}
		if d := f.DryRun; d != nil {
			ew.printf("  dry run: %s to %s, prompts %s + %s chars\n",
				humanize.Bytes(uint64(d.Bytes)), d.Model, humanize.Comma(int64(d.SystemChars)), humanize.Comma(int64(d.UserChars)))
			continue
		}
		if v := f.Validation; v != nil {
			ew.printf("  %s\n", st.dim.Render(fmt.Sprintf("%d/%d runs ok, mean %s", v.SuccessfulRuns, v.TotalRuns, v.MeanDuration.Round(100*time.Millisecond))))
			for _, c := range v.Consistency {
				if c.Consistent+c.Unstable == 0 {
					continue
				}
				ew.printf("  %s\n", st.dim.Render(fmt.Sprintf("%s: %d consistent, %d unstable", c.Category, c.Consistent, c.Unstable)))
			}
		}
		if f.Result == nil {
			continue
		}
		if f.Result.Empty() {
			ew.printf("  %s\n", st.ok.Render("No findings."))
			continue
		}
		writeTextItems(ew, st, "Issues", f.Result.Issues)
		writeTextItems(ew, st, "Simplifications", f.Result.Simplifications)
		writeTextItems(ew, st, "Consider later", f.Result.Deferred)
		if len(f.Result.Observations) > 0 {
			ew.printf("  %s\n", st.section.Render("Observations"))
			for _, o := range f.Result.Observations {
				for i, line := range wrapText(o, 70) {
					if i == 0 {
						ew.printf("    - %s\n", line)
					} else {
						ew.printf("      %s\n", line)
					}
				}
			}
		}
	}

	ew.printf("\n%s\n", strings.Repeat("─", 60))
	ew.printf("%d file(s): %d reviewed, %d failed, %d issue(s). Completed in %s\n",
		len(report.Files), len(report.Succeeded()), len(report.Failed()),
		len(report.Merged.Issues), report.Timing.Total.Round(time.Millisecond))
	return ew.err
}

func writeTextItems(ew *errWriter, st textStyles, title string, items []review.Item) {
	if len(items) == 0 {
		return
	}
	ew.printf("  %s\n", st.section.Render(title))
	for _, it := range items {
		head := it.Title
		if it.Lines != "" {
			head = fmt.Sprintf("[%s] %s", it.Lines, it.Title)
		}
		ew.printf("    - %s\n", head)
		for _, line := range wrapText(it.Summary, 68) {
			if line != "" {
				ew.printf("      %s\n", line)
			}
		}
	}
}

// wrapText splits text on spaces so each line fits width display cells.
func wrapText(text string, width int) []string {
	if lipgloss.Width(text) <= width {
		return []string{text}
	}
	var lines []string
	var current strings.Builder
	cur := 0
	for _, word := range strings.Fields(text) {
		w := lipgloss.Width(word)
		if cur+w+1 > width && cur > 0 {
			lines = append(lines, current.String())
			current.Reset()
			cur = 0
		}
		if cur > 0 {
			current.WriteString(" ")
			cur++
		}
		current.WriteString(word)
		cur += w
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
