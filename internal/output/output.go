package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dshills/localbrain/internal/review"
)

// Formats lists the supported output formats.
var Formats = []string{"markdown", "text", "json"}

// Writer writes a report in a specific format.
type Writer interface {
	Write(w io.Writer, report *review.Report) error
}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch strings.ToLower(format) {
	case "", "markdown", "md":
		return &MarkdownWriter{}, nil
	case "text":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// WriteReport writes the report to outPath, or to stdout when outPath is empty.
func WriteReport(report *review.Report, format, outPath string) (err error) {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}
	if outPath == "" {
		return writer.Write(os.Stdout, report)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return writer.Write(f, report)
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

// heading returns the report title for the discovery mode.
func heading(report *review.Report) string {
	if report.Mode == "git-diff" {
		return "Git Diff Review"
	}
	return "Code Review"
}

func displayName(f review.FileReport) string {
	if i := strings.LastIndexAny(f.Path, `/\`); i >= 0 && i < len(f.Path)-1 {
		return f.Path[i+1:]
	}
	return f.Path
}
