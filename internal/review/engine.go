package review

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/localbrain/internal/providers"
	"github.com/dshills/localbrain/internal/redact"
	"github.com/dshills/localbrain/internal/registry"
	"github.com/dshills/localbrain/internal/selector"
)

// DefaultTimeout bounds each backend call when Options.Timeout is zero.
const DefaultTimeout = 120 * time.Second

// RegistrySource supplies the model registry on demand.
type RegistrySource interface {
	Load() (*registry.Registry, error)
}

// Options controls a batch.
type Options struct {
	Model       selector.Input
	Runs        int
	Validation  bool
	ShowMetrics bool
	DryRun      bool
	Timeout     time.Duration
	Kind        string
	Focus       string
	// Parallel > 1 reviews that many files concurrently.
	Parallel int
	Rules    *Rules
	Redact   redact.Policy
}

// Orchestrator reviews files one at a time (or in bounded parallel) and
// collects a Report. Backend and Registry are only touched when there is at
// least one file.
type Orchestrator struct {
	Backend  providers.Backend
	Registry RegistrySource
	Options  Options
	// Log receives progress and failures. Nil discards them.
	Log io.Writer
	// Notice renders selector notices. Nil writes them to Log.
	Notice func(selector.Notice)
	// ReadFile defaults to os.ReadFile.
	ReadFile func(string) ([]byte, error)
	Version  string

	logMu sync.Mutex
}

// Run reviews paths in order. mode names the discovery mode for the report.
// A configuration error aborts before any file is processed; per-file
// failures are recorded on the report instead.
func (o *Orchestrator) Run(ctx context.Context, mode string, paths []string) (*Report, error) {
	start := time.Now()
	report := &Report{
		Tool:    "local-brain",
		Version: o.Version,
		RunID:   uuid.NewString(),
		Mode:    mode,
		Files:   []FileReport{},
		Timing:  Timing{Started: start},
	}
	if len(paths) == 0 {
		report.Outcome = OutcomeNoFiles
		report.Timing.Total = time.Since(start)
		return report, nil
	}
	if o.Backend == nil && !o.Options.DryRun {
		return nil, errors.New("review: no inference backend configured")
	}

	reg, sel, err := o.preflight(len(paths))
	if err != nil {
		return nil, err
	}
	report.Model = sel.Model
	report.Source = sel.Source.String()
	for _, n := range sel.Notices {
		o.notice(n)
	}

	files, err := o.reviewAll(ctx, paths, reg)
	report.Files = files
	report.Timing.Total = time.Since(start)
	if err != nil {
		return report, err
	}

	for _, f := range report.Files {
		if f.OK() && f.Result != nil {
			report.Merged.Append(filepath.Base(f.Path), *f.Result)
		}
	}
	switch {
	case len(report.Succeeded()) == 0:
		report.Outcome = OutcomeNoReviews
	case o.Options.DryRun:
		report.Outcome = OutcomeDryRun
	default:
		report.Outcome = OutcomeReviewed
	}
	return report, nil
}

// preflight resolves the model once for the whole batch so configuration
// problems surface before the first file.
func (o *Orchestrator) preflight(fileCount int) (*registry.Registry, selector.Selection, error) {
	in := o.Options.Model
	var reg *registry.Registry
	if selector.NeedsRegistry(in, fileCount) {
		if o.Registry == nil {
			return nil, selector.Selection{}, selector.ErrNoRegistry
		}
		r, err := o.Registry.Load()
		if err != nil {
			return nil, selector.Selection{}, err
		}
		reg = r
	}
	sel, err := selector.ResolveAdaptive(in, reg, fileCount)
	if err != nil {
		return nil, selector.Selection{}, err
	}
	return reg, sel, nil
}

func (o *Orchestrator) reviewAll(ctx context.Context, paths []string, reg *registry.Registry) ([]FileReport, error) {
	files := make([]FileReport, len(paths))
	if o.Options.Parallel <= 1 {
		for i, p := range paths {
			if err := ctx.Err(); err != nil {
				return files[:i], err
			}
			files[i] = o.reviewFile(ctx, p, len(paths), reg)
		}
		return files, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Options.Parallel)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			files[i] = o.reviewFile(gctx, p, len(paths), reg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return files, err
	}
	return files, ctx.Err()
}

// reviewFile runs the configured number of attempts for one path.
func (o *Orchestrator) reviewFile(ctx context.Context, path string, fileCount int, reg *registry.Registry) FileReport {
	o.logf("Reviewing: %s\n", path)
	fr := FileReport{Path: path, Language: DetectLanguage(path), State: StateSelecting}

	runs := max(o.Options.Runs, 1)
	if runs == 1 {
		a, err := o.attempt(ctx, path, fileCount, reg)
		fr.absorb(a)
		if err != nil {
			return o.fail(fr, err)
		}
		fr.State = StateDone
		return fr
	}

	var errs []error
	var ok []Result
	for i := 1; i <= runs; i++ {
		o.logf("  Run %d/%d\n", i, runs)
		started := time.Now()
		a, err := o.attempt(ctx, path, fileCount, reg)
		rec := RunRecord{Run: i, Duration: time.Since(started)}
		if err != nil {
			o.logf("  Run %d failed: %v\n", i, err)
			rec.Err, rec.Error = err, err.Error()
			errs = append(errs, err)
			fr.Runs = append(fr.Runs, rec)
			continue
		}
		rec.OK = true
		rec.Result = a.result
		fr.Runs = append(fr.Runs, rec)
		if len(ok) == 0 {
			fr.absorb(a)
		}
		if a.result != nil {
			ok = append(ok, *a.result)
		}
		if a.dry != nil {
			// a dry run describes the request once; repeating it adds nothing
			break
		}
	}

	if fr.Result == nil && fr.DryRun == nil {
		o.logf("All validation runs failed\n")
		return o.fail(fr, &FileError{Path: path, State: StateFailed, Err: &AllRunsFailedError{Runs: runs, Errs: errs}})
	}
	if o.Options.Validation {
		fr.Validation = o.validate(fr.Runs, ok)
	}
	fr.State = StateDone
	return fr
}

func (o *Orchestrator) fail(fr FileReport, err error) FileReport {
	o.logf("Error reviewing %s: %v\n", fr.Path, err)
	fr.State = StateFailed
	fr.Err = err
	fr.Error = err.Error()
	return fr
}

func (o *Orchestrator) validate(runs []RunRecord, results []Result) *Validation {
	v := &Validation{TotalRuns: len(runs)}
	var total time.Duration
	for _, r := range runs {
		if r.OK {
			v.SuccessfulRuns++
			total += r.Duration
		}
	}
	if v.SuccessfulRuns > 0 {
		v.MeanDuration = total / time.Duration(v.SuccessfulRuns)
	}
	if o.Options.ShowMetrics {
		v.Runs = runs
	}
	v.Consistency = Consistency(results)
	return v
}

// attemptResult is what one pass through the pipeline produced.
type attemptResult struct {
	model    string
	bytes    int
	redacted bool
	result   *Result
	dry      *DryRun
}

func (fr *FileReport) absorb(a attemptResult) {
	if a.model != "" {
		fr.Model = a.model
	}
	if a.bytes > 0 {
		fr.Bytes = a.bytes
	}
	fr.Redacted = fr.Redacted || a.redacted
	if a.result != nil {
		fr.Result = a.result
	}
	if a.dry != nil {
		fr.DryRun = a.dry
	}
}

// attempt moves one file through Selecting, Building, Invoking and
// Normalizing. Errors are *FileError values naming the failed state.
func (o *Orchestrator) attempt(ctx context.Context, path string, fileCount int, reg *registry.Registry) (attemptResult, error) {
	var a attemptResult
	failed := func(state State, err error) (attemptResult, error) {
		return a, &FileError{Path: path, State: state, Err: err}
	}

	sel, err := selector.ResolveAdaptive(o.Options.Model, reg, fileCount)
	if err != nil {
		return failed(StateSelecting, err)
	}
	a.model = sel.Model

	read := o.ReadFile
	if read == nil {
		read = os.ReadFile
	}
	data, err := read(path)
	if err != nil {
		return failed(StateBuilding, fmt.Errorf("reading file: %w", err))
	}
	if !utf8.Valid(data) {
		return failed(StateBuilding, fmt.Errorf("reading file: not valid UTF-8 text"))
	}
	a.bytes = len(data)
	content, red := o.Options.Redact.Apply(path, string(data))
	a.redacted = red.Changed()
	if red.Withheld {
		return failed(StateBuilding, ErrWithheld)
	}

	system := SystemPrompt()
	user := BuildUserPrompt(PromptInput{
		Filename: filepath.Base(path),
		Content:  content,
		Kind:     o.Options.Kind,
		Focus:    o.Options.Focus,
		Language: DetectLanguage(path),
		Rules:    o.Options.Rules,
	})

	if o.Options.DryRun {
		a.dry = &DryRun{
			Model:       sel.Model,
			File:        filepath.Base(path),
			Bytes:       len(data),
			SystemChars: utf8.RuneCountInString(system),
			UserChars:   utf8.RuneCountInString(user),
		}
		return a, nil
	}

	timeout := o.Options.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := o.Backend.Chat(callCtx, providers.ChatRequest{
		Model:        sel.Model,
		SystemPrompt: system,
		UserPrompt:   user,
	})
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			err = fmt.Errorf("request timed out after %s: %w", timeout, err)
		case providers.IsRateLimited(err):
			err = fmt.Errorf("server busy, retries exhausted (raise the retries config key): %w", err)
		}
		return failed(StateInvoking, err)
	}

	res, err := Normalize(resp.Content)
	if err != nil {
		return failed(StateNormalizing, err)
	}
	a.result = &res
	return a, nil
}

func (o *Orchestrator) notice(n selector.Notice) {
	if o.Notice != nil {
		o.Notice(n)
		return
	}
	o.logf("%s\n", n.Message)
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.Log == nil {
		return
	}
	o.logMu.Lock()
	defer o.logMu.Unlock()
	fmt.Fprintf(o.Log, format, args...)
}
