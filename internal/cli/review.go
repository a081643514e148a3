package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dshills/localbrain/internal/config"
	"github.com/dshills/localbrain/internal/discovery"
	"github.com/dshills/localbrain/internal/gitctx"
	"github.com/dshills/localbrain/internal/output"
	"github.com/dshills/localbrain/internal/providers"
	"github.com/dshills/localbrain/internal/redact"
	"github.com/dshills/localbrain/internal/registry"
	"github.com/dshills/localbrain/internal/review"
	"github.com/dshills/localbrain/internal/selector"
)

// EnvModelName is the environment source consulted by model selection.
const EnvModelName = "MODEL_NAME"

// Review flags
var (
	flagFiles       string
	flagDir         string
	flagPattern     string
	flagGitDiff     bool
	flagModel       string
	flagTask        string
	flagRuns        int
	flagValidation  bool
	flagShowMetrics bool
	flagDryRun      bool
	flagTimeout     int
	flagKind        string
	flagFocus       string
	flagFormat      string
	flagOut         string
	flagParallel    int
	flagRegistry    string
	flagRules       string
	flagNoRedact    bool
)

func addReviewFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&flagFiles, "files", "", "Comma-separated list of files to review")
	f.StringVar(&flagDir, "dir", "", "Directory to review")
	f.StringVar(&flagPattern, "pattern", discovery.DefaultPattern, "File name pattern for --dir (e.g. \"*.go\", \"*.{ts,tsx}\")")
	f.BoolVar(&flagGitDiff, "git-diff", false, "Review changed files (staged, or unstaged when nothing is staged)")
	f.StringVar(&flagModel, "model", "", "Model name (overrides --task, MODEL_NAME and the registry default)")
	f.StringVar(&flagTask, "task", "", "Task type mapped to a model in models.json (e.g. quick-review, security)")
	f.IntVar(&flagRuns, "runs", 0, "Number of review runs per file")
	f.BoolVar(&flagValidation, "validation-mode", false, "Report consistency across runs (use with --runs)")
	f.BoolVar(&flagShowMetrics, "show-metrics", false, "Include per-run timing in the validation report")
	f.BoolVar(&flagDryRun, "dry-run", false, "Build prompts without calling the model")
	f.IntVar(&flagTimeout, "timeout", 0, "Model request timeout in seconds")
	f.StringVar(&flagKind, "kind", "", "Document kind hint for the prompt")
	f.StringVar(&flagFocus, "review-focus", "", "Review focus (e.g. security, performance)")
	f.StringVar(&flagFormat, "format", "", "Output format (markdown, text, json)")
	f.StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	f.IntVar(&flagParallel, "parallel", 0, "Number of files reviewed concurrently")
	f.StringVar(&flagRegistry, "registry", "", "Path to models.json")
	f.StringVar(&flagRules, "rules", "", "Rules file path (JSON or YAML)")
	f.BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
	cmd.MarkFlagsMutuallyExclusive("files", "dir", "git-diff")
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagTimeout > 0 {
		m["timeout"] = strconv.Itoa(flagTimeout)
	}
	if flagRuns > 0 {
		m["runs"] = strconv.Itoa(flagRuns)
	}
	if flagParallel > 0 {
		m["parallel"] = strconv.Itoa(flagParallel)
	}
	if flagRegistry != "" {
		m["registry_path"] = flagRegistry
	}
	if flagRules != "" {
		m["rules_file"] = flagRules
	}
	if flagKind != "" {
		m["kind"] = flagKind
	}
	if flagFocus != "" {
		m["review_focus"] = flagFocus
	}
	return m
}

// discoveryRequest picks the mode from which flags were given, so an explicit
// empty --files still selects file mode.
func discoveryRequest(flags *pflag.FlagSet) discovery.Request {
	req := discovery.Request{Files: flagFiles, Dir: flagDir, Pattern: flagPattern}
	switch {
	case flags.Changed("files"):
		req.Mode = discovery.ModeFiles
	case flags.Changed("dir"):
		req.Mode = discovery.ModeDir
	case flagGitDiff:
		req.Mode = discovery.ModeGitDiff
	}
	return req
}

func modelInput() selector.Input {
	return selector.Input{
		Explicit: flagModel,
		Task:     flagTask,
		Env:      os.Getenv(EnvModelName),
	}
}

// newBackend builds the inference client. Tests replace it.
var newBackend = func(cfg config.Config) providers.Backend {
	return providers.NewOllama(cfg.OllamaHost, providers.WithRetries(cfg.Retries))
}

// newRepo returns the git working copy used by --git-diff. Tests replace it.
var newRepo = func() gitctx.Repo { return gitctx.Repo{} }

func runReview(cmd *cobra.Command, args []string) error {
	stderr := cmd.ErrOrStderr()

	req := discoveryRequest(cmd.Flags())
	if req.Mode == discovery.ModeNone {
		fmt.Fprintf(stderr, "Error: %v\n\n", discovery.ErrNoMode)
		_ = cmd.Usage()
		exitCode = ExitUsageError
		return nil
	}

	cfg, err := config.Load(buildOverrides())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		exitCode = ExitConfigError
		return nil
	}
	if _, err := output.GetWriter(cfg.Format); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		exitCode = ExitConfigError
		return nil
	}
	if flagNoRedact {
		cfg.Privacy.RedactSecrets = false
		cfg.Privacy.RedactPaths = nil
		fmt.Fprintln(stderr, "WARNING: secret redaction is disabled")
	}

	var rules *review.Rules
	if cfg.RulesFile != "" {
		rules, err = review.LoadRules(cfg.RulesFile)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			exitCode = ExitConfigError
			return nil
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo := newRepo()
	found, err := discovery.Discover(ctx, req, repo)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		exitCode = ExitDiscoveryError
		return nil
	}
	if !announce(stderr, req, found) {
		return nil
	}

	orch := &review.Orchestrator{
		Backend:  newBackend(cfg),
		Registry: registry.NewLoader(cfg.RegistryPath),
		Options: review.Options{
			Model:       modelInput(),
			Runs:        cfg.Runs,
			Validation:  flagValidation,
			ShowMetrics: flagShowMetrics,
			DryRun:      flagDryRun,
			Timeout:     time.Duration(cfg.Timeout) * time.Second,
			Kind:        cfg.Kind,
			Focus:       cfg.ReviewFocus,
			Parallel:    cfg.Parallel,
			Rules:       rules,
			Redact:      redact.Policy{Secrets: cfg.Privacy.RedactSecrets, Paths: cfg.Privacy.RedactPaths},
		},
		Log:     stderr,
		Notice:  noticePrinter(stderr),
		Version: version,
	}

	report, err := orch.Run(ctx, found.Mode.String(), found.Paths)
	if err != nil {
		exitCode = classify(ctx, err)
		if exitCode == ExitInterrupted {
			fmt.Fprintln(stderr, "Interrupted")
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return nil
	}
	if found.Mode == discovery.ModeGitDiff {
		if meta, err := repo.Meta(ctx); err == nil {
			report.Repo = &meta
		}
	}

	out := flagOut
	if out == "" {
		if err := writeTo(cmd.OutOrStdout(), report, cfg.Format); err != nil {
			fmt.Fprintf(stderr, "Error writing output: %v\n", err)
			exitCode = ExitRuntimeError
		}
		return nil
	}
	if err := output.WriteReport(report, cfg.Format, out); err != nil {
		fmt.Fprintf(stderr, "Error writing output: %v\n", err)
		exitCode = ExitRuntimeError
	}
	return nil
}

// announce prints the batch size, or the empty-batch message. It reports
// whether there is anything to review.
func announce(w io.Writer, req discovery.Request, found discovery.Result) bool {
	n := len(found.Paths)
	switch {
	case n == 0 && found.Mode == discovery.ModeGitDiff:
		fmt.Fprintln(w, "No changed files found")
		return false
	case n == 0 && found.Mode == discovery.ModeDir:
		fmt.Fprintf(w, "No files found matching pattern '%s' in %s\n", req.Pattern, req.Dir)
		return false
	case n == 0:
		fmt.Fprintln(w, "No files to review")
		return false
	case found.Mode == discovery.ModeGitDiff:
		fmt.Fprintf(w, "Reviewing %d changed file(s)...\n", n)
	default:
		fmt.Fprintf(w, "Reviewing %d file(s)...\n", n)
	}
	return true
}

func classify(ctx context.Context, err error) int {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return ExitInterrupted
	case review.IsConfigError(err):
		return ExitConfigError
	default:
		return ExitRuntimeError
	}
}

func writeTo(w io.Writer, report *review.Report, format string) error {
	writer, err := output.GetWriter(format)
	if err != nil {
		return err
	}
	return writer.Write(w, report)
}

// noticePrinter renders selector notices on w, styled when w is a terminal.
func noticePrinter(w io.Writer) func(selector.Notice) {
	r := lipgloss.NewRenderer(w)
	info := r.NewStyle().Foreground(lipgloss.Color("#8be9fd"))
	warn := r.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffb86c"))
	styled := isTerminal(w)
	return func(n selector.Notice) {
		prefix, style := "Note: ", info
		if n.Level == selector.LevelAdvisory {
			prefix, style = "Warning: ", warn
		}
		msg := prefix + n.Message
		if styled {
			msg = style.Render(msg)
		}
		fmt.Fprintln(w, msg)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
