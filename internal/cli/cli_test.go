package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dshills/localbrain/internal/config"
	"github.com/dshills/localbrain/internal/discovery"
	"github.com/dshills/localbrain/internal/gitctx"
	"github.com/dshills/localbrain/internal/providers"
)

const registryDoc = `{
  "models": [
    {"name": "big:7b", "size_gb": 4.7, "parameters": "7B", "speed": "moderate"},
    {"name": "small:3b", "size_gb": 1.9, "parameters": "3B", "speed": "fast"}
  ],
  "task_mappings": {"quick-review": "small:3b", "security": "big:7b"},
  "default_model": "big:7b"
}`

const reviewJSON = `{"issues":[{"title":"Unchecked error","summary":"os.Open error ignored","lines":"3"}],"simplifications":[],"deferred":[],"observations":["Short file"]}`

type fakeBackend struct {
	calls  atomic.Int32
	models []string
	reply  string
	err    error
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	f.calls.Add(1)
	f.models = append(f.models, req.Model)
	if f.err != nil {
		return providers.ChatResponse{}, f.err
	}
	return providers.ChatResponse{Content: f.reply}, nil
}

type fakeChecker struct {
	res *providers.CheckResult
	err error
	got string
}

func (f *fakeChecker) BaseURL() string { return "http://fake:11434" }

func (f *fakeChecker) Check(ctx context.Context, model string) (*providers.CheckResult, error) {
	f.got = model
	return f.res, f.err
}

// resetFlags restores every flag to its default and clears its changed state,
// which cobra keeps between Execute calls.
func resetFlags() {
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	for _, c := range []*cobra.Command{rootCmd, modelsListCmd, modelsTasksCmd, modelsDoctorCmd} {
		reset(c.Flags())
	}
	exitCode = ExitSuccess
}

// setup isolates config and environment, installs a fake backend and returns it.
func setup(t *testing.T) *fakeBackend {
	t.Helper()
	resetFlags()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{config.EnvConfigPath, EnvModelName, "OLLAMA_HOST", "LOCAL_BRAIN_TIMEOUT",
		"LOCAL_BRAIN_FORMAT", "LOCAL_BRAIN_REGISTRY", "LOCAL_BRAIN_RUNS", "LOCAL_BRAIN_PARALLEL"} {
		t.Setenv(k, "")
	}

	fb := &fakeBackend{reply: reviewJSON}
	origBackend, origRepo, origChecker := newBackend, newRepo, newChecker
	newBackend = func(config.Config) providers.Backend { return fb }
	t.Cleanup(func() {
		newBackend, newRepo, newChecker = origBackend, origRepo, origChecker
		resetFlags()
	})
	return fb
}

func execute(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errb bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errb)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	code = Run()
	return code, out.String(), errb.String()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReview_NoMode(t *testing.T) {
	fb := setup(t)
	code, _, stderr := execute(t)
	if code != ExitUsageError {
		t.Errorf("exit = %d, want %d", code, ExitUsageError)
	}
	if !strings.Contains(stderr, "no input mode") {
		t.Errorf("stderr = %q", stderr)
	}
	if fb.calls.Load() != 0 {
		t.Error("backend should not be called")
	}
}

func TestReview_ModesMutuallyExclusive(t *testing.T) {
	setup(t)
	code, _, _ := execute(t, "--files", "a.go", "--dir", ".")
	if code != ExitUsageError {
		t.Errorf("exit = %d, want %d", code, ExitUsageError)
	}
}

func TestReview_EmptyFilesList(t *testing.T) {
	fb := setup(t)
	code, stdout, stderr := execute(t, "--files", "")
	if code != ExitSuccess {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stderr, "No files to review") {
		t.Errorf("stderr = %q", stderr)
	}
	if stdout != "" {
		t.Errorf("stdout = %q", stdout)
	}
	if fb.calls.Load() != 0 {
		t.Error("backend should not be called")
	}
}

func TestReview_BadFormatRejectedBeforeReview(t *testing.T) {
	fb := setup(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.go", "package a\n")
	b := writeFile(t, dir, "b.go", "package b\n")

	code, _, stderr := execute(t, "--files", a+","+b, "--format", "xml")
	if code != ExitConfigError {
		t.Errorf("exit = %d, want %d", code, ExitConfigError)
	}
	if !strings.Contains(stderr, "unsupported output format: xml") {
		t.Errorf("stderr = %q", stderr)
	}
	if strings.Contains(stderr, "Reviewing") {
		t.Errorf("review started: %q", stderr)
	}
	if fb.calls.Load() != 0 {
		t.Errorf("backend called %d times", fb.calls.Load())
	}
}

func TestReview_Files(t *testing.T) {
	fb := setup(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "src/main.go", "package main\n\nfunc main() {}\n")

	code, stdout, stderr := execute(t, "--files", path, "--model", "custom:1b")
	if code != ExitSuccess {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	for _, want := range []string{"# Code Review\n", "### main.go\n", "- **Unchecked error**: os.Open error ignored (lines: 3)"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
	for _, want := range []string{"Reviewing 1 file(s)...", "Reviewing: " + path} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr missing %q:\n%s", want, stderr)
		}
	}
	if len(fb.models) != 1 || fb.models[0] != "custom:1b" {
		t.Errorf("models = %v", fb.models)
	}
}

func TestReview_ModelNameEnv(t *testing.T) {
	fb := setup(t)
	t.Setenv(EnvModelName, "env-model:3b")
	path := writeFile(t, t.TempDir(), "a.py", "print(1)\n")

	if code, _, stderr := execute(t, "--files", path); code != ExitSuccess {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	if len(fb.models) != 1 || fb.models[0] != "env-model:3b" {
		t.Errorf("models = %v", fb.models)
	}
}

func TestReview_AdaptiveNotice(t *testing.T) {
	fb := setup(t)
	dir := t.TempDir()
	reg := writeFile(t, dir, "models.json", registryDoc)
	a := writeFile(t, dir, "a.go", "package a\n")
	b := writeFile(t, dir, "b.go", "package b\n")

	code, stdout, stderr := execute(t, "--files", a+","+b, "--registry", reg)
	if code != ExitSuccess {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stderr, "Note: Using faster model small:3b for 2 files (was: big:7b)") {
		t.Errorf("stderr = %s", stderr)
	}
	for _, m := range fb.models {
		if m != "small:3b" {
			t.Errorf("model = %q, want small:3b", m)
		}
	}
	if strings.Index(stdout, "### a.go") > strings.Index(stdout, "### b.go") {
		t.Error("files should be reported in discovery order")
	}
}

func TestReview_MissingRegistry(t *testing.T) {
	fb := setup(t)
	path := writeFile(t, t.TempDir(), "a.go", "package a\n")
	missing := filepath.Join(t.TempDir(), "none.json")

	code, stdout, stderr := execute(t, "--files", path, "--task", "security", "--registry", missing)
	if code != ExitConfigError {
		t.Errorf("exit = %d, want %d", code, ExitConfigError)
	}
	if !strings.Contains(stderr, "model registry") || stdout != "" {
		t.Errorf("stdout = %q, stderr = %q", stdout, stderr)
	}
	if fb.calls.Load() != 0 {
		t.Error("backend should not be called")
	}
}

func TestReview_UnknownTask(t *testing.T) {
	setup(t)
	dir := t.TempDir()
	reg := writeFile(t, dir, "models.json", registryDoc)
	path := writeFile(t, dir, "a.go", "package a\n")

	code, _, stderr := execute(t, "--files", path, "--task", "poetry", "--registry", reg)
	if code != ExitConfigError {
		t.Errorf("exit = %d, want %d", code, ExitConfigError)
	}
	if !strings.Contains(stderr, "quick-review, security") {
		t.Errorf("stderr should list known tasks: %q", stderr)
	}
}

func TestReview_DirNoMatches(t *testing.T) {
	fb := setup(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n")

	code, stdout, stderr := execute(t, "--dir", dir, "--pattern", "*.rs")
	if code != ExitSuccess {
		t.Errorf("exit = %d", code)
	}
	if want := "No files found matching pattern '*.rs' in " + dir; !strings.Contains(stderr, want) {
		t.Errorf("stderr = %q, want %q", stderr, want)
	}
	if stdout != "" || fb.calls.Load() != 0 {
		t.Errorf("stdout = %q, calls = %d", stdout, fb.calls.Load())
	}
}

func TestReview_DirMissing(t *testing.T) {
	setup(t)
	code, _, _ := execute(t, "--dir", filepath.Join(t.TempDir(), "missing"))
	if code != ExitDiscoveryError {
		t.Errorf("exit = %d, want %d", code, ExitDiscoveryError)
	}
}

func TestReview_GitDiff(t *testing.T) {
	setup(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "changed.go", "package changed\n")

	var staged bool
	newRepo = func() gitctx.Repo {
		return gitctx.Repo{Run: func(ctx context.Context, d string, args ...string) (string, error) {
			switch {
			case args[0] == "diff" && args[1] == "--cached":
				staged = true
				return path + "\n", nil
			case args[0] == "rev-parse" && args[len(args)-1] == "--show-toplevel":
				return dir + "\n", nil
			case args[0] == "rev-parse" && args[1] == "--abbrev-ref":
				return "main\n", nil
			case args[0] == "rev-parse":
				return "abc123\n", nil
			}
			return "", nil
		}}
	}

	code, stdout, stderr := execute(t, "--git-diff", "--model", "m:1b", "--format", "json")
	if code != ExitSuccess {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	if !staged {
		t.Error("staged changes should be listed first")
	}
	if !strings.Contains(stderr, "Reviewing 1 changed file(s)...") {
		t.Errorf("stderr = %s", stderr)
	}
	for _, want := range []string{`"mode": "git-diff"`, `"branch": "main"`, `"outcome": "reviewed"`} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %s:\n%s", want, stdout)
		}
	}
}

func TestReview_GitDiffNoChanges(t *testing.T) {
	fb := setup(t)
	newRepo = func() gitctx.Repo {
		return gitctx.Repo{Run: func(context.Context, string, ...string) (string, error) { return "", nil }}
	}
	code, stdout, stderr := execute(t, "--git-diff")
	if code != ExitSuccess {
		t.Errorf("exit = %d", code)
	}
	if !strings.Contains(stderr, "No changed files found") || stdout != "" {
		t.Errorf("stdout = %q, stderr = %q", stdout, stderr)
	}
	if fb.calls.Load() != 0 {
		t.Error("backend should not be called")
	}
}

func TestReview_DryRun(t *testing.T) {
	fb := setup(t)
	path := writeFile(t, t.TempDir(), "a.go", "package a\n")

	code, stdout, stderr := execute(t, "--files", path, "--model", "m:1b", "--dry-run")
	if code != ExitSuccess {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, "## Dry Run Information") || !strings.Contains(stdout, "- Model: m:1b") {
		t.Errorf("stdout = %s", stdout)
	}
	if fb.calls.Load() != 0 {
		t.Error("dry run must not call the backend")
	}
}

func TestReview_FileFailureStillExitsZero(t *testing.T) {
	fb := setup(t)
	fb.err = providers.ErrUnreachable
	path := writeFile(t, t.TempDir(), "a.go", "package a\n")

	code, stdout, stderr := execute(t, "--files", path, "--model", "m:1b")
	if code != ExitSuccess {
		t.Errorf("exit = %d, want 0", code)
	}
	if !strings.Contains(stderr, "Error reviewing "+path) {
		t.Errorf("stderr = %s", stderr)
	}
	if !strings.Contains(stdout, "# No Reviews Generated") {
		t.Errorf("stdout = %s", stdout)
	}
}

func TestReview_OutFile(t *testing.T) {
	setup(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "a.go", "package a\n")
	out := filepath.Join(dir, "review.md")

	code, stdout, _ := execute(t, "--files", path, "--model", "m:1b", "--out", out)
	if code != ExitSuccess {
		t.Fatalf("exit = %d", code)
	}
	if stdout != "" {
		t.Errorf("stdout should be empty when --out is set: %q", stdout)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# Code Review") {
		t.Errorf("out file = %q", data)
	}
}

func TestReview_BadRulesFile(t *testing.T) {
	setup(t)
	path := writeFile(t, t.TempDir(), "a.go", "package a\n")
	code, _, _ := execute(t, "--files", path, "--rules", filepath.Join(t.TempDir(), "nope.yaml"))
	if code != ExitConfigError {
		t.Errorf("exit = %d, want %d", code, ExitConfigError)
	}
}

func TestBuildOverrides(t *testing.T) {
	resetFlags()
	t.Cleanup(resetFlags)
	if m := buildOverrides(); len(m) != 0 {
		t.Errorf("buildOverrides() with no flags = %v, want empty map", m)
	}

	flagFormat = "json"
	flagTimeout = 30
	flagRuns = 3
	flagRegistry = "reg.json"
	flagFocus = "security"
	m := buildOverrides()
	expected := map[string]string{
		"format":        "json",
		"timeout":       "30",
		"runs":          "3",
		"registry_path": "reg.json",
		"review_focus":  "security",
	}
	if len(m) != len(expected) {
		t.Fatalf("buildOverrides() = %v, want %v", m, expected)
	}
	for k, v := range expected {
		if m[k] != v {
			t.Errorf("buildOverrides()[%q] = %q, want %q", k, m[k], v)
		}
	}
}

func TestAnnounce(t *testing.T) {
	tests := []struct {
		name  string
		req   discovery.Request
		found discovery.Result
		want  string
		more  bool
	}{
		{"files", discovery.Request{}, discovery.Result{Mode: discovery.ModeFiles, Paths: []string{"a", "b"}}, "Reviewing 2 file(s)...\n", true},
		{"git", discovery.Request{}, discovery.Result{Mode: discovery.ModeGitDiff, Paths: []string{"a"}}, "Reviewing 1 changed file(s)...\n", true},
		{"git empty", discovery.Request{}, discovery.Result{Mode: discovery.ModeGitDiff}, "No changed files found\n", false},
		{"dir empty", discovery.Request{Dir: "src", Pattern: "*.go"}, discovery.Result{Mode: discovery.ModeDir}, "No files found matching pattern '*.go' in src\n", false},
		{"files empty", discovery.Request{}, discovery.Result{Mode: discovery.ModeFiles}, "No files to review\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if got := announce(&buf, tt.req, tt.found); got != tt.more {
				t.Errorf("announce = %v, want %v", got, tt.more)
			}
			if buf.String() != tt.want {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	bg := context.Background()

	if got := classify(canceled, errors.New("x")); got != ExitInterrupted {
		t.Errorf("canceled ctx = %d", got)
	}
	if got := classify(bg, &discovery.DiscoveryError{Path: "x", Err: errors.New("y")}); got != ExitRuntimeError {
		t.Errorf("other error = %d", got)
	}
}

func TestVersionCmd(t *testing.T) {
	setup(t)
	code, stdout, _ := execute(t, "version")
	if code != ExitSuccess || stdout != "local-brain version "+version+"\n" {
		t.Errorf("exit = %d, stdout = %q", code, stdout)
	}
}

func TestModelsList(t *testing.T) {
	setup(t)
	reg := writeFile(t, t.TempDir(), "models.json", registryDoc)
	code, stdout, stderr := execute(t, "models", "list", "--registry", reg)
	if code != ExitSuccess {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	for _, want := range []string{"big:7b (default)", "moderate", "small:3b", "4.7 GB"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestModelsTasks(t *testing.T) {
	setup(t)
	reg := writeFile(t, t.TempDir(), "models.json", registryDoc)
	code, stdout, _ := execute(t, "models", "tasks", "--registry", reg)
	if code != ExitSuccess {
		t.Fatalf("exit = %d", code)
	}
	if strings.Index(stdout, "quick-review") > strings.Index(stdout, "security") {
		t.Errorf("tasks should be sorted:\n%s", stdout)
	}
}

func TestModelsList_MissingRegistry(t *testing.T) {
	setup(t)
	code, _, stderr := execute(t, "models", "list", "--registry", filepath.Join(t.TempDir(), "none.json"))
	if code != ExitConfigError {
		t.Errorf("exit = %d, want %d (stderr %s)", code, ExitConfigError, stderr)
	}
}

func TestModelsDoctor(t *testing.T) {
	tests := []struct {
		name     string
		res      *providers.CheckResult
		err      error
		wantCode int
		wantOut  string
	}{
		{"ok", &providers.CheckResult{Reachable: true, ModelPresent: true, ModelNames: []string{"m:1b"}}, nil, ExitSuccess, "OK: model m:1b (explicit) is available"},
		{"not pulled", &providers.CheckResult{Reachable: true, ModelNames: []string{"other"}}, nil, ExitRuntimeError, "ollama pull m:1b"},
		{"unreachable", nil, providers.ErrUnreachable, ExitRuntimeError, "FAIL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup(t)
			fc := &fakeChecker{res: tt.res, err: tt.err}
			newChecker = func(config.Config) checker { return fc }

			code, stdout, stderr := execute(t, "models", "doctor", "--model", "m:1b")
			if code != tt.wantCode {
				t.Errorf("exit = %d, want %d", code, tt.wantCode)
			}
			if !strings.Contains(stdout+stderr, tt.wantOut) {
				t.Errorf("output missing %q:\n%s%s", tt.wantOut, stdout, stderr)
			}
			if fc.got != "m:1b" {
				t.Errorf("checked model %q", fc.got)
			}
		})
	}
}

func TestConfigInit_CreatesFile(t *testing.T) {
	setup(t)
	dir := os.Getenv("XDG_CONFIG_HOME")

	code, stdout, _ := execute(t, "config", "init")
	if code != ExitSuccess {
		t.Fatalf("exit = %d", code)
	}
	path := filepath.Join(dir, "local-brain", "config.toml")
	if !strings.Contains(stdout, path) {
		t.Errorf("stdout = %q", stdout)
	}
	var cfg config.Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		t.Fatalf("config file is not valid TOML: %v", err)
	}
	if cfg.OllamaHost == "" || cfg.Timeout != 120 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestConfigInit_AlreadyExists(t *testing.T) {
	setup(t)
	path := writeFile(t, os.Getenv("XDG_CONFIG_HOME"), "local-brain/config.toml", "timeout = 7\n")

	code, _, stderr := execute(t, "config", "init")
	if code != ExitSuccess {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(stderr, "already exists") {
		t.Errorf("stderr = %q", stderr)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "timeout = 7\n" {
		t.Errorf("config init overwrote existing file: %q", data)
	}
}

func TestConfigSet(t *testing.T) {
	setup(t)
	code, _, stderr := execute(t, "config", "set", "runs", "4")
	if code != ExitSuccess {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	cfg, err := config.LoadFile()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Runs != 4 {
		t.Errorf("Runs = %d, want 4", cfg.Runs)
	}

	if code, _, _ := execute(t, "config", "set", "provider", "openai"); code != ExitUsageError {
		t.Errorf("unknown key exit = %d, want %d", code, ExitUsageError)
	}
	if code, _, _ := execute(t, "config", "set", "runs"); code != ExitUsageError {
		t.Errorf("missing arg exit = %d, want %d", code, ExitUsageError)
	}
}

func TestConfigShow(t *testing.T) {
	setup(t)
	t.Setenv("LOCAL_BRAIN_FORMAT", "text")
	code, stdout, _ := execute(t, "config", "show")
	if code != ExitSuccess {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(stdout, `format = "text"`) {
		t.Errorf("stdout = %s", stdout)
	}
	if !strings.Contains(stdout, "[privacy]") {
		t.Errorf("stdout missing privacy table: %s", stdout)
	}

	var cfg config.Config
	if _, err := toml.Decode(stdout, &cfg); err != nil {
		t.Fatalf("config show output is not TOML: %v\n%s", err, stdout)
	}
	if cfg.Format != "text" || cfg.Timeout != 120 {
		t.Errorf("decoded cfg = %+v", cfg)
	}
}
