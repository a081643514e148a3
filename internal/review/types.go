package review

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/localbrain/internal/gitctx"
)

// Lines is a free-form line reference such as "12" or "40-52". Models emit it
// as either a string or a number.
type Lines string

func (l *Lines) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Lines(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*l = Lines(n.String())
	return nil
}

// Item is one titled review entry.
type Item struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Lines   Lines  `json:"lines,omitempty"`
}

// Result is the normalized review of one file.
type Result struct {
	Issues          []Item   `json:"issues"`
	Simplifications []Item   `json:"simplifications"`
	Deferred        []Item   `json:"deferred"`
	Observations    []string `json:"observations"`
}

// Count returns the number of entries across all collections.
func (r Result) Count() int {
	return len(r.Issues) + len(r.Simplifications) + len(r.Deferred) + len(r.Observations)
}

// Empty reports whether the result has no entries.
func (r Result) Empty() bool { return r.Count() == 0 }

// Append concatenates other onto r, prefixing item titles and observations
// with "<label>: ". An empty label adds no prefix.
func (r *Result) Append(label string, other Result) {
	prefix := ""
	if label != "" {
		prefix = label + ": "
	}
	tag := func(items []Item) []Item {
		out := make([]Item, len(items))
		for i, it := range items {
			it.Title = prefix + it.Title
			out[i] = it
		}
		return out
	}
	r.Issues = append(r.Issues, tag(other.Issues)...)
	r.Simplifications = append(r.Simplifications, tag(other.Simplifications)...)
	r.Deferred = append(r.Deferred, tag(other.Deferred)...)
	for _, o := range other.Observations {
		r.Observations = append(r.Observations, prefix+o)
	}
}

// State is a step of the per-file pipeline.
type State int

const (
	StateSelecting State = iota
	StateBuilding
	StateInvoking
	StateNormalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSelecting:
		return "selecting"
	case StateBuilding:
		return "building"
	case StateInvoking:
		return "invoking"
	case StateNormalizing:
		return "normalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// RunRecord is one attempt at reviewing a file.
type RunRecord struct {
	Run      int           `json:"run"`
	Duration time.Duration `json:"durationNs"`
	OK       bool          `json:"ok"`
	Result   *Result       `json:"-"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
}

// DryRun describes the request that would have been sent.
type DryRun struct {
	Model       string `json:"model"`
	File        string `json:"file"`
	Bytes       int    `json:"bytes"`
	SystemChars int    `json:"systemChars"`
	UserChars   int    `json:"userChars"`
}

// CategoryConsistency is the share of one category's items that recurred
// across runs.
type CategoryConsistency struct {
	Category   string   `json:"category"`
	Consistent int      `json:"consistent"`
	Unstable   int      `json:"unstable"`
	Stable     []string `json:"stable,omitempty"`
}

// Ratio returns consistent items over all items, or 0 when there are none.
func (c CategoryConsistency) Ratio() float64 {
	total := c.Consistent + c.Unstable
	if total == 0 {
		return 0
	}
	return float64(c.Consistent) / float64(total)
}

// Validation summarizes a multi-run review of one file.
type Validation struct {
	SuccessfulRuns int                   `json:"successfulRuns"`
	TotalRuns      int                   `json:"totalRuns"`
	MeanDuration   time.Duration         `json:"meanDurationNs"`
	Runs           []RunRecord           `json:"runs,omitempty"`
	Consistency    []CategoryConsistency `json:"consistency,omitempty"`
}

// FileReport is the outcome for one path.
type FileReport struct {
	Path       string      `json:"path"`
	Language   string      `json:"language,omitempty"`
	Bytes      int         `json:"bytes"`
	Model      string      `json:"model,omitempty"`
	State      State       `json:"state"`
	Redacted   bool        `json:"redacted,omitempty"`
	Result     *Result     `json:"result,omitempty"`
	Runs       []RunRecord `json:"runs,omitempty"`
	Validation *Validation `json:"validation,omitempty"`
	DryRun     *DryRun     `json:"dryRun,omitempty"`
	Err        error       `json:"-"`
	Error      string      `json:"error,omitempty"`
}

// OK reports whether the file finished without error.
func (f FileReport) OK() bool { return f.State == StateDone && f.Err == nil }

// Outcome classifies a whole batch.
type Outcome string

const (
	OutcomeReviewed  Outcome = "reviewed"
	OutcomeDryRun    Outcome = "dry-run"
	OutcomeNoFiles   Outcome = "no-files"
	OutcomeNoReviews Outcome = "no-reviews"
)

// Timing contains batch timing.
type Timing struct {
	Started time.Time     `json:"started"`
	Total   time.Duration `json:"totalNs"`
}

// Report is the top-level output structure.
type Report struct {
	Tool    string           `json:"tool"`
	Version string           `json:"version"`
	RunID   string           `json:"runId"`
	Mode    string           `json:"mode"`
	Repo    *gitctx.RepoMeta `json:"repo,omitempty"`
	Model   string           `json:"model,omitempty"`
	Source  string           `json:"modelSource,omitempty"`
	Outcome Outcome          `json:"outcome"`
	Files   []FileReport     `json:"files"`
	Merged  Result           `json:"merged"`
	Timing  Timing           `json:"timing"`
}

// Succeeded returns the files that produced a review or dry-run description.
func (r *Report) Succeeded() []FileReport {
	var out []FileReport
	for _, f := range r.Files {
		if f.OK() {
			out = append(out, f)
		}
	}
	return out
}

// Failed returns the files that ended in StateFailed.
func (r *Report) Failed() []FileReport {
	var out []FileReport
	for _, f := range r.Files {
		if !f.OK() {
			out = append(out, f)
		}
	}
	return out
}
