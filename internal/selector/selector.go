// Package selector resolves which model reviews a file.
//
// Four sources compete, evaluated in fixed priority order with the first
// present source winning:
//  1. an explicit model name (--model)
//  2. a task label mapped through the registry (--task)
//  3. the MODEL_NAME environment variable
//  4. the registry default
//
// [ResolveAdaptive] additionally swaps a moderate or slow model for the first
// fast one in the registry when several files are reviewed in one batch,
// unless the caller named the model explicitly.
package selector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/localbrain/internal/registry"
)

// Source identifies which configuration channel produced a model name.
type Source int

const (
	SourceExplicit Source = iota
	SourceTask
	SourceEnv
	SourceDefault
)

func (s Source) String() string {
	switch s {
	case SourceExplicit:
		return "explicit"
	case SourceTask:
		return "task"
	case SourceEnv:
		return "env"
	case SourceDefault:
		return "default"
	default:
		return "unknown"
	}
}

// Input carries the raw values of each source. Empty means absent.
type Input struct {
	Explicit string
	Task     string
	Env      string
}

// Source returns the highest-priority source present.
func (in Input) Source() Source {
	s, _ := in.source()
	return s
}

// source returns the highest-priority source present and its value.
func (in Input) source() (Source, string) {
	switch {
	case in.Explicit != "":
		return SourceExplicit, in.Explicit
	case in.Task != "":
		return SourceTask, in.Task
	case in.Env != "":
		return SourceEnv, in.Env
	default:
		return SourceDefault, ""
	}
}

// NoticeLevel grades a non-fatal selector message.
type NoticeLevel int

const (
	// LevelInfo reports an automatic substitution.
	LevelInfo NoticeLevel = iota
	// LevelAdvisory warns about an explicit choice without changing it.
	LevelAdvisory
)

// Notice is a message the caller should surface on the diagnostic stream.
type Notice struct {
	Level   NoticeLevel
	Message string
}

// Selection is the outcome of model resolution.
type Selection struct {
	Model  string
	Source Source
	// Original is the model before adaptive substitution; equal to Model when
	// nothing was substituted.
	Original    string
	Substituted bool
	Notices     []Notice
}

// UnknownTaskError is returned when a task label has no registry mapping.
type UnknownTaskError struct {
	Task  string
	Known []string
}

func (e *UnknownTaskError) Error() string {
	known := "none"
	if len(e.Known) > 0 {
		known = strings.Join(e.Known, ", ")
	}
	return fmt.Sprintf("unknown task type %q; available tasks: %s", e.Task, known)
}

// ErrNoRegistry is returned when a source needs the registry but none was supplied.
var ErrNoRegistry = errors.New("model registry is required for task and default selection")

// NeedsRegistry reports whether resolving in for a batch of fileCount files
// consults the registry. Explicit and environment names are returned verbatim,
// so a single-file batch resolved from them never touches it.
func NeedsRegistry(in Input, fileCount int) bool {
	src, _ := in.source()
	switch src {
	case SourceTask, SourceDefault:
		return true
	default:
		return fileCount > 1
	}
}

// Resolve picks the model from the highest-priority source present.
func Resolve(in Input, reg *registry.Registry) (Selection, error) {
	src, value := in.source()
	var model string
	switch src {
	case SourceExplicit, SourceEnv:
		model = value
	case SourceTask:
		if reg == nil {
			return Selection{}, ErrNoRegistry
		}
		m, ok := reg.Task(value)
		if !ok {
			return Selection{}, &UnknownTaskError{Task: value, Known: reg.Tasks()}
		}
		model = m
	case SourceDefault:
		if reg == nil {
			return Selection{}, ErrNoRegistry
		}
		model = reg.DefaultModel
	}
	return Selection{Model: model, Source: src, Original: model}, nil
}

// ResolveAdaptive resolves the model and then applies the multi-file rules.
// reg may be nil for explicit or environment sources; adaptive logic is then
// skipped because no speed information exists.
func ResolveAdaptive(in Input, reg *registry.Registry, fileCount int) (Selection, error) {
	sel, err := Resolve(in, reg)
	if err != nil {
		return Selection{}, err
	}
	if fileCount <= 1 || reg == nil {
		return sel, nil
	}

	if !reg.SpeedOf(sel.Model).IsSlow() {
		return sel, nil
	}
	desc, _ := reg.Lookup(sel.Model)

	if sel.Source == SourceExplicit {
		sel.Notices = append(sel.Notices, Notice{
			Level: LevelAdvisory,
			Message: fmt.Sprintf("Using %s (%s speed, %s parameters, %.1fGB) for %d files. This may be slow. Consider --task quick-review for faster multi-file reviews.",
				desc.Name, desc.Speed(), desc.Parameters, desc.SizeGB, fileCount),
		})
		return sel, nil
	}

	fast, ok := reg.FirstFast()
	if !ok {
		return sel, nil
	}
	sel.Model = fast.Name
	sel.Substituted = true
	sel.Notices = append(sel.Notices, Notice{
		Level:   LevelInfo,
		Message: fmt.Sprintf("Using faster model %s for %d files (was: %s)", fast.Name, fileCount, sel.Original),
	})
	return sel, nil
}
