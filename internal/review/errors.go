package review

import (
	"errors"
	"fmt"

	"github.com/dshills/localbrain/internal/registry"
	"github.com/dshills/localbrain/internal/selector"
)

// ErrWithheld is returned for files whose content the path policy keeps
// local. They are never sent to the model.
var ErrWithheld = errors.New("content withheld by path policy")

// FileError records the pipeline state a file failed in.
type FileError struct {
	Path  string
	State State
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, e.State, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// AllRunsFailedError is returned when every run of a multi-run review failed.
type AllRunsFailedError struct {
	Runs int
	Errs []error
}

func (e *AllRunsFailedError) Error() string {
	if len(e.Errs) == 0 {
		return fmt.Sprintf("all %d validation runs failed", e.Runs)
	}
	return fmt.Sprintf("all %d validation runs failed; last error: %v", e.Runs, e.Errs[len(e.Errs)-1])
}

func (e *AllRunsFailedError) Unwrap() []error { return e.Errs }

// IsConfigError reports whether err comes from model configuration: a missing
// or malformed registry, or an unknown task label. Such errors abort a batch.
func IsConfigError(err error) bool {
	var cfgErr *registry.ConfigError
	if errors.As(err, &cfgErr) {
		return true
	}
	var taskErr *selector.UnknownTaskError
	if errors.As(err, &taskErr) {
		return true
	}
	return errors.Is(err, selector.ErrNoRegistry)
}
