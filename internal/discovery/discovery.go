package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Mode selects how targets are discovered.
type Mode int

const (
	ModeNone Mode = iota
	ModeFiles
	ModeDir
	ModeGitDiff
)

func (m Mode) String() string {
	switch m {
	case ModeFiles:
		return "files"
	case ModeDir:
		return "dir"
	case ModeGitDiff:
		return "git-diff"
	default:
		return "none"
	}
}

// DefaultPattern is used in directory mode when no pattern is given.
const DefaultPattern = "*"

// prunedDirs are skipped below the walk root along with any dot-directory.
var prunedDirs = map[string]bool{
	"node_modules": true,
	"target":       true,
	"vendor":       true,
	"dist":         true,
	"__pycache__":  true,
}

// ErrNoMode is returned when a Request names no discovery mode.
var ErrNoMode = errors.New("no input mode: use --files, --dir, or --git-diff")

// DiscoveryError reports a directory or VCS listing that could not be read.
type DiscoveryError struct {
	Path string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovering files in %s: %v", e.Path, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// ChangeLister lists changed file names, one per line. Staged selects the
// index; otherwise the working tree.
type ChangeLister interface {
	ChangedFiles(ctx context.Context, staged bool) (string, error)
}

// Request describes one discovery invocation.
type Request struct {
	Mode    Mode
	Files   string
	Dir     string
	Pattern string
}

// Result is the ordered, de-duplicated target list.
type Result struct {
	Mode  Mode
	Paths []string
	// Staged is set in git mode when the index supplied the list.
	Staged bool
}

// Discover dispatches on req.Mode. lister is only used in git mode.
func Discover(ctx context.Context, req Request, lister ChangeLister) (Result, error) {
	res := Result{Mode: req.Mode}
	var paths []string
	switch req.Mode {
	case ModeFiles:
		paths = ParseList(req.Files)
	case ModeDir:
		pattern := req.Pattern
		if pattern == "" {
			pattern = DefaultPattern
		}
		p, err := Walk(req.Dir, pattern)
		if err != nil {
			return res, err
		}
		paths = p
	case ModeGitDiff:
		if lister == nil {
			return res, &DiscoveryError{Path: ".", Err: errors.New("no git repository available")}
		}
		p, staged, err := GitChanges(ctx, lister)
		if err != nil {
			return res, err
		}
		paths, res.Staged = p, staged
	default:
		return res, ErrNoMode
	}
	res.Paths = dedupe(paths)
	return res, nil
}

// Walk returns regular files under root whose base name matches pattern, in
// lexical order. The root is always entered even when its own name would be
// pruned.
func Walk(root, pattern string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &DiscoveryError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &DiscoveryError{Path: root, Err: errors.New("not a directory")}
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return &DiscoveryError{Path: path, Err: err}
		}
		if d.IsDir() {
			if path != root && pruned(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if MatchPattern(d.Name(), pattern) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		var de *DiscoveryError
		if errors.As(err, &de) {
			return nil, de
		}
		return nil, &DiscoveryError{Path: root, Err: err}
	}
	return files, nil
}

func pruned(name string) bool {
	return strings.HasPrefix(name, ".") || prunedDirs[name]
}

// GitChanges returns staged files, falling back to unstaged changes when the
// index is empty. The second result reports which list was used.
func GitChanges(ctx context.Context, lister ChangeLister) ([]string, bool, error) {
	out, err := lister.ChangedFiles(ctx, true)
	if err != nil {
		return nil, false, &DiscoveryError{Path: ".", Err: err}
	}
	if files := splitLines(out); len(files) > 0 {
		return files, true, nil
	}
	out, err = lister.ChangedFiles(ctx, false)
	if err != nil {
		return nil, false, &DiscoveryError{Path: ".", Err: err}
	}
	return splitLines(out), false, nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func dedupe(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
