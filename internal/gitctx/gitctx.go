package gitctx

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// diffFilter restricts name listings to added, copied, modified, and renamed files.
const diffFilter = "--diff-filter=ACMR"

// Runner executes git with args in dir and returns stdout.
type Runner func(ctx context.Context, dir string, args ...string) (string, error)

// Repo is a git working copy. The zero value runs git in the process
// working directory.
type Repo struct {
	Dir string
	Run Runner
}

// RepoMeta contains git repository metadata.
type RepoMeta struct {
	Root   string `json:"root"`
	Head   string `json:"head"`
	Branch string `json:"branch"`
}

// ChangedFiles returns the raw name-only listing of changed files. Staged
// selects the index (--cached); otherwise the working tree is compared.
func (r Repo) ChangedFiles(ctx context.Context, staged bool) (string, error) {
	args := []string{"diff"}
	if staged {
		args = append(args, "--cached")
	}
	args = append(args, "--name-only", diffFilter)
	out, err := r.run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

// Meta collects repository metadata. Fields git cannot answer (no commits
// yet, detached HEAD) are left empty.
func (r Repo) Meta(ctx context.Context) (RepoMeta, error) {
	root, err := r.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return RepoMeta{}, fmt.Errorf("not a git repository: %w", err)
	}
	head, err := r.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		head = ""
	}
	branch, err := r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		branch = ""
	}
	return RepoMeta{
		Root:   strings.TrimSpace(root),
		Head:   strings.TrimSpace(head),
		Branch: strings.TrimSpace(branch),
	}, nil
}

func (r Repo) run(ctx context.Context, args ...string) (string, error) {
	run := r.Run
	if run == nil {
		run = gitOutput
	}
	return run(ctx, r.Dir, args...)
}

func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return string(out), fmt.Errorf("%s: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return string(out), nil
}
