package archive

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// GitDestination writes each export as a file in a git repo and pushes.
type GitDestination struct {
	repo   string // path to the local clone
	dir    string // directory within the repo
	branch string // branch to commit and push to
}

// NewGitDestination creates a git destination. repo is the path to an
// existing local clone.
func NewGitDestination(repo, dir, branch string) *GitDestination {
	return &GitDestination{
		repo:   repo,
		dir:    dir,
		branch: branch,
	}
}

// Write writes data to dir/name, commits, and pushes.
func (d *GitDestination) Write(ctx context.Context, name string, data []byte) error {
	if err := d.git(ctx, "checkout", d.branch); err != nil {
		return fmt.Errorf("git checkout: %w", err)
	}

	// The remote might not have the branch yet.
	_ = d.git(ctx, "pull", "--ff-only", "origin", d.branch)

	rel := filepath.Join(d.dir, name)
	filePath := filepath.Join(d.repo, rel)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	if err := d.git(ctx, "add", rel); err != nil {
		return fmt.Errorf("git add: %w", err)
	}

	if err := d.git(ctx, "diff", "--cached", "--quiet"); err == nil {
		return nil
	}

	if err := d.git(ctx, "commit", "-m", "archive: "+name); err != nil {
		return fmt.Errorf("git commit: %w", err)
	}

	if err := d.git(ctx, "push", "origin", d.branch); err != nil {
		return fmt.Errorf("git push: %w", err)
	}

	return nil
}

func (d *GitDestination) git(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.repo
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
