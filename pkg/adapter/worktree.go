package adapter

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/jdtzmn/port/pkg/porterr"
)

func worktreePath(repo, taskID string) string {
	return filepath.Join(repo, ".port", "worktrees", taskID)
}

func worktreeBranch(taskID string) string {
	return "port-task-" + taskID
}

func addWorktree(ctx context.Context, repo, taskID, baseBranch string) (string, error) {
	path := worktreePath(repo, taskID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", porterr.New(porterr.KindPreconditionMissing, "adapter.addWorktree", err)
	}
	cmd := exec.CommandContext(ctx, "git", "worktree", "add", "-b", worktreeBranch(taskID), path, baseBranch)
	cmd.Dir = repo
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", porterr.New(porterr.KindExternalToolError, "adapter.addWorktree", fmt.Errorf("git worktree add: %w: %s", err, out))
	}
	return path, nil
}

func removeWorktree(ctx context.Context, repo, taskID string) error {
	path := worktreePath(repo, taskID)
	cmd := exec.CommandContext(ctx, "git", "worktree", "remove", "--force", path)
	cmd.Dir = repo
	if out, err := cmd.CombinedOutput(); err != nil {
		if os.IsNotExist(statErr(path)) {
			return nil
		}
		return porterr.New(porterr.KindExternalToolError, "adapter.removeWorktree", fmt.Errorf("git worktree remove: %w: %s", err, out))
	}
	cmd = exec.CommandContext(ctx, "git", "branch", "-D", worktreeBranch(taskID))
	cmd.Dir = repo
	_ = cmd.Run() // best-effort: the worktree removal is what matters
	return nil
}

func statErr(path string) error {
	_, err := os.Stat(path)
	return err
}
