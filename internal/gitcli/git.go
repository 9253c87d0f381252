// Package gitcli implements the reconcile collaborator interfaces by
// shelling out to git and the GitHub CLI.
package gitcli

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dkoosis/fanout/pkg/reconcile"
)

const defaultRemote = "origin"

// Git implements reconcile.Repo over a local checkout.
type Git struct {
	dir    string
	remote string
	log    *zap.Logger
	exec   execFunc
}

// NewGit returns a Git rooted at dir, talking to the "origin" remote.
// A nil logger disables logging.
func NewGit(dir string, log *zap.Logger) *Git {
	if log == nil {
		log = zap.NewNop()
	}
	return &Git{dir: dir, remote: defaultRemote, log: log, exec: runCommand}
}

// Status returns changed paths within scope, parsed from porcelain output.
func (g *Git) Status(ctx context.Context, scope []string) ([]string, error) {
	args := append([]string{"status", "--porcelain", "--"}, scope...)
	out, err := g.exec(ctx, g.dir, "git", args...)
	if err != nil {
		return nil, err
	}
	return parsePorcelain(out), nil
}

// BranchExists reports whether branch exists on the remote.
func (g *Git) BranchExists(ctx context.Context, branch string) (bool, error) {
	out, err := g.exec(ctx, g.dir, "git", "ls-remote", "--heads", g.remote, branch)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// SwitchBranch checks out branch. Fresh branches fork from the current HEAD;
// existing remote branches are fetched first so repeated runs continue the
// accumulated remote state instead of sprawling new branches.
func (g *Git) SwitchBranch(ctx context.Context, branch string, fresh bool) error {
	if fresh {
		_, err := g.exec(ctx, g.dir, "git", "checkout", "-b", branch)
		return err
	}
	if _, err := g.exec(ctx, g.dir, "git", "fetch", g.remote, branch); err != nil {
		return err
	}
	_, err := g.exec(ctx, g.dir, "git", "checkout", "-B", branch, g.remote+"/"+branch)
	return err
}

// Commit stages exactly the scoped paths and commits them as author. The
// scope is passed through to git verbatim; nothing broader is ever staged.
func (g *Git) Commit(ctx context.Context, scope []string, message string, author reconcile.Author) error {
	addArgs := append([]string{"add", "--"}, scope...)
	if _, err := g.exec(ctx, g.dir, "git", addArgs...); err != nil {
		return err
	}
	_, err := g.exec(ctx, g.dir, "git",
		"-c", "user.name="+author.Name,
		"-c", "user.email="+author.Email,
		"commit", "-m", message)
	if err != nil {
		return err
	}
	g.log.Debug("committed scoped changes", zap.Strings("scope", scope))
	return nil
}

// ForcePush pushes branch to the remote, overwriting remote history.
func (g *Git) ForcePush(ctx context.Context, branch string) error {
	_, err := g.exec(ctx, g.dir, "git", "push", "--force", g.remote,
		fmt.Sprintf("%s:refs/heads/%s", branch, branch))
	return err
}

// parsePorcelain extracts the pathnames from `git status --porcelain`
// output. Renames report the destination path.
func parsePorcelain(out string) []string {
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		if _, dest, ok := strings.Cut(path, " -> "); ok {
			path = dest
		}
		paths = append(paths, strings.Trim(path, `"`))
	}
	return paths
}
