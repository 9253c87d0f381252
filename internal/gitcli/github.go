package gitcli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dkoosis/fanout/pkg/reconcile"
)

// GitHub implements reconcile.PullRequests via the gh CLI.
type GitHub struct {
	dir  string
	log  *zap.Logger
	exec execFunc
}

// NewGitHub returns a GitHub pull request client operating in dir.
// A nil logger disables logging.
func NewGitHub(dir string, log *zap.Logger) *GitHub {
	if log == nil {
		log = zap.NewNop()
	}
	return &GitHub{dir: dir, log: log, exec: runCommand}
}

type prListEntry struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
}

// List returns pull requests from head into base in the given state.
func (h *GitHub) List(ctx context.Context, base, head string, state reconcile.PRState) ([]reconcile.PullRequest, error) {
	out, err := h.exec(ctx, h.dir, "gh", "pr", "list",
		"--state", state.String(),
		"--base", base,
		"--head", head,
		"--json", "number,title,state")
	if err != nil {
		return nil, err
	}

	var entries []prListEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		return nil, fmt.Errorf("parse gh pr list output: %w", err)
	}

	prs := make([]reconcile.PullRequest, 0, len(entries))
	for _, e := range entries {
		pr := reconcile.PullRequest{Number: e.Number, Title: e.Title, State: reconcile.PRStateOpen}
		if !strings.EqualFold(e.State, "open") {
			pr.State = reconcile.PRStateClosed
		}
		prs = append(prs, pr)
	}
	return prs, nil
}

// Create opens a new pull request from head into base. gh prints the new PR
// URL; the number is parsed from its last path segment.
func (h *GitHub) Create(ctx context.Context, base, head, title, body string) (reconcile.PullRequest, error) {
	out, err := h.exec(ctx, h.dir, "gh", "pr", "create",
		"--base", base,
		"--head", head,
		"--title", title,
		"--body", body)
	if err != nil {
		return reconcile.PullRequest{}, err
	}

	number, err := prNumberFromURL(out)
	if err != nil {
		return reconcile.PullRequest{}, err
	}
	h.log.Info("created pull request", zap.Int("number", number), zap.String("head", head))
	return reconcile.PullRequest{Number: number, Title: title, State: reconcile.PRStateOpen}, nil
}

// Reopen reopens a closed pull request.
func (h *GitHub) Reopen(ctx context.Context, number int) error {
	_, err := h.exec(ctx, h.dir, "gh", "pr", "reopen", strconv.Itoa(number))
	return err
}

func prNumberFromURL(out string) (int, error) {
	url := strings.TrimSpace(out)
	if i := strings.LastIndexByte(url, '\n'); i >= 0 {
		url = strings.TrimSpace(url[i+1:])
	}
	seg := url[strings.LastIndexByte(url, '/')+1:]
	number, err := strconv.Atoi(seg)
	if err != nil {
		return 0, fmt.Errorf("parse pull request number from %q: %w", url, err)
	}
	return number, nil
}
