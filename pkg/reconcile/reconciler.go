package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// CommitPrefix is the fixed prefix of every reconciliation commit message.
const CommitPrefix = "ci: regenerate build artifacts"

// Request carries the invocation parameters for one reconciliation. All
// values are passed explicitly; the machine reads no ambient configuration.
type Request struct {
	// Scope is the set of paths to detect, stage, and commit. The machine
	// never stages outside it.
	Scope []string
	// Branch is the long-lived bot branch reconciliations converge onto.
	Branch string
	// Base is the branch pull requests target.
	Base string
	// Title and Body populate a newly created pull request.
	Title string
	Body  string
	// MessageSuffix, when non-empty, is appended to the commit message
	// after the fixed prefix.
	MessageSuffix string
	// Author is the commit identity.
	Author Author
}

// Result records a successful reconciliation: the terminal outcome and the
// states observed on the way, in order.
type Result struct {
	Outcome  Outcome
	States   []State
	Branch   string
	PRNumber int
}

// Reconciler drives the reconciliation state machine.
type Reconciler struct {
	repo Repo
	prs  PullRequests
	log  *zap.Logger
}

// New returns a Reconciler over the given collaborators. A nil logger
// disables logging.
func New(repo Repo, prs PullRequests, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{repo: repo, prs: prs, log: log}
}

// Reconcile runs the full detect → branch → commit → push → PR sequence.
//
// Any step failure aborts the remaining steps; the next invocation re-derives
// state from the working tree and remote, so no manual cleanup is needed
// after a partial failure. Reconcile is not safe to run concurrently against
// the same branch.
func (r *Reconciler) Reconcile(ctx context.Context, req Request) (Result, error) {
	res := Result{Branch: req.Branch}

	changed, err := r.repo.Status(ctx, req.Scope)
	if err != nil {
		return res, fmt.Errorf("detect changes: %w", err)
	}
	if len(changed) == 0 {
		res.Outcome = OutcomeClean
		res.States = append(res.States, StateClean)
		r.log.Debug("working tree clean in scope, nothing to reconcile")
		return res, nil
	}
	r.log.Debug("changes detected", zap.Int("paths", len(changed)))

	exists, err := r.repo.BranchExists(ctx, req.Branch)
	if err != nil {
		return res, fmt.Errorf("check branch %q: %w", req.Branch, err)
	}
	if exists {
		res.States = append(res.States, StateDirtyBranchExists)
	} else {
		res.States = append(res.States, StateDirtyNoBranch)
	}
	if err := r.repo.SwitchBranch(ctx, req.Branch, !exists); err != nil {
		return res, fmt.Errorf("switch to branch %q: %w", req.Branch, err)
	}

	if err := r.repo.Commit(ctx, req.Scope, commitMessage(req.MessageSuffix), req.Author); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	// Force is intentional: the branch is regenerable bot state, not
	// collaborative history, and nobody bases work on it.
	if err := r.repo.ForcePush(ctx, req.Branch); err != nil {
		return res, fmt.Errorf("push branch %q: %w", req.Branch, err)
	}
	res.States = append(res.States, StateCommitted)

	// Closed PRs are consulted first: reopening preserves prior review and
	// discussion on a branch that was merged or closed and is now being
	// regenerated, where creating would produce a duplicate.
	closed, err := r.prs.List(ctx, req.Base, req.Branch, PRStateClosed)
	if err != nil {
		return res, fmt.Errorf("list closed pull requests: %w", err)
	}
	if len(closed) > 0 {
		res.States = append(res.States, StatePRClosed)
		if err := r.prs.Reopen(ctx, closed[0].Number); err != nil {
			return res, fmt.Errorf("reopen pull request #%d: %w", closed[0].Number, err)
		}
		res.Outcome = OutcomeReopened
		res.PRNumber = closed[0].Number
		r.log.Info("reopened pull request", zap.Int("number", closed[0].Number))
		return res, nil
	}

	open, err := r.prs.List(ctx, req.Base, req.Branch, PRStateOpen)
	if err != nil {
		return res, fmt.Errorf("list open pull requests: %w", err)
	}
	if len(open) > 0 {
		res.States = append(res.States, StatePROpen)
		res.Outcome = OutcomeAlreadyOpen
		res.PRNumber = open[0].Number
		r.log.Debug("pull request already open", zap.Int("number", open[0].Number))
		return res, nil
	}

	res.States = append(res.States, StatePRAbsent)
	pr, err := r.prs.Create(ctx, req.Base, req.Branch, req.Title, req.Body)
	if err != nil {
		return res, fmt.Errorf("create pull request: %w", err)
	}
	res.Outcome = OutcomeCreated
	res.PRNumber = pr.Number
	r.log.Info("created pull request", zap.Int("number", pr.Number))
	return res, nil
}

func commitMessage(suffix string) string {
	if suffix == "" {
		return CommitPrefix
	}
	return CommitPrefix + ": " + suffix
}
