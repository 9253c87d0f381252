// Package reconcile converges generated working-tree changes onto a
// persistent bot branch and pull request.
//
// The machine holds no state of its own: the remote branch and PR are the
// persisted state, re-derived on every invocation. Each step is individually
// idempotent, so a partially failed run is safely retried by simply running
// again. It talks to version control through two narrow interfaces so it can
// be tested against fakes.
package reconcile

import "context"

// State is one observation the machine makes while reconciling.
type State int

const (
	// StateClean: no changes in scope; terminal no-op.
	StateClean State = iota
	// StateDirtyNoBranch: changes exist and the target branch is absent
	// from the remote.
	StateDirtyNoBranch
	// StateDirtyBranchExists: changes exist and the remote branch already
	// carries prior accumulated state.
	StateDirtyBranchExists
	// StateCommitted: scoped changes were committed and force-pushed.
	StateCommitted
	// StatePRAbsent: no pull request exists for the branch.
	StatePRAbsent
	// StatePROpen: an open pull request already tracks the branch.
	StatePROpen
	// StatePRClosed: a previously closed pull request exists for the branch.
	StatePRClosed
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirtyNoBranch:
		return "dirty-no-branch"
	case StateDirtyBranchExists:
		return "dirty-branch-exists"
	case StateCommitted:
		return "committed"
	case StatePRAbsent:
		return "pr-absent"
	case StatePROpen:
		return "pr-open"
	case StatePRClosed:
		return "pr-closed"
	default:
		return "unknown"
	}
}

// Outcome is the successful terminal result of a reconciliation. No-op
// outcomes (Clean, AlreadyOpen) are successes, not errors: callers must be
// able to tell "nothing to do" from "failed to do it".
type Outcome int

const (
	// OutcomeClean: the working tree had no changes in scope.
	OutcomeClean Outcome = iota
	// OutcomeCreated: a new pull request was opened.
	OutcomeCreated
	// OutcomeReopened: a previously closed pull request was reopened.
	OutcomeReopened
	// OutcomeAlreadyOpen: an open pull request already existed; nothing done.
	OutcomeAlreadyOpen
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClean:
		return "clean"
	case OutcomeCreated:
		return "created"
	case OutcomeReopened:
		return "reopened"
	case OutcomeAlreadyOpen:
		return "already-open"
	default:
		return "unknown"
	}
}

// PRState filters pull request listings.
type PRState int

const (
	PRStateOpen PRState = iota
	PRStateClosed
)

func (s PRState) String() string {
	if s == PRStateClosed {
		return "closed"
	}
	return "open"
}

// Author is the commit identity used for reconciliation commits.
type Author struct {
	Name  string
	Email string
}

// PullRequest is the minimal view of a remote pull request the machine needs.
type PullRequest struct {
	Number int
	Title  string
	State  PRState
}

// Repo exposes the working-tree and branch primitives the machine consumes.
type Repo interface {
	// Status returns the changed (modified, added, deleted) paths within
	// scope. An empty result means the tree is clean in scope.
	Status(ctx context.Context, scope []string) ([]string, error)
	// BranchExists reports whether branch exists on the remote.
	BranchExists(ctx context.Context, branch string) (bool, error)
	// SwitchBranch checks out branch. With fresh true it is created from
	// the current base; otherwise the remote branch state is continued.
	SwitchBranch(ctx context.Context, branch string, fresh bool) error
	// Commit stages exactly the scoped paths and commits them as author.
	Commit(ctx context.Context, scope []string, message string, author Author) error
	// ForcePush pushes branch to the remote, overwriting remote history.
	ForcePush(ctx context.Context, branch string) error
}

// PullRequests exposes the remote pull request surface.
type PullRequests interface {
	// List returns pull requests from head into base in the given state.
	List(ctx context.Context, base, head string, state PRState) ([]PullRequest, error)
	// Create opens a new pull request from head into base.
	Create(ctx context.Context, base, head, title, body string) (PullRequest, error)
	// Reopen reopens a closed pull request.
	Reopen(ctx context.Context, number int) error
}
