package mergequeue

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/mergequeue/internal/logfields"
)

// Repository identifies a GitHub repository.
// ID is the GraphQL node ID, it is empty if it is not known.
type Repository struct {
	ID    string
	Owner string
	Name  string
}

func (r *Repository) String() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Name)
}

func (r *Repository) LogFields() []zap.Field {
	return []zap.Field{
		logfields.RepositoryOwner(r.Owner),
		logfields.Repository(r.Name),
	}
}

// LabelKind is the role of a label in the merge queue.
type LabelKind int

const (
	// LabelKindCommandQueue is applied by a user to request that a pull
	// request is queued for merging. It is removed when the request is
	// processed.
	LabelKindCommandQueue LabelKind = iota
	// LabelKindMerging marks the pull request that is currently updated,
	// tested and merged. At most 1 pull request has it.
	LabelKindMerging
	// LabelKindQueued marks pull requests that wait for the merging slot.
	LabelKindQueued
)

func (k LabelKind) String() string {
	switch k {
	case LabelKindCommandQueue:
		return "command"
	case LabelKindMerging:
		return "merging"
	case LabelKindQueued:
		return "queued"
	default:
		return fmt.Sprintf("undefined (%d)", k)
	}
}

// Label is a repository label together with the pull requests that have it
// assigned.
// The order of PullRequests is the order in that the label was assigned,
// for the queued label it is the queue order.
type Label struct {
	ID           string
	Name         string
	Kind         LabelKind
	PullRequests []*PullRequest
}

// First returns the first pull request that has the label assigned, nil if
// none has it.
func (l *Label) First() *PullRequest {
	if l == nil || len(l.PullRequests) == 0 {
		return nil
	}

	return l.PullRequests[0]
}

// Find returns the pull request with the given node id, nil if it does not
// have the label.
func (l *Label) Find(pullRequestID string) *PullRequest {
	if l == nil {
		return nil
	}

	for _, pr := range l.PullRequests {
		if pr.ID == pullRequestID {
			return pr
		}
	}

	return nil
}

// FindByNumber returns the pull request with the given number, nil if it does
// not have the label.
func (l *Label) FindByNumber(number int) *PullRequest {
	if l == nil {
		return nil
	}

	for _, pr := range l.PullRequests {
		if pr.Number == number {
			return pr
		}
	}

	return nil
}

type PullRequestState string

const (
	PullRequestStateOpen   PullRequestState = "OPEN"
	PullRequestStateClosed PullRequestState = "CLOSED"
	PullRequestStateMerged PullRequestState = "MERGED"
)

// PullRequest is a GitHub pull request.
type PullRequest struct {
	ID      string
	Number  int
	Title   string
	State   PullRequestState
	BaseRef string
	HeadRef string
	// Labels are the names of the labels assigned to the pull request.
	Labels []string
	// LatestCommit is the head commit of the pull request, it is nil if
	// it is unknown.
	LatestCommit *Commit
}

func (pr *PullRequest) IsOpen() bool {
	return pr.State == PullRequestStateOpen
}

func (pr *PullRequest) HasLabel(name string) bool {
	for _, l := range pr.Labels {
		if l == name {
			return true
		}
	}

	return false
}

// HeadOid returns the SHA of the latest commit, an empty string if it is
// unknown.
func (pr *PullRequest) HeadOid() string {
	if pr.LatestCommit == nil {
		return ""
	}

	return pr.LatestCommit.Oid
}

func (pr *PullRequest) LogFields() []zap.Field {
	return []zap.Field{
		logfields.PullRequest(pr.Number),
		logfields.PullRequestID(pr.ID),
		logfields.Commit(pr.HeadOid()),
		logfields.BaseBranch(pr.BaseRef),
		logfields.Branch(pr.HeadRef),
	}
}

// Commit is a git commit with the results of the checks that were run for
// it.
type Commit struct {
	// ID is the GraphQL node ID.
	ID string
	// Oid is the git SHA.
	Oid    string
	Checks []*CheckResult
}

// Matches returns true if ref is the node ID or the SHA of the commit.
func (c *Commit) Matches(ref string) bool {
	if ref == "" {
		return false
	}

	return ref == c.ID || ref == c.Oid
}

// CheckStatus is the normalized result of a check run or a commit status.
type CheckStatus string

const (
	// CheckStatusAbsent is used when no result was reported yet.
	CheckStatusAbsent         CheckStatus = ""
	CheckStatusPending        CheckStatus = "pending"
	CheckStatusSuccess        CheckStatus = "success"
	CheckStatusNeutral        CheckStatus = "neutral"
	CheckStatusSkipped        CheckStatus = "skipped"
	CheckStatusFailure        CheckStatus = "failure"
	CheckStatusError          CheckStatus = "error"
	CheckStatusCancelled      CheckStatus = "cancelled"
	CheckStatusTimedOut       CheckStatus = "timed_out"
	CheckStatusActionRequired CheckStatus = "action_required"
	CheckStatusStale          CheckStatus = "stale"
	CheckStatusStartupFailure CheckStatus = "startup_failure"
)

// CheckResult is the latest reported result of a check group, a check suite
// or a commit status context.
type CheckResult struct {
	Name   string
	Status CheckStatus
	// Completed is true when the check reached a terminal state.
	Completed bool
}

// QueueSnapshot is the state of the merge queue of a repository.
// It is read from GitHub on every invocation.
type QueueSnapshot struct {
	Repository Repository
	Command    *Label
	Merging    *Label
	Queued     *Label
}

// MergingPullRequest returns the pull request that holds the merging slot,
// nil if the slot is empty.
func (s *QueueSnapshot) MergingPullRequest() *PullRequest {
	return s.Merging.First()
}

// IsQueuedOrMerging returns true if the pull request holds the merging or
// queued label.
func (s *QueueSnapshot) IsQueuedOrMerging(pr *PullRequest) bool {
	if s.Merging.Find(pr.ID) != nil || s.Queued.Find(pr.ID) != nil {
		return true
	}

	return pr.HasLabel(s.Merging.Name) || pr.HasLabel(s.Queued.Name)
}
