package mergequeue

import (
	"go.uber.org/zap"

	"github.com/simplesurance/mergequeue/internal/logfields"
)

// Event is an event that is processed by the Engine.
type Event interface {
	// Repo returns the repository the event belongs to.
	Repo() *Repository
	LogFields() []zap.Field
}

// QueueAdmissionRequested is created when the command label was added to a
// pull request.
type QueueAdmissionRequested struct {
	Repository Repository
	// PullRequestID is the GraphQL node ID of the pull request.
	PullRequestID     string
	PullRequestNumber int
	// Sender is the login of the user that added the label.
	Sender string
}

func (e *QueueAdmissionRequested) Repo() *Repository {
	return &e.Repository
}

func (e *QueueAdmissionRequested) LogFields() []zap.Field {
	return append(
		e.Repository.LogFields(),
		logfields.PullRequest(e.PullRequestNumber),
		logfields.PullRequestID(e.PullRequestID),
		zap.String("github.sender", e.Sender),
	)
}

// Outcome is the result reported by a status or check event.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeError   Outcome = "error"
)

// CommitStatusSettled is created when a commit status or check reached a
// terminal state.
type CommitStatusSettled struct {
	Repository Repository
	// Commit is the node ID or the SHA of the commit.
	Commit  string
	Outcome Outcome
}

func (e *CommitStatusSettled) Repo() *Repository {
	return &e.Repository
}

func (e *CommitStatusSettled) LogFields() []zap.Field {
	return append(
		e.Repository.LogFields(),
		logfields.Commit(e.Commit),
		zap.String("outcome", string(e.Outcome)),
	)
}
