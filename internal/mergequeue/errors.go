package mergequeue

import (
	"fmt"
	"strings"
)

// GatewayError is returned when reading or changing the queue state on GitHub
// failed. It is not retried, the next event that is processed derives its
// decisions from the state that was left behind.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func gatewayErr(err error, format string, a ...any) *GatewayError {
	return &GatewayError{
		Op:  fmt.Sprintf(format, a...),
		Err: err,
	}
}

// StaleEventError is returned when a status event refers to a commit that
// is not the latest commit of the pull request holding the merging slot.
type StaleEventError struct {
	CommitRef    string
	PullRequest  int
	LatestCommit string
}

func (e *StaleEventError) Error() string {
	return fmt.Sprintf(
		"event is for commit %q, latest commit of merging pull request #%d is %q",
		e.CommitRef, e.PullRequest, e.LatestCommit,
	)
}

// PreconditionUnmetError is returned when checks that are required for
// admitting a pull request to the queue did not complete.
type PreconditionUnmetError struct {
	PullRequest   int
	MissingChecks []string
}

func (e *PreconditionUnmetError) Error() string {
	return fmt.Sprintf(
		"required checks of pull request #%d did not complete: %s",
		e.PullRequest, strings.Join(e.MissingChecks, ", "),
	)
}

// MergeConflictError is returned when updating the branch of a pull request
// or merging it failed.
type MergeConflictError struct {
	PullRequest int
	Op          string
	Err         error
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("%s of pull request #%d failed: %s", e.Op, e.PullRequest, e.Err)
}

func (e *MergeConflictError) Unwrap() error {
	return e.Err
}
