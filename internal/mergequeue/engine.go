package mergequeue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/mergequeue/internal/githubclt"
	"github.com/simplesurance/mergequeue/internal/logfields"
)

const loggerName = "merge_queue"

//go:generate mockgen -source engine.go -destination mocks/githubclient.go -package mocks GithubClient

// GithubClient is the interface to the GitHub API that is used to read and
// change the merge queue state.
type GithubClient interface {
	QueueLabels(ctx context.Context, owner, repo string, names githubclt.LabelNames) (*githubclt.QueueLabels, error)
	AddLabel(ctx context.Context, labelID, labelableID string) error
	RemoveLabel(ctx context.Context, labelID, labelableID string) error
	UpdateBranch(ctx context.Context, pullRequestID, expectedHeadOid string) error
	MergePullRequest(ctx context.Context, pullRequestID, expectedHeadOid string) error
	BranchIsBehindBase(ctx context.Context, owner, repo, baseBranch, head string) (bool, error)
	CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error
}

// Config configures the Engine.
type Config struct {
	CommandLabel string
	MergingLabel string
	QueuedLabel  string

	// ChecksToSkip are names of checks whose results are ignored.
	ChecksToSkip []string
	// ChecksRequiredForAdmission are names of checks that must have
	// completed before a pull request is admitted to the queue.
	ChecksRequiredForAdmission []string
	// PassingCheckStates are the check states that count as passed.
	PassingCheckStates []string

	// PostComments enables creating pull request comments when a pull
	// request is rejected or removed from the queue.
	PostComments bool
}

// Engine processes merge queue events.
// The queue state is stored in GitHub labels and read from GitHub for every
// processed event. The Engine does not keep state between Handle() calls.
// Handle() must not be called concurrently for the same repository.
type Engine struct {
	clt            GithubClient
	labelNames     githubclt.LabelNames
	checks         *CheckPolicy
	requiredChecks []string
	postComments   bool
	logger         *zap.Logger
}

func NewEngine(clt GithubClient, cfg *Config) *Engine {
	return &Engine{
		clt: clt,
		labelNames: githubclt.LabelNames{
			Command: cfg.CommandLabel,
			Merging: cfg.MergingLabel,
			Queued:  cfg.QueuedLabel,
		},
		checks:         NewCheckPolicy(cfg.ChecksToSkip, cfg.PassingCheckStates),
		requiredChecks: cfg.ChecksRequiredForAdmission,
		postComments:   cfg.PostComments,
		logger:         zap.L().Named(loggerName),
	}
}

// CommandLabel returns the name of the label that requests queueing a pull
// request.
func (e *Engine) CommandLabel() string {
	return e.labelNames.Command
}

// QueueState returns the current merge queue state of the repository.
func (e *Engine) QueueState(ctx context.Context, repo *Repository) (*QueueSnapshot, error) {
	return e.readQueueState(ctx, repo)
}

// Handle processes an event.
// Events that refer to outdated commits or are for pull requests that do not
// fulfill the queue admission requirements are logged and nil is returned.
// When reading or changing labels fails, a GatewayError is returned.
// Events of other types than QueueAdmissionRequested and CommitStatusSettled
// are ignored.
func (e *Engine) Handle(ctx context.Context, ev Event) error {
	var err error

	logger := e.logger.With(ev.LogFields()...)

	switch ev := ev.(type) {
	case *QueueAdmissionRequested:
		metrics.ProcessedEventsInc(ev.Repo(), "queue_admission_requested")
		err = e.admit(ctx, logger, ev)

	case *CommitStatusSettled:
		metrics.ProcessedEventsInc(ev.Repo(), "commit_status_settled")
		err = e.settle(ctx, logger, ev)

	default:
		logger.Debug("event ignored, unsupported event type", logEventEventIgnored)
		return nil
	}

	return e.absorbSoftErrors(logger, ev.Repo(), err)
}

func (e *Engine) absorbSoftErrors(logger *zap.Logger, repo *Repository, err error) error {
	var staleErr *StaleEventError
	var preconditionErr *PreconditionUnmetError

	switch {
	case err == nil:
		return nil

	case errors.As(err, &staleErr):
		metrics.TransitionInc(repo, transitionStaleEvent)
		logger.Info(
			"event ignored, commit is not the latest commit of the merging pull request",
			logEventEventStale,
			zap.Error(err),
		)

		return nil

	case errors.As(err, &preconditionErr):
		metrics.TransitionInc(repo, transitionAdmissionRejected)
		logger.Info(
			"pull request not queued, required checks did not complete",
			logEventAdmissionRejected,
			zap.Strings("missing_checks", preconditionErr.MissingChecks),
			zap.Error(err),
		)

		return nil

	default:
		return err
	}
}

// admit processes a request to add a pull request to the merge queue.
func (e *Engine) admit(ctx context.Context, logger *zap.Logger, ev *QueueAdmissionRequested) error {
	snapshot, err := e.readQueueState(ctx, &ev.Repository)
	if err != nil {
		return err
	}

	metrics.RecordQueueSize(snapshot)

	pr := snapshot.Command.Find(ev.PullRequestID)
	if pr == nil {
		pr = snapshot.Command.FindByNumber(ev.PullRequestNumber)
	}

	if pr == nil {
		logger.Info(
			"command label is not assigned to the pull request, request was already processed",
			logEventAdmissionSkipped,
			logReasonAlreadyHandled,
		)

		return nil
	}

	logger = logger.With(pr.LogFields()...)

	// the command label is removed first, concurrent invocations for the
	// same request see it absent and do nothing
	if err := e.removeLabel(ctx, logger, snapshot.Command, pr); err != nil {
		return err
	}

	if missing := MissingRequiredChecks(pr.LatestCommit, e.requiredChecks); len(missing) > 0 {
		e.comment(ctx, logger, &snapshot.Repository, pr, fmt.Sprintf(
			"Pull request was not queued for merging, the following required checks did not complete: %s",
			strings.Join(missing, ", "),
		))

		return &PreconditionUnmetError{
			PullRequest:   pr.Number,
			MissingChecks: missing,
		}
	}

	if !pr.IsOpen() {
		logger.Info(
			"pull request is not queued, it is not open",
			logEventAdmissionSkipped,
			logReasonPRClosed,
		)

		return nil
	}

	if snapshot.IsQueuedOrMerging(pr) {
		logger.Info(
			"pull request is already in the merge queue",
			logEventAdmissionSkipped,
			logReasonAlreadyQueued,
		)

		return nil
	}

	if holder := snapshot.MergingPullRequest(); holder != nil {
		if err := e.addLabel(ctx, logger, snapshot.Queued, pr); err != nil {
			return err
		}

		metrics.TransitionInc(&snapshot.Repository, transitionEnqueued)
		logger.Info(
			"pull request enqueued",
			logEventEnqueued,
			logReasonSlotOccupied,
			zap.Int("queue_position", len(snapshot.Queued.PullRequests)+1),
			zap.Int("merging_pull_request", holder.Number),
		)

		return nil
	}

	if err := e.addLabel(ctx, logger, snapshot.Merging, pr); err != nil {
		return err
	}

	metrics.TransitionInc(&snapshot.Repository, transitionPromoted)
	logger.Info("pull request moved into merging slot", logEventPromoted)

	merged, err := e.updateOrMerge(ctx, logger, &snapshot.Repository, pr)
	if err == nil && !merged {
		return nil
	}

	if err != nil {
		e.evicted(ctx, logger, &snapshot.Repository, pr, err)
	}

	return e.advance(ctx, logger, snapshot, pr)
}

// settle processes a status or check result that was reported for a commit.
func (e *Engine) settle(ctx context.Context, logger *zap.Logger, ev *CommitStatusSettled) error {
	snapshot, err := e.readQueueState(ctx, &ev.Repository)
	if err != nil {
		return err
	}

	metrics.RecordQueueSize(snapshot)

	pr := snapshot.MergingPullRequest()
	if pr == nil {
		logger.Debug(
			"merging slot is empty, checking if a queued pull request can be promoted",
			logEventSlotIdle,
		)

		return e.advance(ctx, logger, snapshot, nil)
	}

	if cnt := len(snapshot.Merging.PullRequests); cnt > 1 {
		logger.Warn(
			"multiple pull requests have the merging label, only the first one is processed",
			logfields.Event("multiple_merging_pull_requests"),
			zap.Int("merging_pull_requests_count", cnt),
		)
	}

	logger = logger.With(pr.LogFields()...)

	if !pr.IsOpen() {
		logger.Info(
			"pull request in merging slot is not open, merging slot is released",
			logEventEvicted,
			logReasonPRClosed,
		)

		return e.advance(ctx, logger, snapshot, pr)
	}

	if isStale(ev.Commit, pr) {
		return &StaleEventError{
			CommitRef:    ev.Commit,
			PullRequest:  pr.Number,
			LatestCommit: pr.HeadOid(),
		}
	}

	if ev.Outcome != OutcomeSuccess {
		logger.Debug(
			"event reports an unsuccessful outcome, evaluating results of all checks",
			logfields.Event("unsuccessful_outcome_reported"),
		)
	}

	if !e.checks.IsPassing(pr.LatestCommit) {
		logger.Info(
			"not all checks of the merging pull request passed, waiting for further status events",
			logEventChecksPending,
			zap.Strings("blocking_checks", checkNames(e.checks.BlockingChecks(pr.LatestCommit))),
		)

		return nil
	}

	err = e.clt.MergePullRequest(ctx, pr.ID, pr.HeadOid())
	if err == nil {
		metrics.TransitionInc(&snapshot.Repository, transitionMerged)
		logger.Info("all checks passed, pull request merged", logEventMerged)

		return e.advance(ctx, logger, snapshot, pr)
	}

	metrics.TransitionInc(&snapshot.Repository, transitionMergeFailed)

	return e.reverifyFailedMerge(ctx, logger, &ev.Repository, pr, err)
}

// reverifyFailedMerge reads the queue state once again after merging failed
// and logs if the checks of the pull request are still passing.
// The pull request keeps the merging slot, the merge is retried when the next
// status event for it is processed.
func (e *Engine) reverifyFailedMerge(ctx context.Context, logger *zap.Logger, repo *Repository, pr *PullRequest, mergeErr error) error {
	logger = logger.With(zap.NamedError("merge_error", mergeErr))

	snapshot, err := e.readQueueState(ctx, repo)
	if err != nil {
		return err
	}

	current := snapshot.Merging.Find(pr.ID)
	if current == nil {
		logger.Info(
			"merging pull request failed, it does not have the merging label anymore",
			logEventMergeFailed,
		)

		return nil
	}

	if e.checks.IsPassing(current.LatestCommit) {
		logger.Warn(
			"merging pull request failed, checks are still passing, merge will be retried on next status event",
			logEventMergeFailed,
			logfields.Commit(current.HeadOid()),
		)

		return nil
	}

	logger.Info(
		"merging pull request failed, checks of its latest commit are not passing anymore",
		logEventMergeFailed,
		logfields.Commit(current.HeadOid()),
		zap.Strings("blocking_checks", checkNames(e.checks.BlockingChecks(current.LatestCommit))),
	)

	return nil
}

// updateOrMerge updates the branch of the pull request with its base branch.
// If the branch is already up to date, the pull request is merged instead
// and merged is true.
// If the head branch changed since the queue state was read, the pull request
// keeps the merging slot and nil is returned, the checks of the new head commit
// trigger its settlement.
// If updating or merging fails otherwise, a MergeConflictError is returned.
func (e *Engine) updateOrMerge(ctx context.Context, logger *zap.Logger, repo *Repository, pr *PullRequest) (merged bool, err error) {
	err = e.clt.UpdateBranch(ctx, pr.ID, pr.HeadOid())
	if err == nil {
		logger.Info("updating branch with base branch triggered", logEventBranchUpdated)
		return false, nil
	}

	if errors.Is(err, githubclt.ErrHeadChanged) {
		logger.Info(
			"head branch changed while updating it with base branch, waiting for status events of the new head commit",
			logEventHeadChanged,
			zap.Error(err),
		)

		return false, nil
	}

	if !errors.Is(err, githubclt.ErrAlreadyUpToDate) && !e.branchIsUpToDate(ctx, logger, repo, pr) {
		return false, &MergeConflictError{
			PullRequest: pr.Number,
			Op:          "updating branch with base branch",
			Err:         err,
		}
	}

	logger.Info(
		"branch is up to date with base branch, merging pull request",
		logfields.Event("branch_up_to_date"),
	)

	if err := e.clt.MergePullRequest(ctx, pr.ID, pr.HeadOid()); err != nil {
		metrics.TransitionInc(repo, transitionMergeFailed)

		if errors.Is(err, githubclt.ErrHeadChanged) {
			logger.Info(
				"head branch changed while merging, waiting for status events of the new head commit",
				logEventHeadChanged,
				zap.Error(err),
			)

			return false, nil
		}

		return false, &MergeConflictError{
			PullRequest: pr.Number,
			Op:          "merging",
			Err:         err,
		}
	}

	metrics.TransitionInc(repo, transitionMerged)
	logger.Info("pull request merged", logEventMerged)

	return true, nil
}

// branchIsUpToDate is used when updating the branch failed with an error
// that is not known to mean that the branch is up to date. It compares the
// head commit with the base branch.
func (e *Engine) branchIsUpToDate(ctx context.Context, logger *zap.Logger, repo *Repository, pr *PullRequest) bool {
	if pr.BaseRef == "" || pr.HeadOid() == "" {
		return false
	}

	behind, err := e.clt.BranchIsBehindBase(ctx, repo.Owner, repo.Name, pr.BaseRef, pr.HeadOid())
	if err != nil {
		logger.Info(
			"checking if branch is behind base branch failed",
			logfields.Event("branch_behind_check_failed"),
			zap.Error(err),
		)

		return false
	}

	return !behind
}

func (e *Engine) evicted(ctx context.Context, logger *zap.Logger, repo *Repository, pr *PullRequest, err error) {
	metrics.TransitionInc(repo, transitionEvicted)
	logger.Info(
		"pull request is removed from merging slot",
		logEventEvicted,
		logReasonUpdateFailed,
		zap.Error(err),
	)

	e.comment(ctx, logger, repo, pr, fmt.Sprintf(
		"Pull request was removed from the merge queue:\n```\n%s\n```",
		err,
	))
}

func (e *Engine) addLabel(ctx context.Context, logger *zap.Logger, label *Label, pr *PullRequest) error {
	if err := e.clt.AddLabel(ctx, label.ID, pr.ID); err != nil {
		return gatewayErr(err, "adding label %q to pull request #%d", label.Name, pr.Number)
	}

	logger.Debug("label added", logfields.Event("github_label_added"), logfields.Label(label.Name))

	return nil
}

func (e *Engine) removeLabel(ctx context.Context, logger *zap.Logger, label *Label, pr *PullRequest) error {
	if err := e.clt.RemoveLabel(ctx, label.ID, pr.ID); err != nil {
		return gatewayErr(err, "removing label %q from pull request #%d", label.Name, pr.Number)
	}

	logger.Debug("label removed", logfields.Event("github_label_removed"), logfields.Label(label.Name))

	return nil
}

func (e *Engine) comment(ctx context.Context, logger *zap.Logger, repo *Repository, pr *PullRequest, text string) {
	if !e.postComments {
		return
	}

	err := e.clt.CreateIssueComment(ctx, repo.Owner, repo.Name, pr.Number, text)
	if err != nil {
		logger.Warn(
			"creating pull request comment failed",
			logEventCommentFailed,
			zap.Error(err),
		)
	}
}

func checkNames(checks []*CheckResult) []string {
	result := make([]string, 0, len(checks))

	for _, c := range checks {
		result = append(result, fmt.Sprintf("%s (%s)", c.Name, c.Status))
	}

	return result
}
