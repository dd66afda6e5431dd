package mergequeue

import (
	"context"
	"strings"

	"github.com/simplesurance/mergequeue/internal/githubclt"
)

// readQueueState fetches the current state of the 3 queue labels from
// GitHub in a single query.
func (e *Engine) readQueueState(ctx context.Context, repo *Repository) (*QueueSnapshot, error) {
	res, err := e.clt.QueueLabels(ctx, repo.Owner, repo.Name, e.labelNames)
	if err != nil {
		return nil, gatewayErr(err, "reading queue state of %s", repo)
	}

	return newQueueSnapshot(repo, res), nil
}

func newQueueSnapshot(repo *Repository, res *githubclt.QueueLabels) *QueueSnapshot {
	return &QueueSnapshot{
		Repository: Repository{
			ID:    res.RepositoryID,
			Owner: repo.Owner,
			Name:  repo.Name,
		},
		Command: toLabel(res.Command, LabelKindCommandQueue),
		Merging: toLabel(res.Merging, LabelKindMerging),
		Queued:  toLabel(res.Queued, LabelKindQueued),
	}
}

func toLabel(l *githubclt.Label, kind LabelKind) *Label {
	result := Label{
		ID:           l.ID,
		Name:         l.Name,
		Kind:         kind,
		PullRequests: make([]*PullRequest, 0, len(l.PullRequests)),
	}

	for _, pr := range l.PullRequests {
		result.PullRequests = append(result.PullRequests, toPullRequest(pr))
	}

	return &result
}

func toPullRequest(pr *githubclt.PullRequest) *PullRequest {
	result := PullRequest{
		ID:      pr.ID,
		Number:  pr.Number,
		Title:   pr.Title,
		State:   PullRequestState(pr.State),
		BaseRef: pr.BaseRefName,
		HeadRef: pr.HeadRefName,
		Labels:  pr.Labels,
	}

	if pr.HeadCommit != nil {
		result.LatestCommit = toCommit(pr.HeadCommit)
	}

	return &result
}

func toCommit(c *githubclt.Commit) *Commit {
	result := Commit{
		ID:     c.ID,
		Oid:    c.Oid,
		Checks: make([]*CheckResult, 0, len(c.CheckRuns)+len(c.StatusContexts)),
	}

	for _, run := range c.CheckRuns {
		result.Checks = append(result.Checks, checkRunResult(run))
	}

	for _, sc := range c.StatusContexts {
		result.Checks = append(result.Checks, statusContextResult(sc))
	}

	return &result
}

// checkRunResult converts a GitHub check run.
// Status is one of REQUESTED, QUEUED, IN_PROGRESS, WAITING, PENDING and
// COMPLETED, the conclusion is only set for completed runs.
func checkRunResult(run *githubclt.CheckRun) *CheckResult {
	if !strings.EqualFold(run.Status, "COMPLETED") {
		return &CheckResult{
			Name:   run.Name,
			Status: CheckStatusPending,
		}
	}

	status := CheckStatus(strings.ToLower(run.Conclusion))
	if status == CheckStatusAbsent {
		status = CheckStatusNeutral
	}

	return &CheckResult{
		Name:      run.Name,
		Status:    status,
		Completed: true,
	}
}

// statusContextResult converts a commit status.
// The state is one of EXPECTED, PENDING, SUCCESS, FAILURE and ERROR.
func statusContextResult(sc *githubclt.StatusContext) *CheckResult {
	switch strings.ToUpper(sc.State) {
	case "EXPECTED", "PENDING":
		return &CheckResult{
			Name:   sc.Context,
			Status: CheckStatusPending,
		}

	default:
		return &CheckResult{
			Name:      sc.Context,
			Status:    CheckStatus(strings.ToLower(sc.State)),
			Completed: true,
		}
	}
}
