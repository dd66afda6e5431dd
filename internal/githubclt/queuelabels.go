package githubclt

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shurcooL/githubv4"
)

const (
	queueLabelsPullRequestsFirst = 100
	queueLabelsPRLabelsFirst     = 20
	queueLabelsCheckSuitesFirst  = 50
	queueLabelsLabeledEventsLast = 25
)

// ErrLabelNotFound is returned when a label or the repository does not exist.
var ErrLabelNotFound = fmt.Errorf("label not found")

// LabelNames are the names of the labels that are queried by QueueLabels.
type LabelNames struct {
	Command string
	Merging string
	Queued  string
}

// QueueLabels is the result of a QueueLabels query.
type QueueLabels struct {
	RepositoryID string
	Command      *Label
	Merging      *Label
	Queued       *Label
}

// Label is a GitHub label with the pull requests that have it assigned.
// PullRequests are sorted by the time the label was added to them, the
// oldest first.
type Label struct {
	ID           string
	Name         string
	PullRequests []*PullRequest
}

// PullRequest is a pull request as returned by the QueueLabels query.
type PullRequest struct {
	ID          string
	Number      int
	Title       string
	State       string
	BaseRefName string
	HeadRefName string
	Labels      []string
	// LabeledAt is the time the label of the result was added to the pull
	// request. It is zero if the event was not found in the last
	// timeline events of the pull request.
	LabeledAt time.Time
	// HeadCommit is nil if the pull request has no commits.
	HeadCommit *Commit
}

// Commit is the latest commit of a pull request.
type Commit struct {
	// ID is the GraphQL node ID of the commit.
	ID string
	// Oid is the git SHA of the commit.
	Oid string
	// CheckRuns contains the latest check run of every check suite of the
	// commit. Check suites without runs are omitted.
	CheckRuns []*CheckRun
	// StatusContexts contains the commit statuses.
	StatusContexts []*StatusContext
}

// CheckRun is the latest reported result of a check suite.
// Status and Conclusion are the GitHub enum values, e.g. "COMPLETED" and
// "SUCCESS". Conclusion is empty if the check run did not complete yet.
type CheckRun struct {
	Name       string
	Status     string
	Conclusion string
}

// StatusContext is a commit status, State is the GitHub enum value e.g.
// "SUCCESS" or "PENDING".
type StatusContext struct {
	Context string
	State   string
}

type queryCheckRun struct {
	Name       string
	Status     githubv4.CheckStatusState
	Conclusion githubv4.CheckConclusionState
}

type queryStatusContext struct {
	Context string
	State   githubv4.StatusState
}

type queryPullRequest struct {
	ID          string
	Number      int
	Title       string
	State       githubv4.PullRequestState
	BaseRefName string
	HeadRefName string
	Labels      struct {
		Nodes []struct {
			Name string
		}
	} `graphql:"labels(first: $prLabelsFirst)"`
	LabeledEvents struct {
		Nodes []struct {
			LabeledEvent struct {
				CreatedAt githubv4.DateTime
				Label     struct {
					Name string
				}
			} `graphql:"... on LabeledEvent"`
		}
	} `graphql:"labeledEvents: timelineItems(itemTypes: [LABELED_EVENT], last: $labeledEventsLast)"`
	Commits struct {
		Nodes []struct {
			Commit struct {
				ID          string
				Oid         string
				CheckSuites struct {
					Nodes []struct {
						CheckRuns struct {
							Nodes []queryCheckRun
						} `graphql:"checkRuns(last: 1)"`
					}
				} `graphql:"checkSuites(first: $checkSuitesFirst)"`
				Status *struct {
					Contexts []queryStatusContext
				}
			}
		}
	} `graphql:"commits(last: 1)"`
}

type queryLabel struct {
	ID           string
	Name         string
	PullRequests struct {
		Nodes []queryPullRequest
	} `graphql:"pullRequests(first: $pullRequestsFirst)"`
}

type queryQueueLabels struct {
	Repository *struct {
		ID      string
		Command *queryLabel `graphql:"command: label(name: $commandLabel)"`
		Merging *queryLabel `graphql:"merging: label(name: $mergingLabel)"`
		Queued  *queryLabel `graphql:"queued: label(name: $queuedLabel)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// QueueLabels retrieves the 3 labels and the pull requests that have them
// assigned, including their latest commit and its check results, in a single
// GraphQL query.
// If the repository or one of the labels does not exist, an error wrapping
// ErrLabelNotFound is returned.
func (clt *Client) QueueLabels(ctx context.Context, owner, repo string, names LabelNames) (*QueueLabels, error) {
	var q queryQueueLabels

	vars := map[string]any{
		"owner":             githubv4.String(owner),
		"name":              githubv4.String(repo),
		"commandLabel":      githubv4.String(names.Command),
		"mergingLabel":      githubv4.String(names.Merging),
		"queuedLabel":       githubv4.String(names.Queued),
		"pullRequestsFirst": githubv4.Int(queueLabelsPullRequestsFirst),
		"prLabelsFirst":     githubv4.Int(queueLabelsPRLabelsFirst),
		"checkSuitesFirst":  githubv4.Int(queueLabelsCheckSuitesFirst),
		"labeledEventsLast": githubv4.Int(queueLabelsLabeledEventsLast),
	}

	if err := clt.graphQLClt.Query(ctx, &q, vars); err != nil {
		return nil, clt.wrapGraphQLRetryableErrors(err)
	}

	if q.Repository == nil {
		return nil, fmt.Errorf("repository %s/%s: %w", owner, repo, ErrLabelNotFound)
	}

	result := QueueLabels{RepositoryID: q.Repository.ID}

	for _, l := range []struct {
		name string
		in   *queryLabel
		out  **Label
	}{
		{names.Command, q.Repository.Command, &result.Command},
		{names.Merging, q.Repository.Merging, &result.Merging},
		{names.Queued, q.Repository.Queued, &result.Queued},
	} {
		if l.in == nil {
			return nil, fmt.Errorf("%q in repository %s/%s: %w", l.name, owner, repo, ErrLabelNotFound)
		}

		*l.out = toLabel(l.in)
	}

	return &result, nil
}

func toLabel(in *queryLabel) *Label {
	result := Label{
		ID:           in.ID,
		Name:         in.Name,
		PullRequests: make([]*PullRequest, 0, len(in.PullRequests.Nodes)),
	}

	for i := range in.PullRequests.Nodes {
		pr := toPullRequest(&in.PullRequests.Nodes[i])
		pr.LabeledAt = labeledAt(&in.PullRequests.Nodes[i], in.Name)

		result.PullRequests = append(result.PullRequests, pr)
	}

	// GitHub returns the pull requests of a label ordered by their
	// creation, not by the time the label was added
	sort.SliceStable(result.PullRequests, func(i, j int) bool {
		return result.PullRequests[i].LabeledAt.Before(result.PullRequests[j].LabeledAt)
	})

	return &result
}

// labeledAt returns the time of the most recent LabeledEvent for labelName.
func labeledAt(in *queryPullRequest, labelName string) time.Time {
	var result time.Time

	for _, n := range in.LabeledEvents.Nodes {
		ev := n.LabeledEvent
		if ev.Label.Name != labelName {
			continue
		}

		if ev.CreatedAt.Time.After(result) {
			result = ev.CreatedAt.Time
		}
	}

	return result
}

func toPullRequest(in *queryPullRequest) *PullRequest {
	result := PullRequest{
		ID:          in.ID,
		Number:      in.Number,
		Title:       in.Title,
		State:       string(in.State),
		BaseRefName: in.BaseRefName,
		HeadRefName: in.HeadRefName,
		Labels:      make([]string, 0, len(in.Labels.Nodes)),
	}

	for _, l := range in.Labels.Nodes {
		result.Labels = append(result.Labels, l.Name)
	}

	if len(in.Commits.Nodes) == 0 {
		return &result
	}

	commit := in.Commits.Nodes[0].Commit
	result.HeadCommit = &Commit{
		ID:  commit.ID,
		Oid: commit.Oid,
	}

	for _, suite := range commit.CheckSuites.Nodes {
		if len(suite.CheckRuns.Nodes) == 0 {
			continue
		}

		run := suite.CheckRuns.Nodes[0]
		result.HeadCommit.CheckRuns = append(result.HeadCommit.CheckRuns, &CheckRun{
			Name:       run.Name,
			Status:     string(run.Status),
			Conclusion: string(run.Conclusion),
		})
	}

	if commit.Status != nil {
		for _, sc := range commit.Status.Contexts {
			result.HeadCommit.StatusContexts = append(result.HeadCommit.StatusContexts, &StatusContext{
				Context: sc.Context,
				State:   string(sc.State),
			})
		}
	}

	return &result
}
