package mergequeue

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/simplesurance/mergequeue/internal/githubclt"
)

const (
	repoOwner = "testman"
	repo      = "repo"
	repoID    = "R_1"

	commandLabel = "command:queue-for-merging"
	mergingLabel = "bot:merging"
	queuedLabel  = "bot:queued"
)

var testRepository = Repository{Owner: repoOwner, Name: repo}

func labelID(name string) string {
	return "L_" + name
}

func prID(nr int) string {
	return fmt.Sprintf("PR_%d", nr)
}

func commitID(nr int) string {
	return fmt.Sprintf("C_%d", nr)
}

func commitOid(nr int) string {
	return fmt.Sprintf("sha%d", nr)
}

type fakePR struct {
	number int
	state  string
	labels []string
	checks []*githubclt.CheckRun

	updateErrs []error
	mergeErr   error
	// upToDate is returned inverted by BranchIsBehindBase
	upToDate bool
}

// fakeHost is an in-memory GitHub repository that stores the label
// assignments in the order they were done.
type fakeHost struct {
	t    *testing.T
	lock sync.Mutex

	prs map[string]*fakePR
	// holders contains per label name the pull request ids in the order the
	// label was added
	holders map[string][]string

	calls []string
}

func newFakeHost(t *testing.T) *fakeHost {
	return &fakeHost{
		t:   t,
		prs: map[string]*fakePR{},
		holders: map[string][]string{
			commandLabel: nil,
			mergingLabel: nil,
			queuedLabel:  nil,
		},
	}
}

func successfulChecks() []*githubclt.CheckRun {
	return []*githubclt.CheckRun{
		{Name: "build", Status: "COMPLETED", Conclusion: "SUCCESS"},
		{Name: "test", Status: "COMPLETED", Conclusion: "SUCCESS"},
	}
}

// addPR creates an open pull request with successful checks and assigns the
// labels to it.
func (h *fakeHost) addPR(nr int, labels ...string) *fakePR {
	pr := fakePR{
		number: nr,
		state:  "OPEN",
		checks: successfulChecks(),
	}
	h.prs[prID(nr)] = &pr

	for _, l := range labels {
		h.assign(l, prID(nr))
	}

	return &pr
}

func (h *fakeHost) pr(nr int) *fakePR {
	pr, exist := h.prs[prID(nr)]
	if !exist {
		h.t.Fatalf("pull request %d does not exist", nr)
	}

	return pr
}

func (h *fakeHost) assign(label, id string) {
	for _, holder := range h.holders[label] {
		if holder == id {
			return
		}
	}

	h.holders[label] = append(h.holders[label], id)
	h.prs[id].labels = append(h.prs[id].labels, label)
}

func (h *fakeHost) unassign(label, id string) {
	h.holders[label] = remove(h.holders[label], id)
	h.prs[id].labels = remove(h.prs[id].labels, label)
}

func remove(sl []string, elem string) []string {
	result := make([]string, 0, len(sl))

	for _, e := range sl {
		if e != elem {
			result = append(result, e)
		}
	}

	return result
}

func labelName(id string) string {
	for _, name := range []string{commandLabel, mergingLabel, queuedLabel} {
		if labelID(name) == id {
			return name
		}
	}

	return ""
}

// holderNumbers returns the numbers of the pull requests that have the label
// in assignment order.
func (h *fakeHost) holderNumbers(label string) []int {
	h.lock.Lock()
	defer h.lock.Unlock()

	result := []int{}
	for _, id := range h.holders[label] {
		result = append(result, h.prs[id].number)
	}

	return result
}

func (h *fakeHost) resetCalls() {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.calls = nil
}

func (h *fakeHost) recordedCalls() []string {
	h.lock.Lock()
	defer h.lock.Unlock()

	return append([]string(nil), h.calls...)
}

// mutations returns the recorded calls that modify state on the host.
func (h *fakeHost) mutations() []string {
	var result []string

	for _, c := range h.recordedCalls() {
		if c != "query" {
			result = append(result, c)
		}
	}

	return result
}

// assertQueueInvariants fails the test when more than 1 pull request has the
// merging label or a pull request has the merging and queued label.
func (h *fakeHost) assertQueueInvariants() {
	h.t.Helper()

	h.lock.Lock()
	defer h.lock.Unlock()

	assert.LessOrEqual(h.t, len(h.holders[mergingLabel]), 1, "more than 1 pull request has the merging label")

	for _, id := range h.holders[mergingLabel] {
		for _, q := range h.holders[queuedLabel] {
			assert.NotEqual(h.t, id, q, "pull request has merging and queued label")
		}
	}
}

func (h *fakeHost) QueueLabels(_ context.Context, owner, repoName string, names githubclt.LabelNames) (*githubclt.QueueLabels, error) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.calls = append(h.calls, "query")

	if owner != repoOwner || repoName != repo {
		return nil, fmt.Errorf("repository %s/%s: %w", owner, repoName, githubclt.ErrLabelNotFound)
	}

	label := func(name string) *githubclt.Label {
		if _, exist := h.holders[name]; !exist {
			return nil
		}

		l := githubclt.Label{ID: labelID(name), Name: name}

		for _, id := range h.holders[name] {
			pr := h.prs[id]

			l.PullRequests = append(l.PullRequests, &githubclt.PullRequest{
				ID:          id,
				Number:      pr.number,
				Title:       fmt.Sprintf("pr %d", pr.number),
				State:       pr.state,
				BaseRefName: "main",
				HeadRefName: fmt.Sprintf("branch%d", pr.number),
				Labels:      append([]string(nil), pr.labels...),
				HeadCommit: &githubclt.Commit{
					ID:        commitID(pr.number),
					Oid:       commitOid(pr.number),
					CheckRuns: append([]*githubclt.CheckRun(nil), pr.checks...),
				},
			})
		}

		return &l
	}

	return &githubclt.QueueLabels{
		RepositoryID: repoID,
		Command:      label(names.Command),
		Merging:      label(names.Merging),
		Queued:       label(names.Queued),
	}, nil
}

func (h *fakeHost) AddLabel(_ context.Context, lID, labelableID string) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	name := labelName(lID)
	h.calls = append(h.calls, fmt.Sprintf("add %s #%d", name, h.prs[labelableID].number))
	h.assign(name, labelableID)

	return nil
}

func (h *fakeHost) RemoveLabel(_ context.Context, lID, labelableID string) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	name := labelName(lID)
	h.calls = append(h.calls, fmt.Sprintf("remove %s #%d", name, h.prs[labelableID].number))
	h.unassign(name, labelableID)

	return nil
}

func (h *fakeHost) UpdateBranch(_ context.Context, pullRequestID, expectedHeadOid string) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	pr := h.prs[pullRequestID]
	h.calls = append(h.calls, fmt.Sprintf("update #%d", pr.number))

	assert.Equal(h.t, commitOid(pr.number), expectedHeadOid)

	if len(pr.updateErrs) == 0 {
		return nil
	}

	err := pr.updateErrs[0]
	pr.updateErrs = pr.updateErrs[1:]

	return err
}

func (h *fakeHost) MergePullRequest(_ context.Context, pullRequestID, expectedHeadOid string) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	pr := h.prs[pullRequestID]
	h.calls = append(h.calls, fmt.Sprintf("merge #%d", pr.number))

	assert.Equal(h.t, commitOid(pr.number), expectedHeadOid)

	if pr.mergeErr != nil {
		return pr.mergeErr
	}

	pr.state = "MERGED"

	return nil
}

func (h *fakeHost) BranchIsBehindBase(_ context.Context, owner, repoName, baseBranch, head string) (bool, error) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.calls = append(h.calls, "query")

	assert.Equal(h.t, repoOwner, owner)
	assert.Equal(h.t, repo, repoName)
	assert.Equal(h.t, "main", baseBranch)

	for _, pr := range h.prs {
		if commitOid(pr.number) == head {
			return !pr.upToDate, nil
		}
	}

	return false, fmt.Errorf("commit %s not found", head)
}

func (h *fakeHost) CreateIssueComment(_ context.Context, owner, repoName string, issueOrPRNr int, _ string) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	assert.Equal(h.t, repoOwner, owner)
	assert.Equal(h.t, repo, repoName)

	h.calls = append(h.calls, fmt.Sprintf("comment #%d", issueOrPRNr))

	return nil
}
