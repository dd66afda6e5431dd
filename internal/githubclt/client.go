// Package githubclt provides a github API client.
package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/mergequeue/internal/goorderr"
	"github.com/simplesurance/mergequeue/internal/logfields"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "github_client"

// ErrAlreadyUpToDate is returned by UpdateBranch when the pull request branch
// already contains all changes of its base branch, no new commit was created.
var ErrAlreadyUpToDate = errors.New("branch is already up to date with base branch")

// alreadyUpToDateMessages are substrings of GitHub error messages that
// indicate that updating a branch or merging was a no-op.
var alreadyUpToDateMessages = []string{
	"already merged",
	"already up to date",
	"already up-to-date",
	"no new commits on the base branch",
}

// ErrHeadChanged is returned by UpdateBranch and MergePullRequest when the
// head branch of the pull request does not point to the expected commit
// anymore.
var ErrHeadChanged = errors.New("head branch of pull request changed")

// headChangedMessages are substrings of GitHub error messages that indicate
// that the expected head commit did not match.
var headChangedMessages = []string{
	"expected head sha didn’t match current head ref",
	"expected head sha didn't match",
	"expected head oid",
	"head branch was modified",
}

// New returns a new github api client.
func New(oauthAPItoken string) *Client {
	httpClient := newHTTPClient(oauthAPItoken)
	return &Client{
		restClt:    github.NewClient(httpClient),
		graphQLClt: githubv4.NewClient(httpClient),
		logger:     zap.L().Named(loggerName),
	}
}

func newHTTPClient(apiToken string) *http.Client {
	if apiToken == "" {
		return &http.Client{
			Timeout: DefaultHTTPClientTimeout,
		}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: apiToken},
	)

	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = DefaultHTTPClientTimeout

	return tc
}

// Client is an github API client.
// Errors caused by exceeded API rate limits or 5xx responses are wrapped in a
// goorderr.RetryableError.
// Error messages reported by GitHub are preserved verbatim.
type Client struct {
	restClt    *github.Client
	graphQLClt *githubv4.Client
	logger     *zap.Logger
}

// AddLabel adds the label with the node ID labelID to the pull request or
// issue with the node ID labelableID.
// Adding a label that is already set succeeds.
func (clt *Client) AddLabel(ctx context.Context, labelID, labelableID string) error {
	var m struct {
		AddLabelsToLabelable struct {
			ClientMutationID string
		} `graphql:"addLabelsToLabelable(input: $input)"`
	}

	if labelID == "" {
		// an empty label ID would be sent as null, be strict instead
		// of relying on the API rejecting it
		return errors.New("provided label id is empty")
	}

	input := githubv4.AddLabelsToLabelableInput{
		LabelableID: githubv4.ID(labelableID),
		LabelIDs:    []githubv4.ID{githubv4.ID(labelID)},
	}

	if err := clt.graphQLClt.Mutate(ctx, &m, input, nil); err != nil {
		return clt.wrapGraphQLRetryableErrors(err)
	}

	return nil
}

// RemoveLabel removes a label from a pull request or issue.
// If the pull request does not have the label, the operation succeeds.
func (clt *Client) RemoveLabel(ctx context.Context, labelID, labelableID string) error {
	var m struct {
		RemoveLabelsFromLabelable struct {
			ClientMutationID string
		} `graphql:"removeLabelsFromLabelable(input: $input)"`
	}

	if labelID == "" {
		return errors.New("provided label id is empty")
	}

	input := githubv4.RemoveLabelsFromLabelableInput{
		LabelableID: githubv4.ID(labelableID),
		LabelIDs:    []githubv4.ID{githubv4.ID(labelID)},
	}

	if err := clt.graphQLClt.Mutate(ctx, &m, input, nil); err != nil {
		return clt.wrapGraphQLRetryableErrors(err)
	}

	return nil
}

// UpdateBranch merges the base branch of the pull request into its head
// branch.
// When expectedHeadOid is not empty, the update is only done if the head
// branch still points to that commit.
// If GitHub reports that the branch contains all changes from the base branch,
// an error wrapping ErrAlreadyUpToDate is returned.
// If the head branch does not point to expectedHeadOid, an error wrapping
// ErrHeadChanged is returned.
func (clt *Client) UpdateBranch(ctx context.Context, pullRequestID, expectedHeadOid string) error {
	var m struct {
		UpdatePullRequestBranch struct {
			PullRequest struct {
				HeadRefOid string
			}
		} `graphql:"updatePullRequestBranch(input: $input)"`
	}

	input := githubv4.UpdatePullRequestBranchInput{
		PullRequestID: githubv4.ID(pullRequestID),
	}
	if expectedHeadOid != "" {
		input.ExpectedHeadOid = githubv4.NewGitObjectID(githubv4.GitObjectID(expectedHeadOid))
	}

	logger := clt.logger.With(
		logfields.PullRequestID(pullRequestID),
		logfields.Commit(expectedHeadOid),
	)

	err := clt.graphQLClt.Mutate(ctx, &m, input, nil)
	if err != nil {
		if isAlreadyUpToDateErr(err) {
			logger.Debug("branch is uptodate with base branch",
				logfields.Event("github_branch_uptodate_with_base"),
				zap.Error(err),
			)

			return fmt.Errorf("%w: %s", ErrAlreadyUpToDate, err)
		}

		if errMsgContainsAny(err, headChangedMessages) {
			logger.Debug("branch changed while trying to sync with base branch",
				logfields.Event("github_branch_update_failed_ref_outdated"),
				zap.Error(err),
			)

			return fmt.Errorf("%w: %s", ErrHeadChanged, err)
		}

		return clt.wrapGraphQLRetryableErrors(err)
	}

	logger.Debug("branch was updated with base branch",
		logfields.Event("github_branch_update_with_base_triggered"),
		zap.String("github.new_head_commit", m.UpdatePullRequestBranch.PullRequest.HeadRefOid),
	)

	return nil
}

// MergePullRequest squash-merges the pull request.
// When expectedHeadOid is not empty, the pull request is only merged if its
// head branch still points to that commit, otherwise an error wrapping
// ErrHeadChanged is returned.
func (clt *Client) MergePullRequest(ctx context.Context, pullRequestID, expectedHeadOid string) error {
	var m struct {
		MergePullRequest struct {
			PullRequest struct {
				Merged bool
			}
		} `graphql:"mergePullRequest(input: $input)"`
	}

	mergeMethod := githubv4.PullRequestMergeMethodSquash
	input := githubv4.MergePullRequestInput{
		PullRequestID: githubv4.ID(pullRequestID),
		MergeMethod:   &mergeMethod,
	}
	if expectedHeadOid != "" {
		input.ExpectedHeadOid = githubv4.NewGitObjectID(githubv4.GitObjectID(expectedHeadOid))
	}

	if err := clt.graphQLClt.Mutate(ctx, &m, input, nil); err != nil {
		if errMsgContainsAny(err, headChangedMessages) {
			return fmt.Errorf("%w: %s", ErrHeadChanged, err)
		}

		return clt.wrapGraphQLRetryableErrors(err)
	}

	if !m.MergePullRequest.PullRequest.Merged {
		return errors.New("github reported success for merge operation but pull request is not merged")
	}

	clt.logger.Debug("pull request merged",
		logfields.Event("github_pull_request_merged"),
		logfields.PullRequestID(pullRequestID),
		logfields.Commit(expectedHeadOid),
	)

	return nil
}

// CreateIssueComment creates a comment in a issue or pull request
func (clt *Client) CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error {
	_, _, err := clt.restClt.Issues.CreateComment(ctx, owner, repo, issueOrPRNr, &github.IssueComment{Body: &comment})
	return clt.wrapRetryableErrors(err)
}

// EnsureLabel creates the label in the repository if it does not exist.
// created is true if the label was created.
func (clt *Client) EnsureLabel(ctx context.Context, owner, repo, name, color, description string) (created bool, err error) {
	_, _, err = clt.restClt.Issues.GetLabel(ctx, owner, repo, name)
	if err == nil {
		return false, nil
	}

	var respErr *github.ErrorResponse
	if !errors.As(err, &respErr) || respErr.Response == nil || respErr.Response.StatusCode != http.StatusNotFound {
		return false, clt.wrapRetryableErrors(err)
	}

	_, _, err = clt.restClt.Issues.CreateLabel(ctx, owner, repo, &github.Label{
		Name:        &name,
		Color:       &color,
		Description: &description,
	})
	if err != nil {
		return false, clt.wrapRetryableErrors(err)
	}

	clt.logger.Info("label created",
		logfields.Event("github_label_created"),
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.Label(name),
	)

	return true, nil
}

// BranchIsBehindBase returns true if head is based on an old commit of
// baseBranch.
// head can be a branch name or a commit SHA.
func (clt *Client) BranchIsBehindBase(ctx context.Context, owner, repo, baseBranch, head string) (behind bool, err error) {
	cmp, _, err := clt.restClt.Repositories.CompareCommits(ctx, owner, repo, baseBranch, head, &github.ListOptions{PerPage: 1})
	if err != nil {
		return false, clt.wrapRetryableErrors(err)
	}

	if cmp.BehindBy == nil {
		return false, goorderr.NewRetryableAnytimeError(errors.New("github returned a nil BehindBy field"))
	}

	return *cmp.BehindBy > 0, nil
}

func isAlreadyUpToDateErr(err error) bool {
	return errMsgContainsAny(err, alreadyUpToDateMessages)
}

func errMsgContainsAny(err error, substrings []string) bool {
	msg := strings.ToLower(err.Error())

	for _, s := range substrings {
		if strings.Contains(msg, s) {
			return true
		}
	}

	return false
}

func (clt *Client) wrapRetryableErrors(err error) error {
	switch v := err.(type) {
	case *github.RateLimitError:
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			zap.Int("github_api_rate_limit", v.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", v.Rate.Reset.Time),
		)

		return goorderr.NewRetryableError(err, v.Rate.Reset.Time)

	case *github.ErrorResponse:
		if v.Response.StatusCode >= 500 && v.Response.StatusCode < 600 {
			return goorderr.NewRetryableAnytimeError(err)
		}
	}

	return err
}

var graphQlHTTPStatusErrRe = regexp.MustCompile(`^non-200 OK status code: ([0-9]+) .*`)

func (clt *Client) wrapGraphQLRetryableErrors(err error) error {
	matches := graphQlHTTPStatusErrRe.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return err
	}

	errcode, atoiErr := strconv.Atoi(matches[1])
	if atoiErr != nil {
		clt.logger.Info(
			"parsing http code from error string failed",
			zap.Error(atoiErr),
			zap.String("error_string", err.Error()),
			zap.String("http_errcode", matches[1]),
		)
		return err
	}

	if errcode >= 500 && errcode < 600 {
		return goorderr.NewRetryableAnytimeError(err)
	}

	return err
}
