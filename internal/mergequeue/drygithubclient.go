package mergequeue

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/mergequeue/internal/githubclt"
	"github.com/simplesurance/mergequeue/internal/logfields"
)

// DryGithubClient is a github-client that does not do any changes on github.
// All operations that could cause a change are simulated and always succeed.
// All all other operations are forwarded to a wrapped GithubClient.
type DryGithubClient struct {
	clt    GithubClient
	logger *zap.Logger
}

func NewDryGithubClient(clt GithubClient, logger *zap.Logger) *DryGithubClient {
	return &DryGithubClient{
		clt:    clt,
		logger: logger.Named("dry_github_client"),
	}
}

func (c *DryGithubClient) QueueLabels(ctx context.Context, owner, repo string, names githubclt.LabelNames) (*githubclt.QueueLabels, error) {
	return c.clt.QueueLabels(ctx, owner, repo, names)
}

func (c *DryGithubClient) AddLabel(_ context.Context, labelID, labelableID string) error {
	c.logger.Info(
		"simulated adding label, no label added on github",
		zap.String("github.label_id", labelID),
		logfields.PullRequestID(labelableID),
	)
	return nil
}

func (c *DryGithubClient) RemoveLabel(_ context.Context, labelID, labelableID string) error {
	c.logger.Info(
		"simulated removing label, no label removed on github",
		zap.String("github.label_id", labelID),
		logfields.PullRequestID(labelableID),
	)
	return nil
}

func (c *DryGithubClient) UpdateBranch(_ context.Context, pullRequestID, _ string) error {
	c.logger.Info(
		"simulated updating of github branch, returning update triggered",
		logfields.PullRequestID(pullRequestID),
	)
	return nil
}

func (c *DryGithubClient) MergePullRequest(_ context.Context, pullRequestID, _ string) error {
	c.logger.Info(
		"simulated merging of pull request, pull request was not merged",
		logfields.PullRequestID(pullRequestID),
	)
	return nil
}

func (c *DryGithubClient) BranchIsBehindBase(ctx context.Context, owner, repo, baseBranch, head string) (bool, error) {
	return c.clt.BranchIsBehindBase(ctx, owner, repo, baseBranch, head)
}

func (c *DryGithubClient) CreateIssueComment(_ context.Context, _, _ string, issueOrPRNr int, _ string) error {
	c.logger.Info(
		"simulated creating of github issue comment, no comment created on github",
		logfields.PullRequest(issueOrPRNr),
	)
	return nil
}

func (c *DryGithubClient) EnsureLabel(_ context.Context, owner, repo, name, _, _ string) (bool, error) {
	c.logger.Info(
		"simulated creating of label, no label created on github",
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.Label(name),
	)
	return false, nil
}
