package mergequeue

import (
	"github.com/google/go-github/v59/github"
)

type labeledPullRequestEvent interface {
	GetAction() string
	GetLabel() *github.Label
	GetPullRequest() *github.PullRequest
	GetRepo() *github.Repository
	GetSender() *github.User
}

// EventFromWebhook converts a GitHub webhook event that was parsed with
// github.ParseWebHook() to an Event.
// nil is returned for events that are not relevant for the merge queue.
func EventFromWebhook(ghEvent any, commandLabel string) Event {
	switch ev := ghEvent.(type) {
	case *github.PullRequestEvent:
		return admissionFromLabeledEvent(ev, commandLabel)

	case *github.PullRequestTargetEvent:
		return admissionFromLabeledEvent(ev, commandLabel)

	case *github.StatusEvent:
		if ev.GetState() == "pending" {
			return nil
		}

		commitRef := ev.GetCommit().GetNodeID()
		if commitRef == "" {
			commitRef = ev.GetSHA()
		}

		return &CommitStatusSettled{
			Repository: repositoryFromEvent(ev.GetRepo()),
			Commit:     commitRef,
			Outcome:    Outcome(ev.GetState()),
		}

	case *github.CheckSuiteEvent:
		suite := ev.GetCheckSuite()
		if ev.GetAction() != "completed" || suite.GetConclusion() == "" {
			return nil
		}

		return &CommitStatusSettled{
			Repository: repositoryFromEvent(ev.GetRepo()),
			Commit:     suite.GetHeadSHA(),
			Outcome:    outcomeFromConclusion(suite.GetConclusion()),
		}

	case *github.CheckRunEvent:
		run := ev.GetCheckRun()
		if ev.GetAction() != "completed" || run.GetConclusion() == "" {
			return nil
		}

		return &CommitStatusSettled{
			Repository: repositoryFromEvent(ev.GetRepo()),
			Commit:     run.GetHeadSHA(),
			Outcome:    outcomeFromConclusion(run.GetConclusion()),
		}

	default:
		return nil
	}
}

func admissionFromLabeledEvent(ev labeledPullRequestEvent, commandLabel string) Event {
	if ev.GetAction() != "labeled" || ev.GetLabel().GetName() != commandLabel {
		return nil
	}

	pr := ev.GetPullRequest()
	if pr == nil {
		return nil
	}

	return &QueueAdmissionRequested{
		Repository:        repositoryFromEvent(ev.GetRepo()),
		PullRequestID:     pr.GetNodeID(),
		PullRequestNumber: pr.GetNumber(),
		Sender:            ev.GetSender().GetLogin(),
	}
}

func repositoryFromEvent(repo *github.Repository) Repository {
	return Repository{
		ID:    repo.GetNodeID(),
		Owner: repo.GetOwner().GetLogin(),
		Name:  repo.GetName(),
	}
}

func outcomeFromConclusion(conclusion string) Outcome {
	if conclusion == "success" {
		return OutcomeSuccess
	}

	return OutcomeFailure
}
