package mergequeue

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/mergequeue/internal/logfields"
)

// LabelCreator creates repository labels.
type LabelCreator interface {
	EnsureLabel(ctx context.Context, owner, repo, name, color, description string) (created bool, err error)
}

// Retryer is an interface used for running LabelCreator methods repeatedly if
// they fail with a temporary error.
type Retryer interface {
	Run(context.Context, func(context.Context) error, []zap.Field) error
}

type labelSpec struct {
	name        string
	color       string
	description string
}

func (e *Engine) labelSpecs() []labelSpec {
	return []labelSpec{
		{
			name:        e.labelNames.Command,
			color:       "0e8a16",
			description: "add to queue the pull request for merging",
		},
		{
			name:        e.labelNames.Merging,
			color:       "fbca04",
			description: "pull request is updated, tested and merged",
		},
		{
			name:        e.labelNames.Queued,
			color:       "c5def5",
			description: "pull request waits in the merge queue",
		},
	}
}

// ProvisionLabels creates the labels used by the merge queue in the
// repository if they do not exist.
func (e *Engine) ProvisionLabels(ctx context.Context, clt LabelCreator, retryer Retryer, repo *Repository) error {
	for _, spec := range e.labelSpecs() {
		spec := spec
		logF := append(repo.LogFields(), logfields.Label(spec.name))

		err := retryer.Run(ctx, func(ctx context.Context) error {
			created, err := clt.EnsureLabel(ctx, repo.Owner, repo.Name, spec.name, spec.color, spec.description)
			if err != nil {
				return err
			}

			if created {
				e.logger.Info("label created", append(logF, logfields.Event("label_provisioned"))...)
			}

			return nil
		}, logF)
		if err != nil {
			return gatewayErr(err, "provisioning label %q in %s", spec.name, repo)
		}
	}

	return nil
}
