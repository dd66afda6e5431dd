package mergequeue

import (
	"context"

	"go.uber.org/zap"
)

// advance hands the merging slot to the next pull request in the queue.
// The merging label is removed from vacated, if it is not nil.
// Queued pull requests are promoted in queue order until one's branch
// update was triggered. Pull requests whose branch is already up to date are
// merged directly and the next one is promoted.
// Pull requests whose branch update or merge fails are removed from the
// queue.
func (e *Engine) advance(ctx context.Context, logger *zap.Logger, snapshot *QueueSnapshot, vacated *PullRequest) error {
	repo := &snapshot.Repository

	if vacated != nil {
		if err := e.removeLabel(ctx, logger, snapshot.Merging, vacated); err != nil {
			return err
		}
	}

	candidates := snapshot.Queued.PullRequests

	for i := 0; i < len(candidates); i++ {
		pr := candidates[i]
		prLogger := logger.With(
			zap.Int("candidate.pull_request", pr.Number),
			zap.Int("candidate.queue_position", i+1),
		)

		if err := e.removeLabel(ctx, prLogger, snapshot.Queued, pr); err != nil {
			return err
		}

		if vacated != nil && pr.ID == vacated.ID {
			prLogger.Warn(
				"pull request had the merging and queued label, removed it from the queue",
				logEventDequeued,
			)
			continue
		}

		if !pr.IsOpen() {
			prLogger.Info(
				"removed pull request from queue, it is not open",
				logEventDequeued,
				logReasonPRClosed,
			)
			continue
		}

		if err := e.addLabel(ctx, prLogger, snapshot.Merging, pr); err != nil {
			return err
		}

		metrics.TransitionInc(repo, transitionPromoted)
		prLogger.Info("pull request moved from queue into merging slot", logEventPromoted)

		merged, err := e.updateOrMerge(ctx, prLogger, repo, pr)
		if err == nil && !merged {
			return nil
		}

		if err != nil {
			e.evicted(ctx, prLogger, repo, pr, err)
		}

		if err := e.removeLabel(ctx, prLogger, snapshot.Merging, pr); err != nil {
			return err
		}
	}

	if len(candidates) == 0 {
		logger.Debug("queue is empty, merging slot is idle", logEventSlotIdle)
		return nil
	}

	logger.Info(
		"no queued pull request could be moved into merging slot, slot is idle",
		logEventSlotIdle,
		logReasonQueueExhausted,
		zap.Int("processed_queued_pull_requests", len(candidates)),
	)

	return nil
}
