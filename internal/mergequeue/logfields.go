package mergequeue

import (
	"github.com/simplesurance/mergequeue/internal/logfields"
)

var (
	logEventEventIgnored      = logfields.Event("event_ignored")
	logEventEventStale        = logfields.Event("event_stale")
	logEventAdmissionRejected = logfields.Event("admission_rejected")
	logEventAdmissionSkipped  = logfields.Event("admission_skipped")
	logEventEnqueued          = logfields.Event("enqueued")
	logEventPromoted          = logfields.Event("promoted_to_merging")
	logEventEvicted           = logfields.Event("evicted_from_merging")
	logEventDequeued          = logfields.Event("dequeued")
	logEventBranchUpdated     = logfields.Event("branch_update_triggered")
	logEventHeadChanged       = logfields.Event("head_branch_changed")
	logEventMerged            = logfields.Event("pull_request_merged")
	logEventMergeFailed       = logfields.Event("merge_failed")
	logEventChecksPending     = logfields.Event("checks_not_passing")
	logEventSlotIdle          = logfields.Event("merging_slot_idle")
	logEventCommentFailed     = logfields.Event("github_comment_failed")

	logReasonPRClosed       = logfields.Reason("pull_request_not_open")
	logReasonAlreadyQueued  = logfields.Reason("already_queued_or_merging")
	logReasonAlreadyHandled = logfields.Reason("command_label_absent")
	logReasonQueueExhausted = logfields.Reason("queue_exhausted")
	logReasonSlotOccupied   = logfields.Reason("merging_slot_occupied")
	logReasonUpdateFailed   = logfields.Reason("branch_update_failed")
)
