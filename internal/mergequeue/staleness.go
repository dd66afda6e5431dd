package mergequeue

// isStale returns true if commitRef does not reference the latest commit of
// the tracked pull request. commitRef can be the node ID or the SHA of the
// commit.
func isStale(commitRef string, tracked *PullRequest) bool {
	if tracked == nil || tracked.LatestCommit == nil {
		return true
	}

	return !tracked.LatestCommit.Matches(commitRef)
}
