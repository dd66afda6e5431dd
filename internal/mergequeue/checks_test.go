package mergequeue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func commitWithChecks(checks ...*CheckResult) *Commit {
	return &Commit{ID: "C_1", Oid: "sha1", Checks: checks}
}

func TestIsPassing(t *testing.T) {
	defaultPassing := []string{"success", "neutral"}

	testcases := []struct {
		name     string
		skip     []string
		passing  []string
		commit   *Commit
		expected bool
	}{
		{
			name:     "skippedLintFailure",
			skip:     []string{"lint"},
			passing:  defaultPassing,
			commit:   commitWithChecks(&CheckResult{Name: "lint", Status: CheckStatusFailure, Completed: true}, &CheckResult{Name: "build", Status: CheckStatusSuccess, Completed: true}),
			expected: true,
		},
		{
			name:     "failure",
			passing:  defaultPassing,
			commit:   commitWithChecks(&CheckResult{Name: "lint", Status: CheckStatusFailure, Completed: true}, &CheckResult{Name: "build", Status: CheckStatusSuccess, Completed: true}),
			expected: false,
		},
		{
			name:     "neutral",
			passing:  defaultPassing,
			commit:   commitWithChecks(&CheckResult{Name: "build", Status: CheckStatusNeutral, Completed: true}),
			expected: true,
		},
		{
			name:     "absentResult",
			passing:  defaultPassing,
			commit:   commitWithChecks(&CheckResult{Name: "build", Status: CheckStatusAbsent}),
			expected: true,
		},
		{
			name:     "noChecks",
			passing:  defaultPassing,
			commit:   commitWithChecks(),
			expected: true,
		},
		{
			name:     "pending",
			passing:  defaultPassing,
			commit:   commitWithChecks(&CheckResult{Name: "build", Status: CheckStatusPending}),
			expected: false,
		},
		{
			name:     "skippedPending",
			skip:     []string{"build"},
			passing:  defaultPassing,
			commit:   commitWithChecks(&CheckResult{Name: "build", Status: CheckStatusPending}),
			expected: true,
		},
		{
			name:     "cancelled",
			passing:  defaultPassing,
			commit:   commitWithChecks(&CheckResult{Name: "build", Status: CheckStatusCancelled, Completed: true}),
			expected: false,
		},
		{
			name:     "timedOut",
			passing:  defaultPassing,
			commit:   commitWithChecks(&CheckResult{Name: "build", Status: CheckStatusTimedOut, Completed: true}),
			expected: false,
		},
		{
			name:     "actionRequired",
			passing:  defaultPassing,
			commit:   commitWithChecks(&CheckResult{Name: "build", Status: CheckStatusActionRequired, Completed: true}),
			expected: false,
		},
		{
			name:     "skippedIsConfiguredAsPassing",
			passing:  []string{"SUCCESS", "Neutral", "skipped"},
			commit:   commitWithChecks(&CheckResult{Name: "build", Status: CheckStatusSkipped, Completed: true}),
			expected: true,
		},
		{
			name:     "neutralNotConfiguredAsPassing",
			passing:  []string{"success"},
			commit:   commitWithChecks(&CheckResult{Name: "build", Status: CheckStatusNeutral, Completed: true}),
			expected: false,
		},
		{
			name:     "nilCommit",
			passing:  defaultPassing,
			expected: false,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			policy := NewCheckPolicy(tc.skip, tc.passing)
			assert.Equal(t, tc.expected, policy.IsPassing(tc.commit))
		})
	}
}

func TestBlockingChecks(t *testing.T) {
	policy := NewCheckPolicy([]string{"lint"}, []string{"success"})

	blocking := policy.BlockingChecks(commitWithChecks(
		&CheckResult{Name: "lint", Status: CheckStatusFailure, Completed: true},
		&CheckResult{Name: "build", Status: CheckStatusSuccess, Completed: true},
		&CheckResult{Name: "test", Status: CheckStatusPending},
		&CheckResult{Name: "e2e", Status: CheckStatusError, Completed: true},
	))

	assert.Equal(t, []string{"test (pending)", "e2e (error)"}, checkNames(blocking))
}

func TestMissingRequiredChecks(t *testing.T) {
	commit := commitWithChecks(
		&CheckResult{Name: "build", Status: CheckStatusFailure, Completed: true},
		&CheckResult{Name: "test", Status: CheckStatusPending},
	)

	assert.Empty(t, MissingRequiredChecks(commit, nil))
	assert.Empty(t, MissingRequiredChecks(commit, []string{"build"}))
	assert.Equal(t, []string{"test", "lint"}, MissingRequiredChecks(commit, []string{"build", "test", "lint"}))
	assert.Equal(t, []string{"build"}, MissingRequiredChecks(nil, []string{"build"}))
}
