package mergequeue

import "strings"

// CheckPolicy decides if the checks of a commit passed.
type CheckPolicy struct {
	skip    map[string]struct{}
	passing map[CheckStatus]struct{}
}

// NewCheckPolicy returns a CheckPolicy.
// Results of checks in checksToSkip are ignored.
// passingStates are the check states that count as passed, matched case
// insensitive.
func NewCheckPolicy(checksToSkip, passingStates []string) *CheckPolicy {
	p := CheckPolicy{
		skip:    make(map[string]struct{}, len(checksToSkip)),
		passing: make(map[CheckStatus]struct{}, len(passingStates)),
	}

	for _, name := range checksToSkip {
		p.skip[name] = struct{}{}
	}

	for _, state := range passingStates {
		p.passing[CheckStatus(strings.ToLower(state))] = struct{}{}
	}

	return &p
}

func (p *CheckPolicy) isSkipped(name string) bool {
	_, exist := p.skip[name]
	return exist
}

func (p *CheckPolicy) isBlocking(c *CheckResult) bool {
	if c.Status == CheckStatusAbsent || p.isSkipped(c.Name) {
		return false
	}

	_, passed := p.passing[c.Status]
	return !passed
}

// IsPassing returns true if no check of the commit blocks merging.
// A check blocks if it is not skipped and its latest result is not one of the
// passing states. Checks without a result do not block.
// IsPassing returns false if commit is nil.
func (p *CheckPolicy) IsPassing(commit *Commit) bool {
	if commit == nil {
		return false
	}

	for _, c := range commit.Checks {
		if p.isBlocking(c) {
			return false
		}
	}

	return true
}

// BlockingChecks returns the checks of the commit that prevent it from
// passing.
func (p *CheckPolicy) BlockingChecks(commit *Commit) []*CheckResult {
	var result []*CheckResult

	if commit == nil {
		return nil
	}

	for _, c := range commit.Checks {
		if p.isBlocking(c) {
			result = append(result, c)
		}
	}

	return result
}

// MissingRequiredChecks returns the names of checks in required that did not
// complete for the commit. A check that was not reported counts as not
// completed.
func MissingRequiredChecks(commit *Commit, required []string) []string {
	var missing []string

	for _, name := range required {
		if commit == nil || !hasCompletedCheck(commit, name) {
			missing = append(missing, name)
		}
	}

	return missing
}

func hasCompletedCheck(commit *Commit, name string) bool {
	for _, c := range commit.Checks {
		if c.Name == name && c.Completed {
			return true
		}
	}

	return false
}
