package probe

import "context"

// MultiChecker runs several checkers against one target in order.
type MultiChecker struct {
	Checkers []Checker
}

func NewMultiChecker(checkers ...Checker) *MultiChecker {
	return &MultiChecker{Checkers: checkers}
}

func (m *MultiChecker) Run(ctx context.Context, target string) []CheckResult {
	results := make([]CheckResult, 0, len(m.Checkers))
	for _, c := range m.Checkers {
		results = append(results, c.Check(ctx, target))
	}
	return results
}

// Check succeeds with the first passing checker. Otherwise it reports the last failure.
func (m *MultiChecker) Check(ctx context.Context, target string) CheckResult {
	var last CheckResult
	for _, c := range m.Checkers {
		last = c.Check(ctx, target)
		if last.Success {
			return last
		}
	}
	return last
}
