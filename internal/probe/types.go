package probe

import "context"

// CheckResult holds the outcome of a single probe.
// StatusCode is 0 for transport and DNS failures.
type CheckResult struct {
	Name       string  `json:"name"`
	Success    bool    `json:"success"`
	Message    string  `json:"message"`
	StatusCode int     `json:"status_code,omitempty"`
	LatencyMS  float64 `json:"latency_ms,omitempty"`
}

// Checker is implemented by any reachability check (HTTP, DNS).
type Checker interface {
	Check(ctx context.Context, target string) CheckResult
}
