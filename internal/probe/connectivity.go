package probe

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/dashwatch/internal/domain"
)

// Connectivity measures reachability the way a ping loop would: Attempts
// independent checks run concurrently, each one passing if any target answers.
type Connectivity struct {
	Checker  Checker
	Targets  []string
	Attempts int

	// DNS, when set, classifies a round in which every attempt failed.
	DNS Checker
	Log *zap.Logger
}

// Probe reports success when at least one attempt passed, the mean latency of
// the passing attempts, and the share of failed attempts as packet loss.
func (c *Connectivity) Probe(ctx context.Context) (domain.ProbeResult, error) {
	if len(c.Targets) == 0 {
		return domain.ProbeResult{}, errors.New("probe: no connectivity targets")
	}
	attempts := max(c.Attempts, 1)
	results := make([]CheckResult, attempts)

	var g errgroup.Group
	for i := range attempts {
		g.Go(func() error {
			results[i] = c.attempt(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return domain.ProbeResult{}, err
	}

	var passed int
	var total float64
	for _, r := range results {
		if r.Success {
			passed++
			total += r.LatencyMS
		}
	}
	res := domain.ProbeResult{
		Success:       passed > 0,
		PacketLossPct: float64(attempts-passed) / float64(attempts) * 100,
	}
	if passed > 0 {
		res.LatencyMS = total / float64(passed)
	} else if c.DNS != nil && c.Log != nil {
		dns := c.DNS.Check(ctx, c.Targets[0])
		c.Log.Debug("probe_all_failed",
			zap.String("target", c.Targets[0]),
			zap.String("dns_class", dns.Message),
			zap.String("last_error", results[attempts-1].Message),
		)
	}
	return res, nil
}

// attempt i starts at target i mod n so the attempts spread over the targets.
func (c *Connectivity) attempt(ctx context.Context, i int) CheckResult {
	n := len(c.Targets)
	var last CheckResult
	for j := range n {
		last = c.Checker.Check(ctx, c.Targets[(i+j)%n])
		if last.Success {
			return last
		}
	}
	return last
}
