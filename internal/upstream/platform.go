package upstream

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hamed0406/dashwatch/internal/domain"
)

const defaultFlightTimeout = 10 * time.Second

// PlatformClient fetches /platform-health/status once per TTL no matter how
// many platform watchdogs ask for it.
type PlatformClient struct {
	*Client
	TTL time.Duration
	Now func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	cached  []domain.PlatformStatus
	fetched time.Time
}

func NewPlatformClient(c *Client, ttl time.Duration) *PlatformClient {
	return &PlatformClient{Client: c, TTL: ttl, Now: time.Now}
}

// Statuses returns every platform's status.
func (p *PlatformClient) Statuses(ctx context.Context) ([]domain.PlatformStatus, error) {
	p.mu.Lock()
	if p.cached != nil && p.Now().Sub(p.fetched) < p.TTL {
		out := slices.Clone(p.cached)
		p.mu.Unlock()
		return out, nil
	}
	p.mu.Unlock()

	// The shared request outlives any one caller; each caller still gives up
	// when its own context ends.
	ch := p.group.DoChan("status", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.flightTimeout())
		defer cancel()
		var list []domain.PlatformStatus
		if err := p.getJSON(fctx, "/platform-health/status", &list); err != nil {
			return nil, err
		}
		for i := range list {
			list[i].Severity = domain.ParseSeverity(string(list[i].Severity))
		}
		p.mu.Lock()
		p.cached, p.fetched = list, p.Now()
		p.mu.Unlock()
		return list, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]domain.PlatformStatus)), nil
	}
}

func (p *PlatformClient) flightTimeout() time.Duration {
	if p.HTTP != nil && p.HTTP.Timeout > 0 {
		return p.HTTP.Timeout
	}
	return defaultFlightTimeout
}

// Status returns one platform. A platform missing from the answer is reported
// with SeverityUnknown.
func (p *PlatformClient) Status(ctx context.Context, platformID string) (domain.PlatformStatus, error) {
	list, err := p.Statuses(ctx)
	if err != nil {
		return domain.PlatformStatus{}, err
	}
	for _, s := range list {
		if s.PlatformID == platformID {
			return s, nil
		}
	}
	return domain.PlatformStatus{PlatformID: platformID, Severity: domain.SeverityUnknown}, nil
}
