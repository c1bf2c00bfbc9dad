package upstream

import (
	"context"

	"github.com/hamed0406/dashwatch/internal/domain"
)

// NetworkClient reads the backend's own connectivity measurement.
type NetworkClient struct {
	*Client
}

func NewNetworkClient(c *Client) *NetworkClient { return &NetworkClient{Client: c} }

// Probe returns GET /network/current.
func (n *NetworkClient) Probe(ctx context.Context) (domain.ProbeResult, error) {
	var r domain.ProbeResult
	err := n.getJSON(ctx, "/network/current", &r)
	return r, err
}
