package monitors

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/dashwatch/internal/domain"
	"github.com/hamed0406/dashwatch/internal/watchdog"
	"go.uber.org/zap"
)

const NetworkSignal = "network"

// ConnectivityProber is implemented by probe.Connectivity (active checks from
// this host) and upstream.NetworkClient (the backend's measurement).
type ConnectivityProber interface {
	Probe(ctx context.Context) (domain.ProbeResult, error)
}

// Link is the connectivity observation. Only State takes part in comparisons;
// the probe numbers ride along for the message.
type Link struct {
	State domain.Connectivity
	Probe domain.ProbeResult
	Err   string
}

type ConnectivityOptions struct {
	Config watchdog.Config

	// A probe losing this share of attempts or more counts as offline.
	MaxPacketLossPct float64

	// MaxLatency marks a slower link offline. Zero disables the check.
	MaxLatency time.Duration
}

func DefaultConnectivityOptions() ConnectivityOptions {
	return ConnectivityOptions{
		Config: watchdog.Config{
			Interval:         10 * time.Second,
			ConfirmThreshold: 2,
			Debounce:         3 * time.Second,
			SleepGap:         30 * time.Second,
			GracePolls:       2,
			CheckOnResume:    true,
		},
		MaxPacketLossPct: 50,
	}
}

// Classify turns a probe into Online or Offline.
func (o ConnectivityOptions) Classify(r domain.ProbeResult) domain.Connectivity {
	if !r.Success || r.PacketLossPct >= o.MaxPacketLossPct {
		return domain.Offline
	}
	if o.MaxLatency > 0 && r.LatencyMS > float64(o.MaxLatency.Milliseconds()) {
		return domain.Offline
	}
	return domain.Online
}

// NewConnectivity builds the "network" watchdog. Clicking its notification
// triggers an immediate re-check.
func NewConnectivity(p ConnectivityProber, opts ConnectivityOptions, deps watchdog.Deps) (*watchdog.Controller[Link], error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	var c *watchdog.Controller[Link]
	recheck := func() {
		if c != nil {
			go func() {
				if err := c.ForceCheck(); err != nil {
					log.Debug("network_recheck_skipped", zap.Error(err))
				}
			}()
		}
	}

	a := watchdog.Adapter[Link]{
		Poll: func(ctx context.Context) (Link, error) {
			r, err := p.Probe(ctx)
			if err != nil {
				return Link{}, err
			}
			return Link{State: opts.Classify(r), Probe: r}, nil
		},
		Equal: func(a, b Link) bool { return a.State == b.State },
		Fold: func(err error) (Link, bool) {
			return Link{State: domain.Offline, Err: err.Error()}, true
		},
		Format: func(tr watchdog.Transition[Link]) (watchdog.Message, bool) {
			return connectivityMessage(tr.To, recheck), true
		},
		Describe: func(l Link) string { return string(l.State) },
	}

	var err error
	c, err = watchdog.New(NetworkSignal, opts.Config, a, deps)
	return c, err
}

func connectivityMessage(to Link, onActivate func()) watchdog.Message {
	if to.State == domain.Online {
		return watchdog.Message{
			Title:      "🟢 Connection restored",
			Body:       fmt.Sprintf("Back online. Latency %.0f ms, packet loss %.0f%%.", to.Probe.LatencyMS, to.Probe.PacketLossPct),
			OnActivate: onActivate,
		}
	}
	body := fmt.Sprintf("No internet connection. Packet loss %.0f%%.", to.Probe.PacketLossPct)
	if to.Err != "" {
		body = "No internet connection: " + to.Err
	}
	return watchdog.Message{
		Title:      "🔴 Connection lost",
		Body:       body,
		OnActivate: onActivate,
	}
}
