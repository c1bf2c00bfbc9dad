package monitors

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/dashwatch/internal/domain"
	"github.com/hamed0406/dashwatch/internal/watchdog"
)

// PlatformSignal is the signal id of a platform-health watchdog.
func PlatformSignal(platformID string) string { return "platform:" + platformID }

// PlatformSource is implemented by upstream.PlatformClient.
type PlatformSource interface {
	Status(ctx context.Context, platformID string) (domain.PlatformStatus, error)
}

func DefaultPlatformConfig() watchdog.Config {
	return watchdog.Config{
		Interval:         60 * time.Second,
		ConfirmThreshold: 2,
		SleepGap:         150 * time.Second,
		GracePolls:       1,
	}
}

// NewPlatform builds the watchdog of one third-party platform. Fetch errors
// drop the cycle: a status page we cannot reach says nothing about the platform.
func NewPlatform(platformID string, src PlatformSource, cfg watchdog.Config, deps watchdog.Deps) (*watchdog.Controller[domain.PlatformStatus], error) {
	a := watchdog.Adapter[domain.PlatformStatus]{
		Poll: func(ctx context.Context) (domain.PlatformStatus, error) {
			return src.Status(ctx, platformID)
		},
		Equal:    func(a, b domain.PlatformStatus) bool { return a.Severity == b.Severity },
		Format:   platformMessage,
		Describe: func(s domain.PlatformStatus) string { return string(s.Severity) },
	}
	return watchdog.New(PlatformSignal(platformID), cfg, a, deps)
}

func platformMessage(tr watchdog.Transition[domain.PlatformStatus]) (watchdog.Message, bool) {
	to := tr.To
	name := to.DisplayName()
	msg := watchdog.Message{Link: to.PageURL, Body: to.Description}

	switch {
	case to.Severity == domain.SeverityOutage:
		msg.Title = fmt.Sprintf("🔴 %s outage", name)
		if msg.Body == "" {
			msg.Body = name + " is reporting a major outage."
		}
	case to.Severity == domain.SeverityDegraded:
		msg.Title = fmt.Sprintf("🟠 %s degraded", name)
		if msg.Body == "" {
			msg.Body = name + " is reporting degraded performance."
		}
	case to.Severity == domain.SeverityOperational && tr.From.Severity.Bad():
		msg.Title = fmt.Sprintf("🟢 %s restored", name)
		if msg.Body == "" {
			msg.Body = name + " is operational again."
		}
	default:
		return watchdog.Message{}, false
	}
	return msg, true
}
