package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrPermissionDenied is returned by a notifier that has no permission (or no
// configured surface) to show anything. Callers treat it as "alerts disabled".
var ErrPermissionDenied = errors.New("notify: permission denied")

// Notification is one user-facing alert.
type Notification struct {
	ID       string    `json:"id"`
	SignalID string    `json:"signal"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Link     string    `json:"link,omitempty"`
	At       time.Time `json:"at"`

	// OnActivate runs when the user clicks the notification, if the surface supports it.
	OnActivate func() `json:"-"`
}

type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Multi fans a notification out to every notifier. Errors are combined; if
// every notifier denied permission the result is ErrPermissionDenied.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, n Notification) error {
	var (
		err    error
		tried  int
		denied int
	)
	for _, x := range m {
		if x == nil {
			continue
		}
		tried++
		e := x.Send(ctx, n)
		if errors.Is(e, ErrPermissionDenied) {
			denied++
			continue
		}
		err = multierr.Append(err, e)
	}
	if err == nil && tried > 0 && denied == tried {
		return ErrPermissionDenied
	}
	return err
}

type deniedGate struct {
	next Notifier
	log  *zap.Logger

	mu     sync.Mutex
	logged bool
}

// IgnoreDenied makes a permission denial a silent no-op. The denial is logged
// once, and again only after a send has succeeded in between.
func IgnoreDenied(next Notifier, log *zap.Logger) Notifier {
	return &deniedGate{next: next, log: log}
}

func (g *deniedGate) Send(ctx context.Context, n Notification) error {
	err := g.next.Send(ctx, n)

	g.mu.Lock()
	defer g.mu.Unlock()
	if errors.Is(err, ErrPermissionDenied) {
		if !g.logged {
			g.logged = true
			g.log.Warn("notify_permission_denied", zap.String("signal", n.SignalID))
		}
		return nil
	}
	if err == nil {
		g.logged = false
	}
	return err
}

// Log writes notifications to the structured log. It never fails, so it is a
// handy last member of a Multi.
type Log struct {
	Logger *zap.Logger
}

func (l Log) Send(_ context.Context, n Notification) error {
	l.Logger.Info("notification",
		zap.String("id", n.ID),
		zap.String("signal", n.SignalID),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.String("link", n.Link),
	)
	return nil
}
