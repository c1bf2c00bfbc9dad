// Package monitors instantiates the watchdog engine for the dashboard's signals.
package monitors

import (
	"errors"
	"fmt"

	"github.com/hamed0406/dashwatch/internal/domain"
	"github.com/hamed0406/dashwatch/internal/watchdog"
)

// Settings selects which watchdogs exist and where they read from. A nil
// source disables the corresponding watchdog.
type Settings struct {
	Network      ConnectivityProber
	Connectivity ConnectivityOptions

	Platforms      PlatformSource
	PlatformIDs    []string
	PlatformConfig watchdog.Config

	Todos     TodoSource
	Reminders watchdog.Config
}

// Build creates every configured watchdog and registers it in reg. Ids that
// are already registered are kept as they are. All construction problems are
// reported together.
func Build(reg *watchdog.Registry, s Settings, deps watchdog.Deps) error {
	var errs []error

	if s.Network != nil {
		_, err := watchdog.Ensure(reg, NetworkSignal, func() (*watchdog.Controller[Link], error) {
			return NewConnectivity(s.Network, s.Connectivity, deps)
		})
		errs = append(errs, err)
	}

	if s.Platforms != nil {
		for _, id := range s.PlatformIDs {
			_, err := watchdog.Ensure(reg, PlatformSignal(id), func() (*watchdog.Controller[domain.PlatformStatus], error) {
				return NewPlatform(id, s.Platforms, s.PlatformConfig, deps)
			})
			errs = append(errs, err)
		}
	}

	if s.Todos != nil {
		_, err := watchdog.Ensure(reg, RemindersSignal, func() (*watchdog.Controller[domain.DueSet], error) {
			return NewReminders(s.Todos, s.Reminders, deps)
		})
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("monitors: %w", err)
	}
	return nil
}
