// Package prefsfile keeps alert preferences in a hand-editable TOML file:
//
//	[alerts]
//	network = false
//	"platform:github" = true
//
// Edits made while the daemon runs are picked up without a restart.
package prefsfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hamed0406/dashwatch/internal/domain"
	"github.com/hamed0406/dashwatch/internal/repo"
)

var _ repo.PreferenceStore = (*Store)(nil)

type document struct {
	Alerts map[string]bool `toml:"alerts"`
}

type Store struct {
	path string
	log  *zap.Logger

	mu      sync.RWMutex
	prefs   map[string]domain.Preference
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// Open loads path and watches it for changes. A missing file means no
// preferences; so does a file that does not parse, until it is fixed.
func Open(path string, log *zap.Logger) (*Store, error) {
	s := &Store{path: path, log: log, prefs: map[string]domain.Preference{}, done: make(chan struct{})}
	if err := s.reload(); err != nil {
		log.Warn("preferences_reload_error", zap.String("path", path), zap.Error(err))
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("prefsfile: watcher: %w", err)
	}
	// Watch the directory: editors replace the file instead of writing in place.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("prefsfile: watch %s: %w", filepath.Dir(path), err)
	}
	s.watcher = w
	s.wg.Add(1)
	go s.watch()
	return s, nil
}

func (s *Store) Close() error {
	close(s.done)
	err := s.watcher.Close()
	s.wg.Wait()
	return err
}

func (s *Store) watch() {
	defer s.wg.Done()
	name := filepath.Clean(s.path)
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := s.reload(); err != nil {
				s.log.Warn("preferences_reload_error", zap.String("path", s.path), zap.Error(err))
				continue
			}
			s.log.Info("preferences_reloaded", zap.String("path", s.path))
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("preferences_watch_error", zap.Error(err))
		}
	}
}

// reload replaces the in-memory view. A file that does not parse leaves the
// previous view in place.
func (s *Store) reload() error {
	var doc document
	_, err := toml.DecodeFile(s.path, &doc)
	if errors.Is(err, fs.ErrNotExist) {
		doc = document{}
	} else if err != nil {
		return fmt.Errorf("prefsfile: parse %s: %w", s.path, err)
	}

	var mtime time.Time
	if fi, err := os.Stat(s.path); err == nil {
		mtime = fi.ModTime().UTC()
	}
	next := make(map[string]domain.Preference, len(doc.Alerts))
	for id, on := range doc.Alerts {
		next[id] = domain.Preference{SignalID: id, AlertsEnabled: on, UpdatedAt: mtime}
	}

	s.mu.Lock()
	s.prefs = next
	s.mu.Unlock()
	return nil
}

func (s *Store) GetPreference(ctx context.Context, signalID string) (*domain.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[signalID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) ListPreferences(ctx context.Context) ([]domain.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Preference, 0, len(s.prefs))
	for _, p := range s.prefs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignalID < out[j].SignalID })
	return out, nil
}

// SetPreference rewrites the whole file through a temp file and rename.
func (s *Store) SetPreference(ctx context.Context, p domain.Preference) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc := document{Alerts: make(map[string]bool, len(s.prefs)+1)}
	for id, cur := range s.prefs {
		doc.Alerts[id] = cur.AlertsEnabled
	}
	doc.Alerts[p.SignalID] = p.AlertsEnabled

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".prefs-*.toml")
	if err != nil {
		return fmt.Errorf("prefsfile: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := toml.NewEncoder(tmp).Encode(doc); err != nil {
		tmp.Close()
		return fmt.Errorf("prefsfile: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("prefsfile: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("prefsfile: %w", err)
	}
	s.prefs[p.SignalID] = p
	return nil
}
