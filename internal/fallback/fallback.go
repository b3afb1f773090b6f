// Package fallback holds the static substitute snapshot shown whenever the
// upstream source is unreachable or simulated mode is requested. A default
// data set is embedded in the binary; an override file can be configured and
// is live-reloaded on change.
package fallback

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/aldwick/wardview/internal/model"
)

//go:embed data.yaml
var embedded []byte

// Store owns the fallback snapshot. Reads return the current snapshot
// pointer; the snapshot itself is never mutated after parse, so sharing the
// pointer is safe.
type Store struct {
	mu   sync.RWMutex
	snap *model.Snapshot
}

// New returns a Store populated with the embedded data set.
func New() (*Store, error) {
	snap, err := parse(embedded)
	if err != nil {
		return nil, fmt.Errorf("parse embedded fallback data: %w", err)
	}
	return &Store{snap: snap}, nil
}

// Snapshot returns the current fallback snapshot.
func (s *Store) Snapshot() *model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// LoadFile replaces the snapshot with the contents of a YAML file. On parse
// failure the previous snapshot is kept.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fallback file: %w", err)
	}
	snap, err := parse(data)
	if err != nil {
		return fmt.Errorf("parse fallback file %s: %w", path, err)
	}
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return nil
}

// Watch reloads the override file whenever it changes, until ctx is
// cancelled. Editors often write via rename, so the parent directory is
// watched and events are debounced before reloading.
func (s *Store) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}

	logger.Info("fallback watcher: started", slog.String("path", path))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(200 * time.Millisecond)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("fallback watcher: stopped")
			return nil

		case <-reloadCh:
			if err := s.LoadFile(path); err != nil {
				logger.Warn("fallback watcher: reload failed", slog.String("error", err.Error()))
			} else {
				logger.Info("fallback watcher: reloaded", slog.String("path", path))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("fallback watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func parse(data []byte) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if len(snap.Subjects) == 0 {
		return nil, fmt.Errorf("fallback data has no subjects")
	}
	return &snap, nil
}
