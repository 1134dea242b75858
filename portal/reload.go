package portal

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce is how long a Reloader waits after the last change to the configuration file before
// reloading it.
const reloadDebounce = 500 * time.Millisecond

// Reloader watches a configuration file and replaces the rules held by a RuleHolder whenever the file
// changes. Rules that fail to load are logged and the previous rules are kept.
type Reloader struct {
	log     *slog.Logger
	path    string
	holder  *RuleHolder
	watcher *fsnotify.Watcher

	mu       sync.Mutex
	debounce *time.Timer
}

// NewReloader creates a Reloader for the configuration file at the path passed. The directory of the file
// is watched, so that editors replacing the file are noticed too.
func NewReloader(path string, holder *RuleHolder, log *slog.Logger) (*Reloader, error) {
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %q: %w", filepath.Dir(abs), err)
	}
	return &Reloader{
		log:     log.With("subsystem", "portal", "component", "reload"),
		path:    abs,
		holder:  holder,
		watcher: watcher,
	}, nil
}

// Reload loads the configuration file and stores the resulting rules in the RuleHolder.
func (r *Reloader) Reload() error {
	uc, err := LoadUserConfig(r.path)
	if err != nil {
		return err
	}
	rules, err := uc.Rules()
	if err != nil {
		return err
	}
	r.holder.Store(rules)
	return nil
}

// Run watches the configuration file until ctx is cancelled. The watcher is closed when Run returns.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()
	defer r.stopDebounce()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				r.schedule()
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("File watcher error.", "err", err)
		}
	}
}

// schedule reloads the configuration once no change has been seen for reloadDebounce.
func (r *Reloader) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.debounce != nil {
		r.debounce.Stop()
	}
	r.debounce = time.AfterFunc(reloadDebounce, func() {
		if err := r.Reload(); err != nil {
			r.log.Error("Failed reloading portal rules, keeping previous rules.", "err", err, "path", r.path)
			return
		}
		r.log.Info("Reloaded portal rules.", "path", r.path)
	})
}

func (r *Reloader) stopDebounce() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.debounce != nil {
		r.debounce.Stop()
	}
}
