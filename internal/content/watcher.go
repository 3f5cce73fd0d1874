// ABOUTME: Background reloader that rescans content when files change
// ABOUTME: Combines fsnotify events, a poll ticker and manual triggers
package content

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ReloaderConfig tunes the reloader
type ReloaderConfig struct {
	// Poll is the interval of the fallback rescan. Zero disables polling.
	Poll time.Duration

	// Debounce delays a rescan after a burst of file events
	Debounce time.Duration

	// Watch enables fsnotify on the class roots. Only meaningful when the
	// store sits on the OS filesystem.
	Watch bool
}

// DefaultReloaderConfig returns the standard reload cadence
func DefaultReloaderConfig() ReloaderConfig {
	return ReloaderConfig{
		Poll:     time.Second,
		Debounce: 100 * time.Millisecond,
		Watch:    true,
	}
}

// PublishFunc receives a staged update. It owns committing it; the store
// keeps answering lookups from the previous index until it does.
type PublishFunc func(ctx context.Context, u *Update)

// Reloader rescans a Store off the caller's goroutine and hands staged
// updates to a publish callback.
type Reloader struct {
	store   *Store
	config  ReloaderConfig
	publish PublishFunc
	trigger chan struct{}
}

// NewReloader creates a reloader. publish runs on the reloader goroutine;
// when it is nil updates are committed at once.
func NewReloader(store *Store, config ReloaderConfig, publish PublishFunc) *Reloader {
	if config.Debounce <= 0 {
		config.Debounce = 100 * time.Millisecond
	}
	return &Reloader{
		store:   store,
		config:  config,
		publish: publish,
		trigger: make(chan struct{}, 1),
	}
}

// Trigger requests a rescan. It never blocks.
func (r *Reloader) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run services rescans until ctx is cancelled
func (r *Reloader) Run(ctx context.Context) error {
	var watcher *fsnotify.Watcher
	var events <-chan fsnotify.Event
	var errs <-chan error

	if r.config.Watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			log.Warn().Err(err).Msg("file watcher unavailable, polling only")
		} else {
			defer w.Close()
			r.watchRoots(w)
			watcher = w
			events = w.Events
			errs = w.Errors
		}
	}

	var tick <-chan time.Time
	if r.config.Poll > 0 {
		ticker := time.NewTicker(r.config.Poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	debounce := time.NewTimer(r.config.Debounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-tick:
			r.rescan(ctx)

		case <-r.trigger:
			log.Info().Msg("content reload requested")
			r.rescan(ctx)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				r.watchNewDir(watcher, ev.Name)
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce.Reset(r.config.Debounce)
			}

		case <-debounce.C:
			r.rescan(ctx)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Error().Err(err).Msg("content watcher error")
		}
	}
}

func (r *Reloader) rescan(ctx context.Context) {
	u := r.store.Stage()
	if len(u.Assets) == 0 {
		return
	}
	log.Info().Int("assets", len(u.Assets)).Msg("content changed")
	if r.publish == nil {
		u.Commit()
		return
	}
	r.publish(ctx, u)
}

func (r *Reloader) watchRoots(w *fsnotify.Watcher) {
	for _, root := range []string{r.store.roots.Images, r.store.roots.Fonts, r.store.roots.Sounds} {
		if root == "" {
			continue
		}
		_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return filepath.SkipDir
			}
			if d.IsDir() {
				if err := w.Add(p); err != nil {
					log.Debug().Err(err).Str("dir", p).Msg("cannot watch directory")
				}
			}
			return nil
		})
	}
}

// fsnotify is not recursive; directories created after startup need their own watch
func (r *Reloader) watchNewDir(w *fsnotify.Watcher, name string) {
	info, err := r.store.fs.Stat(name)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.Add(name); err != nil {
		log.Debug().Err(err).Str("dir", name).Msg("cannot watch directory")
	}
}
