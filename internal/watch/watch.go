// Package watch implements the save-triggered rebuild loop: the root document
// and its known subfiles are watched for writes, bursts are coalesced through
// a debounce window, and each settled change triggers one build. A file lock
// in the state directory keeps a second watcher off the same root.
package watch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"

	"texbuild/internal/composer"
	"texbuild/internal/config"
	"texbuild/internal/logging"
	"texbuild/internal/magic"
)

// Runner is the build entry point the watcher drives. *composer.Composer
// satisfies it.
type Runner interface {
	Build(ctx context.Context, path string, opts composer.BuildOptions) (bool, error)
}

// Watcher rebuilds a document whenever its file set changes on disk.
type Watcher struct {
	cfg    *config.Config
	logger *slog.Logger
	runner Runner
}

// New constructs a Watcher.
func New(cfg *config.Config, logger *slog.Logger, runner Runner) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{cfg: cfg, logger: logging.NewComponentLogger(logger, "watch"), runner: runner}
}

// Run watches path's root document until ctx is canceled. An initial build
// runs immediately; afterwards every settled write to a tracked file triggers
// another. Returns an error when another watcher already holds the root.
func (w *Watcher) Run(ctx context.Context, path string) error {
	scan := magic.Scan(path)
	root := scan.RootPath

	if err := w.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	lock := flock.New(w.lockPath(root))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire watch lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another watcher is already active for %s", root)
	}
	defer func() { _ = lock.Unlock() }()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fsw.Close()

	tracked := w.trackedSet(root)
	if err := w.watchDirs(fsw, tracked); err != nil {
		return err
	}

	w.logger.Info("watching",
		logging.String(logging.FieldRoot, root),
		logging.Int("files", len(tracked)))

	w.build(ctx, root)

	debounce := w.debounceWindow()
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if _, watched := tracked[filepath.Clean(event.Name)]; !watched {
				continue
			}
			w.logger.Debug("change detected", logging.String("file", event.Name))
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(debounce)
			pending = true
		case <-timer.C:
			pending = false
			w.build(ctx, root)
			// The root chain may have changed; refresh the tracked set.
			tracked = w.trackedSet(root)
			if err := w.watchDirs(fsw, tracked); err != nil {
				w.logger.Warn("refresh watch set", logging.Error(err))
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", logging.Error(err))
		}
	}
}

func (w *Watcher) build(ctx context.Context, root string) {
	if ctx.Err() != nil {
		return
	}
	ok, err := w.runner.Build(ctx, root, composer.BuildOptions{
		OpenResult: w.cfg.Watch.OpenResult,
	})
	if err != nil {
		w.logger.Error("build failed", logging.Error(err))
		return
	}
	if !ok {
		w.logger.Warn("build reported failure", logging.String(logging.FieldRoot, root))
	}
}

// trackedSet returns the cleaned paths of the root and every document on its
// pointer chain.
func (w *Watcher) trackedSet(root string) map[string]struct{} {
	scan := magic.Scan(root)
	tracked := map[string]struct{}{filepath.Clean(scan.RootPath): {}}
	for _, visited := range scan.Visited {
		tracked[filepath.Clean(visited)] = struct{}{}
	}
	return tracked
}

// watchDirs registers the parent directory of every tracked file. Editors
// replace files via rename, so watching directories is the reliable form;
// events are filtered back against the tracked set.
func (w *Watcher) watchDirs(fsw *fsnotify.Watcher, tracked map[string]struct{}) error {
	dirs := make(map[string]struct{})
	for path := range tracked {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return nil
}

func (w *Watcher) debounceWindow() time.Duration {
	ms := w.cfg.Watch.DebounceMS
	if ms <= 0 {
		ms = 200
	}
	return time.Duration(ms) * time.Millisecond
}

func (w *Watcher) lockPath(root string) string {
	sum := sha256.Sum256([]byte(root))
	return filepath.Join(w.cfg.Paths.StateDir, fmt.Sprintf("%x.lock", sum[:8]))
}
