package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long a Watcher waits for writes to settle.
const DefaultDebounce = 500 * time.Millisecond

// watchedSuffixes are the files that affect override checks and rule tables.
var watchedSuffixes = []string{".rego", ".json", ".cue"}

// Watcher reports changes to policy and rule files under a set of paths.
// Directories are watched recursively as they exist when the watcher is
// created.
type Watcher struct {
	logger   zerolog.Logger
	fs       *fsnotify.Watcher
	debounce time.Duration
}

// NewWatcher starts watching paths. Missing paths are skipped with a warning.
func NewWatcher(logger zerolog.Logger, paths []string, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		logger:   logger.With().Str("component", "policy-watcher").Logger(),
		fs:       fw,
		debounce: debounce,
	}

	watched := 0
	for _, path := range paths {
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}
		if info.IsDir() {
			err = w.addDirectory(path)
		} else {
			// Editors replace files on save, so watch the parent directory.
			err = fw.Add(filepath.Dir(path))
		}
		if err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", path, err)
		}
		watched++
	}

	w.logger.Info().Int("paths", watched).Msg("Started watching policy paths")
	return w, nil
}

func (w *Watcher) addDirectory(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fs.Add(path)
		}
		return nil
	})
}

// Run calls onChange after a burst of writes to a watched file settles. It
// blocks until ctx is done and then closes the watcher.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, path string)) error {
	defer func() { _ = w.fs.Close() }()

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending string
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 || !watchedFile(event.Name) {
				continue
			}
			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Policy file changed")

			pending = event.Name
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			onChange(ctx, pending)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func watchedFile(name string) bool {
	for _, s := range watchedSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
