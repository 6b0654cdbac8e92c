package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/scythe-robotics/armctl/logging"
)

// reloadDelay is how long the file must stay quiet before it is read again.
const reloadDelay = 100 * time.Millisecond

// A Watcher emits a config every time its file changes and still validates.
type Watcher interface {
	Config() <-chan *Config
	Close() error
}

type fsConfigWatcher struct {
	fsWatcher *fsnotify.Watcher
	configCh  chan *Config
	workers   *goutils.StoppableWorkers
}

// NewFSWatcher watches the config file at path. The directory is watched rather than
// the file so that editors replacing the file are noticed too.
func NewFSWatcher(path string, logger logging.Logger) (Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, multierr.Combine(err, fsWatcher.Close())
	}
	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "cannot watch %q", path), fsWatcher.Close())
	}

	w := &fsConfigWatcher{fsWatcher: fsWatcher, configCh: make(chan *Config)}
	reload := make(chan struct{}, 1)
	debounced := debounce.New(reloadDelay)
	w.workers = goutils.NewBackgroundStoppableWorkers(func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-fsWatcher.Errors:
				if !ok {
					return
				}
				logger.Warnw("config watcher error", "error", err)
			case event, ok := <-fsWatcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				debounced(func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			case <-reload:
				cfg, err := Read(abs, logger)
				if err != nil {
					logger.Warnw("ignoring changed config", "path", path, "error", err)
					continue
				}
				select {
				case <-ctx.Done():
					return
				case w.configCh <- cfg:
				}
			}
		}
	})
	return w, nil
}

func (w *fsConfigWatcher) Config() <-chan *Config {
	return w.configCh
}

func (w *fsConfigWatcher) Close() error {
	w.workers.Stop()
	return w.fsWatcher.Close()
}
