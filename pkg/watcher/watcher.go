// Package watcher observes watched directory sources and reports changes to
// their EPUB files after a quiet period.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/epubcore/pkg/importer"
)

type Watcher struct {
	log      logger.Logger
	debounce time.Duration
	onChange func()

	fs *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher that calls onChange once no relevant event has
// arrived for debounce.
func New(log logger.Logger, debounce time.Duration, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	return &Watcher{
		log:      log,
		debounce: debounce,
		onChange: onChange,
		fs:       fw,
		done:     make(chan struct{}),
	}, nil
}

// isHidden checks the base name only. Hidden directories are never watched,
// so nothing below them produces events.
func isHidden(p string) bool {
	return strings.HasPrefix(filepath.Base(p), ".")
}

// Watch adds dir and every non-hidden directory below it.
func (w *Watcher) Watch(dir string) error {
	dir = filepath.Clean(dir)
	info, err := os.Stat(dir)
	if err != nil {
		return errors.WithStack(err)
	}
	if !info.IsDir() {
		return errors.Errorf("not a directory: %s", dir)
	}
	return w.watchTree(dir)
}

func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Err(err).Warn("failed to access path", logger.Data{"path": p})
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fs.Add(p); err != nil {
			return errors.Wrapf(err, "failed to watch %s", p)
		}
		w.log.Debug("added watch", logger.Data{"path": p})
		return nil
	})
}

// Start processes events until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.done:
				return
			case event, ok := <-w.fs.Events:
				if !ok {
					return
				}
				w.handle(event)
			case err, ok := <-w.fs.Errors:
				if !ok {
					return
				}
				w.log.Err(err).Warn("watcher error")
			}
		}
	}()
}

func (w *Watcher) handle(event fsnotify.Event) {
	if isHidden(event.Name) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watchTree(event.Name); err != nil {
				w.log.Err(err).Warn("failed to watch new directory")
			}
			w.schedule()
			return
		}
	}

	if !importer.IsEPUBName(event.Name) {
		return
	}
	if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.log.Debug("change detected", logger.Data{"path": event.Name, "op": event.Op.String()})
		w.schedule()
	}
}

// schedule restarts the quiet period.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}
		w.onChange()
	})
}

// Stop releases the watcher. Pending notifications are dropped.
func (w *Watcher) Stop() error {
	close(w.done)

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	err := w.fs.Close()
	w.wg.Wait()
	return errors.WithStack(err)
}
