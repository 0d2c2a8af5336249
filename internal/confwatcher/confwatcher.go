// Package confwatcher contains a configuration watcher.
package confwatcher

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	minInterval    = 1 * time.Second
	additionalWait = 10 * time.Millisecond
)

// ConfWatcher is a configuration file watcher.
// The directory of the file is watched, in order to
// catch editors that replace the file instead of writing it.
type ConfWatcher struct {
	FilePath string

	inner       *fsnotify.Watcher
	absFilePath string

	// out
	signal chan struct{}
	done   chan struct{}
}

// Initialize initializes a ConfWatcher.
func (w *ConfWatcher) Initialize() error {
	if _, err := os.Stat(w.FilePath); err != nil {
		return fmt.Errorf("configuration file not found: %w", err)
	}

	var err error
	w.absFilePath, err = filepath.Abs(w.FilePath)
	if err != nil {
		return err
	}

	w.inner, err = fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	err = w.inner.Add(filepath.Dir(w.absFilePath))
	if err != nil {
		w.inner.Close() //nolint:errcheck
		return err
	}

	w.signal = make(chan struct{})
	w.done = make(chan struct{})

	go w.run()

	return nil
}

// Close closes a ConfWatcher.
func (w *ConfWatcher) Close() {
	go func() {
		for range w.signal {
		}
	}()
	w.inner.Close() //nolint:errcheck
	<-w.done
}

func (w *ConfWatcher) run() {
	defer close(w.done)
	defer close(w.signal)

	var lastCalled time.Time

	for {
		select {
		case event, ok := <-w.inner.Events:
			if !ok {
				return
			}

			if event.Name != w.absFilePath ||
				(event.Op&(fsnotify.Write|fsnotify.Create)) == 0 ||
				time.Since(lastCalled) < minInterval {
				continue
			}

			// wait some additional time to let the writer finish
			time.Sleep(additionalWait)

			// a replaced file must be watched again
			if (event.Op & fsnotify.Create) != 0 {
				w.inner.Add(filepath.Dir(w.absFilePath)) //nolint:errcheck
			}

			lastCalled = time.Now()
			w.signal <- struct{}{}

		case _, ok := <-w.inner.Errors:
			if !ok {
				return
			}
		}
	}
}

// Watch returns a channel that is signaled when the configuration file has changed.
func (w *ConfWatcher) Watch() chan struct{} {
	return w.signal
}
