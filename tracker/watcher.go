package tracker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brainwash-synth/brainwash"
	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a .bw file when it changes on disk. Bursts of events, e.g.
// an editor writing a temporary file and renaming it over the original, are
// debounced into one reload. The reloaded patch, or the error reading it, is
// sent to the model as a ReloadMsg.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	broker   *Broker
}

const DefaultDebounce = 100 * time.Millisecond

// NewWatcher watches the file at path. The directory is watched instead of
// the file itself, so the watch survives the file being replaced.
func NewWatcher(path string, broker *Broker, debounce time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("could not watch %s: %w", filepath.Dir(abs), err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{path: abs, debounce: debounce, watcher: w, broker: broker}, nil
}

// Run watches until the context is done. It returns nil when the context is
// done and an error if the watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching %s: %w", w.path, err)
		case <-fire:
			fire = nil
			msg := w.load()
			select {
			case w.broker.ToModel <- MsgToModel{Data: msg}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (w *Watcher) load() ReloadMsg {
	f, err := os.Open(w.path)
	if err != nil {
		return ReloadMsg{Path: w.path, Err: err}
	}
	defer f.Close()
	p, err := brainwash.ReadPatch(f)
	if err != nil {
		return ReloadMsg{Path: w.path, Err: fmt.Errorf("%s: %w", w.path, err)}
	}
	return ReloadMsg{Path: w.path, Patch: p}
}
