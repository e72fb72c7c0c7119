// internal/ingest/watch.go
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mwiater/examrag/internal/logging"
)

// settleDelay lets writers finish before a file is read.
const settleDelay = 500 * time.Millisecond

// Watch ingests supported files created or written in dir until ctx is
// done. Each result is passed to report when it is non-nil. Files already
// in the store are reported as duplicates rather than replaced.
func (in *Ingester) Watch(ctx context.Context, dir string, report func(Result)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logging.LogEvent("watching %s for %s", dir, strings.Join(SupportedExtensions, ", "))

	d := newDebouncer(settleDelay)
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !Supported(event.Name) || strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			d.touch(event.Name)
		case path := <-d.fire:
			d.settled(path)
			res := in.AddFile(ctx, path)
			if report != nil {
				report(res)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.LogEvent("watcher error: %v", err)
		}
	}
}

// debouncer delivers a name on fire once writes to it have been quiet for
// delay. Its methods other than the callbacks run on the Watch loop.
type debouncer struct {
	delay   time.Duration
	pending map[string]*time.Timer
	fire    chan string
	done    chan struct{}
	wg      sync.WaitGroup
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:   delay,
		pending: make(map[string]*time.Timer),
		fire:    make(chan string),
		done:    make(chan struct{}),
	}
}

// touch schedules name, or postpones it while its timer has not fired.
// Once fired the name is already on its way and is not scheduled again.
func (d *debouncer) touch(name string) {
	if t, ok := d.pending[name]; ok {
		if t.Stop() {
			t.Reset(d.delay)
		}
		return
	}
	d.wg.Add(1)
	d.pending[name] = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		select {
		case d.fire <- name:
		case <-d.done:
		}
	})
}

// settled forgets name after its fire was received.
func (d *debouncer) settled(name string) {
	delete(d.pending, name)
}

// stop cancels pending timers and waits for fired callbacks to return.
func (d *debouncer) stop() {
	close(d.done)
	for _, t := range d.pending {
		if t.Stop() {
			d.wg.Done()
		}
	}
	d.wg.Wait()
}
