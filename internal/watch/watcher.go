// Package watch translates raw filesystem notifications into tracking
// intents: a single fsnotify producer goroutine maps each event to zero or
// more Intents, pushes them through a bounded channel, and a consumer goroutine
// drains and coalesces everything queued into batches so a burst of events
// (rm -rf, cp -R) costs one index write instead of thousands.
package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/curioushi/ftm/internal/pathmatch"
	"github.com/curioushi/ftm/internal/tracelog"
)

// QueueCapacity bounds the intent channel between the fsnotify producer
// and the batching consumer; when it fills, the producer blocks and the OS
// event queue absorbs the overflow.
const QueueCapacity = 4096

// DebounceFullScan is the quiet-window duration callers wait after a burst
// of events before running a full scan, for those that want a settle point
// instead of per-intent batches.
const DebounceFullScan = 500 * time.Millisecond

// Watcher observes root for filesystem mutations and emits coalesced
// batches of Intent on Batches.
type Watcher struct {
	root    string
	matcher *pathmatch.Matcher
	fsw     *fsnotify.Watcher

	Batches chan []Intent

	mu      sync.Mutex
	watched map[string]struct{}

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Watcher rooted at root (an absolute path on the real OS
// filesystem) and recursively adds a watch on every directory that survives
// matcher's exclusion rules.
func New(root string, matcher *pathmatch.Matcher) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:    root,
		matcher: matcher,
		fsw:     fsw,
		Batches: make(chan []Intent, 1),
		watched: make(map[string]struct{}),
		done:    make(chan struct{}),
	}

	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return w, nil
}

// Start launches the producer and consumer goroutines. Close stops both.
func (w *Watcher) Start() {
	intents := make(chan Intent, QueueCapacity)

	w.wg.Add(2)
	go w.produce(intents)
	go w.consume(intents)
}

// Close stops the watcher and releases the underlying fsnotify handle.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}

		rel, relErr := pathmatch.Normalize(p, w.root)
		if relErr == nil && rel != "" && w.matcher.IsExcludedDir(rel) {
			return filepath.SkipDir
		}

		return w.addDir(p)
	})
}

func (w *Watcher) addDir(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[dir]; ok {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.watched[dir] = struct{}{}
	return nil
}

func (w *Watcher) removeDir(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[dir]; !ok {
		return
	}
	_ = w.fsw.Remove(dir)
	delete(w.watched, dir)
}

// produce is the watcher producer goroutine: it blocks on fsnotify's
// Events channel and translates each raw event into zero or more Intents
// (a new directory yields one per matching file inside it).
func (w *Watcher) produce(out chan<- Intent) {
	defer w.wg.Done()
	defer close(out)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev, out)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			tracelog.Watcher.Printf("fsnotify error: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event, out chan<- Intent) {
	rel, err := pathmatch.Normalize(ev.Name, w.root)
	if err != nil || rel == "" {
		return
	}
	if isMeta(rel) {
		return
	}

	switch {
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		w.removeDir(ev.Name)
		send(out, w.done, Intent{Kind: DeletePrefix, Path: rel})

	case ev.Op&fsnotify.Create != 0:
		info, statErr := os.Stat(ev.Name)
		if statErr != nil {
			return
		}
		if info.IsDir() {
			if w.matcher.IsExcludedDir(rel) {
				return
			}
			_ = w.addDir(ev.Name)
			w.emitSubtree(ev.Name, out)
			return
		}
		if w.matcher.Matches(rel) {
			send(out, w.done, Intent{Kind: Snapshot, Path: rel})
		}

	case ev.Op&fsnotify.Write != 0:
		if w.matcher.Matches(rel) {
			send(out, w.done, Intent{Kind: Snapshot, Path: rel})
		}
	}
}

// emitSubtree walks a newly created directory and emits Snapshot intents
// for every matching file already inside it (it may have been populated
// before the watch was installed, e.g. `mv` of a whole tree into root).
func (w *Watcher) emitSubtree(dir string, out chan<- Intent) {
	_ = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := pathmatch.Normalize(p, w.root)
		if relErr != nil || !w.matcher.Matches(rel) {
			return nil
		}
		send(out, w.done, Intent{Kind: Snapshot, Path: rel})
		return nil
	})
}

func send(out chan<- Intent, done <-chan struct{}, in Intent) {
	select {
	case out <- in:
	case <-done:
	}
}

// consume is the watcher consumer goroutine: it owns the sole write path
// into the batch channel, draining and coalescing everything currently
// queued before handing the batch off.
func (w *Watcher) consume(in <-chan Intent) {
	defer w.wg.Done()
	defer close(w.Batches)

	for {
		first, ok := <-in
		if !ok {
			return
		}

		batch := []Intent{first}
	drain:
		for {
			select {
			case next, ok := <-in:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}

		select {
		case w.Batches <- coalesce(batch):
		case <-w.done:
			return
		}
	}
}

func isMeta(rel string) bool {
	return rel == pathmatch.MetaDirName || strings.HasPrefix(rel, pathmatch.MetaDirName+"/")
}
