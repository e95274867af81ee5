// Package engine implements the single checked-out tracking context: it
// binds one watched root directory to one Index, one Watcher, one periodic
// Scanner task, one periodic Cleaner task, and a metadata-directory
// watchdog. This is the object the HTTP layer (internal/api) and the CLI
// (cmd/ftm, via the HTTP layer) ultimately drive; nothing outside this
// package touches the Index, Store or Watcher directly.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/curioushi/ftm/internal/config"
	"github.com/curioushi/ftm/internal/diffutil"
	"github.com/curioushi/ftm/internal/ftmerr"
	"github.com/curioushi/ftm/internal/history"
	"github.com/curioushi/ftm/internal/pathmatch"
	"github.com/curioushi/ftm/internal/scan"
	"github.com/curioushi/ftm/internal/snapshot"
	"github.com/curioushi/ftm/internal/tracelog"
	"github.com/curioushi/ftm/internal/watch"
)

// indexFile and configFile are the well-known names within the metadata
// directory.
const (
	indexFile     = "index.json"
	configFile    = "config.yaml"
	logsDir       = "logs"
	watchdogEvery = 2 * time.Second
)

// State reports whether the Engine is Idle or bound to a watched root.
type State int

const (
	// Idle means no directory is checked out.
	Idle State = iota
	// Watching means exactly one root is checked out and under active
	// observation.
	Watching
)

// FileSummary describes one tracked file for the files-listing endpoint.
// The listing is intentionally flat (rather than a nested tree structure):
// every File value is a full slash-separated relative path, and clients
// that want a tree build it client-side by splitting on "/", the same way
// a directory listing of git ls-tree output is flat and left to callers.
type FileSummary struct {
	File         string    `json:"file"`
	EntryCount   int       `json:"entry_count"`
	LastOp       string    `json:"last_op"`
	LastChecksum string    `json:"last_checksum,omitempty"`
	Deleted      bool      `json:"deleted"`
	LastSeen     time.Time `json:"last_seen"`
}

// CleanReport combines one Trim pass and one orphan-GC pass.
type CleanReport struct {
	EntriesTrimmed int   `json:"entries_trimmed"`
	TrimBytesFreed int64 `json:"trim_bytes_freed"`
	OrphansRemoved int   `json:"orphans_removed"`
	GCBytesFreed   int64 `json:"gc_bytes_freed"`
}

// Engine is the daemon's single checked-out context. Zero value is not
// usable; construct with New.
type Engine struct {
	cfgMu sync.RWMutex
	state State
	root  string
	cfg   *config.Config

	rootFS billy.Filesystem
	metaFS billy.Filesystem

	matcher *pathmatch.Matcher
	store   *snapshot.Store
	scanner *scan.Scanner
	watcher *watch.Watcher

	idxMu sync.Mutex
	idx   *history.Index

	diffSem chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	shutdownRequested chan struct{}
	shutdownOnce      sync.Once

	logFile *os.File
}

// New returns an idle Engine, ready to be Checkout'd.
func New() *Engine {
	return &Engine{
		diffSem:           make(chan struct{}, 1),
		shutdownRequested: make(chan struct{}),
	}
}

// ShutdownRequested is closed when the watchdog notices the metadata
// directory has disappeared, asking the daemon process to exit. The HTTP
// server's own /api/shutdown handler uses the same channel by calling
// RequestShutdown directly.
func (e *Engine) ShutdownRequested() <-chan struct{} { return e.shutdownRequested }

// RequestShutdown closes ShutdownRequested exactly once.
func (e *Engine) RequestShutdown() {
	e.shutdownOnce.Do(func() { close(e.shutdownRequested) })
}

// Status reports the current state and, if Watching, the root directory.
func (e *Engine) Status() (State, string) {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.state, e.root
}

// CheckoutOptions tunes a Checkout call.
type CheckoutOptions struct {
	// DisableWatcher skips starting the fsnotify-backed Watcher, leaving
	// only the periodic scan/clean tasks and explicit Scan/Clean calls to
	// observe the tree. Test suites use this to get deterministic,
	// non-racing Scan results.
	DisableWatcher bool
}

// Checkout binds root (which must be an absolute, existing directory) to
// this Engine with the default options (watcher enabled). See
// CheckoutWithOptions.
func (e *Engine) Checkout(root string) error {
	return e.CheckoutWithOptions(root, CheckoutOptions{})
}

// CheckoutWithOptions binds root to this Engine: it creates the metadata
// directory and a zeroed Index if absent, loads config.yaml, and starts
// the periodic scan, periodic clean and metadata-dir watchdog tasks, plus
// the Watcher unless opts.DisableWatcher is set. Only one root may be
// checked out per Engine; a second call returns ftmerr.ErrAlreadyCheckedOut.
func (e *Engine) CheckoutWithOptions(root string, opts CheckoutOptions) error {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	if e.state == Watching {
		return ftmerr.ErrAlreadyCheckedOut
	}
	if !filepath.IsAbs(root) {
		return fmt.Errorf("%w: %q is not absolute", ftmerr.ErrPathInvalid, root)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %q does not exist", ftmerr.ErrPathInvalid, root)
	}

	metaDir := filepath.Join(root, pathmatch.MetaDirName)
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return fmt.Errorf("engine: create metadata dir: %w", err)
	}

	cfg, err := config.Load(filepath.Join(metaDir, configFile))
	if err != nil {
		return err
	}
	if err := config.Save(filepath.Join(metaDir, configFile), cfg); err != nil {
		return err
	}

	if f, err := tracelog.OpenRotatingFile(filepath.Join(metaDir, logsDir), time.Now()); err == nil {
		e.logFile = f
	}

	rootFS := osfs.New(root)
	metaFS, err := rootFS.Chroot(pathmatch.MetaDirName)
	if err != nil {
		return fmt.Errorf("engine: chroot metadata dir: %w", err)
	}

	idx, err := history.Load(metaFS, indexFile)
	if err != nil {
		return err
	}

	matcher := pathmatch.New(cfg.Watch.Patterns, cfg.Watch.Exclude)
	store := snapshot.New(metaFS)
	scanner := scan.New(rootFS, store, matcher, cfg.Settings)

	var w *watch.Watcher
	if !opts.DisableWatcher {
		w, err = watch.New(root, matcher)
		if err != nil {
			return fmt.Errorf("engine: start watcher: %w", err)
		}
	}

	e.root = root
	e.cfg = cfg
	e.rootFS = rootFS
	e.metaFS = metaFS
	e.matcher = matcher
	e.store = store
	e.scanner = scanner
	e.watcher = w
	e.idx = idx
	e.done = make(chan struct{})
	e.state = Watching

	e.wg.Add(3)
	if w != nil {
		w.Start()
		e.wg.Add(1)
		go e.consumeBatches()
	}
	go e.periodic(cfg.Settings.ScanInterval, e.runScanLocked)
	go e.periodic(cfg.Settings.CleanInterval, e.runCleanLocked)
	go e.watchdog(metaDir)

	tracelog.Watcher.Printf("checked out %s", root)
	return nil
}

// Close stops the watcher and every background task, and closes the log
// file. Safe to call multiple times and safe to call when Idle.
func (e *Engine) Close() error {
	e.cfgMu.Lock()
	wasWatching := e.state == Watching
	w := e.watcher
	done := e.done
	logFile := e.logFile
	e.cfgMu.Unlock()

	if !wasWatching {
		return nil
	}

	e.closeOnce.Do(func() {
		close(done)
		if w != nil {
			_ = w.Close()
		}
	})
	e.wg.Wait()

	if logFile != nil {
		_ = logFile.Close()
	}

	e.cfgMu.Lock()
	e.state = Idle
	e.cfgMu.Unlock()
	return nil
}

// consumeBatches applies every coalesced batch the watcher produces as a
// single load(already in memory)->mutate->save cycle, serialized against
// scan and clean by idxMu.
func (e *Engine) consumeBatches() {
	defer e.wg.Done()
	for {
		select {
		case batch, ok := <-e.watcher.Batches:
			if !ok {
				return
			}
			e.applyBatch(batch)
		case <-e.done:
			return
		}
	}
}

func (e *Engine) applyBatch(batch []watch.Intent) {
	e.idxMu.Lock()
	defer e.idxMu.Unlock()

	for _, in := range batch {
		switch in.Kind {
		case watch.Snapshot:
			e.snapshotOne(in.Path)
		case watch.DeletePrefix:
			e.idx.RecordDeletesUnderPrefix(in.Path)
		}
	}

	e.trimAndSaveLocked()
}

// snapshotOne stages and records a single file's current content. It is a
// no-op if the path no longer exists, and a no-op logged at Watcher level if
// the file is too large or the stage attempt is Stale/Empty: the next settled write will
// be captured by a later event or by the periodic scan.
func (e *Engine) snapshotOne(rel string) {
	info, err := e.rootFS.Stat(rel)
	if err != nil {
		return
	}
	limits := e.settings()
	if limits.MaxFileSize > 0 && info.Size() > limits.MaxFileSize {
		tracelog.Watcher.Printf("skip %s: exceeds max_file_size", rel)
		return
	}

	w, err := e.store.StageFile(e.rootFS, rel)
	if err != nil {
		if errors.Is(err, ftmerr.ErrStale) || errors.Is(err, ftmerr.ErrEmpty) {
			tracelog.Watcher.Printf("skip %s: %v", rel, err)
			return
		}
		tracelog.Watcher.Printf("stage %s failed: %v", rel, err)
		return
	}

	last, has := e.idx.Last(rel)
	if has && !last.IsDelete() && last.Checksum == w.Checksum() {
		_ = w.Discard()
		return
	}

	checksum, size, err := w.Publish()
	if err != nil {
		tracelog.Watcher.Printf("publish %s failed: %v", rel, err)
		return
	}

	if _, ok := e.idx.RecordSnapshot(rel, checksum, size, info.ModTime().UnixNano()); !ok {
		// Another writer recorded the identical content first; nothing to do.
		return
	}
	tracelog.Watcher.Printf("recorded %s (%s)", rel, checksum[:12])
}

// trimAndSaveLocked enforces quotas and persists the Index. Callers must
// already hold idxMu.
func (e *Engine) trimAndSaveLocked() {
	limits := e.settings()
	if _, err := e.idx.Trim(limits.MaxHistory, limits.MaxQuota, e.store); err != nil {
		tracelog.Cleaner.Printf("trim failed: %v", err)
	}
	if err := e.idx.Save(e.metaFS, indexFile); err != nil {
		tracelog.Index.Printf("save failed: %v", err)
	}
}

// periodic runs fn every intervalSeconds until Close. config.Load enforces
// the 2-second floor on the interval at parse time.
func (e *Engine) periodic(intervalSeconds int, fn func()) {
	defer e.wg.Done()
	t := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			fn()
		case <-e.done:
			return
		}
	}
}

func (e *Engine) runScanLocked() {
	e.idxMu.Lock()
	defer e.idxMu.Unlock()
	if _, err := e.scanner.Run(e.idx); err != nil {
		tracelog.Scanner.Printf("periodic scan failed: %v", err)
		return
	}
	e.trimAndSaveLocked()
}

func (e *Engine) runCleanLocked() {
	e.idxMu.Lock()
	defer e.idxMu.Unlock()
	if _, err := e.cleanLocked(); err != nil {
		tracelog.Cleaner.Printf("periodic clean failed: %v", err)
	}
}

func (e *Engine) cleanLocked() (CleanReport, error) {
	limits := e.settings()
	trimReport, err := e.idx.Trim(limits.MaxHistory, limits.MaxQuota, e.store)
	if err != nil {
		return CleanReport{}, err
	}
	gcReport, err := e.store.CollectOrphans(e.idx.ReferencedChecksums())
	if err != nil {
		return CleanReport{}, err
	}
	if err := e.idx.Save(e.metaFS, indexFile); err != nil {
		return CleanReport{}, err
	}
	return CleanReport{
		EntriesTrimmed: trimReport.EntriesTrimmed,
		TrimBytesFreed: trimReport.BytesFreed,
		OrphansRemoved: gcReport.OrphansRemoved,
		GCBytesFreed:   gcReport.BytesFreed,
	}, nil
}

// watchdog polls every 2 seconds for the metadata directory's existence;
// if it disappears, the Engine requests a full daemon shutdown (cmd/ftmd
// maps ShutdownRequested to process exit).
func (e *Engine) watchdog(metaDir string) {
	defer e.wg.Done()
	t := time.NewTicker(watchdogEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if _, err := os.Stat(metaDir); os.IsNotExist(err) {
				tracelog.Watcher.Printf("metadata dir %s vanished, shutting down", metaDir)
				e.RequestShutdown()
				return
			}
		case <-e.done:
			return
		}
	}
}

// settings returns a consistent snapshot of the numeric tunables, taken
// under the config read lock so a concurrent SetConfig can never be
// observed half-applied.
func (e *Engine) settings() config.Settings {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg.Settings
}

// requireWatching returns ftmerr.ErrNotCheckedOut if the Engine is Idle.
func (e *Engine) requireWatching() error {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	if e.state != Watching {
		return ftmerr.ErrNotCheckedOut
	}
	return nil
}

// Scan runs one full-tree scan immediately, outside the periodic ticker,
// and returns its counts.
func (e *Engine) Scan() (scan.Report, error) {
	if err := e.requireWatching(); err != nil {
		return scan.Report{}, err
	}
	e.idxMu.Lock()
	defer e.idxMu.Unlock()

	report, err := e.scanner.Run(e.idx)
	if err != nil {
		return scan.Report{}, err
	}
	e.trimAndSaveLocked()
	return report, nil
}

// Clean runs trim and orphan GC immediately and returns a combined report.
func (e *Engine) Clean() (CleanReport, error) {
	if err := e.requireWatching(); err != nil {
		return CleanReport{}, err
	}
	e.idxMu.Lock()
	defer e.idxMu.Unlock()
	return e.cleanLocked()
}

// Files returns a flat summary of every file the Index has ever recorded,
// optionally including those whose last entry is a Delete.
func (e *Engine) Files(includeDeleted bool) ([]FileSummary, error) {
	if err := e.requireWatching(); err != nil {
		return nil, err
	}
	e.idxMu.Lock()
	defer e.idxMu.Unlock()

	var out []FileSummary
	for _, f := range e.idx.Files() {
		last, _ := e.idx.Last(f)
		if last.IsDelete() && !includeDeleted {
			continue
		}
		out = append(out, FileSummary{
			File:         f,
			EntryCount:   len(e.idx.History(f)),
			LastOp:       string(last.Op),
			LastChecksum: last.Checksum,
			Deleted:      last.IsDelete(),
			LastSeen:     last.Timestamp,
		})
	}
	return out, nil
}

// History returns every entry recorded for file, oldest first.
func (e *Engine) History(file string) ([]history.Entry, error) {
	if err := e.requireWatching(); err != nil {
		return nil, err
	}
	e.idxMu.Lock()
	defer e.idxMu.Unlock()
	return e.idx.History(file), nil
}

// Activity returns every entry across all files recorded in [since, until].
func (e *Engine) Activity(since, until time.Time, includeDeleted bool) ([]history.Entry, error) {
	if err := e.requireWatching(); err != nil {
		return nil, err
	}
	e.idxMu.Lock()
	defer e.idxMu.Unlock()
	return e.idx.Activity(since, until, includeDeleted), nil
}

// Restore resolves checksumPrefix against file's history (requiring at
// least 8 hex characters) and rewrites the working file to match. It does
// not itself append a history entry: the resulting write is a normal
// mutation that the watcher or the next scan observes and records as a
// fresh Create or Modify, exactly like any other edit.
func (e *Engine) Restore(file, checksumPrefix string) error {
	if err := e.requireWatching(); err != nil {
		return err
	}
	if !pathmatch.ValidRel(file) {
		return fmt.Errorf("%w: %q", ftmerr.ErrPathInvalid, file)
	}
	if len(checksumPrefix) < 8 {
		return fmt.Errorf("%w: checksum prefix must be at least 8 hex characters", ftmerr.ErrPathInvalid)
	}

	e.idxMu.Lock()
	matches := e.idx.ChecksumsByPrefix(file, checksumPrefix)
	e.idxMu.Unlock()

	switch len(matches) {
	case 0:
		return ftmerr.ErrNotFound
	case 1:
		// exactly one match, proceed
	default:
		return ftmerr.ErrAmbiguous
	}

	data, err := e.store.Read(matches[0])
	if err != nil {
		return err
	}

	if dir := filepath.Dir(file); dir != "." {
		if err := e.rootFS.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("engine: restore mkdir %s: %w", dir, err)
		}
	}
	f, err := e.rootFS.Create(file)
	if err != nil {
		return fmt.Errorf("engine: restore create %s: %w", file, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("engine: restore write %s: %w", file, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("engine: restore close %s: %w", file, err)
	}

	tracelog.Watcher.Printf("restored %s to %s", file, matches[0][:12])
	return nil
}

// Snapshot returns the verified bytes of one stored snapshot, for
// GET /api/snapshot.
func (e *Engine) Snapshot(checksum string) ([]byte, error) {
	if err := e.requireWatching(); err != nil {
		return nil, err
	}
	return e.store.Read(checksum)
}

// diffTimeout bounds every diff invocation.
const diffTimeout = 1 * time.Second

// Diff renders line-oriented hunks between two sides of one file. Each
// side is either a stored checksum or the literal "working", meaning the
// file's current on-disk bytes. Only one diff runs at a time (a capacity-1
// semaphore); if the 1s deadline is reached the caller gets
// ftmerr.ErrTimeout while the abandoned goroutine keeps the permit until
// it finishes, so runaway diffs can never stack up.
func (e *Engine) Diff(ctx context.Context, file, from, to string) ([]diffutil.Hunk, error) {
	if err := e.requireWatching(); err != nil {
		return nil, err
	}

	select {
	case e.diffSem <- struct{}{}:
	default:
		return nil, ftmerr.ErrConflict
	}

	type result struct {
		hunks []diffutil.Hunk
		err   error
	}
	resCh := make(chan result, 1)

	go func() {
		defer func() { <-e.diffSem }()
		fromText, err := e.resolveDiffSide(file, from)
		if err != nil {
			resCh <- result{err: err}
			return
		}
		toText, err := e.resolveDiffSide(file, to)
		if err != nil {
			resCh <- result{err: err}
			return
		}
		resCh <- result{hunks: diffutil.Hunks(fromText, toText)}
	}()

	ctx, cancel := context.WithTimeout(ctx, diffTimeout)
	defer cancel()

	select {
	case r := <-resCh:
		return r.hunks, r.err
	case <-ctx.Done():
		return nil, ftmerr.ErrTimeout
	}
}

func (e *Engine) resolveDiffSide(file, side string) (string, error) {
	if side == "working" {
		f, err := e.rootFS.Open(file)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ftmerr.ErrNotFound, file)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return "", fmt.Errorf("engine: read %s: %w", file, err)
		}
		return string(data), nil
	}

	data, err := e.store.Read(side)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetConfig resolves a dotted config key, e.g. "settings.max_history".
func (e *Engine) GetConfig(key string) (string, error) {
	if err := e.requireWatching(); err != nil {
		return "", err
	}
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg.Get(key)
}

// SetConfig assigns a dotted config key and persists config.yaml,
// rebuilding the path matcher and scanner so the change takes effect
// immediately (the watcher keeps running against the existing directory
// set; a new file added under a changed include pattern is picked up by
// the next periodic or explicit scan).
func (e *Engine) SetConfig(key, value string) error {
	if err := e.requireWatching(); err != nil {
		return err
	}
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	if err := e.cfg.Set(key, value); err != nil {
		return err
	}
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(filepath.Join(e.root, pathmatch.MetaDirName, configFile), e.cfg); err != nil {
		return err
	}

	e.matcher = pathmatch.New(e.cfg.Watch.Patterns, e.cfg.Watch.Exclude)
	e.scanner = scan.New(e.rootFS, e.store, e.matcher, e.cfg.Settings)
	return nil
}
