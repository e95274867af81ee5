// Package scan implements the full-tree walk: every included, non-excluded
// file under the watched root is read, hashed, and recorded into the
// history Index; files the Index still lists but no longer exist on disk
// are recorded as deletions.
package scan

import (
	"errors"
	"fmt"
	"os"
	"path"

	billy "github.com/go-git/go-billy/v5"

	"github.com/curioushi/ftm/internal/config"
	"github.com/curioushi/ftm/internal/ftmerr"
	"github.com/curioushi/ftm/internal/history"
	"github.com/curioushi/ftm/internal/pathmatch"
	"github.com/curioushi/ftm/internal/snapshot"
	"github.com/curioushi/ftm/internal/tracelog"
)

// Report summarizes one full-tree scan pass.
type Report struct {
	FilesScanned int
	Created      int
	Modified     int
	Deleted      int
	Unchanged    int
	Skipped      int
}

// Scanner walks a watched root on disk, comparing what it finds against the
// history Index and recording every change.
type Scanner struct {
	fs      billy.Filesystem
	store   *snapshot.Store
	matcher *pathmatch.Matcher
	limits  config.Settings
}

// New returns a Scanner that walks fs (rooted at the watched directory),
// staging content into store and filtering paths through matcher.
func New(fs billy.Filesystem, store *snapshot.Store, matcher *pathmatch.Matcher, limits config.Settings) *Scanner {
	return &Scanner{fs: fs, store: store, matcher: matcher, limits: limits}
}

// Run performs one full scan, mutating idx in place, and returns a summary.
// It does not call idx.Save; the caller persists the index once after Run
// returns (and, on trim, again after a Trim pass).
func (sc *Scanner) Run(idx *history.Index) (Report, error) {
	var report Report
	seen := make(map[string]struct{})

	if err := sc.walk("", idx, &report, seen); err != nil {
		return report, err
	}

	for _, file := range idx.Files() {
		if _, ok := seen[file]; ok {
			continue
		}
		last, ok := idx.Last(file)
		if !ok || last.IsDelete() {
			continue
		}
		if _, ok := idx.RecordDelete(file); ok {
			report.Deleted++
		}
	}

	tracelog.Scanner.Printf(
		"scan complete: %d scanned, %d created, %d modified, %d deleted, %d skipped",
		report.FilesScanned, report.Created, report.Modified, report.Deleted, report.Skipped,
	)
	return report, nil
}

func (sc *Scanner) walk(dir string, idx *history.Index, report *Report, seen map[string]struct{}) error {
	if dir != "" && sc.matcher.IsExcludedDir(dir) {
		return nil
	}

	entries, err := sc.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan: read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		rel := path.Join(dir, entry.Name())

		if entry.IsDir() {
			if err := sc.walk(rel, idx, report, seen); err != nil {
				return err
			}
			continue
		}

		if !entry.Mode().IsRegular() {
			continue
		}
		if !sc.matcher.Matches(rel) {
			continue
		}

		seen[rel] = struct{}{}

		if sc.limits.MaxFileSize > 0 && entry.Size() > sc.limits.MaxFileSize {
			report.Skipped++
			tracelog.Scanner.Printf("skip %s: %d bytes exceeds max_file_size", rel, entry.Size())
			continue
		}
		report.FilesScanned++

		if err := sc.observe(rel, entry.Size(), entry.ModTime().UnixNano(), idx, report); err != nil {
			return err
		}
	}

	return nil
}

// observe stages rel's current content via the store's stage_and_hash
// contract and records a HistoryEntry only if it differs from the last
// recorded version. A Stale read (the file changed size mid-stage) or an
// Empty file is left for the next scan pass to pick up once the file is
// quiescent again.
func (sc *Scanner) observe(rel string, size, mtimeNanos int64, idx *history.Index, report *Report) error {
	last, ok := idx.Last(rel)
	if ok && !last.IsDelete() && last.MtimeNanos == mtimeNanos && last.Size == size {
		report.Unchanged++
		return nil
	}

	w, err := sc.store.StageFile(sc.fs, rel)
	if err != nil {
		if errors.Is(err, ftmerr.ErrStale) || errors.Is(err, ftmerr.ErrEmpty) || os.IsNotExist(err) {
			report.Skipped++
			return nil
		}
		return fmt.Errorf("scan: stage %s: %w", rel, err)
	}

	if ok && !last.IsDelete() && last.Checksum == w.Checksum() {
		_ = w.Discard()
		report.Unchanged++
		return nil
	}

	checksum, size, err := w.Publish()
	if err != nil {
		return fmt.Errorf("scan: publish %s: %w", rel, err)
	}

	entry, recorded := idx.RecordSnapshot(rel, checksum, size, mtimeNanos)
	if !recorded {
		return nil
	}
	if entry.Op == history.OpCreate {
		report.Created++
	} else {
		report.Modified++
	}
	return nil
}
