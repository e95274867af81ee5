package history

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"

	"github.com/curioushi/ftm/internal/tracelog"
)

// Index is the in-memory, authoritative sequence of HistoryEntry values,
// plus a derived view from file path to the position of that file's last
// entry. The view is always rebuildable from Entries alone; callers must
// never persist it separately.
type Index struct {
	Entries []Entry
	view    map[string]int
}

// New returns an empty Index.
func New() *Index {
	return &Index{view: make(map[string]int)}
}

// Load reads the index file at path on fs. A missing file yields an empty
// Index, matching first-checkout behavior.
func Load(fs billy.Filesystem, path string) (*Index, error) {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", path, err)
	}

	idx := New()
	if len(data) > 0 {
		if err := json.Unmarshal(data, &idx.Entries); err != nil {
			return nil, fmt.Errorf("history: parse %s: %w", path, err)
		}
	}
	idx.rebuildView()
	return idx, nil
}

// Save serializes the Index to path on fs via a temp-file-then-rename, so
// a concurrent reader never observes a partially written file.
func (idx *Index) Save(fs billy.Filesystem, path string) error {
	data, err := json.Marshal(idx.Entries)
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}

	tmp := path + ".tmp"
	w, err := fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("history: create %s: %w", tmp, err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("history: write %s: %w", tmp, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("history: close %s: %w", tmp, err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("history: rename %s -> %s: %w", tmp, path, err)
	}

	tracelog.Index.Printf("saved %d entries to %s", len(idx.Entries), path)
	return nil
}

// rebuildView recomputes the file -> last-entry-index map from Entries.
// Called after Load and after any trim that removes entries from the
// front.
func (idx *Index) rebuildView() {
	idx.view = make(map[string]int, len(idx.Entries))
	for i, e := range idx.Entries {
		idx.view[e.File] = i
	}
}

// Last returns the most recent entry recorded for file, if any.
func (idx *Index) Last(file string) (Entry, bool) {
	i, ok := idx.view[file]
	if !ok {
		return Entry{}, false
	}
	return idx.Entries[i], true
}

// ReferencedChecksums returns the set of every checksum currently
// appearing in the Entries sequence, used by orphan GC to decide which
// on-disk snapshots are still live.
func (idx *Index) ReferencedChecksums() map[string]struct{} {
	set := make(map[string]struct{})
	for _, e := range idx.Entries {
		if e.Checksum != "" {
			set[e.Checksum] = struct{}{}
		}
	}
	return set
}

// Files returns every distinct file path that currently has at least one
// entry, in no particular order.
func (idx *Index) Files() []string {
	files := make([]string, 0, len(idx.view))
	for f := range idx.view {
		files = append(files, f)
	}
	return files
}

// RecordSnapshot appends the HistoryEntry produced by a new observation of
// file's content: Create for a first sighting or a reappearance after
// Delete, Modify otherwise. ok is false when the content is unchanged from
// the last entry, in which case the caller must discard the staged
// snapshot rather than publish it.
func (idx *Index) RecordSnapshot(file, checksum string, size, mtimeNanos int64) (entry Entry, ok bool) {
	last, has := idx.Last(file)

	op := OpModify
	switch {
	case !has:
		op = OpCreate
	case last.IsDelete():
		op = OpCreate
	case last.Checksum == checksum:
		return Entry{}, false
	}

	e := Entry{
		Timestamp:  time.Now().UTC(),
		Op:         op,
		File:       file,
		Checksum:   checksum,
		Size:       size,
		MtimeNanos: mtimeNanos,
	}
	idx.append(e)
	return e, true
}

// RecordDelete appends a Delete entry for file, unless it has no prior
// entry or its last entry is already a Delete (both are no-ops).
func (idx *Index) RecordDelete(file string) (Entry, bool) {
	last, has := idx.Last(file)
	if !has || last.IsDelete() {
		return Entry{}, false
	}

	e := Entry{Timestamp: time.Now().UTC(), Op: OpDelete, File: file}
	idx.append(e)
	return e, true
}

// RecordDeletesUnderPrefix appends a Delete for every currently-live file
// equal to prefix or nested under it, used when a directory is removed or
// renamed away. It returns the files that were actually marked deleted.
func (idx *Index) RecordDeletesUnderPrefix(prefix string) []string {
	var deleted []string
	for _, f := range idx.Files() {
		if f != prefix && !strings.HasPrefix(f, prefix+"/") {
			continue
		}
		if _, ok := idx.RecordDelete(f); ok {
			deleted = append(deleted, f)
		}
	}
	return deleted
}

func (idx *Index) append(e Entry) {
	idx.Entries = append(idx.Entries, e)
	idx.view[e.File] = len(idx.Entries) - 1
}

// History returns every entry recorded for file, oldest first.
func (idx *Index) History(file string) []Entry {
	var out []Entry
	for _, e := range idx.Entries {
		if e.File == file {
			out = append(out, e)
		}
	}
	return out
}

// Activity returns every entry across all files whose Timestamp falls in
// [since, until], oldest first, optionally including Delete entries.
func (idx *Index) Activity(since, until time.Time, includeDeleted bool) []Entry {
	var out []Entry
	for _, e := range idx.Entries {
		if e.Timestamp.Before(since) || e.Timestamp.After(until) {
			continue
		}
		if e.IsDelete() && !includeDeleted {
			continue
		}
		out = append(out, e)
	}
	return out
}

// ChecksumsByPrefix returns the distinct non-empty checksums recorded for
// file that begin with prefix. Used by restore to resolve a short prefix
// to a full checksum, and to detect ambiguity when more than one matches.
func (idx *Index) ChecksumsByPrefix(file, prefix string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range idx.Entries {
		if e.File != file || e.Checksum == "" {
			continue
		}
		if !strings.HasPrefix(e.Checksum, prefix) {
			continue
		}
		if _, ok := seen[e.Checksum]; ok {
			continue
		}
		seen[e.Checksum] = struct{}{}
		out = append(out, e.Checksum)
	}
	return out
}
