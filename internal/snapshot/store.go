// Package snapshot implements the content-addressed blob store: file
// contents are staged to a temp file, hashed while streaming, then
// published to a two-level, single-hex-char fan-out path that spreads
// snapshots across 256 leaf directories.
package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	billy "github.com/go-git/go-billy/v5"

	"github.com/curioushi/ftm/internal/ftmerr"
	"github.com/curioushi/ftm/internal/tracelog"
)

const stageChunkSize = 64 * 1024

const (
	objectsDir = "snapshots"
	tmpDir     = "snapshots/.tmp"
)

// Store is a content-addressed, fan-out blob store rooted on a
// billy.Filesystem, with the on-disk layout
// snapshots/<h[0]>/<h[1]>/<sha256-hex>.
type Store struct {
	fs billy.Filesystem
}

// New returns a Store rooted at fs. Callers typically pass a billy
// filesystem chrooted to the metadata directory (.ftm) so objectsDir and
// tmpDir live under it.
func New(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

// fanout returns the two-level, single-hex-char directory path for a
// hex-encoded checksum: <h[0]>/<h[1]>.
func fanout(checksum string) (string, error) {
	if len(checksum) < 2 {
		return "", fmt.Errorf("snapshot: checksum %q too short", checksum)
	}
	return checksum[0:1] + "/" + checksum[1:2], nil
}

func objectPath(checksum string) (string, error) {
	dir, err := fanout(checksum)
	if err != nil {
		return "", err
	}
	return objectsDir + "/" + dir + "/" + checksum, nil
}

// Writer stages content to a temp file while hashing it, for later
// publishing by its resulting checksum.
type Writer struct {
	store *Store
	f     billy.File
	h     hash.Hash
	n     int64
}

// StageAndHash opens a Writer for staging new content. Callers must Write
// the full content, then call Publish (on success) or Discard (on error or
// if the content turned out to be unchanged, per history.Index's no-op
// rule) exactly once.
func (s *Store) StageAndHash() (*Writer, error) {
	if err := s.fs.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: mkdir %s: %w", tmpDir, err)
	}

	f, err := s.fs.TempFile(tmpDir, "stage-")
	if err != nil {
		return nil, fmt.Errorf("snapshot: tempfile: %w", err)
	}

	return &Writer{store: s, f: f, h: sha256.New()}, nil
}

// Write streams content into the staged file while updating the running
// hash.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if n > 0 {
		w.h.Write(p[:n])
		w.n += int64(n)
	}
	return n, err
}

// Size reports the number of bytes written so far.
func (w *Writer) Size() int64 { return w.n }

// Checksum returns the lowercase hex SHA-256 digest of everything written
// so far. It may be called before Publish to decide whether the content is
// unchanged from the file's last recorded snapshot.
func (w *Writer) Checksum() string {
	return hex.EncodeToString(w.h.Sum(nil))
}

// Discard closes and removes the staged temp file without publishing it.
// Safe to call after Publish (no-op) or on an already-discarded Writer.
func (w *Writer) Discard() error {
	if w.f == nil {
		return nil
	}
	name := w.f.Name()
	_ = w.f.Close()
	w.f = nil
	if err := w.store.fs.Remove(name); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("snapshot: remove staged file %s: %w", name, err)
	}
	return nil
}

// Publish closes the staged file and atomically renames it into the
// content-addressed fan-out path for its checksum. If an object with that
// checksum already exists, the staged file is discarded instead (the
// existing object is left untouched, since its content is identical).
func (w *Writer) Publish() (checksum string, size int64, err error) {
	if w.f == nil {
		return "", 0, errors.New("snapshot: writer already closed")
	}
	checksum = w.Checksum()
	size = w.n
	name := w.f.Name()

	if err := w.f.Close(); err != nil {
		w.f = nil
		return "", 0, fmt.Errorf("snapshot: close staged file: %w", err)
	}
	w.f = nil

	dest, err := objectPath(checksum)
	if err != nil {
		_ = w.store.fs.Remove(name)
		return "", 0, err
	}

	if _, statErr := w.store.fs.Stat(dest); statErr == nil {
		_ = w.store.fs.Remove(name)
		tracelog.Index.Printf("snapshot %s already present, discarding duplicate stage", checksum)
		return checksum, size, nil
	}

	dir, _ := fanout(checksum)
	if err := w.store.fs.MkdirAll(objectsDir+"/"+dir, 0o755); err != nil {
		_ = w.store.fs.Remove(name)
		return "", 0, fmt.Errorf("snapshot: mkdir %s: %w", dir, err)
	}

	if err := w.store.fs.Rename(name, dest); err != nil {
		return "", 0, fmt.Errorf("snapshot: rename %s -> %s: %w", name, dest, err)
	}

	tracelog.Index.Printf("snapshot published: %s (%d bytes)", checksum, size)
	return checksum, size, nil
}

// StageFile streams srcFS's file at rel in stageChunkSize chunks into a
// temp file while hashing, then re-stats the source. If the source's
// length no longer matches what was staged, a concurrent writer raced us:
// the staged file is discarded and ftmerr.ErrStale is returned, leaving the
// content to the next stable observation. A zero-byte file is discarded
// the same way and yields ftmerr.ErrEmpty.
// On success the Writer is left open, ready for the caller to Publish or
// Discard.
func (s *Store) StageFile(srcFS billy.Filesystem, rel string) (*Writer, error) {
	f, err := srcFS.Open(rel)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", rel, err)
	}
	defer f.Close()

	w, err := s.StageAndHash()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, stageChunkSize)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				_ = w.Discard()
				return nil, fmt.Errorf("snapshot: stage %s: %w", rel, writeErr)
			}
		}
		if readErr != nil {
			break
		}
	}

	if w.Size() == 0 {
		_ = w.Discard()
		return nil, ftmerr.ErrEmpty
	}

	info, err := srcFS.Stat(rel)
	if err != nil {
		_ = w.Discard()
		return nil, fmt.Errorf("snapshot: stat %s: %w", rel, err)
	}
	if info.Size() != w.Size() {
		_ = w.Discard()
		return nil, ftmerr.ErrStale
	}

	return w, nil
}

// Open returns a reader for the snapshot content addressed by checksum.
func (s *Store) Open(checksum string) (billy.File, error) {
	path, err := objectPath(checksum)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", checksum, err)
	}
	return f, nil
}

// Read returns the full bytes of the snapshot addressed by checksum,
// rehashing them first: a snapshot is only canonical if its content still
// hashes to its own name. A mismatch surfaces as ftmerr.ErrCorrupted
// rather than the wrong bytes, and restore must not write them to the
// working file.
func (s *Store) Read(checksum string) ([]byte, error) {
	f, err := s.Open(checksum)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ftmerr.ErrNotFound
		}
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	var buf bytes.Buffer
	if _, err := io.Copy(io.MultiWriter(h, &buf), f); err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", checksum, err)
	}

	if got := hex.EncodeToString(h.Sum(nil)); got != checksum {
		tracelog.Index.Printf("snapshot %s rehashed to %s, refusing read", checksum, got)
		return nil, ftmerr.ErrCorrupted
	}
	return buf.Bytes(), nil
}

// Has reports whether a snapshot with the given checksum exists.
func (s *Store) Has(checksum string) (bool, error) {
	path, err := objectPath(checksum)
	if err != nil {
		return false, err
	}
	_, err = s.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes the on-disk snapshot addressed by checksum and reports the
// number of bytes freed. It satisfies history.SnapshotDeleter. Deleting a
// checksum that no longer exists is not an error and frees zero bytes,
// since a concurrent GC pass may have already removed it.
func (s *Store) Delete(checksum string) (int64, error) {
	path, err := objectPath(checksum)
	if err != nil {
		return 0, err
	}

	info, err := s.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("snapshot: stat %s: %w", checksum, err)
	}

	if err := s.fs.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("snapshot: remove %s: %w", checksum, err)
	}

	tracelog.Cleaner.Printf("snapshot deleted: %s (%d bytes freed)", checksum, info.Size())
	return info.Size(), nil
}
