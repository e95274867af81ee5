package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/curioushi/ftm/internal/pathmatch"
)

// WatcherSuite exercises the watcher against the real OS notification
// facility on a temp directory; every wait is generous so slow CI
// filesystems don't flake it.
type WatcherSuite struct {
	suite.Suite
	root string
	w    *Watcher
}

func TestWatcherSuite(t *testing.T) {
	suite.Run(t, new(WatcherSuite))
}

func (s *WatcherSuite) SetupTest() {
	s.root = s.T().TempDir()
	matcher := pathmatch.New([]string{"*.txt"}, nil)

	w, err := New(s.root, matcher)
	s.Require().NoError(err)
	s.w = w
	s.w.Start()
}

func (s *WatcherSuite) TearDownTest() {
	s.Require().NoError(s.w.Close())
}

// waitForIntent drains batches until one contains an intent satisfying
// match, or the deadline passes.
func (s *WatcherSuite) waitForIntent(match func(Intent) bool) Intent {
	deadline := time.After(5 * time.Second)
	for {
		select {
		case batch := <-s.w.Batches:
			for _, in := range batch {
				if match(in) {
					return in
				}
			}
		case <-deadline:
			s.FailNow("no matching intent before deadline")
			return Intent{}
		}
	}
}

func (s *WatcherSuite) TestWriteEmitsSnapshotIntent() {
	path := filepath.Join(s.root, "a.txt")
	s.Require().NoError(os.WriteFile(path, []byte("hello"), 0o644))

	in := s.waitForIntent(func(in Intent) bool {
		return in.Kind == Snapshot && in.Path == "a.txt"
	})
	s.Equal("a.txt", in.Path)
}

func (s *WatcherSuite) TestRemoveEmitsDeletePrefix() {
	path := filepath.Join(s.root, "b.txt")
	s.Require().NoError(os.WriteFile(path, []byte("bye"), 0o644))
	s.waitForIntent(func(in Intent) bool {
		return in.Kind == Snapshot && in.Path == "b.txt"
	})

	s.Require().NoError(os.Remove(path))
	s.waitForIntent(func(in Intent) bool {
		return in.Kind == DeletePrefix && in.Path == "b.txt"
	})
}

func (s *WatcherSuite) TestNewDirectoryIsWatchedAndWalked() {
	sub := filepath.Join(s.root, "sub")
	s.Require().NoError(os.Mkdir(sub, 0o755))
	s.Require().NoError(os.WriteFile(filepath.Join(sub, "c.txt"), []byte("nested"), 0o644))

	s.waitForIntent(func(in Intent) bool {
		return in.Kind == Snapshot && in.Path == "sub/c.txt"
	})
}

func (s *WatcherSuite) TestNonMatchingFilesProduceNoSnapshot() {
	s.Require().NoError(os.WriteFile(filepath.Join(s.root, "ignored.bin"), []byte("x"), 0o644))
	s.Require().NoError(os.WriteFile(filepath.Join(s.root, "kept.txt"), []byte("y"), 0o644))

	in := s.waitForIntent(func(in Intent) bool { return in.Kind == Snapshot })
	s.Equal("kept.txt", in.Path)
}

func (s *WatcherSuite) TestMetaDirEventsAreIgnored() {
	meta := filepath.Join(s.root, pathmatch.MetaDirName)
	s.Require().NoError(os.Mkdir(meta, 0o755))
	s.Require().NoError(os.WriteFile(filepath.Join(meta, "index.json"), []byte("[]"), 0o644))
	s.Require().NoError(os.WriteFile(filepath.Join(s.root, "real.txt"), []byte("z"), 0o644))

	in := s.waitForIntent(func(in Intent) bool { return in.Kind == Snapshot })
	s.Equal("real.txt", in.Path)
}
