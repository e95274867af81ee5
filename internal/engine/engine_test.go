package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/curioushi/ftm/internal/ftmerr"
	"github.com/curioushi/ftm/internal/history"
)

type EngineSuite struct {
	suite.Suite
	root string
	eng  *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.root = s.T().TempDir()
	s.eng = New()
	s.Require().NoError(s.eng.CheckoutWithOptions(s.root, CheckoutOptions{DisableWatcher: true}))
}

func (s *EngineSuite) TearDownTest() {
	s.Require().NoError(s.eng.Close())
}

func (s *EngineSuite) write(name, content string) {
	s.Require().NoError(os.WriteFile(filepath.Join(s.root, name), []byte(content), 0o644))
}

func (s *EngineSuite) TestCheckoutTwiceIsRefused() {
	err := s.eng.Checkout(s.root)
	s.ErrorIs(err, ftmerr.ErrAlreadyCheckedOut)
}

func (s *EngineSuite) TestScanRecordsCreateThenModify() {
	s.write("a.txt", "v1")
	report, err := s.eng.Scan()
	s.Require().NoError(err)
	s.Equal(1, report.Created)

	s.write("a.txt", "v2")
	report, err = s.eng.Scan()
	s.Require().NoError(err)
	s.Equal(1, report.Modified)

	entries, err := s.eng.History("a.txt")
	s.Require().NoError(err)
	s.Len(entries, 2)
}

func (s *EngineSuite) TestDedupAcrossFiles() {
	s.write("a.txt", "same")
	s.write("b.txt", "same")
	_, err := s.eng.Scan()
	s.Require().NoError(err)

	fa, _ := s.eng.History("a.txt")
	fb, _ := s.eng.History("b.txt")
	s.Require().Len(fa, 1)
	s.Require().Len(fb, 1)
	s.Equal(fa[0].Checksum, fb[0].Checksum)
}

func (s *EngineSuite) TestRestoreRoundTrip() {
	s.write("x.txt", "original")
	_, err := s.eng.Scan()
	s.Require().NoError(err)

	entries, err := s.eng.History("x.txt")
	s.Require().NoError(err)
	checksum := entries[0].Checksum

	s.write("x.txt", "overwritten")
	_, err = s.eng.Scan()
	s.Require().NoError(err)

	s.Require().NoError(s.eng.Restore("x.txt", checksum[:8]))

	data, err := os.ReadFile(filepath.Join(s.root, "x.txt"))
	s.Require().NoError(err)
	s.Equal("original", string(data))
}

func (s *EngineSuite) TestRestoreRejectsShortPrefix() {
	s.write("x.txt", "v1")
	_, err := s.eng.Scan()
	s.Require().NoError(err)

	err = s.eng.Restore("x.txt", "abc")
	s.ErrorIs(err, ftmerr.ErrPathInvalid)
}

func (s *EngineSuite) TestRestoreUnknownChecksumIsNotFound() {
	s.write("x.txt", "v1")
	_, err := s.eng.Scan()
	s.Require().NoError(err)

	err = s.eng.Restore("x.txt", "deadbeef")
	s.ErrorIs(err, ftmerr.ErrNotFound)
}

func (s *EngineSuite) TestCleanWithoutOrphansRemovesNone() {
	s.write("a.txt", "v1")
	_, err := s.eng.Scan()
	s.Require().NoError(err)

	report, err := s.eng.Clean()
	s.Require().NoError(err)
	s.Equal(0, report.OrphansRemoved)
}

func (s *EngineSuite) TestDiffBetweenWorkingAndChecksum() {
	s.write("a.txt", "line1\nline2\n")
	_, err := s.eng.Scan()
	s.Require().NoError(err)

	entries, err := s.eng.History("a.txt")
	s.Require().NoError(err)
	checksum := entries[0].Checksum

	s.write("a.txt", "line1\nline2 changed\n")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	hunks, err := s.eng.Diff(ctx, "a.txt", checksum, "working")
	s.Require().NoError(err)
	s.NotEmpty(hunks)
}

func (s *EngineSuite) TestFilesExcludesDeletedByDefault() {
	s.write("a.txt", "v1")
	_, err := s.eng.Scan()
	s.Require().NoError(err)
	s.Require().NoError(os.Remove(filepath.Join(s.root, "a.txt")))
	_, err = s.eng.Scan()
	s.Require().NoError(err)

	files, err := s.eng.Files(false)
	s.Require().NoError(err)
	s.Empty(files)

	files, err = s.eng.Files(true)
	s.Require().NoError(err)
	s.Len(files, 1)
	s.True(files[0].Deleted)
}

func (s *EngineSuite) TestDeleteRecreateSequence() {
	s.write("x.txt", "one")
	_, err := s.eng.Scan()
	s.Require().NoError(err)

	s.Require().NoError(os.Remove(filepath.Join(s.root, "x.txt")))
	_, err = s.eng.Scan()
	s.Require().NoError(err)

	s.write("x.txt", "three")
	_, err = s.eng.Scan()
	s.Require().NoError(err)

	entries, err := s.eng.History("x.txt")
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal(history.OpCreate, entries[0].Op)
	s.Equal(history.OpDelete, entries[1].Op)
	s.Equal(history.OpCreate, entries[2].Op)
	s.Empty(entries[1].Checksum)
	s.Zero(entries[1].Size)
}

func (s *EngineSuite) TestTrimUnderMaxHistory() {
	s.Require().NoError(s.eng.SetConfig("settings.max_history", "3"))

	contents := []string{"v1", "v22", "v333", "v4444", "v55555", "v666666"}
	var checksums []string
	for _, c := range contents {
		s.write("t.txt", c)
		_, err := s.eng.Scan()
		s.Require().NoError(err)
		entries, err := s.eng.History("t.txt")
		s.Require().NoError(err)
		checksums = append(checksums, entries[len(entries)-1].Checksum)
	}

	entries, err := s.eng.History("t.txt")
	s.Require().NoError(err)
	s.LessOrEqual(len(entries), 3)
	s.Equal(checksums[len(checksums)-1], entries[len(entries)-1].Checksum)

	_, err = s.eng.Snapshot(checksums[0])
	s.ErrorIs(err, ftmerr.ErrNotFound, "the oldest snapshot must be gone from disk")

	_, err = s.eng.Snapshot(checksums[len(checksums)-1])
	s.NoError(err)
}

func (s *EngineSuite) TestActivityReturnsEntriesInRange() {
	s.write("a.txt", "v1")
	_, err := s.eng.Scan()
	s.Require().NoError(err)

	entries, err := s.eng.Activity(time.Unix(0, 0), time.Now().Add(time.Hour), false)
	s.Require().NoError(err)
	s.Len(entries, 1)

	entries, err = s.eng.Activity(time.Unix(0, 0), time.Unix(1, 0), false)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *EngineSuite) TestRestoreRejectsTraversalAndMetaPaths() {
	err := s.eng.Restore("../evil.txt", "deadbeefdeadbeef")
	s.ErrorIs(err, ftmerr.ErrPathInvalid)

	err = s.eng.Restore("/etc/passwd", "deadbeefdeadbeef")
	s.ErrorIs(err, ftmerr.ErrPathInvalid)

	err = s.eng.Restore(".ftm/index.json", "deadbeefdeadbeef")
	s.ErrorIs(err, ftmerr.ErrPathInvalid)
}

func (s *EngineSuite) TestRestoreRecreatesDeletedFile() {
	s.write("gone.txt", "original")
	_, err := s.eng.Scan()
	s.Require().NoError(err)
	entries, err := s.eng.History("gone.txt")
	s.Require().NoError(err)
	checksum := entries[0].Checksum

	s.Require().NoError(os.Remove(filepath.Join(s.root, "gone.txt")))
	_, err = s.eng.Scan()
	s.Require().NoError(err)

	s.Require().NoError(s.eng.Restore("gone.txt", checksum[:8]))

	data, err := os.ReadFile(filepath.Join(s.root, "gone.txt"))
	s.Require().NoError(err)
	s.Equal("original", string(data))

	_, err = s.eng.Scan()
	s.Require().NoError(err)
	entries, err = s.eng.History("gone.txt")
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal(history.OpCreate, entries[2].Op)
	s.Equal(checksum, entries[2].Checksum)
}

func (s *EngineSuite) TestWatcherRecordsLiveWrite() {
	root := s.T().TempDir()
	eng := New()
	s.Require().NoError(eng.Checkout(root))
	defer eng.Close()

	s.Require().NoError(os.WriteFile(filepath.Join(root, "w.txt"), []byte("live"), 0o644))

	s.Require().Eventually(func() bool {
		entries, err := eng.History("w.txt")
		return err == nil && len(entries) == 1
	}, 5*time.Second, 50*time.Millisecond)

	entries, err := eng.History("w.txt")
	s.Require().NoError(err)
	s.Equal(history.OpCreate, entries[0].Op)
	s.EqualValues(4, entries[0].Size)
}

func (s *EngineSuite) TestWatcherRecordsLiveDelete() {
	root := s.T().TempDir()
	eng := New()
	s.Require().NoError(eng.Checkout(root))
	defer eng.Close()

	path := filepath.Join(root, "d.txt")
	s.Require().NoError(os.WriteFile(path, []byte("doomed"), 0o644))
	s.Require().Eventually(func() bool {
		entries, err := eng.History("d.txt")
		return err == nil && len(entries) == 1
	}, 5*time.Second, 50*time.Millisecond)

	s.Require().NoError(os.Remove(path))
	s.Require().Eventually(func() bool {
		entries, err := eng.History("d.txt")
		return err == nil && len(entries) == 2 && entries[1].IsDelete()
	}, 5*time.Second, 50*time.Millisecond)
}
