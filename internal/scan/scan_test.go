package scan

import (
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/suite"

	"github.com/curioushi/ftm/internal/config"
	"github.com/curioushi/ftm/internal/history"
	"github.com/curioushi/ftm/internal/pathmatch"
	"github.com/curioushi/ftm/internal/snapshot"
)

type ScanSuite struct {
	suite.Suite
}

func TestScanSuite(t *testing.T) {
	suite.Run(t, new(ScanSuite))
}

func writeFile(s *ScanSuite, fs billy.Filesystem, name, content string) {
	f, err := fs.Create(name)
	s.Require().NoError(err)
	_, err = f.Write([]byte(content))
	s.Require().NoError(err)
	s.Require().NoError(f.Close())
}

func (s *ScanSuite) newScanner(fs billy.Filesystem) (*Scanner, *snapshot.Store) {
	metaFS, err := fs.Chroot(".ftm")
	s.Require().NoError(err)
	store := snapshot.New(metaFS)
	matcher := pathmatch.New(config.DefaultPatterns, config.DefaultExcludes)
	return New(fs, store, matcher, config.Default().Settings), store
}

func (s *ScanSuite) TestScanRecordsNewFiles() {
	fs := memfs.New()
	writeFile(s, fs, "a.go", "package a")
	writeFile(s, fs, "b.bin", "ignored extension")

	sc, _ := s.newScanner(fs)
	idx := history.New()

	report, err := sc.Run(idx)
	s.Require().NoError(err)
	s.Equal(1, report.Created)
	s.Equal(1, report.FilesScanned)

	last, ok := idx.Last("a.go")
	s.True(ok)
	s.Equal(history.OpCreate, last.Op)
}

func (s *ScanSuite) TestRescanWithoutChangeIsNoOp() {
	fs := memfs.New()
	writeFile(s, fs, "a.go", "package a")

	sc, _ := s.newScanner(fs)
	idx := history.New()
	_, err := sc.Run(idx)
	s.Require().NoError(err)

	report, err := sc.Run(idx)
	s.Require().NoError(err)
	s.Equal(0, report.Created)
	s.Equal(0, report.Modified)
	s.Len(idx.History("a.go"), 1)
}

func (s *ScanSuite) TestScanDetectsDeletion() {
	fs := memfs.New()
	writeFile(s, fs, "a.go", "package a")

	sc, _ := s.newScanner(fs)
	idx := history.New()
	_, err := sc.Run(idx)
	s.Require().NoError(err)

	s.Require().NoError(fs.Remove("a.go"))

	report, err := sc.Run(idx)
	s.Require().NoError(err)
	s.Equal(1, report.Deleted)

	last, _ := idx.Last("a.go")
	s.True(last.IsDelete())
}

func (s *ScanSuite) TestMetaDirExcludedFromScan() {
	fs := memfs.New()
	writeFile(s, fs, "a.go", "package a")
	writeFile(s, fs, ".ftm/index.json", "{}")

	sc, _ := s.newScanner(fs)
	idx := history.New()
	report, err := sc.Run(idx)
	s.Require().NoError(err)
	s.Equal(1, report.FilesScanned)
}
