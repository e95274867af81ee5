package diffutil

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type DiffSuite struct {
	suite.Suite
}

func TestDiffSuite(t *testing.T) {
	suite.Run(t, new(DiffSuite))
}

func (s *DiffSuite) TestIdenticalTextHasNoHunks() {
	text := "a\nb\nc\n"
	hunks := Hunks(text, text)
	s.Empty(hunks)
}

func (s *DiffSuite) TestSingleLineChangeProducesOneHunk() {
	from := "a\nb\nc\nd\ne\n"
	to := "a\nb\nX\nd\ne\n"

	hunks := Hunks(from, to)
	s.Require().Len(hunks, 1)

	var deletes, inserts int
	for _, l := range hunks[0].Lines {
		switch l.Op {
		case LineDelete:
			deletes++
			s.Equal("c", l.Text)
		case LineInsert:
			inserts++
			s.Equal("X", l.Text)
		}
	}
	s.Equal(1, deletes)
	s.Equal(1, inserts)
}

func (s *DiffSuite) TestFarApartChangesProduceSeparateHunks() {
	var fromLines, toLines []string
	for i := 0; i < 30; i++ {
		fromLines = append(fromLines, "line")
		toLines = append(toLines, "line")
	}
	fromLines[1] = "alpha-old"
	toLines[1] = "alpha-new"
	fromLines[28] = "omega-old"
	toLines[28] = "omega-new"

	from := joinLines(fromLines)
	to := joinLines(toLines)

	hunks := Hunks(from, to)
	s.Len(hunks, 2)
}

func (s *DiffSuite) TestUnifiedRendersHeaderAndPrefixes() {
	from := "a\nb\n"
	to := "a\nx\n"
	out := Unified(Hunks(from, to))
	s.Contains(out, "@@")
	s.Contains(out, "-b")
	s.Contains(out, "+x")
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}
