// Package diffutil computes line-oriented diffs between two snapshot
// versions of a file. Line-mode diffing follows the standard technique for
// github.com/sergi/go-diff/diffmatchpatch: each distinct line is mapped to
// a single rune via DiffLinesToChars, the character-level Myers diff runs
// over that compact representation, then DiffCharsToLines expands the
// result back to whole lines.
package diffutil

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ContextLines is the number of unchanged lines kept around each change.
const ContextLines = 3

// LineOp is the kind of change a diff line represents.
type LineOp string

const (
	LineEqual  LineOp = "equal"
	LineInsert LineOp = "insert"
	LineDelete LineOp = "delete"
)

// Line is one line within a Hunk, with its op relative to the "from" text.
type Line struct {
	Op   LineOp `json:"op"`
	Text string `json:"text"`
}

// Hunk is a contiguous run of changed lines plus ContextLines of
// surrounding, unchanged context on each side.
type Hunk struct {
	FromLine int    `json:"from_line"`
	ToLine   int    `json:"to_line"`
	Lines    []Line `json:"lines"`
}

// Lines splits text into its line-mode diff, annotated line by line,
// without any hunk windowing. Used internally by Hunks and directly by
// callers that want the full annotated sequence.
func Lines(from, to string) []Line {
	dmp := diffmatchpatch.New()
	fromChars, toChars, lineArray := dmp.DiffLinesToChars(from, to)
	diffs := dmp.DiffMain(fromChars, toChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var out []Line
	for _, d := range diffs {
		op := LineEqual
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = LineInsert
		case diffmatchpatch.DiffDelete:
			op = LineDelete
		}

		text := strings.TrimSuffix(d.Text, "\n")
		for _, line := range strings.Split(text, "\n") {
			out = append(out, Line{Op: op, Text: line})
		}
	}
	return out
}

// Hunks groups the annotated line diff between from and to into hunks, each
// padded with up to ContextLines of unchanged lines on either side.
// Equal runs longer than 2*ContextLines are collapsed, splitting the diff
// into multiple hunks exactly as a conventional unified diff would.
func Hunks(from, to string) []Hunk {
	lines := Lines(from, to)

	var hunks []Hunk
	var cur *Hunk
	fromLine, toLine := 1, 1
	trailingEqual := 0

	flush := func() {
		if cur == nil {
			return
		}
		if trailingEqual > ContextLines {
			trim := trailingEqual - ContextLines
			cur.Lines = cur.Lines[:len(cur.Lines)-trim]
		}
		hunks = append(hunks, *cur)
		cur = nil
		trailingEqual = 0
	}

	pendingContext := make([]Line, 0, ContextLines)
	pendingFrom, pendingTo := fromLine, toLine

	for _, l := range lines {
		switch l.Op {
		case LineEqual:
			if cur == nil {
				pendingContext = append(pendingContext, l)
				if len(pendingContext) > ContextLines {
					drop := len(pendingContext) - ContextLines
					pendingFrom += drop
					pendingTo += drop
					pendingContext = pendingContext[drop:]
				}
			} else {
				cur.Lines = append(cur.Lines, l)
				trailingEqual++
				if trailingEqual > 2*ContextLines {
					tail := append([]Line{}, cur.Lines[len(cur.Lines)-ContextLines:]...)
					flush()
					pendingContext = append(pendingContext[:0], tail...)
					pendingFrom, pendingTo = fromLine+1-ContextLines, toLine+1-ContextLines
				}
			}
			fromLine++
			toLine++
		case LineDelete:
			if cur == nil {
				cur = &Hunk{FromLine: pendingFrom, ToLine: pendingTo, Lines: append([]Line{}, pendingContext...)}
				pendingContext = pendingContext[:0]
			}
			cur.Lines = append(cur.Lines, l)
			trailingEqual = 0
			fromLine++
		case LineInsert:
			if cur == nil {
				cur = &Hunk{FromLine: pendingFrom, ToLine: pendingTo, Lines: append([]Line{}, pendingContext...)}
				pendingContext = pendingContext[:0]
			}
			cur.Lines = append(cur.Lines, l)
			trailingEqual = 0
			toLine++
		}
	}
	flush()

	return hunks
}

// Unified renders hunks in a "@@ -from +to @@" text form, for
// CLI and log display.
func Unified(hunks []Hunk) string {
	var b strings.Builder
	for _, h := range hunks {
		fmt.Fprintf(&b, "@@ -%d +%d @@\n", h.FromLine, h.ToLine)
		for _, l := range h.Lines {
			prefix := " "
			switch l.Op {
			case LineInsert:
				prefix = "+"
			case LineDelete:
				prefix = "-"
			}
			b.WriteString(prefix)
			b.WriteString(l.Text)
			b.WriteString("\n")
		}
	}
	return b.String()
}
