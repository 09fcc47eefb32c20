package revision

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType classifies a diff line.
type LineType int

const (
	LineContext LineType = iota
	LineAdded
	LineRemoved
)

// Line is one line of a revision diff.
type Line struct {
	Type    LineType
	Content string
}

// Hunk groups nearby changes with shared context.
type Hunk struct {
	OldStart, OldCount int
	NewStart, NewCount int
	Lines              []Line
}

// contextLines is the number of unchanged lines kept around each change.
const contextLines = 3

// DiffDocuments computes a line-level diff between two revision documents.
func DiffDocuments(old, new string) []Hunk {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	// Line-mode pass keeps line boundaries intact through the char diff.
	// No semantic cleanup here: it shifts runes across segment boundaries,
	// and in char-encoded form each rune is a whole line.
	a, b, lineArray := dmp.DiffLinesToChars(old, new)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var all []Line
	for _, d := range diffs {
		lines := splitLines(d.Text)
		for _, text := range lines {
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				all = append(all, Line{Type: LineAdded, Content: text})
			case diffmatchpatch.DiffDelete:
				all = append(all, Line{Type: LineRemoved, Content: text})
			default:
				all = append(all, Line{Type: LineContext, Content: text})
			}
		}
	}
	return buildHunks(all)
}

// RenderUnified renders hunks in unified diff format with @@ headers.
func RenderUnified(hunks []Hunk) string {
	var sb strings.Builder
	for _, h := range hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				sb.WriteString("+")
			case LineRemoved:
				sb.WriteString("-")
			default:
				sb.WriteString(" ")
			}
			sb.WriteString(l.Content)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// WordDiff highlights intra-line changes between two single lines, used by
// the TUI revision view. Returns old and new renderings with [-..-]/{+..+}
// markers.
func WordDiff(old, new string) (string, string) {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(old, new, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var oldOut, newOut strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			oldOut.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			newOut.WriteString("{+" + d.Text + "+}")
		default:
			oldOut.WriteString(d.Text)
			newOut.WriteString(d.Text)
		}
	}
	return oldOut.String(), newOut.String()
}

// buildHunks groups changed lines into hunks with contextLines of context.
func buildHunks(all []Line) []Hunk {
	// Mark which lines are close enough to a change to keep.
	changed := make([]bool, len(all))
	for i, l := range all {
		if l.Type != LineContext {
			changed[i] = true
		}
	}
	keep := make([]bool, len(all))
	for i := range all {
		if !changed[i] {
			continue
		}
		lo := i - contextLines
		if lo < 0 {
			lo = 0
		}
		hi := i + contextLines
		if hi >= len(all) {
			hi = len(all) - 1
		}
		for j := lo; j <= hi; j++ {
			keep[j] = true
		}
	}

	var (
		hunks   []Hunk
		current *Hunk
		oldLine = 1
		newLine = 1
	)
	flush := func() {
		if current != nil && len(current.Lines) > 0 {
			hunks = append(hunks, *current)
		}
		current = nil
	}
	for i, l := range all {
		if !keep[i] {
			flush()
		} else {
			if current == nil {
				current = &Hunk{OldStart: oldLine, NewStart: newLine}
			}
			current.Lines = append(current.Lines, l)
			switch l.Type {
			case LineAdded:
				current.NewCount++
			case LineRemoved:
				current.OldCount++
			default:
				current.OldCount++
				current.NewCount++
			}
		}
		switch l.Type {
		case LineAdded:
			newLine++
		case LineRemoved:
			oldLine++
		default:
			oldLine++
			newLine++
		}
	}
	flush()
	return hunks
}

func splitLines(text string) []string {
	trimmed := strings.TrimSuffix(text, "\n")
	if trimmed == "" && text != "" {
		return []string{""}
	}
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}
