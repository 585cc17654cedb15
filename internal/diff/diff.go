package diff

import (
	"strings"

	"github.com/sokinpui/changepipe/model"
)

// Lines aligns oldText against newText and classifies every line.
//
// The alignment is greedy: at each mismatch it looks ahead in both sides for
// the other side's current line and takes the closer match. Ties favor
// treating the new line as an addition. When neither line reappears ahead,
// the pair is emitted as a replacement (removed, then added). The result is
// not guaranteed to be minimal; it is meant for display, not for patches.
func Lines(oldText, newText string) []model.DiffLine {
	oldLines := SplitLines(oldText)
	newLines := SplitLines(newText)

	out := make([]model.DiffLine, 0, len(oldLines)+len(newLines))
	i, j := 0, 0
	for i < len(oldLines) && j < len(newLines) {
		if oldLines[i] == newLines[j] {
			out = append(out, model.DiffLine{
				Kind:      model.DiffUnchanged,
				Text:      oldLines[i],
				OldLineNo: i + 1,
				NewLineNo: j + 1,
			})
			i++
			j++
			continue
		}

		oldAhead := indexFrom(newLines, oldLines[i], j)
		newAhead := indexFrom(oldLines, newLines[j], i)

		switch {
		case oldAhead >= 0 && (newAhead < 0 || oldAhead <= newAhead):
			out = append(out, added(newLines[j], j))
			j++
		case newAhead >= 0:
			out = append(out, removed(oldLines[i], i))
			i++
		default:
			out = append(out, removed(oldLines[i], i), added(newLines[j], j))
			i++
			j++
		}
	}

	for ; i < len(oldLines); i++ {
		out = append(out, removed(oldLines[i], i))
	}
	for ; j < len(newLines); j++ {
		out = append(out, added(newLines[j], j))
	}
	return out
}

// Stats counts additions and deletions by set membership: a new line is an
// addition when it appears nowhere in the old text, and an old line is a
// deletion when it appears nowhere in the new text. Duplicates are counted
// every time they occur. This is cheaper than Lines and only feeds summary
// badges.
func Stats(oldText, newText string) (additions, deletions int) {
	oldLines := SplitLines(oldText)
	newLines := SplitLines(newText)

	oldSet := make(map[string]struct{}, len(oldLines))
	for _, line := range oldLines {
		oldSet[line] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(newLines))
	for _, line := range newLines {
		newSet[line] = struct{}{}
	}

	for _, line := range newLines {
		if _, ok := oldSet[line]; !ok {
			additions++
		}
	}
	for _, line := range oldLines {
		if _, ok := newSet[line]; !ok {
			deletions++
		}
	}
	return additions, deletions
}

// Count tallies the kinds in an already computed diff.
func Count(lines []model.DiffLine) (unchanged, additions, deletions int) {
	for _, l := range lines {
		switch l.Kind {
		case model.DiffUnchanged:
			unchanged++
		case model.DiffAdded:
			additions++
		case model.DiffRemoved:
			deletions++
		}
	}
	return unchanged, additions, deletions
}

// SplitLines splits content into lines. Handles both LF and CRLF.
// Empty content has no lines, and a trailing newline does not produce an
// extra empty line.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}

// indexFrom returns how many steps past from the first occurrence of target
// in lines is, or -1.
func indexFrom(lines []string, target string, from int) int {
	for k := from; k < len(lines); k++ {
		if lines[k] == target {
			return k - from
		}
	}
	return -1
}

func added(text string, j int) model.DiffLine {
	return model.DiffLine{Kind: model.DiffAdded, Text: text, NewLineNo: j + 1}
}

func removed(text string, i int) model.DiffLine {
	return model.DiffLine{Kind: model.DiffRemoved, Text: text, OldLineNo: i + 1}
}
