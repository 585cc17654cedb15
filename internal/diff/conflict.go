package diff

import "strings"

const (
	markerOurs   = "<<<<<<<"
	markerSep    = "======="
	markerTheirs = ">>>>>>>"
)

// Conflict is one two-way conflict block. The base side is not represented.
type Conflict struct {
	OursLabel   string
	TheirsLabel string
	Ours        []string
	Theirs      []string
	StartLine   int // 1-indexed line of the <<<<<<< marker
	EndLine     int // 1-indexed line of the >>>>>>> marker
}

// HasConflictMarkers reports whether text contains at least one complete
// conflict block.
func HasConflictMarkers(text string) bool {
	return len(ParseConflicts(text)) > 0
}

// ParseConflicts scans text line by line for conflict blocks. Blocks that are
// never closed are dropped.
func ParseConflicts(text string) []Conflict {
	const (
		outside = iota
		inOurs
		inTheirs
	)

	var (
		conflicts []Conflict
		current   Conflict
		state     = outside
	)

	for i, line := range SplitLines(text) {
		switch state {
		case outside:
			if strings.HasPrefix(line, markerOurs) {
				current = Conflict{
					OursLabel: markerLabel(line, markerOurs),
					StartLine: i + 1,
				}
				state = inOurs
			}
		case inOurs:
			switch {
			case strings.HasPrefix(line, markerSep) && strings.TrimSpace(line) == markerSep:
				state = inTheirs
			case strings.HasPrefix(line, markerOurs):
				// A fresh opener restarts the block.
				current = Conflict{
					OursLabel: markerLabel(line, markerOurs),
					StartLine: i + 1,
				}
			default:
				current.Ours = append(current.Ours, line)
			}
		case inTheirs:
			if strings.HasPrefix(line, markerTheirs) {
				current.TheirsLabel = markerLabel(line, markerTheirs)
				current.EndLine = i + 1
				conflicts = append(conflicts, current)
				current = Conflict{}
				state = outside
				continue
			}
			current.Theirs = append(current.Theirs, line)
		}
	}
	return conflicts
}

func markerLabel(line, marker string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, marker))
}
