package parser

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sokinpui/changepipe/internal/logging"
	"github.com/sokinpui/changepipe/model"
)

var (
	// editInfoRegex matches the "language:path" annotation of an edit fence.
	editInfoRegex = regexp.MustCompile(`^(?P<lang>\w+):(?P<path>.+)$`)

	// windowsDriveRegex matches a path that still looks like the tail of a
	// drive-letter path once "C:" has been taken as the language.
	windowsDriveRegex = regexp.MustCompile(`^[\\/]`)
)

// Extractor turns model markdown into edit intents.
type Extractor struct {
	// Extensions limits extraction to these file extensions (".go", ".ts").
	// Empty means no filter.
	Extensions []string
	Logger     logging.Logger
}

// Extract parses markdown with no extension filter.
func Extract(markdown string) []model.EditIntent {
	return (&Extractor{}).Extract(markdown)
}

// Extract returns one intent per annotated, closed fence. When several
// fences target the same path the last one wins, while the path keeps the
// position of its first appearance.
func (e *Extractor) Extract(markdown string) []model.EditIntent {
	log := logging.OrNop(e.Logger)

	blocks, err := ExtractCodeBlocks([]byte(markdown))
	if err != nil {
		log.Warn("markdown parse failed", "error", err)
		return nil
	}

	var (
		order   []string
		byPath  = make(map[string]model.EditIntent)
		skipped int
	)
	for _, block := range blocks {
		if !block.Closed {
			continue
		}
		lang, path, ok := parseEditInfo(block.Info)
		if !ok {
			continue
		}
		if isAmbiguousDrivePath(lang, path) {
			log.Warn("skipping fence with ambiguous drive-letter path", "info", block.Info)
			skipped++
			continue
		}
		if !hasAllowedExtension(path, e.Extensions) {
			continue
		}

		if _, seen := byPath[path]; !seen {
			order = append(order, path)
		} else {
			log.Debug("later fence overrides earlier one", "path", path)
		}
		byPath[path] = model.EditIntent{
			FilePath:        path,
			Language:        lang,
			ProposedContent: trimTrailingNewline(block.Content),
		}
	}

	intents := make([]model.EditIntent, 0, len(order))
	for _, path := range order {
		intents = append(intents, byPath[path])
	}
	log.Debug("extracted edit intents", "fences", len(blocks), "intents", len(intents), "skipped", skipped)
	return intents
}

// trimTrailingNewline removes the one line ending that closes a fence body,
// CRLF included.
func trimTrailingNewline(content string) string {
	if trimmed, ok := strings.CutSuffix(content, "\r\n"); ok {
		return trimmed
	}
	return strings.TrimSuffix(content, "\n")
}

func parseEditInfo(info string) (lang, path string, ok bool) {
	match := editInfoRegex.FindStringSubmatch(strings.TrimSpace(info))
	if match == nil {
		return "", "", false
	}
	lang = match[editInfoRegex.SubexpIndex("lang")]
	path = strings.TrimSpace(match[editInfoRegex.SubexpIndex("path")])
	if path == "" {
		return "", "", false
	}
	return lang, path, true
}

// isAmbiguousDrivePath flags "C:\src\a.ts" style annotations, which cannot be
// told apart from a one-letter language followed by a rooted path.
func isAmbiguousDrivePath(lang, path string) bool {
	return len(lang) == 1 && windowsDriveRegex.MatchString(path)
}

func hasAllowedExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, allowedExt := range extensions {
		if ext == allowedExt {
			return true
		}
	}
	return false
}
