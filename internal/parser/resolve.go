package parser

import (
	"context"

	"github.com/google/uuid"

	"github.com/sokinpui/changepipe/internal/diff"
	"github.com/sokinpui/changepipe/internal/fs"
	"github.com/sokinpui/changepipe/internal/logging"
	"github.com/sokinpui/changepipe/model"
)

// Resolve reads the current content of every intent's file and builds
// pending changes. A failed read of any kind marks the change as a new file
// with empty original content; it is never reported as an error.
func Resolve(ctx context.Context, intents []model.EditIntent, reader fs.Reader, resolver *fs.PathResolver, logger logging.Logger) []model.FileChange {
	log := logging.OrNop(logger)

	changes := make([]model.FileChange, 0, len(intents))
	for _, intent := range intents {
		original, err := reader.ReadFile(ctx, resolver.Resolve(intent.FilePath))
		isNew := err != nil
		if isNew {
			log.Debug("treating unreadable file as new", "path", intent.FilePath, "error", err)
			original = ""
		}

		additions, deletions := diff.Stats(original, intent.ProposedContent)
		changes = append(changes, model.FileChange{
			ID:              uuid.NewString(),
			FilePath:        intent.FilePath,
			OriginalContent: original,
			NewContent:      intent.ProposedContent,
			Language:        intent.Language,
			IsNewFile:       isNew,
			Status:          model.StatusPending,
			Additions:       additions,
			Deletions:       deletions,
		})
	}
	return changes
}
