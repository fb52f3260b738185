package command

import (
	"context"
	"fmt"

	"github.com/pmcraft/pmcraft-hub/internal/domain/progress"
	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DELETE PROGRESS COMMAND
// Account-deletion path: removes the progress record and its cached stats
// projection. Called by the identity-provider collaborator.
// ══════════════════════════════════════════════════════════════════════════════

// DeleteProgressCommand identifies the user whose record is removed.
type DeleteProgressCommand struct {
	// UserID is the opaque identifier from the identity provider.
	UserID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c DeleteProgressCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	return nil
}

// DeleteProgressHandler handles the DeleteProgressCommand.
type DeleteProgressHandler struct {
	progressRepo progress.Repository
	statsCache   progress.StatsCache
}

// NewDeleteProgressHandler creates a new DeleteProgressHandler.
func NewDeleteProgressHandler(progressRepo progress.Repository, statsCache progress.StatsCache) *DeleteProgressHandler {
	return &DeleteProgressHandler{
		progressRepo: progressRepo,
		statsCache:   statsCache,
	}
}

// Handle removes the user's progress record.
// Returns ErrProgressNotFound for unknown users.
func (h *DeleteProgressHandler) Handle(ctx context.Context, cmd DeleteProgressCommand) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("delete_progress: %w", err)
	}

	userID, _ := shared.NewUserID(cmd.UserID)

	if err := h.progressRepo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete_progress: %w", err)
	}

	invalidateStats(ctx, h.statsCache, userID)
	return nil
}
