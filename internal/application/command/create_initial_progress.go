// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/pmcraft/pmcraft-hub/internal/domain/progress"
	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE INITIAL PROGRESS COMMAND
// Called exactly once per user by the identity-provider collaborator on first
// sign-in. The engine never fabricates progress records on its own: a mutation
// addressed to an unprovisioned user is a NotFound error, not a lazy create.
// ══════════════════════════════════════════════════════════════════════════════

// CreateInitialProgressCommand contains the data to provision a user.
type CreateInitialProgressCommand struct {
	// UserID is the opaque identifier from the identity provider.
	UserID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CreateInitialProgressCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	return nil
}

// CreateInitialProgressResult contains the result of provisioning.
type CreateInitialProgressResult struct {
	// Stats is the zeroed stats projection of the new record.
	Stats progress.Stats

	// CreatedAt is when the record was created.
	CreatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CreateInitialProgressHandler handles the CreateInitialProgressCommand.
type CreateInitialProgressHandler struct {
	progressRepo   progress.Repository
	eventPublisher shared.EventPublisher
}

// NewCreateInitialProgressHandler creates a new CreateInitialProgressHandler.
func NewCreateInitialProgressHandler(
	progressRepo progress.Repository,
	eventPublisher shared.EventPublisher,
) *CreateInitialProgressHandler {
	return &CreateInitialProgressHandler{
		progressRepo:   progressRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the create initial progress command.
func (h *CreateInitialProgressHandler) Handle(ctx context.Context, cmd CreateInitialProgressCommand) (*CreateInitialProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("create_initial_progress: %w", err)
	}

	userID, err := shared.NewUserID(cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("create_initial_progress: %w", err)
	}

	p, err := progress.NewUserProgress(userID)
	if err != nil {
		return nil, fmt.Errorf("create_initial_progress: %w", err)
	}

	if err := h.progressRepo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create_initial_progress: %w", err)
	}

	if h.eventPublisher != nil {
		event := shared.NewProgressCreatedEvent(userID.String())
		if cmd.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		_ = h.eventPublisher.Publish(event)
	}

	return &CreateInitialProgressResult{
		Stats:     p.Snapshot(),
		CreatedAt: p.CreatedAt,
	}, nil
}
