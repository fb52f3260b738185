package command

import (
	"context"
	"fmt"
	"time"

	"github.com/pmcraft/pmcraft-hub/internal/domain/achievement"
	"github.com/pmcraft/pmcraft-hub/internal/domain/progress"
	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD LESSON EVENT COMMAND
// Converts a "lesson completed / lesson visited" learning event into durable
// progress state: time accumulation, one-time completion XP, streak update,
// achievement unlocks. The whole mutation is one atomic write per user.
// ══════════════════════════════════════════════════════════════════════════════

// RecordLessonEventCommand contains the data of a lesson event.
type RecordLessonEventCommand struct {
	// UserID is the opaque identifier from the identity provider.
	UserID string

	// LessonID is the lesson slug from the content catalog.
	LessonID string

	// Completed marks the lesson as finished.
	Completed bool

	// TimeSpent is the time spent in minutes.
	TimeSpent int

	// Score is the optional lesson quiz score (0-100).
	Score *int

	// Timestamp is when the event occurred (defaults to now if zero).
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command before any state is touched.
func (c RecordLessonEventCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if !shared.ContentID(c.LessonID).IsValid() {
		return shared.ErrInvalidLessonID
	}
	if !shared.Minutes(c.TimeSpent).IsValid() {
		return shared.ErrInvalidTimeSpent
	}
	if c.Score != nil && !shared.Score(*c.Score).IsValid() {
		return shared.ErrInvalidScore
	}
	return nil
}

// RecordLessonEventResult contains the result of applying a lesson event.
type RecordLessonEventResult struct {
	// Stats is the updated stats projection.
	Stats progress.Stats

	// XPAwarded is the XP earned by this event, unlock bonuses included.
	XPAwarded int

	// JustCompleted indicates the lesson flipped to completed.
	JustCompleted bool

	// LeveledUp indicates a level boundary was crossed.
	LeveledUp bool

	// UnlockedAchievements lists achievements unlocked by this event.
	UnlockedAchievements []achievement.Definition

	// Events contains the domain events published after commit.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordLessonEventHandler handles the RecordLessonEventCommand.
type RecordLessonEventHandler struct {
	progressRepo   progress.Repository
	catalogRepo    achievement.CatalogRepository
	statsCache     progress.StatsCache
	eventPublisher shared.EventPublisher
}

// NewRecordLessonEventHandler creates a new RecordLessonEventHandler.
func NewRecordLessonEventHandler(
	progressRepo progress.Repository,
	catalogRepo achievement.CatalogRepository,
	statsCache progress.StatsCache,
	eventPublisher shared.EventPublisher,
) *RecordLessonEventHandler {
	return &RecordLessonEventHandler{
		progressRepo:   progressRepo,
		catalogRepo:    catalogRepo,
		statsCache:     statsCache,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the record lesson event command.
func (h *RecordLessonEventHandler) Handle(ctx context.Context, cmd RecordLessonEventCommand) (*RecordLessonEventResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_lesson_event: %w", err)
	}

	userID, _ := shared.NewUserID(cmd.UserID)
	lessonID := shared.ContentID(cmd.LessonID)
	timeSpent := shared.Minutes(cmd.TimeSpent)
	var score *shared.Score
	if cmd.Score != nil {
		s := shared.Score(*cmd.Score)
		score = &s
	}
	now := eventTimestamp(cmd.Timestamp)

	catalog, err := loadCatalog(ctx, h.catalogRepo)
	if err != nil {
		return nil, fmt.Errorf("record_lesson_event: %w", err)
	}

	result := &RecordLessonEventResult{}

	applied, events, err := applyWithConflictRetry(ctx, h.progressRepo, userID, func(p *progress.UserProgress) ([]shared.Event, error) {
		var evs []shared.Event

		oldXP := p.XP

		change := p.TouchActivity(now)
		evs = append(evs, streakEvents(p, change, cmd.CorrelationID)...)

		outcome, err := p.RecordLessonEvent(lessonID, cmd.Completed, timeSpent, score, now)
		if err != nil {
			return nil, err
		}

		if outcome.JustCompleted {
			event := shared.NewLessonCompletedEvent(
				p.UserID.String(), lessonID.String(),
				outcome.XPDelta.Int(), timeSpent.Int(), cmd.Score,
			)
			if cmd.CorrelationID != "" {
				event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
			}
			evs = append(evs, event)
		}

		unlocked, unlockEvents, err := unlockNewAchievements(p, catalog, now, cmd.CorrelationID)
		if err != nil {
			return nil, err
		}
		evs = append(evs, unlockEvents...)

		totalDelta := p.XP - oldXP
		if totalDelta > 0 {
			event := shared.NewXPAwardedEvent(p.UserID.String(), totalDelta.Int(), p.XP.Int(), "lesson", lessonID.String())
			if cmd.CorrelationID != "" {
				event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
			}
			evs = append(evs, event)
		}

		if newLevel := progress.LevelFor(p.XP); newLevel > progress.LevelFor(oldXP) {
			event := shared.NewLevelUpEvent(p.UserID.String(), progress.LevelFor(oldXP).Int(), newLevel.Int(), p.XP.Int())
			if cmd.CorrelationID != "" {
				event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
			}
			evs = append(evs, event)
		}

		result.XPAwarded = totalDelta.Int()
		result.JustCompleted = outcome.JustCompleted
		result.LeveledUp = progress.LevelFor(p.XP) > progress.LevelFor(oldXP)
		result.UnlockedAchievements = unlocked

		return evs, nil
	})
	if err != nil {
		return nil, fmt.Errorf("record_lesson_event: %w", err)
	}

	invalidateStats(ctx, h.statsCache, userID)
	publishAll(h.eventPublisher, events)

	result.Stats = applied.Snapshot()
	result.Events = events

	return result, nil
}
