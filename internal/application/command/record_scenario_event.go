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
// RECORD SCENARIO EVENT COMMAND
// Converts a scored practice-scenario attempt into durable progress state:
// best score, attempt count, first-attempt and completion XP, streak update,
// achievement unlocks. One atomic write per user per event.
// ══════════════════════════════════════════════════════════════════════════════

// RecordScenarioEventCommand contains the data of a scenario attempt.
type RecordScenarioEventCommand struct {
	// UserID is the opaque identifier from the identity provider.
	UserID string

	// ScenarioID is the scenario slug from the content catalog.
	ScenarioID string

	// Score is the evaluation result for this attempt (0-100).
	Score int

	// TimeSpent is the time spent in minutes.
	TimeSpent int

	// Timestamp is when the event occurred (defaults to now if zero).
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command before any state is touched.
func (c RecordScenarioEventCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if !shared.ContentID(c.ScenarioID).IsValid() {
		return shared.ErrInvalidScenarioID
	}
	if !shared.Score(c.Score).IsValid() {
		return shared.ErrInvalidScore
	}
	if !shared.Minutes(c.TimeSpent).IsValid() {
		return shared.ErrInvalidTimeSpent
	}
	return nil
}

// RecordScenarioEventResult contains the result of applying a scenario attempt.
type RecordScenarioEventResult struct {
	// Stats is the updated stats projection.
	Stats progress.Stats

	// XPAwarded is the XP earned by this event, unlock bonuses included.
	XPAwarded int

	// IsNewBest indicates the attempt beat the previous best score.
	IsNewBest bool

	// JustCompleted indicates the scenario flipped to completed.
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

// RecordScenarioEventHandler handles the RecordScenarioEventCommand.
type RecordScenarioEventHandler struct {
	progressRepo   progress.Repository
	catalogRepo    achievement.CatalogRepository
	statsCache     progress.StatsCache
	eventPublisher shared.EventPublisher
}

// NewRecordScenarioEventHandler creates a new RecordScenarioEventHandler.
func NewRecordScenarioEventHandler(
	progressRepo progress.Repository,
	catalogRepo achievement.CatalogRepository,
	statsCache progress.StatsCache,
	eventPublisher shared.EventPublisher,
) *RecordScenarioEventHandler {
	return &RecordScenarioEventHandler{
		progressRepo:   progressRepo,
		catalogRepo:    catalogRepo,
		statsCache:     statsCache,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the record scenario event command.
func (h *RecordScenarioEventHandler) Handle(ctx context.Context, cmd RecordScenarioEventCommand) (*RecordScenarioEventResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_scenario_event: %w", err)
	}

	userID, _ := shared.NewUserID(cmd.UserID)
	scenarioID := shared.ContentID(cmd.ScenarioID)
	score := shared.Score(cmd.Score)
	timeSpent := shared.Minutes(cmd.TimeSpent)
	now := eventTimestamp(cmd.Timestamp)

	catalog, err := loadCatalog(ctx, h.catalogRepo)
	if err != nil {
		return nil, fmt.Errorf("record_scenario_event: %w", err)
	}

	result := &RecordScenarioEventResult{}

	applied, events, err := applyWithConflictRetry(ctx, h.progressRepo, userID, func(p *progress.UserProgress) ([]shared.Event, error) {
		var evs []shared.Event

		oldXP := p.XP

		change := p.TouchActivity(now)
		evs = append(evs, streakEvents(p, change, cmd.CorrelationID)...)

		outcome, err := p.RecordScenarioAttempt(scenarioID, score, timeSpent, now)
		if err != nil {
			return nil, err
		}

		rec := p.ScenarioRecords[scenarioID.String()]
		event := shared.NewScenarioAttemptedEvent(
			p.UserID.String(), scenarioID.String(),
			score.Int(), rec.BestScore.Int(), rec.Attempts,
			outcome.XPDelta.Int(), rec.Completed,
		)
		if cmd.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		evs = append(evs, event)

		unlocked, unlockEvents, err := unlockNewAchievements(p, catalog, now, cmd.CorrelationID)
		if err != nil {
			return nil, err
		}
		evs = append(evs, unlockEvents...)

		totalDelta := p.XP - oldXP
		if totalDelta > 0 {
			xpEvent := shared.NewXPAwardedEvent(p.UserID.String(), totalDelta.Int(), p.XP.Int(), "scenario", scenarioID.String())
			if cmd.CorrelationID != "" {
				xpEvent.BaseEvent = xpEvent.BaseEvent.WithCorrelationID(cmd.CorrelationID)
			}
			evs = append(evs, xpEvent)
		}

		if newLevel := progress.LevelFor(p.XP); newLevel > progress.LevelFor(oldXP) {
			lvlEvent := shared.NewLevelUpEvent(p.UserID.String(), progress.LevelFor(oldXP).Int(), newLevel.Int(), p.XP.Int())
			if cmd.CorrelationID != "" {
				lvlEvent.BaseEvent = lvlEvent.BaseEvent.WithCorrelationID(cmd.CorrelationID)
			}
			evs = append(evs, lvlEvent)
		}

		result.XPAwarded = totalDelta.Int()
		result.IsNewBest = outcome.IsNewBest
		result.JustCompleted = outcome.JustCompleted
		result.LeveledUp = progress.LevelFor(p.XP) > progress.LevelFor(oldXP)
		result.UnlockedAchievements = unlocked

		return evs, nil
	})
	if err != nil {
		return nil, fmt.Errorf("record_scenario_event: %w", err)
	}

	invalidateStats(ctx, h.statsCache, userID)
	publishAll(h.eventPublisher, events)

	result.Stats = applied.Snapshot()
	result.Events = events

	return result, nil
}
