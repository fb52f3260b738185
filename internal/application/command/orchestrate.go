package command

import (
	"context"
	"errors"
	"time"

	"github.com/pmcraft/pmcraft-hub/internal/domain/achievement"
	"github.com/pmcraft/pmcraft-hub/internal/domain/progress"
	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
	"github.com/pmcraft/pmcraft-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ORCHESTRATION HELPERS
// The write path shared by both event commands: load the aggregate, apply the
// mutation in memory, then perform a single atomic compare-and-swap write.
// A lost race re-reads fresh state and re-applies the whole mutation -
// bounded to 3 attempts, after which the conflict surfaces to the caller.
// ══════════════════════════════════════════════════════════════════════════════

// mutateFunc applies a full event mutation to a freshly loaded aggregate and
// returns the domain events to publish after a successful commit.
type mutateFunc func(p *progress.UserProgress) ([]shared.Event, error)

// applyWithConflictRetry runs the read-modify-write cycle under optimistic
// concurrency. Events are returned only from the attempt that committed;
// nothing is published for attempts that lost the race.
func applyWithConflictRetry(
	ctx context.Context,
	repo progress.Repository,
	userID shared.UserID,
	mutate mutateFunc,
) (*progress.UserProgress, []shared.Event, error) {
	var (
		applied *progress.UserProgress
		events  []shared.Event
	)

	err := retry.ConflictRetrier().Do(ctx, func(ctx context.Context) error {
		p, err := repo.GetByUserID(ctx, userID)
		if err != nil {
			return retry.Permanent(err)
		}

		evs, err := mutate(p)
		if err != nil {
			return retry.Permanent(err)
		}

		if err := repo.Save(ctx, p); err != nil {
			if shared.IsConflict(err) {
				return retry.Retryable(err)
			}
			return retry.Permanent(err)
		}

		applied = p
		events = evs
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return applied, events, nil
}

// unlockNewAchievements runs the achievement evaluator over the mutated
// aggregate and applies every newly satisfied unlock, including its XP award,
// to the same in-memory state that the caller will commit in one write.
// Unlock failures are never swallowed: a double-unlock here means the
// evaluator and the aggregate disagree, which is a programming error.
func unlockNewAchievements(
	p *progress.UserProgress,
	catalog achievement.Catalog,
	now time.Time,
	correlationID string,
) ([]achievement.Definition, []shared.Event, error) {
	satisfied := achievement.Evaluate(p, catalog)
	if len(satisfied) == 0 {
		return nil, nil, nil
	}

	events := make([]shared.Event, 0, len(satisfied))
	for _, def := range satisfied {
		if err := p.UnlockAchievement(def.ID, progress.XP(def.Points), now); err != nil {
			return nil, nil, err
		}

		event := shared.NewAchievementUnlockedEvent(p.UserID.String(), def.ID, def.Title, def.Points)
		if correlationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(correlationID)
		}
		events = append(events, event)
	}

	return satisfied, events, nil
}

// streakEvents converts a streak change into domain events.
func streakEvents(p *progress.UserProgress, change progress.StreakChange, correlationID string) []shared.Event {
	var events []shared.Event

	if change.Broken {
		event := shared.NewStreakBrokenEvent(p.UserID.String(), change.PreviousStreak, change.DaysMissed)
		if correlationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(correlationID)
		}
		events = append(events, event)
	}

	if change.Extended {
		event := shared.NewStreakExtendedEvent(p.UserID.String(), p.CurrentStreak, p.LongestStreak)
		if correlationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(correlationID)
		}
		events = append(events, event)
	}

	return events
}

// publishAll publishes committed events; publishing is best-effort and never
// fails the already-committed command.
func publishAll(publisher shared.EventPublisher, events []shared.Event) {
	if publisher == nil {
		return
	}
	for _, event := range events {
		_ = publisher.Publish(event)
	}
}

// invalidateStats drops the cached stats projection after a committed write.
// A cache miss on the next read repopulates it from the store.
func invalidateStats(ctx context.Context, cache progress.StatsCache, userID shared.UserID) {
	if cache == nil {
		return
	}
	_ = cache.Invalidate(ctx, userID)
}

// eventTimestamp resolves the effective event time: the caller-supplied
// timestamp when present, otherwise now. Always UTC.
func eventTimestamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.UTC()
}

// loadCatalog fetches the achievement catalog, tolerating an empty catalog
// (no achievements configured) but not a broken repository.
func loadCatalog(ctx context.Context, repo achievement.CatalogRepository) (achievement.Catalog, error) {
	if repo == nil {
		return nil, nil
	}
	catalog, err := repo.LoadCatalog(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrCatalogEmpty) {
			return nil, nil
		}
		return nil, err
	}
	return catalog, nil
}
