package shared

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a kind of domain event, namespaced by aggregate:
// "progress.level_up", "achievement.unlocked".
type EventType string

const (
	// Progress events.
	EventProgressCreated   EventType = "progress.created"
	EventLessonCompleted   EventType = "progress.lesson_completed"
	EventScenarioAttempted EventType = "progress.scenario_attempted"
	EventScenarioCompleted EventType = "progress.scenario_completed"
	EventXPAwarded         EventType = "progress.xp_awarded"
	EventLevelUp           EventType = "progress.level_up"

	// Streak events.
	EventStreakExtended EventType = "progress.streak_extended"
	EventStreakBroken   EventType = "progress.streak_broken"
	EventStreakAtRisk   EventType = "progress.streak_at_risk"

	// Achievement events.
	EventAchievementUnlocked EventType = "achievement.unlocked"

	// System events.
	EventSweepCompleted EventType = "system.sweep_completed"
)

// Event is what the event bus carries. Events are published after the state
// change they describe is committed; subscribers observe facts, they do not
// get a vote.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time

	// AggregateID is the user ID for progress and achievement events and
	// the job name for system events.
	AggregateID() string

	// Payload flattens the event data for transport.
	Payload() map[string]interface{}
}

// BaseEvent carries the fields every event shares. Concrete events embed it
// and add their own data plus a Payload method.
type BaseEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggregateId }

// NewBaseEvent stamps a fresh event with an ID and a UTC timestamp.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID returns a copy tagged with the request that caused the
// event, so a log search by request ID finds its whole fan-out.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// ProgressCreatedEvent is emitted when the identity provider provisions the
// initial zeroed progress record for a new user.
type ProgressCreatedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
}

// Payload implements Event interface.
func (e ProgressCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
	}
}

// NewProgressCreatedEvent creates a new ProgressCreatedEvent.
func NewProgressCreatedEvent(userID string) ProgressCreatedEvent {
	return ProgressCreatedEvent{
		BaseEvent: NewBaseEvent(EventProgressCreated, userID),
		UserID:    userID,
	}
}

// LessonCompletedEvent is emitted the first time a lesson flips to completed.
type LessonCompletedEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	LessonID  string `json:"lesson_id"`
	XPEarned  int    `json:"xp_earned"`
	TimeSpent int    `json:"time_spent_minutes"`
	Score     *int   `json:"score,omitempty"`
}

// Payload implements Event interface.
func (e LessonCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":            e.UserID,
		"lesson_id":          e.LessonID,
		"xp_earned":          e.XPEarned,
		"time_spent_minutes": e.TimeSpent,
		"score":              e.Score,
	}
}

// NewLessonCompletedEvent creates a new LessonCompletedEvent.
func NewLessonCompletedEvent(userID, lessonID string, xpEarned, timeSpent int, score *int) LessonCompletedEvent {
	return LessonCompletedEvent{
		BaseEvent: NewBaseEvent(EventLessonCompleted, userID),
		UserID:    userID,
		LessonID:  lessonID,
		XPEarned:  xpEarned,
		TimeSpent: timeSpent,
		Score:     score,
	}
}

// ScenarioAttemptedEvent is emitted on every accepted scenario attempt.
type ScenarioAttemptedEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	ScenarioID string `json:"scenario_id"`
	Score      int    `json:"score"`
	BestScore  int    `json:"best_score"`
	Attempts   int    `json:"attempts"`
	XPEarned   int    `json:"xp_earned"`
	Completed  bool   `json:"completed"`
}

// Payload implements Event interface.
func (e ScenarioAttemptedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"scenario_id": e.ScenarioID,
		"score":       e.Score,
		"best_score":  e.BestScore,
		"attempts":    e.Attempts,
		"xp_earned":   e.XPEarned,
		"completed":   e.Completed,
	}
}

// NewScenarioAttemptedEvent creates a new ScenarioAttemptedEvent.
func NewScenarioAttemptedEvent(userID, scenarioID string, score, bestScore, attempts, xpEarned int, completed bool) ScenarioAttemptedEvent {
	return ScenarioAttemptedEvent{
		BaseEvent:  NewBaseEvent(EventScenarioAttempted, userID),
		UserID:     userID,
		ScenarioID: scenarioID,
		Score:      score,
		BestScore:  bestScore,
		Attempts:   attempts,
		XPEarned:   xpEarned,
		Completed:  completed,
	}
}

// XPAwardedEvent is emitted whenever a user's XP total grows.
type XPAwardedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	Amount   int    `json:"amount"`
	NewTotal int    `json:"new_total"`
	Source   string `json:"source"` // e.g., "lesson", "scenario", "achievement"
	SourceID string `json:"source_id,omitempty"`
}

// Payload implements Event interface.
func (e XPAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"amount":    e.Amount,
		"new_total": e.NewTotal,
		"source":    e.Source,
		"source_id": e.SourceID,
	}
}

// NewXPAwardedEvent creates a new XPAwardedEvent.
func NewXPAwardedEvent(userID string, amount, newTotal int, source, sourceID string) XPAwardedEvent {
	return XPAwardedEvent{
		BaseEvent: NewBaseEvent(EventXPAwarded, userID),
		UserID:    userID,
		Amount:    amount,
		NewTotal:  newTotal,
		Source:    source,
		SourceID:  sourceID,
	}
}

// LevelUpEvent is emitted when derived level crosses a boundary upwards.
type LevelUpEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
	TotalXP  int    `json:"total_xp"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
		"total_xp":  e.TotalXP,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID string, oldLevel, newLevel, totalXP int) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID),
		UserID:    userID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		TotalXP:   totalXP,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Events
// ═══════════════════════════════════════════════════════════════════════════

// StreakExtendedEvent is emitted when the current streak grows.
type StreakExtendedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
}

// Payload implements Event interface.
func (e StreakExtendedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"current_streak": e.CurrentStreak,
		"longest_streak": e.LongestStreak,
	}
}

// NewStreakExtendedEvent creates a new StreakExtendedEvent.
func NewStreakExtendedEvent(userID string, currentStreak, longestStreak int) StreakExtendedEvent {
	return StreakExtendedEvent{
		BaseEvent:     NewBaseEvent(EventStreakExtended, userID),
		UserID:        userID,
		CurrentStreak: currentStreak,
		LongestStreak: longestStreak,
	}
}

// StreakBrokenEvent is emitted when a gap of more than one day resets the
// streak.
type StreakBrokenEvent struct {
	BaseEvent
	UserID         string `json:"user_id"`
	PreviousStreak int    `json:"previous_streak"`
	DaysMissed     int    `json:"days_missed"`
}

// Payload implements Event interface.
func (e StreakBrokenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"previous_streak": e.PreviousStreak,
		"days_missed":     e.DaysMissed,
	}
}

// NewStreakBrokenEvent creates a new StreakBrokenEvent.
func NewStreakBrokenEvent(userID string, previousStreak, daysMissed int) StreakBrokenEvent {
	return StreakBrokenEvent{
		BaseEvent:      NewBaseEvent(EventStreakBroken, userID),
		UserID:         userID,
		PreviousStreak: previousStreak,
		DaysMissed:     daysMissed,
	}
}

// StreakAtRiskEvent is emitted by the background sweep for users whose streak
// dies at the next UTC midnight unless they are active today.
type StreakAtRiskEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	CurrentStreak int    `json:"current_streak"`
	HoursLeft     int    `json:"hours_left"`
}

// Payload implements Event interface.
func (e StreakAtRiskEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"current_streak": e.CurrentStreak,
		"hours_left":     e.HoursLeft,
	}
}

// NewStreakAtRiskEvent creates a new StreakAtRiskEvent.
func NewStreakAtRiskEvent(userID string, currentStreak, hoursLeft int) StreakAtRiskEvent {
	return StreakAtRiskEvent{
		BaseEvent:     NewBaseEvent(EventStreakAtRisk, userID),
		UserID:        userID,
		CurrentStreak: currentStreak,
		HoursLeft:     hoursLeft,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted when an achievement unlocks. The unlock
// and its XP bonus are already committed when this event is published.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	AchievementID string `json:"achievement_id"`
	Title         string `json:"title"`
	Points        int    `json:"points"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"achievement_id": e.AchievementID,
		"title":          e.Title,
		"points":         e.Points,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, achievementID, title string, points int) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, userID),
		UserID:        userID,
		AchievementID: achievementID,
		Title:         title,
		Points:        points,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// SweepCompletedEvent is emitted after a background sweep finishes.
type SweepCompletedEvent struct {
	BaseEvent
	JobName       string `json:"job_name"`
	UsersScanned  int    `json:"users_scanned"`
	EventsEmitted int    `json:"events_emitted"`
	DurationMS    int64  `json:"duration_ms"`
}

// Payload implements Event interface.
func (e SweepCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"job_name":       e.JobName,
		"users_scanned":  e.UsersScanned,
		"events_emitted": e.EventsEmitted,
		"duration_ms":    e.DurationMS,
	}
}

// NewSweepCompletedEvent creates a new SweepCompletedEvent.
func NewSweepCompletedEvent(jobName string, usersScanned, eventsEmitted int, duration time.Duration) SweepCompletedEvent {
	return SweepCompletedEvent{
		BaseEvent:     NewBaseEvent(EventSweepCompleted, jobName),
		JobName:       jobName,
		UsersScanned:  usersScanned,
		EventsEmitted: eventsEmitted,
		DurationMS:    duration.Milliseconds(),
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Publishing
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler consumes one event. An error is logged by the bus, never
// propagated back to the publisher.
type EventHandler func(event Event) error

// EventPublisher is the write side's view of the event bus.
type EventPublisher interface {
	Publish(event Event) error
}
