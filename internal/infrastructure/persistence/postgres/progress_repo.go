package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pmcraft/pmcraft-hub/internal/domain/progress"
	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
	"github.com/pmcraft/pmcraft-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UserProgressRepository implements progress.Repository for PostgreSQL.
//
// Writes are optimistic: Save compares the version column and touches zero
// rows when another writer got there first, which the orchestrator treats
// as a retryable conflict.
type UserProgressRepository struct {
	conn *Connection
}

// NewUserProgressRepository creates a new UserProgressRepository.
func NewUserProgressRepository(conn *Connection) *UserProgressRepository {
	return &UserProgressRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// JSONB row shapes
// ─────────────────────────────────────────────────────────────────────────────

type scenarioRecordRow struct {
	BestScore           int       `json:"best_score"`
	Attempts            int       `json:"attempts"`
	LastAttemptAt       time.Time `json:"last_attempt_at"`
	CumulativeTimeSpent int       `json:"cumulative_time_spent"`
	Completed           bool      `json:"completed"`
}

type lessonRecordRow struct {
	Completed           bool      `json:"completed"`
	CumulativeTimeSpent int       `json:"cumulative_time_spent"`
	LastAccessedAt      time.Time `json:"last_accessed_at"`
	Score               *int      `json:"score,omitempty"`
}

type unlockedAchievementRow struct {
	AchievementID string    `json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

func marshalScenarioRecords(records map[string]*progress.ScenarioRecord) ([]byte, error) {
	rows := make(map[string]scenarioRecordRow, len(records))
	for id, rec := range records {
		rows[id] = scenarioRecordRow{
			BestScore:           rec.BestScore.Int(),
			Attempts:            rec.Attempts,
			LastAttemptAt:       rec.LastAttemptAt,
			CumulativeTimeSpent: rec.CumulativeTimeSpent.Int(),
			Completed:           rec.Completed,
		}
	}
	return json.Marshal(rows)
}

func unmarshalScenarioRecords(data []byte) (map[string]*progress.ScenarioRecord, error) {
	var rows map[string]scenarioRecordRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}

	records := make(map[string]*progress.ScenarioRecord, len(rows))
	for id, row := range rows {
		records[id] = &progress.ScenarioRecord{
			BestScore:           shared.Score(row.BestScore),
			Attempts:            row.Attempts,
			LastAttemptAt:       row.LastAttemptAt,
			CumulativeTimeSpent: shared.Minutes(row.CumulativeTimeSpent),
			Completed:           row.Completed,
		}
	}
	return records, nil
}

func marshalLessonRecords(records map[string]*progress.LessonRecord) ([]byte, error) {
	rows := make(map[string]lessonRecordRow, len(records))
	for id, rec := range records {
		row := lessonRecordRow{
			Completed:           rec.Completed,
			CumulativeTimeSpent: rec.CumulativeTimeSpent.Int(),
			LastAccessedAt:      rec.LastAccessedAt,
		}
		if rec.Score != nil {
			s := rec.Score.Int()
			row.Score = &s
		}
		rows[id] = row
	}
	return json.Marshal(rows)
}

func unmarshalLessonRecords(data []byte) (map[string]*progress.LessonRecord, error) {
	var rows map[string]lessonRecordRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}

	records := make(map[string]*progress.LessonRecord, len(rows))
	for id, row := range rows {
		rec := &progress.LessonRecord{
			Completed:           row.Completed,
			CumulativeTimeSpent: shared.Minutes(row.CumulativeTimeSpent),
			LastAccessedAt:      row.LastAccessedAt,
		}
		if row.Score != nil {
			s := shared.Score(*row.Score)
			rec.Score = &s
		}
		records[id] = rec
	}
	return records, nil
}

func marshalUnlocked(unlocked []progress.UnlockedAchievement) ([]byte, error) {
	rows := make([]unlockedAchievementRow, 0, len(unlocked))
	for _, u := range unlocked {
		rows = append(rows, unlockedAchievementRow{
			AchievementID: u.AchievementID,
			UnlockedAt:    u.UnlockedAt,
		})
	}
	return json.Marshal(rows)
}

func unmarshalUnlocked(data []byte) ([]progress.UnlockedAchievement, error) {
	var rows []unlockedAchievementRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}

	unlocked := make([]progress.UnlockedAchievement, 0, len(rows))
	for _, row := range rows {
		unlocked = append(unlocked, progress.UnlockedAchievement{
			AchievementID: row.AchievementID,
			UnlockedAt:    row.UnlockedAt,
		})
	}
	return unlocked, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

const progressColumns = `
	user_id, scenario_records, lesson_records, total_time_spent, xp,
	current_streak, longest_streak, last_active_at, unlocked_achievements,
	version, created_at, updated_at
`

// Create creates a zeroed progress record for a new user.
func (r *UserProgressRepository) Create(ctx context.Context, p *progress.UserProgress) error {
	query := `
		INSERT INTO user_progress (` + progressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	scenarios, lessons, unlocked, err := marshalProgress(p)
	if err != nil {
		return err
	}

	_, err = r.conn.Exec(ctx, query,
		p.UserID.String(),
		scenarios,
		lessons,
		p.TotalTimeSpent.Int(),
		p.XP.Int(),
		p.CurrentStreak,
		p.LongestStreak,
		nullableTime(p.LastActiveAt),
		unlocked,
		p.Version,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrProgressAlreadyExists
		}
		return fmt.Errorf("failed to create progress: %w", err)
	}

	return nil
}

// GetByUserID returns the progress record of a user.
func (r *UserProgressRepository) GetByUserID(ctx context.Context, userID shared.UserID) (*progress.UserProgress, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM user_progress
		WHERE user_id = $1
	`

	return r.scanProgress(r.conn.QueryRow(ctx, query, userID.String()))
}

// Save atomically writes the full record with a compare-and-swap on Version.
// Returns ErrProgressConflict when a concurrent writer advanced the version,
// ErrProgressNotFound when the row does not exist. On success the aggregate's
// Version is incremented to match the stored row.
func (r *UserProgressRepository) Save(ctx context.Context, p *progress.UserProgress) error {
	query := `
		UPDATE user_progress SET
			scenario_records = $1,
			lesson_records = $2,
			total_time_spent = $3,
			xp = $4,
			current_streak = $5,
			longest_streak = $6,
			last_active_at = $7,
			unlocked_achievements = $8,
			version = version + 1,
			updated_at = $9
		WHERE user_id = $10 AND version = $11
	`

	scenarios, lessons, unlocked, err := marshalProgress(p)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	result, err := r.conn.Exec(ctx, query,
		scenarios,
		lessons,
		p.TotalTimeSpent.Int(),
		p.XP.Int(),
		p.CurrentStreak,
		p.LongestStreak,
		nullableTime(p.LastActiveAt),
		unlocked,
		now,
		p.UserID.String(),
		p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Zero rows means either a lost CAS race or a missing row;
		// a follow-up existence check tells them apart.
		exists, existsErr := r.Exists(ctx, p.UserID)
		if existsErr != nil {
			return existsErr
		}
		if exists {
			return shared.ErrProgressConflict
		}
		return shared.ErrProgressNotFound
	}

	p.Version++
	p.UpdatedAt = now

	return nil
}

// Delete removes a progress record (account deletion).
func (r *UserProgressRepository) Delete(ctx context.Context, userID shared.UserID) error {
	result, err := r.conn.Exec(ctx, `DELETE FROM user_progress WHERE user_id = $1`, userID.String())
	if err != nil {
		return fmt.Errorf("failed to delete progress: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrProgressNotFound
	}

	return nil
}

// Exists checks whether a progress record exists.
func (r *UserProgressRepository) Exists(ctx context.Context, userID shared.UserID) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_progress WHERE user_id = $1)`,
		userID.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check progress existence: %w", err)
	}

	return exists, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Sweep Queries
// ─────────────────────────────────────────────────────────────────────────────

// FindStreaksAtRisk returns records whose streak expires at the next UTC
// midnight: last activity happened yesterday (relative to now) and the
// current streak is non-zero.
func (r *UserProgressRepository) FindStreaksAtRisk(ctx context.Context, now time.Time, limit int) ([]*progress.UserProgress, error) {
	if limit <= 0 {
		limit = 100
	}

	todayStart := timeutil.StartOfDay(now)
	yesterdayStart := todayStart.Add(-24 * time.Hour)

	query := `
		SELECT ` + progressColumns + `
		FROM user_progress
		WHERE current_streak > 0
		  AND last_active_at >= $1
		  AND last_active_at < $2
		ORDER BY last_active_at
		LIMIT $3
	`

	rows, err := r.conn.Query(ctx, query, yesterdayStart, todayStart, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find streaks at risk: %w", err)
	}
	defer rows.Close()

	var records []*progress.UserProgress
	for rows.Next() {
		p, err := r.scanProgress(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate streaks at risk: %w", err)
	}

	return records, nil
}

// Count returns the total number of progress records.
func (r *UserProgressRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM user_progress`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count progress records: %w", err)
	}

	return count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *UserProgressRepository) scanProgress(row rowScanner) (*progress.UserProgress, error) {
	var (
		userID        string
		scenariosJSON []byte
		lessonsJSON   []byte
		totalTime     int
		xp            int
		currentStreak int
		longestStreak int
		lastActiveAt  *time.Time
		unlockedJSON  []byte
		version       int64
		createdAt     time.Time
		updatedAt     time.Time
	)

	err := row.Scan(
		&userID,
		&scenariosJSON,
		&lessonsJSON,
		&totalTime,
		&xp,
		&currentStreak,
		&longestStreak,
		&lastActiveAt,
		&unlockedJSON,
		&version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to scan progress: %w", err)
	}

	scenarios, err := unmarshalScenarioRecords(scenariosJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal scenario records: %w", err)
	}

	lessons, err := unmarshalLessonRecords(lessonsJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal lesson records: %w", err)
	}

	unlocked, err := unmarshalUnlocked(unlockedJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal unlocked achievements: %w", err)
	}

	p := &progress.UserProgress{
		UserID:               shared.UserID(userID),
		ScenarioRecords:      scenarios,
		LessonRecords:        lessons,
		TotalTimeSpent:       shared.Minutes(totalTime),
		XP:                   progress.XP(xp),
		Level:                progress.LevelFor(progress.XP(xp)),
		CurrentStreak:        currentStreak,
		LongestStreak:        longestStreak,
		UnlockedAchievements: unlocked,
		Version:              version,
		CreatedAt:            createdAt,
		UpdatedAt:            updatedAt,
	}
	if lastActiveAt != nil {
		p.LastActiveAt = lastActiveAt.UTC()
	}

	return p, nil
}

func marshalProgress(p *progress.UserProgress) (scenarios, lessons, unlocked []byte, err error) {
	scenarios, err = marshalScenarioRecords(p.ScenarioRecords)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal scenario records: %w", err)
	}

	lessons, err = marshalLessonRecords(p.LessonRecords)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal lesson records: %w", err)
	}

	unlocked, err = marshalUnlocked(p.UnlockedAchievements)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal unlocked achievements: %w", err)
	}

	return scenarios, lessons, unlocked, nil
}

// nullableTime maps the zero time to SQL NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
