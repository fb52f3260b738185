package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE USER PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create user_progress table
-- Version: 001

-- One row per user. The identity provider calls provisioning exactly once,
-- so user_id is the natural primary key. Per-content records live in JSONB
-- maps keyed by content id; the whole row is written atomically with a
-- compare-and-swap on the version column.
CREATE TABLE IF NOT EXISTS user_progress (
    user_id VARCHAR(128) PRIMARY KEY,
    scenario_records JSONB NOT NULL DEFAULT '{}'::jsonb,
    lesson_records JSONB NOT NULL DEFAULT '{}'::jsonb,
    total_time_spent INTEGER NOT NULL DEFAULT 0,
    xp INTEGER NOT NULL DEFAULT 0,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_active_at TIMESTAMP WITH TIME ZONE,
    unlocked_achievements JSONB NOT NULL DEFAULT '[]'::jsonb,
    version BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    -- Constraints for data integrity
    CONSTRAINT valid_xp CHECK (xp >= 0),
    CONSTRAINT valid_time_spent CHECK (total_time_spent >= 0),
    CONSTRAINT valid_current_streak CHECK (current_streak >= 0),
    CONSTRAINT valid_longest_streak CHECK (longest_streak >= current_streak),
    CONSTRAINT valid_version CHECK (version >= 0)
);

-- Index for the streaks-at-risk sweep: active streaks, ordered by last activity.
CREATE INDEX IF NOT EXISTS idx_user_progress_streak_sweep
    ON user_progress(last_active_at)
    WHERE current_streak > 0;

CREATE INDEX IF NOT EXISTS idx_user_progress_xp ON user_progress(xp DESC);
`

const migration001Down = `
DROP INDEX IF EXISTS idx_user_progress_xp;
DROP INDEX IF EXISTS idx_user_progress_streak_sweep;
DROP TABLE IF EXISTS user_progress;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE ACHIEVEMENT CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create achievement_catalog table
-- Version: 002

-- Read-only catalog of achievement definitions. Adding an achievement is a
-- data change, not a code change: insert a row, the evaluator picks it up.
CREATE TABLE IF NOT EXISTS achievement_catalog (
    id VARCHAR(100) PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    points INTEGER NOT NULL DEFAULT 0,
    metric VARCHAR(50) NOT NULL,
    comparator VARCHAR(5) NOT NULL,
    threshold DOUBLE PRECISION NOT NULL,
    sort_order INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_points CHECK (points >= 0),
    CONSTRAINT valid_metric CHECK (metric IN (
        'scenarios_completed', 'lessons_completed', 'streak',
        'average_score', 'total_time_spent', 'level'
    )),
    CONSTRAINT valid_comparator CHECK (comparator IN ('>=', '<=', '=', '>', '<'))
);

CREATE INDEX IF NOT EXISTS idx_achievement_catalog_sort ON achievement_catalog(sort_order);

-- Seed the built-in catalog. Mirrors achievement.DefaultCatalog().
INSERT INTO achievement_catalog (id, title, description, points, metric, comparator, threshold, sort_order) VALUES
    ('first-steps',     'Первые шаги',      'Завершён первый урок',                     25,  'lessons_completed',   '>=', 1,   10),
    ('first-win',       'Первая победа',    'Пройден первый практический сценарий',     50,  'scenarios_completed', '>=', 1,   20),
    ('scenario-master', 'Мастер сценариев', 'Пройдено 10 практических сценариев',       200, 'scenarios_completed', '>=', 10,  30),
    ('curriculum-half', 'Экватор',          'Завершено 15 уроков',                      150, 'lessons_completed',   '>=', 15,  40),
    ('week-of-fire',    'Неделя огня',      '7 дней подряд',                            100, 'streak',              '>=', 7,   50),
    ('iron-will',       'Железная воля',    '30 дней подряд',                           500, 'streak',              '>=', 30,  60),
    ('sharp-mind',      'Острый ум',        'Средний результат 85 и выше',              150, 'average_score',       '>=', 85,  70),
    ('marathoner',      'Марафонец',        '10 часов обучения суммарно',               100, 'total_time_spent',    '>=', 600, 80),
    ('apprentice',      'Подмастерье',      'Достигнут 5 уровень',                      100, 'level',               '>=', 5,   90),
    ('master',          'Мастер',           'Достигнут 10 уровень',                     250, 'level',               '>=', 10,  100)
ON CONFLICT (id) DO NOTHING;
`

const migration002Down = `
DROP INDEX IF EXISTS idx_achievement_catalog_sort;
DROP TABLE IF EXISTS achievement_catalog;
`
