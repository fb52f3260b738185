package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
)

// Feature flag names. The env override for a flag is FEATURE_ plus the name
// uppercased with dots turned into underscores, set to true, false, or a
// rollout percentage: FEATURE_SCORING_SCENARIO_ANALYSIS=50.
const (
	// Gamification.
	FeatureAchievements = "gamification.achievements" // achievement unlocks
	FeatureStreaks      = "gamification.streaks"      // daily streak tracking
	FeatureLevelUps     = "gamification.level_ups"    // level-up domain events

	// Scoring.
	FeatureScenarioAnalysis = "scoring.scenario_analysis" // free-text scoring endpoint

	// Worker.
	FeatureStreakSweep = "worker.streak_sweep" // streak_at_risk sweep job

	// Caching.
	FeatureStatsCache   = "cache.stats"   // Redis stats projection cache
	FeatureCatalogCache = "cache.catalog" // Redis achievement catalog cache

	// Messaging.
	FeatureRedisEventBus = "messaging.redis_event_bus" // cross-instance event fan-out
)

// Flag is one feature toggle. Rollout is a percentage: 0 is off, 100 is on
// for everyone, anything between splits users by a stable hash so the same
// user always lands in the same bucket.
type Flag struct {
	Name        string
	Description string
	Rollout     int
}

// defaultFlags is the shipped state of every flag. An unknown flag name
// always evaluates to disabled, so adding a flag here is the only way to
// introduce one.
var defaultFlags = []Flag{
	{FeatureAchievements, "Evaluate and unlock achievements on progress events", 100},
	{FeatureStreaks, "Track daily activity streaks", 100},
	{FeatureLevelUps, "Publish level-up events", 100},
	{FeatureScenarioAnalysis, "Score free-text scenario responses via the evaluation service", 100},
	{FeatureStreakSweep, "Emit streak_at_risk events for expiring streaks", 100},
	{FeatureStatsCache, "Cache stats projections in Redis", 100},
	{FeatureCatalogCache, "Cache the achievement catalog in Redis", 100},
	// Выключен, пока сервис работает в одном экземпляре.
	{FeatureRedisEventBus, "Fan out domain events across instances via Redis pub/sub", 0},
}

// FeatureFlags is an immutable snapshot of all flags, resolved at startup.
// Runtime mutation is deliberately absent: changing a flag means restarting
// with a different environment, which keeps every instance consistent.
type FeatureFlags struct {
	flags map[string]Flag
}

// LoadFeatureFlags resolves the defaults against environment overrides.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{flags: make(map[string]Flag, len(defaultFlags))}
	for _, flag := range defaultFlags {
		if pct, ok := rolloutOverride(flag.Name); ok {
			flag.Rollout = pct
		}
		ff.flags[flag.Name] = flag
	}
	return ff
}

// rolloutOverride reads the env override for a flag, accepting a boolean or
// a percentage. Unparsable values are ignored.
func rolloutOverride(name string) (int, bool) {
	key := "FEATURE_" + strings.ReplaceAll(strings.ToUpper(name), ".", "_")
	val := os.Getenv(key)
	if val == "" {
		return 0, false
	}

	if b, err := strconv.ParseBool(val); err == nil {
		if b {
			return 100, true
		}
		return 0, true
	}
	if pct, err := strconv.Atoi(val); err == nil && pct >= 0 && pct <= 100 {
		return pct, true
	}
	return 0, false
}

// IsEnabled evaluates a flag for one user. Partial rollouts bucket users by
// a hash of flag name and user ID, so a user's bucket survives restarts.
func (ff *FeatureFlags) IsEnabled(name, userID string) bool {
	flag, ok := ff.flags[name]
	if !ok {
		return false
	}

	switch {
	case flag.Rollout <= 0:
		return false
	case flag.Rollout >= 100:
		return true
	case userID == "":
		// Нет пользователя - нет корзины; частичный раскат трактуем
		// как включённый.
		return true
	default:
		return bucketOf(name, userID) < flag.Rollout
	}
}

// IsEnabledGlobally evaluates a flag without user context.
func (ff *FeatureFlags) IsEnabledGlobally(name string) bool {
	return ff.IsEnabled(name, "")
}

// All returns the resolved flags, for the startup log.
func (ff *FeatureFlags) All() []Flag {
	out := make([]Flag, 0, len(ff.flags))
	for _, flag := range ff.flags {
		out = append(out, flag)
	}
	return out
}

// bucketOf maps user+flag onto 0-99.
func bucketOf(name, userID string) int {
	h := fnv.New32a()
	h.Write([]byte(name))
	h.Write([]byte(userID))
	return int(h.Sum32() % 100)
}
