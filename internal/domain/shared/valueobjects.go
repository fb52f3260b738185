package shared

import (
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID represents the opaque, stable user identifier supplied by the
// external identity provider. The engine never parses or fabricates it.
type UserID string

// IsValid checks that the user ID is non-empty and free of whitespace.
func (u UserID) IsValid() bool {
	s := string(u)
	return len(s) >= 1 && len(s) <= 128 && !strings.ContainsAny(s, " \t\n\r")
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// IsEmpty checks if the ID is empty.
func (u UserID) IsEmpty() bool {
	return u == ""
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.TrimSpace(id))
	if !uid.IsValid() {
		return "", ErrInvalidUserID
	}
	return uid, nil
}

// ContentID represents a lesson or scenario identifier from the read-only
// content catalog. IDs are opaque slugs such as "user-research-intro".
type ContentID string

// IsValid checks that the content ID is non-empty and free of whitespace.
func (c ContentID) IsValid() bool {
	s := string(c)
	return len(s) >= 1 && len(s) <= 100 && !strings.ContainsAny(s, " \t\n\r")
}

// String returns the string representation.
func (c ContentID) String() string {
	return string(c)
}

// ═══════════════════════════════════════════════════════════════════════════
// Score Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Score represents a 0-100 evaluation result, either from the LLM evaluation
// service (scenarios) or from a lesson quiz.
type Score int

const (
	// MinScore is the lowest possible score.
	MinScore Score = 0
	// MaxScore is the highest possible score.
	MaxScore Score = 100
)

// IsValid checks if the score is within the 0-100 range.
func (s Score) IsValid() bool {
	return s >= MinScore && s <= MaxScore
}

// Int returns the underlying int value.
func (s Score) Int() int {
	return int(s)
}

// NewScore creates a new Score with validation.
func NewScore(value int) (Score, error) {
	s := Score(value)
	if !s.IsValid() {
		return 0, ErrInvalidScore
	}
	return s, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Minutes Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Minutes represents time spent on learning content, in whole minutes.
// All time-spent fields are monotonically non-decreasing accumulators.
type Minutes int

// IsValid checks that the value is non-negative.
func (m Minutes) IsValid() bool {
	return m >= 0
}

// Int returns the underlying int value.
func (m Minutes) Int() int {
	return int(m)
}

// Add accumulates additional minutes.
func (m Minutes) Add(delta Minutes) Minutes {
	return m + delta
}

// NewMinutes creates a new Minutes value with validation.
func NewMinutes(value int) (Minutes, error) {
	m := Minutes(value)
	if !m.IsValid() {
		return 0, ErrInvalidTimeSpent
	}
	return m, nil
}
