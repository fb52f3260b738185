// Package shared holds the types every domain package leans on: identifiers,
// domain events, and the error taxonomy.
package shared

import (
	"errors"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR KINDS
// ══════════════════════════════════════════════════════════════════════════════

// Error kinds classify failures for errors.Is. Every DomainError carries one
// of these, which is what the HTTP layer maps onto status codes.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Input validation.
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State machine violations.
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyProcessed = errors.New("already processed")

	// Optimistic concurrency.
	ErrOptimisticLock = errors.New("optimistic lock failure")

	// Downstream services.
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERROR
// ══════════════════════════════════════════════════════════════════════════════

// DomainError attaches the failing domain, operation, and kind to an error so
// callers can both log a precise message and branch on the kind.
type DomainError struct {
	Domain  string // "progress", "achievement", "evaluator"
	Op      string // operation that failed
	Kind    error  // one of the kinds above
	Message string
	Err     error // wrapped cause, optional
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
	}
	return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
}

// Unwrap prefers the wrapped cause over the kind so error chains stay intact.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches against both the kind and the wrapped cause.
func (e *DomainError) Is(target error) bool {
	return (e.Kind != nil && errors.Is(e.Kind, target)) ||
		(e.Err != nil && errors.Is(e.Err, target))
}

// NewDomainError builds a DomainError without a wrapped cause.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError builds a DomainError around an underlying error.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// ══════════════════════════════════════════════════════════════════════════════
// WELL-KNOWN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// Progress lifecycle and event validation.
var (
	ErrProgressNotFound      = NewDomainError("progress", "Find", ErrNotFound, "user progress not found")
	ErrProgressAlreadyExists = NewDomainError("progress", "Create", ErrAlreadyExists, "user progress already exists")
	ErrInvalidUserID         = NewDomainError("progress", "Validate", ErrInvalidID, "invalid user ID")
	ErrInvalidLessonID       = NewDomainError("progress", "Validate", ErrInvalidID, "invalid lesson ID")
	ErrInvalidScenarioID     = NewDomainError("progress", "Validate", ErrInvalidID, "invalid scenario ID")
	ErrInvalidScore          = NewDomainError("progress", "Validate", ErrValueOutOfRange, "score must be between 0 and 100")
	ErrInvalidTimeSpent      = NewDomainError("progress", "Validate", ErrNegativeValue, "time spent must be non-negative")
	ErrProgressConflict      = NewDomainError("progress", "Save", ErrOptimisticLock, "user progress was modified concurrently")
)

// Achievement catalog and unlocking.
var (
	ErrAchievementNotFound  = NewDomainError("achievement", "Find", ErrNotFound, "achievement definition not found")
	ErrAchievementUnlocked  = NewDomainError("achievement", "Unlock", ErrAlreadyProcessed, "achievement already unlocked")
	ErrUnknownMetric        = NewDomainError("achievement", "Validate", ErrInvalidInput, "unknown requirement metric")
	ErrUnknownComparator    = NewDomainError("achievement", "Validate", ErrInvalidInput, "unknown requirement comparator")
	ErrInvalidDefinition    = NewDomainError("achievement", "Validate", ErrInvalidEntity, "invalid achievement definition")
	ErrCatalogEmpty         = NewDomainError("achievement", "LoadCatalog", ErrInvalidState, "achievement catalog is empty")
	ErrDuplicateAchievement = NewDomainError("achievement", "LoadCatalog", ErrAlreadyExists, "duplicate achievement ID in catalog")
)

// Scoring service client.
var (
	ErrEvaluatorUnavailable     = NewDomainError("evaluator", "Request", ErrServiceUnavailable, "evaluation service is unavailable")
	ErrEvaluatorRateLimited     = NewDomainError("evaluator", "Request", ErrRateLimited, "evaluation service rate limit exceeded")
	ErrEvaluatorTimeout         = NewDomainError("evaluator", "Request", ErrTimeout, "evaluation service request timeout")
	ErrEvaluatorInvalidResponse = NewDomainError("evaluator", "Parse", ErrInvalidFormat, "invalid response from evaluation service")
)

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFICATION HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func matchesAny(err error, kinds ...error) bool {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether the error means the entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists reports whether the error means a duplicate create.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation reports whether the error is caused by bad caller input.
func IsValidation(err error) bool {
	return matchesAny(err,
		ErrInvalidID, ErrInvalidInput, ErrEmptyValue,
		ErrNegativeValue, ErrValueOutOfRange)
}

// IsConflict reports whether the error is an optimistic-concurrency clash.
// Conflicts are transient: rereading and reapplying the event resolves them.
func IsConflict(err error) bool {
	return errors.Is(err, ErrOptimisticLock)
}

// IsExternalService reports whether a downstream dependency failed.
func IsExternalService(err error) bool {
	return matchesAny(err, ErrServiceUnavailable, ErrTimeout, ErrRateLimited)
}

// IsRetryable reports whether retrying with identical input can succeed.
func IsRetryable(err error) bool {
	return matchesAny(err, ErrServiceUnavailable, ErrTimeout, ErrOptimisticLock)
}
