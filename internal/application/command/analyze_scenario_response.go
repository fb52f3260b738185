package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANALYZE SCENARIO RESPONSE COMMAND
// Scores a free-text scenario response through the external evaluation service
// and feeds the resulting score into the regular scenario event pipeline.
// The engine itself never interprets the response text: it consumes a numeric
// score and records it exactly like a score submitted directly.
// ══════════════════════════════════════════════════════════════════════════════

// MaxResponseTextLength bounds the free text accepted for evaluation.
const MaxResponseTextLength = 20000

// ScenarioEvaluator is the port to the external LLM scoring service.
type ScenarioEvaluator interface {
	// EvaluateResponse scores a free-text scenario response.
	EvaluateResponse(ctx context.Context, userID, scenarioID, responseText, language string) (*Evaluation, error)
}

// Evaluation is the outcome of scoring a free-text response.
type Evaluation struct {
	// Score is the numeric evaluation (0-100).
	Score int

	// Feedback is the evaluator's prose feedback.
	Feedback string

	// Strengths lists what the response did well.
	Strengths []string

	// Improvements lists what the response should improve.
	Improvements []string

	// Model identifies the model that produced the evaluation.
	Model string
}

// AnalyzeScenarioResponseCommand contains a free-text scenario response.
type AnalyzeScenarioResponseCommand struct {
	// UserID is the opaque identifier from the identity provider.
	UserID string

	// ScenarioID is the scenario slug from the content catalog.
	ScenarioID string

	// ResponseText is the free-text answer to evaluate.
	ResponseText string

	// Language is the optional response language hint.
	Language string

	// TimeSpent is the time spent in minutes.
	TimeSpent int

	// Timestamp is when the event occurred (defaults to now if zero).
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command before the evaluator is called.
func (c AnalyzeScenarioResponseCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if !shared.ContentID(c.ScenarioID).IsValid() {
		return shared.ErrInvalidScenarioID
	}
	if strings.TrimSpace(c.ResponseText) == "" {
		return shared.NewDomainError("progress", "Validate", shared.ErrEmptyValue, "response text is empty")
	}
	if len(c.ResponseText) > MaxResponseTextLength {
		return shared.NewDomainError("progress", "Validate", shared.ErrValueOutOfRange, "response text too long")
	}
	if !shared.Minutes(c.TimeSpent).IsValid() {
		return shared.ErrInvalidTimeSpent
	}
	return nil
}

// AnalyzeScenarioResponseResult combines the evaluation with the recorded
// progress outcome.
type AnalyzeScenarioResponseResult struct {
	// Evaluation is what the scoring service returned.
	Evaluation Evaluation

	// Record is the outcome of feeding the score into the event pipeline.
	Record RecordScenarioEventResult
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AnalyzeScenarioResponseHandler handles the AnalyzeScenarioResponseCommand.
type AnalyzeScenarioResponseHandler struct {
	evaluator ScenarioEvaluator
	recorder  *RecordScenarioEventHandler
}

// NewAnalyzeScenarioResponseHandler creates a new AnalyzeScenarioResponseHandler.
func NewAnalyzeScenarioResponseHandler(
	evaluator ScenarioEvaluator,
	recorder *RecordScenarioEventHandler,
) *AnalyzeScenarioResponseHandler {
	return &AnalyzeScenarioResponseHandler{
		evaluator: evaluator,
		recorder:  recorder,
	}
}

// Handle evaluates the response text and records the scored attempt.
// The evaluator is called before any progress state is touched: an
// unavailable evaluator leaves the record untouched.
func (h *AnalyzeScenarioResponseHandler) Handle(ctx context.Context, cmd AnalyzeScenarioResponseCommand) (*AnalyzeScenarioResponseResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("analyze_scenario_response: %w", err)
	}

	eval, err := h.evaluator.EvaluateResponse(ctx, cmd.UserID, cmd.ScenarioID, cmd.ResponseText, cmd.Language)
	if err != nil {
		return nil, fmt.Errorf("analyze_scenario_response: %w", err)
	}
	if !shared.Score(eval.Score).IsValid() {
		return nil, fmt.Errorf("analyze_scenario_response: %w", shared.ErrEvaluatorInvalidResponse)
	}

	record, err := h.recorder.Handle(ctx, RecordScenarioEventCommand{
		UserID:        cmd.UserID,
		ScenarioID:    cmd.ScenarioID,
		Score:         eval.Score,
		TimeSpent:     cmd.TimeSpent,
		Timestamp:     cmd.Timestamp,
		CorrelationID: cmd.CorrelationID,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze_scenario_response: %w", err)
	}

	return &AnalyzeScenarioResponseResult{
		Evaluation: *eval,
		Record:     *record,
	}, nil
}
