package evaluator

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DTOs
// ══════════════════════════════════════════════════════════════════════════════

// AnalysisRequestDTO is the payload sent to the scoring service.
type AnalysisRequestDTO struct {
	// ScenarioID identifies the scenario whose rubric the service applies.
	ScenarioID string `json:"scenario_id"`

	// UserID is forwarded for the service's own audit trail.
	UserID string `json:"user_id"`

	// ResponseText is the free-text answer to score.
	ResponseText string `json:"response_text"`

	// Language hints the language of the response (optional).
	Language string `json:"language,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE DTOs
// ══════════════════════════════════════════════════════════════════════════════

// AnalysisResultDTO is the scoring service's verdict on a response.
type AnalysisResultDTO struct {
	// Score is the rubric score, 0-100.
	Score int `json:"score"`

	// Feedback is a short narrative summary for the user.
	Feedback string `json:"feedback"`

	// Strengths lists what the response did well.
	Strengths []string `json:"strengths,omitempty"`

	// Improvements lists concrete things to work on.
	Improvements []string `json:"improvements,omitempty"`

	// Confidence is the service's self-reported confidence, 0.0-1.0.
	Confidence float64 `json:"confidence"`

	// Model names the model that produced the verdict.
	Model string `json:"model,omitempty"`

	// EvaluatedAt is when the service scored the response.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// IsScoreValid reports whether the returned score is in the accepted range.
func (r AnalysisResultDTO) IsScoreValid() bool {
	return r.Score >= 0 && r.Score <= 100
}

// HealthDTO is the scoring service's health response.
type HealthDTO struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR DTOs
// ══════════════════════════════════════════════════════════════════════════════

// APIErrorDTO is the scoring service's error envelope.
type APIErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

// Error implements the error interface.
func (e *APIErrorDTO) Error() string {
	return fmt.Sprintf("evaluator api error %s: %s", e.Code, e.Message)
}
