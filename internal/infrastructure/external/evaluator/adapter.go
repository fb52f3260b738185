package evaluator

import (
	"context"
	"errors"

	"github.com/pmcraft/pmcraft-hub/internal/application/command"
	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
	"github.com/pmcraft/pmcraft-hub/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION PORT ADAPTER
// ══════════════════════════════════════════════════════════════════════════════

// ScenarioEvaluatorAdapter implements command.ScenarioEvaluator on top of the
// HTTP client, translating transport-level failures into domain errors.
type ScenarioEvaluatorAdapter struct {
	client *Client
}

// NewScenarioEvaluatorAdapter creates a new adapter around the client.
func NewScenarioEvaluatorAdapter(client *Client) *ScenarioEvaluatorAdapter {
	return &ScenarioEvaluatorAdapter{client: client}
}

// EvaluateResponse implements command.ScenarioEvaluator.
func (a *ScenarioEvaluatorAdapter) EvaluateResponse(ctx context.Context, userID, scenarioID, responseText, language string) (*command.Evaluation, error) {
	result, err := a.client.AnalyzeResponse(ctx, AnalysisRequestDTO{
		ScenarioID:   scenarioID,
		UserID:       userID,
		ResponseText: responseText,
		Language:     language,
	})
	if err != nil {
		return nil, mapEvaluatorError(err)
	}

	return &command.Evaluation{
		Score:        result.Score,
		Feedback:     result.Feedback,
		Strengths:    result.Strengths,
		Improvements: result.Improvements,
		Model:        result.Model,
	}, nil
}

// mapEvaluatorError maps client errors onto the domain error taxonomy.
// Circuit-breaker rejections count as the service being unavailable; a 4xx
// from the scoring service means the submitted text was rejected.
func mapEvaluatorError(err error) error {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return shared.WrapError("evaluator", "Analyze", shared.ErrServiceUnavailable, "scoring service circuit open", err)
	}

	var apiErr *APIErrorDTO
	if errors.As(err, &apiErr) && apiErr.Status < 500 {
		return shared.WrapError("evaluator", "Analyze", shared.ErrInvalidInput, apiErr.Message, err)
	}

	// Rate-limit, timeout, 5xx and invalid-response errors already carry
	// their domain sentinel from the client.
	return err
}
