package evaluator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

func TestAnalysisResultDTO_Parsing(t *testing.T) {
	jsonData := `{
    "score": 82,
    "feedback": "Solid prioritization rationale, weak stakeholder framing.",
    "strengths": ["clear tradeoff analysis", "data-driven reasoning"],
    "improvements": ["address engineering pushback explicitly"],
    "confidence": 0.91,
    "model": "rubric-v2",
    "evaluated_at": "2026-03-10T14:30:00Z"
}`

	var result AnalysisResultDTO
	err := json.Unmarshal([]byte(jsonData), &result)
	require.NoError(t, err)

	assert.Equal(t, 82, result.Score)
	assert.True(t, result.IsScoreValid())
	assert.Equal(t, "rubric-v2", result.Model)
	assert.Len(t, result.Strengths, 2)
	assert.Len(t, result.Improvements, 1)
	assert.InDelta(t, 0.91, result.Confidence, 0.001)
	assert.Equal(t, 2026, result.EvaluatedAt.Year())
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig(srv.URL)
	cfg.Timeout = 2 * time.Second
	cfg.RateLimiterConfig = RateLimiterConfig{
		RequestsPerSecond: 100,
		BurstSize:         100,
		MinInterval:       0,
		WaitTimeout:       time.Second,
	}

	return NewClient(cfg)
}

func TestClient_AnalyzeResponse(t *testing.T) {
	var gotReq AnalysisRequestDTO

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/analyze", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(AnalysisResultDTO{
			Score:      74,
			Feedback:   "ok",
			Confidence: 0.8,
		})
	})

	result, err := client.AnalyzeResponse(context.Background(), AnalysisRequestDTO{
		ScenarioID:   "prioritization-101",
		UserID:       "u1",
		ResponseText: "I would ship the auth fix first because...",
	})
	require.NoError(t, err)

	assert.Equal(t, 74, result.Score)
	assert.Equal(t, "prioritization-101", gotReq.ScenarioID)
	assert.Equal(t, "u1", gotReq.UserID)
}

func TestClient_AnalyzeResponse_ScoreOutOfRange(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(AnalysisResultDTO{Score: 140})
	})

	_, err := client.AnalyzeResponse(context.Background(), AnalysisRequestDTO{
		ScenarioID:   "s1",
		UserID:       "u1",
		ResponseText: "text",
	})
	assert.ErrorIs(t, err, shared.ErrEvaluatorInvalidResponse)
}

func TestClient_AnalyzeResponse_ClientErrorNotRetried(t *testing.T) {
	calls := 0

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "RESPONSE_TOO_SHORT",
			"message": "response text is too short to score",
		})
	})

	_, err := client.AnalyzeResponse(context.Background(), AnalysisRequestDTO{
		ScenarioID:   "s1",
		UserID:       "u1",
		ResponseText: "x",
	})
	require.Error(t, err)

	var apiErr *APIErrorDTO
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "RESPONSE_TOO_SHORT", apiErr.Code)
	assert.Equal(t, 1, calls, "4xx responses must not be retried")
}

func TestClient_AnalyzeResponse_ServerErrorRetried(t *testing.T) {
	calls := 0

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(AnalysisResultDTO{Score: 60, Confidence: 0.7})
	})

	result, err := client.AnalyzeResponse(context.Background(), AnalysisRequestDTO{
		ScenarioID:   "s1",
		UserID:       "u1",
		ResponseText: "a full answer",
	})
	require.NoError(t, err)

	assert.Equal(t, 60, result.Score)
	assert.Equal(t, 3, calls)
}

func TestClient_IsHealthy(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/health", r.URL.Path)
		json.NewEncoder(w).Encode(HealthDTO{Status: "ok", Version: "1.4.2"})
	})

	assert.True(t, client.IsHealthy(context.Background()))
}
