package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/doxalabs/doxa/internal/config"
	"github.com/doxalabs/doxa/internal/domain"
	"github.com/doxalabs/doxa/internal/embedding"
	"github.com/doxalabs/doxa/internal/extraction"
	"github.com/doxalabs/doxa/internal/inmem"
)

const testAgent = "agent-1"

type testEnv struct {
	app       *App
	server    *httptest.Server
	beliefs   *inmem.BeliefStore
	extractor *extraction.MockClient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := inmem.Open()
	extractor := extraction.NewMockClient()
	embedder := embedding.NewMockClient(8)

	engine := domain.DefaultEngineConfig()
	engine.EmbeddingDimension = 8

	cfg := &config.Config{
		ServerPort:                8080,
		Backend:                   config.BackendMemory,
		RateLimitRPS:              1000,
		RateLimitBurst:            1000,
		MaintenanceInterval:       time.Hour,
		RelationshipRetentionDays: 90,
		Engine:                    engine,
	}

	beliefs := inmem.NewBeliefStore(db)
	app := NewApp(Deps{
		Memories:  inmem.NewMemoryStore(db),
		Beliefs:   beliefs,
		Conflicts: inmem.NewConflictStore(db),
		Graph:     inmem.NewGraphStore(db),
		Embedder:  embedder,
		Extractor: extractor,
		Config:    cfg,
		Logger:    zap.NewNop(),
	})

	server := httptest.NewServer(app.Router)
	t.Cleanup(server.Close)

	return &testEnv{app: app, server: server, beliefs: beliefs, extractor: extractor}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp, decoded
}

func (e *testEnv) seedBelief(t *testing.T, statement string, confidence float64) string {
	t.Helper()

	b := &domain.Belief{
		ID:          domain.NewBeliefID(),
		AgentID:     testAgent,
		Statement:   statement,
		Confidence:  confidence,
		Category:    "preference",
		CreatedAt:   time.Now(),
		LastUpdated: time.Now(),
		Active:      true,
	}
	require.NoError(t, e.beliefs.Put(context.Background(), b))
	return b.ID
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestHealthReportsBackendFailure(t *testing.T) {
	db := inmem.Open()
	engine := domain.DefaultEngineConfig()
	engine.EmbeddingDimension = 8
	cfg := &config.Config{
		RateLimitRPS: 1000, RateLimitBurst: 1000,
		MaintenanceInterval: time.Hour, RelationshipRetentionDays: 90,
		Engine: engine,
	}

	app := NewApp(Deps{
		Memories:  inmem.NewMemoryStore(db),
		Beliefs:   inmem.NewBeliefStore(db),
		Conflicts: inmem.NewConflictStore(db),
		Graph:     inmem.NewGraphStore(db),
		Embedder:  embedding.NewMockClient(8),
		Extractor: extraction.NewMockClient(),
		Ping:      func(context.Context) error { return errors.New("connection refused") },
		Config:    cfg,
		Logger:    zap.NewNop(),
	})

	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIngestStoresMemoryAndBelief(t *testing.T) {
	env := newTestEnv(t)
	env.extractor.ExtractBeliefsResponse = []domain.CandidateBelief{
		{Statement: "User enjoys hiking", Category: "preference", Confidence: 0.85, Positive: true},
	}

	resp, body := env.do(t, http.MethodPost, "/v1/ingest", map[string]any{
		"agent_id": testAgent,
		"content":  "I love hiking in the mountains",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	memoryID, _ := body["memory_id"].(string)
	assert.True(t, strings.HasPrefix(memoryID, "mem_"), "memory_id %q", memoryID)
	assert.Equal(t, string(domain.AnalysisCompleted), body["belief_analysis"])
	assert.Equal(t, true, body["encoded"])
	require.Len(t, body["new_belief_ids"], 1)

	// The stored memory is retrievable.
	resp, got := env.do(t, http.MethodGet, "/v1/memories/"+memoryID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "I love hiking in the mountains", got["content"])

	// And the extracted belief is listed for the agent.
	resp, listed := env.do(t, http.MethodGet, "/v1/beliefs?agent_id="+testAgent, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, listed["count"])
}

func TestIngestDryRunWritesNothing(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/v1/ingest", map[string]any{
		"agent_id": testAgent,
		"content":  "dry run content",
		"dry_run":  true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	memoryID, _ := body["memory_id"].(string)
	assert.True(t, strings.HasPrefix(memoryID, "dry-run-"))
	assert.Equal(t, false, body["encoded"])

	resp, listed := env.do(t, http.MethodGet, "/v1/memories?agent_id="+testAgent, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, listed["count"])
}

func TestIngestRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/v1/ingest", map[string]any{
		"agent_id": testAgent,
		"content":  "",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(domain.KindInvalidInput), body["kind"])
}

func TestIngestValidateEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/v1/ingest/validate", map[string]any{
		"agent_id": "",
		"content":  "",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["valid"])
	violations, ok := body["violations"].([]any)
	require.True(t, ok)
	assert.Len(t, violations, 2)

	resp, body = env.do(t, http.MethodPost, "/v1/ingest/validate", map[string]any{
		"agent_id": testAgent,
		"content":  "fine",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])
}

func TestMemorySearchAndDelete(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/v1/ingest", map[string]any{
		"agent_id": testAgent,
		"content":  "the capital of France is Paris",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	memoryID := body["memory_id"].(string)

	resp, results := env.do(t, http.MethodGet,
		"/v1/memories/search?agent_id="+testAgent+"&query=capital+of+France", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	count, _ := results["count"].(float64)
	assert.GreaterOrEqual(t, count, float64(1))

	resp, _ = env.do(t, http.MethodDelete, "/v1/memories/"+memoryID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/v1/memories/"+memoryID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSearchRequiresAgentID(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/v1/memories/search?query=anything", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBeliefConfidenceAndDeactivation(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedBelief(t, "User prefers tea", 0.6)

	resp, body := env.do(t, http.MethodPut, "/v1/beliefs/"+id+"/confidence", map[string]any{
		"confidence": 0.9,
		"reason":     "strong new evidence",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 0.9, body["confidence"], 1e-9)

	resp, _ = env.do(t, http.MethodPut, "/v1/beliefs/"+id+"/confidence", map[string]any{
		"confidence": 1.5,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/v1/beliefs/"+id+"/deactivate", map[string]any{
		"reason": "stale",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["active"])
}

func TestBeliefDeprecationFlow(t *testing.T) {
	env := newTestEnv(t)
	oldID := env.seedBelief(t, "User lives in Austin", 0.8)
	newID := env.seedBelief(t, "User lives in Denver", 0.9)

	resp, rel := env.do(t, http.MethodPost, "/v1/beliefs/"+oldID+"/deprecate", map[string]any{
		"successor_belief_id": newID,
		"reason":              "user moved",
		"agent_id":            testAgent,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, string(domain.RelationSupersedes), rel["type"])
	assert.Equal(t, newID, rel["source_belief_id"])
	assert.Equal(t, oldID, rel["target_belief_id"])

	resp, deprecated := env.do(t, http.MethodGet, "/v1/beliefs/deprecated?agent_id="+testAgent, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, deprecated["count"])

	// Same ordered pair again is rejected while the first edge is active.
	resp, _ = env.do(t, http.MethodPost, "/v1/relationships", map[string]any{
		"source_belief_id": newID,
		"target_belief_id": oldID,
		"type":             string(domain.RelationSupersedes),
		"strength":         1.0,
		"agent_id":         testAgent,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRelationshipLifecycle(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedBelief(t, "belief a", 0.7)
	b := env.seedBelief(t, "belief b", 0.7)

	resp, rel := env.do(t, http.MethodPost, "/v1/relationships", map[string]any{
		"source_belief_id": a,
		"target_belief_id": b,
		"type":             string(domain.RelationRelatesTo),
		"strength":         0.5,
		"agent_id":         testAgent,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	relID := rel["id"].(string)
	assert.True(t, strings.HasPrefix(relID, "rel_"))

	resp, updated := env.do(t, http.MethodPut, "/v1/relationships/"+relID, map[string]any{
		"strength": 0.8,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 0.8, updated["strength"], 1e-9)

	resp, listed := env.do(t, http.MethodGet, "/v1/relationships?agent_id="+testAgent, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, listed["count"])

	resp, forBelief := env.do(t, http.MethodGet, "/v1/relationships/belief/"+a+"?direction=out", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, forBelief["count"])

	resp, _ = env.do(t, http.MethodDelete, "/v1/relationships/"+relID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/v1/relationships/"+relID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGraphQueries(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedBelief(t, "belief a", 0.7)
	b := env.seedBelief(t, "belief b", 0.7)
	c := env.seedBelief(t, "belief c", 0.7)

	for _, pair := range [][2]string{{a, b}, {b, c}} {
		resp, _ := env.do(t, http.MethodPost, "/v1/relationships", map[string]any{
			"source_belief_id": pair[0],
			"target_belief_id": pair[1],
			"type":             string(domain.RelationSupports),
			"strength":         0.9,
			"agent_id":         testAgent,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, path := env.do(t, http.MethodGet, "/v1/relationships/graph/path?from="+a+"&to="+c, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ids, _ := path["belief_ids"].([]any)
	require.Len(t, ids, 3)
	assert.Equal(t, a, ids[0])
	assert.Equal(t, c, ids[2])

	resp, view := env.do(t, http.MethodGet, "/v1/relationships/graph/related/"+a+"?depth=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	beliefs, _ := view["beliefs"].([]any)
	assert.Len(t, beliefs, 2)

	resp, clusters := env.do(t, http.MethodGet, "/v1/relationships/graph/clusters?agent_id="+testAgent+"&threshold=0.5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, clusters["count"])

	resp, validation := env.do(t, http.MethodGet, "/v1/relationships/graph/validate?agent_id="+testAgent, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, validation["valid"])

	resp, _ = env.do(t, http.MethodGet, "/v1/relationships/graph/path?from="+a+"&to="+domain.NewBeliefID(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConflictStrategies(t *testing.T) {
	env := newTestEnv(t)

	resp, strategies := env.do(t, http.MethodPut, "/v1/conflicts/strategies", map[string]any{
		"belief_belief": string(domain.StrategyHigherConfidence),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(domain.StrategyHigherConfidence), strategies["belief_belief"])

	resp, _ = env.do(t, http.MethodPut, "/v1/conflicts/strategies", map[string]any{
		"belief_belief": "coin_flip",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedBelief(t, "counted", 0.5)

	resp, body := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, ok := body["stored"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, stored["beliefs"])
	assert.Contains(t, body, "engine")
	assert.Contains(t, body, "uptime_seconds")
}

func TestRequestIDHeaderEchoed(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "trace-me")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "trace-me", resp.Header.Get("X-Request-ID"))
}

func TestRateLimitReturns429(t *testing.T) {
	db := inmem.Open()
	engine := domain.DefaultEngineConfig()
	engine.EmbeddingDimension = 8
	cfg := &config.Config{
		RateLimitRPS: 1, RateLimitBurst: 1,
		MaintenanceInterval: time.Hour, RelationshipRetentionDays: 90,
		Engine: engine,
	}

	app := NewApp(Deps{
		Memories:  inmem.NewMemoryStore(db),
		Beliefs:   inmem.NewBeliefStore(db),
		Conflicts: inmem.NewConflictStore(db),
		Graph:     inmem.NewGraphStore(db),
		Embedder:  embedding.NewMockClient(8),
		Extractor: extraction.NewMockClient(),
		Config:    cfg,
		Logger:    zap.NewNop(),
	})

	var got429 bool
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		app.Router.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			got429 = true
			break
		}
	}
	assert.True(t, got429, "burst of requests never hit the limiter")
}

func TestDistributionEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedBelief(t, "high confidence", 0.9)
	env.seedBelief(t, "low confidence", 0.2)

	resp, body := env.do(t, http.MethodGet, "/v1/beliefs/distribution?agent_id="+testAgent, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	confidence, ok := body["confidence"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, confidence["high"])
	assert.EqualValues(t, 1, confidence["low"])

	categories, ok := body["categories"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 2, categories["preference"])
}

func TestLowConfidenceEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedBelief(t, "shaky", 0.1)
	env.seedBelief(t, "solid", 0.9)

	resp, body := env.do(t, http.MethodGet,
		fmt.Sprintf("/v1/beliefs/low-confidence?agent_id=%s&threshold=%.1f", testAgent, 0.3), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])
}
