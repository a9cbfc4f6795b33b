package extraction

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/doxalabs/doxa/internal/domain"
)

func TestFailoverUsesPrimaryWhenHealthy(t *testing.T) {
	primary := NewMockClient()
	primary.ExtractBeliefsResponse = []domain.CandidateBelief{
		{Statement: "User prefers dark mode", Category: "preference", Confidence: 0.9, Positive: true},
	}
	fallback := NewMockClient()

	f := NewFailover(primary, fallback, zap.NewNop())

	out, err := f.ExtractBeliefs(context.Background(), "content", "agent-1", "")
	if err != nil {
		t.Fatalf("ExtractBeliefs() error = %v", err)
	}
	if len(out) != 1 || out[0].Statement != "User prefers dark mode" {
		t.Fatalf("got %v, want primary response", out)
	}
	if len(fallback.ExtractBeliefsCalls) != 0 {
		t.Error("fallback should not be called while primary is healthy")
	}
}

func TestFailoverRoutesWhenUnhealthy(t *testing.T) {
	primary := NewMockClient()
	primary.Unhealthy = true
	fallback := NewMockClient()
	fallback.SimilarityResponse = 0.42

	f := NewFailover(primary, fallback, zap.NewNop())

	score, err := f.Similarity(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("Similarity() error = %v", err)
	}
	if score != 0.42 {
		t.Errorf("score = %v, want fallback response 0.42", score)
	}
	if len(primary.SimilarityCalls) != 0 {
		t.Error("unhealthy primary should not be called")
	}
}

func TestFailoverFallsThroughOnPrimaryError(t *testing.T) {
	primary := NewMockClient()
	primary.AreConflictingError = errors.New("rate limited")
	fallback := NewMockClient()
	fallback.AreConflictingResponse = true

	f := NewFailover(primary, fallback, zap.NewNop())

	conflicting, err := f.AreConflicting(context.Background(), "a", "b", "fact", "fact")
	if err != nil {
		t.Fatalf("AreConflicting() error = %v", err)
	}
	if !conflicting {
		t.Error("expected fallback result after primary error")
	}
	if len(primary.AreConflictingCalls) != 1 {
		t.Errorf("primary calls = %d, want 1", len(primary.AreConflictingCalls))
	}
}

func TestFailoverNilFallbackDefaultsToPattern(t *testing.T) {
	primary := NewMockClient()
	primary.Unhealthy = true

	f := NewFailover(primary, nil, zap.NewNop())

	category, confidence, err := f.ExtractCategory(context.Background(), "User prefers dark mode")
	if err != nil {
		t.Fatalf("ExtractCategory() error = %v", err)
	}
	if category != "preference" || confidence != 0.6 {
		t.Errorf("got (%q, %v), want pattern result (preference, 0.6)", category, confidence)
	}
	if !f.IsHealthy(context.Background()) {
		t.Error("failover with pattern fallback is always healthy")
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(ProviderOpenAI, "", "", zap.NewNop()); err == nil {
		t.Error("expected error for missing API key")
	}
	if _, err := NewClient("nope", "", "", zap.NewNop()); err == nil {
		t.Error("expected error for unknown provider")
	}
	c, err := NewClient(ProviderPattern, "", "", zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient(pattern) error = %v", err)
	}
	if _, ok := c.(*PatternEngine); !ok {
		t.Errorf("got %T, want *PatternEngine", c)
	}
}
