package extraction

import (
	"context"

	"github.com/doxalabs/doxa/internal/domain"
)

// MockClient is a configurable extraction client for testing.
// Set the response fields to control what each method returns, or the Fn
// fields when a test needs per-input behavior.
type MockClient struct {
	ExtractBeliefsResponse []domain.CandidateBelief
	ExtractBeliefsError    error
	ExtractBeliefsFn       func(content, agentID, categoryHint string) ([]domain.CandidateBelief, error)

	SimilarityResponse float64
	SimilarityError    error
	SimilarityFn       func(s1, s2 string) (float64, error)

	AreConflictingResponse bool
	AreConflictingError    error
	AreConflictingFn       func(s1, s2, cat1, cat2 string) (bool, error)

	ExtractCategoryResponse   string
	ExtractCategoryConfidence float64
	ExtractCategoryError      error

	CalculateConfidenceResponse  float64
	CalculateConfidenceReasoning string
	CalculateConfidenceError     error

	Unhealthy bool

	// Call tracking for assertions
	ExtractBeliefsCalls      []string
	SimilarityCalls          []struct{ A, B string }
	AreConflictingCalls      []struct{ A, B string }
	ExtractCategoryCalls     []string
	CalculateConfidenceCalls []string
}

func NewMockClient() *MockClient {
	return &MockClient{
		ExtractBeliefsResponse:       []domain.CandidateBelief{},
		SimilarityResponse:           0,
		ExtractCategoryResponse:      "general",
		ExtractCategoryConfidence:    0.6,
		CalculateConfidenceResponse:  0.5,
		CalculateConfidenceReasoning: "mock reasoning",
	}
}

func (c *MockClient) ExtractBeliefs(ctx context.Context, content, agentID, categoryHint string) ([]domain.CandidateBelief, error) {
	c.ExtractBeliefsCalls = append(c.ExtractBeliefsCalls, content)
	if c.ExtractBeliefsFn != nil {
		return c.ExtractBeliefsFn(content, agentID, categoryHint)
	}
	if c.ExtractBeliefsError != nil {
		return nil, c.ExtractBeliefsError
	}
	return c.ExtractBeliefsResponse, nil
}

func (c *MockClient) Similarity(ctx context.Context, s1, s2 string) (float64, error) {
	c.SimilarityCalls = append(c.SimilarityCalls, struct{ A, B string }{s1, s2})
	if c.SimilarityFn != nil {
		return c.SimilarityFn(s1, s2)
	}
	if c.SimilarityError != nil {
		return 0, c.SimilarityError
	}
	return c.SimilarityResponse, nil
}

func (c *MockClient) AreConflicting(ctx context.Context, s1, s2, cat1, cat2 string) (bool, error) {
	c.AreConflictingCalls = append(c.AreConflictingCalls, struct{ A, B string }{s1, s2})
	if c.AreConflictingFn != nil {
		return c.AreConflictingFn(s1, s2, cat1, cat2)
	}
	if c.AreConflictingError != nil {
		return false, c.AreConflictingError
	}
	return c.AreConflictingResponse, nil
}

func (c *MockClient) ExtractCategory(ctx context.Context, statement string) (string, float64, error) {
	c.ExtractCategoryCalls = append(c.ExtractCategoryCalls, statement)
	if c.ExtractCategoryError != nil {
		return "", 0, c.ExtractCategoryError
	}
	return c.ExtractCategoryResponse, c.ExtractCategoryConfidence, nil
}

func (c *MockClient) CalculateConfidence(ctx context.Context, content, statement, contextNote string) (float64, string, error) {
	c.CalculateConfidenceCalls = append(c.CalculateConfidenceCalls, statement)
	if c.CalculateConfidenceError != nil {
		return 0, "", c.CalculateConfidenceError
	}
	return c.CalculateConfidenceResponse, c.CalculateConfidenceReasoning, nil
}

func (c *MockClient) IsHealthy(ctx context.Context) bool {
	return !c.Unhealthy
}

// Reset clears all recorded calls and resets responses to defaults.
func (c *MockClient) Reset() {
	c.ExtractBeliefsResponse = []domain.CandidateBelief{}
	c.ExtractBeliefsError = nil
	c.ExtractBeliefsFn = nil
	c.SimilarityResponse = 0
	c.SimilarityError = nil
	c.SimilarityFn = nil
	c.AreConflictingResponse = false
	c.AreConflictingError = nil
	c.AreConflictingFn = nil
	c.ExtractCategoryResponse = "general"
	c.ExtractCategoryConfidence = 0.6
	c.ExtractCategoryError = nil
	c.CalculateConfidenceResponse = 0.5
	c.CalculateConfidenceReasoning = "mock reasoning"
	c.CalculateConfidenceError = nil
	c.Unhealthy = false
	c.ExtractBeliefsCalls = nil
	c.SimilarityCalls = nil
	c.AreConflictingCalls = nil
	c.ExtractCategoryCalls = nil
	c.CalculateConfidenceCalls = nil
}
