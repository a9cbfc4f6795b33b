package domain

import (
	"fmt"
	"time"
)

// SimilarityMetric selects the vector scoring function. Fixed per
// deployment, never per record.
type SimilarityMetric string

const (
	MetricCosine    SimilarityMetric = "cosine"
	MetricEuclidean SimilarityMetric = "euclidean"
	MetricDot       SimilarityMetric = "dot"
)

func ValidSimilarityMetric(m string) bool {
	switch SimilarityMetric(m) {
	case MetricCosine, MetricEuclidean, MetricDot:
		return true
	}
	return false
}

// EngineConfig carries every tuning knob of the belief-memory engine.
// Built once at startup; no ambient defaults at call sites.
type EngineConfig struct {
	// ReinforcementIncrement is added to a belief's confidence on each
	// reinforcement, clamped to [0,1].
	ReinforcementIncrement float64 `json:"reinforcement_increment"`

	// NeighborSimilarityFloor is the minimum similarity for a stored belief
	// to count as a neighbor of a candidate.
	NeighborSimilarityFloor float64 `json:"neighbor_similarity_floor"`

	// NeighborLookupK bounds the neighbor set per candidate.
	NeighborLookupK int `json:"neighbor_lookup_k"`

	// MemorySimilarityFloor drops memory search results scoring below it.
	MemorySimilarityFloor float64 `json:"memory_similarity_floor"`

	// HighConfidenceThreshold / LowConfidenceThreshold bucket beliefs for
	// reporting only.
	HighConfidenceThreshold float64 `json:"high_confidence_threshold"`
	LowConfidenceThreshold  float64 `json:"low_confidence_threshold"`

	// MaxContentLength bounds ingested content; length == max is accepted,
	// max+1 is rejected.
	MaxContentLength int `json:"max_content_length"`

	// MaxGraphTraversalDepth bounds BFS over the relationship graph.
	MaxGraphTraversalDepth int `json:"max_graph_traversal_depth"`

	// ResolutionStrategies maps a conflict type (or StrategyDefaultKey) to
	// the strategy applied when resolving.
	ResolutionStrategies map[string]ResolutionStrategy `json:"resolution_strategies"`

	// EmbeddingDimension is the fixed per-deployment vector length,
	// validated at store-open time.
	EmbeddingDimension int `json:"embedding_dimension"`

	// SimilarityMetric scores vector pairs everywhere vectors are compared.
	SimilarityMetric SimilarityMetric `json:"similarity_metric"`

	// ClockSkew is the tolerated future drift on ingested timestamps.
	ClockSkew time.Duration `json:"clock_skew"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ReinforcementIncrement:  0.1,
		NeighborSimilarityFloor: 0.7,
		NeighborLookupK:         10,
		MemorySimilarityFloor:   0.3,
		HighConfidenceThreshold: 0.8,
		LowConfidenceThreshold:  0.3,
		MaxContentLength:        10_000,
		MaxGraphTraversalDepth:  5,
		ResolutionStrategies: map[string]ResolutionStrategy{
			string(ConflictBeliefBelief): StrategyNewerWins,
			string(ConflictBeliefMemory): StrategyFlagForReview,
			StrategyDefaultKey:           StrategyFlagForReview,
		},
		EmbeddingDimension: 1536,
		SimilarityMetric:   MetricCosine,
		ClockSkew:          5 * time.Minute,
	}
}

func (c *EngineConfig) Validate() error {
	if c.ReinforcementIncrement < 0 || c.ReinforcementIncrement > 1 {
		return fmt.Errorf("reinforcement increment %v outside [0,1]", c.ReinforcementIncrement)
	}
	if c.NeighborSimilarityFloor < 0 || c.NeighborSimilarityFloor > 1 {
		return fmt.Errorf("neighbor similarity floor %v outside [0,1]", c.NeighborSimilarityFloor)
	}
	if c.NeighborLookupK <= 0 {
		return fmt.Errorf("neighbor lookup k must be positive, got %d", c.NeighborLookupK)
	}
	if c.MemorySimilarityFloor < 0 || c.MemorySimilarityFloor > 1 {
		return fmt.Errorf("memory similarity floor %v outside [0,1]", c.MemorySimilarityFloor)
	}
	if c.LowConfidenceThreshold > c.HighConfidenceThreshold {
		return fmt.Errorf("low confidence threshold %v above high %v",
			c.LowConfidenceThreshold, c.HighConfidenceThreshold)
	}
	if c.MaxContentLength <= 0 {
		return fmt.Errorf("max content length must be positive, got %d", c.MaxContentLength)
	}
	if c.MaxGraphTraversalDepth <= 0 {
		return fmt.Errorf("max graph traversal depth must be positive, got %d", c.MaxGraphTraversalDepth)
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.EmbeddingDimension)
	}
	if !ValidSimilarityMetric(string(c.SimilarityMetric)) {
		return fmt.Errorf("unknown similarity metric %q", c.SimilarityMetric)
	}
	for key, s := range c.ResolutionStrategies {
		if !ValidResolutionStrategy(string(s)) {
			return fmt.Errorf("unknown resolution strategy %q for %q", s, key)
		}
	}
	return nil
}

// Clamp01 bounds confidence arithmetic to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
