package domain

import (
	"context"
	"strings"
	"time"
)

// Well-known metadata keys carried on every MemoryRecord. The bag accepts
// arbitrary extra keys; these are the ones the engine reads and writes.
const (
	MetaImportance = "importance"
	MetaSource     = "source"
	MetaTags       = "tags"
	MetaConfidence = "confidence"
)

// MemoryRecord is a single encoded memory owned by one agent.
// Records are immutable except through the encoding engine, which bumps
// Version on every update.
type MemoryRecord struct {
	ID             string         `json:"id"`
	AgentID        string         `json:"agent_id"`
	Content        string         `json:"content"`
	Category       CategoryLabel  `json:"category"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	LastAccessed   time.Time      `json:"last_accessed"`
	RelevanceScore *float64       `json:"relevance_score,omitempty"`
	Version        int            `json:"version"`
	AccessCount    int            `json:"access_count"`
	Embedding      []float32      `json:"-"`
	EmbeddingNorm  float64        `json:"-"`
}

// Clone returns a deep copy. Stores hand out clones so callers can't
// mutate persisted state behind the store's back.
func (m *MemoryRecord) Clone() *MemoryRecord {
	if m == nil {
		return nil
	}
	out := *m
	if m.Metadata != nil {
		out.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	if m.Embedding != nil {
		out.Embedding = make([]float32, len(m.Embedding))
		copy(out.Embedding, m.Embedding)
	}
	if m.RelevanceScore != nil {
		s := *m.RelevanceScore
		out.RelevanceScore = &s
	}
	out.Category = m.Category.Clone()
	return &out
}

// CategoryLabel classifies a memory. Primary is always set; Unknown is the
// degraded label used when categorization fails.
type CategoryLabel struct {
	Primary    string   `json:"primary"`
	Secondary  string   `json:"secondary,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Confidence float64  `json:"confidence"`
}

// CategoryUnknown is the fallback primary label when the provider is down.
const CategoryUnknown = "Unknown"

func (c CategoryLabel) Clone() CategoryLabel {
	out := c
	if c.Tags != nil {
		out.Tags = make([]string, len(c.Tags))
		copy(out.Tags, c.Tags)
	}
	return out
}

// Normalize lowercases and trims a category name for comparisons.
func NormalizeCategory(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ScoredMemory pairs a record with its similarity score for one query.
type ScoredMemory struct {
	Memory *MemoryRecord `json:"memory"`
	Score  float64       `json:"score"`
}

// StatementScorer computes similarity of two statements in [0,1].
// The caller picks the implementation: provider-backed when the extraction
// provider is healthy, token overlap otherwise.
type StatementScorer func(ctx context.Context, a, b string) (float64, error)

// SimilarityQuery describes one similarity search against the memory store.
// When Vector is set the store scores with the configured vector metric;
// otherwise it scores Text against record content using TextScorer.
type SimilarityQuery struct {
	Text       string
	Vector     []float32
	AgentID    string
	Limit      int
	Floor      float64
	Metric     SimilarityMetric
	TextScorer StatementScorer
}
