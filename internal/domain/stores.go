package domain

import (
	"context"
	"time"
)

// MemoryStore persists memory records, partitioned by agent.
//
// Get bumps lastAccessed and accessCount atomically with the read. Reads of
// absent ids return ErrNotFound; GetMany just omits them. Put replaces by id
// and must observe a strictly increasing version on replace.
type MemoryStore interface {
	Put(ctx context.Context, m *MemoryRecord) error
	Get(ctx context.Context, id string) (*MemoryRecord, error)
	GetMany(ctx context.Context, ids []string) (map[string]*MemoryRecord, error)
	Remove(ctx context.Context, id string) error
	RemoveMany(ctx context.Context, ids []string) ([]string, error)

	// SearchSimilar returns records ordered by score descending, ties broken
	// by lastAccessed descending, with sub-floor results dropped.
	SearchSimilar(ctx context.Context, q SimilarityQuery) ([]ScoredMemory, error)

	ListByAgent(ctx context.Context, agentID string, limit int) ([]*MemoryRecord, error)
	ListByCategory(ctx context.Context, category, agentID string, limit int) ([]*MemoryRecord, error)
	ListOlderThan(ctx context.Context, age time.Duration, agentID string, limit int) ([]*MemoryRecord, error)

	CountByAgent(ctx context.Context, agentID string) (int, error)
	Count(ctx context.Context) (int, error)
}

// BeliefStore persists beliefs. Get does not mutate access state.
type BeliefStore interface {
	Put(ctx context.Context, b *Belief) error
	Get(ctx context.Context, id string) (*Belief, error)
	GetMany(ctx context.Context, ids []string) (map[string]*Belief, error)
	Remove(ctx context.Context, id string) error

	ListByAgent(ctx context.Context, agentID string, includeInactive bool) ([]*Belief, error)
	ListByCategory(ctx context.Context, category, agentID string) ([]*Belief, error)

	// FindSimilar scores the agent's active beliefs against statement with
	// the supplied scorer, drops those under floor, and returns the top k
	// ordered by score descending.
	FindSimilar(ctx context.Context, statement, agentID string, floor float64, k int, scorer StatementScorer) ([]ScoredBelief, error)

	CategoryDistribution(ctx context.Context, agentID string) (map[string]int, error)
	// ConfidenceDistribution buckets active beliefs: "high" at or above high,
	// "medium" at or above medium, "low" below.
	ConfidenceDistribution(ctx context.Context, agentID string, high, medium float64) (map[string]int, error)

	Count(ctx context.Context) (int, error)
}

// ConflictStore persists unresolved conflicts. Resolved conflicts are
// removed by the analyzer, so listings are predominantly open items.
type ConflictStore interface {
	Put(ctx context.Context, c *BeliefConflict) error
	Get(ctx context.Context, id string) (*BeliefConflict, error)
	Remove(ctx context.Context, id string) error
	ListByAgent(ctx context.Context, agentID string, includeResolved bool) ([]*BeliefConflict, error)
	Count(ctx context.Context) (int, error)
}

// GraphStore persists typed, temporally-qualified belief relationships.
type GraphStore interface {
	PutRelationship(ctx context.Context, r *BeliefRelationship) error
	GetRelationship(ctx context.Context, id string) (*BeliefRelationship, error)
	DeleteRelationship(ctx context.Context, id string) error

	ListByBelief(ctx context.Context, beliefID string, dir Direction, includeInactive bool) ([]*BeliefRelationship, error)
	ListByAgent(ctx context.Context, agentID string, includeInactive bool) ([]*BeliefRelationship, error)
	ListByType(ctx context.Context, agentID string, t RelationType, includeInactive bool) ([]*BeliefRelationship, error)

	// ActiveDeprecatingEdge returns the single active deprecating edge for
	// the ordered (source, target) pair, or ErrNotFound.
	ActiveDeprecatingEdge(ctx context.Context, sourceID, targetID string) (*BeliefRelationship, error)

	// RemoveInactiveOlderThan deletes inactive edges created before cutoff
	// and reports how many went. Empty agentID means all agents.
	RemoveInactiveOlderThan(ctx context.Context, agentID string, cutoff time.Time) (int, error)

	Count(ctx context.Context) (int, error)
}

// EmbeddingClient turns text into a fixed-length vector. May be absent or
// unhealthy; the engine then proceeds without embeddings.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	IsHealthy(ctx context.Context) bool
}

// ExtractionClient is the belief-extraction capability: candidate beliefs,
// pairwise similarity and conflict judgments, category and confidence
// estimation. Implementations must degrade rather than block ingestion.
type ExtractionClient interface {
	ExtractBeliefs(ctx context.Context, content, agentID, categoryHint string) ([]CandidateBelief, error)
	Similarity(ctx context.Context, s1, s2 string) (float64, error)
	AreConflicting(ctx context.Context, s1, s2, cat1, cat2 string) (bool, error)
	ExtractCategory(ctx context.Context, statement string) (category string, confidence float64, err error)
	CalculateConfidence(ctx context.Context, content, statement, contextNote string) (confidence float64, reasoning string, err error)
	IsHealthy(ctx context.Context) bool
}
