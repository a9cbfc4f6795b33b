package inmem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/doxalabs/doxa/internal/domain"
)

func testMemory(id, agentID, content string) *domain.MemoryRecord {
	now := time.Now()
	return &domain.MemoryRecord{
		ID:           id,
		AgentID:      agentID,
		Content:      content,
		Category:     domain.CategoryLabel{Primary: "general", Confidence: 0.9},
		CreatedAt:    now,
		LastAccessed: now,
		Version:      1,
	}
}

func TestMemoryStorePutVersioning(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Open())

	if err := s.Put(ctx, &domain.MemoryRecord{Content: "no id"}); err == nil {
		t.Fatal("expected error for unassigned id")
	}

	m := testMemory("mem_1", "agent-a", "hello")
	if err := s.Put(ctx, m); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Same version on replace must be rejected.
	if err := s.Put(ctx, m); err == nil {
		t.Fatal("expected version violation on replace with same version")
	}
	if !domain.IsKind(s.Put(ctx, m), domain.KindInvalidInput) {
		t.Fatal("version violation should be invalid_input")
	}

	m2 := m.Clone()
	m2.Version = 2
	if err := s.Put(ctx, m2); err != nil {
		t.Fatalf("put v2: %v", err)
	}
}

func TestMemoryStoreGetBumpsAccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Open())

	m := testMemory("mem_1", "agent-a", "hello")
	m.LastAccessed = time.Now().Add(-time.Hour)
	if err := s.Put(ctx, m); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(ctx, "mem_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccessCount != 1 {
		t.Errorf("access count = %d, want 1", got.AccessCount)
	}
	if !got.LastAccessed.After(m.LastAccessed) {
		t.Error("last accessed not advanced by read")
	}

	got2, _ := s.Get(ctx, "mem_1")
	if got2.AccessCount != 2 {
		t.Errorf("access count after second read = %d, want 2", got2.AccessCount)
	}

	if _, err := s.Get(ctx, "mem_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get missing = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreSearchSimilarVector(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Open())

	a := testMemory("mem_a", "agent-a", "aligned")
	a.Embedding = []float32{1, 0}
	b := testMemory("mem_b", "agent-a", "orthogonal")
	b.Embedding = []float32{0, 1}
	c := testMemory("mem_c", "agent-a", "no embedding")
	for _, m := range []*domain.MemoryRecord{a, b, c} {
		if err := s.Put(ctx, m); err != nil {
			t.Fatalf("put %s: %v", m.ID, err)
		}
	}

	got, err := s.SearchSimilar(ctx, domain.SimilarityQuery{
		Vector:  []float32{1, 0},
		AgentID: "agent-a",
		Limit:   10,
		Floor:   0.5,
		Metric:  domain.MetricCosine,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1 (orthogonal under floor, no-embedding skipped)", len(got))
	}
	if got[0].Memory.ID != "mem_a" || got[0].Score < 0.99 {
		t.Errorf("top result = %s score %v, want mem_a score 1", got[0].Memory.ID, got[0].Score)
	}
}

func TestMemoryStoreSearchSimilarTextFallback(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Open())

	m := testMemory("mem_1", "agent-a", "user likes pizza")
	if err := s.Put(ctx, m); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.SearchSimilar(ctx, domain.SimilarityQuery{
		Text:    "user likes pizza",
		AgentID: "agent-a",
		Limit:   5,
		Floor:   0.7,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Score != 1.0 {
		t.Fatalf("text fallback results = %+v, want one exact match", got)
	}
}

func TestMemoryStoreSearchTieBreak(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Open())

	older := testMemory("mem_old", "agent-a", "same words here")
	older.LastAccessed = time.Now().Add(-time.Hour)
	newer := testMemory("mem_new", "agent-a", "same words here")
	newer.LastAccessed = time.Now()
	if err := s.Put(ctx, older); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, newer); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.SearchSimilar(ctx, domain.SimilarityQuery{
		Text:    "same words here",
		AgentID: "agent-a",
		Limit:   2,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 || got[0].Memory.ID != "mem_new" {
		t.Fatalf("tie-break order wrong: %+v", got)
	}
}

func TestMemoryStoreRemoveMany(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Open())

	if err := s.Put(ctx, testMemory("mem_1", "agent-a", "one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, testMemory("mem_2", "agent-a", "two")); err != nil {
		t.Fatalf("put: %v", err)
	}

	removed, err := s.RemoveMany(ctx, []string{"mem_1", "mem_ghost", "mem_2"})
	if err != nil {
		t.Fatalf("remove many: %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("removed %v, want the two existing ids", removed)
	}
}

func TestMemoryStoreListOlderThan(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Open())

	old := testMemory("mem_old", "agent-a", "old")
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	fresh := testMemory("mem_fresh", "agent-a", "fresh")
	if err := s.Put(ctx, old); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, fresh); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.ListOlderThan(ctx, 24*time.Hour, "agent-a", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "mem_old" {
		t.Fatalf("older-than results = %+v, want only mem_old", got)
	}
}

func testBelief(id, agentID, statement string, confidence float64) *domain.Belief {
	now := time.Now()
	return &domain.Belief{
		ID:          id,
		AgentID:     agentID,
		Statement:   statement,
		Confidence:  confidence,
		Category:    "general",
		CreatedAt:   now,
		LastUpdated: now,
		Active:      true,
	}
}

func TestBeliefStoreFindSimilar(t *testing.T) {
	ctx := context.Background()
	s := NewBeliefStore(Open())

	if err := s.Put(ctx, testBelief("bel_1", "agent-a", "user likes pizza", 0.6)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, testBelief("bel_2", "agent-a", "user hates rain", 0.6)); err != nil {
		t.Fatalf("put: %v", err)
	}
	inactive := testBelief("bel_3", "agent-a", "user likes pizza a lot", 0.6)
	inactive.Active = false
	if err := s.Put(ctx, inactive); err != nil {
		t.Fatalf("put: %v", err)
	}

	scorer := func(ctx context.Context, a, b string) (float64, error) {
		if b == "user likes pizza" {
			return 0.92, nil
		}
		return 0.1, nil
	}

	got, err := s.FindSimilar(ctx, "user likes pizza", "agent-a", 0.7, 10, scorer)
	if err != nil {
		t.Fatalf("find similar: %v", err)
	}
	if len(got) != 1 || got[0].Belief.ID != "bel_1" {
		t.Fatalf("neighbors = %+v, want only bel_1 (active, above floor)", got)
	}
}

func TestBeliefStoreConfidenceDistribution(t *testing.T) {
	ctx := context.Background()
	s := NewBeliefStore(Open())

	for _, b := range []*domain.Belief{
		testBelief("bel_1", "agent-a", "a", 0.9),
		testBelief("bel_2", "agent-a", "b", 0.6),
		testBelief("bel_3", "agent-a", "c", 0.2),
	} {
		if err := s.Put(ctx, b); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	dist, err := s.ConfidenceDistribution(ctx, "agent-a", 0.8, 0.5)
	if err != nil {
		t.Fatalf("distribution: %v", err)
	}
	if dist["high"] != 1 || dist["medium"] != 1 || dist["low"] != 1 {
		t.Errorf("distribution = %v, want one belief per bucket", dist)
	}
}

func testEdge(id, agentID, src, tgt string, typ domain.RelationType) *domain.BeliefRelationship {
	now := time.Now()
	return &domain.BeliefRelationship{
		ID:             id,
		AgentID:        agentID,
		SourceBeliefID: src,
		TargetBeliefID: tgt,
		Type:           typ,
		Strength:       0.8,
		EffectiveFrom:  now,
		Active:         true,
		CreatedAt:      now,
	}
}

func TestGraphStoreAdjacency(t *testing.T) {
	ctx := context.Background()
	s := NewGraphStore(Open())

	if err := s.PutRelationship(ctx, testEdge("rel_1", "agent-a", "bel_1", "bel_2", domain.RelationSupports)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutRelationship(ctx, testEdge("rel_2", "agent-a", "bel_3", "bel_1", domain.RelationImplies)); err != nil {
		t.Fatalf("put: %v", err)
	}

	out, err := s.ListByBelief(ctx, "bel_1", domain.DirectionOut, false)
	if err != nil {
		t.Fatalf("list out: %v", err)
	}
	if len(out) != 1 || out[0].ID != "rel_1" {
		t.Fatalf("out edges = %+v, want rel_1", out)
	}

	in, err := s.ListByBelief(ctx, "bel_1", domain.DirectionIn, false)
	if err != nil {
		t.Fatalf("list in: %v", err)
	}
	if len(in) != 1 || in[0].ID != "rel_2" {
		t.Fatalf("in edges = %+v, want rel_2", in)
	}

	both, err := s.ListByBelief(ctx, "bel_1", domain.DirectionBoth, false)
	if err != nil {
		t.Fatalf("list both: %v", err)
	}
	if len(both) != 2 {
		t.Fatalf("both edges = %d, want 2", len(both))
	}
}

func TestGraphStoreActiveDeprecatingEdge(t *testing.T) {
	ctx := context.Background()
	s := NewGraphStore(Open())

	supports := testEdge("rel_1", "agent-a", "bel_new", "bel_old", domain.RelationSupports)
	if err := s.PutRelationship(ctx, supports); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.ActiveDeprecatingEdge(ctx, "bel_new", "bel_old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("supports edge should not count as deprecating, got %v", err)
	}

	super := testEdge("rel_2", "agent-a", "bel_new", "bel_old", domain.RelationSupersedes)
	if err := s.PutRelationship(ctx, super); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.ActiveDeprecatingEdge(ctx, "bel_new", "bel_old")
	if err != nil {
		t.Fatalf("active deprecating edge: %v", err)
	}
	if got.ID != "rel_2" {
		t.Errorf("edge = %s, want rel_2", got.ID)
	}
}

func TestGraphStoreRemoveInactiveOlderThan(t *testing.T) {
	ctx := context.Background()
	s := NewGraphStore(Open())

	stale := testEdge("rel_stale", "agent-a", "bel_1", "bel_2", domain.RelationRelatesTo)
	stale.Active = false
	stale.CreatedAt = time.Now().Add(-72 * time.Hour)
	activeOld := testEdge("rel_active", "agent-a", "bel_2", "bel_3", domain.RelationRelatesTo)
	activeOld.CreatedAt = time.Now().Add(-72 * time.Hour)
	for _, r := range []*domain.BeliefRelationship{stale, activeOld} {
		if err := s.PutRelationship(ctx, r); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	n, err := s.RemoveInactiveOlderThan(ctx, "agent-a", time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1 (active edges stay)", n)
	}
	if _, err := s.GetRelationship(ctx, "rel_active"); err != nil {
		t.Errorf("active edge should survive cleanup: %v", err)
	}
}
