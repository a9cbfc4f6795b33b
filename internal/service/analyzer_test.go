package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/doxalabs/doxa/internal/domain"
)

func TestAnalyzeNewMemoryReinforcesExistingBelief(t *testing.T) {
	e := newEnv(t)
	b := e.seedBelief(t, "User prefers dark mode", 0.6, time.Now().Add(-time.Hour))

	e.extractor.ExtractBeliefsResponse = []domain.CandidateBelief{{
		Statement:  "User prefers dark mode in all apps",
		Category:   "preference",
		Confidence: 0.9,
		Positive:   true,
	}}
	e.extractor.SimilarityResponse = 0.9

	m := e.seedMemory(t, "the user mentioned again that they like dark mode")
	res, err := e.analyzer.AnalyzeNewMemory(context.Background(), m)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if len(res.NewBeliefs) != 0 {
		t.Fatalf("expected no new beliefs, got %d", len(res.NewBeliefs))
	}
	if len(res.ReinforcedBeliefs) != 1 {
		t.Fatalf("expected 1 reinforced belief, got %d", len(res.ReinforcedBeliefs))
	}
	got := res.ReinforcedBeliefs[0]
	if got.ID != b.ID {
		t.Fatalf("reinforced wrong belief: %s", got.ID)
	}
	if !approxEqual(got.Confidence, 0.7) {
		t.Fatalf("confidence = %v, want 0.7", got.Confidence)
	}
	if got.ReinforcementCount != 1 {
		t.Fatalf("reinforcement count = %d, want 1", got.ReinforcementCount)
	}
	if !got.HasEvidence(m.ID) {
		t.Fatalf("memory %s not attached as evidence", m.ID)
	}

	stored, err := e.beliefs.Get(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("get belief: %v", err)
	}
	if !approxEqual(stored.Confidence, 0.7) {
		t.Fatalf("stored confidence = %v, want 0.7", stored.Confidence)
	}
}

func TestAnalyzeNewMemoryCreatesBeliefWithoutNeighbors(t *testing.T) {
	e := newEnv(t)

	e.extractor.ExtractBeliefsResponse = []domain.CandidateBelief{{
		Statement:  "User works in Berlin",
		Category:   "fact",
		Confidence: 0.85,
		Positive:   true,
	}}
	e.extractor.SimilarityResponse = 0 // nothing similar stored

	m := e.seedMemory(t, "I started a new job in Berlin")
	res, err := e.analyzer.AnalyzeNewMemory(context.Background(), m)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if len(res.NewBeliefs) != 1 {
		t.Fatalf("expected 1 new belief, got %d", len(res.NewBeliefs))
	}
	b := res.NewBeliefs[0]
	if !approxEqual(b.Confidence, 0.85) {
		t.Fatalf("confidence = %v, want 0.85", b.Confidence)
	}
	if b.Category != "fact" {
		t.Fatalf("category = %q, want fact", b.Category)
	}
	if !b.HasEvidence(m.ID) {
		t.Fatalf("new belief missing evidence memory")
	}
	if !b.Active {
		t.Fatalf("new belief should be active")
	}
}

func TestAnalyzeNewMemoryRecordsConflictOnNegation(t *testing.T) {
	e := newEnv(t)
	b := e.seedBelief(t, "User is vegetarian", 0.8, time.Now().Add(-time.Hour))

	e.extractor.ExtractBeliefsResponse = []domain.CandidateBelief{{
		Statement:  "User is not vegetarian",
		Category:   "preference",
		Confidence: 0.7,
		Positive:   false,
	}}
	e.extractor.SimilarityResponse = 0.85

	m := e.seedMemory(t, "had a burger with the user yesterday")
	res, err := e.analyzer.AnalyzeNewMemory(context.Background(), m)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if len(res.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(res.Conflicts))
	}
	c := res.Conflicts[0]
	if c.BeliefID != b.ID || c.MemoryID != m.ID {
		t.Fatalf("conflict references %s/%s, want %s/%s", c.BeliefID, c.MemoryID, b.ID, m.ID)
	}
	if c.Type() != domain.ConflictBeliefMemory {
		t.Fatalf("conflict type = %s, want belief_memory", c.Type())
	}
	if !approxEqual(c.Severity, 0.8) {
		t.Fatalf("severity = %v, want the belief's confidence", c.Severity)
	}

	// The contradicted belief itself is untouched.
	stored, _ := e.beliefs.Get(context.Background(), b.ID)
	if !stored.Active || !approxEqual(stored.Confidence, 0.8) {
		t.Fatalf("belief mutated by conflict detection: %+v", stored)
	}
}

func TestAnalyzeNewMemoryNegationWithoutNeighborsWritesNothing(t *testing.T) {
	e := newEnv(t)

	e.extractor.ExtractBeliefsResponse = []domain.CandidateBelief{{
		Statement:  "User does not like spicy food",
		Confidence: 0.7,
		Positive:   false,
	}}
	e.extractor.SimilarityResponse = 0

	m := e.seedMemory(t, "no to the hot sauce")
	res, err := e.analyzer.AnalyzeNewMemory(context.Background(), m)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(res.NewBeliefs)+len(res.ReinforcedBeliefs)+len(res.Conflicts) != 0 {
		t.Fatalf("expected no writes, got %+v", res)
	}
	if n, _ := e.beliefs.Count(context.Background()); n != 0 {
		t.Fatalf("belief count = %d, want 0", n)
	}
}

func TestAnalyzeNewMemoryFallsBackToGeneralBelief(t *testing.T) {
	e := newEnv(t)
	e.extractor.ExtractBeliefsError = errors.New("provider down")

	m := e.seedMemory(t, "a note that resists extraction")
	res, err := e.analyzer.AnalyzeNewMemory(context.Background(), m)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if len(res.NewBeliefs) != 1 {
		t.Fatalf("expected exactly one general belief, got %d", len(res.NewBeliefs))
	}
	b := res.NewBeliefs[0]
	if !strings.HasPrefix(b.Statement, "General memory: ") {
		t.Fatalf("statement = %q, want general-memory prefix", b.Statement)
	}
	if !approxEqual(b.Confidence, 0.5) {
		t.Fatalf("confidence = %v, want 0.5", b.Confidence)
	}
	if b.Category != m.Category.Primary {
		t.Fatalf("category = %q, want the memory's %q", b.Category, m.Category.Primary)
	}
}

func TestAnalyzeNewMemoryEmptyExtractionSynthesizesOneBelief(t *testing.T) {
	e := newEnv(t)
	e.extractor.ExtractBeliefsResponse = []domain.CandidateBelief{}

	m := e.seedMemory(t, "nothing extractable here")
	res, err := e.analyzer.AnalyzeNewMemory(context.Background(), m)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(res.NewBeliefs) != 1 {
		t.Fatalf("expected exactly one synthesized belief, got %d", len(res.NewBeliefs))
	}
}

func TestAnalyzeNewMemoryCancelledContextReturnsPartialResult(t *testing.T) {
	e := newEnv(t)
	e.extractor.ExtractBeliefsResponse = []domain.CandidateBelief{{
		Statement: "anything", Confidence: 0.5, Positive: true,
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := e.seedMemory(t, "cancelled before analysis")
	res, err := e.analyzer.AnalyzeNewMemory(ctx, m)
	if err == nil {
		t.Fatalf("expected an error for cancelled context")
	}
	if !domain.IsKind(err, domain.KindBeliefAnalysisIncomplete) {
		t.Fatalf("error kind = %s, want belief_analysis_incomplete", domain.KindOf(err))
	}
	if res == nil {
		t.Fatalf("partial result must be returned alongside the error")
	}
}

func TestAnalyzeBatchPreservesInputOrder(t *testing.T) {
	e := newEnv(t)
	e.extractor.ExtractBeliefsFn = func(content, agentID, hint string) ([]domain.CandidateBelief, error) {
		return []domain.CandidateBelief{{
			Statement:  "belief from " + content,
			Confidence: 0.6,
			Positive:   true,
		}}, nil
	}
	e.extractor.SimilarityResponse = 0

	records := []*domain.MemoryRecord{
		e.seedMemory(t, "first"),
		e.seedMemory(t, "second"),
		e.seedMemory(t, "third"),
	}

	res, err := e.analyzer.AnalyzeBatch(context.Background(), records)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(res.NewBeliefs) != 3 {
		t.Fatalf("expected 3 new beliefs, got %d", len(res.NewBeliefs))
	}
	for i, want := range []string{"belief from first", "belief from second", "belief from third"} {
		if res.NewBeliefs[i].Statement != want {
			t.Fatalf("belief %d = %q, want %q", i, res.NewBeliefs[i].Statement, want)
		}
	}
	if e.counters.Snapshot().BatchAnalyses != 1 {
		t.Fatalf("batch counter not incremented")
	}
}

func TestResolveConflictNewerWinsArchivesOlderBelief(t *testing.T) {
	e := newEnv(t)
	older := e.seedBelief(t, "User lives in Munich", 0.9, time.Now().Add(-48*time.Hour))
	newer := e.seedBelief(t, "User lives in Hamburg", 0.6, time.Now().Add(-time.Hour))

	conflict := &domain.BeliefConflict{
		ID:                  domain.NewConflictID(),
		AgentID:             testAgent,
		BeliefID:            older.ID,
		ConflictingBeliefID: newer.ID,
		DetectedAt:          time.Now(),
	}
	if err := e.conflicts.Put(context.Background(), conflict); err != nil {
		t.Fatalf("seed conflict: %v", err)
	}

	resolved, err := e.analyzer.ResolveConflict(context.Background(), conflict)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !resolved.Resolved {
		t.Fatalf("conflict not marked resolved")
	}
	if resolved.Resolution != domain.ResolutionArchiveOld {
		t.Fatalf("resolution = %s, want archive_old", resolved.Resolution)
	}

	gotOlder, _ := e.beliefs.Get(context.Background(), older.ID)
	gotNewer, _ := e.beliefs.Get(context.Background(), newer.ID)
	if gotOlder.Active {
		t.Fatalf("older belief should be deactivated")
	}
	if !gotNewer.Active {
		t.Fatalf("newer belief should survive")
	}

	if _, err := e.conflicts.Get(context.Background(), conflict.ID); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("resolved conflict should be removed from the store, got %v", err)
	}
	if e.counters.Snapshot().ConflictsResolved != 1 {
		t.Fatalf("resolution counter not incremented")
	}
}

func TestResolveConflictIsIdempotent(t *testing.T) {
	e := newEnv(t)
	older := e.seedBelief(t, "old", 0.5, time.Now().Add(-2*time.Hour))
	newer := e.seedBelief(t, "new", 0.5, time.Now())

	conflict := &domain.BeliefConflict{
		ID:                  domain.NewConflictID(),
		AgentID:             testAgent,
		BeliefID:            older.ID,
		ConflictingBeliefID: newer.ID,
		DetectedAt:          time.Now(),
	}
	_ = e.conflicts.Put(context.Background(), conflict)

	first, err := e.analyzer.ResolveConflict(context.Background(), conflict)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := e.analyzer.ResolveConflict(context.Background(), first)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if !second.Resolved || second.Resolution != first.Resolution {
		t.Fatalf("second resolve changed the outcome: %+v", second)
	}
	if e.counters.Snapshot().ConflictsResolved != 1 {
		t.Fatalf("idempotent resolve must not double-count")
	}
}

func TestResolveConflictBeliefMemoryGoesToManualReview(t *testing.T) {
	e := newEnv(t)
	b := e.seedBelief(t, "User is vegetarian", 0.8, time.Now())

	conflict := &domain.BeliefConflict{
		ID:         domain.NewConflictID(),
		AgentID:    testAgent,
		BeliefID:   b.ID,
		MemoryID:   "mem_x",
		DetectedAt: time.Now(),
	}
	_ = e.conflicts.Put(context.Background(), conflict)

	resolved, err := e.analyzer.ResolveConflict(context.Background(), conflict)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Resolved {
		t.Fatalf("belief-memory conflict should stay open under the default table")
	}
	if resolved.Resolution != domain.ResolutionRequireManualReview {
		t.Fatalf("resolution = %s, want require_manual_review", resolved.Resolution)
	}
	if _, err := e.conflicts.Get(context.Background(), conflict.ID); err != nil {
		t.Fatalf("flagged conflict must remain in the store: %v", err)
	}
}

func TestResolveConflictHigherConfidenceKeepsStrongerBelief(t *testing.T) {
	e := newEnv(t)
	if err := e.analyzer.ConfigureResolutionStrategies(map[string]domain.ResolutionStrategy{
		string(domain.ConflictBeliefBelief): domain.StrategyHigherConfidence,
	}); err != nil {
		t.Fatalf("configure: %v", err)
	}

	weak := e.seedBelief(t, "weak claim", 0.4, time.Now())
	strong := e.seedBelief(t, "strong claim", 0.9, time.Now().Add(-time.Hour))

	conflict := &domain.BeliefConflict{
		ID:                  domain.NewConflictID(),
		AgentID:             testAgent,
		BeliefID:            weak.ID,
		ConflictingBeliefID: strong.ID,
		DetectedAt:          time.Now(),
	}
	_ = e.conflicts.Put(context.Background(), conflict)

	resolved, err := e.analyzer.ResolveConflict(context.Background(), conflict)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !resolved.Resolved {
		t.Fatalf("conflict should be resolved")
	}

	gotWeak, _ := e.beliefs.Get(context.Background(), weak.ID)
	gotStrong, _ := e.beliefs.Get(context.Background(), strong.ID)
	if gotWeak.Active || !gotStrong.Active {
		t.Fatalf("higher_confidence kept the wrong belief")
	}
}

func TestConfigureResolutionStrategiesRejectsUnknown(t *testing.T) {
	e := newEnv(t)
	err := e.analyzer.ConfigureResolutionStrategies(map[string]domain.ResolutionStrategy{
		domain.StrategyDefaultKey: "coin_flip",
	})
	if !domain.IsKind(err, domain.KindInvalidInput) {
		t.Fatalf("error kind = %s, want invalid_input", domain.KindOf(err))
	}
}

func TestReviewBeliefsForAgentFindsPairwiseConflicts(t *testing.T) {
	e := newEnv(t)
	b1 := e.seedBelief(t, "User lives in Munich", 0.8, time.Now().Add(-time.Hour))
	b2 := e.seedBelief(t, "User lives in Hamburg", 0.6, time.Now())
	e.seedBelief(t, "User likes coffee", 0.7, time.Now())

	e.extractor.AreConflictingFn = func(s1, s2, c1, c2 string) (bool, error) {
		return strings.Contains(s1, "lives in") && strings.Contains(s2, "lives in"), nil
	}

	found, err := e.analyzer.ReviewBeliefsForAgent(context.Background(), testAgent)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(found))
	}
	c := found[0]
	pair := map[string]bool{c.BeliefID: true, c.ConflictingBeliefID: true}
	if !pair[b1.ID] || !pair[b2.ID] {
		t.Fatalf("conflict pairs wrong beliefs: %+v", c)
	}
	if !approxEqual(c.Severity, 0.7) {
		t.Fatalf("severity = %v, want mean confidence 0.7", c.Severity)
	}
}

func TestUpdateBeliefConfidenceValidatesRange(t *testing.T) {
	e := newEnv(t)
	b := e.seedBelief(t, "claim", 0.5, time.Now())

	if _, err := e.analyzer.UpdateBeliefConfidence(context.Background(), b.ID, 1.5, "x"); !domain.IsKind(err, domain.KindInvalidInput) {
		t.Fatalf("out-of-range confidence must be invalid_input, got %v", err)
	}

	got, err := e.analyzer.UpdateBeliefConfidence(context.Background(), b.ID, 0.25, "manual adjustment")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !approxEqual(got.Confidence, 0.25) {
		t.Fatalf("confidence = %v, want 0.25", got.Confidence)
	}
}

func TestDeactivateBeliefIsIdempotent(t *testing.T) {
	e := newEnv(t)
	b := e.seedBelief(t, "claim", 0.5, time.Now())

	first, err := e.analyzer.DeactivateBelief(context.Background(), b.ID, "retired")
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if first.Active {
		t.Fatalf("belief still active")
	}

	second, err := e.analyzer.DeactivateBelief(context.Background(), b.ID, "retired again")
	if err != nil {
		t.Fatalf("second deactivate: %v", err)
	}
	if second.Active {
		t.Fatalf("second deactivate flipped state")
	}
}

func TestConfidenceDistributionBuckets(t *testing.T) {
	e := newEnv(t)
	e.seedBelief(t, "high", 0.9, time.Now())
	e.seedBelief(t, "medium", 0.6, time.Now())
	e.seedBelief(t, "low", 0.2, time.Now())

	dist, err := e.analyzer.ConfidenceDistribution(context.Background(), testAgent)
	if err != nil {
		t.Fatalf("distribution: %v", err)
	}
	if dist["high"] != 1 || dist["medium"] != 1 || dist["low"] != 1 {
		t.Fatalf("distribution = %v", dist)
	}
}

func TestLowConfidenceBeliefsDefaultsToConfiguredThreshold(t *testing.T) {
	e := newEnv(t)
	low := e.seedBelief(t, "shaky", 0.1, time.Now())
	e.seedBelief(t, "solid", 0.9, time.Now())

	got, err := e.analyzer.LowConfidenceBeliefs(context.Background(), 0, testAgent)
	if err != nil {
		t.Fatalf("low confidence: %v", err)
	}
	if len(got) != 1 || got[0].ID != low.ID {
		t.Fatalf("expected only the shaky belief, got %d", len(got))
	}
}
