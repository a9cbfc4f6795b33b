package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/doxalabs/doxa/internal/domain"
)

func TestCreateRelationshipValidation(t *testing.T) {
	e := newEnv(t)
	b1 := e.seedBelief(t, "first", 0.5, time.Now())
	b2 := e.seedBelief(t, "second", 0.5, time.Now())

	cases := []struct {
		name string
		in   CreateRelationshipInput
	}{
		{"self loop", CreateRelationshipInput{SourceBeliefID: b1.ID, TargetBeliefID: b1.ID, Type: domain.RelationSupports, Strength: 0.5, AgentID: testAgent}},
		{"unknown type", CreateRelationshipInput{SourceBeliefID: b1.ID, TargetBeliefID: b2.ID, Type: "friends_with", Strength: 0.5, AgentID: testAgent}},
		{"strength out of range", CreateRelationshipInput{SourceBeliefID: b1.ID, TargetBeliefID: b2.ID, Type: domain.RelationSupports, Strength: 1.5, AgentID: testAgent}},
		{"missing agent", CreateRelationshipInput{SourceBeliefID: b1.ID, TargetBeliefID: b2.ID, Type: domain.RelationSupports, Strength: 0.5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.relationships.CreateRelationship(context.Background(), tc.in); !domain.IsKind(err, domain.KindInvalidInput) {
				t.Fatalf("error kind = %s, want invalid_input", domain.KindOf(err))
			}
		})
	}

	t.Run("missing belief", func(t *testing.T) {
		in := CreateRelationshipInput{SourceBeliefID: b1.ID, TargetBeliefID: "bel_ghost", Type: domain.RelationSupports, Strength: 0.5, AgentID: testAgent}
		if _, err := e.relationships.CreateRelationship(context.Background(), in); !domain.IsKind(err, domain.KindNotFound) {
			t.Fatalf("dangling endpoint must be not_found")
		}
	})
}

func TestCreateRelationshipDeprecatingUniqueness(t *testing.T) {
	e := newEnv(t)
	b1 := e.seedBelief(t, "old version", 0.5, time.Now())
	b2 := e.seedBelief(t, "new version", 0.5, time.Now())

	in := CreateRelationshipInput{
		SourceBeliefID: b2.ID,
		TargetBeliefID: b1.ID,
		Type:           domain.RelationSupersedes,
		Strength:       1.0,
		AgentID:        testAgent,
	}
	if _, err := e.relationships.CreateRelationship(context.Background(), in); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := e.relationships.CreateRelationship(context.Background(), in); !domain.IsKind(err, domain.KindInvalidInput) {
		t.Fatalf("duplicate active deprecating edge must fail invalid_input, got %v", err)
	}

	// A non-deprecating edge on the same pair is fine.
	in.Type = domain.RelationRelatesTo
	if _, err := e.relationships.CreateRelationship(context.Background(), in); err != nil {
		t.Fatalf("non-deprecating edge on same pair: %v", err)
	}
}

func TestDeprecationChainAndShortestPath(t *testing.T) {
	e := newEnv(t)
	v1 := e.seedBelief(t, "API served over plain HTTP", 0.8, time.Now().Add(-3*time.Hour))
	v2 := e.seedBelief(t, "API served over HTTPS", 0.8, time.Now().Add(-2*time.Hour))
	v3 := e.seedBelief(t, "API served over HTTPS with mTLS", 0.9, time.Now().Add(-time.Hour))

	if _, err := e.relationships.DeprecateBeliefWith(context.Background(), v1.ID, v2.ID, "moved to https", testAgent); err != nil {
		t.Fatalf("deprecate v1: %v", err)
	}
	if _, err := e.relationships.DeprecateBeliefWith(context.Background(), v2.ID, v3.ID, "added mtls", testAgent); err != nil {
		t.Fatalf("deprecate v2: %v", err)
	}

	// Old versions are deactivated, the head survives.
	for _, tc := range []struct {
		id     string
		active bool
	}{{v1.ID, false}, {v2.ID, false}, {v3.ID, true}} {
		b, err := e.beliefs.Get(context.Background(), tc.id)
		if err != nil {
			t.Fatalf("get %s: %v", tc.id, err)
		}
		if b.Active != tc.active {
			t.Fatalf("belief %s active = %v, want %v", tc.id, b.Active, tc.active)
		}
	}

	deprecated, err := e.relationships.DeprecatedBeliefs(context.Background(), testAgent)
	if err != nil {
		t.Fatalf("deprecated list: %v", err)
	}
	ids := make([]string, len(deprecated))
	for i, b := range deprecated {
		ids[i] = b.ID
	}
	want := map[string]bool{v1.ID: true, v2.ID: true}
	if len(ids) != 2 || !want[ids[0]] || !want[ids[1]] {
		t.Fatalf("deprecated ids = %v, want v1 and v2", ids)
	}

	path, err := e.relationships.ShortestPath(context.Background(), v3.ID, v1.ID)
	if err != nil {
		t.Fatalf("shortest path: %v", err)
	}
	if diff := cmp.Diff([]string{v3.ID, v2.ID, v1.ID}, path.BeliefIDs); diff != "" {
		t.Fatalf("path mismatch (-want +got):\n%s", diff)
	}
	if path.Hops() != 2 {
		t.Fatalf("hops = %d, want 2", path.Hops())
	}
	if !approxEqual(path.AvgStrength, 1.0) {
		t.Fatalf("avg strength = %v, want 1.0", path.AvgStrength)
	}

	if e.counters.Snapshot().Deprecations != 2 {
		t.Fatalf("deprecation counter = %d, want 2", e.counters.Snapshot().Deprecations)
	}
}

func TestDeprecateBeliefWithRejectsCycle(t *testing.T) {
	e := newEnv(t)
	v1 := e.seedBelief(t, "v1", 0.5, time.Now().Add(-2*time.Hour))
	v2 := e.seedBelief(t, "v2", 0.5, time.Now().Add(-time.Hour))

	if _, err := e.relationships.DeprecateBeliefWith(context.Background(), v1.ID, v2.ID, "update", testAgent); err != nil {
		t.Fatalf("deprecate: %v", err)
	}
	// v2 already supersedes v1; closing the loop must fail.
	if _, err := e.relationships.DeprecateBeliefWith(context.Background(), v2.ID, v1.ID, "revert", testAgent); !domain.IsKind(err, domain.KindInvalidInput) {
		t.Fatalf("cycle must be rejected as invalid_input, got %v", err)
	}
}

func TestShortestPathNotFound(t *testing.T) {
	e := newEnv(t)
	a := e.seedBelief(t, "island a", 0.5, time.Now())
	b := e.seedBelief(t, "island b", 0.5, time.Now())

	if _, err := e.relationships.ShortestPath(context.Background(), a.ID, b.ID); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("disconnected beliefs must yield not_found")
	}
}

func TestShortestPathPrefersStrongerEqualHopPath(t *testing.T) {
	e := newEnv(t)
	src := e.seedBelief(t, "src", 0.5, time.Now())
	mid1 := e.seedBelief(t, "weak middle", 0.5, time.Now())
	mid2 := e.seedBelief(t, "strong middle", 0.5, time.Now())
	dst := e.seedBelief(t, "dst", 0.5, time.Now())

	mk := func(from, to string, strength float64) {
		t.Helper()
		_, err := e.relationships.CreateRelationship(context.Background(), CreateRelationshipInput{
			SourceBeliefID: from, TargetBeliefID: to,
			Type: domain.RelationSupports, Strength: strength, AgentID: testAgent,
		})
		if err != nil {
			t.Fatalf("edge %s->%s: %v", from, to, err)
		}
	}
	mk(src.ID, mid1.ID, 0.2)
	mk(mid1.ID, dst.ID, 0.2)
	mk(src.ID, mid2.ID, 0.9)
	mk(mid2.ID, dst.ID, 0.9)

	path, err := e.relationships.ShortestPath(context.Background(), src.ID, dst.ID)
	if err != nil {
		t.Fatalf("shortest path: %v", err)
	}
	if len(path.BeliefIDs) != 3 || path.BeliefIDs[1] != mid2.ID {
		t.Fatalf("path = %v, want the stronger middle %s", path.BeliefIDs, mid2.ID)
	}
}

func TestRelatedBeliefsRespectsDepth(t *testing.T) {
	e := newEnv(t)
	chain := make([]*domain.Belief, 4)
	for i := range chain {
		chain[i] = e.seedBelief(t, "link", 0.5, time.Now())
	}
	for i := 0; i < len(chain)-1; i++ {
		if _, err := e.relationships.CreateRelationship(context.Background(), CreateRelationshipInput{
			SourceBeliefID: chain[i].ID, TargetBeliefID: chain[i+1].ID,
			Type: domain.RelationImplies, Strength: 0.8, AgentID: testAgent,
		}); err != nil {
			t.Fatalf("edge %d: %v", i, err)
		}
	}

	view, err := e.relationships.RelatedBeliefs(context.Background(), chain[0].ID, 2, false)
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(view.Beliefs) != 3 {
		t.Fatalf("depth 2 from the head should reach 3 beliefs, got %d", len(view.Beliefs))
	}

	full, err := e.relationships.RelatedBeliefs(context.Background(), chain[0].ID, 0, false)
	if err != nil {
		t.Fatalf("related full: %v", err)
	}
	if len(full.Beliefs) != 4 {
		t.Fatalf("default depth should reach the whole chain, got %d", len(full.Beliefs))
	}
}

func TestClustersGroupByStrengthThreshold(t *testing.T) {
	e := newEnv(t)
	a1 := e.seedBelief(t, "a1", 0.5, time.Now())
	a2 := e.seedBelief(t, "a2", 0.5, time.Now())
	a3 := e.seedBelief(t, "a3", 0.5, time.Now())
	b1 := e.seedBelief(t, "b1", 0.5, time.Now())
	b2 := e.seedBelief(t, "b2", 0.5, time.Now())

	mk := func(from, to string, strength float64) {
		t.Helper()
		if _, err := e.relationships.CreateRelationship(context.Background(), CreateRelationshipInput{
			SourceBeliefID: from, TargetBeliefID: to,
			Type: domain.RelationRelatesTo, Strength: strength, AgentID: testAgent,
		}); err != nil {
			t.Fatalf("edge: %v", err)
		}
	}
	mk(a1.ID, a2.ID, 0.9)
	mk(a2.ID, a3.ID, 0.8)
	mk(b1.ID, b2.ID, 0.9)
	mk(a3.ID, b1.ID, 0.1) // too weak to join the clusters

	clusters, err := e.relationships.Clusters(context.Background(), testAgent, 0.5)
	if err != nil {
		t.Fatalf("clusters: %v", err)
	}
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}
	if len(clusters[0].BeliefIDs) != 3 || len(clusters[1].BeliefIDs) != 2 {
		t.Fatalf("cluster sizes = %d/%d, want 3/2",
			len(clusters[0].BeliefIDs), len(clusters[1].BeliefIDs))
	}
}

func TestConflictPairsListsConflictEdges(t *testing.T) {
	e := newEnv(t)
	b1 := e.seedBelief(t, "claim", 0.5, time.Now())
	b2 := e.seedBelief(t, "counter claim", 0.5, time.Now())
	b3 := e.seedBelief(t, "bystander", 0.5, time.Now())

	if _, err := e.relationships.CreateRelationship(context.Background(), CreateRelationshipInput{
		SourceBeliefID: b1.ID, TargetBeliefID: b2.ID,
		Type: domain.RelationContradicts, Strength: 0.9, AgentID: testAgent,
	}); err != nil {
		t.Fatalf("contradicts edge: %v", err)
	}
	if _, err := e.relationships.CreateRelationship(context.Background(), CreateRelationshipInput{
		SourceBeliefID: b2.ID, TargetBeliefID: b3.ID,
		Type: domain.RelationSupports, Strength: 0.9, AgentID: testAgent,
	}); err != nil {
		t.Fatalf("supports edge: %v", err)
	}

	pairs, err := e.relationships.ConflictPairs(context.Background(), testAgent)
	if err != nil {
		t.Fatalf("conflict pairs: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("expected 1 conflict pair, got %d", len(pairs))
	}
	if pairs[0].SourceBeliefID != b1.ID || pairs[0].TargetBeliefID != b2.ID {
		t.Fatalf("pair = %+v", pairs[0])
	}
}

func TestUpdateRelationshipPatchesFields(t *testing.T) {
	e := newEnv(t)
	b1 := e.seedBelief(t, "x", 0.5, time.Now())
	b2 := e.seedBelief(t, "y", 0.5, time.Now())

	rel, err := e.relationships.CreateRelationship(context.Background(), CreateRelationshipInput{
		SourceBeliefID: b1.ID, TargetBeliefID: b2.ID,
		Type: domain.RelationSupports, Strength: 0.5, AgentID: testAgent,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newStrength := 0.8
	inactive := false
	got, err := e.relationships.UpdateRelationship(context.Background(), rel.ID, RelationshipUpdate{
		Strength: &newStrength,
		Active:   &inactive,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !approxEqual(got.Strength, 0.8) || got.Active {
		t.Fatalf("patch not applied: %+v", got)
	}

	bad := 1.5
	if _, err := e.relationships.UpdateRelationship(context.Background(), rel.ID, RelationshipUpdate{Strength: &bad}); !domain.IsKind(err, domain.KindInvalidInput) {
		t.Fatalf("out-of-range strength must be invalid_input")
	}
}

func TestEffectiveAtFiltersByWindow(t *testing.T) {
	e := newEnv(t)
	b1 := e.seedBelief(t, "x", 0.5, time.Now())
	b2 := e.seedBelief(t, "y", 0.5, time.Now())

	from := time.Now().Add(-2 * time.Hour)
	until := time.Now().Add(-time.Hour)
	if _, err := e.relationships.CreateTemporalRelationship(context.Background(), CreateRelationshipInput{
		SourceBeliefID: b1.ID, TargetBeliefID: b2.ID,
		Type: domain.RelationPrecedes, Strength: 0.5, AgentID: testAgent,
	}, from, &until); err != nil {
		t.Fatalf("create temporal: %v", err)
	}

	inWindow, err := e.relationships.EffectiveAt(context.Background(), testAgent, time.Now().Add(-90*time.Minute))
	if err != nil {
		t.Fatalf("effective at: %v", err)
	}
	if len(inWindow) != 1 {
		t.Fatalf("expected the edge inside its window, got %d", len(inWindow))
	}

	now, err := e.relationships.EffectiveAt(context.Background(), testAgent, time.Now())
	if err != nil {
		t.Fatalf("effective now: %v", err)
	}
	if len(now) != 0 {
		t.Fatalf("expired edge still reported effective")
	}
}

func TestValidateGraphReportsIssues(t *testing.T) {
	e := newEnv(t)
	b1 := e.seedBelief(t, "x", 0.5, time.Now())

	// Seed a broken edge directly: dangling target and self-loop.
	bad := &domain.BeliefRelationship{
		ID:             domain.NewRelationshipID(),
		AgentID:        testAgent,
		SourceBeliefID: b1.ID,
		TargetBeliefID: "bel_ghost",
		Type:           domain.RelationSupports,
		Strength:       0.5,
		EffectiveFrom:  time.Now(),
		Active:         true,
		CreatedAt:      time.Now(),
	}
	if err := e.graph.PutRelationship(context.Background(), bad); err != nil {
		t.Fatalf("seed bad edge: %v", err)
	}
	loop := &domain.BeliefRelationship{
		ID:             domain.NewRelationshipID(),
		AgentID:        testAgent,
		SourceBeliefID: b1.ID,
		TargetBeliefID: b1.ID,
		Type:           domain.RelationRelatesTo,
		Strength:       0.5,
		EffectiveFrom:  time.Now(),
		Active:         true,
		CreatedAt:      time.Now(),
	}
	if err := e.graph.PutRelationship(context.Background(), loop); err != nil {
		t.Fatalf("seed loop edge: %v", err)
	}

	issues, err := e.relationships.ValidateGraph(context.Background(), testAgent)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(issues) < 2 {
		t.Fatalf("expected dangling + self-loop issues, got %v", issues)
	}
}

func TestCleanupRemovesOldInactiveEdges(t *testing.T) {
	e := newEnv(t)
	b1 := e.seedBelief(t, "x", 0.5, time.Now())
	b2 := e.seedBelief(t, "y", 0.5, time.Now())

	old := &domain.BeliefRelationship{
		ID:             domain.NewRelationshipID(),
		AgentID:        testAgent,
		SourceBeliefID: b1.ID,
		TargetBeliefID: b2.ID,
		Type:           domain.RelationSupports,
		Strength:       0.5,
		EffectiveFrom:  time.Now().AddDate(0, 0, -200),
		Active:         false,
		CreatedAt:      time.Now().AddDate(0, 0, -200),
	}
	if err := e.graph.PutRelationship(context.Background(), old); err != nil {
		t.Fatalf("seed old edge: %v", err)
	}

	removed, err := e.relationships.Cleanup(context.Background(), testAgent, 90)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := e.graph.GetRelationship(context.Background(), old.ID); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("old edge should be gone")
	}

	if _, err := e.relationships.Cleanup(context.Background(), testAgent, 0); !domain.IsKind(err, domain.KindInvalidInput) {
		t.Fatalf("non-positive retention must be invalid_input")
	}
}
