package domain

import "time"

type RelationType string

const (
	RelationSupersedes          RelationType = "supersedes"
	RelationUpdates             RelationType = "updates"
	RelationDeprecates          RelationType = "deprecates"
	RelationReplaces            RelationType = "replaces"
	RelationSupports            RelationType = "supports"
	RelationContradicts         RelationType = "contradicts"
	RelationImplies             RelationType = "implies"
	RelationReinforces          RelationType = "reinforces"
	RelationWeakens             RelationType = "weakens"
	RelationRelatesTo           RelationType = "relates_to"
	RelationSpecializes         RelationType = "specializes"
	RelationGeneralizes         RelationType = "generalizes"
	RelationExtends             RelationType = "extends"
	RelationDerivesFrom         RelationType = "derives_from"
	RelationCauses              RelationType = "causes"
	RelationCausedBy            RelationType = "caused_by"
	RelationEnables             RelationType = "enables"
	RelationPrevents            RelationType = "prevents"
	RelationDependsOn           RelationType = "depends_on"
	RelationPrecedes            RelationType = "precedes"
	RelationFollows             RelationType = "follows"
	RelationContextFor          RelationType = "context_for"
	RelationEvidencedBy         RelationType = "evidenced_by"
	RelationProvidesEvidenceFor RelationType = "provides_evidence_for"
	RelationConflictsWith       RelationType = "conflicts_with"
	RelationSimilarTo           RelationType = "similar_to"
	RelationAnalogousTo         RelationType = "analogous_to"
	RelationContrastsWith       RelationType = "contrasts_with"
	RelationCustom              RelationType = "custom"
)

func ValidRelationType(r string) bool {
	switch RelationType(r) {
	case RelationSupersedes, RelationUpdates, RelationDeprecates, RelationReplaces,
		RelationSupports, RelationContradicts, RelationImplies, RelationReinforces,
		RelationWeakens, RelationRelatesTo, RelationSpecializes, RelationGeneralizes,
		RelationExtends, RelationDerivesFrom, RelationCauses, RelationCausedBy,
		RelationEnables, RelationPrevents, RelationDependsOn, RelationPrecedes,
		RelationFollows, RelationContextFor, RelationEvidencedBy,
		RelationProvidesEvidenceFor, RelationConflictsWith, RelationSimilarTo,
		RelationAnalogousTo, RelationContrastsWith, RelationCustom:
		return true
	}
	return false
}

// DeprecatingRelations mark belief succession. At most one active edge of
// these types may exist per ordered (source, target) pair, and chains built
// from them must stay acyclic.
var DeprecatingRelations = map[RelationType]bool{
	RelationSupersedes: true,
	RelationDeprecates: true,
	RelationReplaces:   true,
	RelationUpdates:    true,
}

// ConflictRelations connect beliefs that dispute each other.
var ConflictRelations = map[RelationType]bool{
	RelationContradicts:   true,
	RelationConflictsWith: true,
}

// Direction selects edge orientation for adjacency queries.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

func ValidDirection(d string) bool {
	switch Direction(d) {
	case DirectionOut, DirectionIn, DirectionBoth:
		return true
	}
	return false
}

// BeliefRelationship is a typed, temporally-qualified edge between two
// beliefs of the same agent.
type BeliefRelationship struct {
	ID                string         `json:"id"`
	AgentID           string         `json:"agent_id"`
	SourceBeliefID    string         `json:"source_belief_id"`
	TargetBeliefID    string         `json:"target_belief_id"`
	Type              RelationType   `json:"type"`
	Strength          float64        `json:"strength"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	EffectiveFrom     time.Time      `json:"effective_from"`
	EffectiveUntil    *time.Time     `json:"effective_until,omitempty"`
	DeprecationReason string         `json:"deprecation_reason,omitempty"`
	Active            bool           `json:"active"`
	CreatedAt         time.Time      `json:"created_at"`
}

// EffectiveAt reports whether the edge is in force at t: active, started,
// and not yet expired (the until bound is exclusive).
func (r *BeliefRelationship) EffectiveAt(t time.Time) bool {
	if !r.Active {
		return false
	}
	if r.EffectiveFrom.After(t) {
		return false
	}
	if r.EffectiveUntil != nil && !r.EffectiveUntil.After(t) {
		return false
	}
	return true
}

func (r *BeliefRelationship) CurrentlyEffective() bool {
	return r.EffectiveAt(time.Now())
}

// IsDeprecating reports whether the edge marks belief succession.
func (r *BeliefRelationship) IsDeprecating() bool {
	return DeprecatingRelations[r.Type]
}

func (r *BeliefRelationship) Clone() *BeliefRelationship {
	if r == nil {
		return nil
	}
	out := *r
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	if r.EffectiveUntil != nil {
		t := *r.EffectiveUntil
		out.EffectiveUntil = &t
	}
	return &out
}

// GraphView is the (beliefs, edges) tuple graph queries return; receivers
// assemble whatever projection they need from it.
type GraphView struct {
	Beliefs []*Belief             `json:"beliefs"`
	Edges   []*BeliefRelationship `json:"edges"`
}

// GraphPath is an ordered belief path with the edges that connect it.
type GraphPath struct {
	BeliefIDs   []string              `json:"belief_ids"`
	Edges       []*BeliefRelationship `json:"edges"`
	AvgStrength float64               `json:"avg_strength"`
}

// Hops is the number of edges on the path.
func (p *GraphPath) Hops() int { return len(p.Edges) }

// GraphCluster is one connected component of the strength-filtered subgraph.
type GraphCluster struct {
	BeliefIDs []string `json:"belief_ids"`
}

// ConflictPair is a pair of beliefs connected by a conflict relation.
type ConflictPair struct {
	SourceBeliefID string       `json:"source_belief_id"`
	TargetBeliefID string       `json:"target_belief_id"`
	Type           RelationType `json:"type"`
	RelationshipID string       `json:"relationship_id"`
}
