package domain

import "time"

// Belief is a distilled proposition held by one agent, backed by evidence
// memories and carrying a confidence that moves with reinforcement.
type Belief struct {
	ID                 string    `json:"id"`
	AgentID            string    `json:"agent_id"`
	Statement          string    `json:"statement"`
	Confidence         float64   `json:"confidence"`
	Category           string    `json:"category"`
	EvidenceMemoryIDs  []string  `json:"evidence_memory_ids,omitempty"`
	Tags               []string  `json:"tags,omitempty"`
	ReinforcementCount int       `json:"reinforcement_count"`
	CreatedAt          time.Time `json:"created_at"`
	LastUpdated        time.Time `json:"last_updated"`
	Active             bool      `json:"active"`
}

func (b *Belief) Clone() *Belief {
	if b == nil {
		return nil
	}
	out := *b
	if b.EvidenceMemoryIDs != nil {
		out.EvidenceMemoryIDs = make([]string, len(b.EvidenceMemoryIDs))
		copy(out.EvidenceMemoryIDs, b.EvidenceMemoryIDs)
	}
	if b.Tags != nil {
		out.Tags = make([]string, len(b.Tags))
		copy(out.Tags, b.Tags)
	}
	return &out
}

// HasEvidence reports whether memoryID is already attached to the belief.
func (b *Belief) HasEvidence(memoryID string) bool {
	for _, id := range b.EvidenceMemoryIDs {
		if id == memoryID {
			return true
		}
	}
	return false
}

// ScoredBelief pairs a belief with its similarity to a query statement.
type ScoredBelief struct {
	Belief *Belief `json:"belief"`
	Score  float64 `json:"score"`
}

// CandidateBelief is an extractor proposal before the analyzer decides
// new/reinforce/conflict. Positive=false marks a negation of the statement.
type CandidateBelief struct {
	Statement  string   `json:"statement"`
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Positive   bool     `json:"positive"`
	Tags       []string `json:"tags,omitempty"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

type ConflictResolution string

const (
	ResolutionKeepOld             ConflictResolution = "keep_old"
	ResolutionKeepNew             ConflictResolution = "keep_new"
	ResolutionArchiveOld          ConflictResolution = "archive_old"
	ResolutionMergeBoth           ConflictResolution = "merge_both"
	ResolutionRequireManualReview ConflictResolution = "require_manual_review"
)

func ValidConflictResolution(r string) bool {
	switch ConflictResolution(r) {
	case ResolutionKeepOld, ResolutionKeepNew, ResolutionArchiveOld,
		ResolutionMergeBoth, ResolutionRequireManualReview:
		return true
	}
	return false
}

// ConflictType classifies a conflict by which ids are populated.
type ConflictType string

const (
	ConflictBeliefBelief ConflictType = "belief_belief"
	ConflictBeliefMemory ConflictType = "belief_memory"
	ConflictUnknown      ConflictType = "unknown"
)

// ResolutionStrategy names a configured way of resolving one conflict type.
type ResolutionStrategy string

const (
	StrategyNewerWins        ResolutionStrategy = "newer_wins"
	StrategyHigherConfidence ResolutionStrategy = "higher_confidence"
	StrategyMerge            ResolutionStrategy = "merge"
	StrategyFlagForReview    ResolutionStrategy = "flag_for_review"
)

func ValidResolutionStrategy(s string) bool {
	switch ResolutionStrategy(s) {
	case StrategyNewerWins, StrategyHigherConfidence, StrategyMerge, StrategyFlagForReview:
		return true
	}
	return false
}

// StrategyDefaultKey indexes the fallback strategy in a strategy table.
const StrategyDefaultKey = "default"

// BeliefConflict records an incompatibility between two beliefs, or between
// a belief and a memory. Exactly one of ConflictingBeliefID/MemoryID is set.
type BeliefConflict struct {
	ID                  string             `json:"id"`
	AgentID             string             `json:"agent_id"`
	BeliefID            string             `json:"belief_id"`
	ConflictingBeliefID string             `json:"conflicting_belief_id,omitempty"`
	MemoryID            string             `json:"memory_id,omitempty"`
	DetectedAt          time.Time          `json:"detected_at"`
	Resolved            bool               `json:"resolved"`
	ResolvedAt          *time.Time         `json:"resolved_at,omitempty"`
	Resolution          ConflictResolution `json:"resolution,omitempty"`
	ResolutionDetails   string             `json:"resolution_details,omitempty"`
	Severity            float64            `json:"severity,omitempty"`
}

// Type derives the conflict classification from the populated ids.
func (c *BeliefConflict) Type() ConflictType {
	switch {
	case c.BeliefID != "" && c.ConflictingBeliefID != "":
		return ConflictBeliefBelief
	case c.BeliefID != "" && c.MemoryID != "":
		return ConflictBeliefMemory
	default:
		return ConflictUnknown
	}
}

func (c *BeliefConflict) Clone() *BeliefConflict {
	if c == nil {
		return nil
	}
	out := *c
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}

// UpdateResult is the outcome of analyzing one memory (or a batch): beliefs
// created, reinforced, or weakened, and conflicts recorded along the way.
type UpdateResult struct {
	NewBeliefs        []*Belief         `json:"new_beliefs"`
	ReinforcedBeliefs []*Belief         `json:"reinforced_beliefs"`
	WeakenedBeliefs   []*Belief         `json:"weakened_beliefs"`
	Conflicts         []*BeliefConflict `json:"conflicts"`
}

// Merge appends other's results after r's, preserving per-record order.
func (r *UpdateResult) Merge(other *UpdateResult) {
	if other == nil {
		return
	}
	r.NewBeliefs = append(r.NewBeliefs, other.NewBeliefs...)
	r.ReinforcedBeliefs = append(r.ReinforcedBeliefs, other.ReinforcedBeliefs...)
	r.WeakenedBeliefs = append(r.WeakenedBeliefs, other.WeakenedBeliefs...)
	r.Conflicts = append(r.Conflicts, other.Conflicts...)
}

// BeliefIDs of each result bucket, in emission order.
func (r *UpdateResult) NewBeliefIDs() []string        { return beliefIDs(r.NewBeliefs) }
func (r *UpdateResult) ReinforcedBeliefIDs() []string { return beliefIDs(r.ReinforcedBeliefs) }

func (r *UpdateResult) ConflictIDs() []string {
	ids := make([]string, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		ids = append(ids, c.ID)
	}
	return ids
}

func beliefIDs(bs []*Belief) []string {
	ids := make([]string, 0, len(bs))
	for _, b := range bs {
		ids = append(ids, b.ID)
	}
	return ids
}
