package domain

import "time"

// IngestionInput is the orchestrator's single entrypoint payload.
type IngestionInput struct {
	AgentID   string         `json:"agent_id"`
	Content   string         `json:"content"`
	Source    string         `json:"source,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	DryRun    bool           `json:"dry_run,omitempty"`
}

// BeliefAnalysisStatus reports how far the analysis phase got for one
// ingestion.
type BeliefAnalysisStatus string

const (
	AnalysisCompleted BeliefAnalysisStatus = "completed"
	AnalysisFailed    BeliefAnalysisStatus = "failed"
	AnalysisSkipped   BeliefAnalysisStatus = "skipped"
)

// IngestionResult summarizes one ingestion: the stored memory id (or a
// dry-run placeholder), the category applied, and the ids of beliefs and
// conflicts the analysis produced.
type IngestionResult struct {
	MemoryID            string               `json:"memory_id"`
	Category            CategoryLabel        `json:"category"`
	NewBeliefIDs        []string             `json:"new_belief_ids"`
	ReinforcedBeliefIDs []string             `json:"reinforced_belief_ids"`
	ConflictIDs         []string             `json:"conflict_ids"`
	DryRun              bool                 `json:"dry_run"`
	Encoded             bool                 `json:"encoded"`
	BeliefAnalysis      BeliefAnalysisStatus `json:"belief_analysis"`
	ProcessingTimeMs    int64                `json:"processing_time_ms"`
}
