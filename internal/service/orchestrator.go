package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/doxalabs/doxa/internal/domain"
)

// IngestionService is the single write entrypoint: it validates input,
// categorizes, encodes the memory, and runs belief analysis, assembling one
// result for the caller. Analysis failure never loses the stored memory; the
// caller gets a partial result plus a belief_analysis_incomplete error
// naming the memory id to retry with.
type IngestionService struct {
	categorizer *CategorizationService
	encoder     *EncoderService
	analyzer    *AnalyzerService
	cfg         domain.EngineConfig
	logger      *zap.Logger
}

func NewIngestionService(cat *CategorizationService, enc *EncoderService, an *AnalyzerService, cfg domain.EngineConfig, logger *zap.Logger) *IngestionService {
	return &IngestionService{
		categorizer: cat,
		encoder:     enc,
		analyzer:    an,
		cfg:         cfg,
		logger:      logger,
	}
}

// ValidateInput checks the payload without side effects and returns every
// violation, not just the first.
func (s *IngestionService) ValidateInput(in domain.IngestionInput) []domain.FieldError {
	var errs []domain.FieldError
	if in.AgentID == "" {
		errs = append(errs, domain.FieldError{Field: "agentId", Message: "must not be empty"})
	}
	if in.Content == "" {
		errs = append(errs, domain.FieldError{Field: "content", Message: "must not be empty"})
	} else if len(in.Content) > s.cfg.MaxContentLength {
		errs = append(errs, domain.FieldError{
			Field:   "content",
			Message: fmt.Sprintf("exceeds maximum length of %d", s.cfg.MaxContentLength),
			Value:   fmt.Sprintf("%d chars", len(in.Content)),
		})
	}
	if in.Timestamp != nil && in.Timestamp.After(time.Now().Add(s.cfg.ClockSkew)) {
		errs = append(errs, domain.FieldError{
			Field:   "timestamp",
			Message: "is in the future beyond the tolerated clock skew",
			Value:   in.Timestamp.Format(time.RFC3339),
		})
	}
	return errs
}

// Ingest runs the full pipeline for one observation. A dry run previews the
// categorization and returns a placeholder id without writing anything.
func (s *IngestionService) Ingest(ctx context.Context, in domain.IngestionInput) (*domain.IngestionResult, error) {
	started := time.Now()

	if errs := s.ValidateInput(in); len(errs) > 0 {
		e := domain.NewError(domain.KindInvalidInput, "invalid ingestion input").
			WithDetail("field", errs[0].Field).
			WithDetail("violations", errs)
		return nil, e
	}

	metadata := make(map[string]any, len(in.Metadata)+2)
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	if in.Source != "" {
		metadata["source"] = in.Source
	}
	if in.Timestamp != nil {
		// The caller's observation time rides in metadata; createdAt stays
		// the engine's own clock.
		metadata["observed_at"] = in.Timestamp.UTC().Format(time.RFC3339)
	}

	category := s.categorizer.Categorize(ctx, in.Content, metadata)

	if in.DryRun {
		return &domain.IngestionResult{
			MemoryID:            domain.NewDryRunID(),
			Category:            category,
			NewBeliefIDs:        []string{},
			ReinforcedBeliefIDs: []string{},
			ConflictIDs:         []string{},
			DryRun:              true,
			Encoded:             false,
			BeliefAnalysis:      domain.AnalysisSkipped,
			ProcessingTimeMs:    time.Since(started).Milliseconds(),
		}, nil
	}

	rec, err := s.encoder.EncodeAndStore(ctx, in.Content, category, metadata, in.AgentID)
	if err != nil {
		return nil, err
	}

	result := &domain.IngestionResult{
		MemoryID:            rec.ID,
		Category:            category,
		NewBeliefIDs:        []string{},
		ReinforcedBeliefIDs: []string{},
		ConflictIDs:         []string{},
		Encoded:             true,
		BeliefAnalysis:      domain.AnalysisCompleted,
	}

	analysis, err := s.analyzer.AnalyzeNewMemory(ctx, rec)
	if analysis != nil {
		result.NewBeliefIDs = analysis.NewBeliefIDs()
		result.ReinforcedBeliefIDs = analysis.ReinforcedBeliefIDs()
		result.ConflictIDs = analysis.ConflictIDs()
	}
	result.ProcessingTimeMs = time.Since(started).Milliseconds()

	if err != nil {
		result.BeliefAnalysis = domain.AnalysisFailed
		s.logger.Error("belief analysis failed after memory stored",
			zap.String("memory_id", rec.ID),
			zap.String("agent_id", in.AgentID),
			zap.Error(err))
		return result, domain.NewError(domain.KindBeliefAnalysisIncomplete,
			"memory stored but belief analysis did not complete").
			WithDetail("memoryId", rec.ID).
			WithCause(err)
	}

	s.logger.Info("ingestion complete",
		zap.String("memory_id", rec.ID),
		zap.String("agent_id", in.AgentID),
		zap.String("category", category.Primary),
		zap.Int("new_beliefs", len(result.NewBeliefIDs)),
		zap.Int("reinforced_beliefs", len(result.ReinforcedBeliefIDs)),
		zap.Int("conflicts", len(result.ConflictIDs)),
		zap.Int64("processing_ms", result.ProcessingTimeMs))
	return result, nil
}

// Reanalyze reruns belief analysis for an already-stored memory. This is the
// retry path after a belief_analysis_incomplete result.
func (s *IngestionService) Reanalyze(ctx context.Context, memoryID string) (*domain.IngestionResult, error) {
	started := time.Now()

	rec, err := s.encoder.Get(ctx, memoryID)
	if err != nil {
		return nil, err
	}

	analysis, err := s.analyzer.AnalyzeNewMemory(ctx, rec)
	result := &domain.IngestionResult{
		MemoryID:            rec.ID,
		Category:            rec.Category,
		NewBeliefIDs:        []string{},
		ReinforcedBeliefIDs: []string{},
		ConflictIDs:         []string{},
		Encoded:             true,
		BeliefAnalysis:      domain.AnalysisCompleted,
	}
	if analysis != nil {
		result.NewBeliefIDs = analysis.NewBeliefIDs()
		result.ReinforcedBeliefIDs = analysis.ReinforcedBeliefIDs()
		result.ConflictIDs = analysis.ConflictIDs()
	}
	result.ProcessingTimeMs = time.Since(started).Milliseconds()

	if err != nil {
		result.BeliefAnalysis = domain.AnalysisFailed
		return result, domain.NewError(domain.KindBeliefAnalysisIncomplete,
			"belief analysis did not complete").
			WithDetail("memoryId", rec.ID).
			WithCause(err)
	}
	return result, nil
}
