package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/doxalabs/doxa/internal/domain"
)

// generalBeliefPrefix marks the fallback belief synthesized when extraction
// yields no candidates for a memory.
const generalBeliefPrefix = "General memory: "

// mediumConfidenceBucket is the lower bound of the "medium" confidence
// bucket in distribution reports.
const mediumConfidenceBucket = 0.5

// AnalyzerService decides, for each candidate belief extracted from a
// memory, whether it is new, reinforces an existing belief, or conflicts
// with one, and applies the configured resolution strategy to conflicts.
//
// Concurrency discipline: a per-agent mutex is held around the belief-write
// phase of AnalyzeNewMemory, so updates to one agent's belief set never
// interleave at finer granularity than one analysis. Extraction runs under
// singleflight keyed by memory id, so one memory is never extracted twice.
type AnalyzerService struct {
	beliefs   domain.BeliefStore
	conflicts domain.ConflictStore
	extractor domain.ExtractionClient
	cfg       domain.EngineConfig
	counters  *Counters
	logger    *zap.Logger

	strategyMu sync.RWMutex
	strategies map[string]domain.ResolutionStrategy

	agentMu    sync.Mutex
	agentLocks map[string]*sync.Mutex

	extractGroup singleflight.Group
}

func NewAnalyzerService(bs domain.BeliefStore, cs domain.ConflictStore, xc domain.ExtractionClient, cfg domain.EngineConfig, counters *Counters, logger *zap.Logger) *AnalyzerService {
	strategies := make(map[string]domain.ResolutionStrategy, len(cfg.ResolutionStrategies))
	for k, v := range cfg.ResolutionStrategies {
		strategies[k] = v
	}
	return &AnalyzerService{
		beliefs:    bs,
		conflicts:  cs,
		extractor:  xc,
		cfg:        cfg,
		counters:   counters,
		logger:     logger,
		strategies: strategies,
		agentLocks: make(map[string]*sync.Mutex),
	}
}

// AnalyzeNewMemory runs the per-memory pipeline: extract candidates, look up
// similar beliefs, then create, reinforce, or record a conflict per
// candidate. Belief writes for one call happen under the agent's lock and
// are observed in program order.
func (s *AnalyzerService) AnalyzeNewMemory(ctx context.Context, m *domain.MemoryRecord) (*domain.UpdateResult, error) {
	if m == nil || m.ID == "" {
		return nil, domain.InvalidField("memory", "must be a stored record", nil)
	}
	s.counters.analyses.Add(1)

	candidates := s.extract(ctx, m)
	if len(candidates) == 0 {
		candidates = []domain.CandidateBelief{{
			Statement:  generalBeliefPrefix + m.Content,
			Category:   m.Category.Primary,
			Confidence: 0.5,
			Positive:   true,
		}}
	}

	lock := s.lockAgent(m.AgentID)
	defer lock.Unlock()

	result := &domain.UpdateResult{
		NewBeliefs:        []*domain.Belief{},
		ReinforcedBeliefs: []*domain.Belief{},
		WeakenedBeliefs:   []*domain.Belief{},
		Conflicts:         []*domain.BeliefConflict{},
	}
	scorer := s.scorer()

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return result, domain.NewError(domain.KindBeliefAnalysisIncomplete, "analysis cancelled").
				WithDetail("memoryId", m.ID).
				WithCause(err)
		}

		neighbors, err := s.beliefs.FindSimilar(ctx, c.Statement, m.AgentID,
			s.cfg.NeighborSimilarityFloor, s.cfg.NeighborLookupK, scorer)
		if err != nil {
			return result, domain.StorageError("belief.find_similar", err)
		}

		switch {
		case c.Positive && len(neighbors) == 0:
			b, err := s.createBelief(ctx, c, m)
			if err != nil {
				return result, err
			}
			result.NewBeliefs = append(result.NewBeliefs, b)

		case c.Positive:
			for _, n := range neighbors {
				b, err := s.reinforce(ctx, n.Belief, m.ID)
				if err != nil {
					return result, err
				}
				result.ReinforcedBeliefs = append(result.ReinforcedBeliefs, b)
			}

		case len(neighbors) > 0:
			for _, n := range neighbors {
				conflict, err := s.recordConflict(ctx, n.Belief, m)
				if err != nil {
					return result, err
				}
				result.Conflicts = append(result.Conflicts, conflict)
			}

			// A negative statement with nothing to contradict is
			// informational only.
		}
	}

	return result, nil
}

// AnalyzeBatch analyzes records in order and merges their results, so the
// ids in the merged result appear in input order.
func (s *AnalyzerService) AnalyzeBatch(ctx context.Context, records []*domain.MemoryRecord) (*domain.UpdateResult, error) {
	s.counters.batchAnalyses.Add(1)

	merged := &domain.UpdateResult{
		NewBeliefs:        []*domain.Belief{},
		ReinforcedBeliefs: []*domain.Belief{},
		WeakenedBeliefs:   []*domain.Belief{},
		Conflicts:         []*domain.BeliefConflict{},
	}
	for _, m := range records {
		res, err := s.AnalyzeNewMemory(ctx, m)
		if err != nil {
			return merged, err
		}
		merged.Merge(res)
	}
	return merged, nil
}

// ReviewBeliefsForAgent scans every unordered pair of the agent's active
// beliefs for conflicts the per-memory path could not see, such as drift
// from concurrent ingestions.
func (s *AnalyzerService) ReviewBeliefsForAgent(ctx context.Context, agentID string) ([]*domain.BeliefConflict, error) {
	if agentID == "" {
		return nil, domain.InvalidField("agentId", "must not be empty", agentID)
	}

	active, err := s.beliefs.ListByAgent(ctx, agentID, false)
	if err != nil {
		return nil, domain.StorageError("belief.list", err)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	var found []*domain.BeliefConflict
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			b1, b2 := active[i], active[j]
			conflicting, err := s.extractor.AreConflicting(ctx, b1.Statement, b2.Statement, b1.Category, b2.Category)
			if err != nil {
				s.logger.Warn("conflict check failed, skipping pair",
					zap.String("belief_id", b1.ID),
					zap.String("conflicting_belief_id", b2.ID),
					zap.Error(err))
				continue
			}
			if !conflicting {
				continue
			}

			conflict := &domain.BeliefConflict{
				ID:                  domain.NewConflictID(),
				AgentID:             agentID,
				BeliefID:            b1.ID,
				ConflictingBeliefID: b2.ID,
				DetectedAt:          time.Now(),
				Severity:            (b1.Confidence + b2.Confidence) / 2,
			}
			if err := s.conflicts.Put(ctx, conflict); err != nil {
				return found, domain.StorageError("conflict.put", err)
			}
			s.counters.conflictsDetected.Add(1)
			found = append(found, conflict)
		}
	}
	return found, nil
}

// ResolveConflict applies the configured strategy for the conflict's type.
// Resolving an already-resolved conflict returns it unchanged; a conflict
// referencing a missing belief is also returned unchanged. Resolved
// conflicts are removed from the store, unresolved ones persisted.
func (s *AnalyzerService) ResolveConflict(ctx context.Context, conflict *domain.BeliefConflict) (*domain.BeliefConflict, error) {
	if conflict == nil {
		return nil, domain.InvalidField("conflict", "must not be nil", nil)
	}
	if conflict.Resolved {
		return conflict.Clone(), nil
	}

	strategy := s.strategyFor(conflict.Type())

	switch strategy {
	case domain.StrategyNewerWins, domain.StrategyHigherConfidence:
		if conflict.Type() != domain.ConflictBeliefBelief {
			// Both strategies compare two beliefs; anything else goes to
			// manual review.
			return s.flagForReview(ctx, conflict)
		}
		return s.resolveBeliefPair(ctx, conflict, strategy)

	case domain.StrategyMerge:
		s.logger.Warn("merge resolution not implemented, flagging for review",
			zap.String("conflict_id", conflict.ID))
		return s.flagForReview(ctx, conflict)

	default:
		return s.flagForReview(ctx, conflict)
	}
}

// UpdateBeliefConfidence sets a belief's confidence, clamped to [0,1].
func (s *AnalyzerService) UpdateBeliefConfidence(ctx context.Context, id string, newConfidence float64, reason string) (*domain.Belief, error) {
	if newConfidence < 0 || newConfidence > 1 {
		return nil, domain.InvalidField("confidence", "must be in [0,1]", newConfidence)
	}

	b, err := s.getBelief(ctx, id)
	if err != nil {
		return nil, err
	}

	b.Confidence = domain.Clamp01(newConfidence)
	b.LastUpdated = time.Now()
	if err := s.beliefs.Put(ctx, b); err != nil {
		return nil, domain.StorageError("belief.put", err)
	}

	s.logger.Info("belief confidence updated",
		zap.String("belief_id", id),
		zap.Float64("confidence", b.Confidence),
		zap.String("reason", reason))
	return b, nil
}

// DeactivateBelief retires a belief. Idempotent: deactivating an inactive
// belief returns it unchanged.
func (s *AnalyzerService) DeactivateBelief(ctx context.Context, id, reason string) (*domain.Belief, error) {
	b, err := s.getBelief(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.Active {
		return b, nil
	}

	b.Active = false
	b.LastUpdated = time.Now()
	if err := s.beliefs.Put(ctx, b); err != nil {
		return nil, domain.StorageError("belief.put", err)
	}

	s.logger.Info("belief deactivated",
		zap.String("belief_id", id),
		zap.String("reason", reason))
	return b, nil
}

// FindRelatedBeliefs ranks the agent's active beliefs against a query.
func (s *AnalyzerService) FindRelatedBeliefs(ctx context.Context, query, agentID string, limit int) ([]domain.ScoredBelief, error) {
	if query == "" {
		return nil, domain.InvalidField("query", "must not be empty", query)
	}
	if limit <= 0 {
		limit = s.cfg.NeighborLookupK
	}
	out, err := s.beliefs.FindSimilar(ctx, query, agentID, 0, limit, s.scorer())
	if err != nil {
		return nil, domain.StorageError("belief.find_similar", err)
	}
	return out, nil
}

// LowConfidenceBeliefs lists active beliefs under threshold. A threshold of
// zero means the configured low-confidence threshold.
func (s *AnalyzerService) LowConfidenceBeliefs(ctx context.Context, threshold float64, agentID string) ([]*domain.Belief, error) {
	if threshold <= 0 {
		threshold = s.cfg.LowConfidenceThreshold
	}
	all, err := s.beliefs.ListByAgent(ctx, agentID, false)
	if err != nil {
		return nil, domain.StorageError("belief.list", err)
	}
	out := make([]*domain.Belief, 0)
	for _, b := range all {
		if b.Confidence < threshold {
			out = append(out, b)
		}
	}
	return out, nil
}

// ConfigureResolutionStrategies replaces the strategy table. Unknown
// strategies are rejected; the default key must survive.
func (s *AnalyzerService) ConfigureResolutionStrategies(strategies map[string]domain.ResolutionStrategy) error {
	for key, strat := range strategies {
		if !domain.ValidResolutionStrategy(string(strat)) {
			return domain.InvalidField("resolutionStrategies", fmt.Sprintf("unknown strategy for %q", key), string(strat))
		}
	}

	s.strategyMu.Lock()
	defer s.strategyMu.Unlock()
	for key, strat := range strategies {
		s.strategies[key] = strat
	}
	return nil
}

// ResolutionStrategies returns a copy of the active strategy table.
func (s *AnalyzerService) ResolutionStrategies() map[string]domain.ResolutionStrategy {
	s.strategyMu.RLock()
	defer s.strategyMu.RUnlock()
	out := make(map[string]domain.ResolutionStrategy, len(s.strategies))
	for k, v := range s.strategies {
		out[k] = v
	}
	return out
}

// ListConflicts returns the agent's recorded conflicts, open ones unless
// includeResolved is set.
func (s *AnalyzerService) ListConflicts(ctx context.Context, agentID string, includeResolved bool) ([]*domain.BeliefConflict, error) {
	out, err := s.conflicts.ListByAgent(ctx, agentID, includeResolved)
	if err != nil {
		return nil, domain.StorageError("conflict.list", err)
	}
	return out, nil
}

func (s *AnalyzerService) GetConflict(ctx context.Context, id string) (*domain.BeliefConflict, error) {
	c, err := s.conflicts.Get(ctx, id)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil, domain.NewError(domain.KindNotFound, "conflict not found").
				WithDetail("conflictId", id)
		}
		return nil, domain.StorageError("conflict.get", err)
	}
	return c, nil
}

// BeliefsForAgent lists the agent's beliefs, active only by default.
func (s *AnalyzerService) BeliefsForAgent(ctx context.Context, agentID string, includeInactive bool) ([]*domain.Belief, error) {
	out, err := s.beliefs.ListByAgent(ctx, agentID, includeInactive)
	if err != nil {
		return nil, domain.StorageError("belief.list", err)
	}
	return out, nil
}

func (s *AnalyzerService) BeliefsInCategory(ctx context.Context, category, agentID string) ([]*domain.Belief, error) {
	out, err := s.beliefs.ListByCategory(ctx, category, agentID)
	if err != nil {
		return nil, domain.StorageError("belief.list", err)
	}
	return out, nil
}

func (s *AnalyzerService) GetBelief(ctx context.Context, id string) (*domain.Belief, error) {
	return s.getBelief(ctx, id)
}

// CategoryDistribution counts the agent's active beliefs per category.
func (s *AnalyzerService) CategoryDistribution(ctx context.Context, agentID string) (map[string]int, error) {
	out, err := s.beliefs.CategoryDistribution(ctx, agentID)
	if err != nil {
		return nil, domain.StorageError("belief.distribution", err)
	}
	return out, nil
}

// ConfidenceDistribution buckets the agent's active beliefs into
// high / medium / low.
func (s *AnalyzerService) ConfidenceDistribution(ctx context.Context, agentID string) (map[string]int, error) {
	out, err := s.beliefs.ConfidenceDistribution(ctx, agentID, s.cfg.HighConfidenceThreshold, mediumConfidenceBucket)
	if err != nil {
		return nil, domain.StorageError("belief.distribution", err)
	}
	return out, nil
}

// Stats reports the process counters plus current store-level counts.
func (s *AnalyzerService) Stats(ctx context.Context) (map[string]any, error) {
	beliefCount, err := s.beliefs.Count(ctx)
	if err != nil {
		return nil, domain.StorageError("belief.count", err)
	}
	conflictCount, err := s.conflicts.Count(ctx)
	if err != nil {
		return nil, domain.StorageError("conflict.count", err)
	}
	return map[string]any{
		"counters":       s.counters.Snapshot(),
		"belief_count":   beliefCount,
		"conflict_count": conflictCount,
	}, nil
}

// extract fetches candidates through singleflight so concurrent analyses of
// the same memory share one provider call. Extraction errors are absorbed;
// the caller synthesizes a general candidate from an empty result.
func (s *AnalyzerService) extract(ctx context.Context, m *domain.MemoryRecord) []domain.CandidateBelief {
	v, err, _ := s.extractGroup.Do(m.ID, func() (any, error) {
		return s.extractor.ExtractBeliefs(ctx, m.Content, m.AgentID, m.Category.Primary)
	})
	if err != nil {
		s.logger.Warn("belief extraction failed, synthesizing general candidate",
			zap.String("memory_id", m.ID),
			zap.Error(err))
		return nil
	}
	candidates, _ := v.([]domain.CandidateBelief)
	return candidates
}

func (s *AnalyzerService) createBelief(ctx context.Context, c domain.CandidateBelief, m *domain.MemoryRecord) (*domain.Belief, error) {
	now := time.Now()
	category := c.Category
	if category == "" {
		category = m.Category.Primary
	}
	b := &domain.Belief{
		ID:                domain.NewBeliefID(),
		AgentID:           m.AgentID,
		Statement:         c.Statement,
		Confidence:        domain.Clamp01(c.Confidence),
		Category:          category,
		EvidenceMemoryIDs: []string{m.ID},
		Tags:              c.Tags,
		CreatedAt:         now,
		LastUpdated:       now,
		Active:            true,
	}
	if err := s.beliefs.Put(ctx, b); err != nil {
		return nil, domain.StorageError("belief.put", err)
	}
	s.counters.beliefsCreated.Add(1)
	return b, nil
}

func (s *AnalyzerService) reinforce(ctx context.Context, b *domain.Belief, memoryID string) (*domain.Belief, error) {
	b = b.Clone()
	b.Confidence = domain.Clamp01(b.Confidence + s.cfg.ReinforcementIncrement)
	b.ReinforcementCount++
	if !b.HasEvidence(memoryID) {
		b.EvidenceMemoryIDs = append(b.EvidenceMemoryIDs, memoryID)
	}
	b.LastUpdated = time.Now()

	if err := s.beliefs.Put(ctx, b); err != nil {
		return nil, domain.StorageError("belief.put", err)
	}
	s.counters.beliefsReinforced.Add(1)
	return b, nil
}

func (s *AnalyzerService) recordConflict(ctx context.Context, b *domain.Belief, m *domain.MemoryRecord) (*domain.BeliefConflict, error) {
	conflict := &domain.BeliefConflict{
		ID:         domain.NewConflictID(),
		AgentID:    m.AgentID,
		BeliefID:   b.ID,
		MemoryID:   m.ID,
		DetectedAt: time.Now(),
		Severity:   b.Confidence,
	}
	if err := s.conflicts.Put(ctx, conflict); err != nil {
		return nil, domain.StorageError("conflict.put", err)
	}
	s.counters.conflictsDetected.Add(1)
	return conflict, nil
}

// resolveBeliefPair settles a belief-belief conflict by deactivating the
// loser. newer_wins archives the older belief; higher_confidence archives
// the less confident one. The resolved conflict is removed from the store.
func (s *AnalyzerService) resolveBeliefPair(ctx context.Context, conflict *domain.BeliefConflict, strategy domain.ResolutionStrategy) (*domain.BeliefConflict, error) {
	pair, err := s.beliefs.GetMany(ctx, []string{conflict.BeliefID, conflict.ConflictingBeliefID})
	if err != nil {
		return nil, domain.StorageError("belief.get_many", err)
	}
	b1, b2 := pair[conflict.BeliefID], pair[conflict.ConflictingBeliefID]
	if b1 == nil || b2 == nil {
		// A referenced belief vanished; nothing to settle.
		return conflict.Clone(), nil
	}

	var keep, archive *domain.Belief
	var resolution domain.ConflictResolution
	switch strategy {
	case domain.StrategyNewerWins:
		keep, archive = b2, b1
		if b1.CreatedAt.After(b2.CreatedAt) {
			keep, archive = b1, b2
		}
		resolution = domain.ResolutionArchiveOld
	case domain.StrategyHigherConfidence:
		keep, archive = b1, b2
		if b2.Confidence > b1.Confidence {
			keep, archive = b2, b1
		}
		resolution = domain.ResolutionKeepOld
	}

	if _, err := s.DeactivateBelief(ctx, archive.ID, fmt.Sprintf("conflict %s resolved by %s", conflict.ID, strategy)); err != nil {
		return nil, err
	}

	resolved := conflict.Clone()
	now := time.Now()
	resolved.Resolved = true
	resolved.ResolvedAt = &now
	resolved.Resolution = resolution
	resolved.ResolutionDetails = fmt.Sprintf("kept %s, archived %s (%s)", keep.ID, archive.ID, strategy)

	if err := s.conflicts.Remove(ctx, conflict.ID); err != nil && !domain.IsKind(err, domain.KindNotFound) {
		return nil, domain.StorageError("conflict.remove", err)
	}
	s.counters.conflictsResolved.Add(1)
	return resolved, nil
}

func (s *AnalyzerService) flagForReview(ctx context.Context, conflict *domain.BeliefConflict) (*domain.BeliefConflict, error) {
	flagged := conflict.Clone()
	flagged.Resolution = domain.ResolutionRequireManualReview
	flagged.Resolved = false

	if err := s.conflicts.Put(ctx, flagged); err != nil {
		return nil, domain.StorageError("conflict.put", err)
	}
	return flagged, nil
}

func (s *AnalyzerService) getBelief(ctx context.Context, id string) (*domain.Belief, error) {
	b, err := s.beliefs.Get(ctx, id)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil, domain.NewError(domain.KindNotFound, "belief not found").
				WithDetail("beliefId", id)
		}
		return nil, domain.StorageError("belief.get", err)
	}
	return b, nil
}

func (s *AnalyzerService) strategyFor(t domain.ConflictType) domain.ResolutionStrategy {
	s.strategyMu.RLock()
	defer s.strategyMu.RUnlock()
	if strat, ok := s.strategies[string(t)]; ok {
		return strat
	}
	if strat, ok := s.strategies[domain.StrategyDefaultKey]; ok {
		return strat
	}
	return domain.StrategyFlagForReview
}

// scorer is the statement-similarity function for neighbor lookups:
// provider-backed when the extraction provider is healthy, token overlap
// otherwise.
func (s *AnalyzerService) scorer() domain.StatementScorer {
	return providerScorer(s.extractor, s.logger)
}

// lockAgent acquires the agent's belief-write lock, creating it on first
// use. Locks are never removed; the per-agent footprint is one mutex.
func (s *AnalyzerService) lockAgent(agentID string) *sync.Mutex {
	s.agentMu.Lock()
	lock, ok := s.agentLocks[agentID]
	if !ok {
		lock = &sync.Mutex{}
		s.agentLocks[agentID] = lock
	}
	s.agentMu.Unlock()

	lock.Lock()
	return lock
}
