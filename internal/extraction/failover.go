package extraction

import (
	"context"

	"go.uber.org/zap"

	"github.com/doxalabs/doxa/internal/domain"
)

// Failover routes extraction calls to the primary provider while it reports
// healthy and to the pattern engine otherwise. Primary errors also fall
// through, so callers never see a provider outage as an error.
type Failover struct {
	primary  domain.ExtractionClient
	fallback domain.ExtractionClient
	logger   *zap.Logger
}

func NewFailover(primary domain.ExtractionClient, fallback domain.ExtractionClient, logger *zap.Logger) *Failover {
	if fallback == nil {
		fallback = NewPatternEngine()
	}
	return &Failover{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (f *Failover) usePrimary(ctx context.Context) bool {
	return f.primary != nil && f.primary.IsHealthy(ctx)
}

func (f *Failover) fellBack(op string, err error) {
	f.logger.Warn("extraction provider failed, using pattern fallback",
		zap.String("operation", op),
		zap.Error(err))
}

func (f *Failover) ExtractBeliefs(ctx context.Context, content, agentID, categoryHint string) ([]domain.CandidateBelief, error) {
	if f.usePrimary(ctx) {
		out, err := f.primary.ExtractBeliefs(ctx, content, agentID, categoryHint)
		if err == nil {
			return out, nil
		}
		f.fellBack("extract_beliefs", err)
	}
	return f.fallback.ExtractBeliefs(ctx, content, agentID, categoryHint)
}

func (f *Failover) Similarity(ctx context.Context, s1, s2 string) (float64, error) {
	if f.usePrimary(ctx) {
		score, err := f.primary.Similarity(ctx, s1, s2)
		if err == nil {
			return score, nil
		}
		f.fellBack("similarity", err)
	}
	return f.fallback.Similarity(ctx, s1, s2)
}

func (f *Failover) AreConflicting(ctx context.Context, s1, s2, cat1, cat2 string) (bool, error) {
	if f.usePrimary(ctx) {
		conflicting, err := f.primary.AreConflicting(ctx, s1, s2, cat1, cat2)
		if err == nil {
			return conflicting, nil
		}
		f.fellBack("are_conflicting", err)
	}
	return f.fallback.AreConflicting(ctx, s1, s2, cat1, cat2)
}

func (f *Failover) ExtractCategory(ctx context.Context, statement string) (string, float64, error) {
	if f.usePrimary(ctx) {
		category, confidence, err := f.primary.ExtractCategory(ctx, statement)
		if err == nil {
			return category, confidence, nil
		}
		f.fellBack("extract_category", err)
	}
	return f.fallback.ExtractCategory(ctx, statement)
}

func (f *Failover) CalculateConfidence(ctx context.Context, content, statement, contextNote string) (float64, string, error) {
	if f.usePrimary(ctx) {
		confidence, reasoning, err := f.primary.CalculateConfidence(ctx, content, statement, contextNote)
		if err == nil {
			return confidence, reasoning, nil
		}
		f.fellBack("calculate_confidence", err)
	}
	return f.fallback.CalculateConfidence(ctx, content, statement, contextNote)
}

// IsHealthy reports whether the failover can serve calls at all, which it
// always can: the pattern engine has no failure mode.
func (f *Failover) IsHealthy(ctx context.Context) bool {
	return f.fallback.IsHealthy(ctx)
}
