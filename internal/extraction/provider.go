package extraction

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/doxalabs/doxa/internal/domain"
)

// Provider constants
const (
	ProviderOpenAI  = "openai"
	ProviderPattern = "pattern"
)

// NewClient creates an extraction client based on the provider name. The
// OpenAI provider is always wrapped in a Failover so the pattern engine
// covers outages; "pattern" runs provider-free.
func NewClient(provider, apiKey, model string, logger *zap.Logger) (domain.ExtractionClient, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("EXTRACTION_API_KEY is required for OpenAI extraction provider")
		}
		if model == "" {
			model = "gpt-4o-mini"
		}
		return NewFailover(NewOpenAIClient(apiKey, model), NewPatternEngine(), logger), nil

	case ProviderPattern:
		return NewPatternEngine(), nil

	default:
		return nil, fmt.Errorf("unknown extraction provider: %s (valid options: openai, pattern)", provider)
	}
}
