package embedding

import (
	"fmt"

	"github.com/doxalabs/doxa/internal/domain"
)

// Provider constants
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// NewClient creates an embedding client based on the provider name.
// Returns an error if the provider is unknown or the API key is empty
// (except for mock).
func NewClient(provider, apiKey, model string, dimension int) (domain.EmbeddingClient, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("EMBEDDING_API_KEY is required for OpenAI embedding provider")
		}
		if model == "" {
			model = "text-embedding-3-small"
		}
		return NewOpenAIClient(apiKey, model, dimension), nil

	case ProviderMock:
		return NewMockClient(dimension), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: openai, mock)", provider)
	}
}
