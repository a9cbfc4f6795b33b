package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// MockClient is a deterministic offline embedder: each word token hashes to
// a handful of dimensions, so texts sharing words produce vectors with high
// cosine similarity. Vectors are unit-normalized.
type MockClient struct {
	dimension int

	// Err, when set, makes Embed fail; Unhealthy flips IsHealthy. Both are
	// for exercising the degraded paths in tests.
	Err       error
	Unhealthy bool
}

func NewMockClient(dimension int) *MockClient {
	return &MockClient{dimension: dimension}
}

func (c *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.Err != nil {
		return nil, c.Err
	}

	vec := make([]float32, c.dimension)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum32()
		// Spread each token over three dimensions so overlap survives
		// single collisions.
		for i := 0; i < 3; i++ {
			idx := int((sum + uint32(i)*2654435761) % uint32(c.dimension))
			vec[idx] += 1.0
		}
	}
	return normalize(vec), nil
}

func (c *MockClient) Dimension() int { return c.dimension }

func (c *MockClient) IsHealthy(ctx context.Context) bool { return !c.Unhealthy }

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}
