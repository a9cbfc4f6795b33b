// Package similarity provides the vector and text scoring functions the
// engine ranks with. The vector metric is fixed per deployment; text overlap
// is the last-resort scorer when neither vectors nor a provider are
// available.
package similarity

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/doxalabs/doxa/internal/domain"
)

// Func scores two vectors; higher means more similar.
type Func func(a, b []float32) float64

// ForMetric resolves the deployment's configured metric.
func ForMetric(m domain.SimilarityMetric) (Func, error) {
	switch m {
	case domain.MetricCosine:
		return Cosine, nil
	case domain.MetricDot:
		return Dot, nil
	case domain.MetricEuclidean:
		return Euclidean, nil
	default:
		return nil, fmt.Errorf("similarity: unknown metric %q", m)
	}
}

// Cosine returns the cosine of the angle between a and b, in [-1,1].
// Mismatched or zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0.0 || normB == 0.0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Dot returns the raw inner product.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var result float64
	for i := 0; i < len(a); i++ {
		result += float64(a[i]) * float64(b[i])
	}
	return result
}

// Euclidean maps L2 distance to a score in (0,1] via 1/(1+d), so a floor in
// [0,1] applies uniformly across metrics. Identical vectors score 1.
func Euclidean(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var sum float64
	for i := 0; i < len(a); i++ {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return 1.0 / (1.0 + math.Sqrt(sum))
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// TokenOverlap is Jaccard similarity over lowercased word tokens, in [0,1].
func TokenOverlap(a, b string) float64 {
	ta := Tokens(a)
	tb := Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range ta {
		if tb[w] {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// TokenList splits s into lowercased alphanumeric words, kept in text order
// with duplicates.
func TokenList(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Tokens is the set form of TokenList.
func Tokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range TokenList(s) {
		out[w] = true
	}
	return out
}
