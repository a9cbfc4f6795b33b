package similarity

import (
	"math"
	"testing"

	"github.com/doxalabs/doxa/internal/domain"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
		{"dimension mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDot(t *testing.T) {
	if got := Dot([]float32{1, 2, 3}, []float32{4, 5, 6}); got != 32 {
		t.Errorf("Dot() = %v, want 32", got)
	}
	if got := Dot([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("Dot() on mismatched dims = %v, want 0", got)
	}
}

func TestEuclidean(t *testing.T) {
	if got := Euclidean([]float32{1, 2}, []float32{1, 2}); got != 1.0 {
		t.Errorf("Euclidean() identical = %v, want 1", got)
	}
	// Distance 1 maps to 0.5.
	if got := Euclidean([]float32{0, 0}, []float32{1, 0}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Euclidean() unit distance = %v, want 0.5", got)
	}
	if got := Euclidean([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("Euclidean() on mismatched dims = %v, want 0", got)
	}
}

func TestForMetric(t *testing.T) {
	for _, m := range []domain.SimilarityMetric{domain.MetricCosine, domain.MetricDot, domain.MetricEuclidean} {
		if _, err := ForMetric(m); err != nil {
			t.Errorf("ForMetric(%q) returned error: %v", m, err)
		}
	}
	if _, err := ForMetric(domain.SimilarityMetric("manhattan")); err == nil {
		t.Error("ForMetric() accepted unknown metric")
	}
}

func TestNorm(t *testing.T) {
	if got := Norm([]float32{3, 4}); math.Abs(got-5) > 1e-9 {
		t.Errorf("Norm() = %v, want 5", got)
	}
}

func TestTokenOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "user likes pizza", "user likes pizza", 1.0},
		{"disjoint", "alpha beta", "gamma delta", 0.0},
		{"case and punctuation ignored", "User likes pizza!", "user LIKES pizza", 1.0},
		{"empty", "", "anything", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TokenOverlap(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("TokenOverlap(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}

	// Partial overlap: {user, likes, pizza} vs {user, loves, pizza} = 2/4.
	if got := TokenOverlap("user likes pizza", "user loves pizza"); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("TokenOverlap() partial = %v, want 0.5", got)
	}
}
