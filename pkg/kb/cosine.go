package kb

import (
	"fmt"
	"math"
)

// Cosine returns the cosine similarity dot(a,b)/(‖a‖·‖b‖) of two vectors.
//
// Vectors of different lengths cannot come from the same embedding model;
// that is a programming error, so Cosine panics rather than returning a
// garbage score. A zero-magnitude input yields 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("kb: cosine similarity of mismatched dimensions %d and %d", len(a), len(b)))
	}

	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
