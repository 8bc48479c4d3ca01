// Package similarity provides vector similarity utilities.
package similarity

import (
	"fmt"
	"math"
)

// Cosine returns dot(a,b) / (|a|*|b|) computed in float64.
// Vectors of different length are a caller bug and cause a panic.
// A zero-magnitude vector has similarity 0 with everything.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("similarity: vector length mismatch %d != %d", len(a), len(b)))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
