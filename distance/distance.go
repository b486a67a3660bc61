// Package distance provides vector similarity math for the retrieval engine.
//
// All functions operate on float32 slices. Callers are responsible for
// ensuring both vectors have the same length; the index enforces
// dimensionality before any distance computation happens.
package distance

import "math"

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Magnitude calculates the L2 norm of a vector.
func Magnitude(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// Cosine calculates the cosine similarity between two vectors in [-1, 1].
// A zero vector has no direction; cosine against it is defined as 0.
func Cosine(a, b []float32) float32 {
	magA := Magnitude(a)
	magB := Magnitude(b)
	if magA == 0 || magB == 0 {
		return 0
	}
	return Dot(a, b) / (magA * magB)
}

// SimilarityScore maps cosine similarity into [0, 1]:
//
//	score = (cosine + 1) / 2
//
// Identical direction scores 1.0, orthogonal 0.5, opposite 0.0.
// Floating point drift is clamped so the contract holds exactly.
func SimilarityScore(a, b []float32) float32 {
	score := (Cosine(a, b) + 1) / 2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
