// Package vecmath holds the small numeric routines shared by the pipeline
// and retrieval engine for embedding vectors: L2 normalization and cosine
// similarity.
package vecmath

import "math"

// NormTolerance is the tolerance allowed when asserting a stored vector has
// unit L2 norm.
const NormTolerance = 1e-3

// Normalize divides v by its L2 norm, returning nil if the norm is zero so
// zero-norm vectors end up stored as null.
func Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return nil
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// L2Norm returns the Euclidean norm of v.
func L2Norm(v []float32) float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	return math.Sqrt(sumSq)
}

// IsUnitNorm reports whether v's L2 norm is within NormTolerance of 1.
func IsUnitNorm(v []float32) bool {
	return math.Abs(L2Norm(v)-1) < NormTolerance
}

// Average computes the element-wise mean of a non-empty slice of equal
// length vectors.
func Average(vs [][]float32) []float32 {
	if len(vs) == 0 {
		return nil
	}
	out := make([]float32, len(vs[0]))
	for _, v := range vs {
		for i, x := range v {
			out[i] += x
		}
	}
	n := float32(len(vs))
	for i := range out {
		out[i] /= n
	}
	return out
}

// CosineSimilarity returns 1 - cosine distance between two equal-length unit
// vectors. Callers normalize first; this assumes unit vectors and simply
// computes the dot product.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
