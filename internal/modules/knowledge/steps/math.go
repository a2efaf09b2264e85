package steps

import "math"

// CosineSimilarity returns dot(a,b)/(|a||b|). Empty, mismatched or zero-magnitude
// inputs score 0 so degenerate vectors rank as unrelated.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := 0; i < len(a); i++ {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// rounding can push parallel vectors just past the bounds
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}
