package valueobjects

import (
	"fmt"
	"math"
)

// Vector is an embedding produced by the embedding provider.
type Vector []float32

// Norm returns the Euclidean length of v.
func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// CheckDimension returns an error when v does not have exactly dim components.
func (v Vector) CheckDimension(dim int) error {
	if len(v) != dim {
		return fmt.Errorf("vector has dimension %d, expected %d", len(v), dim)
	}
	return nil
}

// Clone returns a copy that does not share the backing array.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// CosineSimilarity returns dot(a, b) / (|a| |b|) clamped to [-1, 1].
// ok is false when either vector has zero norm or the lengths differ; the similarity is then 0.
func CosineSimilarity(a, b Vector) (sim float64, ok bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	sim = dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) {
		return 0, false
	}
	return math.Max(-1, math.Min(1, sim)), true
}
