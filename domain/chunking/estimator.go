package chunking

import "strings"

// TokenEstimator approximates how many model tokens a piece of text costs.
type TokenEstimator interface {
	Estimate(text string) int
}

// HeuristicEstimator over-counts on purpose so chunks stay under the embedding model's hard limit.
// CJK ideographs cost 1.2 tokens each and whitespace-separated words cost 1.5.
type HeuristicEstimator struct{}

// Estimate implements TokenEstimator.
func (HeuristicEstimator) Estimate(text string) int {
	cjk := 0
	for _, r := range text {
		if r >= '\u4e00' && r <= '\u9fff' {
			cjk++
		}
	}
	words := len(strings.Fields(text))
	return int(float64(cjk)*1.2 + float64(words)*1.5)
}

// EstimatorFunc adapts a plain function to TokenEstimator.
type EstimatorFunc func(text string) int

// Estimate implements TokenEstimator.
func (f EstimatorFunc) Estimate(text string) int { return f(text) }
