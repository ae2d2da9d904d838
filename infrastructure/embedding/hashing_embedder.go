package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"unimem/application/ports"
	"unimem/domain/core/valueobjects"
	pkgerrors "unimem/pkg/errors"
)

// HashingEmbedder is an offline embedder for local runs and tests. Each lowercased word
// and each CJK character is hashed into one signed bucket, so texts sharing vocabulary
// score a positive cosine similarity.
type HashingEmbedder struct {
	dimension int
}

var _ ports.EmbeddingProvider = (*HashingEmbedder)(nil)

// NewHashingEmbedder creates a hashing embedder of the given dimension
func NewHashingEmbedder(dimension int) *HashingEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashingEmbedder{dimension: dimension}
}

func (h *HashingEmbedder) Embed(ctx context.Context, text string, _ ports.EmbeddingIntent) (valueobjects.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.NewUpstreamError("embedding", err)
	}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, pkgerrors.NewValidationError("cannot embed empty text")
	}

	vec := make(valueobjects.Vector, h.dimension)
	for _, tok := range tokens {
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(tok))
		sum := hasher.Sum64()

		bucket := int(sum % uint64(h.dimension))
		if sum>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	return normalize(vec), nil
}

func (h *HashingEmbedder) EmbedMany(ctx context.Context, texts []string, intent ports.EmbeddingIntent) ([]valueobjects.Vector, error) {
	out := make([]valueobjects.Vector, 0, len(texts))
	for _, text := range texts {
		v, err := h.Embed(ctx, text, intent)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (h *HashingEmbedder) Dimension() int                  { return h.dimension }
func (h *HashingEmbedder) Model() string                   { return "hashing" }
func (h *HashingEmbedder) HealthCheck(context.Context) error { return nil }

func tokenize(text string) []string {
	var tokens []string
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		var word strings.Builder
		for _, r := range field {
			if unicode.Is(unicode.Han, r) {
				if word.Len() > 0 {
					tokens = append(tokens, word.String())
					word.Reset()
				}
				tokens = append(tokens, string(r))
				continue
			}
			word.WriteRune(r)
		}
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
		}
	}
	return tokens
}

// normalize scales vec to unit length in place.
func normalize(vec valueobjects.Vector) valueobjects.Vector {
	norm := vec.Norm()
	if norm == 0 {
		return vec
	}
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}
