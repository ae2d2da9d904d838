package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unimem/application/ports"
	"unimem/domain/core/valueobjects"
	pkgerrors "unimem/pkg/errors"
)

func TestHashingEmbedder_Embed(t *testing.T) {
	e := NewHashingEmbedder(256)
	ctx := context.Background()

	t.Run("unit length and deterministic", func(t *testing.T) {
		a, err := e.Embed(ctx, "Go channels and goroutines", ports.IntentPassage)
		require.NoError(t, err)
		b, err := e.Embed(ctx, "Go channels and goroutines", ports.IntentQuery)
		require.NoError(t, err)

		assert.Len(t, a, 256)
		assert.InDelta(t, 1.0, a.Norm(), 1e-5)
		assert.Equal(t, a, b)
	})

	t.Run("shared vocabulary scores higher", func(t *testing.T) {
		query, _ := e.Embed(ctx, "javascript closures", ports.IntentQuery)
		related, _ := e.Embed(ctx, "JavaScript closures capture variables", ports.IntentPassage)
		unrelated, _ := e.Embed(ctx, "sourdough bread baking", ports.IntentPassage)

		simRelated, ok := valueobjects.CosineSimilarity(query, related)
		require.True(t, ok)
		simUnrelated, _ := valueobjects.CosineSimilarity(query, unrelated)

		assert.Greater(t, simRelated, 0.1)
		assert.Greater(t, simRelated, simUnrelated)
	})

	t.Run("cjk characters are tokens", func(t *testing.T) {
		a, _ := e.Embed(ctx, "机器学习", ports.IntentPassage)
		b, _ := e.Embed(ctx, "学习", ports.IntentPassage)

		sim, ok := valueobjects.CosineSimilarity(a, b)
		require.True(t, ok)
		assert.Greater(t, sim, 0.0)
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := e.Embed(ctx, " ... ", ports.IntentPassage)

		assert.True(t, pkgerrors.IsValidation(err))
	})
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "世", "界", "go"}, tokenize("Hello, 世界 GO!"))
	assert.Equal(t, []string{"ab", "中", "cd"}, tokenize("ab中cd"))
}
