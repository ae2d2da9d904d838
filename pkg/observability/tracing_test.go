package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracer_DisabledPassesThrough(t *testing.T) {
	tracer := NewTracer("unimem", false)
	called := false

	err := tracer.TraceFunction(context.Background(), "embed", func(ctx context.Context) error {
		called = true
		return errors.New("boom")
	})

	assert.True(t, called)
	assert.EqualError(t, err, "boom")

	ctx, seg := tracer.StartSegment(context.Background(), "request")
	assert.Nil(t, seg)
	assert.NotNil(t, ctx)
}

func TestTracer_NoSegmentInContext(t *testing.T) {
	tracer := NewTracer("unimem", true)

	err := tracer.TraceFunction(context.Background(), "embed", func(ctx context.Context) error { return nil })

	assert.NoError(t, err)
	assert.NotPanics(t, func() { tracer.AddAnnotation(context.Background(), "owner", "u1") })
}
