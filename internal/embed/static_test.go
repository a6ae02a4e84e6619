package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedderDeterministic(t *testing.T) {
	e := NewStaticEmbedder()
	v1, err := e.Embed(context.Background(), "func parseFile(path string) error")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "func parseFile(path string) error")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestStaticEmbedderDimensions(t *testing.T) {
	e := NewStaticEmbedder()
	assert.Equal(t, StaticDimensions, e.Dimensions())

	v, err := e.Embed(context.Background(), "anything")
	require.NoError(t, err)
	assert.Len(t, v, StaticDimensions)
}

func TestStaticEmbedderEmptyTextReturnsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()
	v, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	for _, x := range v {
		assert.Equal(t, float32(0), x)
	}
}

func TestStaticEmbedderIsNormalized(t *testing.T) {
	e := NewStaticEmbedder()
	v, err := e.Embed(context.Background(), "hello world this is a test")
	require.NoError(t, err)

	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 1e-4)
}

func TestStaticEmbedderCamelAndSnakeCaseCollide(t *testing.T) {
	e := NewStaticEmbedder()
	v1, err := e.Embed(context.Background(), "parseFile")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "parse_file")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestStaticEmbedderClosedReturnsError(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())
	_, err := e.Embed(context.Background(), "anything")
	assert.Error(t, err)
}
