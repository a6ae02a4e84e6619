package embed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder is a test double that counts calls.
type mockEmbedder struct {
	embedCalls atomic.Int64
	vector     []float32
}

func newMockEmbedder(dims int) *mockEmbedder {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = float32(i) * 0.001
	}
	return &mockEmbedder{vector: vec}
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	return m.vector, nil
}

func (m *mockEmbedder) Dimensions() int {
	return len(m.vector)
}

func TestCachedEmbedderCachesRepeatedText(t *testing.T) {
	mock := newMockEmbedder(8)
	cached := NewCachedEmbedder(mock, 16)

	v1, err := cached.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	v2, err := cached.Embed(context.Background(), "hello world")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int64(1), mock.embedCalls.Load())
}

func TestCachedEmbedderDistinctTextMisses(t *testing.T) {
	mock := newMockEmbedder(8)
	cached := NewCachedEmbedder(mock, 16)

	_, err := cached.Embed(context.Background(), "alpha")
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), "beta")
	require.NoError(t, err)

	assert.Equal(t, int64(2), mock.embedCalls.Load())
}

func TestCachedEmbedderDimensionsPassthrough(t *testing.T) {
	mock := newMockEmbedder(768)
	cached := NewCachedEmbedder(mock, 16)
	assert.Equal(t, 768, cached.Dimensions())
}

func TestCachedEmbedderEvictsLRU(t *testing.T) {
	mock := newMockEmbedder(4)
	cached := NewCachedEmbedder(mock, 1)

	_, err := cached.Embed(context.Background(), "first")
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), "second") // evicts "first"
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), "first") // miss again
	require.NoError(t, err)

	assert.Equal(t, int64(3), mock.embedCalls.Load())
}
