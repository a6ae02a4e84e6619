package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkDeterministic(t *testing.T) {
	cfg := Config{SizeChars: 10, OverlapChars: 3, CharsPerToken: 4}
	spans := []Span{{Text: "the quick brown fox jumps over the lazy dog", BaseOffset: 0}}

	c := New(cfg)
	first := c.Chunk(spans)
	second := c.Chunk(spans)

	require.Equal(t, first, second)
	for i := range first {
		assert.NotEmpty(t, first[i].ChunkHash)
	}
}

func TestChunkWindowSizes(t *testing.T) {
	cfg := Config{SizeChars: 5, OverlapChars: 2, CharsPerToken: 4}
	c := New(cfg)
	spans := []Span{{Text: "abcdefghijklmno", BaseOffset: 100}}

	chunks := c.Chunk(spans)
	require.NotEmpty(t, chunks)

	for i, ch := range chunks {
		length := ch.EndOffset - ch.StartOffset
		if i < len(chunks)-1 {
			assert.Equal(t, cfg.SizeChars, length)
		} else {
			assert.LessOrEqual(t, length, cfg.SizeChars)
		}
	}

	for i := 1; i < len(chunks); i++ {
		overlap := chunks[i-1].EndOffset - chunks[i].StartOffset
		if chunks[i].EndOffset < 100+len("abcdefghijklmno") {
			assert.Equal(t, cfg.OverlapChars, overlap)
		}
	}
}

func TestChunkSkipsBlankWindows(t *testing.T) {
	cfg := Config{SizeChars: 4, OverlapChars: 0, CharsPerToken: 4}
	c := New(cfg)
	spans := []Span{{Text: "ab  \n\t  cd", BaseOffset: 0}}

	chunks := c.Chunk(spans)
	for _, ch := range chunks {
		assert.NotEmpty(t, ch.Text)
	}
}

func TestChunkStableHashForIdenticalText(t *testing.T) {
	cfg := DefaultConfig()
	c := New(cfg)
	spans := []Span{{Text: "identical content repeated", BaseOffset: 0}}

	a := c.Chunk(spans)
	b := c.Chunk(spans)
	require.Len(t, a, len(b))
	for i := range a {
		assert.Equal(t, a[i].ChunkHash, b[i].ChunkHash)
	}
}

func TestNewPanicsOnInvalidOverlap(t *testing.T) {
	assert.Panics(t, func() {
		New(Config{SizeChars: 10, OverlapChars: 10, CharsPerToken: 4})
	})
}
