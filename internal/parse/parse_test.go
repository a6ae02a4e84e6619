package parse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverUnsupportedExtension(t *testing.T) {
	r := NewResolver()
	defer r.Close()

	_, ok := r.Resolve("binary.exe")
	assert.False(t, ok)
}

func TestResolverPlainForMarkdown(t *testing.T) {
	r := NewResolver()
	defer r.Close()

	p, ok := r.Resolve("README.md")
	require.True(t, ok)

	spans, err := p.ParseStream(context.Background(), []byte("hello world"))
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, 0, spans[0].StartOffset)
	assert.Equal(t, 11, spans[0].EndOffset)
}

func TestResolverCodeParserForGo(t *testing.T) {
	r := NewResolver()
	defer r.Close()

	p, ok := r.Resolve("main.go")
	require.True(t, ok)

	src := "package main\n\nfunc A() {}\n\nfunc B() {}\n"
	spans, err := p.ParseStream(context.Background(), []byte(src))
	require.NoError(t, err)
	require.NotEmpty(t, spans)

	// Spans must tile the whole file with no gaps or overlaps.
	assert.Equal(t, 0, spans[0].StartOffset)
	for i := 1; i < len(spans); i++ {
		assert.Equal(t, spans[i-1].EndOffset, spans[i].StartOffset)
	}
	assert.Equal(t, len(src), spans[len(spans)-1].EndOffset)
}

func TestResolverCachesCodeParser(t *testing.T) {
	r := NewResolver()
	defer r.Close()

	p1, _ := r.Resolve("a.go")
	p2, _ := r.Resolve("b.go")
	assert.Same(t, p1, p2)
}
