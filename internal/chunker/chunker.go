// Package chunker splits parsed text spans into overlapping, stably
// identified character ranges suitable for embedding.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
)

// Config controls the overlapping character-window algorithm.
type Config struct {
	// SizeChars is the window size in characters.
	SizeChars int
	// OverlapChars is the overlap between consecutive windows. Must satisfy
	// 0 <= OverlapChars < SizeChars.
	OverlapChars int
	// CharsPerToken estimates characters per token for TokenCount.
	CharsPerToken int
}

// DefaultConfig mirrors widely-used RAG defaults: ~2000 chars per chunk
// (roughly 512 tokens at 4 chars/token), 12.5% overlap.
func DefaultConfig() Config {
	return Config{
		SizeChars:     2000,
		OverlapChars:  250,
		CharsPerToken: 4,
	}
}

// Span is one segment of parsed text, anchored at baseOffset in the file.
type Span struct {
	Text       string
	BaseOffset int
}

// ChunkSpan is a single emitted overlapping window.
type ChunkSpan struct {
	Text        string
	StartOffset int
	EndOffset   int
	TokenCount  int
	ChunkHash   string
}

// Chunker splits spans into overlapping chunk windows.
type Chunker struct {
	cfg Config
}

// New creates a Chunker. Panics if cfg is invalid, since an invalid config
// is a programming error, not a runtime condition.
func New(cfg Config) *Chunker {
	if cfg.SizeChars <= 0 {
		panic("chunker: SizeChars must be positive")
	}
	if cfg.OverlapChars < 0 || cfg.OverlapChars >= cfg.SizeChars {
		panic("chunker: OverlapChars must satisfy 0 <= overlap < size")
	}
	if cfg.CharsPerToken <= 0 {
		cfg.CharsPerToken = 4
	}
	return &Chunker{cfg: cfg}
}

// Chunk walks each span with a cursor stepping by (SizeChars - OverlapChars),
// emitting byte-identical, stably-hashed windows in order. Blank windows
// (empty after trimming) are skipped but the cursor still advances, so
// output is deterministic for a given (spans, config) pair.
func (c *Chunker) Chunk(spans []Span) []ChunkSpan {
	var out []ChunkSpan
	step := c.cfg.SizeChars - c.cfg.OverlapChars

	for _, span := range spans {
		text := span.Text
		n := len(text)
		if n == 0 {
			continue
		}

		for cursor := 0; cursor < n; cursor += step {
			end := cursor + c.cfg.SizeChars
			if end > n {
				end = n
			}

			slice := text[cursor:end]
			if strings.TrimSpace(slice) == "" {
				if end >= n {
					break
				}
				continue
			}

			out = append(out, ChunkSpan{
				Text:        slice,
				StartOffset: span.BaseOffset + cursor,
				EndOffset:   span.BaseOffset + end,
				TokenCount:  tokenCount(len(slice), c.cfg.CharsPerToken),
				ChunkHash:   hashText(slice),
			})

			if end >= n {
				break
			}
		}
	}

	return out
}

func tokenCount(chars, charsPerToken int) int {
	return int(math.Max(1, math.Ceil(float64(chars)/float64(charsPerToken))))
}

func hashText(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
