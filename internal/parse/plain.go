// Package parse implements the capability.Parser contract: converting a
// byte stream into text spans with stable offsets into the source file.
package parse

import (
	"context"
	"fmt"
	"os"

	"github.com/knowdisk/knowdisk/pkg/capability"
)

// PlainParser treats the whole file as a single span. It is the parser for
// markdown/text files; a path with neither a text extension nor a dedicated
// grammar gets no parser at all (see Resolver.Resolve).
type PlainParser struct{}

// NewPlainParser creates a PlainParser.
func NewPlainParser() *PlainParser {
	return &PlainParser{}
}

// ParseStream returns the entire input as one span starting at offset 0.
func (p *PlainParser) ParseStream(ctx context.Context, data []byte) ([]capability.ParsedSpan, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return []capability.ParsedSpan{{
		Text:          string(data),
		StartOffset:   0,
		EndOffset:     len(data),
		TokenEstimate: len(data) / 4,
	}}, nil
}

// ReadRange returns the text of path between [start, end).
func (p *PlainParser) ReadRange(ctx context.Context, path string, start, end int) (string, error) {
	return readRange(path, start, end)
}

func readRange(path string, start, end int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if start < 0 {
		start = 0
	}
	if end > len(data) {
		end = len(data)
	}
	if start > end {
		return "", fmt.Errorf("read %s: invalid range [%d,%d)", path, start, end)
	}
	return string(data[start:end]), nil
}
