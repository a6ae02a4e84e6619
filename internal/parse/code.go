package parse

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/knowdisk/knowdisk/pkg/capability"
)

// CodeParser segments a source file into one span per top-level
// declaration using tree-sitter, giving the Chunker better window
// boundaries than a single whole-file span. The Chunker still performs its
// own overlapping pass inside each returned span — CodeParser only draws
// the segment lines, it never windows text itself.
type CodeParser struct {
	lang   *languageConfig
	parser *sitter.Parser
}

// NewCodeParser creates a CodeParser for the named language ("go",
// "typescript", "tsx", "javascript", "jsx", "python"). Returns false if the
// language has no registered grammar.
func NewCodeParser(language string) (*CodeParser, bool) {
	defaultLanguageRegistry.mu.RLock()
	cfg, ok := defaultLanguageRegistry.byLanguage[language]
	defaultLanguageRegistry.mu.RUnlock()
	if !ok {
		return nil, false
	}
	p := sitter.NewParser()
	p.SetLanguage(cfg.grammar)
	return &CodeParser{lang: cfg, parser: p}, true
}

// Close releases the underlying tree-sitter parser.
func (c *CodeParser) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// ParseStream walks the syntax tree's top-level nodes and emits one span per
// node whose type is a segmentation boundary for this language. Any gaps
// between recognised nodes (package/import preambles, blank lines, nodes of
// an uninteresting type) are folded into the following span so no byte of
// the file is dropped.
func (c *CodeParser) ParseStream(ctx context.Context, data []byte) ([]capability.ParsedSpan, error) {
	if len(data) == 0 {
		return nil, nil
	}

	tree, err := c.parser.ParseCtx(ctx, nil, data)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parse: nil tree")
	}
	root := tree.RootNode()

	var spans []capability.ParsedSpan
	cursor := 0
	n := len(data)

	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		if _, boundary := c.lang.topLevelTypes[child.Type()]; !boundary {
			continue
		}

		end := int(child.EndByte())
		if end <= cursor {
			continue
		}
		spans = append(spans, capability.ParsedSpan{
			Text:          string(data[cursor:end]),
			StartOffset:   cursor,
			EndOffset:     end,
			TokenEstimate: (end - cursor) / 4,
		})
		cursor = end
	}

	if cursor < n {
		spans = append(spans, capability.ParsedSpan{
			Text:          string(data[cursor:n]),
			StartOffset:   cursor,
			EndOffset:     n,
			TokenEstimate: (n - cursor) / 4,
		})
	}

	return spans, nil
}

// ReadRange returns the text of path between [start, end).
func (c *CodeParser) ReadRange(ctx context.Context, path string, start, end int) (string, error) {
	return readRange(path, start, end)
}
