package parse

import (
	"path/filepath"
	"sync"

	"github.com/knowdisk/knowdisk/pkg/capability"
)

// markdownAndTextExtensions get the whole-file PlainParser.
var markdownAndTextExtensions = map[string]bool{
	".md": true, ".markdown": true, ".txt": true, ".rst": true, ".adoc": true,
}

// Resolver dispatches a file path to a Parser by extension, per the
// design note that parser dispatch must be an explicit extension-indexed
// lookup rather than runtime reflection.
type Resolver struct {
	mu          sync.Mutex
	plain       *PlainParser
	codeParsers map[string]*CodeParser // keyed by language name, lazily built
}

// NewResolver creates a Resolver with a shared PlainParser and lazily
// constructed, cached CodeParsers (tree-sitter parsers are not safe to
// share across goroutines while parsing, so each language gets its own
// instance reused sequentially by the caller).
func NewResolver() *Resolver {
	return &Resolver{
		plain:       NewPlainParser(),
		codeParsers: make(map[string]*CodeParser),
	}
}

// Close releases every CodeParser the resolver has constructed.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.codeParsers {
		p.Close()
	}
}

// Resolve returns the Parser capability for path's extension, or ok=false
// if the extension is unsupported (the UnsupportedFile case from
// spec.md §7 — not an error, the caller completes the job as a no-op).
func (r *Resolver) Resolve(path string) (parser capability.Parser, ok bool) {
	ext := filepath.Ext(path)
	if markdownAndTextExtensions[ext] {
		return r.plain, true
	}

	cfg, found := defaultLanguageRegistry.byExtension(ext)
	if !found {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cp, cached := r.codeParsers[cfg.name]; cached {
		return cp, true
	}
	cp, ok := NewCodeParser(cfg.name)
	if !ok {
		return nil, false
	}
	r.codeParsers[cfg.name] = cp
	return cp, true
}
