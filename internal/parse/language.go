package parse

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// languageConfig names the grammar and the node types the CodeParser treats
// as top-level segmentation boundaries for a language.
type languageConfig struct {
	name          string
	extensions    []string
	topLevelTypes map[string]struct{}
	grammar       *sitter.Language
}

// languageRegistry maps file extensions to tree-sitter grammars.
type languageRegistry struct {
	mu         sync.RWMutex
	byLanguage map[string]*languageConfig
	byExt      map[string]*languageConfig
}

func newLanguageRegistry() *languageRegistry {
	r := &languageRegistry{
		byLanguage: make(map[string]*languageConfig),
		byExt:      make(map[string]*languageConfig),
	}
	r.register("go", []string{".go"}, golang.GetLanguage(),
		"function_declaration", "method_declaration", "type_declaration",
		"const_declaration", "var_declaration")
	r.register("typescript", []string{".ts"}, typescript.GetLanguage(),
		"function_declaration", "class_declaration", "interface_declaration",
		"type_alias_declaration", "lexical_declaration", "variable_declaration")
	r.register("tsx", []string{".tsx"}, tsx.GetLanguage(),
		"function_declaration", "class_declaration", "interface_declaration",
		"type_alias_declaration", "lexical_declaration", "variable_declaration")
	r.register("javascript", []string{".js", ".mjs"}, javascript.GetLanguage(),
		"function_declaration", "function", "class_declaration",
		"lexical_declaration", "variable_declaration")
	r.register("jsx", []string{".jsx"}, javascript.GetLanguage(),
		"function_declaration", "function", "class_declaration",
		"lexical_declaration", "variable_declaration")
	r.register("python", []string{".py"}, python.GetLanguage(),
		"function_definition", "class_definition", "assignment")
	return r
}

func (r *languageRegistry) register(name string, exts []string, grammar *sitter.Language, topLevel ...string) {
	set := make(map[string]struct{}, len(topLevel))
	for _, t := range topLevel {
		set[t] = struct{}{}
	}
	cfg := &languageConfig{name: name, extensions: exts, topLevelTypes: set, grammar: grammar}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLanguage[name] = cfg
	for _, ext := range exts {
		r.byExt[ext] = cfg
	}
}

// byExtension returns the language config for a file extension, or false if
// the extension has no registered grammar.
func (r *languageRegistry) byExtension(ext string) (*languageConfig, bool) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.byExt[ext]
	return cfg, ok
}

var defaultLanguageRegistry = newLanguageRegistry()
