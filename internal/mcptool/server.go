// Package mcptool binds the Retrieval Pipeline to the Model Context
// Protocol, exposing search_local_knowledge, retrieve_document_by_path,
// and get_source_chunk_info as tools an AI client can call.
package mcptool

import (
	"context"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/knowdisk/knowdisk/internal/knowerr"
	"github.com/knowdisk/knowdisk/internal/processor"
	"github.com/knowdisk/knowdisk/internal/retrieval"
	"github.com/knowdisk/knowdisk/pkg/capability"
	"github.com/knowdisk/knowdisk/pkg/version"
)

// Server is the tool-calling boundary over a Retrieval Pipeline.
type Server struct {
	mcp     *mcp.Server
	engine  *retrieval.Pipeline
	parser  capability.Parser // optional; used to recover full chunk text
	logger  *slog.Logger
	mu      sync.RWMutex
	enabled bool
}

// New creates a Server. The server starts enabled; call SetEnabled(false) to
// gate all tool calls behind knowerr.ErrToolDisabled.
func New(engine *retrieval.Pipeline, parser capability.Parser, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: engine, parser: parser, logger: logger, enabled: true}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: "knowdisk", Version: version.Version},
		nil,
	)
	s.registerTools()
	return s
}

// SetEnabled toggles the MCP_DISABLED feature gate.
func (s *Server) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *Server) isEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// MCPServer returns the underlying SDK server, e.g. to call Run with a
// transport.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_local_knowledge",
		Description: "Hybrid search over the locally indexed knowledge base, combining dense (semantic) and lexical (keyword) matching. Use titleOnly for a fast title-only lookup.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "retrieve_document_by_path",
		Description: "Retrieve every indexed chunk for a given source path, with full text recovered from disk when available.",
	}, s.handleRetrieveBySourcePath)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_source_chunk_info",
		Description: "List chunk metadata (offsets, hash, token count) for a file, without loading chunk text.",
	}, s.handleGetSourceChunkInfo)

	s.logger.Debug("mcptool: registered tools", slog.Int("count", 3))
}

// SearchInput is the input schema for search_local_knowledge.
type SearchInput struct {
	Query     string `json:"query" jsonschema:"the search query"`
	TopK      int    `json:"topK,omitempty" jsonschema:"maximum number of results, default 10"`
	TitleOnly bool   `json:"titleOnly,omitempty" jsonschema:"restrict to a title-only lexical lookup, bypassing embedding and vector search"`
}

// SearchOutput is the output schema for search_local_knowledge.
type SearchOutput struct {
	Results []ResultOutput `json:"results"`
}

// ResultOutput is a single retrieval result exposed over MCP.
type ResultOutput struct {
	ChunkID    string  `json:"chunkId"`
	SourcePath string  `json:"sourcePath"`
	ChunkText  string  `json:"chunkText"`
	Score      float64 `json:"score"`
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if !s.isEnabled() {
		return nil, SearchOutput{}, knowerr.ErrToolDisabled
	}
	if input.Query == "" {
		return nil, SearchOutput{}, knowerr.New(knowerr.KindConfig, "query is required")
	}

	results, err := s.engine.Search(ctx, input.Query, retrieval.Options{TopK: input.TopK, TitleOnly: input.TitleOnly})
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{Results: make([]ResultOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, ResultOutput{
			ChunkID:    r.ChunkID,
			SourcePath: r.SourcePath,
			ChunkText:  r.ChunkText,
			Score:      r.Score,
		})
	}
	return nil, out, nil
}

// RetrieveBySourcePathInput is the input schema for retrieve_document_by_path.
type RetrieveBySourcePathInput struct {
	SourcePath string `json:"sourcePath" jsonschema:"the source path to retrieve"`
}

func (s *Server) handleRetrieveBySourcePath(ctx context.Context, _ *mcp.CallToolRequest, input RetrieveBySourcePathInput) (*mcp.CallToolResult, SearchOutput, error) {
	if !s.isEnabled() {
		return nil, SearchOutput{}, knowerr.ErrToolDisabled
	}
	if input.SourcePath == "" {
		return nil, SearchOutput{}, knowerr.New(knowerr.KindConfig, "sourcePath is required")
	}

	results, err := s.engine.RetrieveBySourcePath(ctx, input.SourcePath, s.parser)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{Results: make([]ResultOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, ResultOutput{
			ChunkID:    r.ChunkID,
			SourcePath: r.SourcePath,
			ChunkText:  r.ChunkText,
		})
	}
	return nil, out, nil
}

// ChunkInfoInput is the input schema for get_source_chunk_info.
type ChunkInfoInput struct {
	SourcePath string `json:"sourcePath" jsonschema:"the source path to list chunk metadata for"`
}

// ChunkInfoOutput is the output schema for get_source_chunk_info.
type ChunkInfoOutput struct {
	Chunks []ChunkInfoEntry `json:"chunks"`
}

// ChunkInfoEntry mirrors retrieval.ChunkInfo over the wire.
type ChunkInfoEntry struct {
	ChunkID     string `json:"chunkId"`
	StartOffset *int   `json:"startOffset,omitempty"`
	EndOffset   *int   `json:"endOffset,omitempty"`
	ChunkHash   string `json:"chunkHash"`
	TokenCount  *int   `json:"tokenCount,omitempty"`
}

func (s *Server) handleGetSourceChunkInfo(ctx context.Context, _ *mcp.CallToolRequest, input ChunkInfoInput) (*mcp.CallToolResult, ChunkInfoOutput, error) {
	if !s.isEnabled() {
		return nil, ChunkInfoOutput{}, knowerr.ErrToolDisabled
	}
	if input.SourcePath == "" {
		return nil, ChunkInfoOutput{}, knowerr.New(knowerr.KindConfig, "sourcePath is required")
	}

	fileID := processor.FileID(input.SourcePath)
	chunks, err := s.engine.GetSourceChunkInfoByPath(fileID)
	if err != nil {
		return nil, ChunkInfoOutput{}, err
	}

	out := ChunkInfoOutput{Chunks: make([]ChunkInfoEntry, 0, len(chunks))}
	for _, c := range chunks {
		out.Chunks = append(out.Chunks, ChunkInfoEntry{
			ChunkID:     c.ChunkID,
			StartOffset: c.StartOffset,
			EndOffset:   c.EndOffset,
			ChunkHash:   c.ChunkHash,
			TokenCount:  c.TokenCount,
		})
	}
	return nil, out, nil
}

// Run starts the server over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}
