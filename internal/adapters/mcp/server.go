// Package mcpadapter exposes search and rule evaluation as Model Context
// Protocol tools, so an assistant can query one owner's vault.
package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
	"github.com/kirillkom/docvault/internal/core/usecase"
)

const (
	serverName    = "docvault"
	serverVersion = "1.0.0"
)

type Dependencies struct {
	Documents ports.DocumentReader
	Rules     ports.RuleService
	Search    ports.SearchService
	Logger    *slog.Logger
}

// Server serves every tool call on behalf of a single owner. The owner is
// fixed at start-up because stdio transports carry no caller identity.
type Server struct {
	owner string
	deps  Dependencies
	srv   *server.MCPServer
}

func NewServer(ownerID string, deps Dependencies) (*Server, error) {
	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "new mcp server", errors.New("owner id is required"))
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{owner: owner, deps: deps}
	s.srv = server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying protocol server for a transport to serve.
func (s *Server) MCPServer() *server.MCPServer {
	return s.srv
}

func (s *Server) registerTools() {
	s.srv.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Full-text search over processed documents, ranked by relevance."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Words to look for.")),
		mcp.WithString("classification", mcp.Description("Only documents with this classification.")),
		mcp.WithString("entity_type", mcp.Description("Entity type filter, for example MONEY or ORG.")),
		mcp.WithString("entity_value", mcp.Description("Entity value filter, matched case-insensitively.")),
		mcp.WithString("date_from", mcp.Description("Earliest creation date, YYYY-MM-DD.")),
		mcp.WithString("date_to", mcp.Description("Latest creation date, YYYY-MM-DD.")),
		mcp.WithNumber("page", mcp.Description("Page number starting at 1.")),
		mcp.WithNumber("page_size", mcp.Description("Results per page.")),
	), s.searchDocuments)

	s.srv.AddTool(mcp.NewTool("suggest",
		mcp.WithDescription("Filenames and entity values containing the given text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Partial text.")),
		mcp.WithNumber("limit", mcp.Description("Maximum suggestions.")),
	), s.suggest)

	s.srv.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("A stored document with its classification, entities and tags."),
		mcp.WithString("document_id", mcp.Required()),
	), s.getDocument)

	s.srv.AddTool(mcp.NewTool("list_rules",
		mcp.WithDescription("Workflow rules in evaluation order."),
		mcp.WithBoolean("active", mcp.Description("Only active or only inactive rules.")),
	), s.listRules)

	s.srv.AddTool(mcp.NewTool("evaluate_document",
		mcp.WithDescription("Run a document through the active rules and apply their actions."),
		mcp.WithString("document_id", mcp.Required()),
	), s.evaluateDocument)
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filter := domain.SearchFilter{
		Classification: strings.TrimSpace(req.GetString("classification", "")),
		EntityType:     strings.ToUpper(strings.TrimSpace(req.GetString("entity_type", ""))),
		EntityValue:    strings.TrimSpace(req.GetString("entity_value", "")),
		DateFrom:       strings.TrimSpace(req.GetString("date_from", "")),
		DateTo:         strings.TrimSpace(req.GetString("date_to", "")),
	}
	page := req.GetInt("page", 1)
	pageSize := req.GetInt("page_size", 0)

	results, total, err := s.deps.Search.Search(ctx, s.owner, query, filter, page, pageSize)
	if err != nil {
		return s.failure("search_documents", err), nil
	}
	return jsonResult(map[string]any{"items": results, "total": total})
}

func (s *Server) suggest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", usecase.DefaultSuggestLimit)
	if limit < 1 {
		limit = usecase.DefaultSuggestLimit
	}
	suggestions, err := s.deps.Search.Suggest(ctx, s.owner, query, limit)
	if err != nil {
		return s.failure("suggest", err), nil
	}
	return jsonResult(map[string]any{"suggestions": suggestions})
}

func (s *Server) getDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.deps.Documents.GetByID(ctx, s.owner, id)
	if err != nil {
		return s.failure("get_document", err), nil
	}
	return jsonResult(doc)
}

func (s *Server) listRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var active *bool
	if _, ok := req.GetArguments()["active"]; ok {
		v := req.GetBool("active", false)
		active = &v
	}
	rules, err := s.deps.Rules.ListRules(ctx, s.owner, active)
	if err != nil {
		return s.failure("list_rules", err), nil
	}
	return jsonResult(map[string]any{"items": rules, "total": len(rules)})
}

func (s *Server) evaluateDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.deps.Documents.GetByID(ctx, s.owner, id)
	if err != nil {
		return s.failure("evaluate_document", err), nil
	}
	triggered, err := s.deps.Rules.Evaluate(ctx, doc)
	if err != nil {
		return s.failure("evaluate_document", err), nil
	}
	return jsonResult(domain.RuleEvaluation{DocumentID: doc.ID, Triggered: triggered})
}

// failure turns a use case error into a tool error. Unclassified errors are
// logged and reported without detail, like 500s on the HTTP surface.
func (s *Server) failure(tool string, err error) *mcp.CallToolResult {
	if domain.KindOf(err) == nil {
		s.deps.Logger.Error("mcp_tool_failed", "tool", tool, "error", err)
		return mcp.NewToolResultError("internal error")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
