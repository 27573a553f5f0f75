package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docvault/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload.
type DocumentIngestor interface {
	Upload(ctx context.Context, ownerID, filename, mimeType string, body io.Reader) (*domain.Document, error)
	Reprocess(ctx context.Context, ownerID, documentID string) (*domain.Document, error)
}

// DocumentPipeline turns raw bytes into a processed result. It never fails.
type DocumentPipeline interface {
	ProcessDocument(ctx context.Context, content []byte, mimeType string) domain.ProcessedResult
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentReader is the inbound read model for document state.
type DocumentReader interface {
	GetByID(ctx context.Context, ownerID, id string) (*domain.Document, error)
	List(ctx context.Context, ownerID string, filter domain.DocumentListFilter) ([]domain.Document, int, error)
	Delete(ctx context.Context, ownerID, id string) error
	ClassificationStats(ctx context.Context, ownerID string) ([]domain.ClassificationStat, int, error)
}

// RuleEvaluator runs a document through the owner's active rules.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, doc *domain.Document) ([]domain.WorkflowRule, error)
}

// RuleService manages workflow rules and evaluates documents against them.
type RuleService interface {
	RuleEvaluator

	CreateRule(ctx context.Context, ownerID string, draft domain.RuleDraft) (*domain.WorkflowRule, error)
	UpdateRule(ctx context.Context, ownerID, id string, patch domain.RulePatch) (*domain.WorkflowRule, error)
	DeleteRule(ctx context.Context, ownerID, id string) error
	ToggleRule(ctx context.Context, ownerID, id string) (*domain.WorkflowRule, error)
	GetRule(ctx context.Context, ownerID, id string) (*domain.WorkflowRule, error)
	ListRules(ctx context.Context, ownerID string, active *bool) ([]domain.WorkflowRule, error)
}

// SearchService answers query-facing requests.
type SearchService interface {
	Search(ctx context.Context, ownerID, query string, filter domain.SearchFilter, page, pageSize int) ([]domain.SearchResult, int, error)
	Suggest(ctx context.Context, ownerID, partial string, limit int) ([]string, error)
	FilterOptions(ctx context.Context, ownerID string) (domain.FilterOptions, error)
}
