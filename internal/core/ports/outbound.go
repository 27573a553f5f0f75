package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	// GetByID is owner-agnostic and reserved for background processing.
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetForOwner(ctx context.Context, ownerID, id string) (*domain.Document, error)
	// ListByOwner returns every document of the owner with text and entities.
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error)
	ListPage(ctx context.Context, ownerID string, filter domain.DocumentListFilter) ([]domain.Document, int, error)
	ListStale(ctx context.Context, status domain.DocumentStatus, updatedBefore time.Time, limit int) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveProcessingResult(ctx context.Context, id string, result domain.ProcessedResult) error
	// AddTag appends tag unless the document already carries it.
	AddTag(ctx context.Context, id, tag string) error
	Delete(ctx context.Context, ownerID, id string) error
}

// RuleRepository persists workflow rules. Implementations store whole rule
// snapshots so readers never observe a partially updated rule.
type RuleRepository interface {
	Create(ctx context.Context, rule *domain.WorkflowRule) error
	GetByID(ctx context.Context, ownerID, id string) (*domain.WorkflowRule, error)
	List(ctx context.Context, ownerID string, active *bool) ([]domain.WorkflowRule, error)
	// ListActive enumerates active rules by creation time, then id.
	ListActive(ctx context.Context, ownerID string) ([]domain.WorkflowRule, error)
	// Update replaces name, description, conditions and actions. The
	// active flag is written only when active is non-nil. It never touches
	// TriggerCount.
	Update(ctx context.Context, rule *domain.WorkflowRule, active *bool) error
	Toggle(ctx context.Context, ownerID, id string) (*domain.WorkflowRule, error)
	Delete(ctx context.Context, ownerID, id string) error
	IncrementTriggerCount(ctx context.Context, id string) (int64, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes upload events.
type MessageQueue interface {
	PublishDocumentUploaded(ctx context.Context, documentID string) error
	SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor turns raw bytes into text. It never fails: any problem yields
// an empty string.
type TextExtractor interface {
	ExtractText(ctx context.Context, content []byte, mimeType string) string
}

// OCR recognizes text in a single image.
type OCR interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Classifier labels text. It may fail; callers keep a FallbackClassifier.
type Classifier interface {
	Classify(ctx context.Context, text string) (domain.Classification, error)
}

// FallbackClassifier is deterministic and needs no external capability.
type FallbackClassifier interface {
	Classify(text string) domain.Classification
}

// EntityExtractor finds entities in text. Internal errors degrade to an empty
// result.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) []domain.Entity
}

// ActionDispatcher forwards notify, move and approve_request actions to the
// systems that carry them out.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, event domain.ActionEvent) error
}

// PipelineObserver receives processing outcomes for metrics.
type PipelineObserver interface {
	ObservePipeline(status domain.DocumentStatus, degradations []string, duration time.Duration)
}

// RuleObserver receives rule engine outcomes for metrics.
type RuleObserver interface {
	ObserveEvaluation(triggered int, duration time.Duration)
	ObserveAction(action domain.ActionType, status string)
}

// SearchObserver receives query outcomes for metrics.
type SearchObserver interface {
	ObserveSearch(kind string, results int, duration time.Duration)
}
