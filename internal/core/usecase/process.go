package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

type ProcessDocumentUseCase struct {
	repo     ports.DocumentRepository
	storage  ports.ObjectStorage
	pipeline ports.DocumentPipeline
	rules    ports.RuleEvaluator
	logger   *slog.Logger
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	pipeline ports.DocumentPipeline,
	rules ports.RuleEvaluator,
	logger *slog.Logger,
) *ProcessDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessDocumentUseCase{
		repo:     repo,
		storage:  storage,
		pipeline: pipeline,
		rules:    rules,
		logger:   logger,
	}
}

// ProcessByID extracts, classifies and tags one stored document. Capability
// failures are absorbed by the pipeline; only storage and repository errors
// mark the document failed.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	doc, content, err := uc.load(ctx, documentID)
	if err != nil {
		return uc.fail(ctx, documentID, err)
	}

	result := uc.pipeline.ProcessDocument(ctx, content, doc.MimeType)

	if err := uc.persistResult(ctx, doc.ID, result); err != nil {
		return uc.fail(ctx, documentID, err)
	}
	applyResult(doc, result)

	uc.logger.Info("document_processed",
		"document_id", doc.ID,
		"status", string(result.Status),
		"classification", result.Classification,
		"confidence", result.Confidence,
		"entities", len(result.Entities),
		"degradations", result.Degradations,
	)

	uc.evaluateRules(ctx, doc)
	return nil
}

func (uc *ProcessDocumentUseCase) load(ctx context.Context, documentID string) (*domain.Document, []byte, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch document by id: %w", err)
	}
	rc, err := uc.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open source document: %w", err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, fmt.Errorf("read source document: %w", err)
	}
	return doc, content, nil
}

func (uc *ProcessDocumentUseCase) persistResult(ctx context.Context, documentID string, result domain.ProcessedResult) error {
	if err := uc.repo.SaveProcessingResult(ctx, documentID, result); err != nil {
		return fmt.Errorf("save processing result: %w", err)
	}
	return nil
}

// evaluateRules never fails processing: the document is already stored.
func (uc *ProcessDocumentUseCase) evaluateRules(ctx context.Context, doc *domain.Document) {
	if uc.rules == nil {
		return
	}
	triggered, err := uc.rules.Evaluate(ctx, doc)
	if err != nil {
		uc.logger.Warn("rule_evaluation_skipped", "document_id", doc.ID, "error", err)
		return
	}
	if len(triggered) > 0 {
		ids := make([]string, 0, len(triggered))
		for _, rule := range triggered {
			ids = append(ids, rule.ID)
		}
		uc.logger.Info("rules_triggered", "document_id", doc.ID, "rule_ids", ids)
	}
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) fail(ctx context.Context, documentID string, processErr error) error {
	if failErr := uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error()); failErr != nil {
		return fmt.Errorf("%w; mark failed status: %v", processErr, failErr)
	}
	return processErr
}

func applyResult(doc *domain.Document, result domain.ProcessedResult) {
	doc.Text = result.Text
	doc.Classification = result.Classification
	doc.Confidence = result.Confidence
	doc.ClassificationScores = result.Scores
	doc.Entities = result.Entities
	doc.Status = result.Status
	doc.Error = ""
}
