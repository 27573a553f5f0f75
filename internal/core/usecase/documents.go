package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

const unclassifiedBucket = "unclassified"

// DocumentQueryUseCase serves owner-scoped reads and deletion.
type DocumentQueryUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	logger  *slog.Logger
}

func NewDocumentQueryUseCase(repo ports.DocumentRepository, storage ports.ObjectStorage, logger *slog.Logger) *DocumentQueryUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentQueryUseCase{repo: repo, storage: storage, logger: logger}
}

func (uc *DocumentQueryUseCase) GetByID(ctx context.Context, ownerID, id string) (*domain.Document, error) {
	doc, err := uc.repo.GetForOwner(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (uc *DocumentQueryUseCase) List(ctx context.Context, ownerID string, filter domain.DocumentListFilter) ([]domain.Document, int, error) {
	filter.Page, filter.PageSize = normalizePage(filter.Page, filter.PageSize)
	docs, total, err := uc.repo.ListPage(ctx, ownerID, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	return docs, total, nil
}

// Delete removes the record with its entities, then the stored blob. A blob
// that cannot be removed is logged and left behind.
func (uc *DocumentQueryUseCase) Delete(ctx context.Context, ownerID, id string) error {
	doc, err := uc.repo.GetForOwner(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	if err := uc.repo.Delete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if uc.storage != nil && doc.StoragePath != "" {
		if err := uc.storage.Delete(ctx, doc.StoragePath); err != nil {
			uc.logger.Warn("document_blob_delete_failed", "document_id", id, "storage_path", doc.StoragePath, "error", err)
		}
	}
	uc.logger.Info("document_deleted", "document_id", id, "owner_id", ownerID)
	return nil
}

// ClassificationStats counts the owner's documents per classification.
// Documents without a label are reported as "unclassified".
func (uc *DocumentQueryUseCase) ClassificationStats(ctx context.Context, ownerID string) ([]domain.ClassificationStat, int, error) {
	docs, err := uc.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}

	counts := make(map[string]int)
	for _, doc := range docs {
		label := doc.Classification
		if label == "" {
			label = unclassifiedBucket
		}
		counts[label]++
	}

	total := len(docs)
	stats := make([]domain.ClassificationStat, 0, len(counts))
	for label, count := range counts {
		stats = append(stats, domain.ClassificationStat{
			Classification: label,
			Count:          count,
			Percentage:     math.Round(float64(count)/float64(total)*10000) / 100,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Classification < stats[j].Classification
	})
	return stats, total, nil
}

// LoadForEvaluation fetches the owner's documents that can be re-run through
// the rule engine.
func (uc *DocumentQueryUseCase) LoadForEvaluation(ctx context.Context, ownerID string) ([]*domain.Document, error) {
	docs, err := uc.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]*domain.Document, 0, len(docs))
	for i := range docs {
		if docs[i].Status == domain.StatusProcessed || docs[i].Status == domain.StatusNoText {
			out = append(out, &docs[i])
		}
	}
	return out, nil
}
