package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
)

// DocumentRepository keeps documents in process memory. Reads return deep
// copies so callers never share state with the store.
type DocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]domain.Document
	now  func() time.Time
}

func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{
		docs: make(map[string]domain.Document),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *DocumentRepository) Create(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.docs[doc.ID]; exists {
		return domain.WrapError(domain.ErrConflict, "insert document", fmt.Errorf("duplicate id %s", doc.ID))
	}
	stored := doc.Clone()
	stored.Entities = domain.DedupeEntities(stored.Entities)
	if stored.Tags == nil {
		stored.Tags = []string{}
	}
	r.docs[doc.ID] = stored
	return nil
}

func (r *DocumentRepository) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, notFound("get document", id)
	}
	out := doc.Clone()
	return &out, nil
}

func (r *DocumentRepository) GetForOwner(ctx context.Context, ownerID, id string) (*domain.Document, error) {
	doc, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, notFound("get document", id)
	}
	return doc, nil
}

func (r *DocumentRepository) ListByOwner(_ context.Context, ownerID string) ([]domain.Document, error) {
	out := r.snapshot(func(d *domain.Document) bool { return d.OwnerID == ownerID })
	sortByCreated(out)
	return out, nil
}

func (r *DocumentRepository) ListPage(_ context.Context, ownerID string, filter domain.DocumentListFilter) ([]domain.Document, int, error) {
	out := r.snapshot(func(d *domain.Document) bool {
		if d.OwnerID != ownerID {
			return false
		}
		if filter.Classification != "" && d.Classification != filter.Classification {
			return false
		}
		return filter.Status == "" || d.Status == filter.Status
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	total := len(out)
	offset := (filter.Page - 1) * filter.PageSize
	if offset < 0 || offset >= total {
		return []domain.Document{}, total, nil
	}
	end := min(offset+filter.PageSize, total)
	page := out[offset:end]
	for i := range page {
		page[i].Entities = []domain.Entity{}
	}
	return page, total, nil
}

func (r *DocumentRepository) ListStale(_ context.Context, status domain.DocumentStatus, updatedBefore time.Time, limit int) ([]domain.Document, error) {
	out := r.snapshot(func(d *domain.Document) bool {
		return d.Status == status && d.UpdatedAt.Before(updatedBefore)
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *DocumentRepository) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	return r.mutate("update document status", id, func(d *domain.Document) {
		d.Status = status
		d.Error = errMessage
	})
}

func (r *DocumentRepository) SaveProcessingResult(_ context.Context, id string, result domain.ProcessedResult) error {
	return r.mutate("save processing result", id, func(d *domain.Document) {
		d.Text = result.Text
		d.Classification = result.Classification
		d.Confidence = result.Confidence
		d.ClassificationScores = nil
		if len(result.Scores) > 0 {
			d.ClassificationScores = make(map[string]float64, len(result.Scores))
			for k, v := range result.Scores {
				d.ClassificationScores[k] = v
			}
		}
		d.Entities = domain.DedupeEntities(result.Entities)
		d.Status = result.Status
		d.Error = ""
	})
}

func (r *DocumentRepository) AddTag(_ context.Context, id, tag string) error {
	return r.mutate("add document tag", id, func(d *domain.Document) {
		d.AddTag(tag)
	})
}

func (r *DocumentRepository) Delete(_ context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok || doc.OwnerID != ownerID {
		return notFound("delete document", id)
	}
	delete(r.docs, id)
	return nil
}

func (r *DocumentRepository) mutate(operation, id string, apply func(*domain.Document)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return notFound(operation, id)
	}
	updated := doc.Clone()
	apply(&updated)
	updated.UpdatedAt = r.now()
	r.docs[id] = updated
	return nil
}

func (r *DocumentRepository) snapshot(keep func(*domain.Document) bool) []domain.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Document, 0)
	for _, doc := range r.docs {
		if keep(&doc) {
			out = append(out, doc.Clone())
		}
	}
	return out
}

func sortByCreated(docs []domain.Document) {
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}

func notFound(operation, id string) error {
	return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
}
