package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

const defaultSweepBatch = 100

// StaleUploadSweeper re-publishes documents whose upload event was lost or
// never consumed.
type StaleUploadSweeper struct {
	repo       ports.DocumentRepository
	queue      ports.MessageQueue
	staleAfter time.Duration
	batch      int
	logger     *slog.Logger
	now        func() time.Time
}

func NewStaleUploadSweeper(
	repo ports.DocumentRepository,
	queue ports.MessageQueue,
	staleAfter time.Duration,
	logger *slog.Logger,
) *StaleUploadSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &StaleUploadSweeper{
		repo:       repo,
		queue:      queue,
		staleAfter: staleAfter,
		batch:      defaultSweepBatch,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Sweep returns how many documents were re-queued.
func (s *StaleUploadSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.staleAfter)
	docs, err := s.repo.ListStale(ctx, domain.StatusUploaded, cutoff, s.batch)
	if err != nil {
		return 0, fmt.Errorf("list stale documents: %w", err)
	}

	requeued := 0
	for _, doc := range docs {
		if err := s.queue.PublishDocumentUploaded(ctx, doc.ID); err != nil {
			s.logger.Warn("stale_document_requeue_failed", "document_id", doc.ID, "error", err)
			continue
		}
		requeued++
	}
	if requeued > 0 {
		s.logger.Info("stale_documents_requeued", "count", requeued, "cutoff", cutoff)
	}
	return requeued, nil
}
