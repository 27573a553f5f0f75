package ner

import (
	"context"
	"log/slog"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/infrastructure/chunking"
)

// Recognizer is a model-backed entity source that may fail.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]domain.Entity, error)
}

// Extractor merges model entities with pattern matches. A failing model
// leaves the pattern matches in place.
type Extractor struct {
	recognizer Recognizer
	patterns   *PatternExtractor
	splitter   *chunking.Splitter
	logger     *slog.Logger
}

type Option func(*Extractor)

// WithWindow bounds how much text the recognizer sees per call. Longer texts
// are fed window by window and spans are shifted back into document offsets.
func WithWindow(size, overlap int) Option {
	return func(e *Extractor) {
		e.splitter = chunking.NewSplitter(size, overlap)
	}
}

func NewExtractor(recognizer Recognizer, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{
		recognizer: recognizer,
		patterns:   NewPatternExtractor(),
		splitter:   chunking.NewSplitter(0, -1),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) ExtractEntities(ctx context.Context, text string) []domain.Entity {
	entities := make([]domain.Entity, 0)
	if e.recognizer != nil {
		entities = append(entities, e.recognize(ctx, text)...)
	}
	entities = append(entities, e.patterns.Extract(text)...)
	entities = domain.DedupeEntities(entities)
	domain.SortEntitiesBySpan(entities)
	return entities
}

// recognize stops at the first failing window and keeps what earlier windows
// found.
func (e *Extractor) recognize(ctx context.Context, text string) []domain.Entity {
	out := make([]domain.Entity, 0)
	for _, window := range e.splitter.Windows(text) {
		found, err := e.recognizer.Recognize(ctx, window.Text)
		if err != nil {
			e.logger.Warn("entity_recognizer_failed", "window_offset", window.Offset, "error", err)
			return out
		}
		for _, entity := range found {
			entity.Start += window.Offset
			entity.End += window.Offset
			out = append(out, entity)
		}
	}
	return out
}
