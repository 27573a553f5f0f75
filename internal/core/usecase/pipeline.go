package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

const (
	DefaultClassifyMaxChars = 1024
	DefaultExtractMaxChars  = 100000
)

var (
	errStageTimeout = errors.New("stage timed out")
	errStagePanic   = errors.New("stage panicked")
	errNoClassifier = errors.New("classifier not configured")
)

// PipelineConfig bounds the work done per document. Zero timeouts disable the
// corresponding deadline; non-positive ceilings fall back to the defaults.
type PipelineConfig struct {
	ClassifyMaxChars int
	ExtractMaxChars  int
	TextTimeout      time.Duration
	ClassifyTimeout  time.Duration
	ExtractTimeout   time.Duration
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.ClassifyMaxChars <= 0 {
		c.ClassifyMaxChars = DefaultClassifyMaxChars
	}
	if c.ExtractMaxChars <= 0 {
		c.ExtractMaxChars = DefaultExtractMaxChars
	}
	return c
}

// Pipeline runs text extraction, classification and entity extraction in
// sequence. It always produces a usable result.
type Pipeline struct {
	extractor  ports.TextExtractor
	classifier ports.Classifier
	fallback   ports.FallbackClassifier
	entities   ports.EntityExtractor
	cfg        PipelineConfig
	observer   ports.PipelineObserver
	logger     *slog.Logger
}

func NewPipeline(
	extractor ports.TextExtractor,
	classifier ports.Classifier,
	fallback ports.FallbackClassifier,
	entities ports.EntityExtractor,
	cfg PipelineConfig,
) *Pipeline {
	return &Pipeline{
		extractor:  extractor,
		classifier: classifier,
		fallback:   fallback,
		entities:   entities,
		cfg:        cfg.withDefaults(),
	}
}

func (p *Pipeline) SetObserver(observer ports.PipelineObserver) {
	p.observer = observer
}

func (p *Pipeline) SetLogger(logger *slog.Logger) {
	p.logger = logger
}

func (p *Pipeline) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return slog.Default()
}

func (p *Pipeline) ProcessDocument(ctx context.Context, content []byte, mimeType string) domain.ProcessedResult {
	started := time.Now()
	result := p.process(ctx, content, mimeType)
	if p.observer != nil {
		p.observer.ObservePipeline(result.Status, result.Degradations, time.Since(started))
	}
	return result
}

func (p *Pipeline) process(ctx context.Context, content []byte, mimeType string) domain.ProcessedResult {
	text, err := p.extractText(ctx, content, mimeType)
	if err != nil {
		kind := domain.DegradedTextUnavailable
		if errors.Is(err, errStageTimeout) {
			kind = domain.DegradedTextTimeout
		}
		p.log().Warn("text_extraction_degraded", "mime_type", mimeType, "error", err)
		return noTextResult(kind)
	}
	if strings.TrimSpace(text) == "" {
		return noTextResult()
	}

	degradations := make([]string, 0, 2)

	outcome := p.classify(ctx, text)
	if outcome.fellBack {
		degradations = append(degradations, domain.DegradedClassifierFallback)
		p.log().Warn("classifier_fallback", "label", outcome.cls.Label, "error", outcome.reason)
	}

	entities, err := p.extractEntities(ctx, text)
	if err != nil {
		degradations = append(degradations, domain.DegradedEntitiesUnavailable)
		p.log().Warn("entity_extraction_degraded", "error", err)
	}

	return domain.ProcessedResult{
		Text:           text,
		Classification: outcome.cls.Label,
		Confidence:     outcome.cls.Confidence,
		Scores:         outcome.cls.Scores,
		Entities:       entities,
		EntitySummary:  domain.SummarizeEntities(entities),
		Status:         domain.StatusProcessed,
		Degradations:   degradations,
	}
}

func noTextResult(degradations ...string) domain.ProcessedResult {
	return domain.ProcessedResult{
		Classification: domain.LabelOther,
		Confidence:     0,
		Entities:       []domain.Entity{},
		EntitySummary:  map[string][]string{},
		Status:         domain.StatusNoText,
		Degradations:   degradations,
	}
}

func (p *Pipeline) extractText(ctx context.Context, content []byte, mimeType string) (string, error) {
	if p.extractor == nil || len(content) == 0 {
		return "", nil
	}
	return runStage(ctx, p.cfg.TextTimeout, func(stageCtx context.Context) (string, error) {
		return p.extractor.ExtractText(stageCtx, content, mimeType), nil
	})
}

type classificationOutcome struct {
	cls      domain.Classification
	fellBack bool
	reason   error
}

func (p *Pipeline) classify(ctx context.Context, text string) classificationOutcome {
	reason := errNoClassifier
	if p.classifier != nil {
		input := truncateRunes(text, p.cfg.ClassifyMaxChars)
		cls, err := runStage(ctx, p.cfg.ClassifyTimeout, func(stageCtx context.Context) (domain.Classification, error) {
			return p.classifier.Classify(stageCtx, input)
		})
		if err == nil {
			return classificationOutcome{cls: cls.Normalize()}
		}
		reason = err
	}
	return classificationOutcome{
		cls:      p.fallbackClassify(text),
		fellBack: true,
		reason:   reason,
	}
}

// fallbackClassify sees the whole text, not the classifier prefix.
func (p *Pipeline) fallbackClassify(text string) (cls domain.Classification) {
	defer func() {
		if r := recover(); r != nil {
			p.log().Error("fallback_classifier_panic", "panic", fmt.Sprint(r))
			cls = domain.Classification{Label: domain.LabelOther}
		}
	}()
	if p.fallback == nil {
		return domain.Classification{Label: domain.LabelOther}
	}
	return p.fallback.Classify(text).Normalize()
}

func (p *Pipeline) extractEntities(ctx context.Context, text string) ([]domain.Entity, error) {
	if p.entities == nil {
		return []domain.Entity{}, nil
	}
	input := truncateRunes(text, p.cfg.ExtractMaxChars)
	entities, err := runStage(ctx, p.cfg.ExtractTimeout, func(stageCtx context.Context) ([]domain.Entity, error) {
		return p.entities.ExtractEntities(stageCtx, input), nil
	})
	if err != nil {
		return []domain.Entity{}, err
	}
	return domain.DedupeEntities(entities), nil
}

// runStage executes fn under an optional deadline. A panic inside fn or an
// expired deadline is returned as an error; the caller decides how to degrade.
func runStage[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	stageCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", errStagePanic, r)}
			}
		}()
		value, err := fn(stageCtx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-stageCtx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %w", errStageTimeout, stageCtx.Err())
	}
}

// truncateRunes keeps at most limit characters of s.
func truncateRunes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
