package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type textExtractorFake struct {
	text  string
	panic bool
	delay time.Duration
}

func (f *textExtractorFake) ExtractText(context.Context, []byte, string) string {
	if f.panic {
		panic("decoder exploded")
	}
	time.Sleep(f.delay)
	return f.text
}

type classifierFake struct {
	cls   domain.Classification
	err   error
	panic bool
	delay time.Duration
	calls int
	input string
}

func (f *classifierFake) Classify(ctx context.Context, text string) (domain.Classification, error) {
	f.calls++
	f.input = text
	if f.panic {
		panic("model crashed")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.Classification{}, ctx.Err()
		}
	}
	if f.err != nil {
		return domain.Classification{}, f.err
	}
	return f.cls, nil
}

type fallbackFake struct {
	cls   domain.Classification
	calls int
	input string
}

func (f *fallbackFake) Classify(text string) domain.Classification {
	f.calls++
	f.input = text
	return f.cls
}

type entityExtractorFake struct {
	entities []domain.Entity
	panic    bool
	delay    time.Duration
	calls    int
	input    string
}

func (f *entityExtractorFake) ExtractEntities(_ context.Context, text string) []domain.Entity {
	f.calls++
	f.input = text
	if f.panic {
		panic("ner crashed")
	}
	time.Sleep(f.delay)
	return f.entities
}

type pipelineObserverFake struct {
	status       domain.DocumentStatus
	degradations []string
	calls        int
}

func (f *pipelineObserverFake) ObservePipeline(status domain.DocumentStatus, degradations []string, _ time.Duration) {
	f.calls++
	f.status = status
	f.degradations = degradations
}

func TestPipelineProcessDocumentSuccess(t *testing.T) {
	classifier := &classifierFake{cls: domain.Classification{Label: "invoice", Confidence: 0.91, Scores: map[string]float64{"invoice": 0.91}}}
	entities := &entityExtractorFake{entities: []domain.Entity{
		{Type: domain.EntityMoney, Value: "$1,500.00", Start: 10, End: 19, Confidence: 0.85},
		{Type: domain.EntityEmail, Value: "billing@acme.com", Confidence: 0.95},
	}}
	fallback := &fallbackFake{}
	observer := &pipelineObserverFake{}
	p := NewPipeline(&textExtractorFake{text: "Invoice total $1,500.00 billing@acme.com"}, classifier, fallback, entities, PipelineConfig{})
	p.SetObserver(observer)

	result := p.ProcessDocument(context.Background(), []byte("raw"), "text/plain")

	if result.Status != domain.StatusProcessed {
		t.Fatalf("expected processed, got %s", result.Status)
	}
	if result.Classification != "invoice" || result.Confidence != 0.91 {
		t.Fatalf("unexpected classification: %s %.2f", result.Classification, result.Confidence)
	}
	if len(result.Entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(result.Entities))
	}
	if got := result.EntitySummary["MONEY"]; len(got) != 1 || got[0] != "$1,500.00" {
		t.Fatalf("unexpected entity summary: %+v", result.EntitySummary)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback must not run when the classifier succeeds")
	}
	if len(result.Degradations) != 0 {
		t.Fatalf("expected no degradations, got %v", result.Degradations)
	}
	if observer.calls != 1 || observer.status != domain.StatusProcessed {
		t.Fatalf("expected observer call, got %+v", observer)
	}
}

func TestPipelineEmptyTextShortCircuits(t *testing.T) {
	for _, text := range []string{"", "   \n\t  "} {
		classifier := &classifierFake{cls: domain.Classification{Label: "invoice", Confidence: 1}}
		fallback := &fallbackFake{}
		entities := &entityExtractorFake{entities: []domain.Entity{{Type: domain.EntityPerson, Value: "x"}}}
		p := NewPipeline(&textExtractorFake{text: text}, classifier, fallback, entities, PipelineConfig{})

		result := p.ProcessDocument(context.Background(), []byte("raw"), "image/png")

		if result.Status != domain.StatusNoText {
			t.Fatalf("expected no_text for %q, got %s", text, result.Status)
		}
		if result.Classification != domain.LabelOther || result.Confidence != 0 {
			t.Fatalf("unexpected classification for %q: %s %.2f", text, result.Classification, result.Confidence)
		}
		if result.Entities == nil || len(result.Entities) != 0 {
			t.Fatalf("expected empty non-nil entities, got %#v", result.Entities)
		}
		if classifier.calls != 0 || fallback.calls != 0 || entities.calls != 0 {
			t.Fatalf("no capability may run on empty text: %d %d %d", classifier.calls, fallback.calls, entities.calls)
		}
	}
}

func TestPipelineClassifierFailureUsesFallback(t *testing.T) {
	cases := map[string]*classifierFake{
		"error": {err: errors.New("ollama down")},
		"panic": {panic: true},
	}
	for name, classifier := range cases {
		t.Run(name, func(t *testing.T) {
			fallback := &fallbackFake{cls: domain.Classification{Label: "contract", Confidence: 0.6667}}
			p := NewPipeline(&textExtractorFake{text: "This agreement is made whereas the party"}, classifier, fallback, &entityExtractorFake{}, PipelineConfig{})

			result := p.ProcessDocument(context.Background(), []byte("raw"), "text/plain")

			if result.Status != domain.StatusProcessed {
				t.Fatalf("expected processed, got %s", result.Status)
			}
			if result.Classification != "contract" || result.Confidence != 0.6667 {
				t.Fatalf("expected fallback result, got %s %.4f", result.Classification, result.Confidence)
			}
			if fallback.calls != 1 {
				t.Fatalf("expected one fallback call, got %d", fallback.calls)
			}
			if !result.Degraded(domain.DegradedClassifierFallback) {
				t.Fatalf("expected classifier_fallback degradation, got %v", result.Degradations)
			}
		})
	}
}

func TestPipelineClassifierTimeoutUsesFallback(t *testing.T) {
	classifier := &classifierFake{cls: domain.Classification{Label: "invoice", Confidence: 1}, delay: time.Second}
	fallback := &fallbackFake{cls: domain.Classification{Label: "memo", Confidence: 0.3333}}
	p := NewPipeline(&textExtractorFake{text: "memo to: staff"}, classifier, fallback, nil, PipelineConfig{
		ClassifyTimeout: 20 * time.Millisecond,
	})

	result := p.ProcessDocument(context.Background(), []byte("raw"), "text/plain")

	if result.Classification != "memo" {
		t.Fatalf("expected fallback label after timeout, got %s", result.Classification)
	}
	if fallback.calls != 1 {
		t.Fatalf("expected fallback call, got %d", fallback.calls)
	}
}

func TestPipelineNormalizesClassifierOutput(t *testing.T) {
	classifier := &classifierFake{cls: domain.Classification{Label: "spaceship", Confidence: 1.7}}
	p := NewPipeline(&textExtractorFake{text: "hello"}, classifier, &fallbackFake{}, nil, PipelineConfig{})

	result := p.ProcessDocument(context.Background(), []byte("raw"), "text/plain")

	if result.Classification != domain.LabelOther {
		t.Fatalf("expected unknown label to become other, got %s", result.Classification)
	}
	if result.Confidence != 1 {
		t.Fatalf("expected confidence clamped to 1, got %f", result.Confidence)
	}
}

func TestPipelineTruncatesCapabilityInput(t *testing.T) {
	text := strings.Repeat("ж", 3000)
	classifier := &classifierFake{cls: domain.Classification{Label: "report", Confidence: 0.5}}
	entities := &entityExtractorFake{}
	p := NewPipeline(&textExtractorFake{text: text}, classifier, &fallbackFake{}, entities, PipelineConfig{
		ExtractMaxChars: 2000,
	})

	result := p.ProcessDocument(context.Background(), []byte("raw"), "text/plain")

	if got := utf8.RuneCountInString(classifier.input); got != DefaultClassifyMaxChars {
		t.Fatalf("expected classifier input of %d chars, got %d", DefaultClassifyMaxChars, got)
	}
	if got := utf8.RuneCountInString(entities.input); got != 2000 {
		t.Fatalf("expected extractor input of 2000 chars, got %d", got)
	}
	if result.Text != text {
		t.Fatalf("result text must not be truncated")
	}
}

func TestPipelineFallbackSeesFullText(t *testing.T) {
	text := strings.Repeat("a", 2000) + " invoice"
	fallback := &fallbackFake{cls: domain.Classification{Label: "invoice", Confidence: 0.3333}}
	p := NewPipeline(&textExtractorFake{text: text}, &classifierFake{err: errors.New("down")}, fallback, nil, PipelineConfig{})

	p.ProcessDocument(context.Background(), []byte("raw"), "text/plain")

	if fallback.input != text {
		t.Fatalf("expected fallback to receive the full text")
	}
}

func TestPipelineEntityFailureDegradesToEmpty(t *testing.T) {
	cases := map[string]*entityExtractorFake{
		"panic":   {panic: true},
		"timeout": {delay: time.Second, entities: []domain.Entity{{Type: domain.EntityPerson, Value: "late"}}},
	}
	for name, extractor := range cases {
		t.Run(name, func(t *testing.T) {
			p := NewPipeline(
				&textExtractorFake{text: "Dear John"},
				&classifierFake{cls: domain.Classification{Label: "letter", Confidence: 0.9}},
				&fallbackFake{},
				extractor,
				PipelineConfig{ExtractTimeout: 20 * time.Millisecond},
			)

			result := p.ProcessDocument(context.Background(), []byte("raw"), "text/plain")

			if result.Status != domain.StatusProcessed || result.Classification != "letter" {
				t.Fatalf("unexpected result: %+v", result)
			}
			if result.Entities == nil || len(result.Entities) != 0 {
				t.Fatalf("expected empty entities, got %#v", result.Entities)
			}
			if !result.Degraded(domain.DegradedEntitiesUnavailable) {
				t.Fatalf("expected entities_unavailable degradation, got %v", result.Degradations)
			}
		})
	}
}

func TestPipelineDedupesEntities(t *testing.T) {
	entities := &entityExtractorFake{entities: []domain.Entity{
		{Type: domain.EntityOrganization, Value: "Acme Corp"},
		{Type: domain.EntityOrganization, Value: "ACME CORP"},
		{Type: domain.EntityPerson, Value: "Acme Corp"},
	}}
	p := NewPipeline(&textExtractorFake{text: "Acme Corp"}, &classifierFake{cls: domain.Classification{Label: "other"}}, &fallbackFake{}, entities, PipelineConfig{})

	result := p.ProcessDocument(context.Background(), []byte("raw"), "text/plain")

	if len(result.Entities) != 2 {
		t.Fatalf("expected 2 entities after dedupe, got %+v", result.Entities)
	}
	seen := make(map[string]bool)
	for _, e := range result.Entities {
		key := string(e.Type) + "|" + strings.ToLower(e.Value)
		if seen[key] {
			t.Fatalf("duplicate entity %s", key)
		}
		seen[key] = true
	}
}

func TestPipelineTextFailureYieldsNoText(t *testing.T) {
	cases := map[string]struct {
		extractor *textExtractorFake
		kind      string
	}{
		"panic":   {extractor: &textExtractorFake{panic: true}, kind: domain.DegradedTextUnavailable},
		"timeout": {extractor: &textExtractorFake{text: "late", delay: time.Second}, kind: domain.DegradedTextTimeout},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			classifier := &classifierFake{}
			p := NewPipeline(tc.extractor, classifier, &fallbackFake{}, nil, PipelineConfig{TextTimeout: 20 * time.Millisecond})

			result := p.ProcessDocument(context.Background(), []byte("raw"), "image/png")

			if result.Status != domain.StatusNoText {
				t.Fatalf("expected no_text, got %s", result.Status)
			}
			if !result.Degraded(tc.kind) {
				t.Fatalf("expected %s degradation, got %v", tc.kind, result.Degradations)
			}
			if classifier.calls != 0 {
				t.Fatalf("classifier must not run")
			}
		})
	}
}

func TestPipelineNeverFailsWithoutCapabilities(t *testing.T) {
	p := NewPipeline(&textExtractorFake{text: "some text"}, nil, nil, nil, PipelineConfig{})

	result := p.ProcessDocument(context.Background(), []byte("raw"), "text/plain")

	if result.Status != domain.StatusProcessed || result.Classification != domain.LabelOther {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		t.Fatalf("confidence out of range: %f", result.Confidence)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo", 2); got != "hé" {
		t.Fatalf("truncateRunes() = %q", got)
	}
	if got := truncateRunes("abc", 10); got != "abc" {
		t.Fatalf("truncateRunes() = %q", got)
	}
	if got := truncateRunes("abc", 0); got != "abc" {
		t.Fatalf("truncateRunes() with no limit = %q", got)
	}
}
