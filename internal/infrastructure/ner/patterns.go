package ner

import (
	"regexp"
	"unicode/utf8"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type pattern struct {
	entityType domain.EntityType
	re         *regexp.Regexp
	confidence float64
}

var defaultPatterns = []pattern{
	{
		entityType: domain.EntityEmail,
		re:         regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		confidence: 0.95,
	},
	{
		entityType: domain.EntityPhone,
		re:         regexp.MustCompile(`(?:\+?1[-.\s]?)?(?:\([0-9]{3}\)|\b[0-9]{3})[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`),
		confidence: 0.90,
	},
	{
		entityType: domain.EntityReferenceNumber,
		re:         regexp.MustCompile(`(?i)\b(?:INV|REF|PO|ORDER)[#\-]?\s*[A-Z0-9]{4,12}\b`),
		confidence: 0.85,
	},
	{
		entityType: domain.EntityMoney,
		re:         regexp.MustCompile(`[$€£¥]\s?[0-9]{1,3}(?:,[0-9]{3})*(?:\.[0-9]{1,2})?|[$€£¥]\s?[0-9]+(?:\.[0-9]{1,2})?`),
		confidence: 0.80,
	},
	{
		entityType: domain.EntityDate,
		re:         regexp.MustCompile(`\b[0-9]{4}-[0-9]{2}-[0-9]{2}\b`),
		confidence: 0.80,
	},
}

// PatternExtractor finds entities with regular expressions. Offsets are rune
// positions in the input text.
type PatternExtractor struct {
	patterns []pattern
}

func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{patterns: defaultPatterns}
}

func (p *PatternExtractor) Extract(text string) []domain.Entity {
	out := make([]domain.Entity, 0)
	if text == "" {
		return out
	}
	for _, pat := range p.patterns {
		for _, loc := range pat.re.FindAllStringIndex(text, -1) {
			start := utf8.RuneCountInString(text[:loc[0]])
			value := text[loc[0]:loc[1]]
			out = append(out, domain.Entity{
				Type:       pat.entityType,
				Value:      value,
				Start:      start,
				End:        start + utf8.RuneCountInString(value),
				Confidence: pat.confidence,
			})
		}
	}
	return out
}
