package keyword

import (
	"math"
	"strings"

	"github.com/kirillkom/docvault/internal/core/domain"
)

const (
	saturationHits      = 3.0
	noMatchConfidence   = 0.5
	confidencePrecision = 10000
)

var defaultKeywords = map[string][]string{
	domain.LabelInvoice:  {"invoice", "bill", "payment due", "amount due", "total due", "subtotal"},
	domain.LabelContract: {"agreement", "contract", "terms and conditions", "hereby agree", "party", "whereas"},
	domain.LabelReport:   {"report", "summary", "findings", "analysis", "conclusion", "executive summary"},
	domain.LabelLetter:   {"dear", "sincerely", "regards", "to whom it may concern"},
	domain.LabelForm:     {"form", "please fill", "application", "checkbox", "signature required"},
	domain.LabelReceipt:  {"receipt", "transaction", "paid", "thank you for your purchase"},
	domain.LabelMemo:     {"memo", "memorandum", "to:", "from:", "subject:", "re:"},
}

// Classifier scores text by counting category keywords. It is deterministic
// and never fails.
type Classifier struct {
	keywords map[string][]string
}

func New() *Classifier {
	return &Classifier{keywords: defaultKeywords}
}

func (c *Classifier) Classify(text string) domain.Classification {
	lower := strings.ToLower(text)
	scores := make(map[string]float64, len(domain.Categories))

	best := ""
	bestHits := 0
	for _, label := range domain.Categories {
		hits := 0
		for _, kw := range c.keywords[label] {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		scores[label] = float64(hits)
		if hits > bestHits {
			best = label
			bestHits = hits
		}
	}

	if bestHits == 0 {
		return domain.Classification{
			Label:      domain.LabelOther,
			Confidence: noMatchConfidence,
			Scores:     scores,
		}
	}

	confidence := math.Min(float64(bestHits)/saturationHits, 1)
	return domain.Classification{
		Label:      best,
		Confidence: math.Round(confidence*confidencePrecision) / confidencePrecision,
		Scores:     scores,
	}
}
