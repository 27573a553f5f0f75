package domain

import (
	"math"
	"slices"
	"time"
)

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusNoText     DocumentStatus = "no_text"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID                   string             `json:"id"`
	OwnerID              string             `json:"owner_id"`
	Filename             string             `json:"filename"`
	MimeType             string             `json:"mime_type"`
	FileSize             int64              `json:"file_size"`
	StoragePath          string             `json:"storage_path"`
	Text                 string             `json:"text,omitempty"`
	Classification       string             `json:"classification,omitempty"`
	Confidence           float64            `json:"confidence"`
	ClassificationScores map[string]float64 `json:"classification_scores,omitempty"`
	Entities             []Entity           `json:"entities"`
	Tags                 []string           `json:"tags"`
	Status               DocumentStatus     `json:"status"`
	Error                string             `json:"error,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// HasTag reports whether tag is already present on the document.
func (d *Document) HasTag(tag string) bool {
	return slices.Contains(d.Tags, tag)
}

// AddTag appends tag unless it is already present. It returns true when the
// tag set changed.
func (d *Document) AddTag(tag string) bool {
	if tag == "" || d.HasTag(tag) {
		return false
	}
	d.Tags = append(d.Tags, tag)
	return true
}

// Clone returns a deep copy safe to hand out across goroutines.
func (d Document) Clone() Document {
	out := d
	out.Entities = slices.Clone(d.Entities)
	out.Tags = slices.Clone(d.Tags)
	if d.ClassificationScores != nil {
		out.ClassificationScores = make(map[string]float64, len(d.ClassificationScores))
		for k, v := range d.ClassificationScores {
			out.ClassificationScores[k] = v
		}
	}
	return out
}

// Category labels produced by classifiers. LabelOther is the catch-all.
const (
	LabelInvoice  = "invoice"
	LabelContract = "contract"
	LabelReport   = "report"
	LabelLetter   = "letter"
	LabelForm     = "form"
	LabelReceipt  = "receipt"
	LabelMemo     = "memo"
	LabelOther    = "other"
)

// Categories lists the known labels in tie-break order. LabelOther is not part
// of the list.
var Categories = []string{
	LabelInvoice,
	LabelContract,
	LabelReport,
	LabelLetter,
	LabelForm,
	LabelReceipt,
	LabelMemo,
}

func IsKnownLabel(label string) bool {
	return label == LabelOther || slices.Contains(Categories, label)
}

type Classification struct {
	Label      string             `json:"label"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores,omitempty"`
}

// Normalize coerces unknown labels to LabelOther and clamps confidence to [0,1].
func (c Classification) Normalize() Classification {
	if !IsKnownLabel(c.Label) {
		c.Label = LabelOther
	}
	switch {
	case math.IsNaN(c.Confidence) || c.Confidence < 0:
		c.Confidence = 0
	case c.Confidence > 1:
		c.Confidence = 1
	}
	return c
}

// Degradation kinds reported on a ProcessedResult.
const (
	DegradedClassifierFallback  = "classifier_fallback"
	DegradedEntitiesUnavailable = "entities_unavailable"
	DegradedTextTimeout         = "text_timeout"
	DegradedTextUnavailable     = "text_unavailable"
)

type ProcessedResult struct {
	Text           string              `json:"text"`
	Classification string              `json:"classification"`
	Confidence     float64             `json:"confidence"`
	Scores         map[string]float64  `json:"scores,omitempty"`
	Entities       []Entity            `json:"entities"`
	EntitySummary  map[string][]string `json:"entity_summary,omitempty"`
	Status         DocumentStatus      `json:"status"`
	Degradations   []string            `json:"degradations,omitempty"`
}

// Degraded reports whether kind was recorded on the result.
func (r ProcessedResult) Degraded(kind string) bool {
	return slices.Contains(r.Degradations, kind)
}

// ClassificationStat is one bucket of per-owner classification counts.
type ClassificationStat struct {
	Classification string  `json:"classification"`
	Count          int     `json:"count"`
	Percentage     float64 `json:"percentage"`
}

type DocumentListFilter struct {
	Classification string
	Status         DocumentStatus
	Page           int
	PageSize       int
}
