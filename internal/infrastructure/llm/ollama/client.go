package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/infrastructure/resilience"
)

const defaultEntityConfidence = 0.85

type Client struct {
	baseURL     string
	genModel    string
	visionModel string
	httpClient  *http.Client
	executor    *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, genModel, visionModel string) *Client {
	return NewWithOptions(baseURL, genModel, visionModel, Options{})
}

func NewWithOptions(baseURL, genModel, visionModel string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		genModel:    genModel,
		visionModel: visionModel,
		httpClient:  &http.Client{Timeout: timeout},
		executor:    options.ResilienceExecutor,
	}
}

type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

func (c *Classifier) Classify(ctx context.Context, text string) (domain.Classification, error) {
	respText, err := c.client.generateJSON(ctx, buildClassificationPrompt(text))
	if err != nil {
		return domain.Classification{}, err
	}

	var result struct {
		Label      string             `json:"label"`
		Confidence float64            `json:"confidence"`
		Scores     map[string]float64 `json:"scores"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &result); err != nil {
		return domain.Classification{}, fmt.Errorf("parse classification json: %w", err)
	}
	if strings.TrimSpace(result.Label) == "" {
		return domain.Classification{}, fmt.Errorf("classification response has no label")
	}
	return domain.Classification{
		Label:      strings.ToLower(strings.TrimSpace(result.Label)),
		Confidence: result.Confidence,
		Scores:     result.Scores,
	}, nil
}

// VisionOCR reads text from an image with a multimodal model.
type VisionOCR struct {
	client *Client
}

func NewVisionOCR(client *Client) *VisionOCR {
	return &VisionOCR{client: client}
}

func (o *VisionOCR) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", nil
	}
	reqBody := map[string]any{
		"model":  o.client.visionModel,
		"prompt": ocrPrompt,
		"images": []string{base64.StdEncoding.EncodeToString(image)},
		"stream": false,
	}
	return o.client.generate(ctx, reqBody)
}

type EntityRecognizer struct {
	client *Client
}

func NewEntityRecognizer(client *Client) *EntityRecognizer {
	return &EntityRecognizer{client: client}
}

// Recognize asks the model for entities and locates each value in text to
// recover its rune span. Values the model invented are dropped.
func (r *EntityRecognizer) Recognize(ctx context.Context, text string) ([]domain.Entity, error) {
	if strings.TrimSpace(text) == "" {
		return []domain.Entity{}, nil
	}
	respText, err := r.client.generateJSON(ctx, buildEntityPrompt(text))
	if err != nil {
		return nil, err
	}

	var result struct {
		Entities []struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"entities"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &result); err != nil {
		return nil, fmt.Errorf("parse entities json: %w", err)
	}

	entities := make([]domain.Entity, 0, len(result.Entities))
	for _, raw := range result.Entities {
		value := strings.TrimSpace(raw.Value)
		if value == "" {
			continue
		}
		byteIdx := strings.Index(text, value)
		if byteIdx < 0 {
			continue
		}
		entityType, _ := domain.ParseEntityType(raw.Type)
		start := utf8.RuneCountInString(text[:byteIdx])
		entities = append(entities, domain.Entity{
			Type:       entityType,
			Value:      value,
			Start:      start,
			End:        start + utf8.RuneCountInString(value),
			Confidence: defaultEntityConfidence,
		})
	}
	return entities, nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
