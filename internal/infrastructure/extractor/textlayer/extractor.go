package textlayer

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"strings"

	"github.com/kirillkom/docvault/internal/core/ports"
)

const (
	mimePDF      = "application/pdf"
	mimePlain    = "text/plain"
	mimeCSV      = "text/csv"
	mimeHTML     = "text/html"
	mimeMarkdown = "text/markdown"
	mimeXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	defaultMaxOCRImages = 20
)

// Extractor picks a text source by mime type. PDFs use their text layer and
// fall back to OCR of embedded page images when the layer is empty.
type Extractor struct {
	ocr          ports.OCR
	maxOCRImages int
	logger       *slog.Logger
}

type Option func(*Extractor)

func WithMaxOCRImages(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxOCRImages = n
		}
	}
}

func New(ocr ports.OCR, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{
		ocr:          ocr,
		maxOCRImages: defaultMaxOCRImages,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) ExtractText(ctx context.Context, content []byte, mimeType string) (text string) {
	mediaType := normalizeMediaType(mimeType)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("text_extraction_panic", "mime_type", mediaType, "panic", fmt.Sprint(r))
			text = ""
		}
	}()

	var err error
	switch {
	case mediaType == mimePDF:
		text, err = e.pdfText(ctx, content)
	case strings.HasPrefix(mediaType, "image/"):
		text, err = e.recognize(ctx, content)
	case mediaType == mimePlain, mediaType == mimeCSV:
		text = decodeUTF8(content)
	case mediaType == mimeHTML:
		text, err = htmlText(content)
	case mediaType == mimeMarkdown:
		text = markdownText(content)
	case mediaType == mimeXLSX:
		text, err = spreadsheetText(content)
	default:
		return ""
	}
	if err != nil {
		e.logger.Warn("text_extraction_failed", "mime_type", mediaType, "error", err)
		return ""
	}
	return strings.TrimSpace(text)
}

func (e *Extractor) pdfText(ctx context.Context, content []byte) (string, error) {
	text, err := pdfTextLayer(content)
	if err != nil {
		e.logger.Info("pdf_text_layer_unavailable", "error", err)
	}
	if strings.TrimSpace(text) != "" || e.ocr == nil {
		return text, nil
	}

	images, err := pdfImages(content, e.maxOCRImages, e.logger)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(images))
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return strings.Join(parts, "\n"), nil
		}
		recognized, err := e.ocr.Recognize(ctx, img)
		if err != nil {
			e.logger.Warn("pdf_page_ocr_failed", "error", err)
			continue
		}
		if s := strings.TrimSpace(recognized); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n"), nil
}

func (e *Extractor) recognize(ctx context.Context, content []byte) (string, error) {
	if e.ocr == nil {
		return "", nil
	}
	return e.ocr.Recognize(ctx, content)
}

func normalizeMediaType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	return mediaType
}

func decodeUTF8(content []byte) string {
	return strings.ToValidUTF8(string(content), "")
}
