package ollama

import (
	"strings"

	"github.com/kirillkom/docvault/internal/core/domain"
)

const ocrPrompt = `Transcribe all text visible in this image.
Return only the text, preserving line breaks. No commentary.`

func buildClassificationPrompt(text string) string {
	return `You are a document classifier.
Pick exactly one label from: ` + strings.Join(domain.Categories, ", ") + `, ` + domain.LabelOther + `.
Return strict JSON object with keys:
label (string), confidence (number from 0 to 1), scores (object mapping every label to a number from 0 to 1).
No markdown, no extra keys.

Document:
` + text
}

func buildEntityPrompt(text string) string {
	types := domain.EntityTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	return `You extract named entities from documents.
Allowed types: ` + strings.Join(names, ", ") + `.
Return strict JSON object {"entities": [{"type": string, "value": string}]}.
Copy every value exactly as it appears in the document. No markdown, no extra keys.

Document:
` + text
}
