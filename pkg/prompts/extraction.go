// Package prompts builds the prompts sent to the structured-generation
// collaborator.
package prompts

import (
	"fmt"
	"strings"
)

// NoteContext provides the note fields the extraction prompt needs.
type NoteContext struct {
	Title   string
	Excerpt string
	Body    string
}

// ExtractionSystemMessage instructs the model to emit strictly-shaped JSON.
const ExtractionSystemMessage = `You are an information extraction engine for a personal knowledge base.
Respond with a single JSON object and nothing else. Do not wrap the JSON in markdown fences.`

// maxExtractionBodyLen bounds the note body included in a prompt; beyond
// this the excerpt plus the truncated body carries enough signal.
const maxExtractionBodyLen = 6000

// BuildExtractionPrompt creates the prompt asking for typed entities and
// relationships from one note. The entity kind vocabulary is closed; the
// parser rejects anything outside it.
func BuildExtractionPrompt(note NoteContext) string {
	var prompt strings.Builder

	prompt.WriteString("# Note Analysis\n\n")
	prompt.WriteString("Extract the entities and relationships this note describes, and propose the topics it belongs to.\n\n")

	prompt.WriteString("## Note\n\n")
	prompt.WriteString(fmt.Sprintf("Title: %s\n", note.Title))
	if note.Excerpt != "" {
		prompt.WriteString(fmt.Sprintf("Excerpt: %s\n", note.Excerpt))
	}
	body := note.Body
	if len(body) > maxExtractionBodyLen {
		body = body[:maxExtractionBodyLen] + "\n[truncated]"
	}
	prompt.WriteString("\n")
	prompt.WriteString(body)
	prompt.WriteString("\n\n## Response Format\n\n")
	prompt.WriteString("Return JSON with this exact shape:\n")
	prompt.WriteString(`{
  "entities": [
    {"name": "string", "kind": "person|organization|place|event|technology|creative-work", "aliases": ["string"]}
  ],
  "relationships": [
    {"source": "entity name", "target": "entity name", "relation": "short label", "evidence": "verbatim snippet from the note"}
  ],
  "topics": [
    {"title": "short durable topic title", "score": 0.0}
  ]
}
`)
	prompt.WriteString("\nRules:\n")
	prompt.WriteString("- Use only the six entity kinds listed above.\n")
	prompt.WriteString("- Every relationship source and target must appear in entities.\n")
	prompt.WriteString("- Keep evidence snippets under 200 characters.\n")
	prompt.WriteString("- Propose at most 3 topics; score is relevance between 0 and 1.\n")
	prompt.WriteString("- Return empty arrays when the note names no entities.\n")

	return prompt.String()
}
