package prompts

import (
	"fmt"
	"strings"
)

// ReportNote is one representative member note shown to the model.
type ReportNote struct {
	Title     string
	Excerpt   string
	EventTime string // day-key form, empty when the member has no event time
}

// ReportSystemMessage instructs the model to emit strictly-shaped JSON.
const ReportSystemMessage = `You are a research assistant summarizing a cluster of saved notes.
Respond with a single JSON object and nothing else. Do not wrap the JSON in markdown fences.`

// BuildReportPrompt creates the prompt that names a topic and writes its
// markdown report from representative member notes.
func BuildReportPrompt(currentTitle string, notes []ReportNote) string {
	var prompt strings.Builder

	prompt.WriteString("# Topic Report\n\n")
	if currentTitle != "" {
		prompt.WriteString(fmt.Sprintf("The topic is currently titled %q. Rename it only if the notes clearly suggest a better title.\n\n", currentTitle))
	}
	prompt.WriteString("## Notes in this topic\n\n")
	for i, n := range notes {
		prompt.WriteString(fmt.Sprintf("### Note %d: %s\n", i+1, n.Title))
		if n.EventTime != "" {
			prompt.WriteString(fmt.Sprintf("Date: %s\n", n.EventTime))
		}
		if n.Excerpt != "" {
			prompt.WriteString(n.Excerpt)
			prompt.WriteString("\n")
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("## Response Format\n\n")
	prompt.WriteString("Return JSON with this exact shape:\n")
	prompt.WriteString(`{
  "title": "short topic title",
  "keywords": ["up to 8 keywords, most salient first"],
  "summary": "markdown report of what this topic covers and how it has developed"
}
`)

	return prompt.String()
}
