package ai

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const maxHighlights = 5

const systemInstruction = `
You write the daily menu digest for students at the University of Maryland dining halls.

You are given every item served today, each with the halls serving it, in the form "{item} at {hall}, {hall}".

Write:
- "summary": one friendly sentence about today's menu overall.
- "highlights": up to 5 short bullet points naming items worth a trip, each mentioning where it is served.

Only mention items from the list. Do not invent items, halls, prices, or nutrition facts.
`

func buildPrompt(day time.Time, lines []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Menu for %s:\n\n", day.Format("Monday, January 2, 2006"))
	for _, l := range lines {
		sb.WriteString("- ")
		sb.WriteString(l)
		sb.WriteString("\n")
	}
	return sb.String()
}

func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary": {
				Type:        genai.TypeString,
				Description: "One sentence about today's menu.",
			},
			"highlights": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "Up to 5 items worth a trip, with where they are served.",
			},
		},
		Required: []string{"summary", "highlights"},
	}
}
