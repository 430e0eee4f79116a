/*
Package ai asks Gemini for a short digest of the day's combined menu. The
digest is optional decoration on notifications; callers treat failures as
warnings.
*/
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Digest is the model's reading of today's menu.
type Digest struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
}

// Empty reports whether the digest carries nothing worth showing.
func (d *Digest) Empty() bool {
	return d == nil || (strings.TrimSpace(d.Summary) == "" && len(d.Highlights) == 0)
}

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Digester struct {
	models generator
	model  string
}

func NewDigester(ctx context.Context, apiKey, model string) (*Digester, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Digester{models: client.Models, model: model}, nil
}

// Digest summarises the menu lines ("{item} at {halls}") served on day.
func (d *Digester) Digest(ctx context.Context, day time.Time, lines []string) (*Digest, error) {
	if len(lines) == 0 {
		return &Digest{}, nil
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: buildPrompt(day, lines)}},
		},
	}

	resp, err := d.models.GenerateContent(ctx, d.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}

	return parseDigest(resp.Text())
}

func parseDigest(respText string) (*Digest, error) {
	var digest Digest
	if err := json.Unmarshal([]byte(respText), &digest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gemini JSON response: %w. Raw text: %s", err, respText)
	}

	highlights := digest.Highlights[:0]
	for _, h := range digest.Highlights {
		if h = strings.TrimSpace(h); h != "" {
			highlights = append(highlights, h)
		}
	}
	if len(highlights) > maxHighlights {
		highlights = highlights[:maxHighlights]
	}
	digest.Highlights = highlights
	digest.Summary = strings.TrimSpace(digest.Summary)

	return &digest, nil
}
