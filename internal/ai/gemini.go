package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini is a Client backed by the Google generative AI SDK.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini constructs a Gemini client. The API key and model name are passed
// at construction so tests can substitute a fake Client instead.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("ai: new client: %w", err)
	}
	return &Gemini{client: client, model: client.GenerativeModel(model)}, nil
}

// Close releases the underlying connection.
func (g *Gemini) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Complete sends a text prompt and returns the first candidate's text.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, "complete", genai.Text(prompt))
}

// CompleteWithImage sends a prompt plus a raw document image in one call.
func (g *Gemini) CompleteWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	return g.generate(ctx, "complete_with_image",
		genai.Text(prompt),
		genai.Blob{MIMEType: mimeType, Data: image},
	)
}

func (g *Gemini) generate(ctx context.Context, op string, parts ...genai.Part) (string, error) {
	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classify(op, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", &Error{Kind: KindParse, Op: op, cause: fmt.Errorf("empty response")}
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", &Error{Kind: KindParse, Op: op, cause: fmt.Errorf("no text parts in response")}
	}
	return sb.String(), nil
}
