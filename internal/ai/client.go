// Package ai wraps the Gemini text-completion API behind a small injectable
// client so services and tests never touch SDK globals.
package ai

import "context"

// Client is the completion surface the posting engine depends on.
type Client interface {
	// Complete sends a text prompt and returns the raw model response.
	Complete(ctx context.Context, prompt string) (string, error)
	// CompleteWithImage sends a prompt together with a document image.
	CompleteWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
}
