package ai

import "context"

// CompletionRequest is the text-in boundary to the model provider. Image URLs
// may be public URLs or data URLs; they are attached as vision parts.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	ImageURLs    []string
	MaxTokens    int
	Temperature  float32
}

type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
