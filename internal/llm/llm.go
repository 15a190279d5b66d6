// Package llm defines the provider-agnostic contract for text generation.
// The chat assistant depends only on Provider; concrete backends live in
// subpackages.
package llm

import "context"

// Provider is the abstraction over any text-generation backend.
type Provider interface {
	// Generate produces a completion for the system prompt and user message.
	Generate(ctx context.Context, req *Request) (*Response, error)
	// Name returns the provider identifier (e.g. "openai").
	Name() string
}

// Request is one generation call.
type Request struct {
	SystemPrompt string
	UserMessage  string
	MaxTokens    int
	Temperature  float64
}

// Response is what the provider returns.
type Response struct {
	Content string
	Usage   Usage
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// EstimateTokens gives a rough token count for budgeting and usage
// reporting when the provider does not return real numbers. Four
// characters per token is close enough for English clinical text.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
