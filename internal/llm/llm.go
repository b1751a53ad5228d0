package llm

import "context"

// Backend turns a system+user prompt pair into the model's raw text reply.
type Backend interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest is a single non-streaming chat completion.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Model        string  // falls back to the client's configured model
	Temperature  float64 // 0 means use the client's configured temperature
	JSONMode     bool    // ask the provider for a JSON object response
}
