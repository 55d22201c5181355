// Package llm defines the seam between Clade and external reasoning backends.
package llm

import "context"

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single unit of communication.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest encapsulates the input for the reasoning backend.
//
// APIKey is the credential for this specific call. It is always passed
// explicitly per request so the resilient invoker can rotate credentials
// without any ambient state.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	APIKey      string    `json:"-"`
}

// ChatResponse encapsulates the output from the reasoning backend.
type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider defines the interface for interacting with reasoning backends.
// Implementations must honor the per-request APIKey and restore no ambient
// credential state: the request carries everything the call needs.
type Provider interface {
	// Chat sends a chat request to the backend and returns the response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
