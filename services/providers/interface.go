package providers

import (
	"context"
)

// Message is a single chat message in a dispatch payload.
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// Request is the provider-agnostic dispatch payload. The router never
// inspects the content; it only moves it to the chosen backend.
type Request struct {
	// Model identifier understood by the upstream provider
	Model string `json:"model"`

	// Messages in the conversation
	Messages []Message `json:"messages"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 to 2.0)
	Temperature float64 `json:"temperature,omitempty"`

	// Metadata for tracking and logging
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Response is the provider-agnostic dispatch result.
type Response struct {
	// ID is the provider-assigned completion identifier
	ID string `json:"id"`

	// Content is the completion text
	Content string `json:"content"`

	// Model actually used by the provider
	Model string `json:"model"`

	// InputTokens and OutputTokens are the reported usage
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	// RemainingRequests and RemainingUnits carry provider rate-limit headers
	// when present, consumed by the rate-limit tracker.
	RemainingRequests *float64 `json:"-"`
	RemainingUnits    *float64 `json:"-"`
}

// TotalUnits returns the work-unit cost of the response.
func (r *Response) TotalUnits() float64 {
	return float64(r.InputTokens + r.OutputTokens)
}

// Dispatcher performs the upstream network call for one backend. The router
// wraps every call with admission control and outcome recording; Dispatch
// implementations only speak the provider's wire protocol. Errors should be
// *ProviderError where the failure class is known; anything else is
// classified transient (or timeout, from the context error).
type Dispatcher interface {
	// Name returns the backend identifier this dispatcher serves.
	Name() string

	// Dispatch performs one upstream call. It must honor ctx cancellation.
	Dispatch(ctx context.Context, req *Request) (*Response, error)
}
