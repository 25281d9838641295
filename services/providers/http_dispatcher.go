package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/upb/inference-router/models"
)

// HTTPDispatcherConfig configures an HTTPDispatcher.
type HTTPDispatcherConfig struct {
	// Name is the backend identifier.
	Name string

	// BaseURL is the provider endpoint root (the chat completions path is
	// appended).
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout bounds a single dispatch. The caller's context deadline still
	// applies when tighter.
	Timeout time.Duration
}

// HTTPDispatcher dispatches to an OpenAI-compatible chat completions
// endpoint and classifies failures into the router taxonomy, extracting
// rate-limit headers as capacity signals.
type HTTPDispatcher struct {
	cfg    HTTPDispatcherConfig
	client *http.Client
}

// NewHTTPDispatcher creates a dispatcher for one upstream endpoint.
func NewHTTPDispatcher(cfg HTTPDispatcherConfig) *HTTPDispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &HTTPDispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the backend identifier.
func (d *HTTPDispatcher) Name() string {
	return d.cfg.Name
}

// chatRequest is the upstream wire format.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// chatResponse is the upstream wire format.
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Dispatch performs one upstream chat completion call.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("dispatch to %s: %w", d.cfg.Name, ctx.Err())
		}
		return nil, &ProviderError{
			Backend: d.cfg.Name,
			Kind:    models.FailureTransient,
			Message: err.Error(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, d.errorFromResponse(resp)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &ProviderError{
			Backend: d.cfg.Name,
			Kind:    models.FailureTransient,
			Message: fmt.Sprintf("decode response: %v", err),
		}
	}
	if len(parsed.Choices) == 0 {
		return nil, &ProviderError{
			Backend: d.cfg.Name,
			Kind:    models.FailureTransient,
			Message: "response contained no choices",
		}
	}

	out := &Response{
		ID:           parsed.ID,
		Content:      parsed.Choices[0].Message.Content,
		Model:        parsed.Model,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}
	out.RemainingRequests = headerFloat(resp.Header, "X-Ratelimit-Remaining-Requests")
	out.RemainingUnits = headerFloat(resp.Header, "X-Ratelimit-Remaining-Tokens")
	return out, nil
}

// errorFromResponse builds a classified ProviderError from a non-200
// upstream response, pulling retry-after and remaining-capacity headers.
func (d *HTTPDispatcher) errorFromResponse(resp *http.Response) *ProviderError {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	pe := &ProviderError{
		Backend:    d.cfg.Name,
		Kind:       classifyStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    string(msg),
	}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.ParseFloat(ra, 64); err == nil && secs > 0 {
			pe.RetryAfter = time.Duration(secs * float64(time.Second))
		} else if at, err := http.ParseTime(ra); err == nil {
			// Retry-After may also carry an HTTP-date.
			if until := time.Until(at); until > 0 {
				pe.RetryAfter = until
			}
		}
	}
	pe.RemainingRequests = headerFloat(resp.Header, "X-Ratelimit-Remaining-Requests")
	pe.RemainingUnits = headerFloat(resp.Header, "X-Ratelimit-Remaining-Tokens")
	return pe
}

func headerFloat(h http.Header, key string) *float64 {
	v := h.Get(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}
