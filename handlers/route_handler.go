package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/upb/inference-router/middleware"
	"github.com/upb/inference-router/models"
	"github.com/upb/inference-router/services/providers"
	"github.com/upb/inference-router/services/routing"
	"github.com/upb/inference-router/utils"
	"go.uber.org/zap"
)

// ChatMessage represents a single chat message
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// RouteRequest is the routing request body
type RouteRequest struct {
	Model          string        `json:"model"`
	Messages       []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Tier           int           `json:"tier" validate:"gte=0"`
	MaxTokens      int           `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	Temperature    float64       `json:"temperature,omitempty" validate:"gte=0,lte=2"`
	EstimatedUnits float64       `json:"estimated_units,omitempty" validate:"gte=0"`
}

// RouteUsage reports token usage of the routed completion
type RouteUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// RouteResponse is the routing response body
type RouteResponse struct {
	RequestID string     `json:"request_id"`
	Backend   string     `json:"backend"`
	Model     string     `json:"model"`
	Degraded  bool       `json:"degraded"`
	Attempts  int        `json:"attempts"`
	LatencyMs int64      `json:"latency_ms"`
	Content   string     `json:"content"`
	Usage     RouteUsage `json:"usage"`
}

// Router defines the routing operations the handlers depend on
type Router interface {
	Route(ctx context.Context, req *routing.Request) (*routing.Result, error)
}

// RouteHandler handles routing HTTP requests
type RouteHandler struct {
	router Router
	logger *zap.Logger
}

// NewRouteHandler creates a new RouteHandler
func NewRouteHandler(router Router, logger *zap.Logger) *RouteHandler {
	return &RouteHandler{
		router: router,
		logger: logger,
	}
}

// HandleRoute handles POST /api/v1/route
func (h *RouteHandler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var body RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Warn("malformed request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}

	if err := utils.ValidateStruct(body); err != nil {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		_ = utils.WriteBadRequest(w, "Validation failed", details)
		return
	}

	messages := make([]providers.Message, len(body.Messages))
	for i, m := range body.Messages {
		messages[i] = providers.Message{Role: m.Role, Content: m.Content}
	}

	result, err := h.router.Route(ctx, &routing.Request{
		RequestID:      requestID,
		Tier:           models.Tier(body.Tier),
		EstimatedUnits: body.EstimatedUnits,
		Payload: &providers.Request{
			Model:       body.Model,
			Messages:    messages,
			MaxTokens:   body.MaxTokens,
			Temperature: body.Temperature,
		},
	})
	if err != nil {
		h.writeRouteError(w, requestID, err)
		return
	}

	response := RouteResponse{
		RequestID: requestID,
		Backend:   result.BackendID,
		Model:     result.Response.Model,
		Degraded:  result.Degraded,
		Attempts:  result.Attempts,
		LatencyMs: result.Latency.Milliseconds(),
		Content:   result.Response.Content,
		Usage: RouteUsage{
			InputTokens:  result.Response.InputTokens,
			OutputTokens: result.Response.OutputTokens,
			TotalTokens:  result.Response.InputTokens + result.Response.OutputTokens,
		},
	}
	_ = utils.WriteJSON(w, http.StatusOK, response)
}

// writeRouteError maps routing errors to HTTP responses
func (h *RouteHandler) writeRouteError(w http.ResponseWriter, requestID string, err error) {
	switch {
	case errors.Is(err, routing.ErrLoadShedding):
		_ = utils.WriteServiceUnavailable(w, "Fleet is shedding load, retry later")

	case errors.Is(err, routing.ErrNoBackendAvailable):
		_ = utils.WriteServiceUnavailable(w, "No backend available for the requested tier")

	case errors.Is(err, routing.ErrDeadlineExceeded):
		_ = utils.WriteGatewayTimeout(w, "")

	default:
		if pe := providers.AsProviderError(err); pe != nil && pe.Kind == models.FailurePermanent {
			_ = utils.WriteBadRequest(w, pe.Message, map[string]interface{}{
				"backend":     pe.Backend,
				"status_code": pe.StatusCode,
			})
			return
		}
		h.logger.Error("routing failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
	}
}
