package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shiori-ai/shiori/internal/model"
	"github.com/shiori-ai/shiori/internal/synthesis"
)

// Handlers bundles the HTTP endpoints and their dependencies.
type Handlers struct {
	orchestrator *synthesis.Orchestrator
	health       func() error
	logger       *slog.Logger
	version      string
}

// askRequest is the JSON body of POST /v1/ask and /v1/ask/stream. User
// identity comes from the token, never from the body.
type askRequest struct {
	Text             string            `json:"text"`
	K                int               `json:"k,omitempty"`
	Filter           map[string]string `json:"filter,omitempty"`
	Format           string            `json:"format,omitempty"`
	MaxContextTokens int               `json:"max_context_tokens,omitempty"`
	PriorGuardrail   *priorGuardrail   `json:"prior_guardrail,omitempty"`
}

// priorGuardrail is an answerability verdict computed by an upstream
// service; when present it replaces the engine's own gate verbatim.
type priorGuardrail struct {
	IsAnswerable bool    `json:"is_answerable"`
	Confidence   float64 `json:"confidence"`
	ReasonCode   string  `json:"reason_code,omitempty"`
}

func (h *Handlers) query(r *http.Request) (model.Query, error) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return model.Query{}, &model.InvalidRequestError{Reason: "malformed JSON body"}
	}

	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return model.Query{}, &model.UnauthorizedError{Reason: "missing claims"}
	}

	q := model.Query{
		Text:             req.Text,
		User:             claims.UserContext(),
		K:                req.K,
		Filter:           req.Filter,
		Format:           model.Format(req.Format),
		MaxContextTokens: req.MaxContextTokens,
	}
	if req.PriorGuardrail != nil {
		q.PriorGuardrail = &model.GuardrailDecision{
			IsAnswerable: req.PriorGuardrail.IsAnswerable,
			Confidence:   req.PriorGuardrail.Confidence,
			ReasonCode:   model.ReasonCode(req.PriorGuardrail.ReasonCode),
		}
	}
	return q, q.Validate()
}

// HandleAsk serves POST /v1/ask: one blocking synthesis.
func (h *Handlers) HandleAsk(w http.ResponseWriter, r *http.Request) {
	q, err := h.query(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.orchestrator.Ask(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleAskStream serves POST /v1/ask/stream: the response as SSE.
func (h *Handlers) HandleAskStream(w http.ResponseWriter, r *http.Request) {
	q, err := h.query(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	events, err := h.orchestrator.AskStream(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	serveSSE(w, r, events, h.logger)
}

// HandleHealth serves GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := model.CodeOf(err)
	writeErrorJSON(w, statusFor(code), string(code), publicMessage(err, code), RequestIDFromContext(r.Context()))
}

// statusFor maps pipeline error codes to HTTP status codes.
func statusFor(code model.ErrorCode) int {
	switch code {
	case model.CodeInvalidRequest:
		return http.StatusBadRequest
	case model.CodeUnauthorized:
		return http.StatusUnauthorized
	case model.CodeTimeout:
		return http.StatusGatewayTimeout
	case model.CodeCancelled:
		return 499 // client closed request
	case model.CodeRetrievalBackend, model.CodeReranker, model.CodeLLMProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal detail for 5xx-class failures.
func publicMessage(err error, code model.ErrorCode) string {
	switch code {
	case model.CodeInvalidRequest, model.CodeUnauthorized:
		return err.Error()
	case model.CodeTimeout:
		return "request timed out"
	case model.CodeCancelled:
		return "request cancelled"
	default:
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorJSON(w http.ResponseWriter, status int, code, msg, requestID string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code, RequestID: requestID})
}

var errNotFlushable = errors.New("server: response writer does not support flushing")
