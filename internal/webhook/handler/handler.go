package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/fekuna/omnipos-ingestion-service/internal/credential"
	"github.com/fekuna/omnipos-ingestion-service/internal/orderapi"
	"github.com/fekuna/omnipos-ingestion-service/internal/webhook"
	"github.com/fekuna/omnipos-ingestion-service/internal/webhook/dto"
	"github.com/fekuna/omnipos-ingestion-service/pkg/logger"
	"go.uber.org/zap"
)

const maxBodySize = 1 << 20 // 1 MiB

type WebhookHandler struct {
	uc     webhook.UseCase
	logger logger.ZapLogger
}

func NewWebhookHandler(uc webhook.UseCase, log logger.ZapLogger) *WebhookHandler {
	return &WebhookHandler{uc: uc, logger: log}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable body"})
		return
	}

	var payload dto.RawPayload
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	token := extractToken(r, &payload)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing webhook token"})
		return
	}

	result, err := h.uc.Process(r.Context(), token, body, &payload)
	if err != nil {
		status := statusFor(err)
		h.logger.Warn("webhook processing failed",
			zap.Int("status", status),
			zap.Error(err),
		)
		if result != nil {
			// Decrement failures carry a partial summary worth returning.
			writeJSON(w, status, result)
			return
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// extractToken checks the caller-supplied token sources in priority order:
// dedicated header, generic API-key header, bearer auth, query parameters,
// then the body itself. First present source wins.
func extractToken(r *http.Request, payload *dto.RawPayload) string {
	if token := r.Header.Get("x-webhook-token"); token != "" {
		return token
	}
	if token := r.Header.Get("X-API-KEY"); token != "" {
		return token
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
	}
	query := r.URL.Query()
	for _, param := range []string{"token", "api_key", "apiKey"} {
		if token := query.Get(param); token != "" {
			return token
		}
	}
	if payload.Token != "" {
		return payload.Token
	}
	return payload.APIKey
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, credential.ErrNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, dto.ErrInvalidPayload), errors.Is(err, webhook.ErrMissingItems):
		return http.StatusBadRequest
	case errors.Is(err, orderapi.ErrUpstreamUnavailable):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Health is a trivial liveness probe.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
