package httputils

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Akmalwizdom/onyx-shortener/internal/constants"
	"github.com/Akmalwizdom/onyx-shortener/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const CorrelationIDHeader = "X-Correlation-Id"

// APIResponse is the envelope for every JSON response. Success carries data,
// failure carries an error code and message; clients branch on Success.
type APIResponse struct {
	Success       bool      `json:"success"`
	ResponseTime  time.Time `json:"responseTime" example:"2026-01-15T10:30:00Z"`
	CorrelationId string    `json:"correlationId" example:"550e8400-e29b-41d4-a716-446655440000"`
	Code          string    `json:"code,omitempty" example:"LINK_CREATED"`
	Data          any       `json:"data,omitempty"`
	Error         string    `json:"error,omitempty" example:"INVALID_REQUEST"`
	Message       string    `json:"message,omitempty" example:"Request processed successfully"`
}

// RateLimitResponse is the 429 payload. Reset is a unix timestamp; the
// suggestion tells anonymous callers how to raise their quota.
type RateLimitResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Type       string `json:"type"`
	Reset      int64  `json:"reset"`
	Remaining  int64  `json:"remaining"`
	Limit      int64  `json:"limit"`
	Suggestion string `json:"suggestion,omitempty"`
}

// GetCorrelationID extracts the correlation ID from the request header
// If not present, generates a new UUID v4
func GetCorrelationID(r *http.Request) string {
	correlationID := r.Header.Get(CorrelationIDHeader)
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	return correlationID
}

// WriteAPIError writes an error response with metadata using a predefined APIError
func WriteAPIError(w http.ResponseWriter, r *http.Request, apiErr constants.APIError) {
	correlationID := GetCorrelationID(r)

	w.Header().Set(CorrelationIDHeader, correlationID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)

	response := APIResponse{
		Success:       false,
		ResponseTime:  time.Now().UTC(),
		CorrelationId: correlationID,
		Error:         apiErr.Code,
		Message:       apiErr.Message,
	}

	encode(w, response)
}

// WriteAPISuccess writes a success response with metadata using a predefined APISuccess
func WriteAPISuccess(w http.ResponseWriter, r *http.Request, apiSuccess constants.APISuccess, data any) {
	correlationID := GetCorrelationID(r)

	w.Header().Set(CorrelationIDHeader, correlationID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiSuccess.Status)

	response := APIResponse{
		Success:       true,
		ResponseTime:  time.Now().UTC(),
		CorrelationId: correlationID,
		Code:          apiSuccess.Code,
		Data:          data,
	}

	encode(w, response)
}

// WriteRateLimited emits the 429 payload with the quota window details.
func WriteRateLimited(w http.ResponseWriter, r *http.Request, payload RateLimitResponse) {
	correlationID := GetCorrelationID(r)

	payload.Success = false
	if payload.Error == "" {
		payload.Error = constants.CodeRateLimited
	}

	w.Header().Set(CorrelationIDHeader, correlationID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	encode(w, payload)
}

func encode(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode json response", zap.Error(err))
	}
}
