package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trackjudge/internal/domain"
	"github.com/kailas-cloud/trackjudge/internal/logger"
)

// ErrorCode is the machine-readable code in an error body.
type ErrorCode string

// Error codes returned by the API.
const (
	ErrorCodeBadRequest           ErrorCode = "bad_request"
	ErrorCodePayloadTooLarge      ErrorCode = "payload_too_large"
	ErrorCodeNotFound             ErrorCode = "not_found"
	ErrorCodeMalformedJudgeOutput ErrorCode = "malformed_judge_output"
	ErrorCodeJudgeUnavailable     ErrorCode = "judge_unavailable"
	ErrorCodeJudgeBudgetExceeded  ErrorCode = "judge_budget_exceeded"
	ErrorCodeInternalError        ErrorCode = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		sentinelHandler(domain.ErrMalformedSubmission, http.StatusBadRequest, ErrorCodeBadRequest),
		sentinelHandler(domain.ErrMalformedJudgeOutput, http.StatusBadGateway, ErrorCodeMalformedJudgeOutput),
		sentinelHandler(domain.ErrJudgeBudgetExceeded, http.StatusTooManyRequests, ErrorCodeJudgeBudgetExceeded),
		sentinelHandler(domain.ErrJudgeUnavailable, http.StatusBadGateway, ErrorCodeJudgeUnavailable),
		sentinelHandler(domain.ErrEntryNotFound, http.StatusNotFound, ErrorCodeNotFound),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrMalformedSubmission,
		domain.ErrMalformedJudgeOutput,
		domain.ErrJudgeBudgetExceeded,
		domain.ErrJudgeUnavailable,
		domain.ErrEntryNotFound,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
