package chi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/trackjudge/internal/domain"
	"github.com/kailas-cloud/trackjudge/internal/repository/submissionlog"
	healthuc "github.com/kailas-cloud/trackjudge/internal/usecase/health"
	scoringuc "github.com/kailas-cloud/trackjudge/internal/usecase/scoring"
	usageuc "github.com/kailas-cloud/trackjudge/internal/usecase/usage"
)

// Greeting is the liveness body served on GET /.
const Greeting = "Hola viejiii"

// DefaultMaxBodyBytes bounds POST /score bodies when no limit is configured.
const DefaultMaxBodyBytes = 1 << 20

// Server serves the scoring HTTP API on a chi router.
type Server struct {
	scoring       *scoringuc.Service
	health        *healthuc.Service
	usage         *usageuc.Service
	logger        *zap.Logger
	maxBodyBytes  int64
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(scoring *scoringuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	return &Server{
		scoring:       scoring,
		health:        health,
		usage:         usageuc.New(nil),
		logger:        logger,
		maxBodyBytes:  DefaultMaxBodyBytes,
		errorHandlers: defaultErrorHandlers(),
	}
}

// WithMaxBodyBytes overrides the POST /score body limit.
func (s *Server) WithMaxBodyBytes(n int64) *Server {
	if n > 0 {
		s.maxBodyBytes = n
	}
	return s
}

// WithUsage sets the service behind GET /usage. Without it the report is empty.
func (s *Server) WithUsage(usage *usageuc.Service) *Server {
	if usage != nil {
		s.usage = usage
	}
	return s
}

// Register mounts all routes on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/", s.Greet)
	r.Post("/score", s.Score)
	r.Get("/score", s.ListLog)
	r.Get("/score/{timestamp}", s.GetLogEntry)
	r.Get("/usage", s.GetUsage)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Greet handles GET /.
func (s *Server) Greet(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, Greeting)
}

// Score handles POST /score. The body is read in full before parsing.
func (s *Server) Score(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "failed to read request body")
		return
	}

	sub, err := domain.ParseSubmission(body)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp, err := s.scoring.Score(r.Context(), sub)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListLog handles GET /score. Keys keep insertion order.
func (s *Server) ListLog(w http.ResponseWriter, r *http.Request) {
	body, err := encodeLog(s.scoring.Log(r.Context()))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// LogEntryResponse is the body of GET /score/{timestamp}.
type LogEntryResponse struct {
	Timestamp  int64  `json:"timestamp"`
	Submission string `json:"submission"`
}

// GetLogEntry handles GET /score/{timestamp}.
func (s *Server) GetLogEntry(w http.ResponseWriter, r *http.Request) {
	var timestamp int64
	err := runtime.BindStyledParameterWithOptions("simple", "timestamp", chi.URLParam(r, "timestamp"),
		&timestamp, runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest,
			fmt.Sprintf("invalid format for parameter timestamp: %s", err))
		return
	}

	entry, err := s.scoring.Entry(r.Context(), timestamp)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, LogEntryResponse{Timestamp: entry.Timestamp, Submission: entry.Payload})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:  string(report.Status),
		Checks:  checks,
		Version: report.Version,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// encodeLog renders entries as a JSON object keyed by decimal timestamp.
// encoding/json sorts map keys, so the object is assembled by hand to keep insertion order.
func encodeLog(entries []submissionlog.Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(strconv.FormatInt(e.Timestamp, 10))
		if err != nil {
			return nil, fmt.Errorf("encode timestamp %d: %w", e.Timestamp, err)
		}
		val, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload at %d: %w", e.Timestamp, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}
