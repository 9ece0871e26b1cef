package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/trackjudge/internal/config"
	"github.com/kailas-cloud/trackjudge/internal/domain"
	logpkg "github.com/kailas-cloud/trackjudge/internal/logger"
	"github.com/kailas-cloud/trackjudge/internal/metrics"
	"github.com/kailas-cloud/trackjudge/internal/repository/submissionlog"
	anthropicAgent "github.com/kailas-cloud/trackjudge/internal/transport/anthropic"
	chiTransport "github.com/kailas-cloud/trackjudge/internal/transport/chi"
	"github.com/kailas-cloud/trackjudge/internal/transport/fuzzy"
	geminiAgent "github.com/kailas-cloud/trackjudge/internal/transport/gemini"
	"github.com/kailas-cloud/trackjudge/internal/transport/llm"
	openaiAgent "github.com/kailas-cloud/trackjudge/internal/transport/openai"
	"github.com/kailas-cloud/trackjudge/internal/usecase/budget"
	healthuc "github.com/kailas-cloud/trackjudge/internal/usecase/health"
	judgeuc "github.com/kailas-cloud/trackjudge/internal/usecase/judge"
	scoringuc "github.com/kailas-cloud/trackjudge/internal/usecase/scoring"
	usageuc "github.com/kailas-cloud/trackjudge/internal/usecase/usage"
	"github.com/kailas-cloud/trackjudge/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting trackjudge API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("judge_provider", cfg.Judge.Provider),
		zap.String("judge_model", cfg.Judge.Model),
	)

	// The prompt is read once; edits need a restart.
	systemPrompt, err := config.LoadSystemPrompt(cfg.Judge.SystemPromptPath)
	if err != nil {
		logger.Fatal("Failed to load system prompt", zap.Error(err))
	}

	metrics.RegisterJudgeMetrics()

	tracker := newBudgetTracker(cfg.Judge, logger)

	ctx := context.Background()
	agent, err := buildCapability(ctx, cfg.Judge, tracker.Record, logger)
	if err != nil {
		logger.Fatal("Failed to create judging capability", zap.Error(err))
	}

	// Single log instance owned by the scoring service for the process lifetime.
	log := submissionlog.New().WithObserver(func(n int) {
		metrics.SubmissionLogEntries.Set(float64(n))
	})

	judge := judgeuc.New(budget.NewGuard(agent, tracker), systemPrompt, logger)
	scoringSvc := scoringuc.New(judge, log)

	var checker healthuc.JudgeChecker
	if hc, ok := agent.(domain.HealthChecker); ok {
		checker = hc
	}
	healthSvc := healthuc.New(checker, version.String())

	server := chiTransport.NewServer(scoringSvc, healthSvc, logger).
		WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes).
		WithUsage(usageuc.New(tracker))

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
			Code:    chiTransport.ErrorCodeNotFound,
			Message: "route not found",
		})
	})
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully", zap.Int("logged_submissions", log.Len()))
}

// newBudgetTracker creates the in-memory token budget for the configured provider.
func newBudgetTracker(cfg config.JudgeConfig, logger *zap.Logger) *budget.Tracker {
	action := budget.ActionWarn
	if cfg.Budget.Action == string(budget.ActionReject) {
		action = budget.ActionReject
	}
	if cfg.Budget.DailyTokenLimit > 0 || cfg.Budget.MonthlyTokenLimit > 0 {
		logger.Info("Judge token budget enabled",
			zap.String("provider", cfg.Provider),
			zap.Int64("daily_limit", cfg.Budget.DailyTokenLimit),
			zap.Int64("monthly_limit", cfg.Budget.MonthlyTokenLimit),
			zap.String("action", string(action)),
		)
	}
	return budget.NewTracker(cfg.Provider, cfg.Budget.DailyTokenLimit, cfg.Budget.MonthlyTokenLimit, action, logger)
}

// buildCapability selects the judging capability by provider. onUsage receives billed tokens.
func buildCapability(
	ctx context.Context, cfg config.JudgeConfig, onUsage llm.UsageFunc, logger *zap.Logger,
) (domain.Capability, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openaiAgent.NewAgent(&openaiAgent.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Logger:      logger,
			OnUsage:     onUsage,
		}), nil
	case config.ProviderAnthropic:
		a, err := anthropicAgent.NewAgent(&anthropicAgent.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Logger:      logger,
			OnUsage:     onUsage,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic agent: %w", err)
		}
		return a, nil
	case config.ProviderGemini:
		a, err := geminiAgent.NewAgent(ctx, &geminiAgent.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Logger:      logger,
			OnUsage:     onUsage,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini agent: %w", err)
		}
		return a, nil
	case config.ProviderLevenshtein:
		return fuzzy.NewAgent(), nil
	default:
		return nil, fmt.Errorf("unknown judge provider %q", cfg.Provider)
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("path", r.URL.Path),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.ErrorCodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
