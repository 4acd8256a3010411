// Package api exposes the signal and backtest engine over HTTP with gin.
//
// Files:
//   - api.go: handler dependencies and routing
//   - handler.go: HTTP request handlers
//   - middleware.go: middleware functions
//   - validator.go: request validation
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/amirphl/signal-trader/internal/backtest"
	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/db"
	"github.com/amirphl/signal-trader/internal/performance"
	"github.com/amirphl/signal-trader/internal/risk"
	"github.com/amirphl/signal-trader/internal/strategy"
	"github.com/amirphl/signal-trader/internal/utils"
)

const (
	DefaultTimeout      = 30 * time.Second
	ServiceName         = "signal-trader"
	ServiceVersion      = "1.0.0"
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
)

// SignalService is the engine surface the handlers need.
type SignalService interface {
	GetSignal(candles []candle.Candle, t strategy.Type, params strategy.Params, entry *risk.EntryPosition) (strategy.Analysis, error)
	RunBacktest(candles []candle.Candle, t strategy.Type, params strategy.Params, bp backtest.Params) (performance.Report, error)
}

type Handler struct {
	service   SignalService
	storage   db.Storage
	validator *Validator
	logger    *zap.Logger
	timeout   time.Duration
}

func NewHandler(service SignalService, storage db.Storage, logger *zap.Logger, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Handler{
		service:   service,
		storage:   storage,
		validator: GetValidator(),
		logger:    utils.OrNop(logger),
		timeout:   timeout,
	}
}

// SetupRoutes configures all API routes.
func (h *Handler) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(requestIDMiddleware())
	router.Use(zapLoggerMiddleware(h.logger))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", h.HealthCheck)

	v1 := router.Group("/api/v1")
	v1.POST("/strategy/signal", h.GetSignal)
	v1.POST("/strategy/backtest", h.RunBacktest)
	v1.GET("/backtests/:id", h.GetBacktest)

	return router
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (h *Handler) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("API | Listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	h.logger.Info("API | Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
