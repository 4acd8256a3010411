package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/db"
	"github.com/amirphl/signal-trader/internal/performance"
	"github.com/amirphl/signal-trader/internal/risk"
	"github.com/amirphl/signal-trader/internal/service"
	"github.com/amirphl/signal-trader/internal/strategy"
)

var errBadRequest = errors.New("bad request")

// MarketRequest names a strategy and its candles: inline, or loaded from
// storage by symbol, timeframe and optional [start, end) range.
type MarketRequest struct {
	StrategyType   string          `json:"strategy_type"`
	StrategyParams strategy.Params `json:"strategy_params"`
	Candles        []candle.Candle `json:"candles,omitempty"`
	Symbol         string          `json:"symbol,omitempty"`
	Timeframe      string          `json:"timeframe,omitempty"`
	Start          *time.Time      `json:"start,omitempty"`
	End            *time.Time      `json:"end,omitempty"`
}

type SignalRequest struct {
	MarketRequest
	EntryPrice *float64 `json:"entry_price,omitempty"`
}

type SignalResponse struct {
	strategy.Analysis
	SignalID int64 `json:"signal_id,omitempty"`
}

type BacktestRequest struct {
	MarketRequest
	InitialCash    *float64 `json:"initial_cash,omitempty"`
	CommissionRate *float64 `json:"commission_rate,omitempty"`
	BuyPercent     *float64 `json:"buy_percent,omitempty"`
	SellPercent    *float64 `json:"sell_percent,omitempty"`
}

type BacktestResponse struct {
	ID     string             `json:"id"`
	Report performance.Report `json:"report"`
}

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"service":   ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   ServiceVersion,
	})
}

// GetSignal handles POST /api/v1/strategy/signal requests
func (h *Handler) GetSignal(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var req SignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	t, err := h.validator.ValidateSignal(&req)
	if err != nil {
		h.handleError(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	candles, err := h.loadCandles(ctx, &req.MarketRequest)
	if err != nil {
		h.handleError(c, err)
		return
	}

	var entry *risk.EntryPosition
	if req.EntryPrice != nil {
		entry = &risk.EntryPosition{EntryPrice: *req.EntryPrice}
	}

	analysis, err := h.service.GetSignal(candles, t, req.StrategyParams, entry)
	if err != nil {
		h.handleError(c, err)
		return
	}

	resp := SignalResponse{Analysis: analysis}
	last := candles[len(candles)-1]
	id, err := h.storage.SaveSignal(ctx, db.SignalRecord{
		Symbol:     firstNonEmpty(req.Symbol, last.Symbol),
		Timeframe:  firstNonEmpty(req.Timeframe, last.Timeframe),
		Strategy:   t,
		Signal:     analysis.Signal,
		Reason:     analysis.Reason,
		SizingHint: analysis.SizingHint,
		Price:      last.Close,
		BarTime:    last.Timestamp,
	})
	if err != nil {
		h.logger.Warn("API | Failed to save signal", zap.Error(err))
	} else {
		resp.SignalID = id
	}

	c.JSON(http.StatusOK, resp)
}

// RunBacktest handles POST /api/v1/strategy/backtest requests
func (h *Handler) RunBacktest(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	t, bp, err := h.validator.ValidateBacktest(&req)
	if err != nil {
		h.handleError(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	candles, err := h.loadCandles(ctx, &req.MarketRequest)
	if err != nil {
		h.handleError(c, err)
		return
	}

	report, err := h.service.RunBacktest(candles, t, req.StrategyParams, bp)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if err := ctx.Err(); err != nil {
		h.handleError(c, err)
		return
	}

	meta := db.ReportMeta{Symbol: req.Symbol, Timeframe: req.Timeframe}
	if len(candles) > 0 {
		meta.Symbol = firstNonEmpty(meta.Symbol, candles[0].Symbol)
		meta.Timeframe = firstNonEmpty(meta.Timeframe, candles[0].Timeframe)
	}
	if err := h.storage.SaveBacktestReport(ctx, meta, report); err != nil {
		h.handleError(c, fmt.Errorf("save report: %w", err))
		return
	}

	c.JSON(http.StatusOK, BacktestResponse{ID: report.RunID, Report: report})
}

// GetBacktest handles GET /api/v1/backtests/:id requests
func (h *Handler) GetBacktest(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	id := sanitizeInput(c.Param("id"))
	report, err := h.storage.GetBacktestReport(ctx, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, BacktestResponse{ID: id, Report: *report})
}

func (h *Handler) loadCandles(ctx context.Context, req *MarketRequest) ([]candle.Candle, error) {
	if len(req.Candles) > 0 {
		return req.Candles, nil
	}

	var start, end time.Time
	if req.Start != nil {
		start = *req.Start
	}
	if req.End != nil {
		end = *req.End
	}
	candles, err := h.storage.GetCandles(ctx, req.Symbol, req.Timeframe, "", start, end)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no candles stored for %s %s", db.ErrNotFound, req.Symbol, req.Timeframe)
	}
	return candles, nil
}

// handleError maps err to a status code, logs it and writes the response.
func (h *Handler) handleError(c *gin.Context, err error) {
	status, message := http.StatusInternalServerError, "Internal server error"
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, service.ErrInvalidRequest):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, db.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		status, message = http.StatusGatewayTimeout, "Request timed out"
	}

	requestID := c.GetString(RequestIDContextKey)
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status_code", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("API | Request failed", fields...)
	} else {
		h.logger.Warn("API | Request rejected", fields...)
	}

	c.JSON(status, gin.H{
		"error":      message,
		"request_id": requestID,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
