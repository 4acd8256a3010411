package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/signal-trader/internal/backtest"
	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/db"
	"github.com/amirphl/signal-trader/internal/performance"
	"github.com/amirphl/signal-trader/internal/risk"
	"github.com/amirphl/signal-trader/internal/service"
	"github.com/amirphl/signal-trader/internal/strategy"
	"github.com/amirphl/signal-trader/internal/tfutils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockSignalService implements SignalService for testing
type MockSignalService struct {
	mock.Mock
}

func (m *MockSignalService) GetSignal(candles []candle.Candle, t strategy.Type, params strategy.Params, entry *risk.EntryPosition) (strategy.Analysis, error) {
	args := m.Called(candles, t, params, entry)
	return args.Get(0).(strategy.Analysis), args.Error(1)
}

func (m *MockSignalService) RunBacktest(candles []candle.Candle, t strategy.Type, params strategy.Params, bp backtest.Params) (performance.Report, error) {
	args := m.Called(candles, t, params, bp)
	return args.Get(0).(performance.Report), args.Error(1)
}

func createTestCandles(count int) []candle.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]candle.Candle, count)
	for i := range out {
		price := 100 + 20*math.Sin(float64(i)/5)
		out[i] = candle.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    10,
			Symbol:    "BTCUSDT",
			Timeframe: "1h",
		}
	}
	return out
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func newRealRouter(storage db.Storage) *gin.Engine {
	svc := service.New(nil, nil, service.DefaultOptions())
	return NewHandler(svc, storage, nil, time.Second).SetupRoutes()
}

func TestHealthCheck(t *testing.T) {
	router := newRealRouter(db.NewMemory())
	w := doJSON(t, router, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeaderKey))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, ServiceName, body["service"])
}

func TestGetSignal_InlineCandles(t *testing.T) {
	storage := db.NewMemory()
	router := newRealRouter(storage)

	w := doJSON(t, router, http.MethodPost, "/api/v1/strategy/signal", map[string]any{
		"strategy_type": "rsi",
		"candles":       createTestCandles(80),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp SignalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, []strategy.Signal{strategy.Buy, strategy.Sell, strategy.Hold}, resp.Signal)
	assert.Equal(t, int64(1), resp.SignalID)

	signals := storage.Signals()
	require.Len(t, signals, 1)
	assert.Equal(t, "BTCUSDT", signals[0].Symbol)
	assert.Equal(t, strategy.TypeRSI, signals[0].Strategy)
}

func TestGetSignal_StoredCandlesAndRiskExit(t *testing.T) {
	storage := db.NewMemory()
	candles := createTestCandles(80)
	require.NoError(t, storage.SaveCandles(context.Background(), candles))
	router := newRealRouter(storage)

	entry := candles[len(candles)-1].Close * 2
	w := doJSON(t, router, http.MethodPost, "/api/v1/strategy/signal", map[string]any{
		"strategy_type":   "RSI",
		"strategy_params": map[string]any{"stop_loss_pct": 10},
		"symbol":          "BTCUSDT",
		"timeframe":       "1h",
		"entry_price":     entry,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp SignalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, strategy.Sell, resp.Signal)
	assert.Contains(t, resp.Reason, "stop loss")
	require.NotNil(t, resp.SizingHint)
	assert.Equal(t, service.FullExitSizing, *resp.SizingHint)
}

func TestGetSignal_BadRequests(t *testing.T) {
	router := newRealRouter(db.NewMemory())

	dup := createTestCandles(80)
	dup[40].Timestamp = dup[39].Timestamp

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"malformed json", "not an object", http.StatusBadRequest},
		{"unknown strategy", map[string]any{"strategy_type": "SMA", "candles": createTestCandles(80)}, http.StatusBadRequest},
		{"missing symbol", map[string]any{"strategy_type": "RSI"}, http.StatusBadRequest},
		{"bad timeframe", map[string]any{"strategy_type": "RSI", "symbol": "BTCUSDT", "timeframe": "2h"}, http.StatusBadRequest},
		{"bad entry", map[string]any{"strategy_type": "RSI", "candles": createTestCandles(80), "entry_price": -1}, http.StatusBadRequest},
		{"short history", map[string]any{"strategy_type": "RSI", "candles": createTestCandles(10)}, http.StatusBadRequest},
		{"duplicate timestamps", map[string]any{"strategy_type": "RSI", "candles": dup}, http.StatusBadRequest},
		{"nothing stored", map[string]any{"strategy_type": "RSI", "symbol": "ETHUSDT", "timeframe": "1h"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/v1/strategy/signal", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
			assert.NotEmpty(t, body["request_id"])
		})
	}
}

func TestValidateMarket_Timeframe(t *testing.T) {
	v := GetValidator()

	typ, err := v.ValidateMarket(&MarketRequest{StrategyType: "rsi", Symbol: "BTCUSDT", Timeframe: " 4h "})
	require.NoError(t, err)
	assert.Equal(t, strategy.TypeRSI, typ)

	_, err = v.ValidateMarket(&MarketRequest{StrategyType: "RSI", Symbol: "BTCUSDT", Timeframe: "2h"})
	assert.ErrorIs(t, err, tfutils.ErrUnsupportedTimeframe)
	assert.Contains(t, err.Error(), "1m, 5m")
}

func TestBacktest_RunAndFetch(t *testing.T) {
	storage := db.NewMemory()
	router := newRealRouter(storage)

	w := doJSON(t, router, http.MethodPost, "/api/v1/strategy/backtest", map[string]any{
		"strategy_type":   "PROFITABLE",
		"candles":         createTestCandles(200),
		"initial_cash":    1_000_000,
		"commission_rate": 0,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var created BacktestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, 1_000_000.0, created.Report.InitialValue)
	assert.Len(t, created.Report.EquityCurve, 200)

	w = doJSON(t, router, http.MethodGet, "/api/v1/backtests/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var fetched BacktestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, created.Report.FinalValue, fetched.Report.FinalValue)
	assert.Equal(t, created.Report.TradeCount, fetched.Report.TradeCount)

	w = doJSON(t, router, http.MethodGet, "/api/v1/backtests/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBacktest_ParamsForwarded(t *testing.T) {
	svc := new(MockSignalService)
	router := NewHandler(svc, db.NewMemory(), nil, time.Second).SetupRoutes()
	candles := createTestCandles(60)

	want := backtest.DefaultParams()
	want.BuyPercent = 50
	report := performance.Report{RunID: "run-1", Strategy: strategy.TypeQullaMaggie}
	svc.On("RunBacktest", mock.Anything, strategy.TypeQullaMaggie, mock.Anything, want).Return(report, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/strategy/backtest", map[string]any{
		"strategy_type": "qulla_maggie",
		"candles":       candles,
		"buy_percent":   50,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	svc.AssertExpectations(t)
}

func TestBacktest_InvalidParams(t *testing.T) {
	svc := new(MockSignalService)
	router := NewHandler(svc, db.NewMemory(), nil, time.Second).SetupRoutes()

	for _, body := range []map[string]any{
		{"strategy_type": "RSI", "candles": createTestCandles(60), "buy_percent": 0},
		{"strategy_type": "RSI", "candles": createTestCandles(60), "sell_percent": 101},
		{"strategy_type": "RSI", "candles": createTestCandles(60), "commission_rate": 1},
		{"strategy_type": "RSI", "candles": createTestCandles(60), "initial_cash": -5},
	} {
		w := doJSON(t, router, http.MethodPost, "/api/v1/strategy/backtest", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	}
	svc.AssertNotCalled(t, "RunBacktest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCORSPreflight(t *testing.T) {
	router := newRealRouter(db.NewMemory())
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/strategy/signal", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestServe_Shutdown(t *testing.T) {
	h := NewHandler(new(MockSignalService), db.NewMemory(), nil, time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
