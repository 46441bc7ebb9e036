// mockbackend is a development stand-in for the real trading backend. It
// serves the full API surface the dashboard consumes, with chart and market
// data pulled live from Binance public endpoints when reachable and
// synthesized otherwise. Latency and failure injection flags exist to
// exercise the dashboard's reconnect behavior.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"degen-dashboard-go/internal/logger"
	"degen-dashboard-go/internal/models"

	"github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
)

const (
	klineCacheTTL = 30 * time.Second
	klineLimit    = 120
)

var marketWatchlist = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

func main() {
	listenAddr := flag.String("listen", ":8000", "address to serve on")
	latency := flag.Duration("latency", 0, "artificial delay added to every response")
	failRate := flag.Float64("fail-rate", 0, "probability (0..1) of answering 503")
	flag.Parse()

	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})
	defer logger.S().Sync()

	srv := newMockServer(*latency, *failRate)
	httpSrv := &http.Server{
		Addr:    *listenAddr,
		Handler: srv.routes(),
	}

	go func() {
		logger.S().Infof("mock backend listening on %s (latency=%s fail-rate=%.2f)",
			*listenAddr, *latency, *failRate)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.S().Fatalf("mock backend exited: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.S().Warnf("shutdown timed out: %v", err)
	}
	logger.S().Info("mock backend stopped")
}

type mockServer struct {
	latency  time.Duration
	failRate float64
	binance  *binance.Client

	mu       sync.Mutex
	running  map[int64]bool
	klines   map[string][]models.Candle
	klinesAt map[string]time.Time
}

func newMockServer(latency time.Duration, failRate float64) *mockServer {
	return &mockServer{
		latency:  latency,
		failRate: failRate,
		// Public market endpoints need no API key.
		binance:  binance.NewClient("", ""),
		running:  make(map[int64]bool),
		klines:   make(map[string][]models.Candle),
		klinesAt: make(map[string]time.Time),
	}
}

func (s *mockServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status/{id}", s.chaos(s.handleStatus))
	mux.HandleFunc("GET /positions/{id}", s.chaos(s.handlePositions))
	mux.HandleFunc("GET /portfolio/{id}", s.chaos(s.handlePortfolio))
	mux.HandleFunc("GET /trades/{id}", s.chaos(s.handleTrades))
	mux.HandleFunc("GET /stats/{id}", s.chaos(s.handleStats))
	mux.HandleFunc("GET /market_data/{id}", s.chaos(s.handleMarketData))
	mux.HandleFunc("GET /chart/{symbol}", s.chaos(s.handleChart))
	mux.HandleFunc("POST /users/start/{id}", s.chaos(s.handleStart))
	mux.HandleFunc("POST /users/stop/{id}", s.chaos(s.handleStop))
	mux.HandleFunc("GET /auth/{provider}/url", s.chaos(s.handleAuthURL))
	mux.HandleFunc("GET /auth/{provider}/callback", s.chaos(s.handleAuthCallback))
	mux.HandleFunc("POST /settings/keys", s.chaos(s.handleKeys))
	return mux
}

// chaos applies the configured latency and failure injection before the
// real handler runs.
func (s *mockServer) chaos(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.latency > 0 {
			time.Sleep(s.latency)
		}
		if s.failRate > 0 && rand.Float64() < s.failRate {
			writeJSON(w, http.StatusServiceUnavailable, models.APIError{Code: 9, Msg: "simulated outage"})
			return
		}
		next(w, r)
	}
}

func (s *mockServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID := pathID(r)
	s.mu.Lock()
	running := s.running[userID]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, models.BotStatus{IsRunning: running})
}

func (s *mockServer) handleStart(w http.ResponseWriter, r *http.Request) {
	userID := pathID(r)
	s.mu.Lock()
	s.running[userID] = true
	s.mu.Unlock()
	logger.S().Infof("bot started for user %d", userID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *mockServer) handleStop(w http.ResponseWriter, r *http.Request) {
	userID := pathID(r)
	s.mu.Lock()
	s.running[userID] = false
	s.mu.Unlock()
	logger.S().Infof("bot stopped for user %d", userID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *mockServer) handlePositions(w http.ResponseWriter, r *http.Request) {
	solPrice := s.latestClose("SOLUSDT", "1h", 150)
	writeJSON(w, http.StatusOK, []models.Position{
		{
			Symbol:        "SOLUSDT",
			AssetType:     "crypto",
			Amount:        12.5,
			EntryPrice:    142.8,
			CurrentPrice:  solPrice,
			UnrealizedPnl: (solPrice - 142.8) * 12.5,
		},
		{
			Symbol:        "AAPL",
			AssetType:     "stock",
			Amount:        10,
			EntryPrice:    228.4,
			CurrentPrice:  231.1,
			UnrealizedPnl: (231.1 - 228.4) * 10,
		},
	})
}

func (s *mockServer) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	solPrice := s.latestClose("SOLUSDT", "1h", 150)
	positionValue := solPrice*12.5 + 231.1*10
	writeJSON(w, http.StatusOK, models.Portfolio{
		TotalValue:    5000 + positionValue,
		CashBalance:   5000,
		PositionValue: positionValue,
		DailyPnl:      87.5,
		TotalPnl:      412.9,
	})
}

func (s *mockServer) handleTrades(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	writeJSON(w, http.StatusOK, []models.Trade{
		{ID: 3, Symbol: "SOLUSDT", Side: "buy", AssetType: "crypto", Amount: 5, Price: 148.2, Cost: 741, Timestamp: now.Add(-25 * time.Minute)},
		{ID: 2, Symbol: "AAPL", Side: "sell", AssetType: "stock", Amount: 4, Price: 230.7, Cost: 922.8, Timestamp: now.Add(-2 * time.Hour)},
		{ID: 1, Symbol: "SOLUSDT", Side: "buy", AssetType: "crypto", Amount: 7.5, Price: 139.1, Cost: 1043.25, Timestamp: now.Add(-26 * time.Hour)},
	})
}

func (s *mockServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.TradeStats{
		TotalTrades:   48,
		WinningTrades: 29,
		LosingTrades:  19,
		WinRate:       60.4,
		TotalProfit:   412.9,
		AvgProfit:     8.6,
		MaxDrawdown:   6.8,
	})
}

func (s *mockServer) handleMarketData(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 4*time.Second)
	defer cancel()

	quotes := make([]models.MarketQuote, 0, len(marketWatchlist))
	for _, symbol := range marketWatchlist {
		stats, err := s.binance.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
		if err != nil || len(stats) == 0 {
			logger.S().Debugf("falling back to synthetic quote for %s: %v", symbol, err)
			quotes = append(quotes, syntheticQuote(symbol))
			continue
		}
		st := stats[0]
		quotes = append(quotes, models.MarketQuote{
			Symbol:       symbol,
			Price:        parseFloat(st.LastPrice),
			ChangePct24h: parseFloat(st.PriceChangePercent),
			High24h:      parseFloat(st.HighPrice),
			Low24h:       parseFloat(st.LowPrice),
			Volume24h:    parseFloat(st.Volume),
		})
	}
	writeJSON(w, http.StatusOK, quotes)
}

func (s *mockServer) handleChart(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = "1h"
	}

	candles := s.fetchKlines(r.Context(), symbol, timeframe)
	writeJSON(w, http.StatusOK, models.ChartData{
		Symbol:    symbol,
		Timeframe: timeframe,
		Candles:   candles,
	})
}

func (s *mockServer) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	writeJSON(w, http.StatusOK, models.AuthURLResponse{
		URL: fmt.Sprintf("https://%s.example/oauth/authorize?client_id=mock&state=%s", provider, uuid.NewString()),
	})
}

func (s *mockServer) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, models.APIError{Code: 4, Msg: "missing code"})
		return
	}
	writeJSON(w, http.StatusOK, models.AuthCallbackResponse{
		Token: uuid.NewString(),
		User: models.User{
			ID:        1,
			Username:  "dev",
			DiscordID: "990000000000000001",
			Avatar:    "",
		},
	})
}

func (s *mockServer) handleKeys(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID int64 `json:"user_id"`
		models.KeysSubmission
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, models.APIError{Code: 4, Msg: "invalid body"})
		return
	}
	logger.S().Infof("received %s keys for user %d", payload.Exchange, payload.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// fetchKlines returns recent candles from Binance, cached briefly so the
// dashboard's polling does not hammer the public API. Unknown symbols and
// network failures fall back to a synthetic series.
func (s *mockServer) fetchKlines(ctx context.Context, symbol, timeframe string) []models.Candle {
	key := symbol + "|" + timeframe

	s.mu.Lock()
	if cached, ok := s.klines[key]; ok && time.Since(s.klinesAt[key]) < klineCacheTTL {
		s.mu.Unlock()
		return cached
	}
	s.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()

	klines, err := s.binance.NewKlinesService().
		Symbol(symbol).
		Interval(binanceInterval(timeframe)).
		Limit(klineLimit).
		Do(fetchCtx)
	if err != nil || len(klines) == 0 {
		logger.S().Debugf("falling back to synthetic candles for %s %s: %v", symbol, timeframe, err)
		return syntheticCandles(symbol, timeframe)
	}

	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		candles = append(candles, models.Candle{
			OpenTime:  k.OpenTime,
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
			CloseTime: k.CloseTime,
		})
	}

	s.mu.Lock()
	s.klines[key] = candles
	s.klinesAt[key] = time.Now()
	s.mu.Unlock()
	return candles
}

// latestClose reports the most recent close for a symbol, or the given
// default when no data is available.
func (s *mockServer) latestClose(symbol, timeframe string, fallback float64) float64 {
	candles := s.fetchKlines(context.Background(), symbol, timeframe)
	if len(candles) == 0 {
		return fallback
	}
	return candles[len(candles)-1].Close
}

func binanceInterval(timeframe string) string {
	switch timeframe {
	case "1m", "5m", "15m", "30m", "1h", "4h", "1d", "1w":
		return timeframe
	default:
		return "1h"
	}
}

func syntheticQuote(symbol string) models.MarketQuote {
	base := basePrice(symbol)
	return models.MarketQuote{
		Symbol:       symbol,
		Price:        base,
		ChangePct24h: -1.5 + rand.Float64()*3,
		High24h:      base * 1.03,
		Low24h:       base * 0.97,
		Volume24h:    1_000_000 + rand.Float64()*500_000,
	}
}

// syntheticCandles produces a plausible random walk so the chart still
// renders when Binance is unreachable.
func syntheticCandles(symbol, timeframe string) []models.Candle {
	step := timeframeDuration(timeframe)
	price := basePrice(symbol)
	now := time.Now().Truncate(step)

	candles := make([]models.Candle, 0, klineLimit)
	for i := klineLimit - 1; i >= 0; i-- {
		openTime := now.Add(-time.Duration(i) * step)
		open := price
		drift := price * (rand.Float64() - 0.5) * 0.01
		closePrice := price + drift
		high := math.Max(open, closePrice) * (1 + rand.Float64()*0.003)
		low := math.Min(open, closePrice) * (1 - rand.Float64()*0.003)

		candles = append(candles, models.Candle{
			OpenTime:  openTime.UnixMilli(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    500 + rand.Float64()*1500,
			CloseTime: openTime.Add(step).UnixMilli() - 1,
		})
		price = closePrice
	}
	return candles
}

func timeframeDuration(timeframe string) time.Duration {
	switch timeframe {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}

func basePrice(symbol string) float64 {
	switch symbol {
	case "BTCUSDT":
		return 64000
	case "ETHUSDT":
		return 3100
	case "SOLUSDT":
		return 150
	default:
		return 100
	}
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.S().Warnf("failed to encode response: %v", err)
	}
}
