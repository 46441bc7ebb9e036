package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"degen-dashboard-go/internal/control"
	"degen-dashboard-go/internal/endpoint"
	"degen-dashboard-go/internal/models"
	"degen-dashboard-go/internal/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// backendStub is an httptest server covering the whole backend surface the
// dashboard consumes. Failures can be injected globally or per path prefix.
type backendStub struct {
	srv *httptest.Server

	mu          sync.Mutex
	failAll     bool
	failPrefix  string
	blockPrefix string
	blockGate   chan struct{}
	isRunning   bool
	hits        int
	statusHits  int
	starts      int
	stops       int
}

func newBackendStub() *backendStub {
	s := &backendStub{}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

func (s *backendStub) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = fail
}

func (s *backendStub) setFailPrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPrefix = prefix
}

// setBlockPrefix makes requests under prefix hang until gate is closed.
func (s *backendStub) setBlockPrefix(prefix string, gate chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockPrefix = prefix
	s.blockGate = gate
}

func (s *backendStub) counts() (hits, starts, stops int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits, s.starts, s.stops
}

func (s *backendStub) statusCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusHits
}

func (s *backendStub) serve(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	s.mu.Lock()
	s.hits++
	if strings.HasPrefix(path, "/status/") {
		s.statusHits++
	}
	failing := s.failAll || (s.failPrefix != "" && strings.HasPrefix(path, s.failPrefix))
	if !failing {
		switch {
		case strings.HasPrefix(path, "/users/start/"):
			s.starts++
			s.isRunning = true
		case strings.HasPrefix(path, "/users/stop/"):
			s.stops++
			s.isRunning = false
		}
	}
	running := s.isRunning
	gate := s.blockGate
	blocked := s.blockPrefix != "" && strings.HasPrefix(path, s.blockPrefix)
	s.mu.Unlock()

	if blocked && gate != nil {
		<-gate
	}

	w.Header().Set("Content-Type", "application/json")
	if failing {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(models.APIError{Code: 9, Msg: "backend down"})
		return
	}

	switch {
	case strings.HasPrefix(path, "/status/"):
		json.NewEncoder(w).Encode(models.BotStatus{IsRunning: running})
	case strings.HasPrefix(path, "/positions/"):
		json.NewEncoder(w).Encode([]models.Position{
			{Symbol: "SOLUSDT", AssetType: "crypto", Amount: 2, EntryPrice: 150, CurrentPrice: 160, UnrealizedPnl: 20},
		})
	case strings.HasPrefix(path, "/portfolio/"):
		json.NewEncoder(w).Encode(models.Portfolio{TotalValue: 1000, CashBalance: 680, PositionValue: 320, DailyPnl: 12, TotalPnl: 88})
	case strings.HasPrefix(path, "/trades/"):
		json.NewEncoder(w).Encode([]models.Trade{
			{ID: 1, Symbol: "SOLUSDT", Side: "buy", AssetType: "crypto", Amount: 2, Price: 150, Cost: 300, Timestamp: time.Now()},
		})
	case strings.HasPrefix(path, "/stats/"):
		json.NewEncoder(w).Encode(models.TradeStats{TotalTrades: 4, WinningTrades: 3, LosingTrades: 1, WinRate: 75})
	case strings.HasPrefix(path, "/market_data/"):
		json.NewEncoder(w).Encode([]models.MarketQuote{{Symbol: "SOLUSDT", Price: 160, ChangePct24h: 2.5}})
	case strings.HasPrefix(path, "/chart/"):
		json.NewEncoder(w).Encode(models.ChartData{
			Symbol:    strings.TrimPrefix(path, "/chart/"),
			Timeframe: r.URL.Query().Get("timeframe"),
			Candles:   []models.Candle{{OpenTime: 1700000000000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100}},
		})
	case strings.HasPrefix(path, "/users/start/"), strings.HasPrefix(path, "/users/stop/"):
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	case strings.HasPrefix(path, "/auth/") && strings.HasSuffix(path, "/url"):
		json.NewEncoder(w).Encode(models.AuthURLResponse{URL: "https://discord.example/oauth"})
	case strings.HasPrefix(path, "/auth/") && strings.HasSuffix(path, "/callback"):
		json.NewEncoder(w).Encode(models.AuthCallbackResponse{
			Token: "tok-1",
			User:  models.User{ID: 7, Username: "degen", DiscordID: "discord-7"},
		})
	case path == "/settings/keys":
		json.NewEncoder(w).Encode(map[string]string{"status": "saved"})
	default:
		http.NotFound(w, r)
	}
}

func testConfig(stub *backendStub, dbPath string) *models.Config {
	return &models.Config{
		DBPath:             dbPath,
		FallbackBackendURL: stub.srv.URL,
		PollIntervalSec:    1,
		ProbeTimeoutSec:    2,
		FetchTimeoutSec:    2,
		FailureThreshold:   3,
		ControlSettleMs:    20,
		DefaultSymbol:      "SOLUSDT",
		DefaultTimeframe:   "1h",
	}
}

// newTestApp wires a full App against the stub. The env override pins the
// resolver to the stub so the host heuristic never interferes.
func newTestApp(t *testing.T, stub *backendStub) *App {
	t.Helper()
	t.Setenv(endpoint.EnvBackendURL, stub.srv.URL)

	cfg := testConfig(stub, filepath.Join(t.TempDir(), "db"))
	store, err := settings.NewBadgerStore(cfg.DBPath)
	require.NoError(t, err)

	app := NewApp(cfg, store, zap.NewNop())
	t.Cleanup(func() {
		app.Close()
		require.NoError(t, store.Close())
		stub.srv.Close()
	})
	return app
}

func login(t *testing.T, app *App) *models.Session {
	t.Helper()
	logged, err := app.CompleteLogin(context.Background(), "discord", "test-code")
	require.NoError(t, err)
	return logged
}

func waitForFullView(t *testing.T, app *App) {
	t.Helper()
	require.Eventually(t, func() bool {
		o := app.Overview()
		return o.Link.State == models.LinkUp && o.View.Portfolio != nil && o.View.Chart != nil
	}, 3*time.Second, 20*time.Millisecond)
}

func TestStartWithoutStoredSessionStaysIdle(t *testing.T) {
	stub := newBackendStub()
	app := newTestApp(t, stub)

	require.NoError(t, app.Start())
	time.Sleep(150 * time.Millisecond)

	hits, _, _ := stub.counts()
	assert.Zero(t, hits)

	o := app.Overview()
	assert.False(t, o.LoggedIn)
	assert.Equal(t, models.LinkUnknown, o.Link.State)
	assert.False(t, o.Bot.Known)
}

func TestLoginStartsPollingImmediately(t *testing.T) {
	stub := newBackendStub()
	app := newTestApp(t, stub)

	logged := login(t, app)
	assert.Equal(t, "degen", logged.User.Username)

	o := app.Overview()
	assert.True(t, o.LoggedIn)
	require.NotNil(t, o.User)
	assert.Equal(t, int64(7), o.User.ID)

	waitForFullView(t, app)

	o = app.Overview()
	assert.True(t, o.Bot.Known)
	assert.False(t, o.Bot.IsRunning)
	assert.Len(t, o.View.Positions, 1)
	assert.Equal(t, "SOLUSDT", o.View.Chart.Symbol)
	assert.Equal(t, "1h", o.View.Chart.Timeframe)
}

func TestSessionResumesAcrossRestart(t *testing.T) {
	stub := newBackendStub()
	defer stub.srv.Close()
	t.Setenv(endpoint.EnvBackendURL, stub.srv.URL)

	dbPath := filepath.Join(t.TempDir(), "db")
	cfg := testConfig(stub, dbPath)

	store1, err := settings.NewBadgerStore(dbPath)
	require.NoError(t, err)
	app1 := NewApp(cfg, store1, zap.NewNop())
	login(t, app1)
	app1.Close()
	require.NoError(t, store1.Close())

	store2, err := settings.NewBadgerStore(dbPath)
	require.NoError(t, err)
	app2 := NewApp(cfg, store2, zap.NewNop())
	defer func() {
		app2.Close()
		require.NoError(t, store2.Close())
	}()

	require.NoError(t, app2.Start())

	o := app2.Overview()
	assert.True(t, o.LoggedIn)
	require.NotNil(t, o.User)
	assert.Equal(t, int64(7), o.User.ID)

	waitForFullView(t, app2)
}

func TestLinkDownKeepsLastViewAndRecovers(t *testing.T) {
	stub := newBackendStub()
	app := newTestApp(t, stub)
	login(t, app)
	waitForFullView(t, app)

	stub.setFail(true)
	require.Eventually(t, func() bool {
		app.RefreshNow()
		return app.Overview().Link.State == models.LinkDown
	}, 5*time.Second, 30*time.Millisecond)

	o := app.Overview()
	require.NotNil(t, o.View.Portfolio, "last known view should survive an outage")
	assert.True(t, o.Bot.Known)
	assert.GreaterOrEqual(t, o.Link.ConsecutiveFailures, 3)

	stub.setFail(false)
	require.Eventually(t, func() bool {
		app.RefreshNow()
		return app.Overview().Link.State == models.LinkUp
	}, 5*time.Second, 30*time.Millisecond)
	assert.Zero(t, app.Overview().Link.ConsecutiveFailures)
}

func TestPartialBackendFailureMarksStale(t *testing.T) {
	stub := newBackendStub()
	app := newTestApp(t, stub)
	login(t, app)
	waitForFullView(t, app)

	stub.setFailPrefix("/trades/")
	require.Eventually(t, func() bool {
		app.RefreshNow()
		st, ok := app.Overview().View.Statuses[models.ResourceTrades]
		return ok && st.Stale
	}, 5*time.Second, 30*time.Millisecond)

	o := app.Overview()
	assert.NotEmpty(t, o.View.Trades, "previous trades should still be shown")
	assert.Equal(t, models.LinkUp, o.Link.State, "one broken resource must not down the link")
	assert.False(t, o.View.Statuses[models.ResourcePortfolio].Stale)
}

// TestSlowFetchDoesNotStallHeartbeat parks one resource fetch indefinitely
// and verifies probes and the other resources keep moving on schedule; the
// stuck fetch delays only its own result.
func TestSlowFetchDoesNotStallHeartbeat(t *testing.T) {
	stub := newBackendStub()
	defer stub.srv.Close()
	t.Setenv(endpoint.EnvBackendURL, stub.srv.URL)

	gate := make(chan struct{})
	defer close(gate)
	stub.setBlockPrefix("/positions/", gate)

	cfg := testConfig(stub, filepath.Join(t.TempDir(), "db"))
	cfg.FetchTimeoutSec = 30

	store, err := settings.NewBadgerStore(cfg.DBPath)
	require.NoError(t, err)
	app := NewApp(cfg, store, zap.NewNop())
	defer func() {
		app.Close()
		require.NoError(t, store.Close())
	}()

	login(t, app)

	require.Eventually(t, func() bool {
		app.RefreshNow()
		o := app.Overview()
		return stub.statusCount() >= 3 && o.View.Portfolio != nil
	}, 5*time.Second, 30*time.Millisecond,
		"probes and healthy resources must not wait for the parked fetch")

	assert.Nil(t, app.Overview().View.Positions, "the parked fetch cannot have landed yet")
}

func TestLogoutStopsPollingAndClearsView(t *testing.T) {
	stub := newBackendStub()
	app := newTestApp(t, stub)
	login(t, app)
	waitForFullView(t, app)

	require.NoError(t, app.Logout())

	o := app.Overview()
	assert.False(t, o.LoggedIn)
	assert.Nil(t, o.User)
	assert.Nil(t, o.View.Portfolio)
	assert.False(t, o.Bot.Known)
	assert.Equal(t, models.LinkUnknown, o.Link.State)

	hitsBefore, _, _ := stub.counts()
	time.Sleep(1200 * time.Millisecond)
	hitsAfter, _, _ := stub.counts()
	assert.Equal(t, hitsBefore, hitsAfter, "no backend traffic after logout")
}

func TestToggleStartsBotThroughBackend(t *testing.T) {
	stub := newBackendStub()
	app := newTestApp(t, stub)
	login(t, app)
	waitForFullView(t, app)

	action, err := app.Toggle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, control.ActionStart, action)

	_, starts, stops := stub.counts()
	assert.Equal(t, 1, starts)
	assert.Zero(t, stops)

	// The settle refresh picks up the new run state.
	require.Eventually(t, func() bool {
		return app.Overview().Bot.IsRunning
	}, 3*time.Second, 20*time.Millisecond)

	action, err = app.Toggle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, control.ActionStop, action)

	_, _, stops = stub.counts()
	assert.Equal(t, 1, stops)
}

func TestToggleWithoutLoginIsNotReady(t *testing.T) {
	stub := newBackendStub()
	app := newTestApp(t, stub)

	_, err := app.Toggle(context.Background())
	assert.ErrorIs(t, err, control.ErrNotReady)

	hits, _, _ := stub.counts()
	assert.Zero(t, hits)
}

func TestSetWatchSwitchesChartAndPersists(t *testing.T) {
	stub := newBackendStub()
	app := newTestApp(t, stub)
	login(t, app)
	waitForFullView(t, app)

	require.NoError(t, app.SetWatch(models.Watch{Symbol: "ETHUSDT", Timeframe: "4h"}))

	require.Eventually(t, func() bool {
		chart := app.Overview().View.Chart
		return chart != nil && chart.Symbol == "ETHUSDT" && chart.Timeframe == "4h"
	}, 3*time.Second, 20*time.Millisecond)

	saved, err := app.store.LoadWatch()
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, models.Watch{Symbol: "ETHUSDT", Timeframe: "4h"}, *saved)
}

func TestPinEndpointRedirectsTraffic(t *testing.T) {
	stubA := newBackendStub()
	stubB := newBackendStub()
	t.Cleanup(stubB.srv.Close)

	app := newTestApp(t, stubA)
	login(t, app)
	waitForFullView(t, app)

	require.NoError(t, app.PinEndpoint(stubB.srv.URL))
	assert.Equal(t, stubB.srv.URL, app.client.BaseURL())

	require.Eventually(t, func() bool {
		hits, _, _ := stubB.counts()
		return hits > 0
	}, 3*time.Second, 20*time.Millisecond)

	// Clearing the pin falls back to the env override, which points at A.
	require.NoError(t, app.UnpinEndpoint())
	assert.Equal(t, stubA.srv.URL, app.client.BaseURL())
}
