package viewstate

import (
	"sync"
	"time"

	"degen-dashboard-go/internal/models"

	"go.uber.org/zap"
)

// ResourceStatus records how the last fetch of one resource went.
// Stale means the most recent attempt failed and the view is holding on to
// the previous value.
type ResourceStatus struct {
	Stale       bool      `json:"stale"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// View is everything the synchronizer maintains for rendering: the last
// good value per resource, the per-resource status, and the chart watch.
type View struct {
	Positions []models.Position                  `json:"positions"`
	Portfolio *models.Portfolio                  `json:"portfolio"`
	Trades    []models.Trade                     `json:"trades"`
	Stats     *models.TradeStats                 `json:"stats"`
	Market    []models.MarketQuote               `json:"market"`
	Chart     *models.ChartData                  `json:"chart"`
	Watch     models.Watch                       `json:"watch"`
	Statuses  map[models.Resource]ResourceStatus `json:"resource_status"`
}

// Manager guards the view behind a mutex. Appliers land fetch results one
// resource at a time, so concurrent and overlapping ticks settle to
// last-writer-wins per resource without ever mixing resources.
type Manager struct {
	mu     sync.RWMutex
	view   View
	logger *zap.Logger
	nowFn  func() time.Time
}

// NewManager creates a view manager with the given initial chart watch.
func NewManager(defaultWatch models.Watch, logger *zap.Logger) *Manager {
	return &Manager{
		view: View{
			Watch:    defaultWatch,
			Statuses: make(map[models.Resource]ResourceStatus),
		},
		logger: logger,
		nowFn:  time.Now,
	}
}

// Snapshot returns a deep copy of the view, safe for the caller to hold
// while appliers keep running.
func (m *Manager) Snapshot() *View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view.deepCopy()
}

// Watch returns the current chart symbol and timeframe.
func (m *Manager) Watch() models.Watch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view.Watch
}

// SetWatch switches the chart selection. Any chart fetch still in flight
// for the previous selection will be discarded when it lands.
func (m *Manager) SetWatch(watch models.Watch) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.view.Watch == watch {
		return
	}
	m.view.Watch = watch
	// The old series belongs to the old selection; drop it rather than
	// rendering symbol A's candles under symbol B's header.
	m.view.Chart = nil
	delete(m.view.Statuses, models.ResourceChart)
}

// ApplyPositions lands a positions fetch result.
func (m *Manager) ApplyPositions(positions []models.Position, fetchErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail(models.ResourcePositions, fetchErr) {
		return
	}
	m.view.Positions = positions
	m.ok(models.ResourcePositions)
}

// ApplyPortfolio lands a portfolio fetch result.
func (m *Manager) ApplyPortfolio(portfolio *models.Portfolio, fetchErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail(models.ResourcePortfolio, fetchErr) {
		return
	}
	m.view.Portfolio = portfolio
	m.ok(models.ResourcePortfolio)
}

// ApplyTrades lands a trade-log fetch result.
func (m *Manager) ApplyTrades(trades []models.Trade, fetchErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail(models.ResourceTrades, fetchErr) {
		return
	}
	m.view.Trades = trades
	m.ok(models.ResourceTrades)
}

// ApplyStats lands a stats fetch result.
func (m *Manager) ApplyStats(stats *models.TradeStats, fetchErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail(models.ResourceStats, fetchErr) {
		return
	}
	m.view.Stats = stats
	m.ok(models.ResourceStats)
}

// ApplyMarket lands a watchlist fetch result.
func (m *Manager) ApplyMarket(quotes []models.MarketQuote, fetchErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail(models.ResourceMarket, fetchErr) {
		return
	}
	m.view.Market = quotes
	m.ok(models.ResourceMarket)
}

// ApplyChart lands a chart fetch result. requested is the watch the fetch
// was issued for; when it no longer matches the current watch the result is
// discarded outright, success or not. Returns whether the result was applied.
func (m *Manager) ApplyChart(requested models.Watch, chart *models.ChartData, fetchErr error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if requested != m.view.Watch {
		m.logger.Debug("discarding chart response for a stale watch",
			zap.String("requested_symbol", requested.Symbol),
			zap.String("requested_timeframe", requested.Timeframe),
			zap.String("current_symbol", m.view.Watch.Symbol),
			zap.String("current_timeframe", m.view.Watch.Timeframe))
		return false
	}

	if m.fail(models.ResourceChart, fetchErr) {
		return true
	}
	m.view.Chart = chart
	m.ok(models.ResourceChart)
	return true
}

// Clear wipes all resource values and statuses, keeping only the watch.
// Called on logout so one user's data never shows under the next session.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	watch := m.view.Watch
	m.view = View{
		Watch:    watch,
		Statuses: make(map[models.Resource]ResourceStatus),
	}
}

// fail marks the resource stale and reports whether fetchErr was non-nil.
// The previous value stays untouched. Caller must hold m.mu.
func (m *Manager) fail(resource models.Resource, fetchErr error) bool {
	if fetchErr == nil {
		return false
	}

	status := m.view.Statuses[resource]
	status.Stale = true
	status.LastError = fetchErr.Error()
	m.view.Statuses[resource] = status

	m.logger.Debug("resource fetch failed, keeping previous value",
		zap.String("resource", string(resource)),
		zap.Error(fetchErr))
	return true
}

// ok records a fresh value for the resource. Caller must hold m.mu.
func (m *Manager) ok(resource models.Resource) {
	m.view.Statuses[resource] = ResourceStatus{
		Stale:       false,
		LastUpdated: m.nowFn(),
	}
}

// deepCopy duplicates the view including all slices, nested structs and the
// status map.
func (v *View) deepCopy() *View {
	copied := *v

	if v.Positions != nil {
		copied.Positions = make([]models.Position, len(v.Positions))
		copy(copied.Positions, v.Positions)
	}
	if v.Trades != nil {
		copied.Trades = make([]models.Trade, len(v.Trades))
		copy(copied.Trades, v.Trades)
	}
	if v.Market != nil {
		copied.Market = make([]models.MarketQuote, len(v.Market))
		copy(copied.Market, v.Market)
	}
	if v.Portfolio != nil {
		portfolio := *v.Portfolio
		copied.Portfolio = &portfolio
	}
	if v.Stats != nil {
		stats := *v.Stats
		copied.Stats = &stats
	}
	if v.Chart != nil {
		chart := *v.Chart
		if v.Chart.Candles != nil {
			chart.Candles = make([]models.Candle, len(v.Chart.Candles))
			copy(chart.Candles, v.Chart.Candles)
		}
		copied.Chart = &chart
	}

	copied.Statuses = make(map[models.Resource]ResourceStatus, len(v.Statuses))
	for resource, status := range v.Statuses {
		copied.Statuses[resource] = status
	}

	return &copied
}
