package viewstate

import (
	"context"
	"sync"
	"time"

	"degen-dashboard-go/internal/models"

	"go.uber.org/zap"
)

// Fetcher is the slice of the backend the synchronizer needs: one fetch
// per tracked resource.
type Fetcher interface {
	Positions(ctx context.Context, userID int64) ([]models.Position, error)
	Portfolio(ctx context.Context, userID int64) (*models.Portfolio, error)
	Trades(ctx context.Context, userID int64) ([]models.Trade, error)
	Stats(ctx context.Context, userID int64) (*models.TradeStats, error)
	MarketData(ctx context.Context, userID int64) ([]models.MarketQuote, error)
	Chart(ctx context.Context, symbol, timeframe string) (*models.ChartData, error)
}

// Syncer fans out one fetch per resource and lands every result in the
// view manager. Each fetch is independently guarded: one failing resource
// marks only itself stale and never blocks or blanks the others.
type Syncer struct {
	fetcher      Fetcher
	state        *Manager
	fetchTimeout time.Duration
	logger       *zap.Logger
}

// NewSyncer creates a synchronizer over the given fetcher and view manager.
func NewSyncer(fetcher Fetcher, state *Manager, fetchTimeout time.Duration, logger *zap.Logger) *Syncer {
	return &Syncer{
		fetcher:      fetcher,
		state:        state,
		fetchTimeout: fetchTimeout,
		logger:       logger,
	}
}

// Sync runs one synchronization pass for the user and returns when every
// resource has settled, so the pass takes as long as the slowest fetch
// rather than the sum of all of them.
//
// The chart fetch is tagged with the watch that was current when the pass
// started; if the user switches symbols mid-flight, the manager discards
// the late result. Overlapping passes are safe: results land per resource,
// last writer wins.
func (s *Syncer) Sync(ctx context.Context, userID int64) {
	watch := s.state.Watch()

	var wg sync.WaitGroup
	run := func(resource models.Resource, fetch func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("resource fetch panicked",
						zap.String("resource", string(resource)),
						zap.Any("panic", r))
				}
			}()

			fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
			defer cancel()
			fetch(fetchCtx)
		}()
	}

	run(models.ResourcePositions, func(ctx context.Context) {
		positions, err := s.fetcher.Positions(ctx, userID)
		s.state.ApplyPositions(positions, err)
	})
	run(models.ResourcePortfolio, func(ctx context.Context) {
		portfolio, err := s.fetcher.Portfolio(ctx, userID)
		s.state.ApplyPortfolio(portfolio, err)
	})
	run(models.ResourceTrades, func(ctx context.Context) {
		trades, err := s.fetcher.Trades(ctx, userID)
		s.state.ApplyTrades(trades, err)
	})
	run(models.ResourceStats, func(ctx context.Context) {
		stats, err := s.fetcher.Stats(ctx, userID)
		s.state.ApplyStats(stats, err)
	})
	run(models.ResourceMarket, func(ctx context.Context) {
		quotes, err := s.fetcher.MarketData(ctx, userID)
		s.state.ApplyMarket(quotes, err)
	})
	run(models.ResourceChart, func(ctx context.Context) {
		chart, err := s.fetcher.Chart(ctx, watch.Symbol, watch.Timeframe)
		s.state.ApplyChart(watch, chart, err)
	})

	wg.Wait()
}
