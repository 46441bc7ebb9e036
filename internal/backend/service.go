package backend

import (
	"context"

	"degen-dashboard-go/internal/models"
)

// Service defines the backend operations the dashboard consumes.
// It abstracts the HTTP client so the monitor, synchronizer and controller
// can be tested against fakes.
type Service interface {
	// Status reports whether the user's bot is running. It doubles as the
	// liveness probe: a response within the caller's deadline means the
	// backend is reachable.
	Status(ctx context.Context, userID int64) (*models.BotStatus, error)

	// Positions returns the user's open positions.
	Positions(ctx context.Context, userID int64) ([]models.Position, error)

	// Portfolio returns the user's account overview.
	Portfolio(ctx context.Context, userID int64) (*models.Portfolio, error)

	// Trades returns the user's trade log.
	Trades(ctx context.Context, userID int64) ([]models.Trade, error)

	// Stats returns the user's aggregate performance metrics.
	Stats(ctx context.Context, userID int64) (*models.TradeStats, error)

	// MarketData returns the watchlist quotes.
	MarketData(ctx context.Context, userID int64) ([]models.MarketQuote, error)

	// Chart returns the candle series for one symbol and timeframe.
	Chart(ctx context.Context, symbol, timeframe string) (*models.ChartData, error)

	// StartBot asks the backend to start the user's bot.
	StartBot(ctx context.Context, userID int64) error

	// StopBot asks the backend to stop the user's bot.
	StopBot(ctx context.Context, userID int64) error

	// AuthURL returns the provider's OAuth authorization URL.
	AuthURL(ctx context.Context, provider string) (string, error)

	// AuthCallback exchanges an OAuth code for a token and identity.
	AuthCallback(ctx context.Context, provider, code string) (*models.AuthCallbackResponse, error)

	// SubmitKeys stores exchange API credentials server-side.
	SubmitKeys(ctx context.Context, userID int64, submission models.KeysSubmission) error
}
