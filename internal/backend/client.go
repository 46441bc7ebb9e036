package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"degen-dashboard-go/internal/models"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
	"go.uber.org/zap"
)

// Client is the HTTP implementation of Service. The base URL and bearer
// token are swappable at runtime: the endpoint can be re-pinned and the
// session can come and go without rebuilding the client.
type Client struct {
	mu         sync.RWMutex
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a backend client. fetchTimeout caps every request as a
// backstop; callers tighten individual requests through their context.
func NewClient(baseURL string, fetchTimeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: fetchTimeout},
		logger:     logger,
	}
}

// SetBaseURL swaps the backend address for all subsequent requests.
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = baseURL
}

// BaseURL returns the address currently in use.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetToken attaches a bearer token to all subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// ClearToken removes the bearer token after logout.
func (c *Client) ClearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

// doRequest 是一个通用的请求处理函数，用于向后端API发送请求。
// A JSON body is attached for non-nil payload. Non-2xx responses and
// decodable error bodies come back as *models.APIError; the raw body is
// returned alongside the error so callers can log details.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, payload interface{}) ([]byte, error) {
	c.mu.RLock()
	baseURL := c.baseURL
	token := c.token
	c.mu.RUnlock()

	fullURL := baseURL + path
	if len(query) > 0 {
		fullURL = fmt.Sprintf("%s?%s", fullURL, query.Encode())
	}

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", newRequestID())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("backend request", zap.String("method", method), zap.String("url", fullURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &models.APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Msg == "" {
			apiErr.Msg = truncateBody(body)
		}
		return body, apiErr
	}

	return body, nil
}

// newRequestID produces a compact correlation id for backend log matching.
func newRequestID() string {
	id := uuid.New()
	return base62.EncodeToString(id[:])
}

// truncateBody keeps error messages loggable when the backend returns
// something unexpected, like an HTML error page.
func truncateBody(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

// --- Service 接口实现 ---

// Status reports whether the user's bot is running.
func (c *Client) Status(ctx context.Context, userID int64) (*models.BotStatus, error) {
	data, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/status/%d", userID), nil, nil)
	if err != nil {
		return nil, err
	}

	var status models.BotStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}
	return &status, nil
}

// Positions returns the user's open positions.
func (c *Client) Positions(ctx context.Context, userID int64) ([]models.Position, error) {
	data, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/positions/%d", userID), nil, nil)
	if err != nil {
		return nil, err
	}

	var positions []models.Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("failed to parse positions response: %w", err)
	}
	return positions, nil
}

// Portfolio returns the user's account overview.
func (c *Client) Portfolio(ctx context.Context, userID int64) (*models.Portfolio, error) {
	data, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/portfolio/%d", userID), nil, nil)
	if err != nil {
		return nil, err
	}

	var portfolio models.Portfolio
	if err := json.Unmarshal(data, &portfolio); err != nil {
		return nil, fmt.Errorf("failed to parse portfolio response: %w", err)
	}
	return &portfolio, nil
}

// Trades returns the user's trade log.
func (c *Client) Trades(ctx context.Context, userID int64) ([]models.Trade, error) {
	data, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/trades/%d", userID), nil, nil)
	if err != nil {
		return nil, err
	}

	var trades []models.Trade
	if err := json.Unmarshal(data, &trades); err != nil {
		return nil, fmt.Errorf("failed to parse trades response: %w", err)
	}
	return trades, nil
}

// Stats returns the user's aggregate performance metrics.
func (c *Client) Stats(ctx context.Context, userID int64) (*models.TradeStats, error) {
	data, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/stats/%d", userID), nil, nil)
	if err != nil {
		return nil, err
	}

	var stats models.TradeStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to parse stats response: %w", err)
	}
	return &stats, nil
}

// MarketData returns the watchlist quotes.
func (c *Client) MarketData(ctx context.Context, userID int64) ([]models.MarketQuote, error) {
	data, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/market_data/%d", userID), nil, nil)
	if err != nil {
		return nil, err
	}

	var quotes []models.MarketQuote
	if err := json.Unmarshal(data, &quotes); err != nil {
		return nil, fmt.Errorf("failed to parse market data response: %w", err)
	}
	return quotes, nil
}

// Chart returns the candle series for one symbol and timeframe.
func (c *Client) Chart(ctx context.Context, symbol, timeframe string) (*models.ChartData, error) {
	query := url.Values{}
	query.Set("timeframe", timeframe)

	data, err := c.doRequest(ctx, http.MethodGet, "/chart/"+url.PathEscape(symbol), query, nil)
	if err != nil {
		return nil, err
	}

	var chart models.ChartData
	if err := json.Unmarshal(data, &chart); err != nil {
		return nil, fmt.Errorf("failed to parse chart response: %w", err)
	}
	if chart.Symbol == "" {
		chart.Symbol = symbol
	}
	if chart.Timeframe == "" {
		chart.Timeframe = timeframe
	}
	return &chart, nil
}

// StartBot asks the backend to start the user's bot.
func (c *Client) StartBot(ctx context.Context, userID int64) error {
	_, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/users/start/%d", userID), nil, nil)
	return err
}

// StopBot asks the backend to stop the user's bot.
func (c *Client) StopBot(ctx context.Context, userID int64) error {
	_, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/users/stop/%d", userID), nil, nil)
	return err
}

// AuthURL returns the provider's OAuth authorization URL.
func (c *Client) AuthURL(ctx context.Context, provider string) (string, error) {
	data, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/auth/%s/url", url.PathEscape(provider)), nil, nil)
	if err != nil {
		return "", err
	}

	var resp models.AuthURLResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("failed to parse auth url response: %w", err)
	}
	return resp.URL, nil
}

// AuthCallback exchanges an OAuth code for a token and identity.
func (c *Client) AuthCallback(ctx context.Context, provider, code string) (*models.AuthCallbackResponse, error) {
	query := url.Values{}
	query.Set("code", code)

	data, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/auth/%s/callback", url.PathEscape(provider)), query, nil)
	if err != nil {
		return nil, err
	}

	var resp models.AuthCallbackResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse auth callback response: %w", err)
	}
	return &resp, nil
}

// SubmitKeys stores exchange API credentials server-side.
func (c *Client) SubmitKeys(ctx context.Context, userID int64, submission models.KeysSubmission) error {
	payload := struct {
		UserID int64 `json:"user_id"`
		models.KeysSubmission
	}{UserID: userID, KeysSubmission: submission}

	_, err := c.doRequest(ctx, http.MethodPost, "/settings/keys", nil, payload)
	return err
}
