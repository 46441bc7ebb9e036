package models

import (
	"fmt"
	"time"
)

// Config 结构体定义了仪表盘的所有配置参数
type Config struct {
	DBPath                   string    `json:"db_path"`                               // 本地数据库文件路径
	FallbackBackendURL       string    `json:"fallback_backend_url"`                  // 兜底的后端地址 (地址解析链的最后一环)
	ListenAddr               string    `json:"listen_addr"`                           // 仪表盘 HTTP 服务监听地址
	PollIntervalSec          int       `json:"poll_interval_sec"`                     // 数据轮询周期(秒)
	ProbeTimeoutSec          int       `json:"probe_timeout_sec"`                     // 心跳探测超时(秒)
	FetchTimeoutSec          int       `json:"fetch_timeout_sec"`                     // 数据拉取超时(秒)
	FailureThreshold         int       `json:"failure_threshold"`                     // 连续失败多少次后判定连接中断
	ControlSettleMs          int       `json:"control_settle_ms"`                     // 启停指令下发后等待后端生效的毫秒数
	DefaultSymbol            string    `json:"default_symbol"`                        // 默认图表交易对, 如 "SOLUSDT"
	DefaultTimeframe         string    `json:"default_timeframe"`                     // 默认图表周期, 如 "1h"
	WebSocketPingIntervalSec int       `json:"websocket_ping_interval_sec,omitempty"` // WebSocket Ping消息发送间隔(秒)
	WebSocketPongTimeoutSec  int       `json:"websocket_pong_timeout_sec,omitempty"`  // WebSocket Pong消息超时时间(秒)
	LogConfig                LogConfig `json:"log"`                                   // 日志配置
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// User 定义了后端返回的用户身份信息
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	DiscordID string `json:"discord_id,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
}

// Session 是本地持久化的登录会话记录
type Session struct {
	Token     string    `json:"token"`      // 后端签发的访问令牌
	User      User      `json:"user"`       // 令牌对应的用户身份
	CreatedAt time.Time `json:"created_at"` // 会话建立时间
}

// BotStatus 定义了后端 /status 接口返回的机器人运行状态
type BotStatus struct {
	IsRunning bool `json:"is_running"`
}

// Position 定义了一个持仓条目
type Position struct {
	Symbol        string  `json:"symbol"`
	AssetType     string  `json:"asset_type"` // "crypto" 或 "stock"
	Amount        float64 `json:"amount"`
	EntryPrice    float64 `json:"entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
}

// Portfolio 定义了账户组合概览
type Portfolio struct {
	TotalValue    float64 `json:"total_value"`
	CashBalance   float64 `json:"cash_balance"`
	PositionValue float64 `json:"position_value"`
	DailyPnl      float64 `json:"daily_pnl"`
	TotalPnl      float64 `json:"total_pnl"`
}

// Trade 定义了单笔成交记录
type Trade struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"` // "buy" 或 "sell"
	AssetType string    `json:"asset_type"`
	Amount    float64   `json:"amount"`
	Price     float64   `json:"price"`
	Cost      float64   `json:"cost"`
	Timestamp time.Time `json:"timestamp"`
}

// TradeStats aggregates the performance metrics computed by the backend.
type TradeStats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalProfit   float64 `json:"total_profit"`
	AvgProfit     float64 `json:"avg_profit"`
	MaxDrawdown   float64 `json:"max_drawdown"`
}

// MarketQuote 定义了单个标的的行情快照
type MarketQuote struct {
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"`
	ChangePct24h float64 `json:"change_pct_24h"`
	High24h      float64 `json:"high_24h"`
	Low24h       float64 `json:"low_24h"`
	Volume24h    float64 `json:"volume_24h"`
}

// Candle holds a single OHLCV bar for chart rendering.
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

// ChartData bundles candles with the symbol and timeframe they were fetched for.
type ChartData struct {
	Symbol    string   `json:"symbol"`
	Timeframe string   `json:"timeframe"`
	Candles   []Candle `json:"candles"`
}

// AuthURLResponse 是 /auth/{provider}/url 接口的响应
type AuthURLResponse struct {
	URL string `json:"url"`
}

// AuthCallbackResponse 是 OAuth 回调换取令牌后的响应
type AuthCallbackResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// KeysSubmission 是提交交易所 API 密钥的请求体
type KeysSubmission struct {
	Exchange    string `json:"exchange"` // "kraken" 或 "alpaca"
	APIKey      string `json:"api_key"`
	APISecret   string `json:"api_secret"`
	ExtraConfig string `json:"extra_config,omitempty"`
}

// APIError 定义了后端API返回的错误信息结构
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Msg        string `json:"msg"`
}

// Error 方法使得 APIError 实现了 error 接口
func (e *APIError) Error() string {
	if e.StatusCode != 0 && e.Code == 0 {
		return fmt.Sprintf("API Error: status=%d, msg=%s", e.StatusCode, e.Msg)
	}
	return fmt.Sprintf("API Error: code=%d, msg=%s", e.Code, e.Msg)
}
