package models

// LinkState 定义了与后端连接的健康状态
type LinkState string

const (
	// LinkUnknown 表示尚未完成首次探测
	LinkUnknown LinkState = "UNKNOWN"
	// LinkUp 表示最近一次探测成功
	LinkUp LinkState = "UP"
	// LinkDown 表示连续失败已达到阈值
	LinkDown LinkState = "DOWN"
)

// Resource 标识轮询同步的一类后端数据
type Resource string

const (
	ResourcePositions Resource = "positions"
	ResourcePortfolio Resource = "portfolio"
	ResourceTrades    Resource = "trades"
	ResourceStats     Resource = "stats"
	ResourceMarket    Resource = "market"
	ResourceChart     Resource = "chart"
)

// AllResources 按固定顺序返回每个同步周期覆盖的全部资源
func AllResources() []Resource {
	return []Resource{
		ResourcePositions,
		ResourcePortfolio,
		ResourceTrades,
		ResourceStats,
		ResourceMarket,
		ResourceChart,
	}
}

// Watch 定义了图表当前关注的交易对与周期。
// 它会被持久化，重启后恢复为上次的选择。
type Watch struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}
