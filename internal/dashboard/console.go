package dashboard

import (
	"fmt"
	"io"
	"time"

	"degen-dashboard-go/internal/models"
	"degen-dashboard-go/internal/viewstate"

	"github.com/jedib0t/go-pretty/v6/table"
)

// maxConsoleTrades caps the trade table so a long history does not scroll
// the rest of the report off screen.
const maxConsoleTrades = 10

// ConsoleRenderer prints an Overview as a terminal report. It is the
// rendering path behind the console mode, where no browser frontend is
// attached.
type ConsoleRenderer struct {
	out io.Writer
}

func NewConsoleRenderer(out io.Writer) *ConsoleRenderer {
	return &ConsoleRenderer{out: out}
}

// Render writes the full report for one overview snapshot.
func (c *ConsoleRenderer) Render(o *Overview) {
	fmt.Fprintf(c.out, "\n========== 仪表盘快照 %s ==========\n", time.Now().Format("2006-01-02 15:04:05"))

	c.renderStatus(o)

	if !o.LoggedIn {
		fmt.Fprintln(c.out, "未登录，暂无数据。")
		return
	}
	if o.View == nil {
		return
	}

	c.renderPortfolio(o.View)
	c.renderPositions(o.View)
	c.renderTrades(o.View)
	c.renderStats(o.View)
	c.renderMarket(o.View)
	c.renderChart(o.View)
}

func (c *ConsoleRenderer) renderStatus(o *Overview) {
	t := c.newTable("连接状态")
	t.AppendHeader(table.Row{"后端地址", "链路", "连续失败", "机器人"})

	link := string(o.Link.State)
	if !o.Link.LastSuccess.IsZero() {
		link = fmt.Sprintf("%s (最近成功 %s)", link, o.Link.LastSuccess.Format("15:04:05"))
	}

	bot := "未知"
	if o.Bot.Known {
		if o.Bot.IsRunning {
			bot = "运行中"
		} else {
			bot = "已停止"
		}
	}

	t.AppendRow(table.Row{o.Endpoint, link, o.Link.ConsecutiveFailures, bot})
	t.Render()
}

func (c *ConsoleRenderer) renderPortfolio(v *viewstate.View) {
	if v.Portfolio == nil {
		return
	}
	p := v.Portfolio

	t := c.newTable("资产概览" + staleSuffix(v, models.ResourcePortfolio))
	t.AppendHeader(table.Row{"总资产", "现金", "持仓市值", "当日盈亏", "累计盈亏"})
	t.AppendRow(table.Row{
		money(p.TotalValue), money(p.CashBalance), money(p.PositionValue),
		money(p.DailyPnl), money(p.TotalPnl),
	})
	t.Render()
}

func (c *ConsoleRenderer) renderPositions(v *viewstate.View) {
	if len(v.Positions) == 0 {
		return
	}

	t := c.newTable("持仓" + staleSuffix(v, models.ResourcePositions))
	t.AppendHeader(table.Row{"标的", "类型", "数量", "开仓价", "现价", "浮动盈亏"})
	for _, p := range v.Positions {
		t.AppendRow(table.Row{
			p.Symbol, p.AssetType, fmt.Sprintf("%.4f", p.Amount),
			money(p.EntryPrice), money(p.CurrentPrice), money(p.UnrealizedPnl),
		})
	}
	t.Render()
}

func (c *ConsoleRenderer) renderTrades(v *viewstate.View) {
	if len(v.Trades) == 0 {
		return
	}

	t := c.newTable("最近成交" + staleSuffix(v, models.ResourceTrades))
	t.AppendHeader(table.Row{"时间", "标的", "方向", "数量", "价格", "金额"})

	trades := v.Trades
	if len(trades) > maxConsoleTrades {
		trades = trades[:maxConsoleTrades]
	}
	for _, tr := range trades {
		t.AppendRow(table.Row{
			tr.Timestamp.Format("01-02 15:04"), tr.Symbol, tr.Side,
			fmt.Sprintf("%.4f", tr.Amount), money(tr.Price), money(tr.Cost),
		})
	}
	t.Render()
}

func (c *ConsoleRenderer) renderStats(v *viewstate.View) {
	if v.Stats == nil {
		return
	}
	s := v.Stats

	t := c.newTable("交易统计" + staleSuffix(v, models.ResourceStats))
	t.AppendHeader(table.Row{"总次数", "盈利", "亏损", "胜率", "总利润", "平均利润", "最大回撤"})
	t.AppendRow(table.Row{
		s.TotalTrades, s.WinningTrades, s.LosingTrades,
		fmt.Sprintf("%.2f%%", s.WinRate), money(s.TotalProfit),
		money(s.AvgProfit), fmt.Sprintf("%.2f%%", s.MaxDrawdown),
	})
	t.Render()
}

func (c *ConsoleRenderer) renderMarket(v *viewstate.View) {
	if len(v.Market) == 0 {
		return
	}

	t := c.newTable("行情" + staleSuffix(v, models.ResourceMarket))
	t.AppendHeader(table.Row{"标的", "价格", "24h涨跌", "24h最高", "24h最低", "24h成交量"})
	for _, q := range v.Market {
		t.AppendRow(table.Row{
			q.Symbol, money(q.Price), fmt.Sprintf("%+.2f%%", q.ChangePct24h),
			money(q.High24h), money(q.Low24h), fmt.Sprintf("%.0f", q.Volume24h),
		})
	}
	t.Render()
}

func (c *ConsoleRenderer) renderChart(v *viewstate.View) {
	if v.Chart == nil || len(v.Chart.Candles) == 0 {
		return
	}
	last := v.Chart.Candles[len(v.Chart.Candles)-1]

	t := c.newTable(fmt.Sprintf("K线 %s %s%s", v.Chart.Symbol, v.Chart.Timeframe, staleSuffix(v, models.ResourceChart)))
	t.AppendHeader(table.Row{"根数", "最新开盘", "最新收盘", "最新最高", "最新最低"})
	t.AppendRow(table.Row{
		len(v.Chart.Candles), money(last.Open), money(last.Close),
		money(last.High), money(last.Low),
	})
	t.Render()
}

func (c *ConsoleRenderer) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(c.out)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

// staleSuffix tags a section title when the syncer is still showing the
// previous value for that resource.
func staleSuffix(v *viewstate.View, r models.Resource) string {
	if st, ok := v.Statuses[r]; ok && st.Stale {
		return " [已过期]"
	}
	return ""
}

func money(x float64) string {
	return fmt.Sprintf("%.2f", x)
}
