package notify

import (
	"fmt"

	"github.com/alejandrodnm/shortsbot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// recentShown es cuántas liquidaciones lista el reporte.
const recentShown = 15

// PrintReport imprime el reporte del journal: totales, desglose diario y por
// mercado, y las últimas liquidaciones.
func (c *Console) PrintReport(stats domain.SettlementStats, dailies []domain.DailySummary, recent []domain.SettledPosition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if stats.Positions == 0 && stats.Rounds == 0 {
		fmt.Fprintln(c.out, "\n  No settlements yet. Run the engine and place a few positions first.")
		return
	}

	fmt.Fprintf(c.out, "\n")
	fmt.Fprintf(c.out, "========================================================\n")
	fmt.Fprintf(c.out, "  SETTLEMENT REPORT\n")
	if !stats.FirstAt.IsZero() {
		fmt.Fprintf(c.out, "  %s to %s\n",
			stats.FirstAt.Format("2006-01-02 15:04"),
			stats.LastAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(c.out, "========================================================\n\n")

	fmt.Fprintf(c.out, "  Rounds settled:  %d\n", stats.Rounds)
	fmt.Fprintf(c.out, "  Positions:       %d (W:%d L:%d P:%d)\n", stats.Positions, stats.Wins, stats.Losses, stats.Pushes)
	fmt.Fprintf(c.out, "  Win rate:        %.1f%%\n", stats.WinRate()*100)
	fmt.Fprintf(c.out, "  Staked:          $%s\n", stats.TotalStaked.StringFixed(domain.MoneyPlaces))
	fmt.Fprintf(c.out, "  Paid out:        $%s\n", stats.TotalPayout.StringFixed(domain.MoneyPlaces))
	fmt.Fprintf(c.out, "  Net P&L:         %s\n", signedMoney(stats.NetProfit.InexactFloat64()))

	if len(dailies) > 0 {
		fmt.Fprintf(c.out, "\n  DAILY\n")
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Date", "Pos", "W", "L", "P", "Staked", "Payout", "Net")
		for _, d := range dailies {
			tbl.Append(
				d.Date.Format("01-02"),
				fmt.Sprintf("%d", d.Positions),
				fmt.Sprintf("%d", d.Wins),
				fmt.Sprintf("%d", d.Losses),
				fmt.Sprintf("%d", d.Pushes),
				"$"+d.Staked.StringFixed(domain.MoneyPlaces),
				"$"+d.Payout.StringFixed(domain.MoneyPlaces),
				signedMoney(d.NetProfit().InexactFloat64()),
			)
		}
		tbl.Render()
	}

	if len(stats.ByMarket) > 0 {
		fmt.Fprintf(c.out, "\n  BY MARKET\n")
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Market", "Pos", "Wins", "Net")
		for _, m := range stats.ByMarket {
			tbl.Append(
				m.MarketKey,
				fmt.Sprintf("%d", m.Positions),
				fmt.Sprintf("%d", m.Wins),
				signedMoney(m.NetProfit.InexactFloat64()),
			)
		}
		tbl.Render()
	}

	if len(recent) > 0 {
		fmt.Fprintf(c.out, "\n  RECENT\n")
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Resolved", "Market", "Dir", "Stake", "Entry", "Close", "Result", "P&L")
		for i, p := range recent {
			if i >= recentShown {
				break
			}
			tbl.Append(
				p.ResolvedAt.Format("01-02 15:04:05"),
				p.MarketKey,
				string(p.Direction),
				p.Stake.StringFixed(domain.MoneyPlaces),
				formatPrice(p.EntryPrice),
				formatPrice(p.SettlePrice),
				string(p.Outcome),
				signedMoney(p.Profit.InexactFloat64()),
			)
		}
		tbl.Render()
	}
	fmt.Fprintln(c.out)
}
