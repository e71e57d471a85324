package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/application/engine"
	"github.com/alejandrodnm/shortsbot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

const (
	marketLabelLen = 16
	bell           = "\a" // suena en la terminal cuando un batch trae al menos un win
)

// Console implementa ports.Notifier.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	sound bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(sound bool) *Console {
	return &Console{out: os.Stdout, sound: sound}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, sound bool) *Console {
	return &Console{out: w, sound: sound}
}

// NotifySettlement imprime una línea por posición liquidada del batch.
func (c *Console) NotifySettlement(_ context.Context, batch domain.SettlementBatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := batch.At.Format("15:04:05")
	if len(batch.Positions) == 0 {
		fmt.Fprintf(c.out, "[%s] settled %d rounds, no positions\n", now, len(batch.Rounds))
		return nil
	}

	var sb strings.Builder
	for _, p := range batch.Positions {
		fmt.Fprintf(&sb, "[%s] %s %-4s %s %s stake %s entry %s close %s → %s\n",
			now, outcomeIcon(p.Outcome), strings.ToUpper(string(p.Outcome)),
			p.MarketKey, strings.ToUpper(string(p.Direction)),
			p.Stake.StringFixed(domain.MoneyPlaces),
			formatPrice(p.EntryPrice), formatPrice(p.SettlePrice),
			signedMoney(p.Profit.InexactFloat64()))
	}
	fmt.Fprintf(&sb, "  credit %s | balance %s",
		batch.Credit.StringFixed(domain.MoneyPlaces), batch.Balance.StringFixed(domain.MoneyPlaces))
	if c.sound && batch.Wins() > 0 {
		sb.WriteString(bell)
	}
	fmt.Fprintln(c.out, sb.String())
	return nil
}

// PrintStatus imprime la línea compacta de estado.
func (c *Console) PrintStatus(snap *engine.Snapshot) {
	if snap == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] bal %s | open %d ($%s) | pending %d",
		snap.At.Format("15:04:05"),
		snap.Balance.StringFixed(domain.MoneyPlaces),
		len(snap.Open), snap.OpenStake().StringFixed(domain.MoneyPlaces),
		len(snap.Pending))
	for _, m := range snap.Markets {
		fmt.Fprintf(&sb, " | %s %s %s %s ↑%d",
			m.Market.Key, phaseShort(m.Phase), feedShort(m.Feed),
			formatRemaining(m.Remaining), m.Quote.UpCents)
	}
	fmt.Fprintln(c.out, sb.String())
}

// PrintSnapshot imprime la tabla de mercados y las posiciones abiertas.
func (c *Console) PrintSnapshot(snap *engine.Snapshot) {
	if snap == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n[%s] balance %s\n", snap.At.Format("15:04:05"), snap.Balance.StringFixed(domain.MoneyPlaces))

	table := tablewriter.NewWriter(c.out)
	table.Header("Market", "Round", "Phase", "Feed", "Open", "Last", "Left", "Up", "Down", "Stake U/D")
	for _, m := range snap.Markets {
		open := "-"
		if m.Round.OpenPrice != nil {
			open = formatPrice(*m.Round.OpenPrice)
		}
		last := "-"
		if m.HasPrice {
			last = formatPrice(m.LatestPrice)
		}
		table.Append(
			domain.TruncateLabel(m.Market.Key, marketLabelLen),
			m.Round.Start.Format("15:04:05"),
			string(m.Phase),
			string(m.Feed),
			open,
			last,
			formatRemaining(m.Remaining),
			fmt.Sprintf("%d¢", m.Quote.UpCents),
			fmt.Sprintf("%d¢", m.Quote.DownCents),
			fmt.Sprintf("%.0f/%.0f", m.Book.UpStake, m.Book.DownStake),
		)
	}
	table.Render()

	if len(snap.Open) == 0 {
		fmt.Fprintln(c.out, "  no open positions")
		return
	}

	fmt.Fprintf(c.out, "\n  OPEN POSITIONS (%d)\n", len(snap.Open))
	pt := tablewriter.NewWriter(c.out)
	pt.Header("ID", "Market", "Dir", "Stake", "Entry", "Ends in")
	for _, p := range snap.Open {
		pt.Append(
			shortID(p.ID),
			domain.TruncateLabel(p.MarketKey, marketLabelLen),
			strings.ToUpper(string(p.Direction)),
			p.Stake.StringFixed(domain.MoneyPlaces),
			formatPrice(p.EntryPrice),
			formatRemaining(p.RoundEnd.Sub(snap.At)),
		)
	}
	pt.Render()
}

func outcomeIcon(o domain.Outcome) string {
	switch o {
	case domain.OutcomeWin:
		return "✓"
	case domain.OutcomeLoss:
		return "✗"
	}
	return "="
}

func phaseShort(p domain.RoundPhase) string {
	switch p {
	case domain.PhasePendingOpen:
		return "WAIT"
	case domain.PhaseOpen:
		return "OPEN"
	case domain.PhaseLocked:
		return "LOCK"
	}
	return "CLSD"
}

func feedShort(s domain.FeedStatus) string {
	switch s {
	case domain.FeedLive:
		return "●"
	case domain.FeedOffline:
		return "○"
	}
	return "…"
}

func formatPrice(p float64) string {
	if p >= 1000 {
		return fmt.Sprintf("%.2f", p)
	}
	return fmt.Sprintf("%.4f", p)
}

func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}

func signedMoney(v float64) string {
	if v >= 0 {
		return fmt.Sprintf("+$%.2f", v)
	}
	return fmt.Sprintf("-$%.2f", -v)
}

// shortID muestra los primeros 8 caracteres del uuid de "{roundID}-{uuid}".
func shortID(id string) string {
	if len(id) > 36 {
		id = id[len(id)-36:]
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
