package httpapi

import (
	"encoding/json"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/application/engine"
	"github.com/alejandrodnm/shortsbot/internal/domain"
)

// placeRequestDTO acepta stake como número o string ("50" o 50).
type placeRequestDTO struct {
	Market    string      `json:"market"`
	Direction string      `json:"direction"`
	Stake     json.Number `json:"stake"`
}

type errorDTO struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

type quoteDTO struct {
	Up        float64 `json:"up"`
	Down      float64 `json:"down"`
	UpCents   int     `json:"up_cents"`
	DownCents int     `json:"down_cents"`
}

type roundDTO struct {
	ID        string     `json:"id"`
	Start     time.Time  `json:"start"`
	End       time.Time  `json:"end"`
	Lock      *time.Time `json:"lock,omitempty"`
	OpenPrice *float64   `json:"open_price"`
}

type activityDTO struct {
	Side   string    `json:"side"`
	Amount float64   `json:"amount"`
	Quote  float64   `json:"quote"`
	At     time.Time `json:"at"`
	Trader string    `json:"trader"`
	Self   bool      `json:"self"`
}

type marketDTO struct {
	Key         string        `json:"key"`
	Asset       string        `json:"asset"`
	DurationSec float64       `json:"duration_sec"`
	Round       roundDTO      `json:"round"`
	Phase       string        `json:"phase"`
	Progress    float64       `json:"progress"`
	RemainingMs int64         `json:"remaining_ms"`
	LatestPrice *float64      `json:"latest_price"`
	Feed        string        `json:"feed"`
	Probability float64       `json:"probability"`
	Quote       quoteDTO      `json:"quote"`
	UpStake     float64       `json:"up_stake"`
	DownStake   float64       `json:"down_stake"`
	Imbalance   float64       `json:"imbalance"`
	Activity    []activityDTO `json:"activity"`
}

type openDTO struct {
	ID         string    `json:"id"`
	Market     string    `json:"market"`
	Round      string    `json:"round"`
	Direction  string    `json:"direction"`
	Stake      string    `json:"stake"`
	EntryPrice float64   `json:"entry_price"`
	EntryQuote float64   `json:"entry_quote,omitempty"`
	Shares     string    `json:"shares,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	RoundEnd   time.Time `json:"round_end"`
}

type settledDTO struct {
	openDTO
	Outcome     string    `json:"outcome"`
	SettlePrice float64   `json:"settle_price"`
	Payout      string    `json:"payout"`
	Profit      string    `json:"profit"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

type positionsDTO struct {
	Open    []openDTO    `json:"open"`
	Settled []settledDTO `json:"settled"`
}

type snapshotDTO struct {
	At      time.Time         `json:"at"`
	Balance string            `json:"balance"`
	Stakes  []string          `json:"stakes"`
	Feeds   map[string]string `json:"feeds"`
	Markets []marketDTO       `json:"markets"`
	Pending []string          `json:"pending"`
	positionsDTO
}

func toSnapshotDTO(s *engine.Snapshot) snapshotDTO {
	out := snapshotDTO{
		At:           s.At,
		Balance:      s.Balance.StringFixed(domain.MoneyPlaces),
		Stakes:       make([]string, 0, len(s.Stakes)),
		Feeds:        make(map[string]string, len(s.Feeds)),
		Markets:      make([]marketDTO, 0, len(s.Markets)),
		Pending:      make([]string, 0, len(s.Pending)),
		positionsDTO: positionsDTO{Open: toOpenDTOs(s.Open), Settled: toSettledDTOs(s.Settled)},
	}
	for _, st := range s.Stakes {
		out.Stakes = append(out.Stakes, st.String())
	}
	for asset, status := range s.Feeds {
		out.Feeds[asset] = string(status)
	}
	for _, m := range s.Markets {
		out.Markets = append(out.Markets, toMarketDTO(m))
	}
	for _, p := range s.Pending {
		out.Pending = append(out.Pending, p.RoundID)
	}
	return out
}

func toMarketDTO(m engine.MarketSnapshot) marketDTO {
	out := marketDTO{
		Key:         m.Market.Key,
		Asset:       m.Market.Asset,
		DurationSec: m.Market.Duration.Seconds(),
		Round: roundDTO{
			ID:        m.Round.ID,
			Start:     m.Round.Start,
			End:       m.Round.End,
			OpenPrice: m.Round.OpenPrice,
		},
		Phase:       string(m.Phase),
		Progress:    m.Progress,
		RemainingMs: m.Remaining.Milliseconds(),
		Feed:        string(m.Feed),
		Probability: m.Probability,
		Quote: quoteDTO{
			Up:        m.Quote.Up,
			Down:      m.Quote.Down,
			UpCents:   m.Quote.UpCents,
			DownCents: m.Quote.DownCents,
		},
		UpStake:   m.Book.UpStake,
		DownStake: m.Book.DownStake,
		Imbalance: m.Book.Imbalance(),
		Activity:  make([]activityDTO, 0, len(m.Activity)),
	}
	if !m.Round.Lock.IsZero() {
		lock := m.Round.Lock
		out.Round.Lock = &lock
	}
	if m.HasPrice {
		p := m.LatestPrice
		out.LatestPrice = &p
	}
	for _, a := range m.Activity {
		out.Activity = append(out.Activity, activityDTO{
			Side:   string(a.Side),
			Amount: a.Amount,
			Quote:  a.Quote,
			At:     a.At,
			Trader: a.Trader,
			Self:   a.IsSelf,
		})
	}
	return out
}

func toOpenDTO(p domain.OpenPosition) openDTO {
	out := openDTO{
		ID:         p.ID,
		Market:     p.MarketKey,
		Round:      p.RoundID,
		Direction:  string(p.Direction),
		Stake:      p.Stake.StringFixed(domain.MoneyPlaces),
		EntryPrice: p.EntryPrice,
		EntryQuote: p.EntryQuote,
		CreatedAt:  p.CreatedAt,
		RoundEnd:   p.RoundEnd,
	}
	if p.Shares.IsPositive() {
		out.Shares = p.Shares.String()
	}
	return out
}

func toOpenDTOs(ps []domain.OpenPosition) []openDTO {
	out := make([]openDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, toOpenDTO(p))
	}
	return out
}

func toSettledDTOs(ps []domain.SettledPosition) []settledDTO {
	out := make([]settledDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, settledDTO{
			openDTO:     toOpenDTO(p.OpenPosition),
			Outcome:     string(p.Outcome),
			SettlePrice: p.SettlePrice,
			Payout:      p.Payout.StringFixed(domain.MoneyPlaces),
			Profit:      p.Profit.StringFixed(domain.MoneyPlaces),
			ResolvedAt:  p.ResolvedAt,
		})
	}
	return out
}
