package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingSettlement es una ronda terminada que espera su precio de cierre.
// La cola se deduplica por RoundID.
type PendingSettlement struct {
	RoundID   string
	MarketKey string
	Asset     string
	RoundEnd  time.Time
	QueuedAt  time.Time
}

// SettlementBatch es todo lo liquidado en un tick. Credit se aplica al ledger
// una sola vez para el batch completo.
type SettlementBatch struct {
	At        time.Time
	Rounds    map[string]float64 // roundID → settle price
	Positions []SettledPosition
	Credit    decimal.Decimal
	Balance   decimal.Decimal // balance tras aplicar Credit
}

// Wins devuelve cuántas posiciones del batch ganaron.
func (b SettlementBatch) Wins() int {
	n := 0
	for _, p := range b.Positions {
		if p.Outcome == OutcomeWin {
			n++
		}
	}
	return n
}

// SettlementStats son las estadísticas agregadas del journal.
type SettlementStats struct {
	FirstAt     time.Time
	LastAt      time.Time
	Rounds      int
	Positions   int
	Wins        int
	Losses      int
	Pushes      int
	TotalStaked decimal.Decimal
	TotalPayout decimal.Decimal
	NetProfit   decimal.Decimal
	ByMarket    []MarketStats
}

// WinRate devuelve wins / (wins + losses); los push no cuentan.
func (s SettlementStats) WinRate() float64 {
	decided := s.Wins + s.Losses
	if decided == 0 {
		return 0
	}
	return float64(s.Wins) / float64(decided)
}

// MarketStats es el desglose por mercado.
type MarketStats struct {
	MarketKey string
	Positions int
	Wins      int
	NetProfit decimal.Decimal
}

// DailySummary agrega las liquidaciones de un día UTC.
type DailySummary struct {
	Date      time.Time
	Positions int
	Wins      int
	Losses    int
	Pushes    int
	Staked    decimal.Decimal
	Payout    decimal.Decimal
}

// NetProfit devuelve Payout - Staked.
func (d DailySummary) NetProfit() decimal.Decimal {
	return d.Payout.Sub(d.Staked)
}
