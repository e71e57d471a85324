package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// PayoutModel selects how a winning position is paid.
type PayoutModel string

const (
	// PayoutFixedRate pays stake × (1 + rate) on a win.
	PayoutFixedRate PayoutModel = "fixed-rate"
	// PayoutPerShare buys stake/quote shares at entry; each winning share pays PerShare.
	PayoutPerShare PayoutModel = "per-share"
)

// PayoutConfig is the payout variant plus its constants.
type PayoutConfig struct {
	Model    PayoutModel
	Rate     decimal.Decimal // fixed-rate: profit per token staked on a win
	PerShare decimal.Decimal // per-share: payout per winning share
}

// Validate rejects unknown models and non-positive constants.
func (c PayoutConfig) Validate() error {
	switch c.Model {
	case PayoutFixedRate:
		if !c.Rate.IsPositive() {
			return fmt.Errorf("payout: fixed-rate needs rate > 0, got %s", c.Rate)
		}
	case PayoutPerShare:
		if !c.PerShare.IsPositive() {
			return fmt.Errorf("payout: per-share needs per_share > 0, got %s", c.PerShare)
		}
	default:
		return fmt.Errorf("payout: unknown model %q", c.Model)
	}
	return nil
}

// Outcome is the result of a settled position.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomePush Outcome = "push"
)

const (
	// MoneyPlaces is the rounding granularity for payouts (cents).
	MoneyPlaces = 2
	// SharePlaces is the precision kept for share counts.
	SharePlaces = 6
)

// OpenPosition is a live bet against a round. Immutable once created.
type OpenPosition struct {
	ID         string
	MarketKey  string
	Asset      string
	RoundID    string
	Direction  Direction
	Stake      decimal.Decimal
	CreatedAt  time.Time
	RoundEnd   time.Time
	EntryPrice float64
	// EntryQuote and Shares are only set under PayoutPerShare.
	EntryQuote float64
	Shares     decimal.Decimal
}

// SettledPosition is an OpenPosition plus its resolution.
type SettledPosition struct {
	OpenPosition
	Outcome     Outcome
	SettlePrice float64
	Profit      decimal.Decimal
	Payout      decimal.Decimal
	ResolvedAt  time.Time
}

// SharesFor returns stake/quote at SharePlaces precision.
func SharesFor(stake decimal.Decimal, quote float64) decimal.Decimal {
	if quote <= 0 || quote >= 1 || math.IsNaN(quote) {
		return decimal.Zero
	}
	return stake.DivRound(decimal.NewFromFloat(quote), SharePlaces)
}

// DecideOutcome compares the settle price with the entry price. A move within
// epsilon (inclusive) is a push; epsilon 0 means exact equality.
func DecideOutcome(dir Direction, entry, settle, epsilon float64) Outcome {
	diff := settle - entry
	if math.Abs(diff) <= epsilon {
		return OutcomePush
	}
	if (dir == DirectionUp && diff > 0) || (dir == DirectionDown && diff < 0) {
		return OutcomeWin
	}
	return OutcomeLoss
}

// Settle resolves a position at settlePrice. It is pure: the caller removes the
// position from the open set and applies the payout to the ledger.
func Settle(pos OpenPosition, settlePrice float64, cfg PayoutConfig, epsilon float64, at time.Time) SettledPosition {
	outcome := DecideOutcome(pos.Direction, pos.EntryPrice, settlePrice, epsilon)

	var payout decimal.Decimal
	switch outcome {
	case OutcomeWin:
		payout = winPayout(pos, cfg)
	case OutcomePush:
		payout = pos.Stake
	default:
		payout = decimal.Zero
	}

	return SettledPosition{
		OpenPosition: pos,
		Outcome:      outcome,
		SettlePrice:  settlePrice,
		Payout:       payout,
		Profit:       payout.Sub(pos.Stake),
		ResolvedAt:   at,
	}
}

func winPayout(pos OpenPosition, cfg PayoutConfig) decimal.Decimal {
	if cfg.Model == PayoutPerShare && pos.Shares.IsPositive() {
		return pos.Shares.Mul(cfg.PerShare).Round(MoneyPlaces)
	}
	return pos.Stake.Mul(decimal.NewFromInt(1).Add(cfg.Rate)).Round(MoneyPlaces)
}
