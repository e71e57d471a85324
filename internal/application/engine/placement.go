package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// selfTrader es el nombre con el que aparecen las posiciones propias en la actividad.
const selfTrader = "you"

// PlaceRequest is the user's intent to open a position.
type PlaceRequest struct {
	MarketKey string
	Direction domain.Direction
	Stake     decimal.Decimal
}

// place valida y abre una posición. Cualquier rechazo ocurre antes del Debit,
// así que un error nunca deja efectos.
func (e *Engine) place(req PlaceRequest, now time.Time) (domain.OpenPosition, error) {
	pos, err := e.validateAndOpen(req, now)
	if err != nil {
		e.metrics.RecordRejected(domain.RejectReason(err))
		slog.Debug("engine: position rejected", "market", req.MarketKey, "direction", req.Direction,
			"stake", req.Stake.String(), "reason", domain.RejectReason(err))
		return domain.OpenPosition{}, err
	}
	e.metrics.RecordPlaced(pos.MarketKey, string(pos.Direction))
	slog.Info("engine: position opened",
		"id", pos.ID,
		"market", pos.MarketKey,
		"direction", pos.Direction,
		"stake", pos.Stake.String(),
		"entry", pos.EntryPrice,
	)
	return pos, nil
}

func (e *Engine) validateAndOpen(req PlaceRequest, now time.Time) (domain.OpenPosition, error) {
	ms, ok := e.byKey[req.MarketKey]
	if !ok {
		return domain.OpenPosition{}, fmt.Errorf("engine.Place: market %q: %w", req.MarketKey, domain.ErrUnknownMarket)
	}
	if req.Direction != domain.DirectionUp && req.Direction != domain.DirectionDown {
		return domain.OpenPosition{}, fmt.Errorf("engine.Place: direction %q: %w", req.Direction, domain.ErrInvalidDirection)
	}
	if !e.stakeAllowed(req.Stake) {
		return domain.OpenPosition{}, fmt.Errorf("engine.Place: stake %s: %w", req.Stake, domain.ErrStakeNotAllowed)
	}
	asset := ms.market.Asset
	if st := e.oracle.Status(asset, now); st != domain.FeedLive {
		return domain.OpenPosition{}, fmt.Errorf("engine.Place: %s feed %s: %w", asset, st, domain.ErrFeedNotLive)
	}

	round := ms.round
	if !round.HasOpenPrice() {
		return domain.OpenPosition{}, fmt.Errorf("engine.Place: round %s: %w", round.ID, domain.ErrRoundNotOpen)
	}
	if !now.Before(round.CutoffTime()) {
		return domain.OpenPosition{}, fmt.Errorf("engine.Place: round %s cutoff %s: %w",
			round.ID, round.CutoffTime().Format(time.TimeOnly), domain.ErrRoundLocked)
	}

	// quote antes de sumar el stake propio al book
	_, quote := e.currentQuote(ms, now)
	entryQuote := quote.Side(req.Direction)

	if err := e.ledger.Debit(req.Stake); err != nil {
		return domain.OpenPosition{}, fmt.Errorf("engine.Place: %w", err)
	}

	pos := domain.OpenPosition{
		ID:         round.ID + "-" + uuid.NewString(),
		MarketKey:  ms.market.Key,
		Asset:      asset,
		RoundID:    round.ID,
		Direction:  req.Direction,
		Stake:      req.Stake,
		CreatedAt:  now,
		RoundEnd:   round.End,
		EntryPrice: *round.OpenPrice,
	}
	if e.cfg.Payout.Model == domain.PayoutPerShare {
		pos.EntryQuote = entryQuote
		pos.Shares = domain.SharesFor(req.Stake, entryQuote)
	}
	e.open = append(e.open, pos)

	ms.book.Record(domain.Activity{
		Side:   req.Direction,
		Amount: req.Stake.InexactFloat64(),
		Quote:  entryQuote,
		At:     now,
		Trader: selfTrader,
		IsSelf: true,
	})
	return pos, nil
}
