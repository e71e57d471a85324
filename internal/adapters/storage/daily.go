package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/domain"
	"github.com/shopspring/decimal"
)

// dailyDelta es lo que un batch suma al resumen de un día.
type dailyDelta struct {
	positions, wins, losses, pushes int
	stakedCents, payoutCents        int64
}

func (d *dailyDelta) add(p domain.SettledPosition) {
	d.positions++
	switch p.Outcome {
	case domain.OutcomeWin:
		d.wins++
	case domain.OutcomeLoss:
		d.losses++
	case domain.OutcomePush:
		d.pushes++
	}
	d.stakedCents += toCents(p.Stake)
	d.payoutCents += toCents(p.Payout)
}

// saveDaily acumula los deltas dentro de la transacción del batch.
func saveDaily(ctx context.Context, tx *sql.Tx, days map[string]*dailyDelta) error {
	if len(days) == 0 {
		return nil
	}
	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, day := range keys {
		d := days[day]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO daily (date, positions, wins, losses, pushes, staked_cents, payout_cents)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(date) DO UPDATE SET
			    positions    = daily.positions + excluded.positions,
			    wins         = daily.wins + excluded.wins,
			    losses       = daily.losses + excluded.losses,
			    pushes       = daily.pushes + excluded.pushes,
			    staked_cents = daily.staked_cents + excluded.staked_cents,
			    payout_cents = daily.payout_cents + excluded.payout_cents`,
			day, d.positions, d.wins, d.losses, d.pushes, d.stakedCents, d.payoutCents,
		); err != nil {
			return fmt.Errorf("upsert daily %s: %w", day, err)
		}
	}
	return nil
}

// GetDailies devuelve los resúmenes diarios en orden cronológico.
func (s *SQLiteStorage) GetDailies(ctx context.Context) ([]domain.DailySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, positions, wins, losses, pushes, staked_cents, payout_cents
		FROM daily ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.GetDailies: %w", err)
	}
	defer rows.Close()

	var out []domain.DailySummary
	for rows.Next() {
		var d domain.DailySummary
		var dateStr string
		var staked, payout int64
		if err := rows.Scan(&dateStr, &d.Positions, &d.Wins, &d.Losses, &d.Pushes, &staked, &payout); err != nil {
			return nil, fmt.Errorf("storage.GetDailies: scan: %w", err)
		}
		d.Date, _ = time.Parse(time.DateOnly, dateStr)
		d.Staked = decimal.New(staked, -domain.MoneyPlaces)
		d.Payout = decimal.New(payout, -domain.MoneyPlaces)
		out = append(out, d)
	}
	return out, rows.Err()
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(domain.MoneyPlaces).Round(0).IntPart()
}
