package storage

// sqlite.go — journal de liquidaciones.
//
// Estrategia:
//   - `rounds`: una fila por ronda liquidada (precio de cierre). INSERT OR IGNORE,
//     así que re-guardar un batch es un no-op.
//   - `settled_positions`: una fila por posición liquidada. Importes en TEXT
//     (decimal exacto), tiempos en unix millis.
//   - `daily`: resumen por día UTC en centavos, acumulado con upsert.
//   - Prune automático al arrancar: posiciones y rondas más viejas que la retención.
//
// Es solo histórico para reporting: el engine nunca restaura estado desde aquí.

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/domain"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS rounds (
    round_id     TEXT PRIMARY KEY,
    market_key   TEXT    NOT NULL,
    start_ms     INTEGER NOT NULL DEFAULT 0,
    settle_price REAL    NOT NULL,
    settled_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settled_positions (
    id           TEXT PRIMARY KEY,
    round_id     TEXT    NOT NULL,
    market_key   TEXT    NOT NULL,
    asset        TEXT    NOT NULL,
    direction    TEXT    NOT NULL,
    stake        TEXT    NOT NULL,
    entry_price  REAL    NOT NULL,
    entry_quote  REAL    NOT NULL DEFAULT 0,
    shares       TEXT    NOT NULL DEFAULT '0',
    outcome      TEXT    NOT NULL,
    settle_price REAL    NOT NULL,
    payout       TEXT    NOT NULL,
    profit       TEXT    NOT NULL,
    created_at   INTEGER NOT NULL,
    round_end    INTEGER NOT NULL,
    resolved_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS daily (
    date         TEXT PRIMARY KEY,
    positions    INTEGER NOT NULL DEFAULT 0,
    wins         INTEGER NOT NULL DEFAULT 0,
    losses       INTEGER NOT NULL DEFAULT 0,
    pushes       INTEGER NOT NULL DEFAULT 0,
    staked_cents INTEGER NOT NULL DEFAULT 0,
    payout_cents INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_rounds_at      ON rounds(settled_at DESC);
CREATE INDEX IF NOT EXISTS idx_sp_resolved    ON settled_positions(resolved_at DESC);
CREATE INDEX IF NOT EXISTS idx_sp_round       ON settled_positions(round_id);
CREATE INDEX IF NOT EXISTS idx_sp_market      ON settled_positions(market_key);
`

// DefaultRetention es cuánto histórico se conserva.
const DefaultRetention = 30 * 24 * time.Hour

// SQLiteStorage implementa ports.SettlementJournal usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db        *sql.DB
	retention time.Duration
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	return NewSQLiteStorageWithRetention(path, DefaultRetention)
}

// NewSQLiteStorageWithRetention es NewSQLiteStorage con retención explícita.
// retention <= 0 no borra nada.
func NewSQLiteStorageWithRetention(path string, retention time.Duration) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db, retention: retention}
	s.pruneOld(context.Background(), time.Now())
	return s, nil
}

// SaveSettlements persiste un batch completo en una transacción.
func (s *SQLiteStorage) SaveSettlements(ctx context.Context, batch domain.SettlementBatch) error {
	if len(batch.Rounds) == 0 && len(batch.Positions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveSettlements: begin tx: %w", err)
	}
	defer tx.Rollback()

	roundStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO rounds (round_id, market_key, start_ms, settle_price, settled_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveSettlements: prepare rounds: %w", err)
	}
	defer roundStmt.Close()

	ids := make([]string, 0, len(batch.Rounds))
	for id := range batch.Rounds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		key, startMs, _ := domain.ParseRoundID(id)
		if _, err := roundStmt.ExecContext(ctx, id, key, startMs, batch.Rounds[id], batch.At.UnixMilli()); err != nil {
			return fmt.Errorf("storage.SaveSettlements: insert round %s: %w", id, err)
		}
	}

	posStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO settled_positions
			(id, round_id, market_key, asset, direction, stake, entry_price, entry_quote,
			 shares, outcome, settle_price, payout, profit, created_at, round_end, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveSettlements: prepare positions: %w", err)
	}
	defer posStmt.Close()

	days := make(map[string]*dailyDelta)
	for _, p := range batch.Positions {
		res, err := posStmt.ExecContext(ctx,
			p.ID, p.RoundID, p.MarketKey, p.Asset, string(p.Direction),
			p.Stake.String(), p.EntryPrice, p.EntryQuote, p.Shares.String(),
			string(p.Outcome), p.SettlePrice, p.Payout.String(), p.Profit.String(),
			p.CreatedAt.UnixMilli(), p.RoundEnd.UnixMilli(), p.ResolvedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("storage.SaveSettlements: insert position %s: %w", p.ID, err)
		}
		// una posición ya guardada no vuelve a sumar al resumen diario
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		day := p.ResolvedAt.UTC().Format(time.DateOnly)
		d, ok := days[day]
		if !ok {
			d = &dailyDelta{}
			days[day] = d
		}
		d.add(p)
	}

	if err := saveDaily(ctx, tx, days); err != nil {
		return fmt.Errorf("storage.SaveSettlements: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveSettlements: commit: %w", err)
	}
	return nil
}

// GetSettlements devuelve las posiciones resueltas en el rango dado, la más
// reciente primero.
func (s *SQLiteStorage) GetSettlements(ctx context.Context, from, to time.Time) ([]domain.SettledPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, round_id, market_key, asset, direction, stake, entry_price, entry_quote,
		       shares, outcome, settle_price, payout, profit, created_at, round_end, resolved_at
		FROM settled_positions
		WHERE resolved_at BETWEEN ? AND ?
		ORDER BY resolved_at DESC, id ASC
	`, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("storage.GetSettlements: query: %w", err)
	}
	defer rows.Close()

	var out []domain.SettledPosition
	for rows.Next() {
		p, err := scanSettled(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.GetSettlements: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetStats agrega todo el journal. Los importes se suman en decimal en Go
// para no perder precisión.
func (s *SQLiteStorage) GetStats(ctx context.Context) (domain.SettlementStats, error) {
	stats := domain.SettlementStats{
		TotalStaked: decimal.Zero,
		TotalPayout: decimal.Zero,
		NetProfit:   decimal.Zero,
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rounds`).Scan(&stats.Rounds); err != nil {
		return stats, fmt.Errorf("storage.GetStats: count rounds: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT market_key, outcome, stake, payout, resolved_at
		FROM settled_positions`)
	if err != nil {
		return stats, fmt.Errorf("storage.GetStats: query: %w", err)
	}
	defer rows.Close()

	byMarket := make(map[string]*domain.MarketStats)
	for rows.Next() {
		var market, outcome, stakeStr, payoutStr string
		var resolvedMs int64
		if err := rows.Scan(&market, &outcome, &stakeStr, &payoutStr, &resolvedMs); err != nil {
			return stats, fmt.Errorf("storage.GetStats: scan: %w", err)
		}
		stake, err := decimal.NewFromString(stakeStr)
		if err != nil {
			return stats, fmt.Errorf("storage.GetStats: stake %q: %w", stakeStr, err)
		}
		payout, err := decimal.NewFromString(payoutStr)
		if err != nil {
			return stats, fmt.Errorf("storage.GetStats: payout %q: %w", payoutStr, err)
		}

		stats.Positions++
		stats.TotalStaked = stats.TotalStaked.Add(stake)
		stats.TotalPayout = stats.TotalPayout.Add(payout)
		switch domain.Outcome(outcome) {
		case domain.OutcomeWin:
			stats.Wins++
		case domain.OutcomeLoss:
			stats.Losses++
		case domain.OutcomePush:
			stats.Pushes++
		}

		at := time.UnixMilli(resolvedMs).UTC()
		if stats.FirstAt.IsZero() || at.Before(stats.FirstAt) {
			stats.FirstAt = at
		}
		if at.After(stats.LastAt) {
			stats.LastAt = at
		}

		ms, ok := byMarket[market]
		if !ok {
			ms = &domain.MarketStats{MarketKey: market, NetProfit: decimal.Zero}
			byMarket[market] = ms
		}
		ms.Positions++
		if domain.Outcome(outcome) == domain.OutcomeWin {
			ms.Wins++
		}
		ms.NetProfit = ms.NetProfit.Add(payout.Sub(stake))
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("storage.GetStats: rows: %w", err)
	}

	stats.NetProfit = stats.TotalPayout.Sub(stats.TotalStaked)
	for _, ms := range byMarket {
		stats.ByMarket = append(stats.ByMarket, *ms)
	}
	sort.Slice(stats.ByMarket, func(i, j int) bool {
		return stats.ByMarket[i].MarketKey < stats.ByMarket[j].MarketKey
	})
	return stats, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettled(r rowScanner) (domain.SettledPosition, error) {
	var p domain.SettledPosition
	var direction, outcome, stake, shares, payout, profit string
	var createdMs, endMs, resolvedMs int64
	if err := r.Scan(
		&p.ID, &p.RoundID, &p.MarketKey, &p.Asset, &direction, &stake,
		&p.EntryPrice, &p.EntryQuote, &shares, &outcome, &p.SettlePrice,
		&payout, &profit, &createdMs, &endMs, &resolvedMs,
	); err != nil {
		return p, fmt.Errorf("scan row: %w", err)
	}
	p.Direction = domain.Direction(direction)
	p.Outcome = domain.Outcome(outcome)
	p.CreatedAt = time.UnixMilli(createdMs).UTC()
	p.RoundEnd = time.UnixMilli(endMs).UTC()
	p.ResolvedAt = time.UnixMilli(resolvedMs).UTC()

	var err error
	if p.Stake, err = decimal.NewFromString(stake); err != nil {
		return p, fmt.Errorf("stake %q: %w", stake, err)
	}
	if p.Shares, err = decimal.NewFromString(shares); err != nil {
		return p, fmt.Errorf("shares %q: %w", shares, err)
	}
	if p.Payout, err = decimal.NewFromString(payout); err != nil {
		return p, fmt.Errorf("payout %q: %w", payout, err)
	}
	if p.Profit, err = decimal.NewFromString(profit); err != nil {
		return p, fmt.Errorf("profit %q: %w", profit, err)
	}
	return p, nil
}

// pruneOld elimina datos antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context, now time.Time) {
	if s.retention <= 0 {
		return
	}
	cutoff := now.Add(-s.retention)
	s.db.ExecContext(ctx, `DELETE FROM settled_positions WHERE resolved_at < ?`, cutoff.UnixMilli())
	s.db.ExecContext(ctx, `DELETE FROM rounds WHERE settled_at < ?`, cutoff.UnixMilli())
	s.db.ExecContext(ctx, `DELETE FROM daily WHERE date < ?`, cutoff.UTC().Format(time.DateOnly))
}
