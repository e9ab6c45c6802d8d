package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/maejeom/market-game/internal/model"
	"github.com/maejeom/market-game/internal/simulator"
)

// Schema creates the tables PostgresStore uses. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS game_sessions (
	session_id TEXT PRIMARY KEY,
	day        INT NOT NULL,
	cash       NUMERIC NOT NULL,
	holdings   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS trades (
	session_id TEXT NOT NULL REFERENCES game_sessions(session_id) ON DELETE CASCADE,
	seq        INT NOT NULL,
	day        INT NOT NULL,
	product    TEXT NOT NULL,
	side       TEXT NOT NULL,
	qty        BIGINT NOT NULL,
	price      NUMERIC NOT NULL,
	amount     NUMERIC NOT NULL,
	PRIMARY KEY (session_id, seq)
);

CREATE TABLE IF NOT EXISTS simulation_series (
	session_id TEXT PRIMARY KEY,
	seed       BIGINT NOT NULL,
	horizon    INT NOT NULL,
	start_date TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS market_records (
	session_id  TEXT NOT NULL REFERENCES simulation_series(session_id) ON DELETE CASCADE,
	seq         INT NOT NULL,
	day         INT NOT NULL,
	date        TEXT NOT NULL,
	event       TEXT NOT NULL,
	temp        INT NOT NULL,
	humidity    INT NOT NULL,
	product     TEXT NOT NULL,
	price_start NUMERIC NOT NULL,
	price_end   NUMERIC NOT NULL,
	units_sold  BIGINT NOT NULL,
	revenue     NUMERIC NOT NULL,
	PRIMARY KEY (session_id, seq)
);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *PostgresStore) LoadState(ctx context.Context, sessionID string) (*model.LedgerState, error) {
	var st model.LedgerState
	var cashS, holdingsS string

	err := s.pool.QueryRow(ctx,
		`SELECT day, cash::TEXT, holdings::TEXT
		 FROM game_sessions WHERE session_id = $1`, sessionID).
		Scan(&st.Day, &cashS, &holdingsS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", sessionID, err)
	}

	if st.Cash, err = decimal.NewFromString(cashS); err != nil {
		return nil, fmt.Errorf("load state %s: cash: %w", sessionID, err)
	}
	if err := json.Unmarshal([]byte(holdingsS), &st.Holdings); err != nil {
		return nil, fmt.Errorf("load state %s: holdings: %w", sessionID, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT day, product, side, qty, price::TEXT, amount::TEXT
		 FROM trades WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load trades %s: %w", sessionID, err)
	}
	defer rows.Close()

	st.History, err = scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("load trades %s: %w", sessionID, err)
	}
	return &st, nil
}

// SaveState upserts the session row and rewrites its trade history in one
// transaction. Trades are rewritten rather than appended because a reset
// empties the history.
func (s *PostgresStore) SaveState(ctx context.Context, sessionID string, state model.LedgerState) error {
	holdings, err := json.Marshal(state.Holdings)
	if err != nil {
		return fmt.Errorf("save state %s: %w", sessionID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO game_sessions (session_id, day, cash, holdings, updated_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::JSONB, now())
		 ON CONFLICT (session_id) DO UPDATE
		 SET day = EXCLUDED.day, cash = EXCLUDED.cash,
		     holdings = EXCLUDED.holdings, updated_at = now()`,
		sessionID, state.Day, state.Cash.String(), string(holdings),
	)
	if err != nil {
		return fmt.Errorf("save state %s: %w", sessionID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM trades WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("save trades %s: %w", sessionID, err)
	}
	if len(state.History) > 0 {
		batch := &pgx.Batch{}
		for i, t := range state.History {
			batch.Queue(
				`INSERT INTO trades (session_id, seq, day, product, side, qty, price, amount)
				 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC)`,
				sessionID, i, t.Day, t.Product, string(t.Side), t.Qty,
				t.Price.String(), t.Amount.String(),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save trades %s: %w", sessionID, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) LoadSeries(ctx context.Context, sessionID string) (*simulator.Series, error) {
	var seed int64
	var horizon int
	var startDate string

	err := s.pool.QueryRow(ctx,
		`SELECT seed, horizon, start_date FROM simulation_series WHERE session_id = $1`, sessionID).
		Scan(&seed, &horizon, &startDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load series %s: %w", sessionID, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT day, date, event, temp, humidity, product,
		        price_start::TEXT, price_end::TEXT, units_sold, revenue::TEXT
		 FROM market_records WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load records %s: %w", sessionID, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("load records %s: %w", sessionID, err)
	}
	return simulator.NewSeries(seed, horizon, startDate, records)
}

func (s *PostgresStore) SaveSeries(ctx context.Context, sessionID string, series *simulator.Series) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO simulation_series (session_id, seed, horizon, start_date)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id) DO UPDATE
		 SET seed = EXCLUDED.seed, horizon = EXCLUDED.horizon, start_date = EXCLUDED.start_date`,
		sessionID, series.Seed(), series.Horizon(), series.StartDate(),
	)
	if err != nil {
		return fmt.Errorf("save series %s: %w", sessionID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM market_records WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("save records %s: %w", sessionID, err)
	}

	batch := &pgx.Batch{}
	for i, r := range series.Records() {
		batch.Queue(
			`INSERT INTO market_records (session_id, seq, day, date, event, temp, humidity, product,
			                             price_start, price_end, units_sold, revenue)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::NUMERIC, $10::NUMERIC, $11, $12::NUMERIC)`,
			sessionID, i, r.Day, r.Date, r.EventLabel, r.Temperature, r.Humidity, r.Product,
			r.PriceStart.String(), r.PriceEnd.String(), r.UnitsSold, r.Revenue.String(),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save records %s: %w", sessionID, err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM game_sessions WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM simulation_series WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete series %s: %w", sessionID, err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT session_id FROM game_sessions ORDER BY session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// pgxRows is the subset of pgx.Rows the scanners need.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanTrades(rows pgxRows) ([]model.Trade, error) {
	trades := []model.Trade{}
	for rows.Next() {
		var t model.Trade
		var side, priceS, amountS string

		if err := rows.Scan(&t.Day, &t.Product, &side, &t.Qty, &priceS, &amountS); err != nil {
			return nil, err
		}

		t.Side = model.Side(side)
		var err error
		if t.Price, err = decimal.NewFromString(priceS); err != nil {
			return nil, fmt.Errorf("trade price %q: %w", priceS, err)
		}
		if t.Amount, err = decimal.NewFromString(amountS); err != nil {
			return nil, fmt.Errorf("trade amount %q: %w", amountS, err)
		}

		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func scanRecords(rows pgxRows) ([]model.MarketRecord, error) {
	var records []model.MarketRecord
	for rows.Next() {
		var r model.MarketRecord
		var startS, endS, revenueS string

		if err := rows.Scan(&r.Day, &r.Date, &r.EventLabel, &r.Temperature, &r.Humidity, &r.Product,
			&startS, &endS, &r.UnitsSold, &revenueS); err != nil {
			return nil, err
		}

		var err error
		if r.PriceStart, err = decimal.NewFromString(startS); err != nil {
			return nil, fmt.Errorf("price_start %q: %w", startS, err)
		}
		if r.PriceEnd, err = decimal.NewFromString(endS); err != nil {
			return nil, fmt.Errorf("price_end %q: %w", endS, err)
		}
		if r.Revenue, err = decimal.NewFromString(revenueS); err != nil {
			return nil, fmt.Errorf("revenue %q: %w", revenueS, err)
		}

		records = append(records, r)
	}
	return records, rows.Err()
}
