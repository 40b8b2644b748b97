package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"marketpulse/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ ResultRecorder = (*SQLiteStore)(nil)
var _ ResultReader = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS backtest_results (
	strategy          TEXT NOT NULL,
	ticker            TEXT NOT NULL,
	start_date        TEXT NOT NULL,
	end_date          TEXT NOT NULL,
	cumulative_return REAL NOT NULL,
	sharpe            REAL NOT NULL,
	max_drawdown      REAL NOT NULL,
	PRIMARY KEY (strategy, ticker)
);
CREATE TABLE IF NOT EXISTS model_results (
	model_name        TEXT NOT NULL,
	ticker            TEXT NOT NULL,
	start_date        TEXT NOT NULL,
	end_date          TEXT NOT NULL,
	cumulative_return REAL NOT NULL,
	sharpe            REAL NOT NULL,
	max_drawdown      REAL NOT NULL,
	PRIMARY KEY (model_name, ticker)
);
CREATE TABLE IF NOT EXISTS backtest_equity (
	strategy TEXT NOT NULL,
	ticker   TEXT NOT NULL,
	date     TEXT NOT NULL,
	equity   REAL NOT NULL,
	returns  REAL NOT NULL,
	PRIMARY KEY (strategy, ticker, date)
);
CREATE TABLE IF NOT EXISTS model_predictions (
	model_name TEXT NOT NULL,
	ticker     TEXT NOT NULL,
	date       TEXT NOT NULL,
	prob_up    REAL NOT NULL,
	signal     INTEGER NOT NULL,
	PRIMARY KEY (model_name, ticker, date)
);
`

// SQLiteStore implements ResultRecorder and ResultReader backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// result tables and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Writers are serialized by SQLite anyway; one connection avoids
	// SQLITE_BUSY between concurrent units.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		return nil, multierr.Append(fmt.Errorf("creating schema: %w", err), db.Close())
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// ResultRecorder implementation
// ---------------------------------------------------------------------------

// SaveBacktest replaces the summary row of (strategy, ticker) and the rows
// of every curve.
func (s *SQLiteStore) SaveBacktest(ctx context.Context, summary domain.SummaryMetrics, curves ...[]domain.EquityRow) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := replaceSummary(ctx, tx, "backtest_results", "strategy", summary); err != nil {
			return err
		}
		return replaceCurves(ctx, tx, curves)
	})
}

// SaveModelRun replaces the model summary, predictions and curves of
// (model, ticker).
func (s *SQLiteStore) SaveModelRun(ctx context.Context, summary domain.SummaryMetrics, preds []domain.PredictionRow, curves ...[]domain.EquityRow) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := replaceSummary(ctx, tx, "model_results", "model_name", summary); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM model_predictions WHERE model_name = ? AND ticker = ?`,
			summary.StrategyID, summary.Ticker); err != nil {
			return fmt.Errorf("deleting predictions: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO model_predictions (model_name, ticker, date, prob_up, signal) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range preds {
			if _, err := stmt.ExecContext(ctx, p.ModelID, p.Ticker, dateString(p.Date), p.ProbabilityUp, p.Signal); err != nil {
				return fmt.Errorf("inserting prediction %s %s: %w", p.Ticker, dateString(p.Date), err)
			}
		}
		return replaceCurves(ctx, tx, curves)
	})
}

// DeleteStrategy removes every backtest_results row of strategyID.
func (s *SQLiteStore) DeleteStrategy(ctx context.Context, strategyID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM backtest_results WHERE strategy = ?`, strategyID)
	return err
}

// ---------------------------------------------------------------------------
// ResultReader implementation
// ---------------------------------------------------------------------------

// ListSummaries returns strategy and model summaries ordered by ID and ticker.
func (s *SQLiteStore) ListSummaries(ctx context.Context) ([]domain.SummaryMetrics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strategy, ticker, start_date, end_date, cumulative_return, sharpe, max_drawdown FROM backtest_results
		UNION ALL
		SELECT model_name, ticker, start_date, end_date, cumulative_return, sharpe, max_drawdown FROM model_results
		ORDER BY 1, 2`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SummaryMetrics
	for rows.Next() {
		var m domain.SummaryMetrics
		var start, end string
		if err := rows.Scan(&m.StrategyID, &m.Ticker, &start, &end, &m.CumulativeReturn, &m.Sharpe, &m.MaxDrawdown); err != nil {
			return nil, err
		}
		if m.StartDate, err = parseDate(start); err != nil {
			return nil, err
		}
		if m.EndDate, err = parseDate(end); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ReadEquity returns one curve ordered by date.
func (s *SQLiteStore) ReadEquity(ctx context.Context, strategyID, ticker string) ([]domain.EquityRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, equity, returns FROM backtest_equity WHERE strategy = ? AND ticker = ? ORDER BY date`,
		strategyID, ticker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EquityRow
	for rows.Next() {
		r := domain.EquityRow{StrategyID: strategyID, Ticker: ticker}
		var d string
		if err := rows.Scan(&d, &r.Equity, &r.Return); err != nil {
			return nil, err
		}
		if r.Date, err = parseDate(d); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReadPredictions returns the predictions of modelID for ticker.
func (s *SQLiteStore) ReadPredictions(ctx context.Context, modelID, ticker string) ([]domain.PredictionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, prob_up, signal FROM model_predictions WHERE model_name = ? AND ticker = ? ORDER BY date`,
		modelID, ticker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PredictionRow
	for rows.Next() {
		p := domain.PredictionRow{ModelID: modelID, Ticker: ticker}
		var d string
		if err := rows.Scan(&d, &p.ProbabilityUp, &p.Signal); err != nil {
			return nil, err
		}
		if p.Date, err = parseDate(d); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return multierr.Append(err, tx.Rollback())
	}
	return tx.Commit()
}

func replaceSummary(ctx context.Context, tx *sql.Tx, table, idCol string, m domain.SummaryMetrics) error {
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = ? AND ticker = ?`, table, idCol),
		m.StrategyID, m.Ticker); err != nil {
		return fmt.Errorf("deleting %s row: %w", table, err)
	}
	_, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s, ticker, start_date, end_date, cumulative_return, sharpe, max_drawdown)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, table, idCol),
		m.StrategyID, m.Ticker, dateString(m.StartDate), dateString(m.EndDate),
		m.CumulativeReturn, m.Sharpe, m.MaxDrawdown)
	if err != nil {
		return fmt.Errorf("inserting %s row: %w", table, err)
	}
	return nil
}

func replaceCurves(ctx context.Context, tx *sql.Tx, curves [][]domain.EquityRow) error {
	for _, curve := range curves {
		if len(curve) == 0 {
			continue
		}
		id, ticker := curve[0].StrategyID, curve[0].Ticker
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM backtest_equity WHERE strategy = ? AND ticker = ?`, id, ticker); err != nil {
			return fmt.Errorf("deleting curve %s/%s: %w", id, ticker, err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO backtest_equity (strategy, ticker, date, equity, returns) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		for _, r := range curve {
			if _, err := stmt.ExecContext(ctx, r.StrategyID, r.Ticker, dateString(r.Date), r.Equity, r.Return); err != nil {
				return multierr.Append(fmt.Errorf("inserting curve %s/%s: %w", id, ticker, err), stmt.Close())
			}
		}
		if err := stmt.Close(); err != nil {
			return err
		}
	}
	return nil
}

func dateString(t time.Time) string { return t.Format(time.DateOnly) }

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored date %q: %w", s, err)
	}
	return t, nil
}
