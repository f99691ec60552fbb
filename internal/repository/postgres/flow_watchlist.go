package postgres

import (
	"context"
	"database/sql"
	"strings"

	"optionsflow/internal/domain/flow"
	"optionsflow/pkg/errors"
)

// Querier is satisfied by *sqlx.DB and *sqlx.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

var _ flow.WatchlistSource = (*FlowWatchlistRepository)(nil)

// FlowWatchlistRepository reads the scanned tickers from flow_watchlist
type FlowWatchlistRepository struct {
	db Querier
}

// NewFlowWatchlistRepository creates a new watchlist repository
func NewFlowWatchlistRepository(db Querier) *FlowWatchlistRepository {
	return &FlowWatchlistRepository{db: db}
}

// ActiveTickers returns up to limit active symbols, highest priority first.
// limit <= 0 returns all of them.
func (r *FlowWatchlistRepository) ActiveTickers(ctx context.Context, limit int) ([]string, error) {
	var symbols []string

	query := `
		SELECT symbol FROM flow_watchlist
		WHERE is_active = true
		ORDER BY priority DESC, symbol ASC`
	args := []interface{}{}

	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	if err := r.db.SelectContext(ctx, &symbols, query, args...); err != nil {
		return nil, errors.Wrap(err, "select active flow watchlist")
	}

	for i, s := range symbols {
		symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	return symbols, nil
}

// SetActive pauses or resumes scanning for symbol
func (r *FlowWatchlistRepository) SetActive(ctx context.Context, symbol string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE flow_watchlist SET is_active = $1, updated_at = NOW() WHERE symbol = $2`,
		active, symbol,
	)
	if err != nil {
		return errors.Wrapf(err, "update flow watchlist symbol=%s", symbol)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "watchlist symbol=%s", symbol)
	}

	return nil
}

// Upsert adds symbol or updates its priority, reactivating it
func (r *FlowWatchlistRepository) Upsert(ctx context.Context, symbol string, priority int, notes string) error {
	symbol, err := flow.NormalizeTicker(symbol)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO flow_watchlist (symbol, priority, is_active, notes)
		VALUES ($1, $2, true, NULLIF($3, ''))
		ON CONFLICT (symbol) DO UPDATE
		SET priority = EXCLUDED.priority,
		    is_active = true,
		    notes = COALESCE(EXCLUDED.notes, flow_watchlist.notes),
		    updated_at = NOW()`,
		symbol, priority, notes,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert flow watchlist symbol=%s", symbol)
	}
	return nil
}
