package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "lookback/internal/domain/entity/history"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSessionNotFound is returned when no session exists for a given day.
var ErrSessionNotFound = errors.New("session not found")

// Repository serves trading sessions out of the trading_sessions table. The
// table is maintained by the data seeding command; the engine only reads it.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

func (r *Repository) SessionsBefore(ctx context.Context, at time.Time, n int) ([]domain.Session, error) {
	if n <= 0 {
		return nil, errors.New("session count must be positive")
	}
	const query = `
		SELECT session_date, open_at, close_at, half_day
		FROM trading_sessions
		WHERE open_at <= $1
		ORDER BY session_date DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, at, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions, err := collectSessions(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(sessions)-1; i < j; i, j = i+1, j-1 {
		sessions[i], sessions[j] = sessions[j], sessions[i]
	}
	return sessions, nil
}

func (r *Repository) IsHalfDay(ctx context.Context, date time.Time) (bool, error) {
	const query = `
		SELECT half_day
		FROM trading_sessions
		WHERE session_date = $1`
	var halfDay bool
	err := r.pool.QueryRow(ctx, query, date).Scan(&halfDay)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%w: %s", ErrSessionNotFound, date.Format("2006-01-02"))
	}
	if err != nil {
		return false, err
	}
	return halfDay, nil
}

func collectSessions(rows pgx.Rows) ([]domain.Session, error) {
	var sessions []domain.Session
	for rows.Next() {
		var sess domain.Session
		if err := rows.Scan(&sess.Date, &sess.Open, &sess.Close, &sess.HalfDay); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
