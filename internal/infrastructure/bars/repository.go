package bars

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "lookback/internal/domain/entity/history"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository stores minute bars in Postgres and serves the suffix-window
// reads the backfill path needs. Daily bars are not stored separately; they
// are aggregated from minutes at query time.
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

const insertMinuteBarQuery = `
	INSERT INTO minute_bars (asset_uid, ts, open, high, low, close, volume)
	VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (asset_uid, ts) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		volume = EXCLUDED.volume`

func (r *Repository) AddMinuteBar(ctx context.Context, assetUID uuid.UUID, bar domain.Bar) error {
	_, err := r.pool.Exec(ctx, insertMinuteBarQuery,
		assetUID,
		bar.Timestamp,
		bar.Open,
		bar.High,
		bar.Low,
		bar.Close,
		bar.Volume,
	)
	return err
}

func (r *Repository) AddMinuteBars(ctx context.Context, assetUID uuid.UUID, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	rows := make([][]interface{}, 0, len(bars))
	for i := range bars {
		rows = append(rows, []interface{}{
			assetUID,
			bars[i].Timestamp,
			bars[i].Open,
			bars[i].High,
			bars[i].Low,
			bars[i].Close,
			bars[i].Volume,
		})
	}
	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"minute_bars"},
		[]string{"asset_uid", "ts", "open", "high", "low", "close", "volume"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (r *Repository) MinuteBarsBefore(ctx context.Context, assetUID uuid.UUID, before time.Time, limit int) ([]domain.Bar, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	const query = `
		SELECT ts, open, high, low, close, volume
		FROM minute_bars
		WHERE asset_uid=$1 AND ts < $2
		ORDER BY ts DESC
		LIMIT $3`
	rows, err := r.pool.Query(ctx, query, assetUID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bars, err := collectBars(rows)
	if err != nil {
		return nil, err
	}
	reverse(bars)
	return bars, nil
}

func (r *Repository) MinuteBarsBetween(ctx context.Context, assetUID uuid.UUID, from, to time.Time) ([]domain.Bar, error) {
	const query = `
		SELECT ts, open, high, low, close, volume
		FROM minute_bars
		WHERE asset_uid=$1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC`
	rows, err := r.pool.Query(ctx, query, assetUID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBars(rows)
}

// DailyBarsBefore aggregates stored minutes into session bars on the server:
// first open, max high, min low, last close, summed volume per trading day.
func (r *Repository) DailyBarsBefore(ctx context.Context, assetUID uuid.UUID, before time.Time, limit int) ([]domain.Bar, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	const query = `
		SELECT date_trunc('day', ts) AS session_date,
		       (array_agg(open ORDER BY ts ASC))[1] AS open,
		       MAX(high) AS high,
		       MIN(low) AS low,
		       (array_agg(close ORDER BY ts DESC))[1] AS close,
		       SUM(volume) AS volume
		FROM minute_bars
		WHERE asset_uid=$1 AND ts < $2
		GROUP BY session_date
		ORDER BY session_date DESC
		LIMIT $3`
	rows, err := r.pool.Query(ctx, query, assetUID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bars, err := collectBars(rows)
	if err != nil {
		return nil, err
	}
	reverse(bars)
	return bars, nil
}

func collectBars(rows pgx.Rows) ([]domain.Bar, error) {
	var bars []domain.Bar
	for rows.Next() {
		var bar domain.Bar
		if err := rows.Scan(&bar.Timestamp, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, rows.Err()
}

func reverse(bars []domain.Bar) {
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
}
