package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	domain "lookback/internal/domain/entity/assets"
)

const (
	defaultAssetsFile   = "cmd/data/assets.json"
	defaultCalendarDays = 365
	defaultOpenClock    = "14:30"
	defaultCloseClock   = "21:00"
	defaultHalfClock    = "18:00"
)

type dataConfig struct {
	DatabaseDSN  string
	AssetsFile   string
	CalendarFrom time.Time
	CalendarTo   time.Time
	OpenClock    time.Duration
	CloseClock   time.Duration
	HalfClock    time.Duration
	Holidays     map[string]struct{}
	HalfDays     map[string]struct{}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	assets, err := readAssets(cfg.AssetsFile)
	if err != nil {
		logger.Fatalf("read assets: %v", err)
	}
	if err := upsertAssets(ctx, pool, assets); err != nil {
		logger.Fatalf("save assets: %v", err)
	}
	logger.WithField("assets", len(assets)).Info("assets seeded")

	sessions := buildSessions(cfg)
	if err := upsertSessions(ctx, pool, sessions); err != nil {
		logger.Fatalf("save trading sessions: %v", err)
	}
	logger.WithFields(logrus.Fields{
		"sessions": len(sessions),
		"from":     cfg.CalendarFrom.Format(time.DateOnly),
		"to":       cfg.CalendarTo.Format(time.DateOnly),
	}).Info("trading calendar seeded")
	logger.Info("reference data sync finished")
}

func loadConfig() (*dataConfig, error) {
	dsn := strings.TrimSpace(os.Getenv("DATABASE_DSN"))
	if dsn == "" {
		return nil, errors.New("DATABASE_DSN is required")
	}

	from, err := dateEnv("CALENDAR_FROM", time.Now().UTC().AddDate(0, 0, -defaultCalendarDays))
	if err != nil {
		return nil, err
	}
	to, err := dateEnv("CALENDAR_TO", time.Now().UTC().AddDate(0, 0, 7))
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("CALENDAR_TO %s precedes CALENDAR_FROM %s",
			to.Format(time.DateOnly), from.Format(time.DateOnly))
	}

	open, err := clockEnv("SESSION_OPEN", defaultOpenClock)
	if err != nil {
		return nil, err
	}
	closeAt, err := clockEnv("SESSION_CLOSE", defaultCloseClock)
	if err != nil {
		return nil, err
	}
	half, err := clockEnv("SESSION_HALF_CLOSE", defaultHalfClock)
	if err != nil {
		return nil, err
	}
	if closeAt <= open || half <= open {
		return nil, errors.New("session close must be after open")
	}

	holidays, err := dateSetEnv("CALENDAR_HOLIDAYS")
	if err != nil {
		return nil, err
	}
	halfDays, err := dateSetEnv("CALENDAR_HALF_DAYS")
	if err != nil {
		return nil, err
	}

	return &dataConfig{
		DatabaseDSN:  dsn,
		AssetsFile:   envOrDefault("ASSETS_FILE", defaultAssetsFile),
		CalendarFrom: from,
		CalendarTo:   to,
		OpenClock:    open,
		CloseClock:   closeAt,
		HalfClock:    half,
		Holidays:     holidays,
		HalfDays:     halfDays,
	}, nil
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func dateEnv(key string, fallback time.Time) (time.Time, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback.Truncate(24 * time.Hour), nil
	}
	parsed, err := time.ParseInLocation(time.DateOnly, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s value %q: %w", key, value, err)
	}
	return parsed, nil
}

// dateSetEnv parses a comma-separated list of YYYY-MM-DD dates.
func dateSetEnv(key string) (map[string]struct{}, error) {
	result := make(map[string]struct{})
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return result, nil
	}
	for _, part := range strings.Split(raw, ",") {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		if _, err := time.ParseInLocation(time.DateOnly, value, time.UTC); err != nil {
			return nil, fmt.Errorf("parse %s entry %q: %w", key, value, err)
		}
		result[value] = struct{}{}
	}
	return result, nil
}

// clockEnv parses an HH:MM wall-clock value into an offset from midnight UTC.
func clockEnv(key, fallback string) (time.Duration, error) {
	value := envOrDefault(key, fallback)
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("parse %s value %q: want HH:MM", key, value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("parse %s value %q: bad hour", key, value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("parse %s value %q: bad minute", key, value)
	}
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute, nil
}

func readAssets(path string) ([]*domain.Asset, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read assets file: %w", err)
	}
	var payload struct {
		Assets []struct {
			UID    string `json:"uid"`
			Symbol string `json:"symbol"`
			Name   string `json:"name"`
			Figi   string `json:"figi"`
		} `json:"assets"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse assets file: %w", err)
	}

	assets := make([]*domain.Asset, 0, len(payload.Assets))
	for _, entry := range payload.Assets {
		symbol := strings.ToUpper(strings.TrimSpace(entry.Symbol))
		if symbol == "" {
			continue
		}
		assets = append(assets, &domain.Asset{
			UID:    parseAssetUID(entry.UID, symbol),
			Symbol: symbol,
			Name:   strings.TrimSpace(entry.Name),
			Figi:   strings.TrimSpace(entry.Figi),
		})
	}
	return assets, nil
}

type sessionRow struct {
	Date    time.Time
	Open    time.Time
	Close   time.Time
	HalfDay bool
}

// buildSessions lays out one session per weekday in the configured range,
// skipping holidays and shortening half days.
func buildSessions(cfg *dataConfig) []sessionRow {
	sessions := make([]sessionRow, 0, int(cfg.CalendarTo.Sub(cfg.CalendarFrom).Hours()/24)+1)
	for day := cfg.CalendarFrom; !day.After(cfg.CalendarTo); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		key := day.Format(time.DateOnly)
		if _, holiday := cfg.Holidays[key]; holiday {
			continue
		}

		closeClock := cfg.CloseClock
		_, half := cfg.HalfDays[key]
		if half {
			closeClock = cfg.HalfClock
		}

		date := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		sessions = append(sessions, sessionRow{
			Date:    date,
			Open:    date.Add(cfg.OpenClock),
			Close:   date.Add(closeClock),
			HalfDay: half,
		})
	}
	return sessions
}

func upsertAssets(ctx context.Context, pool *pgxpool.Pool, assets []*domain.Asset) error {
	batch := &pgx.Batch{}
	for _, asset := range assets {
		batch.Queue(`
			INSERT INTO assets (uid, symbol, name, figi)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (symbol) DO UPDATE
			SET name = EXCLUDED.name,
			    figi = EXCLUDED.figi,
			    deleted_at = NULL`,
			asset.UID,
			asset.Symbol,
			asset.Name,
			asset.Figi,
		)
	}
	return execBatch(ctx, pool, batch)
}

func upsertSessions(ctx context.Context, pool *pgxpool.Pool, sessions []sessionRow) error {
	batch := &pgx.Batch{}
	for _, session := range sessions {
		batch.Queue(`
			INSERT INTO trading_sessions (session_date, open_at, close_at, half_day)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (session_date) DO UPDATE
			SET open_at = EXCLUDED.open_at,
			    close_at = EXCLUDED.close_at,
			    half_day = EXCLUDED.half_day`,
			session.Date,
			session.Open,
			session.Close,
			session.HalfDay,
		)
	}
	return execBatch(ctx, pool, batch)
}

func execBatch(ctx context.Context, pool *pgxpool.Pool, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	results := pool.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

func parseAssetUID(rawID, symbol string) uuid.UUID {
	if id, err := uuid.Parse(strings.TrimSpace(rawID)); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte("asset:"+strings.ToLower(symbol)))
}
