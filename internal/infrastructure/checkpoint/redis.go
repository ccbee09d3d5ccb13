package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domain "lookback/internal/domain/entity/history"
	interfaces "lookback/internal/domain/interfaces"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "history:window:"

// RedisStore persists rolling-window snapshots in Redis, one JSON value per
// (asset, frequency) key, so a restarted process resumes without a full
// backfill.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ interfaces.WindowCheckpoint = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

type windowDocument struct {
	AssetUID  uuid.UUID        `json:"asset_uid"`
	Frequency domain.Frequency `json:"frequency"`
	Bars      []barDocument    `json:"bars"`
}

type barDocument struct {
	Timestamp time.Time `json:"ts"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

func (s *RedisStore) SaveWindows(ctx context.Context, snapshots []interfaces.WindowSnapshot) error {
	pipe := s.client.Pipeline()
	for _, snap := range snapshots {
		doc := windowDocument{
			AssetUID:  snap.AssetUID,
			Frequency: snap.Frequency,
			Bars:      make([]barDocument, 0, len(snap.Bars)),
		}
		for _, bar := range snap.Bars {
			doc.Bars = append(doc.Bars, barDocument{
				Timestamp: bar.Timestamp,
				Open:      bar.Open,
				High:      bar.High,
				Low:       bar.Low,
				Close:     bar.Close,
				Volume:    bar.Volume,
			})
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal window %s/%s: %w", snap.AssetUID, snap.Frequency, err)
		}
		pipe.Set(ctx, s.key(snap.AssetUID, snap.Frequency), data, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) LoadWindows(ctx context.Context) ([]interfaces.WindowSnapshot, error) {
	var snapshots []interfaces.WindowSnapshot
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var doc windowDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal window %s: %w", iter.Val(), err)
		}
		snap := interfaces.WindowSnapshot{
			AssetUID:  doc.AssetUID,
			Frequency: doc.Frequency,
			Bars:      make([]domain.Bar, 0, len(doc.Bars)),
		}
		for _, bar := range doc.Bars {
			snap.Bars = append(snap.Bars, domain.Bar{
				Timestamp: bar.Timestamp,
				Open:      bar.Open,
				High:      bar.High,
				Low:       bar.Low,
				Close:     bar.Close,
				Volume:    bar.Volume,
			})
		}
		snapshots = append(snapshots, snap)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (s *RedisStore) key(assetUID uuid.UUID, freq domain.Frequency) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, assetUID, freq)
}
