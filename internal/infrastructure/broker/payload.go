package broker

import (
	"time"

	domain "lookback/internal/domain/entity/history"

	"github.com/google/uuid"
)

// BarMessage is the wire form of one minute bar on the bars exchange. The
// timestamp marks the end of the trading minute.
type BarMessage struct {
	AssetUID  uuid.UUID `json:"asset_uid"`
	Symbol    string    `json:"symbol,omitempty"`
	Timestamp time.Time `json:"ts"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

func (m BarMessage) Bar() domain.Bar {
	return domain.Bar{
		Timestamp: m.Timestamp,
		Open:      m.Open,
		High:      m.High,
		Low:       m.Low,
		Close:     m.Close,
		Volume:    m.Volume,
	}
}
