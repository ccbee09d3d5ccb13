package http

import (
	"time"

	domainassets "lookback/internal/domain/entity/assets"
	domain "lookback/internal/domain/entity/history"

	"github.com/google/uuid"
)

// tablePayload is the JSON form of a query result. Missing cells render as
// null; the NaN sentinel is an in-process representation only.
type tablePayload struct {
	Index   []time.Time           `json:"index"`
	Columns map[string][]*float64 `json:"columns"`
}

func newTablePayload(table *domain.Table) tablePayload {
	payload := tablePayload{
		Index:   table.Index(),
		Columns: make(map[string][]*float64, len(table.Symbols())),
	}
	for _, symbol := range table.Symbols() {
		values, _ := table.Column(symbol)
		col := make([]*float64, len(values))
		for i, v := range values {
			if domain.IsMissing(v) {
				continue
			}
			value := v
			col[i] = &value
		}
		payload.Columns[symbol] = col
	}
	return payload
}

type assetPayload struct {
	UID    string `json:"uid,omitempty"`
	Symbol string `json:"symbol"`
	Name   string `json:"name,omitempty"`
	Figi   string `json:"figi,omitempty"`
}

func (p assetPayload) toDomain() (*domainassets.Asset, error) {
	asset := &domainassets.Asset{
		Symbol: p.Symbol,
		Name:   p.Name,
		Figi:   p.Figi,
	}
	if p.UID != "" {
		uid, err := uuid.Parse(p.UID)
		if err != nil {
			return nil, err
		}
		asset.UID = uid
	}
	return asset, nil
}
