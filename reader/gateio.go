package reader

import (
	"context"
	"encoding/json"
	"net/http"

	"fundingflow/config"
	"fundingflow/models"
)

const gateioURL = "https://api.gateio.ws/api/v4/futures/usdt/tickers"

type gateioTicker struct {
	Contract    string     `json:"contract"`
	FundingRate flexNumber `json:"funding_rate"`
}

// GateIO reads USDT-settled futures tickers.
type GateIO struct {
	httpSource
}

func NewGateIO(client *http.Client, sc config.SourceConfig) *GateIO {
	return &GateIO{httpSource{
		name:   "GateIO",
		client: withHeaders(client, standardHeaders),
		url:    orDefault(sc.URL, gateioURL),
	}}
}

func (g *GateIO) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	var tickers []json.RawMessage
	if err := getJSON(ctx, g.client, g.url, &tickers); err != nil {
		return nil, err
	}

	out := newBatch(g.name, len(tickers))
	decodeEach(tickers, func(t gateioTicker) {
		if t.Contract != "" {
			out.add(t.Contract, t.FundingRate, percent)
		}
	})
	return out.result(), nil
}
