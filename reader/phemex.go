package reader

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"fundingflow/config"
	"fundingflow/models"
)

const phemexURL = "https://api.phemex.com/md/v2/ticker/24hr"

type phemexTicker struct {
	Symbol      string     `json:"symbol"`
	FundingRate flexNumber `json:"fundingRate"`
}

// Phemex reads 24h tickers. Funding rates are fixed-point integers scaled
// by 10^8.
type Phemex struct {
	httpSource
}

func NewPhemex(client *http.Client, sc config.SourceConfig) *Phemex {
	return &Phemex{httpSource{
		name:   "Phemex",
		client: withHeaders(client, standardHeaders, http.Header{"Accept": {"*/*"}}),
		url:    orDefault(sc.URL, phemexURL),
	}}
}

func (p *Phemex) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	var resp struct {
		Result []json.RawMessage `json:"result"`
	}
	if err := getJSON(ctx, p.client, p.url, &resp); err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, errors.New("response has no result")
	}

	out := newBatch(p.name, len(resp.Result))
	decodeEach(resp.Result, func(t phemexTicker) {
		if strings.HasSuffix(t.Symbol, "USDT") {
			out.add(t.Symbol, t.FundingRate, scaledE8)
		}
	})
	return out.result(), nil
}
