package reader

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"fundingflow/config"
	"fundingflow/models"
)

const dydxURL = "https://indexer.dydx.trade/v4/perpetualMarkets"

type dydxMarket struct {
	Ticker          string     `json:"ticker"`
	NextFundingRate flexNumber `json:"nextFundingRate"`
}

// DYDX reads perpetual markets from the v4 indexer.
type DYDX struct {
	httpSource
}

func NewDYDX(client *http.Client, sc config.SourceConfig) *DYDX {
	return &DYDX{httpSource{
		name:   "dYdX",
		client: withHeaders(client, standardHeaders),
		url:    orDefault(sc.URL, dydxURL),
	}}
}

func (d *DYDX) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	var resp struct {
		Markets map[string]json.RawMessage `json:"markets"`
	}
	if err := getJSON(ctx, d.client, d.url, &resp); err != nil {
		return nil, err
	}
	if resp.Markets == nil {
		return nil, errors.New("response has no markets")
	}

	keys := make([]string, 0, len(resp.Markets))
	for k := range resp.Markets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := newBatch(d.name, len(keys))
	for _, key := range keys {
		var m dydxMarket
		if err := json.Unmarshal(resp.Markets[key], &m); err != nil {
			continue
		}
		ticker := orDefault(m.Ticker, key)
		out.add(strings.ReplaceAll(ticker, "-USD", "USDT"), m.NextFundingRate, percent)
	}
	return out.result(), nil
}
