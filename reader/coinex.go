package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"fundingflow/config"
	"fundingflow/models"
)

const coinexURL = "https://api.coinex.com/perpetual/v1/market/ticker/all"

type coinexTicker struct {
	FundingRateNext flexNumber `json:"funding_rate_next"`
	FundingRateLast flexNumber `json:"funding_rate_last"`
}

// CoinEx reads all perpetual tickers. The predicted next rate is preferred
// over the last settled one.
type CoinEx struct {
	httpSource
}

func NewCoinEx(client *http.Client, sc config.SourceConfig) *CoinEx {
	return &CoinEx{httpSource{
		name:   "CoinEx",
		client: withHeaders(client, standardHeaders),
		url:    orDefault(sc.URL, coinexURL),
	}}
}

func (c *CoinEx) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	var resp struct {
		Code    flexCode `json:"code"`
		Message string   `json:"message"`
		Data    struct {
			Ticker map[string]json.RawMessage `json:"ticker"`
		} `json:"data"`
	}
	if err := getJSON(ctx, c.client, c.url, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "0" {
		return nil, fmt.Errorf("code %q: %s", resp.Code, resp.Message)
	}

	markets := make([]string, 0, len(resp.Data.Ticker))
	for m := range resp.Data.Ticker {
		if strings.HasSuffix(m, "USDT") {
			markets = append(markets, m)
		}
	}
	sort.Strings(markets)

	out := newBatch(c.name, len(markets))
	for _, m := range markets {
		var t coinexTicker
		if err := json.Unmarshal(resp.Data.Ticker[m], &t); err != nil {
			continue
		}
		rate := t.FundingRateNext
		if !rate.present() {
			rate = t.FundingRateLast
		}
		out.add(m, rate, percent)
	}
	return out.result(), nil
}
