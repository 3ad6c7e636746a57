package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"fundingflow/config"
	"fundingflow/models"
)

const bybitBaseURL = "https://api.bybit.com"

type bybitTicker struct {
	Symbol      string     `json:"symbol"`
	FundingRate flexNumber `json:"fundingRate"`
}

// Bybit reads linear perpetual tickers through the Bybit v5 client.
type Bybit struct {
	client *bybit.Client
}

func NewBybit(client *http.Client, sc config.SourceConfig) *Bybit {
	base := bybitBaseURL
	if sc.URL != "" {
		base = sc.URL
		if parsed, err := url.Parse(sc.URL); err == nil && parsed.Host != "" {
			base = fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
		}
	}
	c := bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(base))
	c.HTTPClient = withHeaders(client, browserHeaders)
	return &Bybit{client: c}
}

func (b *Bybit) Name() string {
	return "Bybit"
}

func (b *Bybit) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	params := map[string]interface{}{"category": "linear"}
	resp, err := b.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("tickers: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("tickers: empty response")
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("retCode %d: %s", resp.RetCode, resp.RetMsg)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("tickers: missing result")
	}

	// the client decodes result generically; re-decode entry by entry
	payload, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("tickers: %w", err)
	}
	var result struct {
		List []json.RawMessage `json:"list"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("tickers: %w", err)
	}

	out := newBatch(b.Name(), len(result.List))
	decodeEach(result.List, func(t bybitTicker) {
		if strings.HasSuffix(t.Symbol, "USDT") {
			out.add(t.Symbol, t.FundingRate, percent)
		}
	})
	return out.result(), nil
}
