package reader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"fundingflow/config"
	"fundingflow/models"
)

const (
	bitunixBatchURL   = "https://fapi.bitunix.com/api/v1/futures/market/funding_rate/batch"
	bitunixTickersURL = "https://fapi.bitunix.com/api/v1/futures/market/tickers"
)

type bitunixRate struct {
	Symbol      string     `json:"symbol"`
	FundingRate flexNumber `json:"fundingRate"`
}

// Bitunix reads the batch funding endpoint and falls back to tickers when
// the batch yields nothing. Rates are published in percent already.
type Bitunix struct {
	httpSource
	fallbackURL string
}

func NewBitunix(client *http.Client, sc config.SourceConfig) *Bitunix {
	return &Bitunix{
		httpSource: httpSource{
			name:   "Bitunix",
			client: withHeaders(client, standardHeaders),
			url:    orDefault(sc.URL, bitunixBatchURL),
		},
		fallbackURL: orDefault(sc.FallbackURL, bitunixTickersURL),
	}
}

func (b *Bitunix) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	rates, err := b.fetchURL(ctx, b.url)
	if len(rates) > 0 {
		return rates, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	fallback, ferr := b.fetchURL(ctx, b.fallbackURL)
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	if len(fallback) == 0 && err != nil {
		return nil, err
	}
	return fallback, nil
}

func (b *Bitunix) fetchURL(ctx context.Context, url string) ([]models.FundingRate, error) {
	var resp struct {
		Code flexCode          `json:"code"`
		Msg  string            `json:"msg"`
		Data []json.RawMessage `json:"data"`
	}
	if err := getJSON(ctx, b.client, url, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "0" {
		return nil, fmt.Errorf("code %q: %s", resp.Code, resp.Msg)
	}

	out := newBatch(b.name, len(resp.Data))
	decodeEach(resp.Data, func(r bitunixRate) {
		if strings.HasSuffix(r.Symbol, "USDT") {
			out.add(r.Symbol, r.FundingRate, asIs)
		}
	})
	return out.result(), nil
}
