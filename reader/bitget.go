package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"fundingflow/config"
	"fundingflow/models"
)

const bitgetURL = "https://api.bitget.com/api/v2/mix/market/tickers?productType=USDT-FUTURES"

type bitgetTicker struct {
	Symbol      string     `json:"symbol"`
	FundingRate flexNumber `json:"fundingRate"`
}

// Bitget reads USDT-FUTURES mix tickers.
type Bitget struct {
	httpSource
}

func NewBitget(client *http.Client, sc config.SourceConfig) *Bitget {
	return &Bitget{httpSource{
		name:   "Bitget",
		client: withHeaders(client, standardHeaders),
		url:    orDefault(sc.URL, bitgetURL),
	}}
}

func (b *Bitget) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	var resp struct {
		Code flexCode          `json:"code"`
		Msg  string            `json:"msg"`
		Data []json.RawMessage `json:"data"`
	}
	if err := getJSON(ctx, b.client, b.url, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "00000" && resp.Code != "0" {
		return nil, fmt.Errorf("code %q: %s", resp.Code, resp.Msg)
	}

	out := newBatch(b.name, len(resp.Data))
	decodeEach(resp.Data, func(t bitgetTicker) {
		if strings.HasSuffix(t.Symbol, "USDT") {
			out.add(t.Symbol, t.FundingRate, percent)
		}
	})
	return out.result(), nil
}
