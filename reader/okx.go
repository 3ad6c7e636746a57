package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"fundingflow/config"
	"fundingflow/internal/symbols"
	"fundingflow/models"
)

const okxURL = "https://www.okx.com/priapi/v5/public/tickers?instType=SWAP"

type okxTicker struct {
	InstID      string     `json:"instId"`
	FundingRate flexNumber `json:"fundingRate"`
}

// OKX reads swap tickers from the web frontend endpoint, which requires
// browser headers and the trading page as referer.
type OKX struct {
	httpSource
}

func NewOKX(client *http.Client, sc config.SourceConfig) *OKX {
	return &OKX{httpSource{
		name:   "OKX",
		client: withHeaders(client, browserHeaders, http.Header{"Referer": {"https://www.okx.com/trade-swap"}}),
		url:    orDefault(sc.URL, okxURL),
	}}
}

func (o *OKX) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	var resp struct {
		Code flexCode          `json:"code"`
		Msg  string            `json:"msg"`
		Data []json.RawMessage `json:"data"`
	}
	if err := getJSON(ctx, o.client, o.url, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "0" {
		return nil, fmt.Errorf("code %q: %s", resp.Code, resp.Msg)
	}

	out := newBatch(o.name, len(resp.Data))
	decodeEach(resp.Data, func(t okxTicker) {
		if !strings.HasSuffix(t.InstID, "USDT-SWAP") {
			return
		}
		base, _, _ := strings.Cut(t.InstID, "-")
		out.add(base+symbols.QuoteAsset, t.FundingRate, percent)
	})
	return out.result(), nil
}
