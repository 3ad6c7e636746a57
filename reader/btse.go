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

const btseURL = "https://api.btse.com/futures/api/v2.1/market_summary?listFullAttributes=true"

type btseMarket struct {
	Symbol      string     `json:"symbol"`
	FundingRate flexNumber `json:"fundingRate"`
}

// BTSE reads the futures market summary, which sits behind a WAF.
type BTSE struct {
	httpSource
}

func NewBTSE(client *http.Client, sc config.SourceConfig) *BTSE {
	return &BTSE{httpSource{
		name:   "BTSE",
		client: withHeaders(client, browserHeaders),
		url:    orDefault(sc.URL, btseURL),
	}}
}

func (b *BTSE) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	var resp struct {
		Code flexCode          `json:"code"`
		Msg  string            `json:"msg"`
		Data []json.RawMessage `json:"data"`
	}
	if err := getJSON(ctx, b.client, b.url, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "0" {
		return nil, fmt.Errorf("code %q: %s", resp.Code, resp.Msg)
	}

	out := newBatch(b.name, len(resp.Data))
	decodeEach(resp.Data, func(m btseMarket) {
		sym := symbols.Normalize(m.Symbol)
		if !strings.HasSuffix(sym, "PERP") {
			return
		}
		out.add(symbols.ReplaceSuffix(sym, "PERP", symbols.QuoteAsset), m.FundingRate, percent)
	})
	return out.result(), nil
}
