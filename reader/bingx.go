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

const bingxURL = "https://open-api.bingx.com/openApi/swap/v2/quote/premiumIndex"

type bingxIndex struct {
	Symbol          string     `json:"symbol"`
	LastFundingRate flexNumber `json:"lastFundingRate"`
}

// BingX reads swap premium indexes.
type BingX struct {
	httpSource
}

func NewBingX(client *http.Client, sc config.SourceConfig) *BingX {
	return &BingX{httpSource{
		name:   "BingX",
		client: withHeaders(client, standardHeaders),
		url:    orDefault(sc.URL, bingxURL),
	}}
}

func (b *BingX) Fetch(ctx context.Context) ([]models.FundingRate, error) {
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
	decodeEach(resp.Data, func(i bingxIndex) {
		if strings.HasSuffix(i.Symbol, "-USDT") {
			out.add(i.Symbol, i.LastFundingRate, percent)
		}
	})
	return out.result(), nil
}
