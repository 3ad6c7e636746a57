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

const mexcURL = "https://contract.mexc.com/api/v1/contract/ticker"

type mexcTicker struct {
	Symbol      string     `json:"symbol"`
	FundingRate flexNumber `json:"fundingRate"`
}

// MEXC reads contract tickers.
type MEXC struct {
	httpSource
}

func NewMEXC(client *http.Client, sc config.SourceConfig) *MEXC {
	return &MEXC{httpSource{
		name:   "MEXC",
		client: withHeaders(client, standardHeaders),
		url:    orDefault(sc.URL, mexcURL),
	}}
}

func (m *MEXC) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	var resp struct {
		Success bool              `json:"success"`
		Code    flexCode          `json:"code"`
		Data    []json.RawMessage `json:"data"`
	}
	if err := getJSON(ctx, m.client, m.url, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("request unsuccessful (code %q)", resp.Code)
	}

	out := newBatch(m.name, len(resp.Data))
	decodeEach(resp.Data, func(t mexcTicker) {
		if strings.HasSuffix(t.Symbol, "_USDT") {
			out.add(t.Symbol, t.FundingRate, percent)
		}
	})
	return out.result(), nil
}
