package reader

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"fundingflow/config"
	"fundingflow/internal/symbols"
	"fundingflow/models"
)

const (
	bitmexURL = "https://www.bitmex.com/api/v1/instrument/active"
	// perpetual swap type code
	bitmexPerpetual = "FFWCSX"
)

type bitmexInstrument struct {
	Symbol      string     `json:"symbol"`
	Typ         string     `json:"typ"`
	FundingRate flexNumber `json:"fundingRate"`
}

// BitMEX reads active instruments and keeps perpetual swaps.
type BitMEX struct {
	httpSource
}

func NewBitMEX(client *http.Client, sc config.SourceConfig) *BitMEX {
	return &BitMEX{httpSource{
		name:   "BitMEX",
		client: withHeaders(client, standardHeaders),
		url:    orDefault(sc.URL, bitmexURL),
	}}
}

func (b *BitMEX) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	var instruments []json.RawMessage
	if err := getJSON(ctx, b.client, b.url, &instruments); err != nil {
		return nil, err
	}

	out := newBatch(b.name, len(instruments))
	decodeEach(instruments, func(i bitmexInstrument) {
		if i.Typ != bitmexPerpetual {
			return
		}
		sym, ok := symbols.FromLegacy(i.Symbol)
		if !ok {
			if !strings.HasSuffix(i.Symbol, "USDT") {
				return
			}
			sym = i.Symbol
		}
		out.add(sym, i.FundingRate, percent)
	})
	return out.result(), nil
}
