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

const krakenURL = "https://futures.kraken.com/derivatives/api/v3/tickers"

type krakenTicker struct {
	Symbol      string     `json:"symbol"`
	FundingRate flexNumber `json:"fundingRate"`
}

// Kraken reads derivatives tickers. Rates are published already scaled and
// are taken without conversion. Perpetual and inverse contracts on the same
// base collapse to one symbol; the first one listed wins.
type Kraken struct {
	httpSource
}

func NewKraken(client *http.Client, sc config.SourceConfig) *Kraken {
	return &Kraken{httpSource{
		name:   "Kraken",
		client: withHeaders(client, standardHeaders),
		url:    orDefault(sc.URL, krakenURL),
	}}
}

func (k *Kraken) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	var resp struct {
		Result  string            `json:"result"`
		Error   string            `json:"error"`
		Tickers []json.RawMessage `json:"tickers"`
	}
	if err := getJSON(ctx, k.client, k.url, &resp); err != nil {
		return nil, err
	}
	if resp.Result != "success" {
		return nil, fmt.Errorf("result %q: %s", resp.Result, resp.Error)
	}

	out := newBatch(k.name, len(resp.Tickers))
	seen := make(map[string]struct{}, len(resp.Tickers))
	decodeEach(resp.Tickers, func(t krakenTicker) {
		sym, ok := krakenSymbol(t.Symbol)
		if !ok {
			return
		}
		if _, dup := seen[sym]; dup {
			return
		}
		if out.add(sym, t.FundingRate, asIs) {
			seen[sym] = struct{}{}
		}
	})
	return out.result(), nil
}

// krakenSymbol maps PF_XBTUSD / PI_ETHUSD style tickers to canonical symbols.
func krakenSymbol(raw string) (string, bool) {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	if i := strings.Index(sym, "_"); i >= 0 && i <= 2 {
		sym = sym[i+1:]
	}
	// the quote is the last USD so bases such as USDC survive
	i := strings.LastIndex(sym, "USD")
	if i <= 0 {
		return "", false
	}
	return symbols.FromBase(sym[:i]), true
}
