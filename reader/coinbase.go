package reader

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"fundingflow/config"
	"fundingflow/internal/symbols"
	"fundingflow/models"
)

const (
	coinbaseURL         = "https://api.international.coinbase.com/api/v1/instruments/funding"
	coinbaseFallbackURL = "https://api.coinbase.com/api/v3/brokerage/market/products?product_type=FUTURE"
)

type coinbaseInstrument struct {
	Symbol      string     `json:"symbol"`
	Type        string     `json:"type"`
	FundingRate flexNumber `json:"funding_rate"`
}

type coinbaseProduct struct {
	ProductID            string `json:"product_id"`
	FutureProductDetails struct {
		ContractExpiryType string `json:"contract_expiry_type"`
		PerpetualDetails   struct {
			FundingRate flexNumber `json:"funding_rate"`
		} `json:"perpetual_details"`
	} `json:"future_product_details"`
}

// Coinbase reads international exchange perpetuals and falls back to the
// retail futures product listing when that yields nothing. The fallback
// often lists no perpetuals; an empty answer is not an error unless the
// primary request failed.
type Coinbase struct {
	httpSource
	fallbackURL string
}

func NewCoinbase(client *http.Client, sc config.SourceConfig) *Coinbase {
	return &Coinbase{
		httpSource: httpSource{
			name:   "Coinbase",
			client: withHeaders(client, standardHeaders),
			url:    orDefault(sc.URL, coinbaseURL),
		},
		fallbackURL: orDefault(sc.FallbackURL, coinbaseFallbackURL),
	}
}

func (c *Coinbase) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	rates, err := c.fetchInstruments(ctx)
	if len(rates) > 0 {
		return rates, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	fallback, ferr := c.fetchProducts(ctx)
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	if len(fallback) == 0 && err != nil {
		return nil, err
	}
	return fallback, nil
}

func (c *Coinbase) fetchInstruments(ctx context.Context) ([]models.FundingRate, error) {
	var resp struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := getJSON(ctx, c.client, c.url, &resp); err != nil {
		return nil, err
	}

	out := newBatch(c.name, len(resp.Results))
	decodeEach(resp.Results, func(i coinbaseInstrument) {
		if i.Type == "PERPETUAL" && i.Symbol != "" {
			out.add(coinbaseSymbol(i.Symbol), i.FundingRate, percent)
		}
	})
	return out.result(), nil
}

func (c *Coinbase) fetchProducts(ctx context.Context) ([]models.FundingRate, error) {
	var resp struct {
		Products []json.RawMessage `json:"products"`
	}
	if err := getJSON(ctx, c.client, c.fallbackURL, &resp); err != nil {
		return nil, err
	}

	out := newBatch(c.name, len(resp.Products))
	decodeEach(resp.Products, func(p coinbaseProduct) {
		details := p.FutureProductDetails
		if details.ContractExpiryType == "PERPETUAL" && p.ProductID != "" {
			out.add(coinbaseSymbol(p.ProductID), details.PerpetualDetails.FundingRate, percent)
		}
	})
	return out.result(), nil
}

// coinbaseSymbol maps BTC-PERP and BTC-PERP-INTX to BTCUSDT.
func coinbaseSymbol(raw string) string {
	sym := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(raw)), "-", "")
	sym = strings.TrimSuffix(sym, "INTX")
	return symbols.ReplaceSuffix(sym, "PERP", symbols.QuoteAsset)
}
