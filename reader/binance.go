package reader

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	futures "github.com/adshao/go-binance/v2/futures"

	"fundingflow/config"
	"fundingflow/models"
)

// Binance reads USDT-margined perpetual premium indexes.
type Binance struct {
	client *futures.Client
}

func NewBinance(client *http.Client, sc config.SourceConfig) *Binance {
	c := futures.NewClient("", "")
	c.HTTPClient = withHeaders(client, browserHeaders)
	if sc.URL != "" {
		c.BaseURL = strings.TrimRight(sc.URL, "/")
	}
	return &Binance{client: c}
}

func (b *Binance) Name() string {
	return "Binance"
}

func (b *Binance) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	indexes, err := b.client.NewPremiumIndexService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("premium index: %w", err)
	}

	out := newBatch(b.Name(), len(indexes))
	for _, idx := range indexes {
		if idx == nil || !strings.HasSuffix(idx.Symbol, "USDT") {
			continue
		}
		out.add(idx.Symbol, flexNumber(strings.TrimSpace(idx.LastFundingRate)), percent)
	}
	return out.result(), nil
}
