package reader

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	api "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/api"
	futuresmarket "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/futures/market"
	sdktype "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/types"

	"fundingflow/config"
	"fundingflow/internal/symbols"
	"fundingflow/models"
)

const kucoinBaseURL = "https://api-futures.kucoin.com"

// KuCoin reads active futures contracts through the KuCoin futures market
// API; only USDT-margined ones are kept.
type KuCoin struct {
	market futuresmarket.MarketAPI
}

func NewKuCoin(client *http.Client, sc config.SourceConfig) *KuCoin {
	timeout := 25 * time.Second
	if client != nil && client.Timeout > 0 {
		timeout = client.Timeout
	}
	transportOpt := sdktype.NewTransportOptionBuilder().
		SetMaxIdleConns(16).
		SetMaxIdleConnsPerHost(8).
		SetIdleConnTimeout(90 * time.Second).
		SetTimeout(timeout).
		Build()

	option := sdktype.NewClientOptionBuilder().
		WithFuturesEndpoint(strings.TrimRight(orDefault(sc.URL, kucoinBaseURL), "/")).
		WithTransportOption(transportOpt).
		Build()

	c := api.NewClient(option)
	return &KuCoin{market: c.RestService().GetFuturesService().GetMarketAPI()}
}

func (k *KuCoin) Name() string {
	return "KuCoin"
}

func (k *KuCoin) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	resp, err := k.market.GetAllSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("contracts: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("contracts: empty response")
	}

	out := newBatch(k.Name(), len(resp.Data))
	for _, c := range resp.Data {
		sym, ok := symbols.FromKucoin(c.Symbol)
		if !ok {
			continue
		}
		var rate flexNumber
		if c.FundingFeeRate != nil {
			rate = flexNumber(strconv.FormatFloat(*c.FundingFeeRate, 'f', -1, 64))
		}
		out.add(sym, rate, percent)
	}
	return out.result(), nil
}
