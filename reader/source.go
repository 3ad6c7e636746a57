package reader

import (
	"context"
	"net/http"

	"fundingflow/config"
	"fundingflow/logger"
	"fundingflow/models"
)

// Source fetches the current funding rates of one exchange. Fetch returns
// whatever it could parse; a non-nil error means the exchange contributed
// nothing this cycle and is kept only for diagnostics.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]models.FundingRate, error)
}

type httpSource struct {
	name   string
	client *http.Client
	url    string
}

func (s *httpSource) Name() string {
	return s.name
}

type builder func(*http.Client, config.SourceConfig) Source

func register[T Source](build func(*http.Client, config.SourceConfig) T) builder {
	return func(c *http.Client, sc config.SourceConfig) Source {
		return build(c, sc)
	}
}

// builders is keyed like config.SourceNames and kept in the same order.
var builders = []struct {
	key   string
	build builder
}{
	{"binance", register(NewBinance)},
	{"bybit", register(NewBybit)},
	{"gateio", register(NewGateIO)},
	{"okx", register(NewOKX)},
	{"kucoin", register(NewKuCoin)},
	{"bitget", register(NewBitget)},
	{"mexc", register(NewMEXC)},
	{"htx", register(NewHTX)},
	{"bingx", register(NewBingX)},
	{"kraken", register(NewKraken)},
	{"dydx", register(NewDYDX)},
	{"bitmex", register(NewBitMEX)},
	{"phemex", register(NewPhemex)},
	{"hyperliquid", register(NewHyperliquid)},
	{"coinex", register(NewCoinEx)},
	{"bitunix", register(NewBitunix)},
	{"btse", register(NewBTSE)},
	{"coinbase", register(NewCoinbase)},
}

// NewRegistry builds every enabled source in a fixed order. The order
// determines the order of records within a cycle.
func NewRegistry(cfg *config.Config, client *http.Client) []Source {
	log := logger.GetLogger().WithComponent("reader")

	sources := make([]Source, 0, len(builders))
	var disabled []string
	for _, b := range builders {
		sc := cfg.Sources[b.key]
		if !sc.IsEnabled() {
			disabled = append(disabled, b.key)
			continue
		}
		sources = append(sources, b.build(client, sc))
	}

	log.WithFields(logger.Fields{
		"sources":  len(sources),
		"disabled": disabled,
	}).Info("source registry initialized")

	return sources
}
