package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"fundingflow/config"
	"fundingflow/internal/symbols"
	"fundingflow/models"
)

const hyperliquidURL = "https://api.hyperliquid.xyz/info"

type hyperliquidAsset struct {
	Name string `json:"name"`
}

type hyperliquidContext struct {
	Funding flexNumber `json:"funding"`
}

// Hyperliquid reads asset metadata and market contexts in one request. The
// two arrays are parallel; if their lengths differ the response is unusable.
type Hyperliquid struct {
	httpSource
}

func NewHyperliquid(client *http.Client, sc config.SourceConfig) *Hyperliquid {
	return &Hyperliquid{httpSource{
		name:   "Hyperliquid",
		client: withHeaders(client, standardHeaders),
		url:    orDefault(sc.URL, hyperliquidURL),
	}}
}

func (h *Hyperliquid) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	var parts []json.RawMessage
	if err := postJSON(ctx, h.client, h.url, map[string]string{"type": "metaAndAssetCtxs"}, &parts); err != nil {
		return nil, err
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("expected meta and contexts, got %d parts", len(parts))
	}

	var meta struct {
		Universe []json.RawMessage `json:"universe"`
	}
	if err := json.Unmarshal(parts[0], &meta); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	var contexts []json.RawMessage
	if err := json.Unmarshal(parts[1], &contexts); err != nil {
		return nil, fmt.Errorf("decode contexts: %w", err)
	}
	if len(meta.Universe) != len(contexts) {
		return nil, fmt.Errorf("universe has %d assets but %d contexts", len(meta.Universe), len(contexts))
	}

	out := newBatch(h.name, len(contexts))
	for i := range contexts {
		var asset hyperliquidAsset
		var mctx hyperliquidContext
		if json.Unmarshal(meta.Universe[i], &asset) != nil || json.Unmarshal(contexts[i], &mctx) != nil {
			continue
		}
		if asset.Name == "" {
			continue
		}
		out.add(asset.Name+symbols.QuoteAsset, mctx.Funding, percent)
	}
	return out.result(), nil
}
