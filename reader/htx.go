package reader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"fundingflow/config"
	"fundingflow/models"
)

const htxPath = "/linear-swap-api/v1/swap_batch_funding_rate"

var htxHosts = []string{"https://api.hbdm.vn", "https://api.hbdm.com"}

type htxRate struct {
	ContractCode string     `json:"contract_code"`
	FundingRate  flexNumber `json:"funding_rate"`
}

// HTX reads batch funding rates of linear swaps. The API is served from two
// hosts; they are tried in order and the first successful answer is used.
type HTX struct {
	httpSource
	hosts []string
}

func NewHTX(client *http.Client, sc config.SourceConfig) *HTX {
	hosts := sc.Hosts
	if len(hosts) == 0 {
		hosts = htxHosts
	}
	return &HTX{
		httpSource: httpSource{
			name:   "HTX",
			client: withHeaders(client, standardHeaders),
			url:    htxPath,
		},
		hosts: hosts,
	}
}

func (h *HTX) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	var errs []error
	for _, host := range h.hosts {
		data, err := h.fetchHost(ctx, strings.TrimRight(host, "/")+h.url)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", host, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		out := newBatch(h.name, len(data))
		decodeEach(data, func(r htxRate) {
			if strings.HasSuffix(r.ContractCode, "USDT") {
				out.add(r.ContractCode, r.FundingRate, percent)
			}
		})
		return out.result(), nil
	}
	return nil, errors.Join(errs...)
}

func (h *HTX) fetchHost(ctx context.Context, url string) ([]json.RawMessage, error) {
	var resp struct {
		Status string            `json:"status"`
		ErrMsg string            `json:"err_msg"`
		Data   []json.RawMessage `json:"data"`
	}
	if err := getJSON(ctx, h.client, url, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("status %q: %s", resp.Status, resp.ErrMsg)
	}
	return resp.Data, nil
}
